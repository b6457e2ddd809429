package config

// Defaults for unset configuration values
const (
	DefaultTileURLTemplate   = "mapbox://{chunk}"
	DefaultHoursPerChunk     = 24
	DefaultLookahead         = 4
	DefaultLookbehind        = 1
	DefaultBudget            = 12
	DefaultTransitionDelayMs = 100
	DefaultMeasurement       = "pm25"
	DefaultTimeProperty      = "time"
	DefaultTimestampLayout   = "2006-01-02T15:04:05"
	DefaultCircleRadius      = 4
	DefaultThemeMode         = "light"
	DefaultSpeed             = 1
	DefaultPlaybackMode      = "loop"
	DefaultFrameIntervalMs   = 16
	DefaultListenAddr        = "0.0.0.0"
	DefaultPort              = 8080
)

// DefaultCenter is the middle of the contiguous United States
var DefaultCenter = PointData{Lat: 39.5, Lon: -98.35}

// ApplyDefaults fills every unset value
func (c *ConfigData) ApplyDefaults() {
	if c.Catalog.TileURLTemplate == "" {
		c.Catalog.TileURLTemplate = DefaultTileURLTemplate
	}
	if w := c.Catalog.Window; w != nil && w.HoursPerChunk == 0 {
		w.HoursPerChunk = DefaultHoursPerChunk
	}
	for i := range c.Catalog.Chunks {
		if c.Catalog.Chunks[i].Layer == "" {
			c.Catalog.Chunks[i].Layer = c.Catalog.Chunks[i].ID
		}
	}

	s := &c.Scheduler
	if s.Lookahead == nil {
		s.Lookahead = IntPtr(DefaultLookahead)
	}
	if s.Lookbehind == nil {
		s.Lookbehind = IntPtr(DefaultLookbehind)
	}
	if s.Budget == 0 {
		s.Budget = DefaultBudget
	}
	if s.TransitionDelayMs == 0 {
		s.TransitionDelayMs = DefaultTransitionDelayMs
	}

	st := &c.Style
	if st.Measurement == "" {
		st.Measurement = DefaultMeasurement
	}
	if st.TimeProperty == "" {
		st.TimeProperty = DefaultTimeProperty
	}
	if st.ValueProperty == "" {
		st.ValueProperty = st.Measurement
	}
	if st.TimestampLayout == "" {
		st.TimestampLayout = DefaultTimestampLayout
	}
	if st.CircleRadius == 0 {
		st.CircleRadius = DefaultCircleRadius
	}
	if st.ThemeMode == "" {
		st.ThemeMode = DefaultThemeMode
	}
	if st.Center == (PointData{}) {
		st.Center = DefaultCenter
	}

	p := &c.Playback
	if p.Speed == 0 {
		p.Speed = DefaultSpeed
	}
	if p.Mode == "" {
		p.Mode = DefaultPlaybackMode
	}
	if p.FrameIntervalMs == 0 {
		p.FrameIntervalMs = DefaultFrameIntervalMs
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}
