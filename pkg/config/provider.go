package config

import (
	"errors"
	"fmt"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration, defaults applied
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetCatalog() (*CatalogData, error)
	GetScheduler() (*SchedulerData, error)
	GetStyle() (*StyleData, error)
	GetPlayback() (*PlaybackData, error)
	GetServer() (*ServerData, error)

	// Configuration management
	IsReadOnly() bool
	Close() error
}

// ErrNoCatalog is returned when neither a chunk list nor a rolling window is
// configured.
var ErrNoCatalog = errors.New("catalog needs either chunks or a rolling window")

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Catalog   CatalogData   `json:"catalog"`
	Scheduler SchedulerData `json:"scheduler"`
	Style     StyleData     `json:"style"`
	Playback  PlaybackData  `json:"playback"`
	Server    ServerData    `json:"server"`
}

// CatalogData lists the tile chunks, either explicitly or as a rolling window
// derived from the current date.
type CatalogData struct {
	Chunks          []ChunkData `json:"chunks,omitempty"`
	Window          *WindowData `json:"window,omitempty"`
	TileURLTemplate string      `json:"tile_url_template,omitempty"`
}

// ChunkData is one tile chunk covering part of a day
type ChunkData struct {
	ID        string `json:"id"`
	Layer     string `json:"layer,omitempty"`
	Date      string `json:"date"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
}

// WindowData describes a rolling catalog of the most recent complete days
type WindowData struct {
	Days          int    `json:"days"`
	HoursPerChunk int    `json:"hours_per_chunk,omitempty"`
	IDPattern     string `json:"id_pattern,omitempty"`
	LayerPattern  string `json:"layer_pattern,omitempty"`
}

// SchedulerData tunes chunk attachment. Lookahead and lookbehind may be
// zero on purpose, so nil marks them unset.
type SchedulerData struct {
	Lookahead         *int `json:"lookahead"`
	Lookbehind        *int `json:"lookbehind"`
	Budget            int  `json:"budget"`
	TransitionDelayMs int  `json:"transition_delay_ms"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// StyleData names the tile feature properties and the initial display
type StyleData struct {
	Measurement      string    `json:"measurement"`
	TimeProperty     string    `json:"time_property"`
	ValueProperty    string    `json:"value_property"`
	TimestampLayout  string    `json:"timestamp_layout"`
	CircleRadius     float64   `json:"circle_radius"`
	DefaultThreshold float64   `json:"default_threshold"`
	ThemeMode        string    `json:"theme_mode"`
	Center           PointData `json:"center"`
}

// PointData is a map location
type PointData struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// PlaybackData is the initial playback setup
type PlaybackData struct {
	Speed           float64 `json:"speed"`
	Mode            string  `json:"mode"`
	FrameIntervalMs int     `json:"frame_interval_ms"`
}

// ServerData configures the map server
type ServerData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}

// Validate checks the parts of the configuration that defaults cannot fix
func (c *ConfigData) Validate() error {
	if len(c.Catalog.Chunks) == 0 && c.Catalog.Window == nil {
		return ErrNoCatalog
	}
	if w := c.Catalog.Window; w != nil && w.Days <= 0 {
		return fmt.Errorf("catalog window needs a positive day count, got %d", w.Days)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if (c.Server.Cert == "") != (c.Server.Key == "") {
		return fmt.Errorf("server TLS needs both cert and key")
	}
	return nil
}
