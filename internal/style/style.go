// Package style builds the filter and paint parameters for chunk layers and
// applies them to the renderer for the current instant, threshold and theme.
package style

import (
	"fmt"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/renderer"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"github.com/chrissnell/aqtimeline/pkg/aqi"
)

// Theme selects the color ramp and opacity constants.
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// ParseTheme accepts "light" or "dark".
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case Light, Dark:
		return Theme(s), nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Opacity constants per theme.
const (
	LightOpacity = 0.75
	DarkOpacity  = 0.9
)

// Category colors, lowest category first. The light ramp is the EPA palette;
// the dark ramp is brightened so the points read against a dark basemap.
var (
	LightColors = standardColors()
	DarkColors  = []string{"#4cff7a", "#fff44f", "#ffa540", "#ff5a5a", "#c77dff", "#ff4d88"}
)

func standardColors() []string {
	stops, _ := aqi.CategoryStops(aqi.MeasurementAQI)
	colors := make([]string, len(stops))
	for i, stop := range stops {
		colors[i] = aqi.GetCategoryColor(int32(stop))
	}
	return colors
}

// Config names the feature properties and the measurement they carry.
type Config struct {
	Measurement     aqi.Measurement
	TimeProperty    string
	ValueProperty   string
	TimestampLayout string
	CircleRadius    float64
}

// DefaultConfig is the stock PM2.5 point cloud layout.
func DefaultConfig() Config {
	return Config{
		Measurement:     aqi.MeasurementPM25,
		TimeProperty:    "time",
		ValueProperty:   "pm25",
		TimestampLayout: timeline.DefaultTimestampLayout,
		CircleRadius:    4,
	}
}

// Styler turns instants, thresholds and themes into style expressions.
type Styler struct {
	cfg    Config
	domain aqi.Domain
	stops  []float64
}

// NewStyler validates the config against the measurement tables.
func NewStyler(cfg Config) (*Styler, error) {
	domain, err := aqi.DomainFor(cfg.Measurement)
	if err != nil {
		return nil, err
	}
	stops, err := aqi.CategoryStops(cfg.Measurement)
	if err != nil {
		return nil, err
	}
	if len(stops) != len(LightColors) || len(stops) != len(DarkColors) {
		return nil, fmt.Errorf("measurement %s has %d categories, ramps have %d", cfg.Measurement, len(stops), len(LightColors))
	}
	if cfg.TimeProperty == "" || cfg.ValueProperty == "" {
		return nil, fmt.Errorf("time and value property names must be set")
	}
	if cfg.TimestampLayout == "" {
		cfg.TimestampLayout = timeline.DefaultTimestampLayout
	}
	return &Styler{cfg: cfg, domain: domain, stops: stops}, nil
}

// Domain is the valid range of the measurement.
func (s *Styler) Domain() aqi.Domain {
	return s.domain
}

// ClampThreshold limits a user threshold to the measurement domain.
func (s *Styler) ClampThreshold(v float64) float64 {
	return s.domain.Clamp(v)
}

// Timestamp formats an instant the way features store it.
func (s *Styler) Timestamp(inst timeline.ResolvedInstant) string {
	return inst.Timestamp(s.cfg.TimestampLayout)
}

// value coalesces missing or non-numeric measurements to the sentinel so the
// threshold comparison fails instead of erroring.
func (s *Styler) value() renderer.Expression {
	sentinel := s.domain.Sentinel()
	return renderer.Expression{"coalesce",
		renderer.Expression{"to-number", renderer.Expression{"get", s.cfg.ValueProperty}, sentinel},
		sentinel,
	}
}

// Filter keeps features stamped with the instant's hour whose measurement is
// at or above the threshold.
func (s *Styler) Filter(inst timeline.ResolvedInstant, threshold float64) renderer.Expression {
	return renderer.Expression{"all",
		renderer.Expression{"==", renderer.Expression{"get", s.cfg.TimeProperty}, s.Timestamp(inst)},
		renderer.Expression{">=", s.value(), s.ClampThreshold(threshold)},
	}
}

// ColorRamp interpolates the theme's category colors over the measurement.
func (s *Styler) ColorRamp(theme Theme) renderer.Expression {
	colors := LightColors
	if theme == Dark {
		colors = DarkColors
	}
	expr := renderer.Expression{"interpolate", renderer.Expression{"linear"}, s.value()}
	for i, stop := range s.stops {
		expr = append(expr, stop, colors[i])
	}
	return expr
}

// Category names the AQI category a measurement value falls in.
func (s *Styler) Category(v float64) string {
	return aqi.CategoryFor(s.cfg.Measurement, v)
}

// Opacity returns the circle opacity for a visible layer.
func (s *Styler) Opacity(theme Theme) float64 {
	if theme == Dark {
		return DarkOpacity
	}
	return LightOpacity
}

// Layer builds the circle layer for a chunk. It implements
// scheduler.LayerFactory; the scheduler hides it before adding.
func (s *Styler) Layer(c catalog.Chunk, sourceID, layerID string) renderer.LayerDescriptor {
	return renderer.LayerDescriptor{
		ID:          layerID,
		Type:        "circle",
		Source:      sourceID,
		SourceLayer: c.SourceLayer,
		Paint: map[string]any{
			renderer.PropCircleRadius: s.cfg.CircleRadius,
			renderer.PropCircleBlur:   0.2,
		},
	}
}
