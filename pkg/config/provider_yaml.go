package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string

	mu     sync.Mutex
	config *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// Filename returns the path of the YAML file
func (y *YAMLProvider) Filename() string {
	return y.filename
}

// LoadConfig (re)reads the YAML file. Every call reads the file again so a
// changed catalog is picked up.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}
	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.mu.Lock()
	y.config = config
	y.mu.Unlock()
	return config, nil
}

// ParseYAML parses, defaults and validates a YAML document
func ParseYAML(data []byte) (*ConfigData, error) {
	var yamlConfig ConfigYAML
	if err := yaml.UnmarshalStrict(data, &yamlConfig); err != nil {
		return nil, err
	}

	config := yamlConfig.toData()
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	y.mu.Lock()
	config := y.config
	y.mu.Unlock()
	if config != nil {
		return config, nil
	}
	return y.LoadConfig()
}

// GetCatalog returns the catalog configuration
func (y *YAMLProvider) GetCatalog() (*CatalogData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Catalog, nil
}

// GetScheduler returns the scheduler configuration
func (y *YAMLProvider) GetScheduler() (*SchedulerData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Scheduler, nil
}

// GetStyle returns the style configuration
func (y *YAMLProvider) GetStyle() (*StyleData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Style, nil
}

// GetPlayback returns the playback configuration
func (y *YAMLProvider) GetPlayback() (*PlaybackData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Playback, nil
}

// GetServer returns the server configuration
func (y *YAMLProvider) GetServer() (*ServerData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Server, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with hyphenated keys
type ConfigYAML struct {
	Catalog   CatalogYAML   `yaml:"catalog"`
	Scheduler SchedulerYAML `yaml:"scheduler,omitempty"`
	Style     StyleYAML     `yaml:"style,omitempty"`
	Playback  PlaybackYAML  `yaml:"playback,omitempty"`
	Server    ServerYAML    `yaml:"server,omitempty"`
}

type CatalogYAML struct {
	Chunks          []ChunkYAML `yaml:"chunks,omitempty"`
	Window          *WindowYAML `yaml:"window,omitempty"`
	TileURLTemplate string      `yaml:"tile-url-template,omitempty"`
}

type ChunkYAML struct {
	ID        string `yaml:"id"`
	Layer     string `yaml:"layer,omitempty"`
	Date      string `yaml:"date"`
	StartHour int    `yaml:"start-hour"`
	EndHour   int    `yaml:"end-hour"`
}

type WindowYAML struct {
	Days          int    `yaml:"days"`
	HoursPerChunk int    `yaml:"hours-per-chunk,omitempty"`
	IDPattern     string `yaml:"id-pattern,omitempty"`
	LayerPattern  string `yaml:"layer-pattern,omitempty"`
}

type SchedulerYAML struct {
	Lookahead         *int `yaml:"lookahead,omitempty"`
	Lookbehind        *int `yaml:"lookbehind,omitempty"`
	Budget            int  `yaml:"budget,omitempty"`
	TransitionDelayMs int  `yaml:"transition-delay-ms,omitempty"`
}

type StyleYAML struct {
	Measurement      string    `yaml:"measurement,omitempty"`
	TimeProperty     string    `yaml:"time-property,omitempty"`
	ValueProperty    string    `yaml:"value-property,omitempty"`
	TimestampLayout  string    `yaml:"timestamp-layout,omitempty"`
	CircleRadius     float64   `yaml:"circle-radius,omitempty"`
	DefaultThreshold float64   `yaml:"default-threshold,omitempty"`
	ThemeMode        string    `yaml:"theme,omitempty"`
	Center           PointYAML `yaml:"center,omitempty"`
}

type PointYAML struct {
	Lat float64 `yaml:"latitude,omitempty"`
	Lon float64 `yaml:"longitude,omitempty"`
}

type PlaybackYAML struct {
	Speed           float64 `yaml:"speed,omitempty"`
	Mode            string  `yaml:"mode,omitempty"`
	FrameIntervalMs int     `yaml:"frame-interval-ms,omitempty"`
}

type ServerYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}

func (c ConfigYAML) toData() *ConfigData {
	config := &ConfigData{
		Catalog: CatalogData{
			TileURLTemplate: c.Catalog.TileURLTemplate,
		},
		Scheduler: SchedulerData{
			Lookahead:         c.Scheduler.Lookahead,
			Lookbehind:        c.Scheduler.Lookbehind,
			Budget:            c.Scheduler.Budget,
			TransitionDelayMs: c.Scheduler.TransitionDelayMs,
		},
		Style: StyleData{
			Measurement:      c.Style.Measurement,
			TimeProperty:     c.Style.TimeProperty,
			ValueProperty:    c.Style.ValueProperty,
			TimestampLayout:  c.Style.TimestampLayout,
			CircleRadius:     c.Style.CircleRadius,
			DefaultThreshold: c.Style.DefaultThreshold,
			ThemeMode:        c.Style.ThemeMode,
			Center: PointData{
				Lat: c.Style.Center.Lat,
				Lon: c.Style.Center.Lon,
			},
		},
		Playback: PlaybackData{
			Speed:           c.Playback.Speed,
			Mode:            c.Playback.Mode,
			FrameIntervalMs: c.Playback.FrameIntervalMs,
		},
		Server: ServerData{
			ListenAddr: c.Server.ListenAddr,
			Port:       c.Server.Port,
			Cert:       c.Server.Cert,
			Key:        c.Server.Key,
			EnableCORS: c.Server.EnableCORS,
		},
	}

	for _, chunk := range c.Catalog.Chunks {
		config.Catalog.Chunks = append(config.Catalog.Chunks, ChunkData{
			ID:        chunk.ID,
			Layer:     chunk.Layer,
			Date:      chunk.Date,
			StartHour: chunk.StartHour,
			EndHour:   chunk.EndHour,
		})
	}
	if w := c.Catalog.Window; w != nil {
		config.Catalog.Window = &WindowData{
			Days:          w.Days,
			HoursPerChunk: w.HoursPerChunk,
			IDPattern:     w.IDPattern,
			LayerPattern:  w.LayerPattern,
		}
	}
	return config
}
