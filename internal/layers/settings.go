package layers

import (
	"fmt"
	"time"

	"github.com/chrissnell/aqtimeline/internal/playback"
	"github.com/chrissnell/aqtimeline/internal/scheduler"
	"github.com/chrissnell/aqtimeline/internal/style"
	"github.com/chrissnell/aqtimeline/pkg/aqi"
	"github.com/chrissnell/aqtimeline/pkg/config"
)

// Settings is everything a new session needs besides the catalog.
type Settings struct {
	Options       Options
	FrameInterval time.Duration
}

// SettingsFromConfig converts a loaded configuration into session settings.
// The configuration is expected to have its defaults applied.
func SettingsFromConfig(cfg *config.ConfigData) (Settings, error) {
	mode, err := ParseThemeMode(cfg.Style.ThemeMode)
	if err != nil {
		return Settings{}, err
	}
	pbMode, err := playback.ParseMode(cfg.Playback.Mode)
	if err != nil {
		return Settings{}, err
	}
	if _, err := aqi.DomainFor(aqi.Measurement(cfg.Style.Measurement)); err != nil {
		return Settings{}, err
	}

	opts := Options{
		Scheduler: scheduler.Config{
			Lookahead:       intOr(cfg.Scheduler.Lookahead, config.DefaultLookahead),
			Lookbehind:      intOr(cfg.Scheduler.Lookbehind, config.DefaultLookbehind),
			Budget:          cfg.Scheduler.Budget,
			TileURLTemplate: cfg.Catalog.TileURLTemplate,
		},
		Style: style.Config{
			Measurement:     aqi.Measurement(cfg.Style.Measurement),
			TimeProperty:    cfg.Style.TimeProperty,
			ValueProperty:   cfg.Style.ValueProperty,
			TimestampLayout: cfg.Style.TimestampLayout,
			CircleRadius:    cfg.Style.CircleRadius,
		},
		Playback: playback.Config{
			Speed: playback.ClampSpeed(cfg.Playback.Speed),
			Mode:  pbMode,
		},
		TransitionDelay:  time.Duration(cfg.Scheduler.TransitionDelayMs) * time.Millisecond,
		DefaultThreshold: cfg.Style.DefaultThreshold,
		ThemeMode:        mode,
		Center:           Center{Lat: cfg.Style.Center.Lat, Lon: cfg.Style.Center.Lon},
	}
	if err := opts.Scheduler.Validate(); err != nil {
		return Settings{}, fmt.Errorf("scheduler: %w", err)
	}
	return Settings{
		Options:       opts,
		FrameInterval: time.Duration(cfg.Playback.FrameIntervalMs) * time.Millisecond,
	}, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
