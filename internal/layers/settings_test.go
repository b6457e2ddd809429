package layers

import (
	"testing"
	"time"

	"github.com/chrissnell/aqtimeline/internal/playback"
	"github.com/chrissnell/aqtimeline/pkg/config"
)

func loadedConfig(t *testing.T, mutate func(*config.ConfigData)) *config.ConfigData {
	t.Helper()
	cfg := &config.ConfigData{
		Catalog: config.CatalogData{Window: &config.WindowData{Days: 1}},
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestSettingsFromConfigDefaults(t *testing.T) {
	s, err := SettingsFromConfig(loadedConfig(t, nil))
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	want := DefaultOptions()
	if s.Options.Scheduler != want.Scheduler {
		t.Errorf("scheduler = %+v, want %+v", s.Options.Scheduler, want.Scheduler)
	}
	if s.Options.Style != want.Style {
		t.Errorf("style = %+v, want %+v", s.Options.Style, want.Style)
	}
	if s.Options.Playback != want.Playback {
		t.Errorf("playback = %+v, want %+v", s.Options.Playback, want.Playback)
	}
	if s.Options.TransitionDelay != want.TransitionDelay {
		t.Errorf("transition delay = %v, want %v", s.Options.TransitionDelay, want.TransitionDelay)
	}
	if s.Options.ThemeMode != ThemeLight || s.Options.Center != want.Center {
		t.Errorf("theme %q center %+v", s.Options.ThemeMode, s.Options.Center)
	}
	if s.FrameInterval != DefaultFrameInterval {
		t.Errorf("frame interval = %v, want %v", s.FrameInterval, DefaultFrameInterval)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.ConfigData)
		check   func(*testing.T, Settings)
		wantErr bool
	}{
		{
			name: "tuned",
			mutate: func(c *config.ConfigData) {
				c.Scheduler = config.SchedulerData{Lookahead: config.IntPtr(2), Lookbehind: config.IntPtr(0), Budget: 6, TransitionDelayMs: 250}
				c.Playback = config.PlaybackData{Speed: 40, Mode: "once", FrameIntervalMs: 33}
				c.Style.ThemeMode = "auto"
			},
			check: func(t *testing.T, s Settings) {
				if s.Options.Scheduler.Lookahead != 2 || s.Options.Scheduler.Lookbehind != 0 || s.Options.Scheduler.Budget != 6 {
					t.Errorf("scheduler = %+v", s.Options.Scheduler)
				}
				if s.Options.TransitionDelay != 250*time.Millisecond {
					t.Errorf("transition delay = %v", s.Options.TransitionDelay)
				}
				if s.Options.Playback.Speed != playback.MaxSpeed || s.Options.Playback.Mode != playback.ModeOnce {
					t.Errorf("playback = %+v", s.Options.Playback)
				}
				if s.Options.ThemeMode != ThemeAuto {
					t.Errorf("theme mode = %q", s.Options.ThemeMode)
				}
				if s.FrameInterval != 33*time.Millisecond {
					t.Errorf("frame interval = %v", s.FrameInterval)
				}
			},
		},
		{
			name:    "bad theme",
			mutate:  func(c *config.ConfigData) { c.Style.ThemeMode = "sepia" },
			wantErr: true,
		},
		{
			name:    "bad playback mode",
			mutate:  func(c *config.ConfigData) { c.Playback.Mode = "bounce" },
			wantErr: true,
		},
		{
			name:    "unknown measurement",
			mutate:  func(c *config.ConfigData) { c.Style.Measurement = "ozone" },
			wantErr: true,
		},
		{
			name:    "budget too small",
			mutate:  func(c *config.ConfigData) { c.Scheduler = config.SchedulerData{Lookahead: config.IntPtr(4), Lookbehind: config.IntPtr(1), Budget: 3} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SettingsFromConfig(loadedConfig(t, tt.mutate))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SettingsFromConfig: %v", err)
			}
			tt.check(t, s)
		})
	}
}
