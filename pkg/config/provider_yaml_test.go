package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseYAMLAppliesDefaults(t *testing.T) {
	doc := []byte(`
catalog:
  window:
    days: 2
    hours-per-chunk: 6
style:
  measurement: aqi
  theme: auto
  center:
    latitude: 45.5
    longitude: -122.6
`)
	cfg, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}

	if cfg.Catalog.Window == nil || cfg.Catalog.Window.Days != 2 || cfg.Catalog.Window.HoursPerChunk != 6 {
		t.Errorf("window = %+v", cfg.Catalog.Window)
	}
	if cfg.Catalog.TileURLTemplate != DefaultTileURLTemplate {
		t.Errorf("tile template = %q", cfg.Catalog.TileURLTemplate)
	}
	if *cfg.Scheduler.Lookahead != DefaultLookahead || *cfg.Scheduler.Lookbehind != DefaultLookbehind || cfg.Scheduler.Budget != DefaultBudget {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Style.ValueProperty != "aqi" {
		t.Errorf("value property = %q, want measurement name", cfg.Style.ValueProperty)
	}
	if cfg.Style.Center != (PointData{Lat: 45.5, Lon: -122.6}) {
		t.Errorf("center = %+v", cfg.Style.Center)
	}
	if cfg.Playback.Mode != DefaultPlaybackMode || cfg.Playback.Speed != DefaultSpeed {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestParseYAMLChunks(t *testing.T) {
	doc := []byte(`
catalog:
  tile-url-template: "https://tiles.example.com/{chunk}/{z}/{x}/{y}.pbf"
  chunks:
    - id: aq_2024-07-01_a
      date: "2024-07-01"
      start-hour: 0
      end-hour: 11
    - id: aq_2024-07-01_b
      layer: pm
      date: "2024-07-01"
      start-hour: 12
      end-hour: 23
scheduler:
  lookahead: 2
  budget: 6
`)
	cfg, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if len(cfg.Catalog.Chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(cfg.Catalog.Chunks))
	}
	if got := cfg.Catalog.Chunks[0].Layer; got != "aq_2024-07-01_a" {
		t.Errorf("default layer = %q, want chunk id", got)
	}
	if got := cfg.Catalog.Chunks[1]; got.Layer != "pm" || got.StartHour != 12 || got.EndHour != 23 {
		t.Errorf("chunk = %+v", got)
	}
	if *cfg.Scheduler.Lookahead != 2 || *cfg.Scheduler.Lookbehind != DefaultLookbehind || cfg.Scheduler.Budget != 6 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no catalog", "style:\n  measurement: pm25\n"},
		{"unknown key", "catalog:\n  window:\n    days: 1\n  colour: red\n"},
		{"zero window days", "catalog:\n  window:\n    hours-per-chunk: 6\n"},
		{"bad port", "catalog:\n  window:\n    days: 1\nserver:\n  port: 70000\n"},
		{"cert without key", "catalog:\n  window:\n    days: 1\nserver:\n  cert: a.pem\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseYAML([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseYAMLSchedulerDefaultsPerField(t *testing.T) {
	tests := []struct {
		name           string
		scheduler      string
		wantLookahead  int
		wantLookbehind int
		wantBudget     int
	}{
		{"lookahead only", "scheduler:\n  lookahead: 6\n", 6, DefaultLookbehind, DefaultBudget},
		{"lookbehind only", "scheduler:\n  lookbehind: 2\n", DefaultLookahead, 2, DefaultBudget},
		{"budget only", "scheduler:\n  budget: 20\n", DefaultLookahead, DefaultLookbehind, 20},
		{"explicit zeros", "scheduler:\n  lookahead: 0\n  lookbehind: 0\n", 0, 0, DefaultBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "catalog:\n  window:\n    days: 2\n" + tt.scheduler
			cfg, err := ParseYAML([]byte(doc))
			if err != nil {
				t.Fatalf("ParseYAML: %v", err)
			}
			s := cfg.Scheduler
			if s.Lookahead == nil || s.Lookbehind == nil {
				t.Fatalf("scheduler = %+v, want both windows set", s)
			}
			if *s.Lookahead != tt.wantLookahead || *s.Lookbehind != tt.wantLookbehind || s.Budget != tt.wantBudget {
				t.Errorf("lookahead=%d lookbehind=%d budget=%d, want %d/%d/%d",
					*s.Lookahead, *s.Lookbehind, s.Budget, tt.wantLookahead, tt.wantLookbehind, tt.wantBudget)
			}
		})
	}
}

func TestYAMLProviderReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("catalog:\n  window:\n    days: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewYAMLProvider(path)
	defer p.Close()
	if !p.IsReadOnly() {
		t.Error("YAML provider should be read-only")
	}

	catalog, err := p.GetCatalog()
	if err != nil {
		t.Fatalf("GetCatalog: %v", err)
	}
	if catalog.Window.Days != 1 {
		t.Errorf("days = %d, want 1", catalog.Window.Days)
	}

	if err := os.WriteFile(path, []byte("catalog:\n  window:\n    days: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Catalog.Window.Days != 3 {
		t.Errorf("days after reload = %d, want 3", cfg.Catalog.Window.Days)
	}
}

func TestYAMLProviderMissingFile(t *testing.T) {
	p := NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := p.LoadConfig(); err == nil {
		t.Error("expected error for missing file")
	}
}
