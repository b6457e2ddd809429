package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/chrissnell/aqtimeline/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the database and brings its schema up to date
func NewSQLiteProvider(dbPath string, logger *zap.SugaredLogger) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// Serialize writers and keep ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrate.NewFSProvider(migrationFiles, "migrations", "config_schema_migrations"), logger)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	catalog, err := s.GetCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	config.Catalog = *catalog

	scheduler, err := s.GetScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler config: %w", err)
	}
	config.Scheduler = *scheduler

	style, err := s.GetStyle()
	if err != nil {
		return nil, fmt.Errorf("failed to load style config: %w", err)
	}
	config.Style = *style

	playback, err := s.GetPlayback()
	if err != nil {
		return nil, fmt.Errorf("failed to load playback config: %w", err)
	}
	config.Playback = *playback

	server, err := s.GetServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	config.Server = *server

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetCatalog returns the chunk list and rolling window settings
func (s *SQLiteProvider) GetCatalog() (*CatalogData, error) {
	catalog := &CatalogData{}

	var (
		template                sql.NullString
		days, hoursPerChunk     sql.NullInt64
		idPattern, layerPattern sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT tile_url_template, window_days, window_hours_per_chunk,
		       window_id_pattern, window_layer_pattern
		FROM catalog_settings WHERE id = 1
	`).Scan(&template, &days, &hoursPerChunk, &idPattern, &layerPattern)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query catalog settings: %w", err)
	}
	catalog.TileURLTemplate = template.String
	if days.Valid && days.Int64 > 0 {
		catalog.Window = &WindowData{
			Days:          int(days.Int64),
			HoursPerChunk: int(hoursPerChunk.Int64),
			IDPattern:     idPattern.String,
			LayerPattern:  layerPattern.String,
		}
	}

	chunks, err := s.GetChunks()
	if err != nil {
		return nil, err
	}
	catalog.Chunks = chunks
	return catalog, nil
}

// GetChunks returns the explicit chunk list in timeline order
func (s *SQLiteProvider) GetChunks() ([]ChunkData, error) {
	rows, err := s.db.Query(`
		SELECT id, layer, date, start_hour, end_hour
		FROM catalog_chunks
		ORDER BY date, start_hour
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkData
	for rows.Next() {
		var c ChunkData
		if err := rows.Scan(&c.ID, &c.Layer, &c.Date, &c.StartHour, &c.EndHour); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetScheduler returns the scheduler configuration
func (s *SQLiteProvider) GetScheduler() (*SchedulerData, error) {
	sched := &SchedulerData{}
	var lookahead, lookbehind sql.NullInt64
	err := s.db.QueryRow(`
		SELECT lookahead, lookbehind, budget, transition_delay_ms
		FROM scheduler_config WHERE id = 1
	`).Scan(&lookahead, &lookbehind, &sched.Budget, &sched.TransitionDelayMs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query scheduler config: %w", err)
	}
	if lookahead.Valid {
		sched.Lookahead = IntPtr(int(lookahead.Int64))
	}
	if lookbehind.Valid {
		sched.Lookbehind = IntPtr(int(lookbehind.Int64))
	}
	return sched, nil
}

// GetStyle returns the style configuration
func (s *SQLiteProvider) GetStyle() (*StyleData, error) {
	var (
		measurement, timeProp, valueProp, layout, themeMode sql.NullString
		radius, threshold, lat, lon                         sql.NullFloat64
	)
	err := s.db.QueryRow(`
		SELECT measurement, time_property, value_property, timestamp_layout,
		       circle_radius, default_threshold, theme_mode,
		       center_latitude, center_longitude
		FROM style_config WHERE id = 1
	`).Scan(&measurement, &timeProp, &valueProp, &layout, &radius, &threshold, &themeMode, &lat, &lon)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query style config: %w", err)
	}
	return &StyleData{
		Measurement:      measurement.String,
		TimeProperty:     timeProp.String,
		ValueProperty:    valueProp.String,
		TimestampLayout:  layout.String,
		CircleRadius:     radius.Float64,
		DefaultThreshold: threshold.Float64,
		ThemeMode:        themeMode.String,
		Center:           PointData{Lat: lat.Float64, Lon: lon.Float64},
	}, nil
}

// GetPlayback returns the playback configuration
func (s *SQLiteProvider) GetPlayback() (*PlaybackData, error) {
	var (
		speed    sql.NullFloat64
		mode     sql.NullString
		interval sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT speed, mode, frame_interval_ms FROM playback_config WHERE id = 1
	`).Scan(&speed, &mode, &interval)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query playback config: %w", err)
	}
	return &PlaybackData{
		Speed:           speed.Float64,
		Mode:            mode.String,
		FrameIntervalMs: int(interval.Int64),
	}, nil
}

// GetServer returns the server configuration
func (s *SQLiteProvider) GetServer() (*ServerData, error) {
	var (
		listenAddr, cert, key sql.NullString
		port                  sql.NullInt64
		enableCORS            bool
	)
	err := s.db.QueryRow(`
		SELECT listen_addr, port, cert, key, enable_cors FROM server_config WHERE id = 1
	`).Scan(&listenAddr, &port, &cert, &key, &enableCORS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query server config: %w", err)
	}
	return &ServerData{
		ListenAddr: listenAddr.String,
		Port:       int(port.Int64),
		Cert:       cert.String,
		Key:        key.String,
		EnableCORS: enableCORS,
	}, nil
}

// IsReadOnly returns false since SQLite supports write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Write methods for configuration management

// SaveConfig replaces the stored configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear existing data
	if err := s.clearExistingConfig(tx); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	for _, chunk := range configData.Catalog.Chunks {
		if err := s.insertChunk(tx, &chunk); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}
	if err := s.insertCatalogSettings(tx, &configData.Catalog); err != nil {
		return fmt.Errorf("failed to insert catalog settings: %w", err)
	}

	sched := configData.Scheduler
	if _, err := tx.Exec(`
		INSERT INTO scheduler_config (id, lookahead, lookbehind, budget, transition_delay_ms)
		VALUES (1, ?, ?, ?, ?)
	`, nullInt(sched.Lookahead), nullInt(sched.Lookbehind), sched.Budget, sched.TransitionDelayMs); err != nil {
		return fmt.Errorf("failed to insert scheduler config: %w", err)
	}

	st := configData.Style
	if _, err := tx.Exec(`
		INSERT INTO style_config (id, measurement, time_property, value_property, timestamp_layout,
		                          circle_radius, default_threshold, theme_mode,
		                          center_latitude, center_longitude)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(st.Measurement), nullString(st.TimeProperty), nullString(st.ValueProperty),
		nullString(st.TimestampLayout), nullFloat64(st.CircleRadius), nullFloat64(st.DefaultThreshold),
		nullString(st.ThemeMode), nullFloat64(st.Center.Lat), nullFloat64(st.Center.Lon)); err != nil {
		return fmt.Errorf("failed to insert style config: %w", err)
	}

	pb := configData.Playback
	if _, err := tx.Exec(`
		INSERT INTO playback_config (id, speed, mode, frame_interval_ms) VALUES (1, ?, ?, ?)
	`, nullFloat64(pb.Speed), nullString(pb.Mode), pb.FrameIntervalMs); err != nil {
		return fmt.Errorf("failed to insert playback config: %w", err)
	}

	srv := configData.Server
	if _, err := tx.Exec(`
		INSERT INTO server_config (id, listen_addr, port, cert, key, enable_cors) VALUES (1, ?, ?, ?, ?, ?)
	`, nullString(srv.ListenAddr), srv.Port, nullString(srv.Cert), nullString(srv.Key), srv.EnableCORS); err != nil {
		return fmt.Errorf("failed to insert server config: %w", err)
	}

	// Commit transaction
	return tx.Commit()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx) error {
	queries := []string{
		"DELETE FROM catalog_chunks",
		"DELETE FROM catalog_settings",
		"DELETE FROM scheduler_config",
		"DELETE FROM style_config",
		"DELETE FROM playback_config",
		"DELETE FROM server_config",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertChunk(tx *sql.Tx, chunk *ChunkData) error {
	layer := chunk.Layer
	if layer == "" {
		layer = chunk.ID
	}
	_, err := tx.Exec(`
		INSERT INTO catalog_chunks (id, layer, date, start_hour, end_hour) VALUES (?, ?, ?, ?, ?)
	`, chunk.ID, layer, chunk.Date, chunk.StartHour, chunk.EndHour)
	return err
}

func (s *SQLiteProvider) insertCatalogSettings(tx *sql.Tx, catalog *CatalogData) error {
	var (
		days, hoursPerChunk     int
		idPattern, layerPattern string
	)
	if w := catalog.Window; w != nil {
		days, hoursPerChunk = w.Days, w.HoursPerChunk
		idPattern, layerPattern = w.IDPattern, w.LayerPattern
	}
	_, err := tx.Exec(`
		INSERT INTO catalog_settings (id, tile_url_template, window_days, window_hours_per_chunk,
		                              window_id_pattern, window_layer_pattern)
		VALUES (1, ?, ?, ?, ?, ?)
	`, nullString(catalog.TileURLTemplate), days, hoursPerChunk, nullString(idPattern), nullString(layerPattern))
	return err
}

// AddChunk inserts one chunk into the explicit catalog
func (s *SQLiteProvider) AddChunk(chunk *ChunkData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertChunk(tx, chunk); err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return tx.Commit()
}

// DeleteChunk removes a chunk from the explicit catalog
func (s *SQLiteProvider) DeleteChunk(id string) error {
	result, err := s.db.Exec("DELETE FROM catalog_chunks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chunk %s not found", id)
	}
	return nil
}

// Helper functions for handling nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullFloat64(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
