package migrate

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

var testMigrations = fstest.MapFS{
	"m/001_create_chunks.up.sql":   {Data: []byte(`CREATE TABLE chunks (id TEXT PRIMARY KEY);`)},
	"m/001_create_chunks.down.sql": {Data: []byte(`DROP TABLE chunks;`)},
	"m/002_add_layer.up.sql":       {Data: []byte(`ALTER TABLE chunks ADD COLUMN layer TEXT;`)},
	"m/002_add_layer.down.sql":     {Data: []byte(`ALTER TABLE chunks DROP COLUMN layer;`)},
	"m/README.md":                  {Data: []byte(`ignored`)},
}

func TestGetMigrations(t *testing.T) {
	migs, err := NewFSProvider(testMigrations, "m", "").GetMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(migs) != 2 {
		t.Fatalf("%d migrations, want 2", len(migs))
	}
	if migs[0].Version != 1 || migs[0].Name != "create chunks" || migs[0].Up == "" || migs[0].Down == "" {
		t.Errorf("first migration %+v", migs[0])
	}
}

func TestMigrateUpAndDown(t *testing.T) {
	db := testDB(t)
	m := NewMigrator(db, NewFSProvider(testMigrations, "m", ""), nil)

	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if v, _ := m.CurrentVersion(); v != 2 {
		t.Fatalf("version %d, want 2", v)
	}
	if _, err := db.Exec(`INSERT INTO chunks (id, layer) VALUES ('a', 'b')`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}

	// Running again is a no-op.
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}

	if err := m.MigrateTo(1); err != nil {
		t.Fatalf("MigrateTo(1): %v", err)
	}
	if v, _ := m.CurrentVersion(); v != 1 {
		t.Errorf("version %d after rollback, want 1", v)
	}
	if _, err := db.Exec(`INSERT INTO chunks (id, layer) VALUES ('c', 'd')`); err == nil {
		t.Errorf("layer column survived rollback")
	}
}
