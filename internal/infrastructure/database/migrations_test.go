package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_100000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"20261001_100000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"20261002_090000_gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"README.md":                        {Data: []byte("ignored")},
		"20261003_000000_orphan.down.sql":  {Data: []byte("SELECT 1;")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"widgets", "gadgets"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	// Idempotent.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestMigrateFailureStopsAtBrokenMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20261001_100000_good.up.sql":  {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20261002_100000_bad.up.sql":   {Data: []byte("CREATE TABLE oops (")},
		"20261003_100000_after.up.sql": {Data: []byte("CREATE TABLE after (id INTEGER);")},
	}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}

	if !tableExists(t, db, "good") {
		t.Error("migration before the failure was not kept")
	}
	if tableExists(t, db, "after") {
		t.Error("migration after the failure was applied")
	}
}

// TestMigrateDown verifies rollback of the latest migration.
func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20261001_100000_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER);")},
		"20261001_100000_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "widgets") {
		t.Error("widgets still exists after MigrateDown()")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("applied = %d, pending = %d, want 0 and 1", len(applied), len(pending))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateDownWithoutDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20261002_090000_gadgets.up.sql": {Data: []byte("CREATE TABLE gadgets (id INTEGER);")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Error("MigrateDown() expected error without down SQL")
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
	if err := db.Migrate(context.Background(), fstest.MapFS{}); err != nil {
		t.Errorf("Migrate(empty) error = %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("LoadMigrations() returned %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != "20261001_100000" || migrations[1].Version != "20261002_090000" {
		t.Errorf("versions = %s, %s; want sorted order", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "widgets" {
		t.Errorf("Name = %q, want %q", migrations[0].Name, "widgets")
	}
	if migrations[0].DownSQL == "" {
		t.Error("DownSQL not loaded for widgets")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"up migration", "20261016_120000_messages.up.sql", "20261016_120000", true, true},
		{"down migration", "20261016_120000_messages.down.sql", "20261016_120000", false, true},
		{"description with underscores", "20261016_120000_add_channel_index.up.sql", "20261016_120000", true, true},
		{"no direction", "20261016_120000_messages.sql", "", false, false},
		{"not sql", "20261016_120000_messages.up.txt", "", false, false},
		{"no version", "messages.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if version != tt.wantVersion || isUp != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.filename, version, isUp, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20261016_120000_messages.up.sql", "messages"},
		{"20261016_120000_add_channel_index.down.sql", "add_channel_index"},
		{"short.up.sql", "short"},
	}

	for _, tt := range tests {
		if got := extractMigrationName(tt.filename); got != tt.want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
