package db_test

import (
	"context"
	"testing"
	"testing/fstest"

	dbfs "github.com/garnizeh/taosdlc/db"
	"github.com/garnizeh/taosdlc/internal/db"
)

// Note: this test uses an in-memory sqlite database to validate idempotent
// behavior of Migrate.
func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	// Run again to ensure idempotency
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 migrations recorded, got %d", count)
	}

	for _, table := range []string{"users", "projects", "project_stakeholders", "phases", "approvals", "ai_interactions", "phase_transitions", "phase_schemas", "jobs"} {
		var name string
		if err := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected %s table exists: %v", table, err)
		}
	}

	var schemas int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM phase_schemas`).Scan(&schemas); err != nil {
		t.Fatalf("count phase_schemas: %v", err)
	}
	if schemas != 7 {
		t.Fatalf("expected 7 seeded phase schemas, got %d", schemas)
	}
}

func TestMigrate_SeedDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := d.Exec(ctx, `INSERT INTO phase_schemas (phase_number, description, schema_json, created, updated) VALUES (1, 'custom', '{"type":"object"}', 0, 0)`); err != nil {
		t.Fatalf("insert custom schema: %v", err)
	}

	seed := fstest.MapFS{
		"seed/phase_1.schema.json": {Data: []byte(`{"type":"array"}`)},
		"seed/phase_2.schema.json": {Data: []byte(`{"type":"object"}`)},
		"seed/readme.txt":          {Data: []byte(`ignored`)},
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, seed); err != nil {
		t.Fatalf("migrate with seed: %v", err)
	}

	var desc string
	if err := d.QueryRow(ctx, `SELECT description FROM phase_schemas WHERE phase_number = 1`).Scan(&desc); err != nil {
		t.Fatalf("read schema 1: %v", err)
	}
	if desc != "custom" {
		t.Fatalf("expected custom schema kept, got %q", desc)
	}

	var cnt int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM phase_schemas`).Scan(&cnt); err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 schemas, got %d", cnt)
	}
}

func TestMigrate_BadSeedName(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer d.Close()

	seed := fstest.MapFS{
		"seed/phase_x.schema.json": {Data: []byte(`{}`)},
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations, seed); err == nil {
		t.Fatalf("expected error for malformed seed file name")
	}
}
