package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Migrate applies migrations and optional seed files.
// It creates a `schema_migrations` table to track applied migrations and applies
// any SQL files under `migrations/` that have not yet been recorded, each in its
// own transaction. Seed files under `seed/` named `phase_<n>.schema.json` are
// stored as default content schemas without overwriting existing rows.
func Migrate(ctx context.Context, d *DB, migrationFS fs.FS, seedFS fs.FS) error {
	// ensure migrations table exists
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	migDir := "migrations"

	entries, err := fs.ReadDir(migrationFS, migDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// collect .sql files and sort
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, fname := range files {
		// use filename (without extension) as migration version key
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}

		err = d.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(b)); err != nil {
				return fmt.Errorf("exec migration %s: %w", fname, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, strftime('%s','now'))`, version); err != nil {
				return fmt.Errorf("record migration %s: %w", fname, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		d.logger.Info("migration applied", "version", version)
	}

	if seedFS == nil {
		return nil
	}
	return seedPhaseSchemas(ctx, d, seedFS)
}

func seedPhaseSchemas(ctx context.Context, d *DB, seedFS fs.FS) error {
	entries, err := fs.ReadDir(seedFS, "seed")
	if err != nil {
		// seed files are optional
		return nil
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "phase_") || !strings.HasSuffix(name, ".schema.json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "phase_"), ".schema.json"))
		if err != nil {
			return fmt.Errorf("seed file %s: bad phase number: %w", name, err)
		}
		b, err := fs.ReadFile(seedFS, path.Join("seed", name))
		if err != nil {
			return fmt.Errorf("read seed %s: %w", name, err)
		}
		if _, err := d.Exec(ctx, `INSERT OR IGNORE INTO phase_schemas (phase_number, description, schema_json, created, updated) VALUES (?, ?, ?, strftime('%s','now')*1000, strftime('%s','now')*1000)`, n, "default schema", string(b)); err != nil {
			return fmt.Errorf("seed schema %s: %w", name, err)
		}
	}

	return nil
}
