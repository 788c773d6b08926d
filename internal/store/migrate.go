package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Migration is one numbered schema change on disk.
type Migration struct {
	Version  string
	UpPath   string
	DownPath string
	Applied  bool
}

func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return err
	}

	files, err := listMigrationFiles(migrationsDir, ".up.sql")
	if err != nil {
		return err
	}

	for _, file := range files {
		version := filepath.Base(file)
		if migrated, err := isMigrated(ctx, db, version); err != nil {
			return err
		} else if migrated {
			continue
		}

		contents, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		err = inTx(ctx, db, "migration "+version, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// RollbackMigrations runs the down file of the newest steps applied
// migrations, newest first.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string, steps int) (int, error) {
	status, err := MigrationStatus(ctx, db, migrationsDir)
	if err != nil {
		return 0, err
	}

	rolledBack := 0
	for i := len(status) - 1; i >= 0 && rolledBack < steps; i-- {
		m := status[i]
		if !m.Applied {
			continue
		}
		if m.DownPath == "" {
			return rolledBack, fmt.Errorf("migration %s has no down file", m.Version)
		}
		contents, err := os.ReadFile(m.DownPath)
		if err != nil {
			return rolledBack, fmt.Errorf("read down migration %s: %w", m.Version, err)
		}
		upName := filepath.Base(m.UpPath)
		err = inTx(ctx, db, "rollback "+m.Version, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
				return fmt.Errorf("execute down migration %s: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, upName); err != nil {
				return fmt.Errorf("unrecord migration %s: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return rolledBack, err
		}
		rolledBack++
	}
	return rolledBack, nil
}

// MigrationStatus lists migrations on disk in order with their applied flag.
func MigrationStatus(ctx context.Context, db *sql.DB, migrationsDir string) ([]Migration, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	ups, err := listMigrationFiles(migrationsDir, ".up.sql")
	if err != nil {
		return nil, err
	}
	downs, err := listMigrationFiles(migrationsDir, ".down.sql")
	if err != nil {
		return nil, err
	}
	downByVersion := make(map[string]string, len(downs))
	for _, path := range downs {
		downByVersion[strings.TrimSuffix(filepath.Base(path), ".down.sql")] = path
	}

	out := make([]Migration, 0, len(ups))
	for _, path := range ups {
		version := strings.TrimSuffix(filepath.Base(path), ".up.sql")
		applied, err := isMigrated(ctx, db, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{
			Version:  version,
			UpPath:   path,
			DownPath: downByVersion[version],
			Applied:  applied,
		})
	}
	return out, nil
}

func listMigrationFiles(migrationsDir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, suffix) {
			files = append(files, filepath.Join(migrationsDir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func inTx(ctx context.Context, db *sql.DB, label string, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", label, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
