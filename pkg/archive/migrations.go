package archive

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Year series archive",
		SQL: `
CREATE TABLE IF NOT EXISTS year_series (
    source TEXT NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    year INTEGER NOT NULL,
    fetched_at INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    observations INTEGER NOT NULL,
    PRIMARY KEY (source, lat, lon, year)
);
`,
	},
	{
		Version:     2,
		Description: "Index year series by fetch time",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_year_series_fetched ON year_series(source, fetched_at);`,
	},
}

// Migrate applies every pending schema migration in order.
func (a *Archive) Migrate(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := a.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		a.logger.Info("applying archive migration", "version", m.Version, "description", m.Description)

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC().Unix(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (a *Archive) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// SchemaVersion returns the highest applied migration version.
func (a *Archive) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := a.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
