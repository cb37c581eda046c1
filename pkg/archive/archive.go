// Package archive persists fetched historical years in SQLite so that repeated
// model training for nearby days and restarts do not hit the upstream
// climate API again. Each row holds one (source, location, year) series as
// gzip-compressed JSON.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HatiCode/weatherdash/pkg/weather"
)

// Archive is a SQLite-backed store of yearly observation series.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one archived year.
type Entry struct {
	Source       string
	Year         int
	Location     weather.Location
	FetchedAt    time.Time
	PayloadHash  string
	Observations []weather.Observation
}

// SourceStats summarizes the archive contents of one source.
type SourceStats struct {
	Source         string `json:"source"`
	Years          int    `json:"years"`
	Observations   int    `json:"observations"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
}

// Open opens (or creates) the database at path, configures it for a single
// writer and applies migrations. Use ":memory:" for an ephemeral archive.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	a := New(db, logger)
	if err := a.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return a, nil
}

// New wraps an already opened database. Call Migrate before use.
func New(db *sql.DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{db: db, logger: logger}
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// roundCoord keys locations at roughly 10 m resolution.
func roundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Put stores the series of one year fetched at fetchedAt, replacing any
// previous entry.
func (a *Archive) Put(ctx context.Context, source string, year int, loc weather.Location, fetchedAt time.Time, obs []weather.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO year_series (source, lat, lon, year, fetched_at, payload_compressed, payload_hash, observations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, lat, lon, year) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			observations = excluded.observations
	`, source, roundCoord(loc.Lat), roundCoord(loc.Lon), year, fetchedAt.UTC().Unix(),
		buf.Bytes(), hex.EncodeToString(hash[:]), len(obs))
	if err != nil {
		return fmt.Errorf("insert year series: %w", err)
	}
	return nil
}

// Get returns the archived series of one year, if present.
func (a *Archive) Get(ctx context.Context, source string, year int, loc weather.Location) (Entry, bool, error) {
	var (
		fetchedAt  int64
		compressed []byte
		hash       string
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT fetched_at, payload_compressed, payload_hash
		FROM year_series
		WHERE source = ? AND lat = ? AND lon = ? AND year = ?
	`, source, roundCoord(loc.Lat), roundCoord(loc.Lon), year).Scan(&fetchedAt, &compressed, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("query year series: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Entry{}, false, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return Entry{}, false, fmt.Errorf("decompress payload: %w", err)
	}

	var obs []weather.Observation
	if err := json.Unmarshal(payload, &obs); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal observations: %w", err)
	}

	return Entry{
		Source:       source,
		Year:         year,
		Location:     loc,
		FetchedAt:    time.Unix(fetchedAt, 0).UTC(),
		PayloadHash:  hash,
		Observations: obs,
	}, true, nil
}

// Stats returns per-source row counts and compressed sizes.
func (a *Archive) Stats(ctx context.Context) ([]SourceStats, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT source, COUNT(*), COALESCE(SUM(observations), 0), COALESCE(SUM(LENGTH(payload_compressed)), 0)
		FROM year_series
		GROUP BY source
		ORDER BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.Source, &s.Years, &s.Observations, &s.TotalSizeBytes); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
