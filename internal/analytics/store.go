// Package analytics persists per-streamer channel point series and event
// annotations to a local SQLite database, powering the dashboard charts.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veikko/twitch-harvester/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS points_series (
	streamer TEXT NOT NULL,
	ts       INTEGER NOT NULL,
	points   INTEGER NOT NULL,
	event    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_points_series_streamer_ts ON points_series (streamer, ts);

CREATE TABLE IF NOT EXISTS annotations (
	streamer TEXT NOT NULL,
	ts       INTEGER NOT NULL,
	event    TEXT NOT NULL,
	text     TEXT NOT NULL,
	color    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_annotations_streamer_ts ON annotations (streamer, ts);
`

// SeriesPoint is one balance sample for a streamer.
type SeriesPoint struct {
	TS     int64  `json:"ts"`
	Points int    `json:"points"`
	Event  string `json:"event,omitempty"`
}

// Annotation marks a notable event on a streamer's chart.
type Annotation struct {
	TS    int64  `json:"ts"`
	Event string `json:"event"`
	Text  string `json:"text"`
	Color string `json:"color,omitempty"`
}

// Store writes and reads analytics rows. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (creating if needed) the analytics database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating analytics directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening analytics database: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under write bursts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating analytics schema: %w", err)
	}

	log.Debug("Analytics store opened", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordPoints appends a balance sample for a streamer. event carries the
// reason code when the sample came from a points message.
func (s *Store) RecordPoints(ctx context.Context, streamer string, points int, event string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO points_series (streamer, ts, points, event) VALUES (?, ?, ?, ?)`,
		streamer, time.Now().Unix(), points, event)
	if err != nil {
		return fmt.Errorf("recording points for %s: %w", streamer, err)
	}
	return nil
}

// Annotate stores a chart annotation for a streamer.
func (s *Store) Annotate(ctx context.Context, streamer, event, text, color string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (streamer, ts, event, text, color) VALUES (?, ?, ?, ?, ?)`,
		streamer, time.Now().Unix(), event, text, color)
	if err != nil {
		return fmt.Errorf("annotating %s: %w", streamer, err)
	}
	return nil
}

// Series returns the balance samples for a streamer since the given time,
// oldest first.
func (s *Store) Series(ctx context.Context, streamer string, since time.Time) ([]SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, points, event FROM points_series WHERE streamer = ? AND ts >= ? ORDER BY ts`,
		streamer, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying series for %s: %w", streamer, err)
	}
	defer rows.Close()

	var out []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.TS, &p.Points, &p.Event); err != nil {
			return nil, fmt.Errorf("scanning series row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Annotations returns the annotations for a streamer since the given time,
// oldest first.
func (s *Store) Annotations(ctx context.Context, streamer string, since time.Time) ([]Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, event, text, color FROM annotations WHERE streamer = ? AND ts >= ? ORDER BY ts`,
		streamer, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying annotations for %s: %w", streamer, err)
	}
	defer rows.Close()

	var out []Annotation
	for rows.Next() {
		var a Annotation
		if err := rows.Scan(&a.TS, &a.Event, &a.Text, &a.Color); err != nil {
			return nil, fmt.Errorf("scanning annotation row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
