// Package sqlite implements the authoritative local store on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/pagevault/pagevault/internal/capture"
)

const schema = `
CREATE TABLE IF NOT EXISTS scraped_pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	capture_uuid TEXT UNIQUE NOT NULL,
	url TEXT NOT NULL,
	scrape_timestamp TEXT NOT NULL,
	scrape_type TEXT NOT NULL,
	html_content TEXT NOT NULL,
	identical_match INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_scraped_pages_url_ts
	ON scraped_pages(url, scrape_timestamp DESC, id DESC);

CREATE TABLE IF NOT EXISTS sequential_counters (
	url_code TEXT NOT NULL,
	prefix_char TEXT NOT NULL,
	last_sequence INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (url_code, prefix_char)
);

CREATE TABLE IF NOT EXISTS url_codes (
	url TEXT PRIMARY KEY,
	code TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_prefix_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_prefix TEXT NOT NULL
);
`

// Store implements capture.LocalStore using modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and configures WAL
// mode. The single-writer assumption holds for this process; the pragmas
// guard against stray readers, not concurrent orchestrators.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &capture.ConfigurationError{Reason: "open local store", Err: err}
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &capture.ConfigurationError{Reason: fmt.Sprintf("exec %s", pragma), Err: err}
		}
	}
	return &Store{db: db}, nil
}

// Init creates the tables if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &capture.ConfigurationError{Reason: "create local schema", Err: err}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CommitCapture binds the url code and next sequence, assembles the
// identifier, and inserts the record in one transaction. On any failure
// the transaction rolls back, retaining no counter or registry mutation.
func (s *Store) CommitCapture(ctx context.Context, pending capture.PendingCapture, asm capture.Assembler) (capture.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return capture.Record{}, &capture.LocalWriteError{Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	code, err := ensureCode(ctx, tx, pending.URL)
	if err != nil {
		return capture.Record{}, err
	}
	seq, err := nextSequence(ctx, tx, code, asm.Prefix())
	if err != nil {
		return capture.Record{}, err
	}
	captureID, err := asm.Assemble(code, seq)
	if err != nil {
		return capture.Record{}, err
	}

	version := pending.SchemaVersion
	if version == 0 {
		version = capture.SchemaVersion
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO scraped_pages (capture_uuid, url, scrape_timestamp, scrape_type, html_content, identical_match, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		captureID,
		pending.URL,
		pending.CapturedAt.UTC().Format(time.RFC3339Nano),
		string(pending.Category),
		pending.HTML,
		boolToInt(pending.IdenticalToPrevious),
		version,
	)
	if err != nil {
		return capture.Record{}, &capture.LocalWriteError{Err: fmt.Errorf("insert capture %s: %w", captureID, err)}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return capture.Record{}, &capture.LocalWriteError{Err: fmt.Errorf("last insert id: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return capture.Record{}, &capture.LocalWriteError{Err: fmt.Errorf("commit: %w", err)}
	}

	return capture.Record{
		ID:                  id,
		CaptureID:           captureID,
		URL:                 pending.URL,
		CapturedAt:          pending.CapturedAt.UTC(),
		Category:            pending.Category,
		HTML:                pending.HTML,
		IdenticalToPrevious: pending.IdenticalToPrevious,
		SchemaVersion:       version,
	}, nil
}

// LatestCapture returns the most recent record for url, ties broken by
// highest surrogate key.
func (s *Store) LatestCapture(ctx context.Context, url string) (capture.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, capture_uuid, url, scrape_timestamp, scrape_type, html_content, identical_match, version
		FROM scraped_pages
		WHERE url = ?
		ORDER BY scrape_timestamp DESC, id DESC
		LIMIT 1`, url)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return capture.Record{}, false, nil
	}
	if err != nil {
		return capture.Record{}, false, fmt.Errorf("latest capture for %s: %w", url, err)
	}
	return rec, true, nil
}

// CodeFor returns the stable two-letter code for url, allocating one on
// first sight.
func (s *Store) CodeFor(ctx context.Context, url string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &capture.ConfigurationError{Reason: "begin registry tx", Err: err}
	}
	defer tx.Rollback()

	code, err := ensureCode(ctx, tx, url)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", &capture.ConfigurationError{Reason: "commit registry tx", Err: err}
	}
	return code, nil
}

// NextSequence issues the next counter value for (urlCode, prefix).
func (s *Store) NextSequence(ctx context.Context, urlCode string, prefix byte) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &capture.ConfigurationError{Reason: "begin counter tx", Err: err}
	}
	defer tx.Rollback()

	seq, err := nextSequence(ctx, tx, urlCode, prefix)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &capture.ConfigurationError{Reason: "commit counter tx", Err: err}
	}
	return seq, nil
}

// FlipManualPrefix flips the persisted manual prefix and returns the
// prefix to use for this run. The state defaults to M so a fresh store
// yields T.
func (s *Store) FlipManualPrefix(ctx context.Context) (byte, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &capture.ConfigurationError{Reason: "begin prefix tx", Err: err}
	}
	defer tx.Rollback()

	last := "M"
	err = tx.QueryRowContext(ctx, `SELECT last_prefix FROM manual_prefix_state WHERE id = 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, &capture.ConfigurationError{Reason: "read manual prefix", Err: err}
	}

	next := "T"
	if last == "T" {
		next = "M"
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO manual_prefix_state (id, last_prefix) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET last_prefix = excluded.last_prefix`, next)
	if err != nil {
		return 0, &capture.ConfigurationError{Reason: "persist manual prefix", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &capture.ConfigurationError{Reason: "commit prefix tx", Err: err}
	}
	return next[0], nil
}

// Summary reports archive totals for the ops status endpoint.
func (s *Store) Summary(ctx context.Context) (total int64, lastAt time.Time, err error) {
	var last sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(scrape_timestamp) FROM scraped_pages`).Scan(&total, &last)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("summarize captures: %w", err)
	}
	if last.Valid {
		lastAt, err = time.Parse(time.RFC3339Nano, last.String)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse last capture timestamp: %w", err)
		}
	}
	return total, lastAt, nil
}

func scanRecord(row *sql.Row) (capture.Record, error) {
	var (
		rec       capture.Record
		ts        string
		category  string
		identical int
	)
	if err := row.Scan(&rec.ID, &rec.CaptureID, &rec.URL, &ts, &category, &rec.HTML, &identical, &rec.SchemaVersion); err != nil {
		return capture.Record{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return capture.Record{}, fmt.Errorf("parse scrape_timestamp %q: %w", ts, err)
	}
	rec.CapturedAt = at
	rec.Category = capture.Category(category)
	rec.IdenticalToPrevious = identical != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
