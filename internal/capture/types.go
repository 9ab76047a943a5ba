// Package capture defines core types shared across subsystems.
package capture

import "time"

// SchemaVersion is stamped onto every record at write time so future
// readers can tell which layout a row was written under.
const SchemaVersion = 1

// Category classifies what kind of scrape produced a capture.
type Category string

// Capture categories persisted in the scrape_type column.
const (
	CategoryPrimary Category = "primary"
	CategoryBackup  Category = "backup"
	CategoryManual  Category = "manual"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPrimary, CategoryBackup, CategoryManual:
		return true
	}
	return false
}

// Record is one archived capture of a page. Once committed it is never
// mutated or deleted.
type Record struct {
	ID                  int64     `json:"id"`
	CaptureID           string    `json:"capture_identifier"`
	URL                 string    `json:"url"`
	CapturedAt          time.Time `json:"captured_at"`
	Category            Category  `json:"scrape_category"`
	HTML                string    `json:"-"`
	IdenticalToPrevious bool      `json:"identical_to_previous"`
	SchemaVersion       int       `json:"schema_version"`
}

// PendingCapture holds everything known about a capture before the local
// store binds the url code and sequence inside its transaction.
type PendingCapture struct {
	URL                 string
	Category            Category
	CapturedAt          time.Time
	HTML                string
	IdenticalToPrevious bool
	SchemaVersion       int
}

// SinkStatus describes the outcome of a write against one sink.
type SinkStatus string

// Per-sink write outcomes.
const (
	SinkOK      SinkStatus = "ok"
	SinkFailed  SinkStatus = "failed"
	SinkSkipped SinkStatus = "skipped"
)

// WriteOutcome reports how a dual-sink commit went. Local failure aborts
// the event; remote failure is informational only.
type WriteOutcome struct {
	Local     SinkStatus `json:"local"`
	Remote    SinkStatus `json:"remote"`
	RemoteErr error      `json:"-"`
}
