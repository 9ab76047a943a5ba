package capture

import (
	"context"
	"time"
)

// Fetcher retrieves the raw HTML for a URL. Implementations are opaque to
// the core; any failure surfaces as a per-event FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Assembler finalizes a capture identifier once the url code and sequence
// are known. The prefix is fixed up front because it is half of the
// sequence counter key.
type Assembler interface {
	Prefix() byte
	Assemble(urlCode string, seq int) (string, error)
}

// LocalStore is the authoritative sink. It owns records, sequence
// counters, url codes, and the manual prefix state.
type LocalStore interface {
	// Init creates the schema if it does not exist.
	Init(ctx context.Context) error

	// CommitCapture binds a url code and the next sequence for
	// (code, prefix), assembles the identifier, and inserts the record in
	// one transaction. A failure retains no counter or registry mutation.
	CommitCapture(ctx context.Context, pending PendingCapture, asm Assembler) (Record, error)

	// LatestCapture returns the most recent record for url by captured_at,
	// ties broken by highest surrogate key. ok is false when none exists.
	LatestCapture(ctx context.Context, url string) (rec Record, ok bool, err error)

	// CodeFor returns the stable two-letter code for url, allocating the
	// next free code lexicographically on first sight.
	CodeFor(ctx context.Context, url string) (string, error)

	// NextSequence issues the next counter value for (urlCode, prefix),
	// starting at 1. Issued values are never reused.
	NextSequence(ctx context.Context, urlCode string, prefix byte) (int, error)

	// FlipManualPrefix flips the persisted manual prefix state and returns
	// the prefix to use for this manual run. A fresh store yields 'T'.
	FlipManualPrefix(ctx context.Context) (byte, error)

	Close() error
}

// RemoteStore mirrors committed records to the cloud database. It holds no
// counters or registry state and is never consulted to regenerate
// identifiers.
type RemoteStore interface {
	InsertCapture(ctx context.Context, rec Record) error
	Ping(ctx context.Context) error
	Close()
}
