package capture

import (
	"errors"
	"fmt"
)

// ErrSequenceExhausted signals that a (url_code, prefix) counter passed 999
// under the error overflow policy.
var ErrSequenceExhausted = errors.New("sequence counter exhausted")

// FetchError means the fetch collaborator failed. No identifier is
// consumed and no record is written.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigurationError means the registry or counter storage is missing or
// unreachable. Fatal to the triggering event only.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IdentifierRangeError means a run slot or sequence value fell outside the
// representable identifier range.
type IdentifierRangeError struct {
	Field string
	Value int
}

func (e *IdentifierRangeError) Error() string {
	return fmt.Sprintf("identifier %s %d out of range", e.Field, e.Value)
}

// LocalWriteError means the authoritative store rejected a commit. The
// event aborts and the failure is surfaced prominently.
type LocalWriteError struct {
	Err error
}

func (e *LocalWriteError) Error() string {
	return fmt.Sprintf("local write: %v", e.Err)
}

func (e *LocalWriteError) Unwrap() error { return e.Err }

// RemoteWriteError means the mirror write failed. Non-fatal: the local
// record stands and no retry is attempted.
type RemoteWriteError struct {
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote write: %v", e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }
