// Package sink commits capture records to the local and remote stores.
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/capture"
)

// Writer persists a capture to both sinks. The local store is
// authoritative and must succeed; the remote store is a best-effort mirror
// with no retry and no rollback.
type Writer struct {
	local  capture.LocalStore
	remote capture.RemoteStore
	logger *zap.Logger
}

// New constructs a Writer. remote may be nil when no remote store is
// configured; the outcome then reports the remote write as skipped.
func New(local capture.LocalStore, remote capture.RemoteStore, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{local: local, remote: remote, logger: logger}
}

// Commit writes pending to the local store first, binding the identifier
// inside the local transaction, then mirrors the committed record to the
// remote store. A local failure aborts the whole operation before any
// remote attempt; a remote failure is logged and absorbed.
func (w *Writer) Commit(ctx context.Context, pending capture.PendingCapture, asm capture.Assembler) (capture.Record, capture.WriteOutcome, error) {
	outcome := capture.WriteOutcome{Local: capture.SinkOK, Remote: capture.SinkSkipped}

	rec, err := w.local.CommitCapture(ctx, pending, asm)
	if err != nil {
		outcome.Local = capture.SinkFailed
		var lwe *capture.LocalWriteError
		if !errors.As(err, &lwe) {
			err = &capture.LocalWriteError{Err: err}
		}
		return capture.Record{}, outcome, err
	}
	capture.TotalCaptures.Inc()
	if rec.IdenticalToPrevious {
		capture.TotalIdenticalCaptures.Inc()
	}

	if w.remote == nil {
		return rec, outcome, nil
	}

	if err := w.remote.InsertCapture(ctx, rec); err != nil {
		outcome.Remote = capture.SinkFailed
		outcome.RemoteErr = &capture.RemoteWriteError{Err: err}
		capture.TotalRemoteWriteFailures.Inc()
		w.logger.Warn("remote mirror write failed; local record stands",
			zap.String("capture_id", rec.CaptureID),
			zap.String("url", rec.URL),
			zap.Error(err),
		)
		return rec, outcome, nil
	}
	outcome.Remote = capture.SinkOK
	return rec, outcome, nil
}
