// Package detect flags captures whose content matches the previous capture.
package detect

import (
	"context"
	"fmt"

	"github.com/pagevault/pagevault/internal/capture"
)

// PriorCaptures is the slice of the local store the detector needs.
type PriorCaptures interface {
	LatestCapture(ctx context.Context, url string) (capture.Record, bool, error)
}

// Detector compares newly fetched HTML against the most recent stored
// capture for the same URL.
type Detector struct {
	prior PriorCaptures
}

// New constructs a Detector over the local store.
func New(prior PriorCaptures) *Detector {
	return &Detector{prior: prior}
}

// IsIdentical reports whether html is byte-for-byte equal to the latest
// stored capture for url. It returns false when no prior capture exists.
// Only the local store is consulted.
func (d *Detector) IsIdentical(ctx context.Context, url string, html []byte) (bool, error) {
	rec, ok, err := d.prior.LatestCapture(ctx, url)
	if err != nil {
		return false, fmt.Errorf("load latest capture for %s: %w", url, err)
	}
	if !ok {
		return false, nil
	}
	return rec.HTML == string(html), nil
}
