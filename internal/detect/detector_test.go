package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagevault/pagevault/internal/capture"
)

type fakePrior struct {
	rec capture.Record
	ok  bool
	err error
}

func (f *fakePrior) LatestCapture(context.Context, string) (capture.Record, bool, error) {
	return f.rec, f.ok, f.err
}

func TestIsIdenticalNoPriorCapture(t *testing.T) {
	t.Parallel()

	d := New(&fakePrior{ok: false})
	identical, err := d.IsIdentical(context.Background(), "https://example.com", []byte("<html></html>"))
	require.NoError(t, err)
	require.False(t, identical)
}

func TestIsIdenticalExactMatch(t *testing.T) {
	t.Parallel()

	html := "<html><body>same</body></html>"
	d := New(&fakePrior{rec: capture.Record{HTML: html}, ok: true})

	identical, err := d.IsIdentical(context.Background(), "https://example.com", []byte(html))
	require.NoError(t, err)
	require.True(t, identical)
}

func TestIsIdenticalWhitespaceDiffers(t *testing.T) {
	t.Parallel()

	d := New(&fakePrior{rec: capture.Record{HTML: "<html> </html>"}, ok: true})

	identical, err := d.IsIdentical(context.Background(), "https://example.com", []byte("<html></html>"))
	require.NoError(t, err)
	require.False(t, identical)
}

func TestIsIdenticalStoreError(t *testing.T) {
	t.Parallel()

	d := New(&fakePrior{err: errors.New("db closed")})

	_, err := d.IsIdentical(context.Background(), "https://example.com", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "db closed")
}
