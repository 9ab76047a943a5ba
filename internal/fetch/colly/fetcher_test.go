package collyfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagevault/pagevault/internal/capture"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	const page = "<html><body>current prices</body></html>"
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "pagevault-test/1.0", Timeout: 5 * time.Second})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, page, string(body))
	require.Equal(t, "pagevault-test/1.0", gotUA)
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)

	var fe *capture.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, srv.URL, fe.URL)
}

func TestFetchRejectsBadURLs(t *testing.T) {
	t.Parallel()

	f := New(Config{})

	var fe *capture.FetchError
	_, err := f.Fetch(context.Background(), "ftp://example.com")
	require.ErrorAs(t, err, &fe)

	_, err = f.Fetch(context.Background(), "https://")
	require.ErrorAs(t, err, &fe)

	_, err = f.Fetch(context.Background(), "not a url")
	require.ErrorAs(t, err, &fe)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
