package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/pagevault/pagevault/internal/capture"
)

func TestInsertCaptureInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMirrorStoreWithPool(mock, "scraped_pages")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	rec := capture.Record{
		ID:                  7,
		CaptureID:           "P01AA20240301080000ABCDEFGH001",
		URL:                 "https://example.com/prices",
		CapturedAt:          now,
		Category:            capture.CategoryPrimary,
		HTML:                "<html><body>hi</body></html>",
		IdenticalToPrevious: false,
		SchemaVersion:       1,
	}

	mock.ExpectExec("INSERT INTO scraped_pages").
		WithArgs(
			rec.CaptureID,
			rec.URL,
			rec.CapturedAt,
			"primary",
			rec.HTML,
			false,
			1,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.InsertCapture(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCaptureRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMirrorStoreWithPool(mock, "scraped_pages")
	require.NoError(t, err)

	err = store.InsertCapture(context.Background(), capture.Record{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCapturePropagatesError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMirrorStoreWithPool(mock, "scraped_pages")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO scraped_pages").
		WithArgs(
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
			pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("connection refused"))

	err = store.InsertCapture(context.Background(), capture.Record{CaptureID: "X"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMirrorStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMirrorStoreWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewMirrorStoreWithPool(mock, "pages; DROP TABLE pages")
	require.Error(t, err)
}
