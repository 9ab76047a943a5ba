package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/capture"
	"github.com/pagevault/pagevault/internal/ident"
	"github.com/pagevault/pagevault/internal/sink"
)

type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *fakeClock) set(at time.Time) {
	c.mu.Lock()
	c.at = at
	c.mu.Unlock()
}

type fakeFetcher struct {
	mu      sync.Mutex
	html    map[string]string
	failFor map[string]error
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.failFor[url]; ok {
		return nil, err
	}
	if html, ok := f.html[url]; ok {
		return []byte(html), nil
	}
	return []byte("<html><body>" + url + "</body></html>"), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDetector struct {
	identical bool
	err       error
}

func (d *fakeDetector) IsIdentical(context.Context, string, []byte) (bool, error) {
	return d.identical, d.err
}

// memStore is an in-memory capture.LocalStore.
type memStore struct {
	mu      sync.Mutex
	records []capture.Record
	seq     map[string]int
	prefix  byte
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{seq: make(map[string]int), prefix: 'M'}
}

func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) Close() error               { return nil }

func (s *memStore) CommitCapture(_ context.Context, pending capture.PendingCapture, asm capture.Assembler) (capture.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("AA-%c", asm.Prefix())
	s.seq[key]++
	id, err := asm.Assemble("AA", s.seq[key])
	if err != nil {
		s.seq[key]--
		return capture.Record{}, &capture.LocalWriteError{Err: err}
	}
	s.nextID++
	rec := capture.Record{
		ID:                  s.nextID,
		CaptureID:           id,
		URL:                 pending.URL,
		CapturedAt:          pending.CapturedAt,
		Category:            pending.Category,
		HTML:                pending.HTML,
		IdenticalToPrevious: pending.IdenticalToPrevious,
		SchemaVersion:       pending.SchemaVersion,
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *memStore) LatestCapture(_ context.Context, url string) (capture.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].URL == url {
			return s.records[i], true, nil
		}
	}
	return capture.Record{}, false, nil
}

func (s *memStore) CodeFor(context.Context, string) (string, error) { return "AA", nil }

func (s *memStore) NextSequence(_ context.Context, code string, prefix byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s-%c", code, prefix)
	s.seq[key]++
	return s.seq[key], nil
}

func (s *memStore) FlipManualPrefix(context.Context) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefix == 'M' {
		s.prefix = 'T'
	} else {
		s.prefix = 'M'
	}
	return s.prefix, nil
}

func (s *memStore) captured() []capture.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capture.Record(nil), s.records...)
}

type orchFixture struct {
	orch    *Orchestrator
	clock   *fakeClock
	fetcher *fakeFetcher
	store   *memStore
}

func newFixture(t *testing.T, cfg Config) *orchFixture {
	t.Helper()
	clock := &fakeClock{at: time.Date(2024, 3, 1, 8, 0, 30, 0, time.UTC)}
	fetcher := &fakeFetcher{failFor: map[string]error{}}
	store := newMemStore()

	gen, err := ident.New(clock, store, ident.Config{})
	require.NoError(t, err)

	writer := sink.New(store, nil, zap.NewNop())
	orch, err := New(cfg, fetcher, gen, &fakeDetector{}, writer, clock, zap.NewNop())
	require.NoError(t, err)
	return &orchFixture{orch: orch, clock: clock, fetcher: fetcher, store: store}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, &fakeFetcher{}, nil, &fakeDetector{}, nil, &fakeClock{}, nil)
	require.Error(t, err)

	_, err = New(Config{
		Targets: []string{"https://example.com"},
		Slots:   []Slot{{Category: capture.CategoryPrimary, RunSlot: 10, Hour: 8}},
	}, &fakeFetcher{}, nil, &fakeDetector{}, nil, &fakeClock{}, nil)
	require.Error(t, err)
}

func TestScrapeManualCommitsWithAlternatingPrefix(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{Targets: []string{"https://example.com/a"}})

	rec, err := fx.orch.ScrapeManual(context.Background(), "https://example.com/a", capture.CategoryManual)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec.CaptureID, "T99AA"))
	require.Equal(t, capture.CategoryManual, rec.Category)

	rec, err = fx.orch.ScrapeManual(context.Background(), "https://example.com/a", capture.CategoryManual)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec.CaptureID, "M99AA"))

	status := fx.orch.Status()
	require.Equal(t, StateIdle, status.State)
	require.NotEmpty(t, status.LastEventID)
	require.Empty(t, status.LastError)
}

func TestScrapeManualFetchFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{Targets: []string{"https://example.com/a"}})
	fx.fetcher.failFor["https://example.com/down"] = errors.New("connection refused")

	_, err := fx.orch.ScrapeManual(context.Background(), "https://example.com/down", capture.CategoryManual)
	require.Error(t, err)
	require.Empty(t, fx.store.captured())

	status := fx.orch.Status()
	require.Equal(t, StateIdle, status.State)
	require.Contains(t, status.LastError, "connection refused")
}

func TestScrapeManualFetchFailureKeepsPrefixAlternation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{Targets: []string{"https://example.com/a"}})
	fx.fetcher.failFor["https://example.com/down"] = errors.New("connection refused")

	_, err := fx.orch.ScrapeManual(context.Background(), "https://example.com/down", capture.CategoryManual)
	require.Error(t, err)

	// The failed fetch must not have consumed the alternation: the first
	// successful manual capture still gets the T prefix.
	rec, err := fx.orch.ScrapeManual(context.Background(), "https://example.com/a", capture.CategoryManual)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rec.CaptureID, "T99AA"))
}

func TestFireDueFiresSlotOncePerDay(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{
		Targets: []string{"https://example.com/a", "https://example.com/b"},
		Slots:   []Slot{{Category: capture.CategoryPrimary, RunSlot: 1, Hour: 8, Minute: 0}},
	})

	fx.orch.fireDue(context.Background())
	require.Equal(t, 2, fx.fetcher.callCount())

	// Later tick within the same minute must not refire.
	fx.clock.set(time.Date(2024, 3, 1, 8, 0, 45, 0, time.UTC))
	fx.orch.fireDue(context.Background())
	require.Equal(t, 2, fx.fetcher.callCount())

	// Same wall-clock time next day fires again.
	fx.clock.set(time.Date(2024, 3, 2, 8, 0, 10, 0, time.UTC))
	fx.orch.fireDue(context.Background())
	require.Equal(t, 4, fx.fetcher.callCount())
}

func TestFireDueIgnoresOtherMinutes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{
		Targets: []string{"https://example.com/a"},
		Slots:   []Slot{{Category: capture.CategoryBackup, RunSlot: 1, Hour: 22, Minute: 0}},
	})

	fx.orch.fireDue(context.Background())
	require.Zero(t, fx.fetcher.callCount())
}

func TestScheduledEventUsesCategoryPrefixAndRunSlot(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{
		Targets: []string{"https://example.com/a"},
		Slots:   []Slot{{Category: capture.CategoryBackup, RunSlot: 2, Hour: 8, Minute: 0}},
	})

	fx.orch.fireDue(context.Background())

	records := fx.store.captured()
	require.Len(t, records, 1)
	require.True(t, strings.HasPrefix(records[0].CaptureID, "B02AA"))
	require.Equal(t, capture.CategoryBackup, records[0].Category)
}

// clockStepFetcher advances the clock on every fetch so consecutive
// captures within one event see different times.
type clockStepFetcher struct {
	clock *fakeClock
	step  time.Duration
}

func (f *clockStepFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.clock.set(f.clock.Now().Add(f.step))
	return []byte("<html><body>" + url + "</body></html>"), nil
}

func TestScheduledEventDraftsPerTarget(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{at: time.Date(2024, 3, 1, 8, 0, 30, 0, time.UTC)}
	store := newMemStore()
	gen, err := ident.New(clock, store, ident.Config{})
	require.NoError(t, err)

	writer := sink.New(store, nil, zap.NewNop())
	orch, err := New(Config{
		Targets: []string{"https://example.com/a", "https://example.com/b"},
		Slots:   []Slot{{Category: capture.CategoryPrimary, RunSlot: 1, Hour: 8, Minute: 0}},
	}, &clockStepFetcher{clock: clock, step: time.Minute}, gen, &fakeDetector{}, writer, clock, zap.NewNop())
	require.NoError(t, err)

	orch.fireDue(context.Background())

	records := store.captured()
	require.Len(t, records, 2)
	// Each target gets its own draft, stamped when its fetch completed.
	first := records[0].CaptureID[5:19]
	second := records[1].CaptureID[5:19]
	require.Equal(t, "20240301080130", first)
	require.Equal(t, "20240301080230", second)
}

type fetchFunc func(context.Context, string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

type detectFunc func(context.Context, string, []byte) (bool, error)

func (d detectFunc) IsIdentical(ctx context.Context, url string, html []byte) (bool, error) {
	return d(ctx, url, html)
}

func TestCaptureOneReportsPipelineStates(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{at: time.Date(2024, 3, 1, 8, 0, 30, 0, time.UTC)}
	store := newMemStore()
	gen, err := ident.New(clock, store, ident.Config{})
	require.NoError(t, err)

	var orch *Orchestrator
	var seen []State
	fetcher := fetchFunc(func(context.Context, string) ([]byte, error) {
		seen = append(seen, orch.Status().State)
		return []byte("<html><body>ok</body></html>"), nil
	})
	detector := detectFunc(func(context.Context, string, []byte) (bool, error) {
		seen = append(seen, orch.Status().State)
		return false, nil
	})

	writer := sink.New(store, nil, zap.NewNop())
	orch, err = New(Config{Targets: []string{"https://example.com/a"}}, fetcher, gen, detector, writer, clock, zap.NewNop())
	require.NoError(t, err)

	draftFn := func(context.Context) (*ident.Draft, error) {
		seen = append(seen, orch.Status().State)
		return gen.DraftScheduled(capture.CategoryPrimary, 1)
	}
	_, err = orch.captureOne(context.Background(), zap.NewNop(), capture.CategoryPrimary, draftFn, "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, []State{StateFetching, StateIdentifying, StateDetecting}, seen)
}

func TestScheduledEventContinuesAfterTargetFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{
		Targets: []string{"https://example.com/down", "https://example.com/up"},
		Slots:   []Slot{{Category: capture.CategoryPrimary, RunSlot: 1, Hour: 8, Minute: 0}},
	})
	fx.fetcher.failFor["https://example.com/down"] = errors.New("timeout")

	fx.orch.fireDue(context.Background())

	records := fx.store.captured()
	require.Len(t, records, 1)
	require.Equal(t, "https://example.com/up", records[0].URL)

	status := fx.orch.Status()
	require.Contains(t, status.LastError, "timeout")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, Config{
		Targets: []string{"https://example.com/a"},
		Tick:    time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fx.orch.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
