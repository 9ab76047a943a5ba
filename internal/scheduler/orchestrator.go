// Package scheduler runs scrape events on a minute-granularity timetable
// and serializes them with manual triggers.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/capture"
	"github.com/pagevault/pagevault/internal/ident"
	"github.com/pagevault/pagevault/internal/sink"
)

// State names the orchestrator's position in the capture pipeline.
type State string

// Pipeline states reported on the status endpoint.
const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateIdentifying State = "identifying"
	StateDetecting   State = "detecting"
	StatePersisting  State = "persisting"
)

// Slot is one scheduled firing time. RunSlot is the 1-based index of the
// time within its category, which becomes the identifier's run number.
type Slot struct {
	Category capture.Category
	RunSlot  int
	Hour     int
	Minute   int
}

// ChangeDetector decides whether freshly fetched HTML matches the latest
// stored capture.
type ChangeDetector interface {
	IsIdentical(ctx context.Context, url string, html []byte) (bool, error)
}

// Config controls the orchestrator.
type Config struct {
	Targets []string
	Slots   []Slot
	Tick    time.Duration
}

// Status is a snapshot of orchestrator progress for the ops surface.
type Status struct {
	State       State     `json:"state"`
	CurrentURL  string    `json:"current_url,omitempty"`
	LastEventID string    `json:"last_event_id,omitempty"`
	LastEventAt time.Time `json:"last_event_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Orchestrator drives the fetch, identify, detect, persist pipeline for
// every configured target. Scheduled and manual events share one mutex so
// captures never interleave.
type Orchestrator struct {
	cfg      Config
	fetcher  capture.Fetcher
	gen      *ident.Generator
	detector ChangeDetector
	writer   *sink.Writer
	clock    capture.Clock
	logger   *zap.Logger

	eventMu sync.Mutex

	statusMu sync.RWMutex
	status   Status

	firedMu sync.Mutex
	fired   map[string]struct{}
}

// New constructs an Orchestrator.
func New(cfg Config, fetcher capture.Fetcher, gen *ident.Generator, detector ChangeDetector, writer *sink.Writer, clock capture.Clock, logger *zap.Logger) (*Orchestrator, error) {
	if len(cfg.Targets) == 0 {
		return nil, &capture.ConfigurationError{Reason: "no targets configured"}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	for _, slot := range cfg.Slots {
		if slot.RunSlot < 1 || slot.RunSlot > 9 {
			return nil, &capture.ConfigurationError{
				Reason: fmt.Sprintf("run slot %d for %s out of range", slot.RunSlot, slot.Category),
			}
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		gen:      gen,
		detector: detector,
		writer:   writer,
		clock:    clock,
		logger:   logger,
		status:   Status{State: StateIdle},
		fired:    make(map[string]struct{}),
	}, nil
}

// Run ticks until ctx is canceled, firing each slot at most once per day.
// An event already in flight when ctx is canceled runs to completion.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("scheduler started",
		zap.Int("targets", len(o.cfg.Targets)),
		zap.Int("slots", len(o.cfg.Slots)),
		zap.Duration("tick", o.cfg.Tick),
	)
	ticker := time.NewTicker(o.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			o.fireDue(ctx)
		}
	}
}

func (o *Orchestrator) fireDue(ctx context.Context) {
	now := o.clock.Now()
	for _, slot := range o.cfg.Slots {
		if slot.Hour != now.Hour() || slot.Minute != now.Minute() {
			continue
		}
		key := fmt.Sprintf("%s-%s-%02d", now.Format(time.DateOnly), slot.Category, slot.RunSlot)
		if !o.markFired(key) {
			continue
		}
		o.runScheduled(ctx, slot)
	}
	o.pruneFired(now)
}

func (o *Orchestrator) markFired(key string) bool {
	o.firedMu.Lock()
	defer o.firedMu.Unlock()
	if _, ok := o.fired[key]; ok {
		return false
	}
	o.fired[key] = struct{}{}
	return true
}

// pruneFired drops keys from previous days so the map stays bounded.
func (o *Orchestrator) pruneFired(now time.Time) {
	prefix := now.Format(time.DateOnly)
	o.firedMu.Lock()
	defer o.firedMu.Unlock()
	for key := range o.fired {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			delete(o.fired, key)
		}
	}
}

func (o *Orchestrator) runScheduled(ctx context.Context, slot Slot) {
	o.eventMu.Lock()
	defer o.eventMu.Unlock()

	eventID := uuid.NewString()
	logger := o.logger.With(
		zap.String("event_id", eventID),
		zap.String("category", string(slot.Category)),
		zap.Int("run_slot", slot.RunSlot),
	)
	logger.Info("scheduled scrape event starting")

	draftFn := func(context.Context) (*ident.Draft, error) {
		return o.gen.DraftScheduled(slot.Category, slot.RunSlot)
	}
	// A failure on one target is logged and does not stop the rest.
	var lastErr error
	for _, url := range o.cfg.Targets {
		if _, err := o.captureOne(ctx, logger, slot.Category, draftFn, url); err != nil {
			lastErr = err
		}
	}
	o.finishEvent(eventID, lastErr)
}

// ScrapeManual runs an immediate event for a single URL. The identifier
// prefix alternates between T and M across manual runs regardless of the
// category label stored on the record. The returned record reflects the
// local commit.
func (o *Orchestrator) ScrapeManual(ctx context.Context, url string, category capture.Category) (capture.Record, error) {
	o.eventMu.Lock()
	defer o.eventMu.Unlock()

	eventID := uuid.NewString()
	logger := o.logger.With(
		zap.String("event_id", eventID),
		zap.String("category", string(category)),
		zap.String("url", url),
	)
	logger.Info("manual scrape event starting")

	rec, err := o.captureOne(ctx, logger, category, o.gen.DraftManual, url)
	o.finishEvent(eventID, err)
	return rec, err
}

// captureOne pushes one target through the pipeline: fetch, draft the
// identifier, detect, persist. Drafting happens only after a successful
// fetch so a failed fetch consumes no identifier state; in particular a
// failed manual scrape does not burn a T/M alternation.
func (o *Orchestrator) captureOne(ctx context.Context, logger *zap.Logger, category capture.Category, draftFn func(context.Context) (*ident.Draft, error), url string) (capture.Record, error) {
	logger = logger.With(zap.String("url", url))

	o.setState(StateFetching, url)
	html, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		capture.TotalFetchFailures.Inc()
		logger.Error("fetch failed", zap.Error(err))
		return capture.Record{}, err
	}

	o.setState(StateIdentifying, url)
	draft, err := draftFn(ctx)
	if err != nil {
		capture.TotalEventsAborted.Inc()
		logger.Error("identifier draft failed", zap.Error(err))
		return capture.Record{}, err
	}

	o.setState(StateDetecting, url)
	identical, err := o.detector.IsIdentical(ctx, url, html)
	if err != nil {
		logger.Error("change detection failed", zap.Error(err))
		return capture.Record{}, err
	}

	o.setState(StatePersisting, url)
	pending := capture.PendingCapture{
		URL:                 url,
		Category:            category,
		CapturedAt:          o.clock.Now(),
		HTML:                string(html),
		IdenticalToPrevious: identical,
		SchemaVersion:       capture.SchemaVersion,
	}
	rec, outcome, err := o.writer.Commit(ctx, pending, draft)
	if err != nil {
		logger.Error("local commit failed", zap.Error(err))
		return capture.Record{}, err
	}
	logger.Info("capture committed",
		zap.String("capture_id", rec.CaptureID),
		zap.Bool("identical", rec.IdenticalToPrevious),
		zap.String("remote", string(outcome.Remote)),
	)
	return rec, nil
}

func (o *Orchestrator) setState(state State, url string) {
	o.statusMu.Lock()
	o.status.State = state
	o.status.CurrentURL = url
	o.statusMu.Unlock()
}

func (o *Orchestrator) finishEvent(eventID string, err error) {
	o.statusMu.Lock()
	o.status.State = StateIdle
	o.status.CurrentURL = ""
	o.status.LastEventID = eventID
	o.status.LastEventAt = o.clock.Now()
	if err != nil {
		o.status.LastError = err.Error()
	} else {
		o.status.LastError = ""
	}
	o.statusMu.Unlock()
}

// Status returns a snapshot of the orchestrator's progress.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	return o.status
}
