package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalCaptures tracks the number of records committed to the local store.
	TotalCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_captures_total",
		Help: "The total number of captures committed to the local store.",
	})
	// TotalIdenticalCaptures tracks captures flagged identical to the prior content.
	TotalIdenticalCaptures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_identical_captures_total",
		Help: "The total number of captures whose content matched the previous capture.",
	})
	// TotalFetchFailures tracks fetch collaborator failures.
	TotalFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_fetch_failures_total",
		Help: "The total number of failed page fetches.",
	})
	// TotalRemoteWriteFailures tracks best-effort mirror writes that failed.
	TotalRemoteWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_remote_write_failures_total",
		Help: "The total number of failed remote mirror writes.",
	})
	// TotalEventsAborted tracks scrape events aborted before commit.
	TotalEventsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_events_aborted_total",
		Help: "The total number of scrape events aborted by an error.",
	})
)
