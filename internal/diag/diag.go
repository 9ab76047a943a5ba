// Package diag runs connectivity checks for the diagnose command.
package diag

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/capture"
)

const headTimeout = 10 * time.Second

// CheckResult is the outcome of a single diagnostic check.
type CheckResult struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates all check results.
type Report struct {
	Results []CheckResult `json:"results"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return true
}

// Runner executes the diagnostic checks against the configured stores and
// targets.
type Runner struct {
	remote  capture.RemoteStore
	fetcher capture.Fetcher
	targets []string
	client  *http.Client
	logger  *zap.Logger
}

// New constructs a Runner. remote may be nil when no remote store is
// configured; its check then reports a skip-style pass with a note.
func New(remote capture.RemoteStore, fetcher capture.Fetcher, targets []string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		remote:  remote,
		fetcher: fetcher,
		targets: targets,
		client:  &http.Client{Timeout: headTimeout},
		logger:  logger,
	}
}

// Run executes every check and returns the aggregated report.
func (r *Runner) Run(ctx context.Context) Report {
	var report Report
	report.Results = append(report.Results, r.checkRemote(ctx))
	for _, url := range r.targets {
		report.Results = append(report.Results, r.checkReachable(ctx, url))
		report.Results = append(report.Results, r.checkFetch(ctx, url))
	}
	for _, res := range report.Results {
		r.logger.Info("diagnostic check",
			zap.String("check", res.Name),
			zap.Bool("ok", res.OK),
			zap.String("detail", res.Detail),
			zap.Duration("duration", res.Duration),
		)
	}
	return report
}

func (r *Runner) checkRemote(ctx context.Context) CheckResult {
	start := time.Now()
	if r.remote == nil {
		return CheckResult{Name: "remote ping", OK: true, Detail: "remote store not configured", Duration: time.Since(start)}
	}
	if err := r.remote.Ping(ctx); err != nil {
		return CheckResult{Name: "remote ping", Detail: err.Error(), Duration: time.Since(start)}
	}
	return CheckResult{Name: "remote ping", OK: true, Duration: time.Since(start)}
}

func (r *Runner) checkReachable(ctx context.Context, url string) CheckResult {
	name := fmt.Sprintf("reachable %s", url)
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return CheckResult{Name: name, Detail: err.Error(), Duration: time.Since(start)}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return CheckResult{Name: name, Detail: err.Error(), Duration: time.Since(start)}
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return CheckResult{Name: name, Detail: fmt.Sprintf("status %d", resp.StatusCode), Duration: time.Since(start)}
	}
	return CheckResult{Name: name, OK: true, Detail: fmt.Sprintf("status %d", resp.StatusCode), Duration: time.Since(start)}
}

func (r *Runner) checkFetch(ctx context.Context, url string) CheckResult {
	name := fmt.Sprintf("fetch %s", url)
	start := time.Now()
	body, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return CheckResult{Name: name, Detail: err.Error(), Duration: time.Since(start)}
	}
	if len(body) == 0 {
		return CheckResult{Name: name, Detail: "empty body", Duration: time.Since(start)}
	}
	if !strings.Contains(strings.ToLower(string(body)), "<body") {
		return CheckResult{Name: name, Detail: "no <body> element in response", Duration: time.Since(start)}
	}
	return CheckResult{Name: name, OK: true, Detail: fmt.Sprintf("%d bytes", len(body)), Duration: time.Since(start)}
}
