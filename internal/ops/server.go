// Package ops exposes the operational HTTP surface: health, status, and
// Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagevault/pagevault/internal/scheduler"
)

// ArchiveSummary reports archive totals from the local store.
type ArchiveSummary interface {
	Summary(ctx context.Context) (total int64, lastAt time.Time, err error)
}

// Server serves the ops endpoints.
type Server struct {
	addr    string
	router  chi.Router
	orch    *scheduler.Orchestrator
	archive ArchiveSummary
	logger  *zap.Logger
	httpSrv *http.Server
}

// New constructs the ops server.
func New(addr string, orch *scheduler.Orchestrator, archive ArchiveSummary, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		orch:    orch,
		archive: archive,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.logger.Info("ops server listening", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

type statusResponse struct {
	Scheduler     scheduler.Status `json:"scheduler"`
	TotalCaptures int64            `json:"total_captures"`
	LastCaptureAt time.Time        `json:"last_capture_at,omitzero"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Scheduler: s.orch.Status()}
	if s.archive != nil {
		total, lastAt, err := s.archive.Summary(r.Context())
		if err != nil {
			s.logger.Error("archive summary failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive summary failed"}, s.logger)
			return
		}
		resp.TotalCaptures = total
		resp.LastCaptureAt = lastAt
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"}, logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
