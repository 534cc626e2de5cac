// Package server provides the HTTP API for submitting audit jobs and reading reports.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/db"
	"github.com/jonathan/a11y-auditor/internal/dispatch"
	"github.com/jonathan/a11y-auditor/internal/interpreter"
	"github.com/jonathan/a11y-auditor/internal/server/middleware"
	"github.com/jonathan/a11y-auditor/internal/server/ratelimit"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// maxJobBody bounds submitted job documents.
const maxJobBody = 4 << 20

// ReportStore is the report persistence the API reads and writes. *db.DB implements it.
type ReportStore interface {
	dispatch.ReportSaver
	GetReport(ctx context.Context, id uuid.UUID) (*types.Report, error)
	ListReports(ctx context.Context, jobID string, limit int) ([]db.ReportSummary, error)
	DeleteReport(ctx context.Context, id uuid.UUID) (bool, error)
}

// Config holds server configuration.
type Config struct {
	Port int
	// MaxConcurrentJobs bounds jobs running at once; further submissions wait.
	MaxConcurrentJobs int
}

// Deps are the collaborators of a Server. Only Engine is required.
type Deps struct {
	// Engine configures the interpreter each job runs on.
	Engine interpreter.Config
	// Reports enables report storage and the /reports routes.
	Reports ReportStore
	// JWT enables bearer authentication of the job and report routes.
	JWT       *JWTService
	RateLimit *ratelimit.Config
	// Gatherer is served on /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	engine      interpreter.Config
	reports     ReportStore
	rateLimiter *ratelimit.Limiter
	log         *zap.Logger
	slots       chan struct{}
}

// New creates a new server instance.
func New(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	concurrent := cfg.MaxConcurrentJobs
	if concurrent <= 0 {
		concurrent = 2
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:      deps.Engine,
		reports:     deps.Reports,
		rateLimiter: ratelimit.NewLimiter(deps.RateLimit),
		log:         log,
		slots:       make(chan struct{}, concurrent),
	}

	auth := func(h http.HandlerFunc) http.Handler { return h }
	if deps.JWT != nil {
		authenticate := middleware.AuthMiddleware(deps.JWT.AsTokenValidator())
		auth = func(h http.HandlerFunc) http.Handler { return authenticate(h) }
	}

	mux := http.NewServeMux()
	mux.Handle("POST /jobs", auth(s.handleJob))
	mux.Handle("POST /jobs/stream", auth(s.handleJobStream))
	mux.Handle("GET /reports", auth(s.handleListReports))
	mux.Handle("GET /reports/{id}", auth(s.handleGetReport))
	mux.Handle("DELETE /reports/{id}", auth(s.handleDeleteReport))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // jobs and streams run as long as their time limit
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	defer s.rateLimiter.Stop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit refuses requests over the client's limit.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientIP(r), r.Method, r.URL.Path)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets SSE streams through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging logs each request once it completes.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// JobResponse is the body returned for a submitted job.
type JobResponse struct {
	// ReportID is where the report was stored, empty without storage.
	ReportID      string        `json:"reportID,omitempty"`
	DeliveryError string        `json:"deliveryError,omitempty"`
	Report        *types.Report `json:"report"`
}

// acquire waits for a job slot.
func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() { <-s.slots }

// dispatcher builds a dispatcher whose interpreter reports progress to onProgress.
func (s *Server) dispatcher(onProgress func(interpreter.ActEvent)) *dispatch.Dispatcher {
	engine := s.engine
	engine.OnProgress = onProgress
	d := &dispatch.Dispatcher{Exec: interpreter.New(engine), Log: s.log}
	if s.reports != nil {
		d.Store = &dispatch.DBStore{DB: s.reports}
	}
	return d
}

func (s *Server) logClient(r *http.Request) *zap.Logger {
	if client, err := middleware.GetClient(r); err == nil {
		return s.log.With(zap.String("client", client))
	}
	return s.log
}

// runJob validates and runs a submitted job document.
func (s *Server) runJob(r *http.Request, onProgress func(interpreter.ActEvent)) (JobResponse, error) {
	raw, err := readBody(r)
	if err != nil {
		return JobResponse{}, err
	}
	if err := s.acquire(r.Context()); err != nil {
		return JobResponse{}, err
	}
	defer s.release()

	s.logClient(r).Info("job submitted")
	out, err := s.dispatcher(onProgress).Handle(r.Context(), raw)
	resp := JobResponse{ReportID: out.Location, Report: out.Report}
	if err != nil && out.Report != nil {
		resp.DeliveryError = err.Error()
	}
	return resp, err
}

// handleJob runs a job and returns its report.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	resp, err := s.runJob(r, nil)
	if err != nil && resp.Report == nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	status := http.StatusOK
	if err != nil {
		status = HTTPStatus(err)
	}
	s.jsonResponse(w, status, resp)
}

// handleJobStream runs a job, streaming one "act" event per executed act and
// then a "report" event.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.runJob(r, func(event interpreter.ActEvent) {
		if err := sse.WriteEvent("act", event); err != nil {
			s.log.Warn("failed to write SSE event", zap.Error(err))
		}
	})
	if err != nil && resp.Report == nil {
		sse.WriteError(err.Error())
		return
	}
	if err := sse.WriteEvent("report", resp); err != nil {
		s.log.Warn("failed to write SSE report", zap.Error(err))
	}
}

func (s *Server) requireReports(w http.ResponseWriter) bool {
	if s.reports == nil {
		err := &ErrUnavailable{What: "report storage"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return false
	}
	return true
}

func (s *Server) reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid report ID format")
		return uuid.Nil, false
	}
	return id, true
}

// handleGetReport returns a stored report.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	id, ok := s.reportID(w, r)
	if !ok {
		return
	}
	report, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if report == nil {
		err := &ErrNotFound{What: "report"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleListReports lists stored report summaries, newest first, optionally
// for one job ID.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	summaries, err := s.reports.ListReports(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if summaries == nil {
		summaries = []db.ReportSummary{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"reports": summaries})
}

// handleDeleteReport removes a stored report.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireReports(w) {
		return
	}
	id, ok := s.reportID(w, r)
	if !ok {
		return
	}
	deleted, err := s.reports.DeleteReport(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if !deleted {
		err := &ErrNotFound{What: "report"}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readBody(r *http.Request) ([]byte, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJobBody)).Decode(&raw); err != nil {
		return nil, &ErrBadRequest{Message: "Invalid request body: " + err.Error()}
	}
	return raw, nil
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// clientIP identifies the caller for rate limiting by its remote address.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds() + 0.999)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	s.log.Warn("rate limit exceeded", zap.String("tier", info.Tier), zap.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
