package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	electionservice "guildhall/contexts/governance/election-service"
	_ "guildhall/internal/platform/httpserver/docs"
	"guildhall/internal/platform/metrics"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

const maxRequestBodyBytes = 1 << 20

type Options struct {
	Addr               string
	CORSAllowedOrigins []string
	EnableSwagger      bool
	Metrics            *metrics.HTTPMetrics
	HealthCheck        func(context.Context) error
}

type Server struct {
	mux       *http.ServeMux
	handler   http.Handler
	logger    *slog.Logger
	addr      string
	elections electionservice.Module
	metrics   *metrics.HTTPMetrics
	health    func(context.Context) error
}

func New(elections electionservice.Module, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	httpMetrics := opts.Metrics
	if httpMetrics == nil {
		httpMetrics = metrics.NopHTTPMetrics()
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		elections: elections,
		metrics:   httpMetrics,
		health:    opts.HealthCheck,
	}
	s.registerRoutes(opts.EnableSwagger)

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-User-Id", "X-Request-Id"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(false),
	)
	s.handler = recovery(cors(s.mux))
	return s
}

// Handler returns the routed handler with recovery and CORS applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http server stopping",
			"event", "http_server_stopping",
			"module", "internal/platform/httpserver",
			"layer", "platform",
		)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(enableSwagger bool) {
	if enableSwagger {
		s.mux.Handle("/swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handle("POST /v1/elections", s.handleCreateElection)
	s.handle("GET /v1/elections", s.handleListElections)
	s.handle("GET /v1/elections/{election_id}", s.handleGetElection)
	s.handle("PATCH /v1/elections/{election_id}", s.handleUpdateElection)
	s.handle("POST /v1/elections/{election_id}/positions", s.handleAddPosition)
	s.handle("POST /v1/elections/{election_id}/positions/{position_id}/candidates", s.handleAddCandidate)
	s.handle("POST /v1/elections/{election_id}/candidates/{candidate_id}/status", s.handleChangeCandidateStatus)
	s.handle("POST /v1/elections/{election_id}/transition", s.handleTransitionElection)
	s.handle("GET /v1/elections/{election_id}/ballot-form", s.handleBallotForm)
	s.handle("POST /v1/elections/{election_id}/ballots", s.handleSubmitBallot)
	s.handle("GET /v1/elections/{election_id}/ballots/me", s.handleVoterStatus)
	s.handle("GET /v1/elections/{election_id}/results", s.handleResults)
	s.handle("POST /v1/elections/{election_id}/vote-counts/rebuild", s.handleRebuildVoteCounts)
}

// handle registers a route and records its request count and latency under
// the route pattern.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.Observe(pattern, r.Method, rec.status, time.Since(started))
	}))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(values ...any) {
	l.logger.Error("http handler panic recovered",
		"event", "http_handler_panic",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"panic", values,
	)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeElectionError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", nil)
		return false
	}
	return true
}
