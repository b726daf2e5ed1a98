package refundd

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// AdminServer exposes the job trigger and operator controls over HTTP.
type AdminServer struct {
	job    *Job
	auth   *Authenticator
	logger *slog.Logger
	router chi.Router
}

// triggerResponse is the body returned by the job trigger.
type triggerResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// NewAdminServer constructs a server wrapping the provided job. A nil
// authenticator leaves the routes open, which is only suitable for tests.
func NewAdminServer(job *Job, auth *Authenticator, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	server := &AdminServer{job: job, auth: auth, logger: logger}
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware)
		}
		r.Method(http.MethodGet, "/jobs/refunds", otelhttp.NewHandler(http.HandlerFunc(server.handleRun), "refundd.run"))
		r.Method(http.MethodPost, "/jobs/refunds", otelhttp.NewHandler(http.HandlerFunc(server.handleRun), "refundd.run"))
		r.Get("/status", server.handleStatus)
		r.Post("/pause", server.handlePause)
		r.Post("/resume", server.handleResume)
		r.Handle("/metrics", promhttp.Handler())
	})
	server.router = r
	return server
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleRun executes the job synchronously. The request body is ignored.
func (s *AdminServer) handleRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.job.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, triggerResponse{Error: true, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, triggerResponse{Message: summary.Message})
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.job.Status())
}

func (s *AdminServer) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.job.Pause()
	s.logger.Info("refund job paused")
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.job.Resume()
	s.logger.Info("refund job resumed")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
