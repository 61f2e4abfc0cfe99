// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LogStore is what the log handlers need from the persistence layer.
type LogStore interface {
	Append(ctx context.Context, s model.Submission) (model.LogEntry, error)
	List(ctx context.Context) []model.LogEntry
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	logsHandler   *LogsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(store LogStore, statsProvider StatsProvider, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		logsHandler:   NewLogsHandler(store, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/log", MetricsMiddleware(s.logsHandler.HandlePostLog, "log"))
	mux.HandleFunc("/api/logs", MetricsMiddleware(s.logsHandler.HandleListLogs, "logs"))
}

type options struct {
	logger logger.Logger
}

// Option configures the Server.
type Option func(*options)

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "")
}
