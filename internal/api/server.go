// Package api exposes the cron trigger endpoints and topic, source and
// read-status management over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"intel_fetcher/internal/domain"
	"intel_fetcher/internal/service"
	"intel_fetcher/internal/trigger"
)

//go:generate mockgen -source=server.go -destination=mocks/mocks.go -package=mocks

type Ingestor interface {
	Run(ctx context.Context, req service.RunRequest) (*domain.RunStats, error)
}

type Poller interface {
	Tick(ctx context.Context) (trigger.Decision, *domain.RunStats, error)
}

type Catalog interface {
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	CreateTopic(ctx context.Context, keyword string, sources []service.NewSource) (*domain.Topic, []domain.Source, error)
	SetTopicActive(ctx context.Context, id int64, active bool) error
	DeleteTopic(ctx context.Context, id int64) error
	AddSource(ctx context.Context, topicID int64, in service.NewSource) (*domain.Source, string, error)
	DeleteSource(ctx context.Context, id int64) error
	MarkRead(ctx context.Context, articleID int64) error
	MarkUnread(ctx context.Context, articleID int64) error
}

type Server struct {
	ingestor   Ingestor
	poller     Poller
	catalog    Catalog
	cronSecret string
	logger     *slog.Logger
}

func NewServer(ingestor Ingestor, poller Poller, catalog Catalog, cronSecret string, logger *slog.Logger) *Server {
	return &Server{
		ingestor:   ingestor,
		poller:     poller,
		catalog:    catalog,
		cronSecret: cronSecret,
		logger:     logger.With("component", "api"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.health)

	mux.Handle("GET /api/cron/update", s.requireCronSecret(http.HandlerFunc(s.cronUpdate)))
	mux.Handle("GET /api/cron/check", s.requireCronSecret(http.HandlerFunc(s.cronCheck)))

	mux.HandleFunc("GET /api/topics", s.listTopics)
	mux.HandleFunc("POST /api/topics", s.createTopic)
	mux.HandleFunc("PATCH /api/topics/{id}", s.updateTopic)
	mux.HandleFunc("DELETE /api/topics/{id}", s.deleteTopic)

	mux.HandleFunc("POST /api/sources", s.createSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.deleteSource)

	mux.HandleFunc("POST /api/read-status", s.markRead)
	mux.HandleFunc("DELETE /api/read-status", s.markUnread)

	return s.logRequests(mux)
}

// requireCronSecret rejects the request before any work when a secret is
// configured and neither header carries it.
func (s *Server) requireCronSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cronSecret != "" && !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		token = r.Header.Get("x-cron-secret")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) == 1
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps domain errors onto status codes. Anything unrecognised is
// logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTopic), errors.Is(err, domain.ErrInvalidSource), errors.Is(err, errBadRequest):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}
