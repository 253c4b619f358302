// Package server exposes the script workflow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/credit"
	"scenarist-ai/internal/domain"
	"scenarist-ai/internal/render"
	"scenarist-ai/internal/scenario"
	"scenarist-ai/internal/session"
	"scenarist-ai/internal/thumbs"
)

// AccountHeader selects the account (and workspace) of a request.
const AccountHeader = "X-Account"

type HistoryReader interface {
	List(ctx context.Context, account string) ([]domain.HistoryEntry, error)
	Get(ctx context.Context, account, id string) (domain.HistoryEntry, bool, error)
	Clear(ctx context.Context, account string) error
}

type Options struct {
	Service    *scenario.Service
	Workspaces *session.Store
	// History is optional; without it the history endpoints return an
	// empty list.
	History  HistoryReader
	Exporter render.Exporter
	// MaxUploadBytes caps one multipart request body.
	MaxUploadBytes int64
	// RateLimit of zero disables per-client limiting.
	RateLimit rate.Limit
	RateBurst int
	Logger    *slog.Logger
}

type Server struct {
	svc        *scenario.Service
	workspaces *session.Store
	history    HistoryReader
	exporter   render.Exporter
	maxUpload  int64
	limiter    *RateLimiter
	logger     *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workspaces := opts.Workspaces
	if workspaces == nil {
		workspaces = session.NewStore(session.Options{Logger: logger})
	}
	svc := opts.Service
	if svc == nil {
		svc = scenario.NewService(scenario.ServiceOptions{Logger: logger})
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	s := &Server{
		svc:        svc,
		workspaces: workspaces,
		history:    opts.History,
		exporter:   opts.Exporter,
		maxUpload:  maxUpload,
		logger:     logger,
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = NewRateLimiter(opts.RateLimit, burst)
	}
	return s
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// account is the X-Account header, or the shared default account. Credits,
// history and the workspace all key on the same value.
func account(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(AccountHeader)); id != "" {
		return id
	}
	return credit.DefaultAccount
}

func (s *Server) workspace(r *http.Request) *session.Workspace {
	return s.workspaces.Get(account(r))
}

type apiError struct {
	Error     string         `json:"error"`
	Kind      string         `json:"kind"`
	Retryable bool           `json:"retryable"`
	Limits    *domain.Limits `json:"limits,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorWithLimits(w, r, err, nil)
}

func (s *Server) writeErrorWithLimits(w http.ResponseWriter, r *http.Request, err error, limits *domain.Limits) {
	status := apperr.HTTPStatus(err)
	body := apiError{
		Error:     apperr.UserMessage(err),
		Kind:      apperr.KindOf(err).String(),
		Retryable: apperr.Retryable(err),
		Limits:    limits,
	}

	switch {
	case errors.Is(err, thumbs.ErrInFlight), errors.Is(err, thumbs.ErrStale):
		status = http.StatusConflict
		body.Error = err.Error()
		body.Kind = "conflict"
		body.Retryable = true
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", body.Kind, "err", err)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "kind", body.Kind, "err", err)
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(err, apperr.KindInvalidInput, "Request body is not valid JSON.")
	}
	return nil
}
