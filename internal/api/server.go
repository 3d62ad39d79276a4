package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/quill/internal/processor"
	"github.com/MikeSquared-Agency/quill/internal/reply"
	"github.com/MikeSquared-Agency/quill/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Drafter runs a reply request end to end.
type Drafter interface {
	Draft(ctx context.Context, req reply.Request, requestID string) (*processor.Outcome, error)
}

// DraftReader loads stored drafts.
type DraftReader interface {
	GetReplyDraft(ctx context.Context, id uuid.UUID) (*store.Draft, error)
	ListDraftsByLead(ctx context.Context, leadID string, limit int) ([]store.Draft, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	drafter Drafter
	drafts  DraftReader
	logger  *slog.Logger
	httpSrv *http.Server
}

// NewServer builds the HTTP surface. drafts may be nil when no database is
// configured; an empty apiToken disables auth.
func NewServer(port int, apiToken string, drafter Drafter, drafts DraftReader, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		drafter: drafter,
		drafts:  drafts,
		logger:  logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/quill/status", s.status)

	router.Route("/api/v1/replies", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.createReply)
		r.Get("/", s.listReplies)
		r.Get("/{id}", s.getReply)
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests without the expected token. An empty
// token lets everything through.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || got != token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "quill",
		"status": "ready",
	})
}

// createReply handles POST /api/v1/replies
func (s *Server) createReply(w http.ResponseWriter, r *http.Request) {
	var req reply.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.drafter.Draft(r.Context(), req, middleware.GetReqID(r.Context()))
	if err != nil {
		if errors.Is(err, reply.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("draft failed", "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("generation failed: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

// getReply handles GET /api/v1/replies/{id}
func (s *Server) getReply(w http.ResponseWriter, r *http.Request) {
	if s.drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "draft storage not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft id")
		return
	}

	d, err := s.drafts.GetReplyDraft(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		s.logger.Error("get draft failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load draft")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// listReplies handles GET /api/v1/replies?lead_id=...&limit=...
func (s *Server) listReplies(w http.ResponseWriter, r *http.Request) {
	if s.drafts == nil {
		writeError(w, http.StatusServiceUnavailable, "draft storage not configured")
		return
	}

	leadID := r.URL.Query().Get("lead_id")
	if leadID == "" {
		writeError(w, http.StatusBadRequest, "lead_id is required")
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	drafts, err := s.drafts.ListDraftsByLead(r.Context(), leadID, limit)
	if err != nil {
		s.logger.Error("list drafts failed", "lead_id", leadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list drafts")
		return
	}
	if drafts == nil {
		drafts = []store.Draft{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"drafts": drafts, "count": len(drafts)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
