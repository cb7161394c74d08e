package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"pagekeep/internal/model"
	"pagekeep/internal/queue"
	"pagekeep/internal/reaper"
	"pagekeep/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is the thin HTTP surface around the extraction pipeline:
// enqueue, pull-based status observation, manual retry and admin cleanup.
type Server struct {
	store    store.Store
	queue    *queue.Queue
	reaper   *reaper.Reaper
	assetDir string
	logger   *zap.Logger
	router   *mux.Router
	server   *http.Server
}

func NewServer(st store.Store, q *queue.Queue, rp *reaper.Reaper, assetDir string, logger *zap.Logger) *Server {
	s := &Server{
		store:    st,
		queue:    q,
		reaper:   rp,
		assetDir: assetDir,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Cached images
	s.router.PathPrefix("/assets/").Handler(
		http.StripPrefix("/assets/", http.FileServer(http.Dir(s.assetDir))))

	s.router.HandleFunc("/articles", s.handleCreate).Methods("POST")
	s.router.HandleFunc("/articles/extraction-status", s.handleStatusList).Methods("GET")
	s.router.HandleFunc("/articles/{id}", s.handleGet).Methods("GET")
	s.router.HandleFunc("/articles/{id}/retry", s.handleRetry).Methods("POST")
	s.router.HandleFunc("/admin/cleanup-stuck", s.handleCleanup).Methods("POST")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the HTTP server
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.logger.Info("web server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type createRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
}

// handleCreate saves a pending article and enqueues its extraction. The
// response returns as soon as the job is accepted, never after extraction.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		http.Error(w, "url must be absolute http(s)", http.StatusBadRequest)
		return
	}

	article := model.NewArticle(req.URL, req.UserID)
	if err := s.store.Save(r.Context(), &article); err != nil {
		s.logger.Error("failed to save article", zap.Error(err))
		http.Error(w, "failed to save", http.StatusInternalServerError)
		return
	}

	err = s.queue.Enqueue(&queue.Job{
		Kind: queue.KindExtractArticle,
		Payload: queue.Payload{
			ArticleID: article.ID,
			URL:       article.URL,
			UserID:    article.UserID,
		},
	})
	if err != nil {
		s.logger.Error("failed to enqueue extraction", zap.Error(err))
		http.Error(w, "extraction queue unavailable", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusAccepted, article)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	article, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	} else if err != nil {
		s.logger.Error("failed to load article", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, article)
}

type statusRow struct {
	ID               uuid.UUID              `json:"id"`
	ExtractionStatus model.ExtractionStatus `json:"extraction_status"`
	ExtractionError  string                 `json:"extraction_error,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// handleStatusList serves the poll endpoint the reading UI refreshes
// against while extractions are in flight.
func (s *Server) handleStatusList(w http.ResponseWriter, r *http.Request) {
	articles, err := s.store.List(r.Context(), 50)
	if err != nil {
		s.logger.Error("failed to list articles", zap.Error(err))
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}

	rows := make([]statusRow, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, statusRow{
			ID:               a.ID,
			ExtractionStatus: a.ExtractionStatus,
			ExtractionError:  a.ExtractionError,
			UpdatedAt:        a.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r)
	if !ok {
		return
	}

	err := s.reaper.RetryExtraction(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, queue.ErrInFlight):
		http.Error(w, "extraction already in progress", http.StatusConflict)
	case err != nil:
		s.logger.Error("failed to retry extraction", zap.Error(err))
		http.Error(w, "failed to retry", http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.reaper.CleanupStuck(r.Context())
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		http.Error(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"rescheduled": n})
}

func (s *Server) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
