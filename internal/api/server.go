package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reelpost/internal/audit"
	"reelpost/internal/jobs"
)

const (
	defaultActionLimit = 50
	maxActionLimit     = 500
)

type JobLister interface {
	List() ([]jobs.Job, error)
	ListByOwner(owner int64) ([]jobs.Job, error)
}

// Server is the optional ops listener. It never mutates state.
type Server struct {
	jobs    JobLister
	actions audit.Reader
	router  chi.Router
	addr   string
	now    func() time.Time
}

type jobView struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	Platform    string    `json:"platform"`
	VideoPath   string    `json:"video_path"`
	Caption     string    `json:"caption"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Overdue     bool      `json:"overdue"`
}

func NewServer(j JobLister, metrics http.Handler, addr string) *Server {
	srv := &Server{jobs: j, addr: addr, now: time.Now}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", srv.handleHealth)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", srv.handleListJobs)
		r.Get("/actions", srv.handleListActions)
	})

	srv.router = r
	return srv
}

// WithActions exposes the audit trail. Without it /api/v1/actions answers 404.
func (s *Server) WithActions(r audit.Reader) *Server {
	s.actions = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hs := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting ops API", "addr", s.addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "reelpost",
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var (
		list []jobs.Job
		err  error
	)
	if chat := r.URL.Query().Get("chat"); chat != "" {
		id, perr := strconv.ParseInt(chat, 10, 64)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat must be an integer"})
			return
		}
		list, err = s.jobs.ListByOwner(id)
	} else {
		list, err = s.jobs.List()
	}
	if err != nil {
		slog.Error("Failed to list jobs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	now := s.now()
	views := make([]jobView, 0, len(list))
	for _, j := range list {
		views = append(views, jobView{
			ID:          j.ID,
			ChatID:      j.OwnerChatID,
			Platform:    string(j.Platform),
			VideoPath:   j.VideoPath,
			Caption:     j.Caption,
			ScheduledAt: j.ScheduledAt,
			Overdue:     j.Due(now, 0),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": views, "count": len(views)})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log is not readable"})
		return
	}

	q := r.URL.Query()
	var chatID int64
	if chat := q.Get("chat"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat must be an integer"})
			return
		}
		chatID = id
	}
	limit := defaultActionLimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxActionLimit)
	}

	entries, err := s.actions.Recent(r.Context(), chatID, limit)
	if err != nil {
		slog.Error("Failed to read audit log", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"actions": entries, "count": len(entries)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
