// Package web serves the operational HTTP API: health, usage counters,
// and reminder inspection.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tmadden/marvin/internal/reminder"
	"github.com/tmadden/marvin/internal/session"
	"github.com/tmadden/marvin/internal/usage"
)

// Server exposes read-only operational state. It never mutates bot
// data; writes go through the chat interface.
type Server struct {
	logger    *slog.Logger
	ledger    *usage.Ledger
	reminders *reminder.Store
	sessions  *session.Store
}

func NewServer(logger *slog.Logger, ledger *usage.Ledger, reminders *reminder.Store, sessions *session.Store) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, ledger: ledger, reminders: reminders, sessions: sessions}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/usage", s.getUsage)
		r.Get("/reminders", s.getReminders)
		r.Get("/sessions", s.getSessions)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	if !s.ledger.Enabled() {
		s.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	today, err := s.ledger.Today(r.Context())
	if err != nil {
		s.errorJSON(w, http.StatusInternalServerError, "usage read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":        true,
		"premium_tokens": today.Premium,
		"mini_tokens":    today.Mini,
	})
}

func (s *Server) getReminders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		s.errorJSON(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	rs, err := s.reminders.View(r.Context(), userID)
	if errors.Is(err, reminder.ErrUnavailable) {
		s.errorJSON(w, http.StatusServiceUnavailable, "reminder storage unavailable")
		return
	}
	if err != nil {
		s.errorJSON(w, http.StatusInternalServerError, "reminder read failed")
		return
	}

	type item struct {
		ID      int64  `json:"id"`
		ChatID  int64  `json:"chat_id"`
		Text    string `json:"text"`
		DueTime string `json:"due_time_utc"`
		Status  string `json:"status"`
	}
	items := make([]item, 0, len(rs))
	for _, rem := range rs {
		items = append(items, item{
			ID:      rem.ID,
			ChatID:  rem.ChatID,
			Text:    rem.Text,
			DueTime: rem.DueTime,
			Status:  string(rem.Status),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reminders": items})
}

func (s *Server) getSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response encode failed", "error", err)
	}
}

func (s *Server) errorJSON(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"error": msg})
}
