package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/studenthub/internal/chat"
	"github.com/MikeSquared-Agency/studenthub/internal/router"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

type chatRequest struct {
	Message   string `json:"message"`
	Backend   string `json:"model"`
	LocalHost string `json:"local_host"`
	SessionID string `json:"session_id"`
}

type questionRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ans, err := s.deps.Chat.Ask(r.Context(), chat.Question{
		UserID:     s.currentUser(r),
		Message:    req.Message,
		BackendKey: strings.TrimSpace(req.Backend),
		LocalHost:  strings.TrimSpace(req.LocalHost),
		SessionID:  req.SessionID,
		Channel:    chat.ChannelWeb,
	})
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Mensagem vazia.")
		return
	case errors.Is(err, router.ErrBackendNotFound):
		writeError(w, http.StatusBadRequest, "unknown model "+strconv.Quote(req.Backend))
		return
	case err != nil:
		s.logger.Error("chat failed", "user_id", s.currentUser(r), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) listBackends(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.URL.Query().Get("local_host"))
	if host == "" {
		host = s.cfg.DefaultLocalHost
	}
	backends := s.deps.Router.Discover(r.Context(), host)
	if backends == nil {
		backends = []router.Descriptor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": backends,
		"default":  s.cfg.DefaultBackend,
	})
}

func (s *Server) localStatus(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.URL.Query().Get("local_host"))
	if host == "" {
		host = s.cfg.DefaultLocalHost
	}
	running, names := s.deps.Local.Status(r.Context(), host)
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ollama_running":   running,
		"available_models": names,
	})
}

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.deps.Store.ListQuestions(r.Context())
	if err != nil {
		s.storeError(w, "list questions", err)
		return
	}
	if questions == nil {
		questions = []store.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q := &store.Question{
		Text:     strings.TrimSpace(req.Question),
		Answer:   strings.TrimSpace(req.Answer),
		AuthorID: s.currentUser(r),
	}
	if q.Text == "" || q.Answer == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}
	if err := s.deps.Store.CreateQuestion(r.Context(), q); err != nil {
		s.storeError(w, "create question", err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.deps.History.User(r.Context(), s.currentUser(r), limit, r.URL.Query().Get("session_id"))
	if err != nil {
		s.storeError(w, "list history", err)
		return
	}
	if records == nil {
		records = []store.ChatRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.History.DeleteUser(r.Context(), s.currentUser(r))
	if err != nil {
		s.storeError(w, "delete history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) historyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.History.Stats(r.Context(), s.currentUser(r))
	if err != nil {
		s.storeError(w, "history stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
