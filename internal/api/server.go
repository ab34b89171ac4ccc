package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/studenthub/internal/auth"
	"github.com/MikeSquared-Agency/studenthub/internal/chat"
	"github.com/MikeSquared-Agency/studenthub/internal/history"
	"github.com/MikeSquared-Agency/studenthub/internal/metrics"
	"github.com/MikeSquared-Agency/studenthub/internal/router"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

const maxBodyBytes = 1 << 20

// Discoverer lists the backends a request may select.
type Discoverer interface {
	Discover(ctx context.Context, localHost string) []router.Descriptor
}

// LocalStatus probes an Ollama host.
type LocalStatus interface {
	Status(ctx context.Context, baseURL string) (bool, []string)
}

// Sender delivers an answer over WhatsApp.
type Sender interface {
	Send(ctx context.Context, text, to, from string) ([]string, error)
}

type Config struct {
	Port             int
	DefaultBackend   string
	DefaultLocalHost string
	SecureCookies    bool

	// ChatRatePerMinute limits chat requests per user; 0 disables.
	ChatRatePerMinute int

	TwilioAuthToken   string
	ValidateSignature bool
	// PublicURL is the externally visible base URL Twilio signs requests
	// against. Empty falls back to the request's own host.
	PublicURL         string
}

type Deps struct {
	Store   store.Driver
	Tokens  *auth.Tokens
	Chat    *chat.Service
	History *history.Service
	Router  Discoverer
	Local   LocalStatus
	// Sender is nil when Twilio is not configured; webhook answers then go
	// back inline in the TwiML response.
	Sender  Sender
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

type Server struct {
	router  *chi.Mux
	cfg     Config
	deps    Deps
	limiter *userLimiter
	logger  *slog.Logger
	srv     *http.Server

	// wg tracks background WhatsApp deliveries.
	wg sync.WaitGroup
}

func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	s := &Server{
		router:  r,
		cfg:     cfg,
		deps:    deps,
		limiter: newUserLimiter(cfg.ChatRatePerMinute),
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.Get("/health", s.health)
	r.Handle("/metrics", deps.Metrics.Handler())
	r.Post("/webhooks/whatsapp", s.whatsappWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Post("/auth/signup", s.signup)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(deps.Tokens))

			r.Post("/auth/logout", s.logout)

			r.Get("/profile", s.getProfile)
			r.Put("/profile", s.updateProfile)
			r.Delete("/profile", s.deleteProfile)

			r.Get("/questions", s.listQuestions)
			r.Get("/backends", s.listBackends)
			r.Get("/backends/local/status", s.localStatus)

			r.With(s.rateLimit).Post("/chat", s.chat)

			r.Get("/history", s.listHistory)
			r.Delete("/history", s.deleteHistory)
			r.Get("/history/stats", s.historyStats)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(deps.Store, store.RoleAdmin, logger))
				r.Post("/questions", s.createQuestion)
				r.Delete("/users/{id}", s.deleteUser)
			})
		})
	})

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for in-flight WhatsApp
// deliveries until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	backends := s.deps.Router.Discover(r.Context(), "")
	keys := make([]string, 0, len(backends))
	for _, b := range backends {
		keys = append(keys, b.Key)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":         "studenthub",
		"status":          "ok",
		"default_backend": s.cfg.DefaultBackend,
		"cloud_backends":  keys,
		"whatsapp":        s.deps.Sender != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) currentUser(r *http.Request) int64 {
	id, _ := auth.UserID(r.Context())
	return id
}
