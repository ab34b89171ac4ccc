package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/studenthub/internal/anthropic"
	"github.com/MikeSquared-Agency/studenthub/internal/api"
	"github.com/MikeSquared-Agency/studenthub/internal/auth"
	"github.com/MikeSquared-Agency/studenthub/internal/chat"
	"github.com/MikeSquared-Agency/studenthub/internal/config"
	"github.com/MikeSquared-Agency/studenthub/internal/gemini"
	"github.com/MikeSquared-Agency/studenthub/internal/hermes"
	"github.com/MikeSquared-Agency/studenthub/internal/history"
	"github.com/MikeSquared-Agency/studenthub/internal/metrics"
	"github.com/MikeSquared-Agency/studenthub/internal/ollama"
	"github.com/MikeSquared-Agency/studenthub/internal/router"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
	"github.com/MikeSquared-Agency/studenthub/internal/store/postgres"
	"github.com/MikeSquared-Agency/studenthub/internal/store/sqlite"
	"github.com/MikeSquared-Agency/studenthub/internal/whatsapp"
)

const cleanupInterval = 24 * time.Hour

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("studenthub starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "sqlite", cfg.UseSQLite)

	// Cloud backend (optional: without a credential only local models are offered)
	cloud, cloudName, err := newCloud(ctx, cfg)
	if err != nil {
		slog.Error("failed to create cloud client", "provider", cfg.CloudProvider, "error", err)
		os.Exit(1)
	}
	if cloud == nil {
		slog.Warn("no cloud credential configured, online backend disabled", "provider", cfg.CloudProvider)
	} else {
		slog.Info("cloud client ready", "provider", cfg.CloudProvider, "name", cloudName)
	}

	rec := metrics.New()
	local := ollama.NewClient()

	opts := router.DefaultOptions()
	opts.CloudName = cloudName
	opts.CloudTimeout = cfg.CloudTimeout
	opts.LocalTimeout = cfg.OllamaTimeout
	opts.DiscoveryTimeout = cfg.OllamaDiscoveryTimeout
	opts.Sampling = ollama.Options{
		Temperature: cfg.OllamaTemperature,
		TopP:        cfg.OllamaTopP,
		TopK:        cfg.OllamaTopK,
	}
	rt := router.New(cloud, local, opts, rec, slog.Default())

	hist := history.NewService(db, slog.Default())

	// NATS/Hermes (optional)
	var publisher chat.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Twilio gateway (optional: without it webhook answers go back inline)
	var sender api.Sender
	if cfg.TwilioConfigured() {
		sender = whatsapp.NewGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, cfg.WhatsAppMaxLength, slog.Default())
		slog.Info("whatsapp gateway ready", "from", cfg.TwilioWhatsAppNumber)
	} else {
		slog.Warn("twilio not configured, whatsapp answers will be sent inline")
	}

	svc := chat.NewService(db, rt, hist, publisher, rec, chat.Options{
		DefaultBackend:   cfg.DefaultModel,
		DefaultLocalHost: cfg.OllamaBaseURL,
		HistoryWindow:    cfg.HistoryWindow,
		HistoryLimit:     cfg.HistoryLimit,
		FallbackMessage:  cfg.FallbackMessage,
	}, slog.Default())

	srv := api.NewServer(api.Config{
		Port:              cfg.Port,
		DefaultBackend:    cfg.DefaultModel,
		DefaultLocalHost:  cfg.OllamaBaseURL,
		SecureCookies:     strings.HasPrefix(cfg.PublicURL, "https://"),
		ChatRatePerMinute: cfg.ChatRatePerMinute,
		TwilioAuthToken:   cfg.TwilioAuthToken,
		ValidateSignature: cfg.TwilioValidateSignature,
		PublicURL:         cfg.PublicURL,
	}, api.Deps{
		Store:   db,
		Tokens:  auth.NewTokens(cfg.SecretKey, cfg.SessionTTL, cfg.RememberTTL),
		Chat:    svc,
		History: hist,
		Router:  rt,
		Local:   local,
		Sender:  sender,
		Metrics: rec,
		Logger:  slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// History retention
	retention := time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour
	if retention > 0 {
		go runCleanup(ctx, hist, retention)
	}

	slog.Info("studenthub ready", "port", cfg.Port, "default_backend", cfg.DefaultModel)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	slog.Info("studenthub stopped")
}

func openStore(ctx context.Context, cfg config.Config) (store.Driver, error) {
	if cfg.UseSQLite {
		return sqlite.New(cfg.SQLitePath)
	}
	return postgres.New(ctx, cfg.DatabaseURL)
}

// newCloud returns a nil completer, not a typed nil, when the provider has no
// credential.
func newCloud(ctx context.Context, cfg config.Config) (router.Completer, string, error) {
	if !cfg.CloudConfigured() {
		return nil, "", nil
	}
	switch cfg.CloudProvider {
	case "anthropic":
		return anthropic.NewClient(cfg.AnthropicKey, cfg.AnthropicModel), "Claude (" + cfg.AnthropicModel + ")", nil
	default:
		c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, "", err
		}
		return c, "Gemini (" + c.Model() + ")", nil
	}
}

func runCleanup(ctx context.Context, hist *history.Service, retention time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		if _, err := hist.Cleanup(ctx, retention); err != nil {
			slog.Warn("history cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
