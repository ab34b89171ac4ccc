package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultFallbackMessage = "Desculpe, ocorreu um erro ao processar sua solicitação."

type Config struct {
	Port     int
	LogLevel string

	DatabaseURL string
	UseSQLite   bool
	SQLitePath  string

	SecretKey      string
	SessionTTL     time.Duration
	RememberTTL    time.Duration
	CloudProvider  string
	GeminiAPIKey   string
	GeminiModel    string
	AnthropicKey   string
	AnthropicModel string
	CloudTimeout   time.Duration

	DefaultModel           string
	OllamaBaseURL          string
	OllamaTimeout          time.Duration
	OllamaDiscoveryTimeout time.Duration
	OllamaTemperature      float64
	OllamaTopP             float64
	OllamaTopK             int

	HistoryWindow        time.Duration
	HistoryLimit         int
	HistoryRetentionDays int

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioWhatsAppNumber    string
	TwilioValidateSignature bool
	PublicURL               string
	WhatsAppMaxLength       int

	NatsURL   string
	NatsToken string

	ChatRatePerMinute int
	FallbackMessage   string
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none are
// named) into the process environment. Variables already set win, and a
// missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() Config {
	return Config{
		Port:     envInt("STUDENTHUB_PORT", 8080),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DatabaseURL: envStr("DATABASE_URL", ""),
		UseSQLite:   envBool("USE_SQLITE", false),
		SQLitePath:  envStr("SQLITE_PATH", "chatbot.db"),

		SecretKey:      envStr("SECRET_KEY", ""),
		SessionTTL:     envDuration("SESSION_TTL", 24*time.Hour),
		RememberTTL:    envDuration("REMEMBER_COOKIE_DURATION", 30*24*time.Hour),
		CloudProvider:  strings.ToLower(envStr("CLOUD_PROVIDER", "gemini")),
		GeminiAPIKey:   envStr("GEMINI_API_KEY", ""),
		GeminiModel:    envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		AnthropicKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel: envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		CloudTimeout:   envDuration("CLOUD_TIMEOUT", 60*time.Second),

		DefaultModel:           envStr("DEFAULT_MODEL", "online"),
		OllamaBaseURL:          envStr("OLLAMA_BASE_URL", ""),
		OllamaTimeout:          time.Duration(envInt("OLLAMA_TIMEOUT", 60)) * time.Second,
		OllamaDiscoveryTimeout: envDuration("OLLAMA_DISCOVERY_TIMEOUT", 5*time.Second),
		OllamaTemperature:      envFloat("OLLAMA_TEMPERATURE", 0.7),
		OllamaTopP:             envFloat("OLLAMA_TOP_P", 0.9),
		OllamaTopK:             envInt("OLLAMA_TOP_K", 40),

		HistoryWindow:        envDuration("HISTORY_WINDOW", 24*time.Hour),
		HistoryLimit:         envInt("HISTORY_LIMIT", 20),
		HistoryRetentionDays: envInt("HISTORY_RETENTION_DAYS", 30),

		TwilioAccountSID:        envStr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         envStr("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppNumber:    envStr("TWILIO_WHATSAPP_NUMBER", ""),
		TwilioValidateSignature: envBool("TWILIO_VALIDATE_SIGNATURE", true),
		PublicURL:               strings.TrimSuffix(envStr("PUBLIC_URL", ""), "/"),
		WhatsAppMaxLength:       envInt("WHATSAPP_MAX_LENGTH", 1500),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		ChatRatePerMinute: envInt("CHAT_RATE_PER_MINUTE", 20),
		FallbackMessage:   envStr("FALLBACK_MESSAGE", defaultFallbackMessage),
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if !c.UseSQLite && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required unless USE_SQLITE is set"))
	}
	switch c.CloudProvider {
	case "gemini", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("unknown CLOUD_PROVIDER %q", c.CloudProvider))
	}
	for name, d := range map[string]time.Duration{
		"CLOUD_TIMEOUT":            c.CloudTimeout,
		"OLLAMA_TIMEOUT":           c.OllamaTimeout,
		"OLLAMA_DISCOVERY_TIMEOUT": c.OllamaDiscoveryTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

// CloudConfigured reports whether the selected provider has a credential.
func (c Config) CloudConfigured() bool {
	switch c.CloudProvider {
	case "anthropic":
		return c.AnthropicKey != ""
	default:
		return c.GeminiAPIKey != ""
	}
}

// TwilioConfigured reports whether outbound WhatsApp delivery is possible.
func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
