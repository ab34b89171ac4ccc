// Package chat answers a student's question: from the FAQ when a stored
// question matches, otherwise from the selected generative backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/studenthub/internal/hermes"
	"github.com/MikeSquared-Agency/studenthub/internal/history"
	"github.com/MikeSquared-Agency/studenthub/internal/markup"
	"github.com/MikeSquared-Agency/studenthub/internal/metrics"
	"github.com/MikeSquared-Agency/studenthub/internal/router"
	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

var ErrEmptyMessage = errors.New("empty message")

type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

// Target is the markup dialect answers on this channel are rendered in.
func (c Channel) Target() markup.Target {
	if c == ChannelWhatsApp {
		return markup.TargetPlain
	}
	return markup.TargetHTML
}

const (
	SourceFAQ      = "faq"
	SourceLLM      = "llm"
	SourceFallback = "fallback"

	faqBackendName = "FAQ"
)

type FAQ interface {
	SearchQuestions(ctx context.Context, term string) ([]store.Question, error)
	ListQuestions(ctx context.Context) ([]store.Question, error)
}

type Generator interface {
	Generate(ctx context.Context, req router.Request) router.Envelope
}

type History interface {
	Recent(ctx context.Context, userID int64, within time.Duration, limit int) ([]history.Turn, error)
	Save(ctx context.Context, ex history.Exchange) (*store.ChatRecord, error)
}

type Publisher interface {
	PublishChatAnswered(ev hermes.ChatAnswered) error
}

type Options struct {
	DefaultBackend   string
	DefaultLocalHost string
	HistoryWindow    time.Duration
	HistoryLimit     int
	FallbackMessage  string
	// PlainLimit caps plain-text answers; 0 leaves them whole so the
	// messaging gateway can split them instead.
	PlainLimit int
}

type Question struct {
	UserID     int64
	Message    string
	BackendKey string
	LocalHost  string
	SessionID  string
	Channel    Channel
}

type Answer struct {
	Text        string `json:"answer"`
	Source      string `json:"source"`
	Success     bool   `json:"success"`
	BackendName string `json:"model,omitempty"`
	BackendKind string `json:"type,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

type Service struct {
	faq       FAQ
	generator Generator
	history   History
	publisher Publisher
	metrics   *metrics.Recorder
	opts      Options
	logger    *slog.Logger
}

// NewService wires the collaborators. history and publisher may be nil.
func NewService(faq FAQ, gen Generator, hist History, pub Publisher, rec *metrics.Recorder, opts Options, logger *slog.Logger) *Service {
	return &Service{
		faq:       faq,
		generator: gen,
		history:   hist,
		publisher: pub,
		metrics:   rec,
		opts:      opts,
		logger:    logger,
	}
}

// Ask answers q. Backend failures are not errors: the answer then carries the
// fallback message. Only an empty message or an unknown backend key fail.
func (s *Service) Ask(ctx context.Context, q Question) (*Answer, error) {
	q.Message = strings.TrimSpace(q.Message)
	if q.Message == "" {
		return nil, ErrEmptyMessage
	}
	if q.Channel == "" {
		q.Channel = ChannelWeb
	}
	if q.BackendKey == "" {
		q.BackendKey = s.opts.DefaultBackend
	}
	if q.LocalHost == "" {
		q.LocalHost = s.opts.DefaultLocalHost
	}
	if q.SessionID == "" {
		q.SessionID = history.NewSessionID()
	}

	ans, raw, err := s.answer(ctx, q)
	if err != nil {
		return nil, err
	}

	rendered, err := markup.Normalizer{PlainLimit: s.opts.PlainLimit}.Normalize(raw, q.Channel.Target())
	if err != nil {
		return nil, fmt.Errorf("render answer: %w", err)
	}
	ans.Text = rendered
	ans.SessionID = q.SessionID

	s.record(ctx, q, ans, raw)
	return ans, nil
}

// answer returns the answer metadata and its unrendered text.
func (s *Service) answer(ctx context.Context, q Question) (*Answer, string, error) {
	if match := s.lookupFAQ(ctx, q.Message); match != nil {
		return &Answer{
			Source:      SourceFAQ,
			Success:     true,
			BackendName: faqBackendName,
			BackendKind: SourceFAQ,
		}, match.Answer, nil
	}

	env := s.generator.Generate(ctx, router.Request{
		Message:    q.Message,
		BackendKey: q.BackendKey,
		LocalHost:  q.LocalHost,
		Context:    s.buildContext(ctx, q.UserID),
	})
	if errors.Is(env.Cause, router.ErrBackendNotFound) {
		return nil, "", fmt.Errorf("%w: %s", router.ErrBackendNotFound, q.BackendKey)
	}
	if errors.Is(env.Cause, router.ErrEmptyMessage) {
		return nil, "", ErrEmptyMessage
	}

	ans := &Answer{
		Source:      SourceLLM,
		Success:     env.Success,
		BackendName: env.BackendName,
		BackendKind: string(env.BackendKind),
	}
	if !env.Success {
		ans.Source = SourceFallback
		ans.Error = env.Error
		return ans, s.opts.FallbackMessage, nil
	}
	return ans, env.Text, nil
}

func (s *Service) lookupFAQ(ctx context.Context, message string) *store.Question {
	matches, err := s.faq.SearchQuestions(ctx, message)
	if err != nil {
		s.logger.Warn("faq lookup failed", "error", err)
		return nil
	}
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

// buildContext joins the FAQ knowledge base with the user's recent turns.
func (s *Service) buildContext(ctx context.Context, userID int64) string {
	var parts []string

	questions, err := s.faq.ListQuestions(ctx)
	if err != nil {
		s.logger.Warn("faq listing failed", "error", err)
	}
	if knowledge := FormatKnowledge(questions); knowledge != "" {
		parts = append(parts, knowledge)
	}

	if s.history != nil && userID != 0 {
		turns, err := s.history.Recent(ctx, userID, s.opts.HistoryWindow, s.opts.HistoryLimit)
		if err != nil {
			s.logger.Warn("recent history unavailable", "user_id", userID, "error", err)
		}
		if transcript := history.Flatten(turns); transcript != "" {
			parts = append(parts, "Histórico recente:\n"+transcript)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FormatKnowledge renders the FAQ as question/answer pairs for prompt context.
func FormatKnowledge(questions []store.Question) string {
	var b strings.Builder
	for _, q := range questions {
		fmt.Fprintf(&b, "Pergunta: %s\n Resposta: %s\n", q.Text, q.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) record(ctx context.Context, q Question, ans *Answer, raw string) {
	s.metrics.ObserveAnswer(ans.Source, string(q.Channel))

	if s.history != nil && q.UserID != 0 {
		_, err := s.history.Save(ctx, history.Exchange{
			UserID:      q.UserID,
			SessionID:   q.SessionID,
			Message:     q.Message,
			Response:    raw,
			BackendName: ans.BackendName,
			BackendKind: ans.BackendKind,
		})
		if err != nil {
			s.logger.Warn("failed to save chat history", "user_id", q.UserID, "error", err)
		}
	}

	if s.publisher != nil {
		err := s.publisher.PublishChatAnswered(hermes.ChatAnswered{
			UserID:      q.UserID,
			SessionID:   q.SessionID,
			Source:      ans.Source,
			BackendName: ans.BackendName,
			BackendKind: ans.BackendKind,
			Channel:     string(q.Channel),
			Success:     ans.Success,
			Timestamp:   time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("failed to publish chat event", "error", err)
		}
	}
}
