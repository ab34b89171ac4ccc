// Package history records chat exchanges and turns recent ones into prompt
// context.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

// Repository is the slice of store.Driver the service needs.
type Repository interface {
	SaveChat(ctx context.Context, c *store.ChatRecord) error
	ListChats(ctx context.Context, f store.ChatFilter) ([]store.ChatRecord, error)
	DeleteChatsByUser(ctx context.Context, userID int64) (int64, error)
	DeleteChatsBefore(ctx context.Context, before time.Time) (int64, error)
	ChatStats(ctx context.Context, userID int64) (store.ChatStats, error)
}

// Turn is one question and its answer.
type Turn struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

// Exchange is what gets saved after each answer.
type Exchange struct {
	UserID      int64
	SessionID   string
	Message     string
	Response    string
	BackendName string
	BackendKind string
}

const DefaultUserLimit = 50

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

func (s *Service) Save(ctx context.Context, ex Exchange) (*store.ChatRecord, error) {
	rec := &store.ChatRecord{
		UserID:      ex.UserID,
		SessionID:   ex.SessionID,
		Message:     ex.Message,
		Response:    ex.Response,
		BackendName: ex.BackendName,
		BackendKind: ex.BackendKind,
		CreatedAt:   s.now(),
	}
	if err := s.repo.SaveChat(ctx, rec); err != nil {
		return nil, fmt.Errorf("save exchange: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit turns from the last within, newest first.
func (s *Service) Recent(ctx context.Context, userID int64, within time.Duration, limit int) ([]Turn, error) {
	recs, err := s.repo.ListChats(ctx, store.ChatFilter{
		UserID: userID,
		Since:  s.now().Add(-within),
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	turns := make([]Turn, 0, len(recs))
	for _, r := range recs {
		turns = append(turns, Turn{Message: r.Message, Response: r.Response})
	}
	return turns, nil
}

// Session returns every record of a session in the order it happened.
func (s *Service) Session(ctx context.Context, sessionID string) ([]store.ChatRecord, error) {
	recs, err := s.repo.ListChats(ctx, store.ChatFilter{SessionID: sessionID, Ascending: true})
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return recs, nil
}

// User returns a user's records newest first, optionally within one session.
func (s *Service) User(ctx context.Context, userID int64, limit int, sessionID string) ([]store.ChatRecord, error) {
	if limit <= 0 {
		limit = DefaultUserLimit
	}
	recs, err := s.repo.ListChats(ctx, store.ChatFilter{UserID: userID, SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("user history: %w", err)
	}
	return recs, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteChatsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user history: %w", err)
	}
	return n, nil
}

// Cleanup drops records older than retention. A non-positive retention keeps
// everything.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteChatsBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup history: %w", err)
	}
	if n > 0 {
		s.logger.Info("old chat history removed", "count", n, "retention", retention)
	}
	return n, nil
}

func (s *Service) Stats(ctx context.Context, userID int64) (store.ChatStats, error) {
	stats, err := s.repo.ChatStats(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("history stats: %w", err)
	}
	return stats, nil
}

// Flatten renders newest-first turns as a chronological transcript.
func Flatten(turns []Turn) string {
	var b strings.Builder
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Pergunta: ")
		b.WriteString(t.Message)
		b.WriteString("\nResposta: ")
		b.WriteString(t.Response)
	}
	return b.String()
}
