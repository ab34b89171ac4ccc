// Package store defines the persistence contract shared by the Postgres and
// SQLite drivers.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

const RoleAdmin = "admin"

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Tel          string    `json:"tel,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Question struct {
	ID        int64     `json:"id"`
	Text      string    `json:"question"`
	Answer    string    `json:"answer"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatRecord struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Message     string    `json:"message"`
	Response    string    `json:"response"`
	BackendName string    `json:"model_used,omitempty"`
	BackendKind string    `json:"service_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatFilter selects chat records. Zero fields do not filter. Results are
// newest first unless Ascending is set.
type ChatFilter struct {
	UserID    int64
	SessionID string
	Since     time.Time
	Limit     int
	Ascending bool
}

type ChatStats struct {
	Total     int            `json:"total_messages"`
	ByBackend map[string]int `json:"models"`
	ByKind    map[string]int `json:"services"`
}

type Driver interface {
	Migrate(ctx context.Context) error

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id int64) error
	GrantRole(ctx context.Context, userID int64, role string) error
	HasRole(ctx context.Context, userID int64, role string) (bool, error)

	CreateQuestion(ctx context.Context, q *Question) error
	ListQuestions(ctx context.Context) ([]Question, error)
	// SearchQuestions returns questions whose text contains term,
	// case-insensitively, oldest first.
	SearchQuestions(ctx context.Context, term string) ([]Question, error)

	SaveChat(ctx context.Context, c *ChatRecord) error
	ListChats(ctx context.Context, f ChatFilter) ([]ChatRecord, error)
	DeleteChatsByUser(ctx context.Context, userID int64) (int64, error)
	DeleteChatsBefore(ctx context.Context, before time.Time) (int64, error)
	ChatStats(ctx context.Context, userID int64) (ChatStats, error)

	Close() error
}

// LikePattern wraps term in % wildcards for a LIKE ... ESCAPE '\' clause,
// escaping the wildcards it already contains.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// NormalizeEmail lower-cases and trims an address before it is stored or
// looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
