// Package sqlite implements store.Driver on an embedded SQLite file. It is
// meant for development and single-instance deployments.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

//go:embed schema.sql
var schema string

type DB struct {
	db *sql.DB
}

var _ store.Driver = (*DB)(nil)

// New opens the database at path. Use ":memory:" for a throwaway database.
func New(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}

	// modernc.org/sqlite wants each pragma prefixed with _pragma=.
	dsn := path + "?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(0)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// One connection: SQLite serialises writers anyway, and an in-memory
	// database only exists on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

const userColumns = `id, name, email, tel, password_hash, created_ts, updated_ts`

func scanUser(row *sql.Row) (*store.User, error) {
	var (
		u                store.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Tel, &u.PasswordHash, &created, &updated); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return &u, nil
}

func (d *DB) CreateUser(ctx context.Context, u *store.User) error {
	now := time.Now().Unix()
	u.Email = store.NormalizeEmail(u.Email)
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO users (name, email, tel, password_hash, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Tel, u.PasswordHash, now, now,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	u.CreatedAt = time.Unix(now, 0)
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (d *DB) GetUser(ctx context.Context, id int64) (*store.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	u, err := scanUser(d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, store.NormalizeEmail(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (d *DB) UpdateUser(ctx context.Context, u *store.User) error {
	now := time.Now().Unix()
	u.Email = store.NormalizeEmail(u.Email)
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, tel = ?, password_hash = ?, updated_ts = ?
		WHERE id = ?`,
		u.Name, u.Email, u.Tel, u.PasswordHash, now, u.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	u.UpdatedAt = time.Unix(now, 0)
	return nil
}

func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM chat_history WHERE user_id = ?`,
		`DELETE FROM user_roles WHERE user_id = ?`,
		`UPDATE questions SET author_id = NULL WHERE author_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete user dependents: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (d *DB) GrantRole(ctx context.Context, userID int64, role string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role, created_ts) VALUES (?, ?, ?)`,
		userID, role, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (d *DB) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = ? AND role = ?)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has role: %w", err)
	}
	return exists, nil
}

func (d *DB) CreateQuestion(ctx context.Context, q *store.Question) error {
	now := time.Now().Unix()
	var author sql.NullInt64
	if q.AuthorID != 0 {
		author = sql.NullInt64{Int64: q.AuthorID, Valid: true}
	}
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO questions (question_text, answer, author_id, created_ts) VALUES (?, ?, ?, ?)`,
		q.Text, q.Answer, author, now,
	)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	if q.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	q.CreatedAt = time.Unix(now, 0)
	return nil
}

const questionColumns = `id, question_text, answer, COALESCE(author_id, 0), created_ts`

func (d *DB) queryQuestions(ctx context.Context, query string, args ...any) ([]store.Question, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var out []store.Question
	for rows.Next() {
		var (
			q       store.Question
			created int64
		)
		if err := rows.Scan(&q.ID, &q.Text, &q.Answer, &q.AuthorID, &created); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.CreatedAt = time.Unix(created, 0)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (d *DB) ListQuestions(ctx context.Context) ([]store.Question, error) {
	return d.queryQuestions(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY id`)
}

// SearchQuestions relies on SQLite's LIKE, which folds ASCII case only.
func (d *DB) SearchQuestions(ctx context.Context, term string) ([]store.Question, error) {
	return d.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_text LIKE ? ESCAPE '\' ORDER BY id`,
		store.LikePattern(term),
	)
}

func (d *DB) SaveChat(ctx context.Context, c *store.ChatRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = time.Unix(c.CreatedAt.Unix(), 0)
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, session_id, message, response, model_used, service_type, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.SessionID, c.Message, c.Response, c.BackendName, c.BackendKind, c.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("chat id: %w", err)
	}
	return nil
}

func (d *DB) ListChats(ctx context.Context, f store.ChatFilter) ([]store.ChatRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_ts >= ?")
		args = append(args, f.Since.Unix())
	}

	q := `SELECT id, user_id, session_id, message, response, model_used, service_type, created_ts FROM chat_history`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		q += " ORDER BY created_ts ASC, id ASC"
	} else {
		q += " ORDER BY created_ts DESC, id DESC"
	}
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var out []store.ChatRecord
	for rows.Next() {
		var (
			c       store.ChatRecord
			created int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Message, &c.Response, &c.BackendName, &c.BackendKind, &created); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.CreatedAt = time.Unix(created, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *DB) DeleteChatsByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete chats: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) DeleteChatsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM chat_history WHERE created_ts < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete old chats: %w", err)
	}
	return res.RowsAffected()
}

func (d *DB) ChatStats(ctx context.Context, userID int64) (store.ChatStats, error) {
	stats := store.ChatStats{ByBackend: map[string]int{}, ByKind: map[string]int{}}

	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE ? = 0 OR user_id = ?`, userID, userID,
	).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("count chats: %w", err)
	}

	for col, dst := range map[string]map[string]int{"model_used": stats.ByBackend, "service_type": stats.ByKind} {
		if err := d.groupCount(ctx, col, userID, dst); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (d *DB) groupCount(ctx context.Context, col string, userID int64, dst map[string]int) error {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+col+`, COUNT(*) FROM chat_history WHERE ? = 0 OR user_id = ? GROUP BY `+col,
		userID, userID,
	)
	if err != nil {
		return fmt.Errorf("group chats by %s: %w", col, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s: %w", col, err)
		}
		dst[key] = n
	}
	return rows.Err()
}
