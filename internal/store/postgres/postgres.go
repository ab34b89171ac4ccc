// Package postgres implements store.Driver on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

//go:embed schema.sql
var schema string

type DB struct {
	pool *pgxpool.Pool
}

var _ store.Driver = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Migrate applies the schema. Every statement is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// Users

const userColumns = `id, name, email, tel, password_hash, created_ts, updated_ts`

func scanUser(row pgx.Row) (*store.User, error) {
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
	now := time.Now()
	u.Email = store.NormalizeEmail(u.Email)
	err := d.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, tel, password_hash, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`,
		u.Name, u.Email, u.Tel, u.PasswordHash, now.Unix(),
	).Scan(&u.ID)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.CreatedAt = time.Unix(now.Unix(), 0)
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (d *DB) GetUser(ctx context.Context, id int64) (*store.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, store.NormalizeEmail(email)))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (d *DB) UpdateUser(ctx context.Context, u *store.User) error {
	now := time.Now().Unix()
	u.Email = store.NormalizeEmail(u.Email)
	tag, err := d.pool.Exec(ctx, `
		UPDATE users SET name = $1, email = $2, tel = $3, password_hash = $4, updated_ts = $5
		WHERE id = $6`,
		u.Name, u.Email, u.Tel, u.PasswordHash, now, u.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	u.UpdatedAt = time.Unix(now, 0)
	return nil
}

// DeleteUser removes the account with its roles and chat history. Questions
// the user authored stay in the FAQ without an author.
func (d *DB) DeleteUser(ctx context.Context, id int64) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM chat_history WHERE user_id = $1`,
		`DELETE FROM user_roles WHERE user_id = $1`,
		`UPDATE questions SET author_id = NULL WHERE author_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return fmt.Errorf("delete user dependents: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (d *DB) GrantRole(ctx context.Context, userID int64, role string) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role, created_ts) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role) DO NOTHING`,
		userID, role, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

func (d *DB) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has role: %w", err)
	}
	return exists, nil
}

// Questions

func (d *DB) CreateQuestion(ctx context.Context, q *store.Question) error {
	now := time.Now().Unix()
	var author *int64
	if q.AuthorID != 0 {
		author = &q.AuthorID
	}
	err := d.pool.QueryRow(ctx, `
		INSERT INTO questions (question_text, answer, author_id, created_ts)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		q.Text, q.Answer, author, now,
	).Scan(&q.ID)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	q.CreatedAt = time.Unix(now, 0)
	return nil
}

func (d *DB) queryQuestions(ctx context.Context, sql string, args ...any) ([]store.Question, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
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

const questionColumns = `id, question_text, answer, COALESCE(author_id, 0), created_ts`

func (d *DB) ListQuestions(ctx context.Context) ([]store.Question, error) {
	return d.queryQuestions(ctx, `SELECT `+questionColumns+` FROM questions ORDER BY id`)
}

func (d *DB) SearchQuestions(ctx context.Context, term string) ([]store.Question, error) {
	return d.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_text ILIKE $1 ESCAPE '\' ORDER BY id`,
		store.LikePattern(term),
	)
}

// Chats

func (d *DB) SaveChat(ctx context.Context, c *store.ChatRecord) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = time.Unix(c.CreatedAt.Unix(), 0)
	err := d.pool.QueryRow(ctx, `
		INSERT INTO chat_history (user_id, session_id, message, response, model_used, service_type, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		c.UserID, c.SessionID, c.Message, c.Response, c.BackendName, c.BackendKind, c.CreatedAt.Unix(),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (d *DB) ListChats(ctx context.Context, f store.ChatFilter) ([]store.ChatRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != 0 {
		add("user_id = $%d", f.UserID)
	}
	if f.SessionID != "" {
		add("session_id = $%d", f.SessionID)
	}
	if !f.Since.IsZero() {
		add("created_ts >= $%d", f.Since.Unix())
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
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := d.pool.Query(ctx, q, args...)
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
	tag, err := d.pool.Exec(ctx, `DELETE FROM chat_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete chats: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) DeleteChatsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM chat_history WHERE created_ts < $1`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete old chats: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (d *DB) ChatStats(ctx context.Context, userID int64) (store.ChatStats, error) {
	stats := store.ChatStats{ByBackend: map[string]int{}, ByKind: map[string]int{}}

	if err := d.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE $1::bigint = 0 OR user_id = $1`, userID,
	).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("count chats: %w", err)
	}

	for col, dst := range map[string]map[string]int{"model_used": stats.ByBackend, "service_type": stats.ByKind} {
		rows, err := d.pool.Query(ctx,
			`SELECT `+col+`, COUNT(*) FROM chat_history WHERE $1::bigint = 0 OR user_id = $1 GROUP BY `+col, userID)
		if err != nil {
			return stats, fmt.Errorf("group chats by %s: %w", col, err)
		}
		for rows.Next() {
			var (
				key string
				n   int
			)
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return stats, fmt.Errorf("scan %s: %w", col, err)
			}
			dst[key] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
