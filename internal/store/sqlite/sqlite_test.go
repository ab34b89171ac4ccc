package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/studenthub/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *DB, email string) *store.User {
	t.Helper()
	u := &store.User{Name: "Ana", Email: email, PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Migrate(context.Background()))
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := createUser(t, db, " Ana@Example.com ")
	assert.NotZero(t, u.ID)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())

	err := db.CreateUser(ctx, &store.User{Name: "Dup", Email: "ANA@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)

	got, err := db.GetUserByEmail(ctx, "ana@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got.Name = "Ana Maria"
	got.Tel = "+351900000000"
	require.NoError(t, db.UpdateUser(ctx, got))

	again, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", again.Name)
	assert.Equal(t, "+351900000000", again.Tel)

	_, err = db.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, db.UpdateUser(ctx, &store.User{ID: 9999, Email: "x@y.z"}), store.ErrNotFound)
}

func TestUpdateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createUser(t, db, "a@example.com")
	b := createUser(t, db, "b@example.com")

	b.Email = "a@example.com"
	assert.ErrorIs(t, db.UpdateUser(context.Background(), b), store.ErrDuplicateEmail)
}

func TestRoles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "admin@example.com")

	ok, err := db.HasRole(ctx, u.ID, store.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.GrantRole(ctx, u.ID, store.RoleAdmin))
	require.NoError(t, db.GrantRole(ctx, u.ID, store.RoleAdmin))

	ok, err = db.HasRole(ctx, u.ID, store.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuestions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createUser(t, db, "prof@example.com")

	q1 := &store.Question{Text: "Qual é a capital de Portugal?", Answer: "Lisboa", AuthorID: author.ID}
	q2 := &store.Question{Text: "Quanto é 100% de 5?", Answer: "5"}
	require.NoError(t, db.CreateQuestion(ctx, q1))
	require.NoError(t, db.CreateQuestion(ctx, q2))

	all, err := db.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, author.ID, all[0].AuthorID)
	assert.Zero(t, all[1].AuthorID)

	found, err := db.SearchQuestions(ctx, "CAPITAL de")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Lisboa", found[0].Answer)

	found, err = db.SearchQuestions(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, q2.ID, found[0].ID)

	found, err = db.SearchQuestions(ctx, "_")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestChats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "aluno@example.com")
	other := createUser(t, db, "outro@example.com")
	now := time.Now()

	records := []*store.ChatRecord{
		{UserID: u.ID, SessionID: "s1", Message: "m1", Response: "r1", BackendName: "Gemini 2.0 Flash", BackendKind: "online", CreatedAt: now.Add(-72 * time.Hour)},
		{UserID: u.ID, SessionID: "s1", Message: "m2", Response: "r2", BackendName: "Gemini 2.0 Flash", BackendKind: "online", CreatedAt: now.Add(-2 * time.Hour)},
		{UserID: u.ID, SessionID: "s2", Message: "m3", Response: "r3", BackendName: "Gemma2 (2b)", BackendKind: "local", CreatedAt: now.Add(-1 * time.Hour)},
		{UserID: other.ID, SessionID: "s3", Message: "x", Response: "y", BackendName: "FAQ", BackendKind: "faq", CreatedAt: now},
	}
	for _, r := range records {
		require.NoError(t, db.SaveChat(ctx, r))
		assert.NotZero(t, r.ID)
	}

	recent, err := db.ListChats(ctx, store.ChatFilter{UserID: u.ID, Since: now.Add(-24 * time.Hour), Limit: 20})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].Message)
	assert.Equal(t, "m2", recent[1].Message)

	limited, err := db.ListChats(ctx, store.ChatFilter{UserID: u.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "m3", limited[0].Message)

	session, err := db.ListChats(ctx, store.ChatFilter{SessionID: "s1", Ascending: true})
	require.NoError(t, err)
	require.Len(t, session, 2)
	assert.Equal(t, "m1", session[0].Message)

	stats, err := db.ChatStats(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByBackend["Gemini 2.0 Flash"])
	assert.Equal(t, 1, stats.ByKind["local"])

	global, err := db.ChatStats(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, global.Total)
	assert.Equal(t, 1, global.ByKind["faq"])

	n, err := db.DeleteChatsBefore(ctx, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = db.DeleteChatsByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeleteUser_RemovesDependents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createUser(t, db, "gone@example.com")

	require.NoError(t, db.GrantRole(ctx, u.ID, store.RoleAdmin))
	require.NoError(t, db.SaveChat(ctx, &store.ChatRecord{UserID: u.ID, Message: "m", Response: "r"}))
	q := &store.Question{Text: "q", Answer: "a", AuthorID: u.ID}
	require.NoError(t, db.CreateQuestion(ctx, q))

	require.NoError(t, db.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, db.DeleteUser(ctx, u.ID), store.ErrNotFound)

	chats, err := db.ListChats(ctx, store.ChatFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Empty(t, chats)

	ok, err := db.HasRole(ctx, u.ID, store.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	questions, err := db.ListQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Zero(t, questions[0].AuthorID)
}
