package auth

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/db"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { dbh.Close() })
	return dbh
}

func TestCreateAndAuthenticate(t *testing.T) {
	users := NewUsers(openDB(t))
	users.cost = bcrypt.MinCost
	ctx := context.Background()

	u, err := users.Create(ctx, " alice ", "learner", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	got, err := users.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "learner", got.Role)

	_, err = users.Authenticate(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "bob", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Create(ctx, "alice", "learner", "another password")
	assert.True(t, clinical.IsConflict(err))
	_, err = users.Create(ctx, "carol", "student", "long enough")
	assert.True(t, clinical.IsValidation(err))
	_, err = users.Create(ctx, "carol", "learner", "short")
	assert.True(t, clinical.IsValidation(err))
}

func TestEnsureAdmin(t *testing.T) {
	users := NewUsers(openDB(t))
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-password"), bcrypt.MinCost)
	require.NoError(t, err)

	created, err := users.EnsureAdmin(ctx, "admin", string(hash))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = users.EnsureAdmin(ctx, "admin2", string(hash))
	require.NoError(t, err)
	assert.False(t, created, "only into an empty users table")

	u, err := users.Authenticate(ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Role)

	_, err = users.EnsureAdmin(ctx, "admin", "plain")
	assert.True(t, clinical.IsValidation(err))
}

func TestGuest(t *testing.T) {
	users := NewUsers(openDB(t))
	ctx := context.Background()

	g, err := users.Guest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "learner", g.Role)
	assert.Contains(t, g.ID, guestPrefix)

	again, err := users.Guest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.ID, again.ID)

	_, err = users.Authenticate(ctx, g.Username, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	users := NewUsers(openDB(t))
	users.cost = bcrypt.MinCost
	ctx := context.Background()

	u, err := users.Create(ctx, "carol", "learner", "first password")
	require.NoError(t, err)

	assert.ErrorIs(t, users.ChangePassword(ctx, u.ID, "wrong", "second password"), ErrInvalidCredentials)
	assert.True(t, clinical.IsValidation(users.ChangePassword(ctx, u.ID, "first password", "short")))
	require.NoError(t, users.ChangePassword(ctx, u.ID, "first password", "second password"))

	_, err = users.Authenticate(ctx, "carol", "first password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "carol", "second password")
	assert.NoError(t, err)

	g, err := users.Guest(ctx, "")
	require.NoError(t, err)
	assert.ErrorIs(t, users.ChangePassword(ctx, g.ID, "", "whatever123"), ErrInvalidCredentials)
}
