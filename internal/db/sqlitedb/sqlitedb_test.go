package sqlitedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "linkcut_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	return db
}

func createTestUser(t *testing.T, db *SQLiteDB, id, email string) {
	t.Helper()
	err := db.CreateUser(context.Background(), &user.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
}

func insertTestURL(t *testing.T, db *SQLiteDB, code, ownerID string) {
	t.Helper()
	err := db.InsertURL(context.Background(), &models.ShortURL{
		Code:        code,
		OriginalURL: "https://example.com/" + code,
		OwnerID:     ownerID,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
}

func TestUserUniqueEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "u1", "dup@example.com")

	err := db.CreateUser(ctx, &user.User{
		ID:           "u2",
		Email:        "dup@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	found, err := db.FindUserByEmail(ctx, "dup@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.ID)

	_, err = db.FindUserByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInsertURLUniqueCode(t *testing.T) {
	db := newTestDB(t)

	createTestUser(t, db, "u1", "owner@example.com")
	insertTestURL(t, db, "abc1234", "u1")

	err := db.InsertURL(context.Background(), &models.ShortURL{
		Code:        "abc1234",
		OriginalURL: "https://example.com/other",
		OwnerID:     "u1",
		CreatedAt:   time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestFindURLByCodeWithExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "u1", "owner@example.com")
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, db.InsertURL(ctx, &models.ShortURL{
		Code:        "willdie",
		OriginalURL: "https://example.com/mortal",
		OwnerID:     "u1",
		CreatedAt:   time.Now(),
		ExpiresAt:   &expiresAt,
	}))

	rec, err := db.FindURLByCode(ctx, "willdie")
	require.NoError(t, err)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(expiresAt))

	_, err = db.FindURLByCode(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOwnerListingsNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "u1", "owner@example.com")
	createTestUser(t, db, "u2", "other@example.com")
	insertTestURL(t, db, "first00", "u1")
	insertTestURL(t, db, "second0", "u1")
	insertTestURL(t, db, "foreign", "u2")

	records, err := db.FindURLsByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "second0", records[0].Code)
	assert.Equal(t, "first00", records[1].Code)

	latest, err := db.FindLatestURLByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "second0", latest.Code)

	_, err = db.FindLatestURLByOwner(ctx, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteURLOwnership(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "u1", "owner@example.com")
	createTestUser(t, db, "u2", "intruder@example.com")
	insertTestURL(t, db, "abc1234", "u1")

	assert.ErrorIs(t, db.DeleteURL(ctx, "abc1234", "u2"), apperrors.ErrForbidden)
	assert.ErrorIs(t, db.DeleteURL(ctx, "missing", "u1"), apperrors.ErrNotFound)

	require.NoError(t, db.DeleteURL(ctx, "abc1234", "u1"))

	_, err := db.FindURLByCode(ctx, "abc1234")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Retired codes stay taken.
	err = db.InsertURL(ctx, &models.ShortURL{
		Code:        "abc1234",
		OriginalURL: "https://example.com/reuse",
		OwnerID:     "u1",
		CreatedAt:   time.Now(),
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestIncrementClicks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "u1", "owner@example.com")
	insertTestURL(t, db, "abc1234", "u1")

	require.NoError(t, db.IncrementClicks(ctx, "abc1234", 3))
	require.NoError(t, db.IncrementClicks(ctx, "abc1234", 2))

	rec, err := db.FindURLByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.Clicks)

	assert.ErrorIs(t, db.IncrementClicks(ctx, "missing", 1), apperrors.ErrNotFound)
}

func TestRefreshTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	createTestUser(t, db, "u1", "owner@example.com")
	createTestUser(t, db, "u2", "other@example.com")

	require.NoError(t, db.SaveRefreshToken(ctx, "u1", "token-one", expiresAt))
	require.NoError(t, db.SaveRefreshToken(ctx, "u1", "token-two", expiresAt))
	require.NoError(t, db.SaveRefreshToken(ctx, "u2", "token-other", expiresAt))

	stored, err := db.FindRefreshToken(ctx, "token-one")
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)

	require.NoError(t, db.DeleteRefreshToken(ctx, "token-one"))
	_, err = db.FindRefreshToken(ctx, "token-one")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// A consumed token cannot be consumed again.
	assert.ErrorIs(t, db.DeleteRefreshToken(ctx, "token-one"), apperrors.ErrNotFound)

	require.NoError(t, db.DeleteUserRefreshTokens(ctx, "u1"))
	_, err = db.FindRefreshToken(ctx, "token-two")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = db.FindRefreshToken(ctx, "token-other")
	assert.NoError(t, err)
}

func TestStatsAndPing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Ping(ctx))

	createTestUser(t, db, "u1", "owner@example.com")
	insertTestURL(t, db, "abc1234", "u1")
	insertTestURL(t, db, "doomed0", "u1")
	require.NoError(t, db.DeleteURL(ctx, "doomed0", "u1"))

	urls, err := db.GetNumberOfURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), urls)

	users, err := db.GetNumberOfUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), users)
}
