package memorystorage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

func newTestStorage(t *testing.T) *MemoryStorage {
	t.Helper()
	db, err := New()
	require.NoError(t, err)

	return db
}

func insertTestURL(t *testing.T, db *MemoryStorage, code, ownerID string) {
	t.Helper()
	err := db.InsertURL(context.Background(), &models.ShortURL{
		Code:        code,
		OriginalURL: "https://example.com/" + code,
		OwnerID:     ownerID,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	err := db.CreateUser(ctx, &user.User{ID: "u1", Email: "dup@example.com"})
	require.NoError(t, err)

	err = db.CreateUser(ctx, &user.User{ID: "u2", Email: "dup@example.com"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestFindUserByEmailAndID(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	err := db.CreateUser(ctx, &user.User{ID: "u1", Email: "one@example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	byEmail, err := db.FindUserByEmail(ctx, "one@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	byID, err := db.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "one@example.com", byID.Email)

	_, err = db.FindUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestInsertURLConflictOnTakenCode(t *testing.T) {
	db := newTestStorage(t)

	insertTestURL(t, db, "abc1234", "owner")

	err := db.InsertURL(context.Background(), &models.ShortURL{
		Code:        "abc1234",
		OriginalURL: "https://other.example.com",
		OwnerID:     "owner",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestRetiredCodeStaysTaken(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	insertTestURL(t, db, "abc1234", "owner")
	require.NoError(t, db.DeleteURL(ctx, "abc1234", "owner"))

	_, err := db.FindURLByCode(ctx, "abc1234")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	err = db.InsertURL(ctx, &models.ShortURL{
		Code:        "abc1234",
		OriginalURL: "https://example.com/new",
		OwnerID:     "owner",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestFindURLsByOwnerNewestFirst(t *testing.T) {
	db := newTestStorage(t)

	insertTestURL(t, db, "first00", "owner")
	insertTestURL(t, db, "second0", "owner")
	insertTestURL(t, db, "third00", "owner")
	insertTestURL(t, db, "foreign", "someone-else")

	records, err := db.FindURLsByOwner(context.Background(), "owner")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third00", records[0].Code)
	assert.Equal(t, "second0", records[1].Code)
	assert.Equal(t, "first00", records[2].Code)
}

func TestFindLatestURLByOwner(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	_, err := db.FindLatestURLByOwner(ctx, "owner")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	insertTestURL(t, db, "first00", "owner")
	insertTestURL(t, db, "second0", "owner")

	latest, err := db.FindLatestURLByOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, "second0", latest.Code)

	// Retiring the newest record promotes the previous one.
	require.NoError(t, db.DeleteURL(ctx, "second0", "owner"))

	latest, err = db.FindLatestURLByOwner(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, "first00", latest.Code)
}

func TestDeleteURLOwnershipAndMissing(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	insertTestURL(t, db, "abc1234", "owner")

	err := db.DeleteURL(ctx, "abc1234", "intruder")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = db.DeleteURL(ctx, "missing", "owner")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, db.DeleteURL(ctx, "abc1234", "owner"))

	// A second delete sees the retired record as gone.
	err = db.DeleteURL(ctx, "abc1234", "owner")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIncrementClicksConcurrently(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	insertTestURL(t, db, "abc1234", "owner")

	const workers = 50
	const clicksPerWorker = 20

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < clicksPerWorker; j++ {
				err := db.IncrementClicks(ctx, "abc1234", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	rec, err := db.FindURLByCode(ctx, "abc1234")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*clicksPerWorker), rec.Clicks)
}

func TestRefreshTokenLifecycle(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

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

	// The other user's session survives.
	_, err = db.FindRefreshToken(ctx, "token-other")
	assert.NoError(t, err)
}

func TestDeleteRefreshTokenConcurrentSingleConsumer(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRefreshToken(ctx, "u1", "contested", time.Now().Add(time.Hour)))

	const consumers = 16
	results := make(chan error, consumers)

	var wg sync.WaitGroup
	wg.Add(consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			defer wg.Done()
			results <- db.DeleteRefreshToken(ctx, "contested")
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestStatsCounters(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &user.User{ID: "u1", Email: "one@example.com"}))
	insertTestURL(t, db, "abc1234", "u1")
	insertTestURL(t, db, "def5678", "u1")
	require.NoError(t, db.DeleteURL(ctx, "def5678", "u1"))

	urls, err := db.GetNumberOfURLs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), urls)

	users, err := db.GetNumberOfUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), users)
}
