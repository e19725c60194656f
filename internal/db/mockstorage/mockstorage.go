// Package mockstorage provides a testify mock of the storage interface for
// unit tests.
package mockstorage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

// MockStorage is a mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

// CreateUser mocks user insertion.
func (m *MockStorage) CreateUser(ctx context.Context, usr *user.User) error {
	args := m.Called(ctx, usr)

	return args.Error(0)
}

// FindUserByEmail mocks user lookup by email.
func (m *MockStorage) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*user.User), args.Error(1)
}

// FindUserByID mocks user lookup by ID.
func (m *MockStorage) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*user.User), args.Error(1)
}

// InsertURL mocks short URL insertion.
func (m *MockStorage) InsertURL(ctx context.Context, rec *models.ShortURL) error {
	args := m.Called(ctx, rec)

	return args.Error(0)
}

// FindURLByCode mocks short URL lookup.
func (m *MockStorage) FindURLByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ShortURL), args.Error(1)
}

// FindURLsByOwner mocks the owner listing.
func (m *MockStorage) FindURLsByOwner(ctx context.Context, ownerID string) ([]models.ShortURL, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ShortURL), args.Error(1)
}

// FindLatestURLByOwner mocks the newest-URL lookup.
func (m *MockStorage) FindLatestURLByOwner(ctx context.Context, ownerID string) (*models.ShortURL, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ShortURL), args.Error(1)
}

// DeleteURL mocks the ownership-checked soft delete.
func (m *MockStorage) DeleteURL(ctx context.Context, code, requesterID string) error {
	args := m.Called(ctx, code, requesterID)

	return args.Error(0)
}

// IncrementClicks mocks the click counter update.
func (m *MockStorage) IncrementClicks(ctx context.Context, code string, delta int64) error {
	args := m.Called(ctx, code, delta)

	return args.Error(0)
}

// SaveRefreshToken mocks refresh token persistence.
func (m *MockStorage) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, token, expiresAt)

	return args.Error(0)
}

// FindRefreshToken mocks refresh token lookup.
func (m *MockStorage) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.RefreshToken), args.Error(1)
}

// DeleteRefreshToken mocks refresh token revocation.
func (m *MockStorage) DeleteRefreshToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)

	return args.Error(0)
}

// DeleteUserRefreshTokens mocks the all-sessions revocation.
func (m *MockStorage) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)

	return args.Error(0)
}

// GetNumberOfURLs mocks the URL counter.
func (m *MockStorage) GetNumberOfURLs(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

// GetNumberOfUsers mocks the user counter.
func (m *MockStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

// Ping mocks the health check.
func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// Close mocks the shutdown hook.
func (m *MockStorage) Close() error {
	args := m.Called()

	return args.Error(0)
}
