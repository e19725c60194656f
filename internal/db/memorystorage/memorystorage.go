// Package memorystorage provides an in-memory storage backend. It is the
// zero-configuration fallback and the backend used by unit tests.
package memorystorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

type urlRecord struct {
	models.ShortURL

	// seq orders records by creation even when CreatedAt collides.
	seq int64
}

// MemoryStorage keeps all records in mutex-guarded maps.
type MemoryStorage struct {
	mu sync.RWMutex

	usersByID    map[string]*user.User
	usersByEmail map[string]*user.User

	urls    map[string]*urlRecord
	nextSeq int64

	refreshTokens map[string]*models.RefreshToken
}

// New returns an empty MemoryStorage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		usersByID:     map[string]*user.User{},
		usersByEmail:  map[string]*user.User{},
		urls:          map[string]*urlRecord{},
		refreshTokens: map[string]*models.RefreshToken{},
	}, nil
}

// CreateUser inserts a new user, rejecting duplicate emails.
func (s *MemoryStorage) CreateUser(ctx context.Context, usr *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[usr.Email]; exists {
		return apperrors.ErrConflict
	}

	stored := *usr
	s.usersByID[stored.ID] = &stored
	s.usersByEmail[stored.Email] = &stored

	return nil
}

// FindUserByEmail returns the user registered with the given email.
func (s *MemoryStorage) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usr, found := s.usersByEmail[email]
	if !found {
		return nil, apperrors.ErrNotFound
	}
	result := *usr

	return &result, nil
}

// FindUserByID returns the user with the given ID.
func (s *MemoryStorage) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usr, found := s.usersByID[userID]
	if !found {
		return nil, apperrors.ErrNotFound
	}
	result := *usr

	return &result, nil
}

// InsertURL stores a new mapping, rejecting taken codes. Retired codes stay
// taken.
func (s *MemoryStorage) InsertURL(ctx context.Context, url *models.ShortURL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.urls[url.Code]; exists {
		return apperrors.ErrConflict
	}

	s.nextSeq++
	s.urls[url.Code] = &urlRecord{ShortURL: *url, seq: s.nextSeq}

	return nil
}

// FindURLByCode returns the active record for a code.
func (s *MemoryStorage) FindURLByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, found := s.urls[code]
	if !found || rec.Deleted {
		return nil, apperrors.ErrNotFound
	}
	result := rec.ShortURL

	return &result, nil
}

// FindURLsByOwner lists the owner's active URLs, newest first.
func (s *MemoryStorage) FindURLsByOwner(ctx context.Context, ownerID string) ([]models.ShortURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.ownerRecords(ownerID)

	result := make([]models.ShortURL, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.ShortURL)
	}

	return result, nil
}

// FindLatestURLByOwner returns the owner's most recently created active URL.
func (s *MemoryStorage) FindLatestURLByOwner(ctx context.Context, ownerID string) (*models.ShortURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.ownerRecords(ownerID)
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	result := records[0].ShortURL

	return &result, nil
}

// DeleteURL retires a code after checking ownership.
func (s *MemoryStorage) DeleteURL(ctx context.Context, code, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.urls[code]
	if !found || rec.Deleted {
		return apperrors.ErrNotFound
	}
	if rec.OwnerID != requesterID {
		return apperrors.ErrForbidden
	}
	rec.Deleted = true

	return nil
}

// IncrementClicks adds delta to the click counter of an active code.
func (s *MemoryStorage) IncrementClicks(ctx context.Context, code string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.urls[code]
	if !found || rec.Deleted {
		return apperrors.ErrNotFound
	}
	rec.Clicks += delta

	return nil
}

// SaveRefreshToken persists a refresh token for a user.
func (s *MemoryStorage) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshTokens[token] = &models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}

	return nil
}

// FindRefreshToken returns the stored refresh token row.
func (s *MemoryStorage) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, found := s.refreshTokens[token]
	if !found {
		return nil, apperrors.ErrNotFound
	}
	result := *stored

	return &result, nil
}

// DeleteRefreshToken removes a single refresh token. The presence check and
// the delete happen under one write lock, so only one of several concurrent
// redemptions sees the token.
func (s *MemoryStorage) DeleteRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.refreshTokens[token]; !found {
		return apperrors.ErrNotFound
	}
	delete(s.refreshTokens, token)

	return nil
}

// DeleteUserRefreshTokens revokes every refresh token of a user.
func (s *MemoryStorage) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, stored := range s.refreshTokens {
		if stored.UserID == userID {
			delete(s.refreshTokens, token)
		}
	}

	return nil
}

// GetNumberOfURLs counts active short URLs.
func (s *MemoryStorage) GetNumberOfURLs(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.urls {
		if !rec.Deleted {
			count++
		}
	}

	return count, nil
}

// GetNumberOfUsers counts registered users.
func (s *MemoryStorage) GetNumberOfUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.usersByID)), nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) ownerRecords(ownerID string) []*urlRecord {
	records := make([]*urlRecord, 0)
	for _, rec := range s.urls {
		if rec.OwnerID == ownerID && !rec.Deleted {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].seq > records[j].seq
	})

	return records
}
