// Package storage declares the interface implemented by every storage
// backend (memory, SQLite, PostgreSQL).
package storage

import (
	"context"
	"time"

	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

// Storage persists users, short URL mappings, and refresh tokens.
//
// Error contract: lookups return apperrors.ErrNotFound for missing rows,
// inserts return apperrors.ErrConflict on uniqueness violations, and
// DeleteURL returns apperrors.ErrForbidden when the requester does not own
// the code.
type Storage interface {
	UserKeeper
	URLKeeper
	RefreshTokenKeeper
	StatsKeeper

	Ping(ctx context.Context) error
	Close() error
}

// UserKeeper persists user accounts.
type UserKeeper interface {
	// CreateUser inserts a new user. The caller assigns the ID and the
	// password hash. Duplicate emails yield apperrors.ErrConflict.
	CreateUser(ctx context.Context, usr *user.User) error

	FindUserByEmail(ctx context.Context, email string) (*user.User, error)

	FindUserByID(ctx context.Context, userID string) (*user.User, error)
}

// URLKeeper persists short URL mappings.
type URLKeeper interface {
	// InsertURL stores a new mapping. A taken code yields
	// apperrors.ErrConflict; the caller retries with a fresh code.
	InsertURL(ctx context.Context, url *models.ShortURL) error

	// FindURLByCode returns the record for an active code. Deleted codes
	// are reported as apperrors.ErrNotFound; expired ones are returned
	// as-is, expiry is the service's concern.
	FindURLByCode(ctx context.Context, code string) (*models.ShortURL, error)

	// FindURLsByOwner lists the owner's active URLs, newest first.
	FindURLsByOwner(ctx context.Context, ownerID string) ([]models.ShortURL, error)

	// FindLatestURLByOwner returns the owner's most recently created
	// active URL, or apperrors.ErrNotFound when there is none.
	FindLatestURLByOwner(ctx context.Context, ownerID string) (*models.ShortURL, error)

	// DeleteURL retires a code. The code stays reserved forever so stale
	// cached links never resolve to someone else's URL.
	DeleteURL(ctx context.Context, code, requesterID string) error

	// IncrementClicks atomically adds delta to the click counter of an
	// active code. Concurrent increments must not lose updates.
	IncrementClicks(ctx context.Context, code string, delta int64) error
}

// RefreshTokenKeeper persists revocable refresh tokens.
type RefreshTokenKeeper interface {
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteRefreshToken removes a single refresh token. It reports
	// ErrNotFound when no row was removed, so concurrent redemptions of
	// the same token consume it exactly once.
	DeleteRefreshToken(ctx context.Context, token string) error

	// DeleteUserRefreshTokens revokes every refresh token of a user.
	DeleteUserRefreshTokens(ctx context.Context, userID string) error
}

// StatsKeeper reports service-wide counters.
type StatsKeeper interface {
	GetNumberOfURLs(ctx context.Context) (int64, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
}
