// Package models contains the request/response bodies of the HTTP contract
// and the records persisted by the storage layer.
package models

import "time"

// RegisterRequest is the body of POST /user/register.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the body of POST /user/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of POST /user/refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// TokenPair is returned by register, login, and refresh. The field names are
// fixed by the frontend, which stores both values verbatim.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// ShortenRequest is the body of POST /url/shorten. ExpiresAt is optional and
// not sent by the current frontend.
type ShortenRequest struct {
	URL       string     `json:"url" validate:"required,url"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ShortenResponse is the body returned by POST /url/shorten.
type ShortenResponse struct {
	ShortCode string `json:"shortCode"`
}

// ResolveResponse is the body returned by GET /url/{shortCode}.
type ResolveResponse struct {
	OriginalURL string `json:"originalUrl"`
}

// UserURL is a single item of the GET /user/urls listing and the body of
// GET /url/latest.
type UserURL struct {
	ShortCode   string `json:"shortCode"`
	OriginalURL string `json:"originalUrl"`
}

// UserUrls is the newest-first listing returned by GET /user/urls.
type UserUrls []UserURL

// ErrorResponse is the uniform error envelope; the frontend only inspects
// the message field.
type ErrorResponse struct {
	Message string `json:"message"`
}

// InternalStatsResponse is returned by GET /internal/stats.
type InternalStatsResponse struct {
	URLs  int64 `json:"urls"`
	Users int64 `json:"users"`
}

// ShortURL is the persisted mapping of a short code to its original URL.
// The code and owner are immutable once assigned; Clicks only increases.
type ShortURL struct {
	Code        string
	OriginalURL string
	OwnerID     string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Clicks      int64
	Deleted     bool
}

// Expired reports whether the record is past its expiry at the given moment.
// Records without an expiry never expire.
func (u *ShortURL) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}

// RefreshToken is a persisted, revocable refresh token bound to a user.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Storage backends selectable via configuration.
const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeMemory
)
