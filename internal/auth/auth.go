// Package auth implements account registration, credential verification,
// JWT access tokens, rotating refresh tokens, and the bearer-token HTTP
// middleware.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/logger"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

// MinPasswordLength is the minimal accepted password length.
const MinPasswordLength = 8

const refreshTokenBytes = 32

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) error
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	FindUserByID(ctx context.Context, userID string) (*user.User, error)
}

type refreshTokenKeeper interface {
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string) error
	DeleteUserRefreshTokens(ctx context.Context, userID string) error
}

type storage interface {
	userKeeper
	refreshTokenKeeper
}

// Claims embeds the registered JWT claims and adds the user identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a private context key type to avoid collisions.
type ContextKey string

// UserIDKey is the context key under which the middleware stores the
// authenticated user's ID.
const UserIDKey ContextKey = "userID"

// Auth issues and validates tokens and owns the credential rules.
type Auth struct {
	db               storage
	jwtSigningSecret []byte
	accessTokenTTL   time.Duration
	refreshTokenTTL  time.Duration
}

// Compared against on login when the email is unknown, so both failure
// paths cost a bcrypt verification.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// New creates an Auth service over the given storage.
func New(db storage, jwtSigningSecret []byte, accessTokenTTL, refreshTokenTTL time.Duration) *Auth {
	return &Auth{
		db:               db,
		jwtSigningSecret: jwtSigningSecret,
		accessTokenTTL:   accessTokenTTL,
		refreshTokenTTL:  refreshTokenTTL,
	}
}

// Register creates an account and returns its first token pair. A duplicate
// email yields ErrConflict; a short password yields ErrValidation.
func (a *Auth) Register(ctx context.Context, email, password string) (*models.TokenPair, error) {
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf(
			"%w: password must be at least %d characters",
			apperrors.ErrValidation,
			MinPasswordLength,
		)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	usr := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(passwordHash),
		CreatedAt:    time.Now(),
	}
	if err := a.db.CreateUser(ctx, usr); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return a.issueTokenPair(ctx, usr.ID)
}

// Login verifies credentials and returns a fresh token pair. Unknown email
// and wrong password produce the same ErrUnauthorized.
func (a *Auth) Login(ctx context.Context, email, password string) (*models.TokenPair, error) {
	usr, err := a.db.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte(password))
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrUnauthorized
	}

	return a.issueTokenPair(ctx, usr.ID)
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// refresh token: the presented one is consumed before a new pair is issued,
// so a replayed token is rejected.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	stored, err := a.db.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("looking up refresh token: %w", err)
	}

	// The delete is the consumption point: when two redemptions race past
	// the lookup, only the one that actually removed the row proceeds.
	if err := a.db.DeleteRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("rotating refresh token: %w", err)
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, apperrors.ErrUnauthorized
	}

	return a.issueTokenPair(ctx, stored.UserID)
}

// Logout revokes every refresh token of the token's user. It never fails
// from the caller's point of view: client-side cleanup has to proceed even
// when the presented token is already invalid.
func (a *Auth) Logout(ctx context.Context, accessToken string) error {
	userID, err := a.ValidateToken(accessToken)
	if err != nil {
		return nil
	}

	if err := a.db.DeleteUserRefreshTokens(ctx, userID); err != nil {
		logger.Log.Warnw("revoking refresh tokens on logout", zap.Error(err))
	}

	return nil
}

// ValidateToken parses and verifies an access token and returns the bound
// user ID.
func (a *Auth) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.jwtSigningSecret, nil
		},
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", apperrors.ErrUnauthorized
	}

	return claims.UserID, nil
}

// Middleware authenticates requests by the Authorization bearer header and
// stores the user ID in the request context. Requests without a valid token
// get 401 with the uniform error envelope.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		userID, err := a.ValidateToken(BearerToken(request))
		if err != nil {
			response.Header().Set("Content-Type", "application/json")
			response.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(response, `{"message":"invalid or expired token"}`)
			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, userID)
		next.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// BearerToken extracts the token from the Authorization header; it returns
// an empty string when the header is missing or malformed.
func BearerToken(request *http.Request) string {
	header := request.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimPrefix(header, prefix)
}

// UserIDFromContext returns the user ID stored by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)

	return userID, ok && userID != ""
}

func (a *Auth) issueTokenPair(ctx context.Context, userID string) (*models.TokenPair, error) {
	accessToken, err := a.buildJWTString(userID)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	err = a.db.SaveRefreshToken(ctx, userID, refreshToken, time.Now().Add(a.refreshTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("persisting refresh token: %w", err)
	}

	return &models.TokenPair{
		Token:        accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (a *Auth) buildJWTString(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTokenTTL)),
		},
		UserID: userID,
	})

	return token.SignedString(a.jwtSigningSecret)
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
