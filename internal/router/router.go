// Package router wires the HTTP contract consumed by the frontend: account
// endpoints under /user, URL endpoints under /url, a root-level redirect,
// and the ping/stats service endpoints. It maps internal error kinds to
// HTTP statuses and renders the uniform {"message": ...} error envelope.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/auth"
	"github.com/linkcutapp/linkcut/internal/gzippedhttp"
	"github.com/linkcutapp/linkcut/internal/ipchecker"
	"github.com/linkcutapp/linkcut/internal/logger"
	"github.com/linkcutapp/linkcut/internal/models"
)

type urlService interface {
	Shorten(ctx context.Context, originalURL, ownerID string, expiresAt *time.Time) (string, error)
	Resolve(ctx context.Context, code string) (string, error)
	UserURLs(ctx context.Context, ownerID string) (models.UserUrls, error)
	LatestURL(ctx context.Context, ownerID string) (*models.UserURL, error)
	Delete(ctx context.Context, code, requesterID string) error
	Stats(ctx context.Context) (models.InternalStatsResponse, error)
	Ping(ctx context.Context) error
}

type authService interface {
	Register(ctx context.Context, email, password string) (*models.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Middleware(next http.Handler) http.Handler
}

type handlers struct {
	urls      urlService
	auth      authService
	ipChecker *ipchecker.IPChecker
	validate  *validator.Validate
}

// New assembles the chi router with logging and gzip middleware and every
// endpoint of the contract.
func New(urls urlService, authSvc authService, checker *ipchecker.IPChecker) http.Handler {
	h := &handlers{
		urls:      urls,
		auth:      authSvc,
		ipChecker: checker,
		validate:  validator.New(),
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(gzippedhttp.Middleware)

	router.Route("/user", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/logout", h.logout)
		r.Post("/refresh-token", h.refresh)
		r.With(authSvc.Middleware).Get("/urls", h.userURLs)
	})

	router.Route("/url", func(r chi.Router) {
		r.With(authSvc.Middleware).Post("/shorten", h.shorten)
		r.With(authSvc.Middleware).Get("/latest", h.latestURL)
		r.Get("/{shortCode}", h.resolve)
		r.With(authSvc.Middleware).Delete("/{shortCode}", h.deleteURL)
	})

	router.Get("/ping", h.ping)
	router.Get("/internal/stats", h.internalStats)
	router.Get("/{shortCode}", h.redirect)

	return router
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !h.decodeAndValidate(w, r, &req, "a valid email and a password of at least 8 characters are required") {
		return
	}

	pair, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			writeError(w, http.StatusConflict, "email already registered")
		case errors.Is(err, apperrors.ErrValidation):
			writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		default:
			h.internalError(w, "registration failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !h.decodeAndValidate(w, r, &req, "email and password are required") {
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// The same status and message for unknown emails and wrong
		// passwords: the response must not reveal which one failed.
		if errors.Is(err, apperrors.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.internalError(w, "login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	// Idempotent by contract: the client clears its local state no matter
	// what, so an already-invalid token still gets a 200.
	if err := h.auth.Logout(r.Context(), auth.BearerToken(r)); err != nil {
		logger.Log.Warnw("logout", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "logged out"})
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !h.decodeAndValidate(w, r, &req, "refreshToken is required") {
		return
	}

	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.internalError(w, "token refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *handlers) userURLs(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	urls, err := h.urls.UserURLs(r.Context(), userID)
	if err != nil {
		h.internalError(w, "failed to list URLs", err)
		return
	}
	if urls == nil {
		urls = models.UserUrls{}
	}

	writeJSON(w, http.StatusOK, urls)
}

func (h *handlers) shorten(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.ShortenRequest
	if !h.decodeAndValidate(w, r, &req, "a valid url is required") {
		return
	}

	code, err := h.urls.Shorten(r.Context(), req.URL, userID, req.ExpiresAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			writeError(w, http.StatusBadRequest, "a valid url is required")
			return
		}
		// Covers code-space exhaustion as well: an internal condition the
		// client can do nothing about.
		h.internalError(w, "failed to shorten URL", err)
		return
	}

	writeJSON(w, http.StatusCreated, models.ShortenResponse{ShortCode: code})
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	originalURL, ok := h.resolveCode(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, models.ResolveResponse{OriginalURL: originalURL})
}

func (h *handlers) redirect(w http.ResponseWriter, r *http.Request) {
	originalURL, ok := h.resolveCode(w, r)
	if !ok {
		return
	}

	http.Redirect(w, r, originalURL, http.StatusTemporaryRedirect)
}

func (h *handlers) resolveCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := chi.URLParam(r, "shortCode")

	originalURL, err := h.urls.Resolve(r.Context(), code)
	if err != nil {
		// Expired links are reported exactly like unknown ones.
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrURLExpired) {
			writeError(w, http.StatusNotFound, "short URL not found")
			return "", false
		}
		h.internalError(w, "failed to resolve URL", err)
		return "", false
	}

	return originalURL, true
}

func (h *handlers) deleteURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	code := chi.URLParam(r, "shortCode")
	if err := h.urls.Delete(r.Context(), code, userID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			writeError(w, http.StatusNotFound, "short URL not found")
		case errors.Is(err, apperrors.ErrForbidden):
			writeError(w, http.StatusForbidden, "you do not own this URL")
		default:
			h.internalError(w, "failed to delete URL", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "deleted"})
}

func (h *handlers) latestURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	latest, err := h.urls.LatestURL(r.Context(), userID)
	if err != nil {
		h.internalError(w, "failed to fetch latest URL", err)
		return
	}

	// latest is nil when the user has no URLs; the frontend expects a
	// literal null body then.
	writeJSON(w, http.StatusOK, latest)
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.urls.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, models.ErrorResponse{Message: "OK"})
}

func (h *handlers) internalStats(w http.ResponseWriter, r *http.Request) {
	clientIP, err := h.ipChecker.GetClientIP(r)
	if err != nil || !h.ipChecker.Check(clientIP) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	stats, err := h.urls.Stats(r.Context())
	if err != nil {
		h.internalError(w, "failed to collect stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// decodeAndValidate binds the JSON body into req and validates it,
// rendering a 400 with the given message on failure.
func (h *handlers) decodeAndValidate(
	w http.ResponseWriter,
	r *http.Request,
	req any,
	validationMessage string,
) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage)
		return false
	}

	return true
}

// internalError logs the cause and renders a generic message; internals
// never leak to the client.
func (h *handlers) internalError(w http.ResponseWriter, message string, err error) {
	logger.Log.Errorw(message, zap.Error(err))

	status := http.StatusInternalServerError
	if errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}

	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.Errorw("encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}
