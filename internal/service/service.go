// Package service orchestrates short URL operations: code generation with
// bounded collision retries, resolution with expiry handling and click
// accounting, owner listings, and deletion.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/thoas/go-funk"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/db/storage"
	"github.com/linkcutapp/linkcut/internal/models"
)

// triesToGenerateUniqueCode bounds the collision retry loop. With a 62^7
// code space a handful of retries is already unreachable in practice.
const triesToGenerateUniqueCode = 10

type codeGenerator interface {
	Generate() (string, error)
}

type clickRecorder interface {
	Record(code string)
}

// Service implements the URL-shortening use cases over a storage backend.
type Service struct {
	db           storage.Storage
	generator    codeGenerator
	clicks       clickRecorder
	shortURLBase string
}

// New creates a Service.
func New(db storage.Storage, generator codeGenerator, clicks clickRecorder, shortURLBase string) *Service {
	return &Service{
		db:           db,
		generator:    generator,
		clicks:       clicks,
		shortURLBase: shortURLBase,
	}
}

// Shorten validates the URL, generates a unique code, and persists the
// mapping for the owner. Storage-level uniqueness conflicts trigger a fresh
// draw, bounded by triesToGenerateUniqueCode.
func (s *Service) Shorten(ctx context.Context, originalURL, ownerID string, expiresAt *time.Time) (string, error) {
	if !isValidURL(originalURL) {
		return "", fmt.Errorf("%w: not a valid http(s) URL", apperrors.ErrValidation)
	}

	for try := 0; try < triesToGenerateUniqueCode; try++ {
		code, err := s.generator.Generate()
		if err != nil {
			return "", fmt.Errorf("generating short code: %w", err)
		}

		err = s.db.InsertURL(ctx, &models.ShortURL{
			Code:        code,
			OriginalURL: originalURL,
			OwnerID:     ownerID,
			CreatedAt:   time.Now(),
			ExpiresAt:   expiresAt,
		})
		if errors.Is(err, apperrors.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("persisting short URL: %w", err)
		}

		return code, nil
	}

	return "", apperrors.ErrCodeSpaceExhausted
}

// Resolve returns the original URL for a code and records a click. Expired
// records yield ErrURLExpired, unknown and retired codes ErrNotFound; the
// click side effect never blocks or fails the resolution.
func (s *Service) Resolve(ctx context.Context, code string) (string, error) {
	rec, err := s.db.FindURLByCode(ctx, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("looking up short URL: %w", err)
	}

	if rec.Expired(time.Now()) {
		return "", apperrors.ErrURLExpired
	}

	s.clicks.Record(code)

	return rec.OriginalURL, nil
}

// UserURLs lists the owner's URLs, newest first.
func (s *Service) UserURLs(ctx context.Context, ownerID string) (models.UserUrls, error) {
	records, err := s.db.FindURLsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing owner URLs: %w", err)
	}

	result := funk.Map(records, func(rec models.ShortURL) models.UserURL {
		return models.UserURL{
			ShortCode:   rec.Code,
			OriginalURL: rec.OriginalURL,
		}
	}).([]models.UserURL)

	return models.UserUrls(result), nil
}

// LatestURL returns the owner's most recently created URL, or nil when the
// owner has none.
func (s *Service) LatestURL(ctx context.Context, ownerID string) (*models.UserURL, error) {
	rec, err := s.db.FindLatestURLByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up latest URL: %w", err)
	}

	return &models.UserURL{
		ShortCode:   rec.Code,
		OriginalURL: rec.OriginalURL,
	}, nil
}

// Delete retires a code on behalf of the requester. Ownership is enforced
// at the storage layer.
func (s *Service) Delete(ctx context.Context, code, requesterID string) error {
	return s.db.DeleteURL(ctx, code, requesterID)
}

// Stats reports service-wide counters.
func (s *Service) Stats(ctx context.Context) (models.InternalStatsResponse, error) {
	urls, err := s.db.GetNumberOfURLs(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, fmt.Errorf("counting URLs: %w", err)
	}

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return models.InternalStatsResponse{}, fmt.Errorf("counting users: %w", err)
	}

	return models.InternalStatsResponse{
		URLs:  urls,
		Users: users,
	}, nil
}

// Ping checks the health of the storage layer.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ShortURL builds the public short URL for a code.
func (s *Service) ShortURL(code string) string {
	return s.shortURLBase + "/" + code
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)

	return err == nil &&
		(u.Scheme == "http" || u.Scheme == "https") &&
		u.Host != ""
}
