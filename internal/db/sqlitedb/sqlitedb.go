// Package sqlitedb provides a file-backed storage implementation on SQLite.
// It is selected when a storage file path is configured without a Postgres
// DSN, keeping single-node deployments free of external dependencies.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS short_urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	original_url TEXT NOT NULL,
	owner_id TEXT NOT NULL REFERENCES users (id),
	created_at DATETIME NOT NULL,
	expires_at DATETIME,
	clicks INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_short_urls_owner ON short_urls (owner_id, id DESC);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users (id),
	expires_at DATETIME NOT NULL
);
`

// SQLiteDB implements storage.Storage on a local SQLite file.
type SQLiteDB struct {
	database *sql.DB
}

// New opens (or creates) the database file and ensures the schema exists.
func New(ctx context.Context, filePath string) (*SQLiteDB, error) {
	database, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent increments.
	database.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := database.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := database.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &SQLiteDB{database: database}, nil
}

// CreateUser inserts a new user, mapping a duplicate email to ErrConflict.
func (db *SQLiteDB) CreateUser(ctx context.Context, usr *user.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		usr.ID,
		usr.Email,
		usr.PasswordHash,
		usr.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindUserByEmail returns the user registered with the given email.
func (db *SQLiteDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		email,
	)

	return scanUser(row)
}

// FindUserByID returns the user with the given ID.
func (db *SQLiteDB) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = ?`,
		userID,
	)

	return scanUser(row)
}

// InsertURL stores a new mapping, mapping a taken code to ErrConflict.
func (db *SQLiteDB) InsertURL(ctx context.Context, url *models.ShortURL) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO short_urls (code, original_url, owner_id, created_at, expires_at)
				VALUES (?, ?, ?, ?, ?)
		`,
		url.Code,
		url.OriginalURL,
		url.OwnerID,
		url.CreatedAt,
		url.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting short URL: %w", err)
	}

	return nil
}

// FindURLByCode returns the active record for a code.
func (db *SQLiteDB) FindURLByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE code = ? AND is_deleted = 0
		`,
		code,
	)

	return scanShortURL(row)
}

// FindURLsByOwner lists the owner's active URLs, newest first.
func (db *SQLiteDB) FindURLsByOwner(ctx context.Context, ownerID string) ([]models.ShortURL, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE owner_id = ? AND is_deleted = 0
				ORDER BY id DESC
		`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying owner URLs: %w", err)
	}
	defer rows.Close()

	result := []models.ShortURL{}
	for rows.Next() {
		var (
			rec       models.ShortURL
			expiresAt sql.NullTime
		)
		err = rows.Scan(&rec.Code, &rec.OriginalURL, &rec.OwnerID, &rec.CreatedAt, &expiresAt, &rec.Clicks)
		if err != nil {
			return nil, fmt.Errorf("scanning owner URL row: %w", err)
		}
		if expiresAt.Valid {
			expiry := expiresAt.Time
			rec.ExpiresAt = &expiry
		}
		result = append(result, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owner URL rows: %w", err)
	}

	return result, nil
}

// FindLatestURLByOwner returns the owner's most recently created active URL.
func (db *SQLiteDB) FindLatestURLByOwner(ctx context.Context, ownerID string) (*models.ShortURL, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE owner_id = ? AND is_deleted = 0
				ORDER BY id DESC
				LIMIT 1
		`,
		ownerID,
	)

	return scanShortURL(row)
}

// DeleteURL retires a code after checking ownership.
func (db *SQLiteDB) DeleteURL(ctx context.Context, code, requesterID string) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE short_urls
				SET is_deleted = 1
				WHERE code = ? AND owner_id = ? AND is_deleted = 0
		`,
		code,
		requesterID,
	)
	if err != nil {
		return fmt.Errorf("retiring short URL: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	row := db.database.QueryRowContext(
		ctx,
		`SELECT owner_id FROM short_urls WHERE code = ? AND is_deleted = 0`,
		code,
	)
	var ownerID string
	if err := row.Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("checking short URL owner: %w", err)
	}

	return apperrors.ErrForbidden
}

// IncrementClicks adds delta to the click counter in a single atomic update.
func (db *SQLiteDB) IncrementClicks(ctx context.Context, code string, delta int64) error {
	result, err := db.database.ExecContext(
		ctx,
		`UPDATE short_urls SET clicks = clicks + ? WHERE code = ? AND is_deleted = 0`,
		delta,
		code,
	)
	if err != nil {
		return fmt.Errorf("incrementing clicks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SaveRefreshToken persists a refresh token for a user.
func (db *SQLiteDB) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := db.database.ExecContext(
		ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token,
		userID,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}

	return nil
}

// FindRefreshToken returns the stored refresh token row.
func (db *SQLiteDB) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT token, user_id, expires_at FROM refresh_tokens WHERE token = ?`,
		token,
	)

	result := &models.RefreshToken{}
	err := row.Scan(&result.Token, &result.UserID, &result.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	return result, nil
}

// DeleteRefreshToken removes a single refresh token, reporting ErrNotFound
// when no row was removed so a token can only be consumed once.
func (db *SQLiteDB) DeleteRefreshToken(ctx context.Context, token string) error {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM refresh_tokens WHERE token = ?`,
		token,
	)
	if err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// DeleteUserRefreshTokens revokes every refresh token of a user.
func (db *SQLiteDB) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := db.database.ExecContext(
		ctx,
		`DELETE FROM refresh_tokens WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("deleting user refresh tokens: %w", err)
	}

	return nil
}

// GetNumberOfURLs counts active short URLs.
func (db *SQLiteDB) GetNumberOfURLs(ctx context.Context) (int64, error) {
	return db.countRow(ctx, `SELECT COUNT(*) FROM short_urls WHERE is_deleted = 0`)
}

// GetNumberOfUsers counts registered users.
func (db *SQLiteDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.countRow(ctx, `SELECT COUNT(*) FROM users`)
}

// Ping verifies the database file is reachable.
func (db *SQLiteDB) Ping(ctx context.Context) error {
	return db.database.PingContext(ctx)
}

// Close closes the database file.
func (db *SQLiteDB) Close() error {
	return db.database.Close()
}

func (db *SQLiteDB) countRow(ctx context.Context, query string) (int64, error) {
	row := db.database.QueryRowContext(ctx, query)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("scanning count: %w", err)
	}

	return count, nil
}

func scanUser(row *sql.Row) (*user.User, error) {
	result := &user.User{}
	err := row.Scan(&result.ID, &result.Email, &result.PasswordHash, &result.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	return result, nil
}

func scanShortURL(row *sql.Row) (*models.ShortURL, error) {
	var (
		result    models.ShortURL
		expiresAt sql.NullTime
	)
	err := row.Scan(
		&result.Code,
		&result.OriginalURL,
		&result.OwnerID,
		&result.CreatedAt,
		&expiresAt,
		&result.Clicks,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scanning short URL: %w", err)
	}
	if expiresAt.Valid {
		expiry := expiresAt.Time
		result.ExpiresAt = &expiry
	}

	return &result, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
