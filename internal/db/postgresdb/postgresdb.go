// Package postgresdb provides the PostgreSQL-backed implementation of the
// storage interface. Schema migrations are embedded and applied with goose
// on startup.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/linkcutapp/linkcut/internal/apperrors"
	"github.com/linkcutapp/linkcut/internal/models"
	"github.com/linkcutapp/linkcut/internal/user"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const pgUniqueViolationCode = "23505"

// PostgresDB implements storage.Storage on top of a PostgreSQL database.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

// New connects to the database, applies the embedded migrations, and
// returns a configured PostgresDB.
func New(ctx context.Context, databaseDSN string, connectionTimeout time.Duration) (*PostgresDB, error) {
	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(result.database, "migrations"); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return result, nil
}

// CreateUser inserts a new user, mapping a duplicate email to ErrConflict.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) error {
	_, err := db.database.ExecContext(
		ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
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
func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)

	return scanUser(row)
}

// FindUserByID returns the user with the given ID.
func (db *PostgresDB) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`,
		userID,
	)

	return scanUser(row)
}

// InsertURL stores a new mapping, mapping a taken code to ErrConflict.
func (db *PostgresDB) InsertURL(ctx context.Context, url *models.ShortURL) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			INSERT INTO short_urls (code, original_url, owner_id, created_at, expires_at)
				VALUES ($1, $2, $3, $4, $5)
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
func (db *PostgresDB) FindURLByCode(ctx context.Context, code string) (*models.ShortURL, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE code = $1 AND NOT is_deleted
		`,
		code,
	)

	return scanShortURL(row)
}

// FindURLsByOwner lists the owner's active URLs, newest first.
func (db *PostgresDB) FindURLsByOwner(ctx context.Context, ownerID string) ([]models.ShortURL, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE owner_id = $1 AND NOT is_deleted
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
func (db *PostgresDB) FindLatestURLByOwner(ctx context.Context, ownerID string) (*models.ShortURL, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			SELECT code, original_url, owner_id, created_at, expires_at, clicks
				FROM short_urls
				WHERE owner_id = $1 AND NOT is_deleted
				ORDER BY id DESC
				LIMIT 1
		`,
		ownerID,
	)

	return scanShortURL(row)
}

// DeleteURL retires a code after checking ownership. The row is kept with
// is_deleted set so the code is never reissued.
func (db *PostgresDB) DeleteURL(ctx context.Context, code, requesterID string) error {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE short_urls
				SET is_deleted = true
				WHERE code = $1 AND owner_id = $2 AND NOT is_deleted
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

	// Nothing matched: distinguish a foreign owner from a missing code.
	row := db.database.QueryRowContext(
		ctx,
		`SELECT owner_id FROM short_urls WHERE code = $1 AND NOT is_deleted`,
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
func (db *PostgresDB) IncrementClicks(ctx context.Context, code string, delta int64) error {
	result, err := db.database.ExecContext(
		ctx,
		`UPDATE short_urls SET clicks = clicks + $2 WHERE code = $1 AND NOT is_deleted`,
		code,
		delta,
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
func (db *PostgresDB) SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := db.database.ExecContext(
		ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
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
func (db *PostgresDB) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT token, user_id, expires_at FROM refresh_tokens WHERE token = $1`,
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
func (db *PostgresDB) DeleteRefreshToken(ctx context.Context, token string) error {
	result, err := db.database.ExecContext(
		ctx,
		`DELETE FROM refresh_tokens WHERE token = $1`,
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
func (db *PostgresDB) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := db.database.ExecContext(
		ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("deleting user refresh tokens: %w", err)
	}

	return nil
}

// GetNumberOfURLs counts active short URLs.
func (db *PostgresDB) GetNumberOfURLs(ctx context.Context) (int64, error) {
	return db.countRow(ctx, `SELECT COUNT(*) FROM short_urls WHERE NOT is_deleted`)
}

// GetNumberOfUsers counts registered users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.countRow(ctx, `SELECT COUNT(*) FROM users`)
}

// Ping verifies connectivity within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) countRow(ctx context.Context, query string) (int64, error) {
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
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}
