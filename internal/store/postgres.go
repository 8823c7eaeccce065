// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Named constraints from migrations/001_users.sql, used to tell duplicate kinds apart.
const (
	pgUniqueViolation   = "23505"
	pgEmailConstraint   = "users_email_unique"
	pgOAuthIDConstraint = "users_oauth_id_unique"
	userColumns         = "id, email, name, auth_provider, password_hash, oauth_id, profile_picture, partner_name, wedding_date, budget, location, phone_number, created_at, last_login"
)

// PostgresStore is the store used by the program to talk to Postgres.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a store. Every query is bounded by timeout.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string, timeout time.Duration) (*PostgresStore, error) {
	// Create a pool w/ database url, return if err
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, timeout: timeout}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CheckHealth pings the pool.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// CreateUser inserts u. The caller generates the UUID v7 and password hash beforehand.
// Returns ErrDuplicateEmail or ErrDuplicateOAuthID on unique violations.
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	provider, hash, oauthID := credentialColumns(u.Credentials)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, auth_provider, password_hash, oauth_id,
			profile_picture, partner_name, wedding_date, budget, location, phone_number, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Email, u.Name, provider, hash, oauthID,
		u.Profile.ProfilePicture, u.Profile.PartnerName, u.Profile.WeddingDate, u.Profile.Budget,
		u.Profile.Location, u.Profile.PhoneNumber, u.CreatedAt, u.LastLogin)
	return mapPgError(err)
}

// GetUserByID fetches a user by primary key.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return scanPgUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// GetUserByEmail fetches a user by (already normalized) email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return scanPgUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetUserByOAuthID fetches the user owning the given provider subject.
func (s *PostgresStore) GetUserByOAuthID(ctx context.Context, oauthID string) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return scanPgUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE oauth_id = $1", oauthID))
}

// TouchLastLogin sets last_login for the user.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE id = $1", id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkOAuthIdentity attaches oauthID to an existing user and flips auth_provider to oauth.
// password_hash is left alone. An empty picture keeps the current one.
func (s *PostgresStore) LinkOAuthIdentity(ctx context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE users
		SET oauth_id = $2,
			auth_provider = 'oauth',
			profile_picture = CASE WHEN $3::text = '' THEN profile_picture ELSE $3::text END,
			last_login = $4
		WHERE id = $1`,
		id, oauthID, picture, at)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile applies a partial update in one statement and returns the new row.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return scanPgUser(s.pool.QueryRow(ctx,
		`UPDATE users
		SET name = COALESCE($2, name),
			partner_name = COALESCE($3, partner_name),
			wedding_date = CASE WHEN $4::boolean THEN NULL ELSE COALESCE($5::date, wedding_date) END,
			budget = COALESCE($6, budget),
			location = COALESCE($7, location),
			phone_number = COALESCE($8, phone_number)
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.Name, upd.PartnerName, upd.ClearWeddingDate, upd.WeddingDate, upd.Budget, upd.Location, upd.PhoneNumber))
}

// DeleteUser removes the user; chat_histories rows go with it (ON DELETE CASCADE).
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetChatHistory returns the record for (userID, mode) or ErrNotFound.
func (s *PostgresStore) GetChatHistory(ctx context.Context, userID uuid.UUID, mode string) (*ChatHistory, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	h := ChatHistory{UserID: userID, Mode: mode}
	err := s.pool.QueryRow(ctx,
		"SELECT messages, last_updated FROM chat_histories WHERE user_id = $1 AND mode = $2",
		userID, mode,
	).Scan(&h.Messages, &h.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching chat history: %w", err)
	}
	return &h, nil
}

// SaveChatHistory overwrites the messages for (userID, mode), creating the row if needed.
// Concurrent writers are last-write-wins.
func (s *PostgresStore) SaveChatHistory(ctx context.Context, userID uuid.UUID, mode string, messages []Message, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if messages == nil {
		messages = []Message{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_histories (user_id, mode, messages, last_updated)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, mode) DO UPDATE
		SET messages = EXCLUDED.messages, last_updated = EXCLUDED.last_updated`,
		userID, mode, messages, at)
	if err != nil {
		return fmt.Errorf("saving chat history: %w", err)
	}
	return nil
}

// scanPgUser reads one users row in userColumns order.
func scanPgUser(row pgx.Row) (*User, error) {
	var (
		u        User
		provider string
		hash     *string
		oauthID  *string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &provider, &hash, &oauthID,
		&u.Profile.ProfilePicture, &u.Profile.PartnerName, &u.Profile.WeddingDate, &u.Profile.Budget,
		&u.Profile.Location, &u.Profile.PhoneNumber, &u.CreatedAt, &u.LastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	creds, err := credentialsFromColumns(provider, hash, oauthID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Credentials = creds
	return &u, nil
}

// mapPgError turns unique violations on the named user constraints into sentinel errors.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case pgEmailConstraint:
		return ErrDuplicateEmail
	case pgOAuthIDConstraint:
		return ErrDuplicateOAuthID
	}
	return err
}
