// sqlite.go -- gorm + SQLite backend.
//
// Used for local development (DATABASE_URL=sqlite://file:dev.db) and for the
// in-process test suites, which open a shared in-memory database per test.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sqlUser is the gorm model for the users table.
type sqlUser struct {
	ID             string  `gorm:"primaryKey;size:36"`
	Email          string  `gorm:"not null;uniqueIndex:users_email_unique"`
	Name           string  `gorm:"not null"`
	AuthProvider   string  `gorm:"not null;default:local"`
	PasswordHash   *string `gorm:"column:password_hash"`
	OAuthID        *string `gorm:"column:oauth_id;uniqueIndex:users_oauth_id_unique"`
	ProfilePicture string
	PartnerName    string
	WeddingDate    *time.Time
	Budget         float64 `gorm:"not null;default:0"`
	Location       string
	PhoneNumber    string
	CreatedAt      time.Time
	LastLogin      time.Time
}

func (sqlUser) TableName() string { return "users" }

// sqlChat is the gorm model for chat_histories; (user_id, mode) is the primary key.
type sqlChat struct {
	UserID      string    `gorm:"primaryKey;size:36"`
	Mode        string    `gorm:"primaryKey;size:64"`
	Messages    []Message `gorm:"serializer:json;not null"`
	LastUpdated time.Time
}

func (sqlChat) TableName() string { return "chat_histories" }

// SQLiteStore implements the same operations as PostgresStore on top of gorm.
type SQLiteStore struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewSQLiteStore opens dsn (a go-sqlite3 DSN such as "file:dev.db" or
// "file:test?mode=memory&cache=shared") and auto-migrates both tables.
func NewSQLiteStore(dsn string, timeout time.Duration) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if err := db.AutoMigrate(&sqlUser{}, &sqlChat{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}
	return &SQLiteStore{db: db, timeout: timeout}, nil
}

// Close releases the underlying *sql.DB.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) CheckHealth(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateUser inserts u. Returns ErrDuplicateEmail or ErrDuplicateOAuthID on unique violations.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	provider, hash, oauthID := credentialColumns(u.Credentials)
	row := sqlUser{
		ID:             u.ID.String(),
		Email:          u.Email,
		Name:           u.Name,
		AuthProvider:   provider,
		PasswordHash:   hash,
		OAuthID:        oauthID,
		ProfilePicture: u.Profile.ProfilePicture,
		PartnerName:    u.Profile.PartnerName,
		WeddingDate:    u.Profile.WeddingDate,
		Budget:         u.Profile.Budget,
		Location:       u.Profile.Location,
		PhoneNumber:    u.Profile.PhoneNumber,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
	}
	return mapSQLiteError(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findUser(ctx, "id = ?", id.String())
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *SQLiteStore) GetUserByOAuthID(ctx context.Context, oauthID string) (*User, error) {
	return s.findUser(ctx, "oauth_id = ?", oauthID)
}

func (s *SQLiteStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&sqlUser{}).Where("id = ?", id.String()).Update("last_login", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkOAuthIdentity attaches oauthID to the user and flips auth_provider to oauth.
// password_hash is left alone. An empty picture keeps the current one.
func (s *SQLiteStore) LinkOAuthIdentity(ctx context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	updates := map[string]any{
		"oauth_id":      oauthID,
		"auth_provider": string(ProviderOAuth),
		"last_login":    at,
	}
	if picture != "" {
		updates["profile_picture"] = picture
	}
	res := s.db.WithContext(ctx).Model(&sqlUser{}).Where("id = ?", id.String()).Updates(updates)
	if res.Error != nil {
		return mapSQLiteError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile applies the non-nil fields of upd inside a transaction and returns the new row.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	updates := map[string]any{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.PartnerName != nil {
		updates["partner_name"] = *upd.PartnerName
	}
	if upd.ClearWeddingDate {
		updates["wedding_date"] = nil
	} else if upd.WeddingDate != nil {
		updates["wedding_date"] = *upd.WeddingDate
	}
	if upd.Budget != nil {
		updates["budget"] = *upd.Budget
	}
	if upd.Location != nil {
		updates["location"] = *upd.Location
	}
	if upd.PhoneNumber != nil {
		updates["phone_number"] = *upd.PhoneNumber
	}

	var row sqlUser
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			res := tx.Model(&sqlUser{}).Where("id = ?", id.String()).Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return tx.Where("id = ?", id.String()).First(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	return row.toUser()
}

// DeleteUser removes the user and every chat history it owns.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id.String()).Delete(&sqlUser{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("user_id = ?", id.String()).Delete(&sqlChat{}).Error
	})
}

func (s *SQLiteStore) GetChatHistory(ctx context.Context, userID uuid.UUID, mode string) (*ChatHistory, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row sqlChat
	err := s.db.WithContext(ctx).Where("user_id = ? AND mode = ?", userID.String(), mode).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching chat history: %w", err)
	}
	return &ChatHistory{UserID: userID, Mode: mode, Messages: row.Messages, LastUpdated: row.LastUpdated}, nil
}

// SaveChatHistory upserts (userID, mode) with a full overwrite of messages.
func (s *SQLiteStore) SaveChatHistory(ctx context.Context, userID uuid.UUID, mode string, messages []Message, at time.Time) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if messages == nil {
		messages = []Message{}
	}
	row := sqlChat{UserID: userID.String(), Mode: mode, Messages: messages, LastUpdated: at}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mode"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages", "last_updated"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving chat history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) findUser(ctx context.Context, query string, arg any) (*User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var row sqlUser
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return row.toUser()
}

func (r sqlUser) toUser() (*User, error) {
	id, err := uuid.FromString(r.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad id %q", ErrCorruptRecord, r.ID)
	}
	creds, err := credentialsFromColumns(r.AuthProvider, r.PasswordHash, r.OAuthID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", r.ID, err)
	}
	return &User{
		ID:          id,
		Email:       r.Email,
		Name:        r.Name,
		Credentials: creds,
		Profile: Profile{
			ProfilePicture: r.ProfilePicture,
			PartnerName:    r.PartnerName,
			WeddingDate:    r.WeddingDate,
			Budget:         r.Budget,
			Location:       r.Location,
			PhoneNumber:    r.PhoneNumber,
		},
		CreatedAt: r.CreatedAt,
		LastLogin: r.LastLogin,
	}, nil
}

// mapSQLiteError maps "UNIQUE constraint failed: users.<col>" to sentinel errors.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "users.oauth_id"):
		return ErrDuplicateOAuthID
	}
	return err
}
