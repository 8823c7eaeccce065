package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Backend is the full set of operations every storage backend provides.
// Consumers declare the narrower interfaces they need (auth.Store, chat.Store).
type Backend interface {
	CheckHealth(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByOAuthID(ctx context.Context, oauthID string) (*User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	LinkOAuthIdentity(ctx context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error
	UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	GetChatHistory(ctx context.Context, userID uuid.UUID, mode string) (*ChatHistory, error)
	SaveChatHistory(ctx context.Context, userID uuid.UUID, mode string, messages []Message, at time.Time) error
}

var (
	_ Backend = (*PostgresStore)(nil)
	_ Backend = (*MongoStore)(nil)
	_ Backend = (*SQLiteStore)(nil)
)

// OpenOptions carries everything Open needs besides the URL.
type OpenOptions struct {
	Timeout       time.Duration // per-call bound
	MongoDatabase string        // database name for mongodb:// URLs
	Migrations    fs.FS         // SQL files applied to postgres:// URLs
}

// Open picks a backend from the URL scheme, connects and prepares its schema.
//
//	postgres://, postgresql://   -> PostgresStore (+ Migrate)
//	mongodb://, mongodb+srv://   -> MongoStore (+ EnsureIndexes)
//	sqlite://<dsn>               -> SQLiteStore (gorm AutoMigrate)
func Open(ctx context.Context, databaseURL string, opts OpenOptions) (Backend, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		ps, err := NewPostgresStore(ctx, databaseURL, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to set up postgres store: %w", err)
		}
		if opts.Migrations != nil {
			if err := ps.Migrate(ctx, opts.Migrations); err != nil {
				ps.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		slog.Info("store ready", "backend", "postgres")
		return ps, nil

	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		ms, err := NewMongoStore(ctx, databaseURL, opts.MongoDatabase, opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to set up mongo store: %w", err)
		}
		if err := ms.EnsureIndexes(ctx); err != nil {
			ms.Close()
			return nil, err
		}
		slog.Info("store ready", "backend", "mongo", "database", opts.MongoDatabase)
		return ms, nil

	case strings.HasPrefix(databaseURL, "sqlite://"):
		ss, err := NewSQLiteStore(strings.TrimPrefix(databaseURL, "sqlite://"), opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to set up sqlite store: %w", err)
		}
		slog.Info("store ready", "backend", "sqlite")
		return ss, nil
	}
	return nil, fmt.Errorf("unsupported database url scheme in %q", redactURL(databaseURL))
}

// redactURL keeps only the scheme so credentials never reach the logs.
func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i+3] + "..."
	}
	return "..."
}
