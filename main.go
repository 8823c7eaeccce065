package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/assistant"
	"github.com/MGallo-Code/weddingkityaari/internal/auth"
	"github.com/MGallo-Code/weddingkityaari/internal/chat"
	"github.com/MGallo-Code/weddingkityaari/internal/config"
	"github.com/MGallo-Code/weddingkityaari/internal/oauth"
	"github.com/MGallo-Code/weddingkityaari/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// version is reported by GET / and GET /api/health.
const version = "1.0.0"

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// .env is optional; real env vars always win.
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	addSrc := cfg.LogLevel == slog.LevelDebug

	// Set up slog to output as json with configured level
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: addSrc,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run() is a separate func so deferred closes (db, rdb) always execute before os.Exit.
	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// handlers groups everything buildRouter mounts.
type handlers struct {
	Auth           *auth.AuthHandler
	Chat           *chat.Handler
	AI             *assistant.Handler
	AllowedOrigins []string
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	migrationsFS, err := fs.Sub(migrationsDir, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access embedded migrations: %w", err)
	}

	// DATABASE_URL scheme picks postgres, mongo or sqlite.
	db, err := store.Open(ctx, cfg.DatabaseURL, store.OpenOptions{
		Timeout:       cfg.StoreTimeout,
		MongoDatabase: cfg.MongoDatabase,
		Migrations:    migrationsFS,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis only backs login rate limiting; without it attempts are not counted.
	var rl auth.RateLimiter = store.NoopRateLimiter{}
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()
		rl = store.NewRedisRateLimiter(rdb)
	} else {
		slog.Warn("REDIS_URL not set, login rate limiting disabled")
	}

	tokens := auth.NewTokenService([]byte(cfg.JWTSecret), nil)
	identity := &auth.Identity{
		PS: db,
		RL: rl,
		LoginLimit: store.RateLimit{
			MaxAttempts: cfg.RateLoginEmailMax,
			Window:      cfg.RateLoginEmailWindow,
			LockoutTTL:  cfg.RateLoginEmailLockout,
		},
	}

	ah := &auth.AuthHandler{
		ID:           identity,
		Tokens:       tokens,
		FrontendURL:  cfg.FrontendURL,
		CookieSecure: cfg.CookieSecure,
		StartedAt:    time.Now(),
		Version:      version,
	}

	// Discovery failure disables Google sign-in instead of aborting startup.
	if cfg.GoogleEnabled() {
		gp, err := oauth.NewGoogleProvider(ctx, oauth.GoogleIssuer, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
		if err != nil {
			slog.Warn("google sign-in disabled", "error", err)
		} else {
			ah.Google = gp
		}
	} else {
		slog.Info("google sign-in not configured")
	}

	ch, err := chat.NewHandler(db, nil)
	if err != nil {
		return err
	}

	ai := &assistant.Handler{Users: db, Timeout: cfg.AITimeout}
	if cfg.GeminiAPIKey != "" {
		gc, err := assistant.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("ai assistant disabled", "error", err)
		} else {
			ai.AI = gc
		}
	} else {
		slog.Info("GEMINI_API_KEY not set, ai assistant disabled")
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler: buildRouter(handlers{
			Auth:           ah,
			Chat:           ch,
			AI:             ai,
			AllowedOrigins: cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("weddingkityaari listening", "addr", ln.Addr().String(), "version", version)
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// Stop accepting, then give in-flight requests up to 30s to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildRouter wires all routes and middleware.
// Called from run() and from the smoke tests.
func buildRouter(h handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", h.Auth.Root)
	r.Get("/api/health", h.Auth.CheckHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Get("/google", h.Auth.GoogleRedirect)
		r.Get("/google/callback", h.Auth.GoogleCallback)

		// Bearer token required
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuth)
			r.Post("/logout", h.Auth.Logout)
			r.Get("/profile", h.Auth.GetProfile)
			r.Put("/profile", h.Auth.UpdateProfile)
		})
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(h.Auth.RequireAuth)
		r.Get("/{mode}", h.Chat.GetHistory)
		r.Post("/{mode}", h.Chat.SaveHistory)
	})

	r.Route("/api/ai", func(r chi.Router) {
		r.Get("/modes", h.AI.Modes)
		// Anonymous chat allowed; a valid token personalizes the reply.
		r.With(h.Auth.OptionalAuth).Post("/chat", h.AI.Chat)
	})

	return r
}
