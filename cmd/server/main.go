package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkpost/inkpost/assets"
	"github.com/inkpost/inkpost/internal"
	"github.com/inkpost/inkpost/internal/auth"
	authdb "github.com/inkpost/inkpost/internal/auth/db"
	"github.com/inkpost/inkpost/internal/db"
	"github.com/inkpost/inkpost/internal/email"
	"github.com/inkpost/inkpost/internal/email/smtp"
	emailview "github.com/inkpost/inkpost/internal/email/view"
	"github.com/inkpost/inkpost/internal/migrate"
	"github.com/inkpost/inkpost/internal/ratelimit"
	"github.com/inkpost/inkpost/internal/verification"
	"github.com/inkpost/inkpost/internal/web"
	"github.com/inkpost/inkpost/internal/web/sessions"
	"github.com/inkpost/inkpost/internal/web/view"
	"github.com/inkpost/inkpost/migrations"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	if cfg.verification.CodeHashCost < verification.DefaultConfig().CodeHashCost {
		logger.Warn("verification code hash cost is below the default", "cost", cfg.verification.CodeHashCost)
	}

	writeDB, readDB, err := db.OpenReadWrite(cfg.db.file)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}

	defer func() {
		err := errors.Join(readDB.Close(), writeDB.Close())
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		err = migrateDB(ctx, logger, writeDB)
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
	} else {
		pending, err := migrate.Pending(ctx, writeDB, migrations.FS)
		if err != nil {
			logger.Error("failed to check for pending migrations", "error", err)
			return 1
		}

		if len(pending) > 0 {
			logger.Warn("database has pending migrations", "pending", pending)
		}
	}

	var viewRenderer web.ViewRenderer
	if cfg.http.viewDir != "" {
		logger.Info("loading templates from disk", "dir", cfg.http.viewDir)
		viewRenderer = view.NewFSRenderer(os.DirFS(cfg.http.viewDir))
	} else {
		viewRenderer, err = view.NewMemRenderer(assets.TemplateFS)
		if err != nil {
			logger.Error("failed to parse templates", "error", err)
			return 1
		}
	}

	var sender email.Sender
	switch cfg.email.driver {
	case emailDriverSMTP:
		sender = smtp.NewSender(cfg.email.smtp)
	default:
		sender = email.NewLogSender(logger)
	}

	emailRenderer, err := emailview.NewMemRenderer(assets.EmailFS)
	if err != nil {
		logger.Error("failed to parse email templates", "error", err)
		return 1
	}

	emailSvc := email.NewService(emailRenderer, sender, cfg.email.service)

	counter, closeCounter, err := rateLimitCounter(ctx, cfg.rateLimit.redisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeCounter()

	backend := "memory"
	if cfg.rateLimit.redisURL != "" {
		backend = "redis"
	}
	logger.Info("created rate limit counter", "backend", backend)

	limiter := ratelimit.NewEmailVerificationLimiter(counter, cfg.rateLimit.verify)
	store := authdb.New(readDB, writeDB)

	verifySvc, err := verification.NewService(store, emailSvc, limiter, logger, cfg.verification)
	if err != nil {
		logger.Error("failed to create verification service", "error", err)
		return 1
	}

	authSvc, err := auth.NewService(store, emailSvc, verifySvc, func(err error) {
		logger.Error("auth worker failed", "error", err)
	}, cfg.auth)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	// Pairs of hash and block keys, as gorilla sessions expects them.
	cookieKeys := make([][]byte, 0, len(cfg.http.cookieKeys))
	for _, k := range cfg.http.cookieKeys {
		cookieKeys = append(cookieKeys, k.SecretValue())
	}

	server := web.NewServer(&web.ServerDeps{
		Logger:              logger,
		ViewRenderer:        viewRenderer,
		AuthService:         authSvc,
		VerificationService: verifySvc,
		SessionStore:        sessions.NewCookieStore(cfg.http.server.SecureCookie, cookieKeys...),
		DistFS:              http.FS(assets.DistFS),
	}, cfg.http.server)

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      server,
	}

	// We need to run three tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.
	// - Clearing expired verification state.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutines.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		cleanupLoop(gCtx, logger, verifySvc, counter, cfg.cleanupInterval)
		return nil
	})

	err = g.Wait()

	// let running workers finish sending their emails.
	authSvc.Wait()

	if err != nil && err != http.ErrServerClosed {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

func migrateDB(ctx context.Context, logger *slog.Logger, sqlDB *sql.DB) error {
	logger.Info("attempting to migrate database")

	mCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	ran, err := migrate.RunFS(mCtx, sqlDB, migrations.FS, migrate.Metadata{
		AppVersion: internal.BuildRevision,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	for _, m := range ran {
		logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
	}

	return nil
}

// rateLimitCounter returns a redis backed counter when redisURL is set and an
// in-memory counter otherwise. The returned func releases the counter.
func rateLimitCounter(ctx context.Context, redisURL string) (ratelimit.Counter, func(), error) {
	if redisURL == "" {
		return ratelimit.NewMemoryCounter(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, nil, errors.Join(err, client.Close())
	}

	return ratelimit.NewRedisCounter(client, "inkpost:"), func() { _ = client.Close() }, nil
}

// cleanupLoop clears expired verification state every interval until ctx is done.
func cleanupLoop(ctx context.Context, logger *slog.Logger, svc *verification.Service, counter ratelimit.Counter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := svc.CleanupExpired(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("failed to clean up verification state", "error", err)
			}

			if mc, ok := counter.(*ratelimit.MemoryCounter); ok {
				mc.Prune()
			}
		case <-ctx.Done():
			return
		}
	}
}
