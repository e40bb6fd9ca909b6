package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/auth"
	"github.com/example/calendar-service/internal/config"
	httptransport "github.com/example/calendar-service/internal/http"
	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/persistence/adapter"
	"github.com/example/calendar-service/internal/ratelimit"
	"github.com/example/calendar-service/internal/recurrence"
	"github.com/example/calendar-service/internal/scheduler"
)

// memoryLimiterKeys bounds the number of callers tracked by the in-process limiter.
const memoryLimiterKeys = 10000

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Usage: "listen port, overrides CALENDAR_HTTP_PORT"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadRuntime(c.App.ErrWriter)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.HTTPPort = c.Int("port")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	google, err := auth.NewGoogleVerifier(ctx, cfg.GoogleClientID)
	if err != nil {
		return fmt.Errorf("google verifier: %w", err)
	}

	limiter, closeLimiter, err := newLimiter(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	app, err := newService(cfg, storage, google, limiter, time.Now, logger)
	if err != nil {
		return err
	}
	defer app.activity.Wait()

	runner := scheduler.NewRunner(logger, time.Local)
	if err := runner.Add(scheduler.SessionPurgeJob(app.auth, cfg.SessionPurgeSchedule)); err != nil {
		return err
	}
	runner.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Stop(stopCtx); err != nil {
			logger.Error("failed to stop scheduler", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("calendar API listening", "addr", server.Addr, "storage", cfg.Storage)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("calendar API stopped")
	return nil
}

// service is the assembled API: its handler plus the pieces the process
// lifecycle needs to reach.
type service struct {
	handler  http.Handler
	auth     *application.AuthService
	events   *application.EventService
	activity *application.ActivityLogger
	repo     *adapter.Repository
}

func newService(cfg config.Config, storage persistence.Store, google application.GoogleVerifier, limiter ratelimit.Limiter, now func() time.Time, logger *slog.Logger) (*service, error) {
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, now)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	repo := adapter.New(storage)
	idGenerator := uuid.NewString
	activity := application.NewActivityLogger(repo, idGenerator, now, logger)

	authService := application.NewAuthServiceWithLogger(google, tokens, repo, repo, activity, idGenerator, now, cfg.SessionTTL, logger).
		WithAdminEmails(cfg.AdminEmails...)
	eventService := application.NewEventServiceWithLogger(repo, activity, recurrence.NewEngine(cfg.RecurrenceHorizonDays, 0), idGenerator, now, logger)
	userService := application.NewUserServiceWithLogger(repo, repo, activity, now, logger)
	logService := application.NewLogServiceWithLogger(repo, repo, logger)

	middleware := []func(http.Handler) http.Handler{
		httptransport.RequestLogger(logger),
		httptransport.CORS(cfg.AllowedOrigins),
	}
	if limiter != nil {
		middleware = append(middleware, httptransport.RateLimit(limiter, logger))
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       httptransport.NewAuthHandler(authService, logger),
		Events:     httptransport.NewEventHandlerWithClock(eventService, logger, now),
		Users:      httptransport.NewUserHandler(userService, logger),
		Logs:       httptransport.NewLogHandler(logService, logger),
		Health:     httptransport.NewHealthHandler(repo, logger),
		Sessions:   authService,
		Logger:     logger,
		Middleware: middleware,
	})

	return &service{
		handler:  router,
		auth:     authService,
		events:   eventService,
		activity: activity,
		repo:     repo,
	}, nil
}

// newLimiter selects the shared redis limiter when CALENDAR_REDIS_ADDR is set
// and the in-process one otherwise. A zero rate limit disables limiting.
func newLimiter(cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	noop := func() {}
	if cfg.RateLimit <= 0 {
		return nil, noop, nil
	}
	policy := ratelimit.Policy{Limit: cfg.RateLimit, Window: time.Minute}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiter, err := ratelimit.NewRedisLimiter(client, policy, "")
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		logger.Info("rate limiting via redis", "addr", cfg.RedisAddr, "limit_per_minute", cfg.RateLimit)
		return limiter, func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}, nil
	}

	limiter, err := ratelimit.NewMemoryLimiter(policy, memoryLimiterKeys, time.Now)
	if err != nil {
		return nil, noop, err
	}
	logger.Info("rate limiting in process", "limit_per_minute", cfg.RateLimit)
	return limiter, noop, nil
}
