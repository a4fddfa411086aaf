package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kvenkat-dev/reviewloop/internal/api"
	"github.com/kvenkat-dev/reviewloop/internal/config"
	"github.com/kvenkat-dev/reviewloop/internal/content"
	"github.com/kvenkat-dev/reviewloop/internal/db"
	"github.com/kvenkat-dev/reviewloop/internal/mailer"
	"github.com/kvenkat-dev/reviewloop/internal/metrics"
	"github.com/kvenkat-dev/reviewloop/internal/observ"
	"github.com/kvenkat-dev/reviewloop/internal/redis"
	"github.com/kvenkat-dev/reviewloop/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting reviewloop server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	// Redis backs the best-effort pass lock; the scheduler still works
	// without it, accepting occasional overlapping passes.
	var passLock api.PassLock
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, pass lock disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	} else {
		passLock = redis.NewPassLock(redisClient, logger)
		defer redisClient.Close()
	}

	var mail mailer.Mailer
	if cfg.Env == "production" {
		mail, err = mailer.NewSESMailer(ctx, mailer.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES mailer: %w", err)
		}
	} else {
		mail = mailer.NewLogMailer(logger)
		logger.Info("using log mailer, emails will not be delivered")
	}

	resolver, err := content.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to build content resolver: %w", err)
	}

	sched := scheduler.New(repo, mail, resolver, scheduler.Config{
		PassBudget: cfg.PassBudget,
		BatchSize:  cfg.BatchSize,
		SendDelay:  cfg.SendDelay,
		CatchUp:    cfg.CatchUp,
	}, logger)

	// Optional in-process schedule for deployments without an external
	// cron caller.
	if cfg.ScheduleCron != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.ScheduleCron, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), cfg.PassBudget+30*time.Second)
			defer cancel()

			if passLock != nil {
				acquired, release, err := passLock.Acquire(runCtx)
				if err == nil && !acquired {
					logger.Info("skipping scheduled pass, lock held")
					return
				}
				if err == nil {
					defer release()
				}
			}

			if _, err := sched.RunPass(runCtx); err != nil {
				logger.Error("scheduled pass failed", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid SCHEDULE_CRON: %w", err)
		}
		c.Start()
		defer c.Stop()
		logger.Info("in-process schedule enabled", zap.String("cron", cfg.ScheduleCron))
	}

	handler := api.NewHandler(logger, repo, sched, passLock)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/trackers", handler.CreateTracker)
		r.Get("/trackers", handler.ListTrackers)
		r.Get("/trackers/{orderID}", handler.GetTracker)
		r.Patch("/trackers/{orderID}/status", handler.UpdateTrackerStatus)

		r.With(api.SchedulerAuthMiddleware(cfg.SchedulerToken, logger)).
			Post("/scheduler/run", handler.RunScheduledPass)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unreachable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
