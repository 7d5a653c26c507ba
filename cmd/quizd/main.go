package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/gradebook"
	"github.com/mind-engage/mindengage-quiz/internal/lock"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/tracing"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zl)

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer("mindengage-quiz", cfg.TracingCollectorEndpoint)
		if err != nil {
			zl.Fatal("tracing init failed", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				zl.Error("tracer shutdown failed", zap.Error(err))
			}
		}()
	}
	if cfg.MetricsEnabled {
		metrics.Init()
	}

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		zl.Fatal("db open failed", zap.Error(err))
	}
	defer dbh.Close()

	// --- Engine ---
	opts := []quiz.ControllerOption{quiz.WithLogger(zl.Named("quiz"))}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		locker := lock.NewRedis(rdb, cfg.LockTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := locker.Ping(pingCtx)
		cancel()
		if err != nil {
			zl.Fatal("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		opts = append(opts, quiz.WithLocker(locker))
	}
	if cfg.AGSTokenURL != "" {
		client := gradebook.New(gradebook.Config{
			TokenURL:     cfg.AGSTokenURL,
			ClientID:     cfg.AGSClientID,
			ClientSecret: cfg.AGSClientSecret,
			Timeout:      cfg.AGSTimeout,
		})
		opts = append(opts, quiz.WithPublisher(gradebook.NewPublisher(client)))
	}
	ctrl := quiz.NewController(quiz.NewSQLStore(dbh, db.Driver(cfg.DBDriver)), opts...)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(zl.Named("http")), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	if cfg.TracingEnabled {
		r.Use(tracing.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Local login (dev users only in offline mode)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, auth.LoginOptions{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			DevUsers:      cfg.Mode == config.ModeOffline,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", readyHandler(dbh))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.Mount(pr, ctrl)
	})

	// --- Background expiry sweep ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.ExpirySweepInterval > 0 {
		go sweepOverdue(sweepCtx, ctrl, cfg.ExpirySweepInterval, zl.Named("sweep"))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zl.Info("listening", zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)), zap.String("db", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zl.Info("shutting down", zap.String("signal", sig.String()))
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("forced shutdown", zap.Error(err))
	}
}

func readyHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbh.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// sweepOverdue closes attempts whose time limit ran out until ctx is done.
func sweepOverdue(ctx context.Context, ctrl *quiz.Controller, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := ctrl.ExpireOverdue(ctx); err != nil && ctx.Err() == nil {
				log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
