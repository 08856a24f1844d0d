package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/practiceprep/backend/internal/accounts"
	"github.com/practiceprep/backend/internal/audit"
	"github.com/practiceprep/backend/internal/cache"
	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/content"
	"github.com/practiceprep/backend/internal/database"
	"github.com/practiceprep/backend/internal/gamification"
	"github.com/practiceprep/backend/internal/middleware"
	"github.com/practiceprep/backend/internal/worker"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, cfgErr := config.Load(*configPath)
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	if cfgErr != nil {
		logger.Warn("failed to load config file, using defaults", "path", *configPath, "error", cfgErr)
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret or JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	logger.Info("connecting to PostgreSQL", "host", cfg.Database.Host, "database", cfg.Database.Name)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Engine
	engine := gamification.NewEngine(
		gamification.NewStore(db),
		accounts.NewDirectory(db),
		content.NewStore(db),
		config.NewStaticSettings(cfg.Gamification),
		logger,
	)

	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	if cfg.Kafka.Enabled {
		producer, err := audit.NewKafkaProducer(cfg.Kafka)
		if err != nil {
			logger.Warn("failed to create Kafka producer, auditing to log only", "error", err)
		} else {
			kafkaSink := audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic)
			defer kafkaSink.Close()
			sinks = append(sinks, kafkaSink)
			logger.Info("audit events publishing to Kafka", "topic", cfg.Kafka.AuditTopic)
		}
	}
	engine.SetAuditSink(sinks)

	if cfg.Redis.Enabled {
		boardCache, err := cache.NewLeaderboardCache(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, serving leaderboards from database", "error", err)
		} else {
			defer boardCache.Close()
			engine.SetCache(boardCache)
		}
	}

	// Scheduler
	var scheduler *worker.RankingScheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = worker.NewRankingScheduler(engine, cfg.Scheduler.Interval, logger)
		if err != nil {
			logger.Error("failed to create ranking scheduler", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	// Router
	authenticator := middleware.NewAuthenticator(cfg.Auth.JWTSecret)

	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	api := r.PathPrefix("/api/v1").Subrouter()

	protected := api.PathPrefix("").Subrouter()
	protected.Use(authenticator.Middleware)

	staff := api.PathPrefix("/internal").Subrouter()
	staff.Use(authenticator.Middleware)
	staff.Use(middleware.RequireStaff)

	gamification.NewHandler(engine, logger).RegisterRoutes(protected, staff)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      c.Handler(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Error("failed to stop scheduler", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
