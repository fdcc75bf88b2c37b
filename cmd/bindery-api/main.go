package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"bindery/internal/config"
	"bindery/internal/files"
	server "bindery/internal/http"
	"bindery/internal/jobs"
	"bindery/internal/migrate"
	"bindery/internal/queue"
	"bindery/internal/store"
	"bindery/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|sweeper|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Ensure initial admin API key if configured
	if cfg.Auth.Enabled && cfg.Auth.InitialAdminKey != "" {
		if _, err := st.EnsureAdminAPIKey(context.Background(), cfg.Auth.InitialAdminKey, "initial-admin"); err != nil {
			log.Fatalf("ensure admin api key failed: %v", err)
		}
	}

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// Redis carries the work queues and the rate limiter.
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("parse redis url failed: %v", err)
	}
	rdb := redis.NewClient(opt)

	dispatcher := queue.NewRedisDispatcher(rdb)
	resolver := files.NewServiceResolver(cfg.FileService)
	prober := files.NewAccessProber(cfg.Probe.TimeoutMs)
	sender := webhook.NewSender(cfg.Webhook, logger)

	deps := server.Deps{
		Producer: jobs.NewProducer(st, dispatcher, resolver, logger),
		Checker:  jobs.NewChecker(resolver, prober, logger),
		Ingestor: jobs.NewIngestor(st, sender, logger),
	}

	rootCtx := context.Background()
	sweeper := jobs.NewSweeper(cfg, st, dispatcher, logger)

	switch *role {
	case "api":
		// API-only: do not start the sweeper.
		s := server.NewServer(cfg, st, rdb, deps, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "sweeper":
		// Sweeper-only: run the repair/retention loop and block.
		if !cfg.Sweeper.Enabled {
			log.Fatalf("sweeper role requested but sweeper.enabled is false")
		}
		sweeper.Start(rootCtx)
	case "all":
		// Default: run both API and sweeper in one process.
		if cfg.Sweeper.Enabled {
			go sweeper.Start(rootCtx)
		}
		s := server.NewServer(cfg, st, rdb, deps, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|sweeper|all)", *role)
	}
}
