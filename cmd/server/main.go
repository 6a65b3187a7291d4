package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/promptduel/promptduel/internal/ai"
	"github.com/promptduel/promptduel/internal/auth"
	"github.com/promptduel/promptduel/internal/database"
	"github.com/promptduel/promptduel/internal/game"
	"github.com/promptduel/promptduel/internal/handlers"
	"github.com/promptduel/promptduel/internal/store"
)

func main() {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	rdb, err := store.Connect()
	if err != nil {
		log.Fatalf("redis connect failed: %v", err)
	}
	defer rdb.Close()

	aiClient, err := ai.NewClient(ctx, os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		log.Fatalf("ai client init failed: %v", err)
	}

	cfg := engineConfigFromEnv()
	registry := handlers.NewRegistry(logger)
	engine := game.NewEngine(logger, rdb, db, db, db, db, aiClient, aiClient, registry, cfg)

	timers := game.NewTimerManager(rdb, logger, cfg.Extension, engine.HandleDeadline)
	go timers.Run(ctx)
	go registry.RunHeartbeat(ctx)

	srv := handlers.NewServer(logger, db, engine, registry)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// engineConfigFromEnv applies env overrides on top of the defaults.
func engineConfigFromEnv() game.Config {
	cfg := game.DefaultConfig()
	if d, err := time.ParseDuration(os.Getenv("ROUND_DURATION")); err == nil && d > 0 {
		cfg.RoundDuration = d
	}
	if d, err := time.ParseDuration(os.Getenv("RETRY_DELAY")); err == nil && d > 0 {
		cfg.RetryDelay = d
	}
	if n, err := strconv.Atoi(os.Getenv("WIN_POINTS")); err == nil && n >= 0 {
		cfg.WinPoints = n
	}
	if n, err := strconv.Atoi(os.Getenv("REFUND_POINTS")); err == nil && n >= 0 {
		cfg.RefundPoints = n
	}
	if n, err := strconv.Atoi(os.Getenv("MAX_ATTEMPTS")); err == nil && n > 0 {
		cfg.MaxAttempts = n
	}
	return cfg
}
