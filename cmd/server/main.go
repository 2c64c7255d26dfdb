// Package main is the entry point for the brainbox server. It keeps only
// the boring parts: read env config, build the logger and optional Redis
// client, then hand everything to internal/server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/brainbox/internal/middleware"
	"github.com/sakif/brainbox/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := envInt(logger, "PORT", 8080)

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "data/brainbox.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// JWT_SECRET must be a long random string, e.g. openssl rand -hex 32.
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	githubCallbackURL := os.Getenv("GITHUB_CALLBACK_URL")
	if githubCallbackURL == "" {
		githubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", port)
	}

	cfg := server.Config{
		Port:               port,
		DBPath:             dbPath,
		JWTSecret:          jwtSecret,
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  githubCallbackURL,
		MaxConnections:     envInt(logger, "EXT_MAX_CONNECTIONS", 0),
	}

	limiter := buildLimiter(logger)

	srv, err := server.New(cfg, logger, limiter)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildLimiter picks the rate limiter backend: Redis when REDIS_ADDRESS is
// set (shared limits across replicas), otherwise an in-process one.
func buildLimiter(logger *slog.Logger) middleware.Limiter {
	limit := envInt(logger, "RATE_LIMIT_PER_MINUTE", 120)

	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		logger.Info("REDIS_ADDRESS not set, using in-memory rate limiting")
		return middleware.NewMemoryLimiter(float64(limit)/60, limit)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt(logger, "REDIS_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, falling back to in-memory rate limiting",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		return middleware.NewMemoryLimiter(float64(limit)/60, limit)
	}

	logger.Info("rate limiting via Redis", slog.String("address", addr))
	return middleware.NewRedisLimiter(client, limit, time.Minute)
}

func envInt(logger *slog.Logger, name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Error("invalid integer env value",
			slog.String("name", name),
			slog.String("value", raw),
		)
		os.Exit(1)
	}
	return n
}
