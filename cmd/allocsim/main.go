// Command allocsim serves the allocation REST API and realtime topic backed
// by SQLite, with an engine simulation endpoint for driving allocations
// through processing by hand.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/foodalloc/internal/database"
	"github.com/dukerupert/foodalloc/internal/logging"
	"github.com/dukerupert/foodalloc/internal/seed"
	"github.com/dukerupert/foodalloc/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("ALLOCSIM_LOG_LEVEL"), os.Getenv("ALLOCSIM_LOG_FORMAT"))

	port := os.Getenv("ALLOCSIM_PORT")
	if port == "" {
		port = "8090"
	}

	dbPath := os.Getenv("ALLOCSIM_DB_PATH")
	if dbPath == "" {
		dbPath = "allocsim.db"
	}

	secret := os.Getenv("ALLOCSIM_JWT_SECRET")
	if secret == "" {
		secret = "allocsim-dev-secret"
		slog.Warn("ALLOCSIM_JWT_SECRET not set, using development secret")
	}

	tokenTTL := 12 * time.Hour
	if v := os.Getenv("ALLOCSIM_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid ALLOCSIM_TOKEN_TTL", "value", v, "error", err)
			os.Exit(1)
		}
		tokenTTL = d
	}

	loginPerMinute := 10
	if v := os.Getenv("ALLOCSIM_LOGIN_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("invalid ALLOCSIM_LOGIN_PER_MINUTE", "value", v, "error", err)
			os.Exit(1)
		}
		loginPerMinute = n
	}

	var origins []string
	if v := os.Getenv("ALLOCSIM_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}

	db, err := database.Open(dbPath, database.Simulator)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if os.Getenv("ALLOCSIM_SEED") != "off" {
		seedFile, err := seed.Load(os.Getenv("ALLOCSIM_SEED"))
		if err != nil {
			slog.Error("failed to load seed", "error", err)
			os.Exit(1)
		}
		res, err := seedFile.Apply(db, time.Now())
		if err != nil {
			slog.Error("failed to apply seed", "error", err)
			os.Exit(1)
		}
		slog.Info("seed applied", "users", res.Users, "families", res.Families, "inventories", res.Inventories)
	}

	srv := server.New(db, server.Config{
		JWTSecret:      secret,
		TokenTTL:       tokenTTL,
		AllowedOrigins: origins,
		LoginPerMinute: loginPerMinute,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup(time.Hour)
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("allocation simulator starting", "addr", ":"+port, "db", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	srv.Hub().CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
