package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/apiserver"
	"github.com/doorman/doorman/pkg/auth"
	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/eventbus"
	"github.com/doorman/doorman/pkg/logging"
	"github.com/doorman/doorman/pkg/store/postgres"
	redisclient "github.com/doorman/doorman/pkg/store/redis"
)

func main() {
	issueFor := pflag.String("issue-token", "", "print a bearer token for the named operator and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}
	tokens := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	if *issueFor != "" {
		token, err := tokens.GenerateToken(*issueFor)
		if err != nil {
			logger.Fatal("Failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	var backends apiserver.Backends
	if cfg.Database.Enabled {
		db, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		backends.History = postgres.NewSessionRepository(db.DB())
	}

	if cfg.Redis.Enabled {
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		backends.Progress = redisclient.NewProgressCache(redis.Client(), cfg.Redis.KeyPrefix, redisclient.WithLiveWindow(cfg.Redis.LiveWindow))
		backends.Events = eventbus.NewBus(redis.Client())
	}

	server := apiserver.NewServer(backends, tokens, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
