package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/config"
	"github.com/doorman/doorman/pkg/eventbus"
	"github.com/doorman/doorman/pkg/game"
	"github.com/doorman/doorman/pkg/logging"
	"github.com/doorman/doorman/pkg/runner"
	"github.com/doorman/doorman/pkg/store/postgres"
	redisclient "github.com/doorman/doorman/pkg/store/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	flagSet := pflag.NewFlagSet("doorman", pflag.ContinueOnError)
	flagSet.Int("scenario", 1, "scenario to play (1, 2 or 3)")
	flagSet.Bool("simulate", false, "play against the in-process simulator")
	flagSet.Int64("seed", 1, "simulator random seed")
	flagSet.String("player-id", "", "player id sent to the admission service")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	v := viper.New()
	for key, name := range map[string]string{
		"game.scenario":  "scenario",
		"game.simulate":  "simulate",
		"game.seed":      "seed",
		"game.player_id": "player-id",
	} {
		if err := v.BindPFlag(key, flagSet.Lookup(name)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
	}

	cfg, err := config.LoadWith(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer logger.Sync()

	scenario, err := cfg.Strategy.Scenario(cfg.Game.Scenario)
	if err != nil {
		logger.Error("unknown scenario", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg, logger)
	defer shutdown(metricsServer, logger)

	var opts []runner.Option
	if cfg.Redis.Enabled {
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to redis", zap.Error(err))
			return 1
		}
		defer redis.Close()
		opts = append(opts,
			runner.WithPublisher(eventbus.NewBus(redis.Client())),
			runner.WithProgressWriter(redisclient.NewProgressCache(redis.Client(), cfg.Redis.KeyPrefix, redisclient.WithLiveWindow(cfg.Redis.LiveWindow))),
		)
	}
	if cfg.Database.Enabled {
		db, err := postgres.NewStore(&cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", zap.Error(err))
			return 1
		}
		defer db.Close()
		if err := db.AutoMigrate(); err != nil {
			logger.Error("failed to migrate database", zap.Error(err))
			return 1
		}
		opts = append(opts, runner.WithHistory(postgres.NewSessionRepository(db.DB())))
	}

	var gateway runner.Gateway
	if cfg.Game.Simulate {
		logger.Info("using simulator", zap.Int64("seed", cfg.Game.Seed))
		gateway = game.NewSimulator(scenario, cfg.Game)
	} else {
		gateway = game.NewClient(cfg.Game, logger)
	}

	r := runner.NewRunner(gateway, scenario, cfg.Game.VenueCapacity, cfg.Runner.ProgressEvery, logger, opts...)
	report, err := r.Run(ctx)
	if err != nil {
		logger.Error("session did not finish", zap.Error(err))
		return 1
	}
	if !report.Succeeded() {
		logger.Warn("session ended without meeting every minimum",
			zap.String("outcome", string(report.Outcome)),
			zap.Any("shortfall", report.Shortfall()),
		)
		return 1
	}
	return 0
}

func startMetricsServer(cfg *config.Config, logger *zap.Logger) *http.Server {
	if cfg.Server.MetricsPort <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return server
}

func shutdown(server *http.Server, logger *zap.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}
}
