package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"chat-playback-engine/pkg/attribution"
	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/metrics"
	redisClient "chat-playback-engine/pkg/redis"
	"chat-playback-engine/pkg/server"
	"chat-playback-engine/pkg/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve playback slots over HTTP and websockets",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (defaults to PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithField("instance_id", cfg.InstanceID).Info("Starting chat playback service")

	catalog, err := loadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}

	metrics := metrics.NewMetrics(prometheus.DefaultRegisterer)

	var (
		store  attribution.Store
		pinger func(context.Context) error
	)
	if cfg.RedisEnabled() {
		redisConfig := redisClient.DefaultConnectionConfig()
		redisConfig.URL = cfg.RedisURL

		redis, err := redisClient.NewClient(ctx, redisConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redis.Close()

		store = attribution.NewRedisSink(redis.GetRedisClient(), cfg.EventsStream, cfg.StatsKey, logger, metrics)
		pinger = redis.Ping
	} else {
		logger.Info("REDIS_URL not set, playback events are logged only")
		store = attribution.NewLogSink(logger)
	}

	svc := service.NewService(cfg, catalog, store, pinger, clock.Real(), logger, metrics)
	srv := server.NewHTTPServer(svc, prometheus.DefaultGatherer, logger)

	if err := svc.Run(ctx, srv); err != nil {
		logger.WithError(err).Error("Service stopped with error")
		return err
	}
	logger.Info("Chat playback service shutdown complete")
	return nil
}
