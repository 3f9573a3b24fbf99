package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/cli"
	apphttp "bookkeeper/internal/http"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
	"bookkeeper/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	logger.Info("Starting bookkeeper", log.FieldOperation, log.OpStartup)

	ctx := context.Background()
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	provider := cli.InitProvider(ctx, logger, cfg)
	analyzer, rules := cli.InitAnalyzer(logger, cfg, provider)

	reports := cache.NewLRUCache[*storage.Analysis](cfg.CacheSize, cfg.CacheTTL)
	opts := []services.Option{services.WithCache(reports)}

	if src := cli.InitSheets(ctx, logger, cfg); src != nil {
		opts = append(opts, services.WithSheets(src))
	}
	if classifier := cli.InitClassifier(cfg, provider, rules); classifier != nil {
		opts = append(opts, services.WithClassifier(classifier))
		logger.Info("Model classification of uncategorized rows enabled")
	}

	// A broker outage only delays feedback: jobs stay pending for the
	// worker's sweeper.
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, feedback jobs will be swept", log.FieldError, err.Error())
		} else {
			defer client.Close()
			opts = append(opts, services.WithPublisher(client))
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, feedback jobs will be swept")
	}

	svc := services.NewAnalysisService(repo, analyzer, opts...)
	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithLogger(logger),
		apphttp.WithReadiness(repo),
		apphttp.WithMaxUploadBytes(cfg.MaxUploadBytes),
		apphttp.WithCacheStats(reports.Stats),
	)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})
	go cache.NewManager(reports).Run(shutdownCtx, time.Minute)

	logger.Info("HTTP server listening", "port", cfg.Port, "max_upload_bytes", cfg.MaxUploadBytes)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
