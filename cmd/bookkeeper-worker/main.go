package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/cli"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting bookkeeper-worker", log.FieldOperation, log.OpStartup)

	provider := cli.InitProvider(context.Background(), logger, cfg)
	if provider == nil {
		logger.Error("The feedback worker needs LLM_PROVIDER to be openai or gemini")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	pcfg := services.FeedbackProcessorConfig{
		SweepInterval: cfg.FeedbackSweepInterval,
		BatchSize:     cfg.FeedbackBatchSize,
	}

	var client *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()
		// Fresh jobs belong to the consumer; the sweeper only picks up
		// jobs that sat untouched for longer than one model call.
		pcfg.SweepGrace = cfg.LLMTimeout + cfg.FeedbackSweepInterval
	} else {
		logger.Info("AMQP disabled, relying on the sweeper alone")
	}

	processor := services.NewFeedbackProcessor(repo, provider, pcfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Run(gctx)
	})
	if client != nil {
		g.Go(func() error {
			return client.ConsumeFeedbackRequests(gctx, processor.HandleMessage)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
