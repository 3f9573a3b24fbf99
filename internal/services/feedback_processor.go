package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bookkeeper/internal/amqp"
	"bookkeeper/internal/feedback"
	"bookkeeper/internal/storage"
)

// FeedbackStore is the persistence the feedback worker needs.
type FeedbackStore interface {
	GetAnalysis(ctx context.Context, id string) (*storage.Analysis, error)
	GetFeedback(ctx context.Context, id int64) (*storage.FeedbackJob, error)
	PendingFeedback(ctx context.Context, cutoff time.Time, limit int) ([]storage.FeedbackJob, error)
	CompleteFeedback(ctx context.Context, id int64, response string) error
	FailFeedback(ctx context.Context, id int64, cause error, maxAttempts int) error
}

// FeedbackProcessorConfig holds configuration for the feedback worker
type FeedbackProcessorConfig struct {
	// SweepInterval is how often pending jobs are re-checked (default: 30s)
	SweepInterval time.Duration

	// SweepGrace skips jobs touched more recently than this, leaving them
	// to the AMQP consumer (default: 0, sweep everything)
	SweepGrace time.Duration

	// BatchSize is the max number of jobs per sweep (default: 10)
	BatchSize int

	// Concurrency bounds parallel LLM calls during a sweep (default: 2)
	Concurrency int

	// MaxAttempts before a job is marked failed (default: 3)
	MaxAttempts int
}

// DefaultFeedbackProcessorConfig returns sensible defaults
func DefaultFeedbackProcessorConfig() FeedbackProcessorConfig {
	return FeedbackProcessorConfig{
		SweepInterval: 30 * time.Second,
		BatchSize:     10,
		Concurrency:   2,
		MaxAttempts:   3,
	}
}

// FeedbackProcessor answers feedback jobs with the configured model.
type FeedbackProcessor struct {
	store   FeedbackStore
	advisor feedback.Advisor
	config  FeedbackProcessorConfig
	now     func() time.Time
}

func NewFeedbackProcessor(store FeedbackStore, provider feedback.Provider, config FeedbackProcessorConfig) *FeedbackProcessor {
	def := DefaultFeedbackProcessorConfig()
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &FeedbackProcessor{
		store:   store,
		advisor: feedback.Advisor{Provider: provider},
		config:  config,
		now:     time.Now,
	}
}

// Process answers one job. Jobs that are no longer pending are skipped, so
// duplicate deliveries are harmless.
func (p *FeedbackProcessor) Process(ctx context.Context, id int64) error {
	job, err := p.store.GetFeedback(ctx, id)
	if err != nil {
		return fmt.Errorf("load feedback %d: %w", id, err)
	}
	if job.Status != storage.FeedbackPending {
		slog.DebugContext(ctx, "Feedback job already finished", "component", "worker", "feedback_id", id, "status", job.Status)
		return nil
	}

	a, err := p.store.GetAnalysis(ctx, job.AnalysisID)
	if err != nil {
		return p.fail(ctx, id, fmt.Errorf("load analysis %s: %w", job.AnalysisID, err))
	}

	start := time.Now()
	reply, err := p.advisor.Answer(ctx, job.Question, a.Text, job.IncludeMonthly)
	if err != nil {
		return p.fail(ctx, id, err)
	}

	if err := p.store.CompleteFeedback(ctx, id, reply); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.InfoContext(ctx, "Feedback job finished concurrently", "component", "worker", "feedback_id", id)
			return nil
		}
		return fmt.Errorf("complete feedback %d: %w", id, err)
	}

	slog.InfoContext(ctx, "Feedback answered",
		"component", "worker",
		"feedback_id", id,
		"analysis_id", job.AnalysisID,
		"include_monthly", job.IncludeMonthly,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *FeedbackProcessor) fail(ctx context.Context, id int64, cause error) error {
	if err := p.store.FailFeedback(ctx, id, cause, p.config.MaxAttempts); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.ErrorContext(ctx, "Failed to record feedback failure", "component", "worker", "feedback_id", id, "error", err)
	}
	return cause
}

// HandleMessage is the AMQP consumer callback.
func (p *FeedbackProcessor) HandleMessage(ctx context.Context, msg *amqp.FeedbackRequestMessage) error {
	return p.Process(ctx, msg.FeedbackID)
}

// Sweep processes one batch of pending jobs with bounded concurrency and
// returns how many were answered. Individual failures are logged and
// recorded on the job; they do not abort the batch.
func (p *FeedbackProcessor) Sweep(ctx context.Context) (int, error) {
	jobs, err := p.store.PendingFeedback(ctx, p.now().Add(-p.config.SweepGrace), p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending feedback: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var (
		g        errgroup.Group
		answered atomic.Int64
	)
	g.SetLimit(p.config.Concurrency)
	for _, job := range jobs {
		id := job.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := p.Process(ctx, id); err != nil {
				slog.WarnContext(ctx, "Feedback job failed", "component", "worker", "feedback_id", id, "error", err)
				return nil
			}
			answered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	slog.DebugContext(ctx, "Feedback sweep finished", "component", "worker", "pending", len(jobs), "answered", answered.Load())
	return int(answered.Load()), ctx.Err()
}

// Run sweeps immediately and then on every interval until ctx is cancelled.
func (p *FeedbackProcessor) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "Feedback sweeper started",
		"component", "worker",
		"interval", p.config.SweepInterval,
		"batch_size", p.config.BatchSize,
		"concurrency", p.config.Concurrency)

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := p.Sweep(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Feedback sweep failed", "component", "worker", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Feedback sweeper stopped", "component", "worker")
			return nil
		case <-ticker.C:
		}
	}
}
