// Package cli provides the initialization steps shared by cmd/bookkeeper,
// cmd/bookkeeper-worker and cmd/analyze.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/config"
	"bookkeeper/internal/feedback"
	"bookkeeper/internal/log"
	"bookkeeper/internal/sheets"
	gsheet "bookkeeper/internal/sheets/google"
	"bookkeeper/internal/sheets/memory"
	"bookkeeper/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Bootstrap loads the configuration, installs the default logger for
// component and validates. It exits the process on validation failure.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg, logger
}

// InitSQLite opens the repository, applying migrations, or exits.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitProvider returns the configured LLM provider, or nil when none is
// configured. A misconfigured provider exits the process.
func InitProvider(ctx context.Context, logger *log.Logger, cfg *config.Config) feedback.Provider {
	p, err := feedback.NewProviderFromConfig(ctx, cfg)
	if errors.Is(err, feedback.ErrNoProvider) {
		logger.Info("LLM provider disabled")
		return nil
	}
	if err != nil {
		logger.Error("Failed to initialize LLM provider", log.FieldError, err.Error(), log.FieldProvider, cfg.LLMProvider)
		os.Exit(1)
	}
	logger.Info("LLM provider initialized", log.FieldProvider, p.Name(), "timeout", cfg.LLMTimeout)
	return p
}

// InitAnalyzer builds the analyzer from the rule file. With a provider and
// LLM_GENERATED_THRESHOLDS the model supplies the threshold table and the
// rule file's table becomes the fallback.
func InitAnalyzer(logger *log.Logger, cfg *config.Config, provider feedback.Provider) (*analysis.Analyzer, analysis.Rules) {
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Error("Failed to load analysis rules", log.FieldError, err.Error(), "path", cfg.RulesFile)
		os.Exit(1)
	}

	var opts []analysis.Option
	if provider != nil && cfg.LLMGeneratedThresholds {
		opts = append(opts, analysis.WithThresholdSource(feedback.GeneratedThresholds{Provider: provider}))
		logger.Info("Using model-generated spending thresholds", log.FieldProvider, provider.Name())
	}
	return analysis.NewAnalyzer(rules, opts...), rules
}

// InitClassifier returns a model-backed classifier restricted to the rule
// categories, or nil when classification is off.
func InitClassifier(cfg *config.Config, provider feedback.Provider, rules analysis.Rules) *feedback.Classifier {
	if provider == nil || !cfg.LLMClassify {
		return nil
	}
	categories := []string{rules.RevenueCategory}
	for _, t := range rules.Thresholds {
		categories = append(categories, t.Category)
	}
	return &feedback.Classifier{Provider: provider, Categories: categories}
}

// InitSheets returns the spreadsheet ledger source, or nil when disabled.
// SHEETS_LOCAL_DIR wins over Google credentials.
func InitSheets(ctx context.Context, logger *log.Logger, cfg *config.Config) sheets.LedgerReader {
	switch {
	case cfg.SheetsLocalDir != "":
		logger.Info("Serving spreadsheets from local CSV files", "dir", cfg.SheetsLocalDir)
		return memory.NewFromDir(cfg.SheetsLocalDir)
	case cfg.SheetsEnabled():
		client, err := gsheet.New(ctx, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
			os.Exit(1)
		}
		logger.Info("Google Sheets ledger source initialized")
		return client
	default:
		logger.Info("Spreadsheet ledger source disabled")
		return nil
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. Before
// cancelling, cleanup runs with a context bounded by timeout. The returned
// channel closes once cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
