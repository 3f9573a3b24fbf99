package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	"bookkeeper/internal/feedback"
	"bookkeeper/internal/ledger"
	"bookkeeper/internal/sheets"
	"bookkeeper/internal/storage"
)

var (
	// ErrInvalidRequest marks caller mistakes such as an empty question.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSheetsDisabled is returned when no spreadsheet source is configured.
	ErrSheetsDisabled = errors.New("spreadsheet source not configured")
)

// AnalysisStore is the persistence the analysis service needs.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a *storage.Analysis) error
	GetAnalysis(ctx context.Context, id string) (*storage.Analysis, error)
	FindAnalysisByDigest(ctx context.Context, digest string) (*storage.Analysis, error)
	CreateFeedback(ctx context.Context, analysisID, question string, current core.Period, gate storage.GateFunc) (*storage.FeedbackJob, error)
	GetFeedback(ctx context.Context, id int64) (*storage.FeedbackJob, error)
}

// FeedbackPublisher announces new feedback jobs to the worker.
type FeedbackPublisher interface {
	PublishFeedbackRequest(ctx context.Context, id int64, analysisID string) error
}

// LedgerClassifier assigns categories; it must return a derived ledger.
type LedgerClassifier interface {
	Classify(ctx context.Context, l core.Ledger) (core.Ledger, error)
}

// AnalysisService turns uploaded or spreadsheet ledgers into stored reports
// and queues feedback requests against them.
type AnalysisService struct {
	store      AnalysisStore
	analyzer   *analysis.Analyzer
	publisher  FeedbackPublisher
	sheets     sheets.LedgerReader
	classifier LedgerClassifier
	reports    *cache.LRUCache[*storage.Analysis]
	now        func() time.Time
}

// Option configures an AnalysisService.
type Option func(*AnalysisService)

// WithPublisher enables AMQP notification of feedback jobs.
func WithPublisher(p FeedbackPublisher) Option {
	return func(s *AnalysisService) { s.publisher = p }
}

// WithSheets enables spreadsheet ledgers.
func WithSheets(r sheets.LedgerReader) Option {
	return func(s *AnalysisService) { s.sheets = r }
}

// WithClassifier runs c over each ledger before analysis.
func WithClassifier(c LedgerClassifier) Option {
	return func(s *AnalysisService) { s.classifier = c }
}

// WithCache keeps recently used analyses in memory.
func WithCache(c *cache.LRUCache[*storage.Analysis]) Option {
	return func(s *AnalysisService) { s.reports = c }
}

// WithClock overrides the clock used for the feedback month.
func WithClock(now func() time.Time) Option {
	return func(s *AnalysisService) { s.now = now }
}

func NewAnalysisService(store AnalysisStore, analyzer *analysis.Analyzer, opts ...Option) *AnalysisService {
	s := &AnalysisService{store: store, analyzer: analyzer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadRequest is a ledger file submitted for analysis.
type UploadRequest struct {
	Name      string
	Data      []byte
	Household analysis.Household
}

// AnalyzeUpload parses an uploaded ledger file and stores its report.
func (s *AnalysisService) AnalyzeUpload(ctx context.Context, req UploadRequest) (*storage.Analysis, error) {
	l, stats, err := ledger.ParseFile(req.Name, req.Data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.Name, err)
	}
	return s.analyze(ctx, req.Name, l, stats, req.Household)
}

// AnalyzeSheet reads a ledger from a spreadsheet and stores its report.
func (s *AnalysisService) AnalyzeSheet(ctx context.Context, ref sheets.Ref, h analysis.Household) (*storage.Analysis, error) {
	if s.sheets == nil {
		return nil, ErrSheetsDisabled
	}
	if strings.TrimSpace(ref.SpreadsheetID) == "" {
		return nil, fmt.Errorf("%w: spreadsheet_id is required", ErrInvalidRequest)
	}
	l, stats, err := s.sheets.ReadLedger(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", ref.SpreadsheetID, err)
	}
	return s.analyze(ctx, "sheets:"+ref.SpreadsheetID+"!"+ref.RangeOrDefault(), l, stats, h)
}

func (s *AnalysisService) analyze(ctx context.Context, source string, l core.Ledger, stats ledger.Stats, h analysis.Household) (*storage.Analysis, error) {
	if s.classifier != nil {
		classified, err := s.classifier.Classify(ctx, l)
		if err != nil {
			slog.WarnContext(ctx, "Classification failed, keeping original categories",
				"component", "analysis", "source", source, "error", err)
		} else {
			l = classified
		}
	}

	digest := ledgerDigest(l, h)
	if existing, err := s.store.FindAnalysisByDigest(ctx, digest); err == nil {
		slog.InfoContext(ctx, "Reusing analysis of identical ledger",
			"component", "analysis", "analysis_id", existing.ID, "source", source)
		s.remember(existing)
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup analysis: %w", err)
	}

	report := s.analyzer.Analyze(ctx, l, h)
	a := &storage.Analysis{
		ID:         uuid.NewString(),
		SourceName: source,
		Digest:     digest,
		Stats:      stats,
		Report:     report,
		Text:       analysis.RenderText(report),
	}
	if err := s.store.SaveAnalysis(ctx, a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}
	s.remember(a)

	slog.InfoContext(ctx, "Ledger analyzed",
		"component", "analysis",
		"analysis_id", a.ID,
		"source", source,
		"rows", stats.Accepted,
		"dropped", stats.Dropped,
		"coverage", report.Coverage,
		"warnings", len(report.Warnings),
		"thresholds_fallback", report.ThresholdsFallback)
	return a, nil
}

// Get returns a stored analysis.
func (s *AnalysisService) Get(ctx context.Context, id string) (*storage.Analysis, error) {
	if s.reports != nil {
		if a, ok := s.reports.Get(id); ok {
			return a, nil
		}
	}
	a, err := s.store.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(a)
	return a, nil
}

func (s *AnalysisService) remember(a *storage.Analysis) {
	if s.reports != nil {
		s.reports.Set(a.ID, a)
	}
}

// RequestFeedback records a feedback job for analysisID and notifies the
// worker. The job is durable before publishing; a failed publish leaves it
// for the worker's sweeper.
func (s *AnalysisService) RequestFeedback(ctx context.Context, analysisID, question string) (*storage.FeedbackJob, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}

	current := core.PeriodOf(s.now())
	job, err := s.store.CreateFeedback(ctx, analysisID, question, current, feedback.Gate)
	if err != nil {
		return nil, fmt.Errorf("create feedback job: %w", err)
	}

	if err := s.publish(ctx, job); err != nil {
		slog.ErrorContext(ctx, "Failed to publish feedback request",
			"component", "analysis", "feedback_id", job.ID, "error", err)
	}
	return job, nil
}

func (s *AnalysisService) publish(ctx context.Context, job *storage.FeedbackJob) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, job left for sweeper", "feedback_id", job.ID)
		return nil
	}
	return s.publisher.PublishFeedbackRequest(ctx, job.ID, job.AnalysisID)
}

// GetFeedback returns a feedback job.
func (s *AnalysisService) GetFeedback(ctx context.Context, id int64) (*storage.FeedbackJob, error) {
	return s.store.GetFeedback(ctx, id)
}

// ledgerDigest identifies identical analysis input independently of the
// source file name or format.
func ledgerDigest(l core.Ledger, h analysis.Household) string {
	hash := sha256.New()
	fmt.Fprintf(hash, "household:%d/%d/%d\n", h.Dependents, h.Children, h.Elderly)
	for _, t := range l {
		fmt.Fprintf(hash, "%s|%s|%d|%s\n", t.Date, t.Description, t.Amount, t.Category)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
