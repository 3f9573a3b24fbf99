package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/cache"
	"bookkeeper/internal/core"
	"bookkeeper/internal/feedback"
	"bookkeeper/internal/ledger"
	"bookkeeper/internal/sheets"
	"bookkeeper/internal/sheets/memory"
	"bookkeeper/internal/storage"
)

const sampleLedger = "2024-01-05|카드매출|1,000,000|매출\n" +
	"2024-01-06|밀가루|600,000|원재료비\n" +
	"잘못된 줄\n"

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bookkeeper.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *recordingPublisher) PublishFeedbackRequest(_ context.Context, id int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return p.err
}

type stubProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []feedback.Prompt
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, p feedback.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	return s.reply, s.err
}

type stubClassifier struct {
	label string
	err   error
}

func (c stubClassifier) Classify(_ context.Context, l core.Ledger) (core.Ledger, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := l.Clone()
	for i := range out {
		if out[i].Category == "" {
			out[i].Category = c.label
		}
	}
	return out, nil
}

func fixedClock(year int, month time.Month) func() time.Time {
	return func() time.Time { return time.Date(year, month, 15, 9, 0, 0, 0, time.UTC) }
}

func TestAnalysisService_AnalyzeUpload(t *testing.T) {
	repo := newRepo(t)
	reports := cache.NewLRUCache[*storage.Analysis](8, time.Minute)
	svc := NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()), WithCache(reports))
	ctx := context.Background()

	a, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "jan.txt", Data: []byte(sampleLedger)})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.ID == "" || a.Stats.Accepted != 2 || a.Stats.Dropped != 1 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.Report.Income != 1_000_000 || a.Report.Coverage != analysis.Partial || len(a.Report.Warnings) != 1 {
		t.Fatalf("unexpected report: %+v", a.Report)
	}
	if a.Text != analysis.RenderText(a.Report) {
		t.Fatal("stored text should be the rendered report")
	}
	if reports.Size() != 1 {
		t.Fatalf("analysis should be cached, size=%d", reports.Size())
	}

	got, err := svc.Get(ctx, a.ID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("get: %+v, %v", got, err)
	}

	reports.Delete(a.ID)
	fromDB, err := svc.Get(ctx, a.ID)
	if err != nil || fromDB.Report.Income != a.Report.Income {
		t.Fatalf("get from storage: %+v, %v", fromDB, err)
	}

	again, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "copy.txt", Data: []byte(sampleLedger)})
	if err != nil || again.ID != a.ID {
		t.Fatalf("identical ledger should reuse analysis %s, got %+v, %v", a.ID, again, err)
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAnalysisService_UploadErrors(t *testing.T) {
	svc := NewAnalysisService(newRepo(t), analysis.NewAnalyzer(analysis.DefaultRules()))
	ctx := context.Background()

	if _, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "ledger.xlsx", Data: []byte("x")}); !errors.Is(err, ledger.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "ledger.txt", Data: []byte("\n\n")}); !errors.Is(err, ledger.ErrEmptyLedger) {
		t.Fatalf("expected ErrEmptyLedger, got %v", err)
	}
}

func TestAnalysisService_Classifier(t *testing.T) {
	data := []byte("2024-01-05|카드매출|1,000,000|매출\n2024-01-06|전단지|200,000|\n")
	ctx := context.Background()

	svc := NewAnalysisService(newRepo(t), analysis.NewAnalyzer(analysis.DefaultRules()),
		WithClassifier(stubClassifier{label: analysis.CategoryAdvertising}))
	a, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "l.txt", Data: data})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(a.Report.Warnings) != 1 {
		t.Fatalf("classified advertising spend should trip the ceiling: %v", a.Report.Warnings)
	}

	failing := NewAnalysisService(newRepo(t), analysis.NewAnalyzer(analysis.DefaultRules()),
		WithClassifier(stubClassifier{err: errors.New("model down")}))
	b, err := failing.AnalyzeUpload(ctx, UploadRequest{Name: "l.txt", Data: data})
	if err != nil {
		t.Fatalf("classifier failure must not fail analysis: %v", err)
	}
	if len(b.Report.Warnings) != 0 {
		t.Fatalf("original categories expected, got warnings %v", b.Report.Warnings)
	}
}

func TestAnalysisService_AnalyzeSheet(t *testing.T) {
	ctx := context.Background()
	svc := NewAnalysisService(newRepo(t), analysis.NewAnalyzer(analysis.DefaultRules()))
	if _, err := svc.AnalyzeSheet(ctx, sheets.Ref{SpreadsheetID: "x"}, analysis.Household{}); !errors.Is(err, ErrSheetsDisabled) {
		t.Fatalf("expected ErrSheetsDisabled, got %v", err)
	}

	store := memory.New()
	store.Put("books", [][]string{
		{"날짜", "내용", "금액", "분류"},
		{"2024-02-01", "매출", "2,000,000", "매출"},
	})
	svc = NewAnalysisService(newRepo(t), analysis.NewAnalyzer(analysis.DefaultRules()), WithSheets(store))

	if _, err := svc.AnalyzeSheet(ctx, sheets.Ref{}, analysis.Household{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	a, err := svc.AnalyzeSheet(ctx, sheets.Ref{SpreadsheetID: "books"}, analysis.Household{})
	if err != nil {
		t.Fatalf("analyze sheet: %v", err)
	}
	if a.SourceName != "sheets:books!A:D" || a.Report.Income != 2_000_000 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
}

func TestAnalysisService_RequestFeedback(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	pub := &recordingPublisher{}
	month := time.March
	svc := NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()),
		WithPublisher(pub),
		WithClock(func() time.Time { return time.Date(2024, month, 15, 9, 0, 0, 0, time.UTC) }))

	a, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "l.txt", Data: []byte(sampleLedger)})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if _, err := svc.RequestFeedback(ctx, a.ID, "   "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	first, err := svc.RequestFeedback(ctx, a.ID, "부가세는?")
	if err != nil || !first.IncludeMonthly {
		t.Fatalf("first request of the month should include feedback: %+v, %v", first, err)
	}
	second, _ := svc.RequestFeedback(ctx, a.ID, "종소세는?")
	if second.IncludeMonthly {
		t.Fatal("second request in the same month must not include feedback")
	}
	month = time.April
	third, _ := svc.RequestFeedback(ctx, a.ID, "다음 달은?")
	if !third.IncludeMonthly {
		t.Fatal("a new month should include feedback again")
	}
	if len(pub.ids) != 3 {
		t.Fatalf("expected 3 published jobs, got %v", pub.ids)
	}

	pub.err = errors.New("broker down")
	job, err := svc.RequestFeedback(ctx, a.ID, "still queued?")
	if err != nil || job.Status != storage.FeedbackPending {
		t.Fatalf("publish failure must not fail the request: %+v, %v", job, err)
	}

	if _, err := svc.RequestFeedback(ctx, "missing", "q"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFeedbackProcessor(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()), WithClock(fixedClock(2024, 5)))
	a, err := svc.AnalyzeUpload(ctx, UploadRequest{Name: "l.txt", Data: []byte(sampleLedger)})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	job, _ := svc.RequestFeedback(ctx, a.ID, "원가가 높은가요?")

	provider := &stubProvider{reply: "원재료비 비중을 낮추세요."}
	proc := NewFeedbackProcessor(repo, provider, FeedbackProcessorConfig{MaxAttempts: 2})

	if err := proc.Process(ctx, job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	done, _ := svc.GetFeedback(ctx, job.ID)
	if done.Status != storage.FeedbackDone || done.Response != "원재료비 비중을 낮추세요." {
		t.Fatalf("unexpected job: %+v", done)
	}
	if len(provider.prompts) != 1 || provider.prompts[0].User == "" {
		t.Fatal("expected one prompt with the report")
	}

	if err := proc.Process(ctx, job.ID); err != nil || len(provider.prompts) != 1 {
		t.Fatalf("finished jobs must be skipped: %v, calls=%d", err, len(provider.prompts))
	}
}

func TestFeedbackProcessor_SweepRetriesAndFails(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	svc := NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()), WithClock(fixedClock(2024, 6)))
	a, _ := svc.AnalyzeUpload(ctx, UploadRequest{Name: "l.txt", Data: []byte(sampleLedger)})
	for _, q := range []string{"a", "b", "c"} {
		if _, err := svc.RequestFeedback(ctx, a.ID, q); err != nil {
			t.Fatalf("request: %v", err)
		}
	}

	provider := &stubProvider{err: errors.New("rate limited")}
	proc := NewFeedbackProcessor(repo, provider, FeedbackProcessorConfig{MaxAttempts: 2, Concurrency: 3})

	n, err := proc.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("first sweep = %d, %v", n, err)
	}
	pending, _ := repo.PendingFeedback(ctx, time.Now(), 10)
	if len(pending) != 3 {
		t.Fatalf("jobs should stay pending after one failure, got %d", len(pending))
	}

	proc.Sweep(ctx)
	pending, _ = repo.PendingFeedback(ctx, time.Now(), 10)
	if len(pending) != 0 {
		t.Fatalf("jobs should be failed after max attempts, %d pending", len(pending))
	}

	provider.err = nil
	provider.reply = "ok"
	job, _ := svc.RequestFeedback(ctx, a.ID, "d")
	n, err = proc.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	done, _ := repo.GetFeedback(ctx, job.ID)
	if done.Status != storage.FeedbackDone {
		t.Fatalf("unexpected job: %+v", done)
	}
}

func TestFeedbackProcessor_RunStopsOnCancel(t *testing.T) {
	repo := newRepo(t)
	proc := NewFeedbackProcessor(repo, &stubProvider{reply: "ok"}, FeedbackProcessorConfig{SweepInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
