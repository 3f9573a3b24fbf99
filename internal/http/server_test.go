package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
	"bookkeeper/internal/sheets"
	"bookkeeper/internal/sheets/memory"
	"bookkeeper/internal/storage"
)

const sampleLedger = "2024-01-05|카드매출|1,000,000|매출\n" +
	"2024-01-06|밀가루|600,000|원재료비\n"

func quietLogger() *log.Logger {
	return log.New(log.Config{Format: "text", Output: io.Discard})
}

// newTestServer wires a real service over a temp SQLite file.
func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *storage.SQLiteRepository) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bookkeeper.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := memory.New()
	store.Put("sheet-1", [][]string{
		{"날짜", "내용", "금액", "분류"},
		{"2024-02-01", "카드매출", "2,000,000", "매출"},
		{"2024-02-03", "전단지", "300,000", "광고선전비"},
	})
	svc := services.NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()),
		services.WithSheets(store))

	opts = append([]ServerOption{WithLogger(quietLogger()), WithReadiness(repo)}, opts...)
	srv := NewServer(":0", svc, opts...)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv, repo
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get(log.RequestIDHeader) == "" {
			t.Fatalf("%s missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s missing security headers", path)
		}
	}

	body := decode[map[string]any](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/readyz", nil)))
	if checks, _ := body["checks"].(map[string]any); checks["last_monthly_feedback"] != nil {
		t.Fatalf("no feedback yet, checks = %v", checks)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func TestReadyReportsDatabaseFailure(t *testing.T) {
	srv, _ := newTestServer(t, WithReadiness(failingPinger{}))

	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["status"] != "not_ready" {
		t.Fatalf("body=%v", body)
	}
}

func TestCreateAnalysisRawUpload(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyses?name=2024.txt&dependents=1", strings.NewReader(sampleLedger))
	rr := do(t, srv, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	a := decode[storage.Analysis](t, rr)
	if a.ID == "" || rr.Header().Get("Location") != "/api/analyses/"+a.ID {
		t.Fatalf("id=%q location=%q", a.ID, rr.Header().Get("Location"))
	}
	if a.Report.Income != 1_000_000 || a.Report.Expense != 600_000 {
		t.Fatalf("report = %+v", a.Report)
	}
	if a.Report.Coverage != analysis.Partial || len(a.Report.Warnings) != 1 {
		t.Fatalf("coverage=%s warnings=%v", a.Report.Coverage, a.Report.Warnings)
	}

	got := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/analyses/"+a.ID, nil))
	if got.Code != http.StatusOK {
		t.Fatalf("get status=%d", got.Code)
	}

	report := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/analyses/"+a.ID+"/report", nil))
	if report.Code != http.StatusOK {
		t.Fatalf("report status=%d", report.Code)
	}
	if !strings.HasPrefix(report.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content type = %q", report.Header().Get("Content-Type"))
	}
	if !strings.Contains(report.Body.String(), "- 원재료비: 600,000원") {
		t.Fatalf("report text = %s", report.Body.String())
	}
}

func TestCreateAnalysisMultipart(t *testing.T) {
	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("ledger", "books.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(fw, "date,description,amount,category\n2024-03-01,매출,500000,매출\n")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := do(t, srv, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	a := decode[storage.Analysis](t, rr)
	if a.SourceName != "books.csv" || a.Report.Income != 500_000 {
		t.Fatalf("analysis = %+v", a)
	}
}

func TestCreateAnalysisErrors(t *testing.T) {
	srv, _ := newTestServer(t, WithMaxUploadBytes(64))

	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
		want        int
	}{
		{"unsupported format", "/api/analyses?name=books.xlsx", "", "2024-01-05|a|1|b\n", http.StatusUnsupportedMediaType},
		{"empty ledger", "/api/analyses?name=books.txt", "", "only|three|fields\n", http.StatusUnprocessableEntity},
		{"missing name", "/api/analyses", "", "x", http.StatusBadRequest},
		{"bad household", "/api/analyses?name=a.txt&children=-1", "", "x", http.StatusBadRequest},
		{"too large", "/api/analyses?name=a.txt", "", strings.Repeat("x", 200), http.StatusRequestEntityTooLarge},
		{"multipart without field", "/api/analyses", "multipart/form-data; boundary=xyz", "--xyz--\r\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := do(t, srv, req)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			body := decode[map[string]string](t, rr)
			if body["error"] == "" {
				t.Fatalf("missing error message: %s", rr.Body.String())
			}
		})
	}
}

func TestCreateSheetAnalysis(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyses/sheets",
		strings.NewReader(`{"spreadsheet_id":"sheet-1","children":1}`))
	rr := do(t, srv, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	a := decode[storage.Analysis](t, rr)
	if a.SourceName != "sheets:sheet-1!"+sheets.DefaultRange {
		t.Fatalf("source = %q", a.SourceName)
	}
	if a.Report.Income != 2_000_000 || len(a.Report.Warnings) != 1 {
		t.Fatalf("report = %+v", a.Report)
	}

	for body, want := range map[string]int{
		`{"spreadsheet_id":""}`:                     http.StatusBadRequest,
		`{"spreadsheet_id":"sheet-1","elderly":-2}`: http.StatusBadRequest,
		`not json`:                                  http.StatusBadRequest,
	} {
		rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/analyses/sheets", strings.NewReader(body)))
		if rr.Code != want {
			t.Fatalf("%s: status=%d want %d", body, rr.Code, want)
		}
	}
}

func TestSheetsDisabled(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "bookkeeper.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer repo.Close()
	svc := services.NewAnalysisService(repo, analysis.NewAnalyzer(analysis.DefaultRules()))
	srv := NewServer(":0", svc, WithLogger(quietLogger()))
	defer srv.rateLimiter.stop()

	rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/analyses/sheets",
		strings.NewReader(`{"spreadsheet_id":"x"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestFeedbackFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/analyses?name=a.txt", strings.NewReader(sampleLedger)))
	a := decode[storage.Analysis](t, rr)

	ask := func(question string) *httptest.ResponseRecorder {
		body := `{"question":` + strconvQuote(question) + `}`
		return do(t, srv, httptest.NewRequest(http.MethodPost, "/api/analyses/"+a.ID+"/feedback", strings.NewReader(body)))
	}

	first := ask("절세 방법이 있을까요?")
	if first.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", first.Code, first.Body.String())
	}
	job := decode[storage.FeedbackJob](t, first)
	if !job.IncludeMonthly || job.Status != storage.FeedbackPending {
		t.Fatalf("job = %+v", job)
	}

	second := decode[storage.FeedbackJob](t, ask("다시 질문합니다"))
	if second.IncludeMonthly {
		t.Fatal("second request in the same month must not include monthly feedback")
	}

	got := do(t, srv, httptest.NewRequest(http.MethodGet, first.Header().Get("Location"), nil))
	if got.Code != http.StatusOK {
		t.Fatalf("get feedback status=%d", got.Code)
	}
	if fetched := decode[storage.FeedbackJob](t, got); fetched.ID != job.ID {
		t.Fatalf("fetched %+v", fetched)
	}

	if rr := ask("   "); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank question status=%d", rr.Code)
	}

	ready := decode[struct {
		Checks map[string]string `json:"checks"`
	}](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/readyz", nil)))
	if want := core.PeriodOf(time.Now()).String(); ready.Checks["last_monthly_feedback"] != want {
		t.Fatalf("readyz checks = %v, want last_monthly_feedback %s", ready.Checks, want)
	}
}

func TestNotFoundAndBadIDs(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/api/analyses/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/analyses/missing/report", "", http.StatusNotFound},
		{http.MethodPost, "/api/analyses/missing/feedback", `{"question":"q"}`, http.StatusNotFound},
		{http.MethodGet, "/api/feedback/999", "", http.StatusNotFound},
		{http.MethodGet, "/api/feedback/abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/feedback/0", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := do(t, srv, httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body)))
		if rr.Code != tt.want {
			t.Errorf("%s %s: status=%d want %d", tt.method, tt.target, rr.Code, tt.want)
		}
	}
}

type brokenAPI struct{}

func (brokenAPI) AnalyzeUpload(context.Context, services.UploadRequest) (*storage.Analysis, error) {
	return nil, errors.New("disk full at /var/lib/secret")
}
func (brokenAPI) AnalyzeSheet(context.Context, sheets.Ref, analysis.Household) (*storage.Analysis, error) {
	return nil, errors.New("boom")
}
func (brokenAPI) Get(context.Context, string) (*storage.Analysis, error) { return nil, errors.New("boom") }
func (brokenAPI) RequestFeedback(context.Context, string, string) (*storage.FeedbackJob, error) {
	return nil, errors.New("boom")
}
func (brokenAPI) GetFeedback(context.Context, int64) (*storage.FeedbackJob, error) {
	return nil, errors.New("boom")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	srv := NewServer(":0", brokenAPI{}, WithLogger(quietLogger()))
	defer srv.rateLimiter.stop()

	rr := do(t, srv, httptest.NewRequest(http.MethodPost, "/api/analyses?name=a.txt", strings.NewReader(sampleLedger)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Fatalf("internal error leaked: %s", rr.Body.String())
	}
}

func TestRateLimitAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimit(2))

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/analyses/x", nil)); rr.Code != http.StatusNotFound {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/analyses/x", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("status=%d retry=%q", rr.Code, rr.Header().Get("Retry-After"))
	}

	// Health checks bypass the limiter; /metrics does not, so use a new client.
	if rr := do(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	metrics := do(t, srv, req)
	if !strings.Contains(metrics.Body.String(), "rate_limit_hits_total 1") {
		t.Fatalf("metrics = %s", metrics.Body.String())
	}
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
