package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
	"bookkeeper/internal/services"
	"bookkeeper/internal/sheets"
)

// fail logs err at a level matching its status and writes the JSON error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context())
	status := statusFor(err)
	fields := log.NewFields().WithOperation(op).WithError(err).ToSlice()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields...)
	}
	errorFor(err).Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// feedbackGate is implemented by stores that track which month last
// received the monthly review.
type feedbackGate interface {
	LastFeedbackPeriod(ctx context.Context) (core.Period, error)
}

// handleReady checks the database when a readiness checker is configured and
// reports the feedback gate state when the checker tracks it.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status, code := "ready", http.StatusOK

	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			checks["database"] = fmt.Sprintf("failed: %v", err)
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
		if g, ok := s.ready.(feedbackGate); ok {
			if last, err := g.LastFeedbackPeriod(ctx); err == nil && !last.IsZero() {
				checks["last_monthly_feedback"] = last.String()
			}
		}
	}

	NewResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", s.rateLimiter.totalHits())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.activeClients())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Requests matching scanner patterns\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.security.suspicious())

	if s.cacheStats != nil {
		st := s.cacheStats()
		fmt.Fprintf(w, "# HELP report_cache_entries Cached analyses\n")
		fmt.Fprintf(w, "# TYPE report_cache_entries gauge\n")
		fmt.Fprintf(w, "report_cache_entries %d\n\n", st.Size)
		fmt.Fprintf(w, "# HELP report_cache_hits_total Report cache hits\n")
		fmt.Fprintf(w, "# TYPE report_cache_hits_total counter\n")
		fmt.Fprintf(w, "report_cache_hits_total %d\n\n", st.Hits)
		fmt.Fprintf(w, "# HELP report_cache_misses_total Report cache misses\n")
		fmt.Fprintf(w, "# TYPE report_cache_misses_total counter\n")
		fmt.Fprintf(w, "report_cache_misses_total %d\n\n", st.Misses)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Process uptime\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

// handleCreateAnalysis accepts a ledger file and returns the stored analysis.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	household, err := ParseHousehold(r.URL.Query())
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}
	name, data, err := readUpload(r)
	if err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Ledger uploaded",
		log.NewFields().WithUpload(name, len(data)).ToSlice()...)

	a, err := s.svc.AnalyzeUpload(r.Context(), services.UploadRequest{
		Name:      name,
		Data:      data,
		Household: household,
	})
	if err != nil {
		s.fail(w, r, log.OpAnalyze, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/analyses/"+a.ID).
		JSON(a).
		Write(w)
}

type sheetRequest struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
	analysis.Household
}

func (s *Server) handleCreateSheetAnalysis(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}
	if req.Dependents < 0 || req.Children < 0 || req.Elderly < 0 {
		s.fail(w, r, log.OpParse, fmt.Errorf("%w: household counts must be non-negative", services.ErrInvalidRequest))
		return
	}

	ref := sheets.Ref{SpreadsheetID: sanitizeInput(req.SpreadsheetID), Range: sanitizeInput(req.Range)}
	a, err := s.svc.AnalyzeSheet(r.Context(), ref, req.Household)
	if err != nil {
		s.fail(w, r, log.OpAnalyze, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/analyses/"+a.ID).
		JSON(a).
		Write(w)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(a).Write(w)
}

// handleGetReport returns the plain-text report used as model input.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	a, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().Text(a.Text).Write(w)
}

type feedbackRequest struct {
	Question string `json:"question"`
}

// handleRequestFeedback queues a feedback job and returns it with the
// monthly gate decision in include_monthly.
func (s *Server) handleRequestFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpParse, err)
		return
	}
	job, err := s.svc.RequestFeedback(r.Context(), r.PathValue("id"), sanitizeInput(req.Question))
	if err != nil {
		s.fail(w, r, log.OpStore, err)
		return
	}
	NewResponse().
		Status(http.StatusAccepted).
		Header("Location", fmt.Sprintf("/api/feedback/%d", job.ID)).
		JSON(job).
		Write(w)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := parseFeedbackID(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	job, err := s.svc.GetFeedback(r.Context(), id)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(job).Write(w)
}
