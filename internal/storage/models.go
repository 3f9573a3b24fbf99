package storage

import (
	"errors"
	"time"

	"bookkeeper/internal/analysis"
	"bookkeeper/internal/core"
	"bookkeeper/internal/ledger"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Analysis is a persisted ledger report.
type Analysis struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	SourceName string          `json:"source_name"`
	Digest     string          `json:"-"`
	Stats      ledger.Stats    `json:"stats"`
	Report     analysis.Report `json:"report"`
	Text       string          `json:"-"`
}

// FeedbackStatus is the lifecycle state of a feedback job.
type FeedbackStatus string

const (
	FeedbackPending FeedbackStatus = "pending"
	FeedbackDone    FeedbackStatus = "done"
	FeedbackFailed  FeedbackStatus = "failed"
)

// FeedbackJob is one request for LLM feedback on an analysis.
type FeedbackJob struct {
	ID             int64          `json:"id"`
	AnalysisID     string         `json:"analysis_id"`
	Question       string         `json:"question"`
	Period         core.Period    `json:"-"`
	IncludeMonthly bool           `json:"include_monthly"`
	Status         FeedbackStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	Response       string         `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// GateFunc decides whether a job created in current includes monthly
// feedback, given the last period that did. It returns the period to record.
type GateFunc func(last, current core.Period) (include bool, next core.Period)
