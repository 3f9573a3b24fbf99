package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bookkeeper/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare lexically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; serializing on a single connection keeps
	// the feedback gate transaction free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveAnalysis inserts a. CreatedAt is set when zero.
func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, a *Analysis) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	statsJSON, err := json.Marshal(a.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	reportJSON, err := json.Marshal(a.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses (id, created_at, source_name, digest, coverage, stats_json, report_json, report_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UTC().Format(timeLayout), a.SourceName, a.Digest, string(a.Report.Coverage),
		string(statsJSON), string(reportJSON), a.Text)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	slog.DebugContext(ctx, "Analysis saved", "component", "storage", "analysis_id", a.ID, "coverage", a.Report.Coverage)
	return nil
}

const analysisColumns = `id, created_at, source_name, digest, stats_json, report_json, report_text`

// GetAnalysis loads an analysis by ID.
func (r *SQLiteRepository) GetAnalysis(ctx context.Context, id string) (*Analysis, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", id, err)
	}
	return a, nil
}

// FindAnalysisByDigest returns the most recent analysis of identical input.
func (r *SQLiteRepository) FindAnalysisByDigest(ctx context.Context, digest string) (*Analysis, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE digest = ? ORDER BY created_at DESC LIMIT 1`, digest)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, fmt.Errorf("find analysis by digest: %w", err)
	}
	return a, nil
}

func scanAnalysis(row *sql.Row) (*Analysis, error) {
	var (
		a                              Analysis
		created, statsJSON, reportJSON string
	)
	if err := row.Scan(&a.ID, &created, &a.SourceName, &a.Digest, &statsJSON, &reportJSON, &a.Text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &a.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if err := json.Unmarshal([]byte(reportJSON), &a.Report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &a, nil
}

// CreateFeedback records a pending job for analysisID. The gate decision and
// the feedback_state update happen in the same transaction as the insert, so
// concurrent requests in one month grant monthly feedback exactly once.
func (r *SQLiteRepository) CreateFeedback(ctx context.Context, analysisID, question string, current core.Period, gate GateFunc) (*FeedbackJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM analyses WHERE id = ?`, analysisID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check analysis: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("analysis %s: %w", analysisID, ErrNotFound)
	}

	var lastRaw string
	if err := tx.QueryRowContext(ctx, `SELECT last_period FROM feedback_state WHERE id = 1`).Scan(&lastRaw); err != nil {
		return nil, fmt.Errorf("read feedback state: %w", err)
	}
	last, err := core.ParsePeriod(lastRaw)
	if err != nil {
		return nil, fmt.Errorf("decode feedback state: %w", err)
	}

	include, next := gate(last, current)
	if next != last {
		if _, err := tx.ExecContext(ctx, `UPDATE feedback_state SET last_period = ? WHERE id = 1`, periodString(next)); err != nil {
			return nil, fmt.Errorf("update feedback state: %w", err)
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO feedback_jobs (analysis_id, question, period, include_monthly, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		analysisID, question, periodString(current), include, string(FeedbackPending),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert feedback job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("feedback job id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit feedback job: %w", err)
	}

	return &FeedbackJob{
		ID:             id,
		AnalysisID:     analysisID,
		Question:       question,
		Period:         current,
		IncludeMonthly: include,
		Status:         FeedbackPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

const feedbackColumns = `id, analysis_id, question, period, include_monthly, status, attempts, response, error, created_at, updated_at`

// GetFeedback loads a feedback job by ID.
func (r *SQLiteRepository) GetFeedback(ctx context.Context, id int64) (*FeedbackJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+feedbackColumns+` FROM feedback_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get feedback %d: %w", id, err)
	}
	jobs, err := scanFeedback(rows)
	if err != nil {
		return nil, fmt.Errorf("get feedback %d: %w", id, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}
	return &jobs[0], nil
}

// PendingFeedback returns up to limit pending jobs last touched before
// cutoff, oldest first.
func (r *SQLiteRepository) PendingFeedback(ctx context.Context, cutoff time.Time, limit int) ([]FeedbackJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback_jobs WHERE status = ? AND updated_at <= ? ORDER BY id LIMIT ?`,
		string(FeedbackPending), cutoff.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending feedback: %w", err)
	}
	jobs, err := scanFeedback(rows)
	if err != nil {
		return nil, fmt.Errorf("list pending feedback: %w", err)
	}
	return jobs, nil
}

func scanFeedback(rows *sql.Rows) ([]FeedbackJob, error) {
	defer rows.Close()
	var jobs []FeedbackJob
	for rows.Next() {
		var (
			j                FeedbackJob
			period, status   string
			created, updated string
		)
		if err := rows.Scan(&j.ID, &j.AnalysisID, &j.Question, &period, &j.IncludeMonthly, &status,
			&j.Attempts, &j.Response, &j.Error, &created, &updated); err != nil {
			return nil, err
		}
		var err error
		if j.Period, err = core.ParsePeriod(period); err != nil {
			return nil, err
		}
		j.Status = FeedbackStatus(status)
		if j.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, err
		}
		if j.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CompleteFeedback stores the model response and marks the job done.
func (r *SQLiteRepository) CompleteFeedback(ctx context.Context, id int64, response string) error {
	return r.finishFeedback(ctx, id, FeedbackDone, response, "")
}

// FailFeedback records a failure. The job stays pending until it has been
// attempted maxAttempts times, after which it is marked failed.
func (r *SQLiteRepository) FailFeedback(ctx context.Context, id int64, cause error, maxAttempts int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE feedback_jobs
		SET attempts = attempts + 1,
		    error = ?,
		    status = CASE WHEN attempts + 1 >= ? THEN ? ELSE status END,
		    updated_at = ?
		WHERE id = ? AND status = ?`,
		msg, maxAttempts, string(FeedbackFailed), time.Now().UTC().Format(timeLayout), id, string(FeedbackPending))
	if err != nil {
		return fmt.Errorf("mark feedback failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("feedback %d: %w", id, ErrNotFound)
	}

	slog.WarnContext(ctx, "Feedback attempt failed", "component", "storage", "feedback_id", id, "error", msg)
	return nil
}

func (r *SQLiteRepository) finishFeedback(ctx context.Context, id int64, status FeedbackStatus, response, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE feedback_jobs
		SET status = ?, response = ?, error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), response, errMsg, time.Now().UTC().Format(timeLayout), id, string(FeedbackPending))
	if err != nil {
		return fmt.Errorf("update feedback %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending feedback %d: %w", id, ErrNotFound)
	}

	slog.InfoContext(ctx, "Feedback job finished", "component", "storage", "feedback_id", id, "status", status)
	return nil
}

// LastFeedbackPeriod returns the last month that received monthly feedback,
// or the zero Period when none has.
func (r *SQLiteRepository) LastFeedbackPeriod(ctx context.Context) (core.Period, error) {
	var raw string
	if err := r.db.QueryRowContext(ctx, `SELECT last_period FROM feedback_state WHERE id = 1`).Scan(&raw); err != nil {
		return core.Period{}, fmt.Errorf("read feedback state: %w", err)
	}
	return core.ParsePeriod(raw)
}

func periodString(p core.Period) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}
