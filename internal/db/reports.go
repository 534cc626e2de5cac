package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// ReportSummary is the indexed part of a stored report.
type ReportSummary struct {
	ID        uuid.UUID `json:"id"`
	JobID     string    `json:"jobID"`
	TargetURL string    `json:"targetURL"`
	Aborted   bool      `json:"aborted"`
	ActCount  int       `json:"actCount"`
	Instances int       `json:"instances"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summarize derives the indexed columns of a report.
func Summarize(report *types.Report) ReportSummary {
	s := ReportSummary{
		JobID:     report.Job.ID,
		TargetURL: report.Job.Target.URL,
		Aborted:   report.JobData.Aborted,
		ActCount:  report.JobData.ActCount,
	}
	for _, act := range report.Acts {
		if test, ok := act.(*types.TestAct); ok && test.StandardResult != nil {
			s.Instances += len(test.StandardResult.Instances)
		}
	}
	return s
}

// SaveReport stores a report and returns its new ID
func (db *DB) SaveReport(ctx context.Context, report *types.Report) (uuid.UUID, error) {
	content, err := json.Marshal(report)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	id := uuid.New()
	s := Summarize(report)
	_, err = db.pool.Exec(ctx,
		`INSERT INTO reports (id, job_id, target_url, aborted, act_count, instances, content)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, s.JobID, s.TargetURL, s.Aborted, s.ActCount, s.Instances, content,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save report for job %s: %w", s.JobID, err)
	}
	return id, nil
}

// GetReport retrieves a report by ID. It returns nil when there is none.
func (db *DB) GetReport(ctx context.Context, id uuid.UUID) (*types.Report, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM reports WHERE id = $1`,
		id,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}

	var report types.Report
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return &report, nil
}

// ListReports lists the newest reports, optionally for one job ID.
func (db *DB) ListReports(ctx context.Context, jobID string, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job_id, target_url, aborted, act_count, instances, created_at FROM reports`
	args := []any{}
	if jobID != "" {
		query += ` WHERE job_id = $1`
		args = append(args, jobID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var summaries []ReportSummary
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.JobID, &s.TargetURL, &s.Aborted, &s.ActCount, &s.Instances, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return summaries, nil
}

// DeleteReport removes a report. It reports whether one existed.
func (db *DB) DeleteReport(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
