package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/a11y-auditor/internal/db"
	"github.com/jonathan/a11y-auditor/internal/fetch"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Store persists a report and returns where it went.
type Store interface {
	Save(ctx context.Context, report *types.Report) (string, error)
}

// FileStore writes each report as <job id>.json into Dir.
type FileStore struct {
	Dir string
}

// Save writes the report, replacing an earlier report of the same job.
func (s *FileStore) Save(_ context.Context, report *types.Report) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	path := filepath.Join(s.Dir, reportFileName(report.Job.ID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// reportFileName keeps job IDs from escaping the report directory.
func reportFileName(jobID string) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, jobID)
	if name == "" || name == "." || name == ".." {
		name = "report"
	}
	return name + ".json"
}

// HTTPStore posts reports as JSON to URL.
type HTTPStore struct {
	URL     string
	Options *fetch.Options
}

// Save posts the report. Any non-2xx answer is a failure.
func (s *HTTPStore) Save(ctx context.Context, report *types.Report) (string, error) {
	if _, err := fetch.PostJSON(ctx, s.URL, report, s.Options); err != nil {
		return "", err
	}
	return s.URL, nil
}

// ReportSaver persists reports under generated IDs. *db.DB implements it.
type ReportSaver interface {
	SaveReport(ctx context.Context, report *types.Report) (uuid.UUID, error)
}

var _ ReportSaver = (*db.DB)(nil)

// DBStore saves reports in PostgreSQL.
type DBStore struct {
	DB ReportSaver
}

// Save inserts the report and returns its ID.
func (s *DBStore) Save(ctx context.Context, report *types.Report) (string, error) {
	id, err := s.DB.SaveReport(ctx, report)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MultiStore saves to every store in order and reports the first location.
// It stops at the first failure.
type MultiStore []Store

func (m MultiStore) Save(ctx context.Context, report *types.Report) (string, error) {
	first := ""
	for i, s := range m {
		location, err := s.Save(ctx, report)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = location
		}
	}
	return first, nil
}
