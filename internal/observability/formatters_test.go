package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/a11y-auditor/internal/types"
)

func TestPrintJobSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	report := &types.Report{
		Job: types.Job{
			ID:     "250101T1200-a-home",
			Target: types.Target{URL: "https://example.com/"},
			Acts:   types.Acts{&types.LaunchAct{}, &types.URLAct{}},
		},
		JobData: types.JobData{
			ActCount:            2,
			ElapsedSeconds:      3,
			VisitRejectionCount: 1,
		},
	}

	p.PrintJobSummary(report)
	output := buf.String()

	assert.Contains(t, output, "JOB COMPLETED")
	assert.Contains(t, output, "250101T1200-a-home")
	assert.Contains(t, output, "https://example.com/")
	assert.Contains(t, output, "2 of 2 run")
	assert.Contains(t, output, "Visit rejections: 1")
	assert.NotContains(t, output, "Aborted")
}

func TestPrintJobSummary_Aborted(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	report := &types.Report{Job: types.Job{ID: "j"}}
	report.Abort(4, "visit to https://example.com/ returned status 404")

	p.PrintJobSummary(report)
	output := buf.String()

	assert.Contains(t, output, "JOB ABORTED")
	assert.Contains(t, output, "act 4")
	assert.Contains(t, output, "returned status 404")
}

func TestPrintJobSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintJobSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintFindings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var instances []types.StandardInstance
	for i := 0; i < 3; i++ {
		instances = append(instances, types.StandardInstance{RuleID: "image-alt", OrdinalSeverity: 3})
	}
	for i := 0; i < 7; i++ {
		instances = append(instances, types.StandardInstance{RuleID: fmt.Sprintf("rule-%d", i)})
	}
	instances = append(instances, types.StandardInstance{RuleID: "hr", Count: 5})

	axe := &types.TestAct{ActBase: types.ActBase{Type: types.ActTest, StartTime: 1}, Which: "axe",
		StandardResult: &types.StandardResult{Totals: [4]int{7, 0, 0, 3}, Instances: instances}}
	wave := &types.TestAct{ActBase: types.ActBase{Type: types.ActTest, StartTime: 2}, Which: "wave",
		StandardResult: &types.StandardResult{Prevented: true}}
	skipped := &types.TestAct{ActBase: types.ActBase{Type: types.ActTest}, Which: "ibm"}

	p.PrintFindings(&types.Report{Job: types.Job{Acts: types.Acts{axe, wave, skipped}}})
	output := buf.String()

	assert.Contains(t, output, "FINDINGS")
	assert.Contains(t, output, "axe: 11 instances")
	assert.Contains(t, output, "• hr (5)")
	assert.Contains(t, output, "• image-alt (3)")
	assert.Less(t, strings.Index(output, "hr (5)"), strings.Index(output, "image-alt (3)"))
	assert.Contains(t, output, "... and 4 more rules")
	assert.Contains(t, output, "wave: prevented")
	assert.NotContains(t, output, "ibm")
}

func TestPrintFindings_NoTests(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintFindings(&types.Report{Job: types.Job{Acts: types.Acts{&types.LaunchAct{}}}})
	assert.Contains(t, buf.String(), "No tests were run")
}

func TestPrintBox_ClipsLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("é", 200))

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)))
	}
	assert.Contains(t, buf.String(), "...")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProgress(0, types.ActLaunch, false, "chromium")
	p.PrintProgress(1, types.ActURL, true, "failed to visit")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "✓"))
	assert.Contains(t, lines[0], "launch")
	assert.True(t, strings.HasPrefix(lines[1], "✗"))
	assert.Contains(t, lines[1], "failed to visit")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"", "", false},
		{"debug", "console", false},
		{"WARN", "json", false},
		{"verbose", "json", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}

	log, err := NewLogger("error", "json")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(-1))
}
