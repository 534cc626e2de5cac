// Package observability provides the engine's logger and formatted output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/a11y-auditor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, clip(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to at most n runes, marking the cut.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// PrintJobSummary outputs the job-level outcome of a report.
func (p *Printer) PrintJobSummary(report *types.Report) {
	if report == nil {
		return
	}
	data := report.JobData

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:      %s\n", report.Job.ID))
	if report.Job.Target.URL != "" {
		sb.WriteString(fmt.Sprintf("Target:   %s\n", report.Job.Target.URL))
	}
	sb.WriteString(fmt.Sprintf("Acts:     %d of %d run\n", data.ActCount, len(report.Acts)))
	sb.WriteString(fmt.Sprintf("Elapsed:  %ds\n", data.ElapsedSeconds))
	if data.Aborted {
		at := -1
		if data.AbortedAct != nil {
			at = *data.AbortedAct
		}
		sb.WriteString(fmt.Sprintf("Aborted:  act %d\n", at))
		sb.WriteString(fmt.Sprintf("  %s\n", data.AbortError))
	}
	if data.VisitRejectionCount > 0 {
		sb.WriteString(fmt.Sprintf("Visit rejections: %d\n", data.VisitRejectionCount))
	}
	if data.ErrorLogCount > 0 {
		sb.WriteString(fmt.Sprintf("Console errors:   %d\n", data.ErrorLogCount))
	}

	title := "JOB COMPLETED"
	if data.Aborted {
		title = "JOB ABORTED"
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintFindings outputs the standardized findings of every test act, with
// the most frequent rules per tool.
func (p *Printer) PrintFindings(report *types.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	tests := 0
	for _, act := range report.Acts {
		test, ok := act.(*types.TestAct)
		if !ok || test.StartTime == 0 {
			continue
		}
		if tests > 0 {
			sb.WriteString("\n")
		}
		tests++

		std := test.StandardResult
		switch {
		case std == nil:
			sb.WriteString(fmt.Sprintf("%s: not standardized\n", test.Which))
			continue
		case std.Prevented:
			sb.WriteString(fmt.Sprintf("%s: prevented\n", test.Which))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %d instances, totals %v\n", test.Which, len(std.Instances), std.Totals))

		counts := make(map[string]int)
		for _, inst := range std.Instances {
			n := inst.Count
			if n == 0 {
				n = 1
			}
			counts[inst.RuleID] += n
		}
		rules := make([]string, 0, len(counts))
		for rule := range counts {
			rules = append(rules, rule)
		}
		sort.Slice(rules, func(i, j int) bool {
			if counts[rules[i]] != counts[rules[j]] {
				return counts[rules[i]] > counts[rules[j]]
			}
			return rules[i] < rules[j]
		})
		count := min(len(rules), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s (%d)\n", rules[i], counts[rules[i]]))
		}
		if len(rules) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more rules\n", len(rules)-maxItemsToShow))
		}
	}

	if tests == 0 {
		p.printBox("FINDINGS", "No tests were run")
		return
	}
	p.printBox("FINDINGS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProgress outputs one line for an executed act.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(index int, actType types.ActType, aborted bool, detail string) {
	mark := "✓"
	if aborted {
		mark = "✗"
	}
	line := fmt.Sprintf("%s %3d %-8s", mark, index, actType)
	if detail != "" {
		line += " " + detail
	}
	fmt.Fprintln(p.out, clip(line, boxWidth*2))
}
