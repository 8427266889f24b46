package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/violations"
)

func logScan(l *Logger, repo string, ts time.Time, count int, action violations.EnforcementMode, copilot bool) {
	result := &core.ScanResult{
		ScanID:            "scan-" + repo,
		Repository:        repo,
		Timestamp:         ts,
		Violations:        make([]violations.Violation, count),
		EnforcementAction: action,
		CopilotDetected:   copilot,
	}
	req := core.ScanRequest{
		Repository:        repo,
		PullRequestNumber: 42,
		Files:             []core.FileInput{{Path: "a.py"}},
	}
	l.LogScan(result, req)
}

func TestLogScanPersistsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit_logs.json")
	l := NewLogger(path)

	now := time.Now().UTC()
	logScan(l, "acme/api", now, 3, violations.EnforcementWarning, true)
	logScan(l, "acme/web", now, 0, violations.EnforcementAdvisory, false)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if e.Repository != "acme/api" || e.Action != "scan" || e.ViolationsCount != 3 {
		t.Errorf("entry = %+v", e)
	}
	if e.LogID == "" || e.Details.ScanID != "scan-acme/api" || e.Details.PullRequest != 42 {
		t.Errorf("details = %+v", e.Details)
	}
	if !e.Details.CopilotDetected || e.Details.FilesScanned != 1 {
		t.Errorf("details = %+v", e.Details)
	}
}

func TestLogsFilteringAndOrder(t *testing.T) {
	l := NewLogger("")
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	logScan(l, "acme/api", base, 1, violations.EnforcementWarning, false)
	logScan(l, "acme/api", base.Add(48*time.Hour), 2, violations.EnforcementBlocking, false)
	logScan(l, "acme/web", base.Add(24*time.Hour), 5, violations.EnforcementAdvisory, false)

	t.Run("newest first", func(t *testing.T) {
		got := l.Logs(Query{})
		if len(got) != 3 {
			t.Fatalf("entries = %d, want 3", len(got))
		}
		if !got[0].Timestamp.After(got[1].Timestamp) || !got[1].Timestamp.After(got[2].Timestamp) {
			t.Error("entries not sorted newest first")
		}
	})

	t.Run("repository filter", func(t *testing.T) {
		got := l.Logs(Query{Repository: "acme/api"})
		if len(got) != 2 {
			t.Fatalf("entries = %d, want 2", len(got))
		}
		for _, e := range got {
			if e.Repository != "acme/api" {
				t.Errorf("unexpected repository %s", e.Repository)
			}
		}
	})

	t.Run("date window", func(t *testing.T) {
		got := l.Logs(Query{
			StartDate: base.Add(12 * time.Hour),
			EndDate:   base.Add(36 * time.Hour),
		})
		if len(got) != 1 || got[0].Repository != "acme/web" {
			t.Errorf("entries = %+v", got)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got := l.Logs(Query{Limit: 1})
		if len(got) != 1 {
			t.Fatalf("entries = %d, want 1", len(got))
		}
		if got[0].ViolationsCount != 2 {
			t.Error("limit should keep the newest entry")
		}
	})
}

func TestExportLogs(t *testing.T) {
	l := NewLogger("")
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	logScan(l, "acme/api", base, 2, violations.EnforcementWarning, false)
	logScan(l, "acme/api", base.Add(time.Hour), 0, violations.EnforcementAdvisory, false)

	t.Run("json", func(t *testing.T) {
		exp, err := l.ExportLogs(Query{}, "json")
		if err != nil {
			t.Fatalf("ExportLogs: %v", err)
		}
		if exp.Format != "json" || exp.Count != 2 || len(exp.Logs) != 2 {
			t.Errorf("export = %+v", exp)
		}
	})

	t.Run("csv", func(t *testing.T) {
		exp, err := l.ExportLogs(Query{}, "csv")
		if err != nil {
			t.Fatalf("ExportLogs: %v", err)
		}
		lines := strings.Split(exp.Content, "\n")
		if len(lines) != 3 {
			t.Fatalf("csv lines = %d, want header plus 2 rows", len(lines))
		}
		if !strings.HasPrefix(lines[0], "log_id,timestamp,repository") {
			t.Errorf("header = %q", lines[0])
		}
		if !strings.Contains(lines[1], "acme/api") {
			t.Errorf("row = %q", lines[1])
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, err := l.ExportLogs(Query{}, "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}

func TestStats(t *testing.T) {
	l := NewLogger("")
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	logScan(l, "acme/api", base, 4, violations.EnforcementWarning, false)
	logScan(l, "acme/api", base.Add(time.Hour), 2, violations.EnforcementBlocking, false)
	logScan(l, "acme/web", base.Add(2*time.Hour), 0, violations.EnforcementAdvisory, false)

	s := l.Stats(Query{})
	if s.TotalScans != 3 || s.TotalViolations != 6 {
		t.Errorf("stats = %+v", s)
	}
	if s.AverageViolationsPerScan != 2.0 {
		t.Errorf("average = %v, want 2.0", s.AverageViolationsPerScan)
	}
	if s.EnforcementDistribution["warning"] != 1 || s.EnforcementDistribution["blocking"] != 1 {
		t.Errorf("distribution = %v", s.EnforcementDistribution)
	}
	if s.ResolvedCount != 0 || s.UnresolvedCount != 3 {
		t.Errorf("resolved split = %d/%d", s.ResolvedCount, s.UnresolvedCount)
	}

	scoped := l.Stats(Query{Repository: "acme/web"})
	if scoped.TotalScans != 1 || scoped.TotalViolations != 0 {
		t.Errorf("scoped stats = %+v", scoped)
	}
}

func TestViolationTrends(t *testing.T) {
	l := NewLogger("")
	now := time.Now().UTC()

	inWindow := []struct {
		ts    time.Time
		count int
	}{
		{now.Add(-2 * time.Hour), 3},
		{now.Add(-time.Hour), 1},
		{now.AddDate(0, 0, -1), 5},
	}
	for _, e := range inWindow {
		logScan(l, "acme/api", e.ts, e.count, violations.EnforcementWarning, false)
	}
	// Outside the window.
	logScan(l, "acme/api", now.AddDate(0, 0, -10), 9, violations.EnforcementWarning, false)

	wantDays := make(map[string]DailyTrend)
	for _, e := range inWindow {
		key := e.ts.Format("2006-01-02")
		d := wantDays[key]
		d.Date = key
		d.Scans++
		d.Violations += e.count
		wantDays[key] = d
	}

	tr := l.ViolationTrends("acme/api", 7)
	if tr.PeriodDays != 7 {
		t.Errorf("period = %d, want 7", tr.PeriodDays)
	}
	if len(tr.DailyTrends) != len(wantDays) {
		t.Fatalf("days = %d, want %d: %+v", len(tr.DailyTrends), len(wantDays), tr.DailyTrends)
	}
	for _, d := range tr.DailyTrends {
		if d != wantDays[d.Date] {
			t.Errorf("day %s = %+v, want %+v", d.Date, d, wantDays[d.Date])
		}
	}
}

func TestInsights(t *testing.T) {
	l := NewLogger("")
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	logScan(l, "acme/api", base, 6, violations.EnforcementWarning, true)
	logScan(l, "acme/api", base.Add(time.Hour), 2, violations.EnforcementAdvisory, false)

	ins := l.Insights("acme/api")
	if ins.TotalScansCount != 2 || ins.CopilotScansCount != 1 {
		t.Errorf("counts = %+v", ins)
	}
	if ins.CopilotScanPercentage != 50.0 {
		t.Errorf("percentage = %v, want 50", ins.CopilotScanPercentage)
	}
	if ins.CopilotViolations != 6 || ins.TotalViolations != 8 {
		t.Errorf("violations = %+v", ins)
	}
	if ins.CopilotViolationRate != 6.0 || ins.AverageViolationRate != 4.0 {
		t.Errorf("rates = %+v", ins)
	}

	empty := l.Insights("acme/none")
	if empty.TotalScansCount != 0 || empty.CopilotScanPercentage != 0 {
		t.Errorf("empty insights = %+v", empty)
	}
}
