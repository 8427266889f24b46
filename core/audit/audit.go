// Package audit records scan events for compliance review. Entries hold scan
// metadata only; file content never enters an audit record regardless of the
// retention setting.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/violations"
)

// Entry is one audit record.
type Entry struct {
	LogID             string                     `json:"log_id"`
	Timestamp         time.Time                  `json:"timestamp"`
	Repository        string                     `json:"repository"`
	Action            string                     `json:"action"`
	User              string                     `json:"user,omitempty"`
	Details           Details                    `json:"details"`
	ViolationsCount   int                        `json:"violations_count"`
	EnforcementAction violations.EnforcementMode `json:"enforcement_action"`
	Resolved          bool                       `json:"resolved"`
}

// Details carries scan metadata attached to an entry.
type Details struct {
	ScanID          string `json:"scan_id"`
	PullRequest     int    `json:"pull_request,omitempty"`
	CommitSHA       string `json:"commit_sha,omitempty"`
	FilesScanned    int    `json:"files_scanned"`
	CopilotDetected bool   `json:"copilot_detected"`
}

// Query filters log retrieval. Zero values mean "no constraint"; Limit
// defaults to 100.
type Query struct {
	Repository string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}

// exportLimit caps how many entries an export includes.
const exportLimit = 10000

// Logger appends audit entries to a JSON-lines file and keeps them in memory
// for querying. Safe for concurrent use.
type Logger struct {
	path string

	mu      sync.RWMutex
	entries []Entry
}

// NewLogger creates a Logger persisting to path. An empty path disables
// persistence; entries are still queryable in memory.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// LogScan records a completed scan. Failures to persist are logged, never
// propagated: auditing must not fail a scan.
func (l *Logger) LogScan(result *core.ScanResult, req core.ScanRequest) {
	entry := Entry{
		LogID:      uuid.NewString(),
		Timestamp:  result.Timestamp,
		Repository: result.Repository,
		Action:     "scan",
		Details: Details{
			ScanID:          result.ScanID,
			PullRequest:     req.PullRequestNumber,
			CommitSHA:       req.CommitSHA,
			FilesScanned:    len(req.Files),
			CopilotDetected: result.CopilotDetected,
		},
		ViolationsCount:   len(result.Violations),
		EnforcementAction: result.EnforcementAction,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.path != "" {
		if err := l.appendToFile(entry); err != nil {
			slog.Error("failed to persist audit entry", "log_id", entry.LogID, "error", err)
		}
	}
	slog.Info("audit log created", "log_id", entry.LogID, "scan_id", result.ScanID)
}

func (l *Logger) appendToFile(entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Logs returns entries matching the query, newest first.
func (l *Logger) Logs(q Query) []Entry {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	l.mu.RLock()
	matched := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if q.Repository != "" && e.Repository != q.Repository {
			continue
		}
		if !q.StartDate.IsZero() && e.Timestamp.Before(q.StartDate) {
			continue
		}
		if !q.EndDate.IsZero() && e.Timestamp.After(q.EndDate) {
			continue
		}
		matched = append(matched, e)
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// Export is the payload of an audit log export.
type Export struct {
	Format  string  `json:"format"`
	Count   int     `json:"count"`
	Logs    []Entry `json:"logs,omitempty"`
	Content string  `json:"content,omitempty"`
}

// ExportLogs renders matching entries as "json" or "csv".
func (l *Logger) ExportLogs(q Query, format string) (*Export, error) {
	q.Limit = exportLimit
	logs := l.Logs(q)

	switch format {
	case "json":
		return &Export{Format: "json", Count: len(logs), Logs: logs}, nil
	case "csv":
		lines := []string{"log_id,timestamp,repository,action,violations_count,enforcement_action,resolved"}
		for _, e := range logs {
			lines = append(lines, fmt.Sprintf("%s,%s,%s,%s,%d,%s,%t",
				e.LogID, e.Timestamp.Format(time.RFC3339), e.Repository,
				e.Action, e.ViolationsCount, e.EnforcementAction, e.Resolved))
		}
		return &Export{Format: "csv", Count: len(logs), Content: strings.Join(lines, "\n")}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
