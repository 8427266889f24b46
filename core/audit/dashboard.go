package audit

import (
	"time"
)

// Stats summarises scan activity for the dashboard.
type Stats struct {
	TotalScans               int            `json:"total_scans"`
	TotalViolations          int            `json:"total_violations"`
	AverageViolationsPerScan float64        `json:"average_violations_per_scan"`
	EnforcementDistribution  map[string]int `json:"enforcement_distribution"`
	ResolvedCount            int            `json:"resolved_count"`
	UnresolvedCount          int            `json:"unresolved_count"`
}

// Stats aggregates matching audit entries.
func (l *Logger) Stats(q Query) Stats {
	q.Limit = exportLimit
	logs := l.Logs(q)

	s := Stats{
		TotalScans:              len(logs),
		EnforcementDistribution: make(map[string]int),
	}
	for _, e := range logs {
		s.TotalViolations += e.ViolationsCount
		s.EnforcementDistribution[string(e.EnforcementAction)]++
		if e.Resolved {
			s.ResolvedCount++
		} else {
			s.UnresolvedCount++
		}
	}
	if s.TotalScans > 0 {
		s.AverageViolationsPerScan = float64(s.TotalViolations) / float64(s.TotalScans)
	}
	return s
}

// DailyTrend is one day's scan and violation counts.
type DailyTrend struct {
	Date       string `json:"date"`
	Scans      int    `json:"scans"`
	Violations int    `json:"violations"`
}

// Trends holds per-day violation counts over a period.
type Trends struct {
	PeriodDays  int          `json:"period_days"`
	DailyTrends []DailyTrend `json:"daily_trends"`
}

// ViolationTrends groups recent scans by calendar day.
func (l *Logger) ViolationTrends(repository string, days int) Trends {
	if days <= 0 {
		days = 30
	}
	end := time.Now().UTC()
	logs := l.Logs(Query{
		Repository: repository,
		StartDate:  end.AddDate(0, 0, -days),
		EndDate:    end,
		Limit:      exportLimit,
	})

	byDay := make(map[string]*DailyTrend)
	var order []string
	for _, e := range logs {
		key := e.Timestamp.UTC().Format("2006-01-02")
		d, ok := byDay[key]
		if !ok {
			d = &DailyTrend{Date: key}
			byDay[key] = d
			order = append(order, key)
		}
		d.Scans++
		d.Violations += e.ViolationsCount
	}

	out := Trends{PeriodDays: days, DailyTrends: make([]DailyTrend, 0, len(order))}
	for _, key := range order {
		out.DailyTrends = append(out.DailyTrends, *byDay[key])
	}
	return out
}

// CopilotInsights compares scans where AI-generated code was detected against
// the overall population.
type CopilotInsights struct {
	CopilotScansCount     int     `json:"copilot_scans_count"`
	TotalScansCount       int     `json:"total_scans_count"`
	CopilotScanPercentage float64 `json:"copilot_scan_percentage"`
	CopilotViolations     int     `json:"copilot_violations"`
	TotalViolations       int     `json:"total_violations"`
	CopilotViolationRate  float64 `json:"copilot_violation_rate"`
	AverageViolationRate  float64 `json:"average_violation_rate"`
}

// Insights aggregates Copilot-related metrics across matching entries.
func (l *Logger) Insights(repository string) CopilotInsights {
	logs := l.Logs(Query{Repository: repository, Limit: exportLimit})

	var ins CopilotInsights
	ins.TotalScansCount = len(logs)
	for _, e := range logs {
		ins.TotalViolations += e.ViolationsCount
		if e.Details.CopilotDetected {
			ins.CopilotScansCount++
			ins.CopilotViolations += e.ViolationsCount
		}
	}
	if ins.TotalScansCount > 0 {
		ins.CopilotScanPercentage = float64(ins.CopilotScansCount) / float64(ins.TotalScansCount) * 100
		ins.AverageViolationRate = float64(ins.TotalViolations) / float64(ins.TotalScansCount)
	}
	if ins.CopilotScansCount > 0 {
		ins.CopilotViolationRate = float64(ins.CopilotViolations) / float64(ins.CopilotScansCount)
	}
	return ins
}
