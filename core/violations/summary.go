package violations

// Summary aggregates a scan's violations for the ScanResult payload.
type Summary struct {
	TotalViolations   int            `json:"total_violations"`
	BySeverity        map[string]int `json:"by_severity"`
	ByCategory        map[string]int `json:"by_category"`
	CopilotViolations int            `json:"copilot_violations"`
	FilesAffected     int            `json:"files_affected"`
}

// Summarize computes summary statistics over the final violation list.
// BySeverity always carries all four severity buckets so clients can rely on
// the keys being present.
func Summarize(vv []Violation) Summary {
	s := Summary{
		TotalViolations: len(vv),
		BySeverity: map[string]int{
			string(SeverityCritical): 0,
			string(SeverityHigh):     0,
			string(SeverityMedium):   0,
			string(SeverityLow):      0,
		},
		ByCategory: make(map[string]int),
	}

	files := make(map[string]struct{})
	for _, v := range vv {
		if _, ok := severityRank[v.Severity]; ok {
			s.BySeverity[string(v.Severity)]++
		}
		s.ByCategory[string(v.Category)]++
		if v.IsCopilotGenerated {
			s.CopilotViolations++
		}
		files[v.FilePath] = struct{}{}
	}
	s.FilesAffected = len(files)
	return s
}
