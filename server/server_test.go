package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/audit"
	"github.com/guardrail-hq/guardrail/core/policy"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	policies, err := policy.NewEngine(t.TempDir())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	scanner := core.NewScanner(policies)
	return New(scanner, policies, audit.NewLogger(""), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("body = %v", resp)
	}
}

func TestScanEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan/", map[string]any{
		"repository": "https://github.com/acme/api.git",
		"files": []map[string]any{
			{"path": "settings.py", "content": "password = \"hunter2\"\n"},
		},
		"policy_config": map[string]any{"enabled_rules": []string{"SEC002"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result core.ScanResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Repository != "acme/api" {
		t.Errorf("repository = %q, want normalized acme/api", result.Repository)
	}
	if len(result.Violations) != 1 || result.Violations[0].RuleID != "SEC002" {
		t.Errorf("violations = %+v", result.Violations)
	}

	// The scan is audited.
	logs := s.audits.Logs(audit.Query{Repository: "acme/api"})
	if len(logs) != 1 || logs[0].ViolationsCount != 1 {
		t.Errorf("audit entries = %+v", logs)
	}
}

func TestScanEndpointValidation(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing repository", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan/", map[string]any{
			"files": []map[string]any{{"path": "a.py", "content": "x = 1\n"}},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "detail") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("bad policy override", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan/", map[string]any{
			"repository":    "acme/api",
			"files":         []map[string]any{},
			"policy_config": map[string]any{"severity_threshold": "extreme"},
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestScanStubsNotImplemented(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{
		"/api/v1/scan/pr/acme/api/7",
		"/api/v1/scan/commit/acme/api/abc123",
	} {
		rec := doJSON(t, s.Handler(), http.MethodPost, path, nil)
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("%s status = %d, want 501", path, rec.Code)
		}
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"enforcement_mode":        "blocking",
		"severity_threshold":      "high",
		"disabled_rules":          []string{"STD001"},
		"allow_blocking_override": false,
	}
	rec := doJSON(t, s.Handler(), http.MethodPut, "/api/v1/policies/acme/api", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/acme/api", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var cfg policy.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if string(cfg.EnforcementMode) != "blocking" || string(cfg.SeverityThreshold) != "high" {
		t.Errorf("stored policy = %+v", cfg)
	}
	if cfg.AllowBlockingOverride {
		t.Error("allow_blocking_override should be false")
	}

	// An unconfigured repository resolves to the default policy.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/acme/other", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET default status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if string(cfg.EnforcementMode) != "warning" {
		t.Errorf("default policy = %+v", cfg)
	}
}

func TestPolicyValidation(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPut, "/api/v1/policies/acme/api", map[string]any{
		"enforcement_mode": "nuclear",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestOrgPolicy(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/organizations/acme", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET before PUT status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodPut, "/api/v1/policies/organizations/acme", map[string]any{
		"enforcement_mode":   "advisory",
		"severity_threshold": "low",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/organizations/acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var cfg policy.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if string(cfg.EnforcementMode) != "advisory" {
		t.Errorf("org policy = %+v", cfg)
	}

	// Repositories under the organization inherit it.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/acme/anything", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if string(cfg.EnforcementMode) != "advisory" {
		t.Errorf("inherited policy = %+v", cfg)
	}
}

func TestRulePackUploadAndList(t *testing.T) {
	s := newTestServer(t)

	packYAML := "name: fintech\nrules:\n  - id: FIN001\n    name: Account number\n    pattern: 'account_number'\n    severity: high\n"
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/policies/rule-packs/upload", map[string]any{
		"pack_name": "fintech",
		"pack_data": packYAML,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "uploaded" || resp["pack_name"] != "fintech" || resp["rules_count"] != float64(1) {
		t.Errorf("upload response = %v", resp)
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/v1/policies/rule-packs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var packs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &packs); err != nil {
		t.Fatal(err)
	}
	if len(packs) != 1 || packs[0]["name"] != "fintech" {
		t.Errorf("packs = %v", packs)
	}

	t.Run("invalid pack rejected", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/policies/rule-packs/upload", map[string]any{
			"pack_name": "broken",
			"pack_data": "rules:\n  - id: X\n    pattern: 'x'\n",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/policies/rule-packs/upload", map[string]any{
			"pack_name": "x",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestAuditAndDashboardEndpoints(t *testing.T) {
	s := newTestServer(t)

	// Seed one scan through the API.
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/v1/scan/", map[string]any{
		"repository": "acme/api",
		"files": []map[string]any{
			{"path": "settings.py", "content": "password = \"hunter2\"\n"},
		},
		"policy_config": map[string]any{"enabled_rules": []string{"SEC002"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed scan status = %d", rec.Code)
	}

	t.Run("logs", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/audit/logs?repository=acme/api", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var logs []audit.Entry
		if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
			t.Fatal(err)
		}
		if len(logs) != 1 || logs[0].ViolationsCount != 1 {
			t.Errorf("logs = %+v", logs)
		}
	})

	t.Run("logs bad date", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/audit/logs?start_date=yesterday", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("export csv", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/audit/logs/export?format=csv", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var exp audit.Export
		if err := json.Unmarshal(rec.Body.Bytes(), &exp); err != nil {
			t.Fatal(err)
		}
		if exp.Format != "csv" || exp.Count != 1 || !strings.HasPrefix(exp.Content, "log_id,") {
			t.Errorf("export = %+v", exp)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/dashboard/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var stats audit.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatal(err)
		}
		if stats.TotalScans != 1 || stats.TotalViolations != 1 {
			t.Errorf("stats = %+v", stats)
		}
	})

	t.Run("trends", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/dashboard/violations/trends?days=7", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var tr audit.Trends
		if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
			t.Fatal(err)
		}
		if tr.PeriodDays != 7 || len(tr.DailyTrends) != 1 {
			t.Errorf("trends = %+v", tr)
		}
	})

	t.Run("trends bad days", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/dashboard/violations/trends?days=-3", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("copilot insights", func(t *testing.T) {
		rec := doJSON(t, s.Handler(), http.MethodGet, "/api/v1/dashboard/copilot/insights", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var ins audit.CopilotInsights
		if err := json.Unmarshal(rec.Body.Bytes(), &ins); err != nil {
			t.Fatal(err)
		}
		if ins.TotalScansCount != 1 {
			t.Errorf("insights = %+v", ins)
		}
	})
}

func TestNormalizeRepository(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"acme/api", "acme/api"},
		{"https://github.com/acme/api", "acme/api"},
		{"https://github.com/acme/api.git", "acme/api"},
		{"github.com/acme/api", "acme/api"},
		{"git://github.com/acme/api.git", "acme/api"},
		{"  acme/api  ", "acme/api"},
		{"/acme/api/", "acme/api"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeRepository(tt.raw); got != tt.want {
			t.Errorf("normalizeRepository(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
