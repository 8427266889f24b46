package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/audit"
	"github.com/guardrail-hq/guardrail/core/policy"
	"github.com/guardrail-hq/guardrail/core/violations"
)

// maxRequestBody caps scan and upload payloads (10 MB).
const maxRequestBody = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusNotImplemented, "not implemented")
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req core.ScanRequest
	body := io.LimitReader(r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Repository = normalizeRepository(req.Repository)

	result, err := s.scanner.Scan(r.Context(), req)
	if err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			writeDetail(w, http.StatusBadRequest, verr.Detail)
		case errors.Is(err, core.ErrCanceled):
			writeDetail(w, http.StatusServiceUnavailable, "scan canceled")
		default:
			slog.Error("scan failed", "repository", req.Repository, "error", err)
			writeDetail(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if s.audits != nil {
		s.audits.LogScan(result, req)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	repo := normalizeRepository(chi.URLParam(r, "*"))
	if repo == "" {
		writeDetail(w, http.StatusBadRequest, "repository is required")
		return
	}
	writeJSON(w, http.StatusOK, s.policies.GetPolicy(repo))
}

func (s *Server) handlePutPolicy(w http.ResponseWriter, r *http.Request) {
	repo := normalizeRepository(chi.URLParam(r, "*"))
	if repo == "" {
		writeDetail(w, http.StatusBadRequest, "repository is required")
		return
	}

	cfg, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	if err := s.policies.SetPolicy(repo, cfg); err != nil {
		slog.Error("failed to store policy", "repository", repo, "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetOrgPolicy(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	cfg, err := s.policies.GetStoredOrgPolicy(org)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "no policy for organization "+org)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutOrgPolicy(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	cfg, ok := decodePolicy(w, r)
	if !ok {
		return
	}
	if err := s.policies.SetOrgPolicy(org, cfg); err != nil {
		slog.Error("failed to store organization policy", "organization", org, "error", err)
		writeDetail(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListRulePacks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.policies.ListRulePacks())
}

// rulePackUpload is the POST /policies/rule-packs/upload payload. PackData is
// raw YAML.
type rulePackUpload struct {
	PackName string `json:"pack_name"`
	PackData string `json:"pack_data"`
}

func (s *Server) handleUploadRulePack(w http.ResponseWriter, r *http.Request) {
	var req rulePackUpload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PackName == "" || req.PackData == "" {
		writeDetail(w, http.StatusBadRequest, "pack_name and pack_data are required")
		return
	}

	pack, err := s.policies.UploadRulePack(req.PackName, []byte(req.PackData))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "uploaded",
		"pack_name":   pack.Name,
		"rules_count": len(pack.Rules),
	})
}

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q, err := auditQueryFromRequest(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.audits.Logs(q))
}

func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	q, err := auditQueryFromRequest(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	export, err := s.audits.ExportLogs(q, format)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	q, err := auditQueryFromRequest(r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.audits.Stats(q))
}

func (s *Server) handleViolationTrends(w http.ResponseWriter, r *http.Request) {
	repo := repositoryParam(r)
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	writeJSON(w, http.StatusOK, s.audits.ViolationTrends(repo, days))
}

func (s *Server) handleCopilotInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.audits.Insights(repositoryParam(r)))
}

func decodePolicy(w http.ResponseWriter, r *http.Request) (policy.Config, bool) {
	cfg := policy.Default()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&cfg); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid policy: "+err.Error())
		return cfg, false
	}
	if err := validatePolicy(cfg); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return cfg, false
	}
	return cfg, true
}

// validatePolicy rejects unknown severity or enforcement literals before a
// policy is stored.
func validatePolicy(cfg policy.Config) error {
	if _, err := violations.ParseEnforcementMode(string(cfg.EnforcementMode)); err != nil {
		return err
	}
	if _, err := violations.ParseSeverity(string(cfg.SeverityThreshold)); err != nil {
		return err
	}
	for i, rule := range cfg.CustomRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("custom rule %d: %w", i, err)
		}
	}
	return nil
}

func repositoryParam(r *http.Request) string {
	raw := r.URL.Query().Get("repository")
	if raw == "" {
		return ""
	}
	return normalizeRepository(raw)
}

func auditQueryFromRequest(r *http.Request) (audit.Query, error) {
	q := audit.Query{Repository: repositoryParam(r)}

	params := r.URL.Query()
	if raw := params.Get("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("start_date must be RFC 3339")
		}
		q.StartDate = t
	}
	if raw := params.Get("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("end_date must be RFC 3339")
		}
		q.EndDate = t
	}
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}
	return q, nil
}
