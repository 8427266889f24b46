// Package server exposes the scan pipeline over HTTP: scanning, policy and
// rule-pack management, audit retrieval, and dashboard aggregates.
package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/audit"
	"github.com/guardrail-hq/guardrail/core/policy"
)

// Server wires the scan orchestrator, policy engine, and audit logger behind
// a chi router.
type Server struct {
	scanner  *core.Scanner
	policies *policy.Engine
	audits   *audit.Logger
	router   chi.Router
}

// New constructs a Server with routing and middleware configured.
// allowedOrigins feeds the CORS layer; an empty list disables cross-origin
// access.
func New(scanner *core.Scanner, policies *policy.Engine, audits *audit.Logger, allowedOrigins []string) *Server {
	s := &Server{
		scanner:  scanner,
		policies: policies,
		audits:   audits,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scan", func(r chi.Router) {
			r.Post("/", s.handleScan)
			r.Post("/pr/{owner}/{repo}/{pr}", s.handleNotImplemented)
			r.Post("/commit/{owner}/{repo}/{sha}", s.handleNotImplemented)
		})

		r.Route("/policies", func(r chi.Router) {
			// Static segments are matched ahead of the repository wildcard.
			r.Get("/rule-packs", s.handleListRulePacks)
			r.Post("/rule-packs/upload", s.handleUploadRulePack)
			r.Get("/organizations/{org}", s.handleGetOrgPolicy)
			r.Put("/organizations/{org}", s.handlePutOrgPolicy)
			// Repository identifiers contain a slash, so they land on the
			// wildcard and are read back via chi.URLParam(r, "*").
			r.Get("/*", s.handleGetPolicy)
			r.Put("/*", s.handlePutPolicy)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/logs", s.handleAuditLogs)
			r.Get("/logs/export", s.handleAuditExport)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", s.handleDashboardStats)
			r.Get("/violations/trends", s.handleViolationTrends)
			r.Get("/copilot/insights", s.handleCopilotInsights)
		})
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// normalizeRepository reduces a repository identifier to owner/name. URLs
// ("https://github.com/acme/api", "github.com/acme/api.git") and plain
// owner/name forms all normalize to the same key.
func normalizeRepository(raw string) string {
	repo := strings.TrimSpace(raw)
	if i := strings.Index(repo, "://"); i >= 0 {
		repo = repo[i+3:]
	}
	repo = strings.TrimPrefix(repo, "github.com/")
	repo = strings.Trim(repo, "/")
	repo = strings.TrimSuffix(repo, ".git")

	parts := strings.Split(repo, "/")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}
