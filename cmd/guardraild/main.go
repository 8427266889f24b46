// Package main is the entry point for the guardraild scan service.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/guardrail-hq/guardrail/assist"
	"github.com/guardrail-hq/guardrail/core"
	"github.com/guardrail-hq/guardrail/core/audit"
	"github.com/guardrail-hq/guardrail/core/policy"
	"github.com/guardrail-hq/guardrail/server"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// run starts the service and returns the exit code.
// 0 = clean shutdown, 1 = fatal config error, 2 = port bind failure.
func run() int {
	cfg := core.LoadConfig()
	setupLogging(cfg)

	policies, err := policy.NewEngine(cfg.ConfigDir)
	if err != nil {
		slog.Error("failed to initialize policy engine", "config_dir", cfg.ConfigDir, "error", err)
		return 1
	}

	scannerOpts := []core.ScannerOption{
		core.WithDataResidency(cfg.DataResidencyRegion, cfg.EnableCodeRetention),
	}
	if cfg.GeminiAPIKey != "" {
		provider := assist.NewGeminiProvider(assist.WithAPIKey(cfg.GeminiAPIKey))
		scannerOpts = append(scannerOpts, core.WithAIAnalyzer(assist.NewAnalyzer(provider)))
		slog.Info("ai analysis enabled")
	} else {
		slog.Warn("GEMINI_API_KEY not set, ai analysis disabled")
	}

	scanner := core.NewScanner(policies, scannerOpts...)
	audits := audit.NewLogger(cfg.AuditLogFile)
	srv := server.New(scanner, policies, audits, cfg.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := policies.Watch(ctx); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("failed to bind", "addr", addr, "error", err)
		return 2
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	slog.Info("guardraild listening", "addr", addr, "version", version)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown incomplete", "error", err)
		}
		slog.Info("guardraild stopped")
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			return 1
		}
		return 0
	}
}

// setupLogging configures slog from LOG_LEVEL and LOG_FILE. Logs go to
// stderr, and additionally to the log file when it can be opened.
func setupLogging(cfg core.Config) {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err == nil {
			if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				out = io.MultiWriter(os.Stderr, f)
			}
		}
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
}
