package core

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HOST", "PORT", "DEBUG", "GEMINI_API_KEY", "DATABASE_URL", "REDIS_URL",
		"ALLOWED_ORIGINS", "DATA_RESIDENCY_REGION", "ENABLE_CODE_RETENTION",
		"LOG_LEVEL", "CONFIG_DIR",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.Host != "0.0.0.0" || cfg.Port != 8000 || cfg.Debug {
		t.Errorf("listen defaults: %s:%d debug=%v", cfg.Host, cfg.Port, cfg.Debug)
	}
	if cfg.GeminiAPIKey != "" {
		t.Error("gemini key should default empty")
	}
	if cfg.DataResidencyRegion != "us-east-1" || cfg.EnableCodeRetention {
		t.Errorf("residency defaults: %s retention=%v", cfg.DataResidencyRegion, cfg.EnableCodeRetention)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.ConfigDir != "./config" {
		t.Errorf("config dir = %q", cfg.ConfigDir)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DEBUG", "true")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("ALLOWED_ORIGINS", "https://ui.internal, https://admin.internal")
	t.Setenv("ENABLE_CODE_RETENTION", "1")

	cfg := LoadConfig()
	if cfg.Host != "127.0.0.1" || cfg.Port != 9000 || !cfg.Debug {
		t.Errorf("listen overrides: %s:%d debug=%v", cfg.Host, cfg.Port, cfg.Debug)
	}
	if cfg.GeminiAPIKey != "test-key" {
		t.Errorf("gemini key = %q", cfg.GeminiAPIKey)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.internal" {
		t.Errorf("origins should be trimmed: %v", cfg.AllowedOrigins)
	}
	if !cfg.EnableCodeRetention {
		t.Error("retention override ignored")
	}
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("DEBUG", "maybe")

	cfg := LoadConfig()
	if cfg.Port != 8000 {
		t.Errorf("port = %d, want default on parse failure", cfg.Port)
	}
	if cfg.Debug {
		t.Error("debug should fall back to false")
	}
}
