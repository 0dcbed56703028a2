package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("INFRAME_MODEL", "")
	t.Setenv("INFRAME_CACHE_DIR", "")
	t.Setenv("INFRAME_OFFLINE", "")
	t.Setenv("PORT", "")
	t.Setenv("LLM_RPS", "")
	t.Setenv("INFRAME_S3_ENDPOINT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.Port != ":8089" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.CacheDir == "" {
		t.Fatalf("cache dir is empty")
	}
	if cfg.Offline {
		t.Fatalf("offline should default false")
	}
	if cfg.Archive.Enabled {
		t.Fatalf("archive should be disabled without an endpoint")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("INFRAME_MODEL", "gemini-2.5-pro")
	t.Setenv("INFRAME_CACHE_DIR", "/tmp/ctx")
	t.Setenv("INFRAME_OFFLINE", "1")
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_RPS", "2.5")
	t.Setenv("LLM_BURST", "4")
	t.Setenv("INFRAME_S3_ENDPOINT", "localhost:9000")
	t.Setenv("MINIO_ROOT_USER", "minio")
	t.Setenv("MINIO_ROOT_PASSWORD", "minio123")
	t.Setenv("INFRAME_S3_ACCESS_KEY", "")
	t.Setenv("INFRAME_S3_SECRET_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "key-123" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.CacheDir != "/tmp/ctx" {
		t.Fatalf("cache dir = %q", cfg.CacheDir)
	}
	if !cfg.Offline {
		t.Fatalf("offline should be true")
	}
	if cfg.Port != ":9000" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.RPS != 2.5 || cfg.Burst != 4 {
		t.Fatalf("rps/burst = %v/%d", cfg.RPS, cfg.Burst)
	}
	if !cfg.Archive.Enabled {
		t.Fatalf("archive should be enabled")
	}
	if cfg.Archive.AccessKey != "minio" || cfg.Archive.SecretKey != "minio123" {
		t.Fatalf("archive creds fallback failed: %+v", cfg.Archive)
	}
}
