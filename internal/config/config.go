// Package config loads inframe settings from the environment, with
// .env support for local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// APIKey authenticates against the Gemini API. Empty is allowed
	// only when Offline is set.
	APIKey string
	// Model is the Gemini model id used for vision and query calls.
	Model string
	// CacheDir is where context cache files are written.
	CacheDir string
	// Offline swaps the Gemini client for a canned fake (tests, demos).
	Offline bool

	Port string

	RPS   float64
	Burst int

	SessionDSN string

	Archive ArchiveConfig
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Load reads the environment (after best-effort .env loading) into a
// Config. Missing values fall back to defaults; the API key is only
// validated by the LLM client so offline paths stay usable.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		Model:      firstNonEmpty(strings.TrimSpace(os.Getenv("INFRAME_MODEL")), "gemini-2.0-flash"),
		CacheDir:   resolveCacheDir(),
		Offline:    parseBool(os.Getenv("INFRAME_OFFLINE"), false),
		SessionDSN: strings.TrimSpace(os.Getenv("INFRAME_DB_DSN")),
		Archive:    loadArchiveConfig(),
	}

	cfg.Port = ":8089"
	if envPort := strings.TrimSpace(os.Getenv("PORT")); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			cfg.Port = envPort
		} else {
			cfg.Port = ":" + envPort
		}
	}

	if raw := strings.TrimSpace(os.Getenv("LLM_RPS")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			cfg.RPS = v
		}
	}
	if raw := strings.TrimSpace(os.Getenv("LLM_BURST")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.Burst = v
		}
	}

	return cfg, nil
}

func resolveCacheDir() string {
	if dir := strings.TrimSpace(os.Getenv("INFRAME_CACHE_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "inframe")
	}
	return filepath.Join(home, ".cache", "inframe")
}

func loadArchiveConfig() ArchiveConfig {
	endpoint := strings.TrimSpace(os.Getenv("INFRAME_S3_ENDPOINT"))
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("INFRAME_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("INFRAME_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("INFRAME_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("INFRAME_S3_BUCKET")), "inframe-sessions"),
		UseSSL:    parseBool(os.Getenv("INFRAME_S3_USE_SSL"), false),
	}
}

func parseBool(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
