package config

import (
	"os"
	"strings"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

const minimalConfig = `volspike:
  name: "TestApp"
  version: "1.0"
feed:
  url: "wss://fstream.binance.com/stream?streams=!ticker@arr/!markPrice@arr"
  tier: "free"
channels:
  archive_buffer: 8
  publish_buffer: 8
storage:
  kv:
    backend: memory
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Volspike.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Volspike.Name)
	}
	if cfg.Feed.Tier != "free" {
		t.Errorf("unexpected tier: %s", cfg.Feed.Tier)
	}
	if cfg.Storage.KV.Backend != "memory" {
		t.Errorf("unexpected kv backend: %s", cfg.Storage.KV.Backend)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("VOLSPIKE_WS_URL", "wss://override.example/stream")
	t.Setenv("VOLSPIKE_TIER", "elite")

	path := writeTempConfig(t, minimalConfig)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Feed.URL != "wss://override.example/stream" {
		t.Errorf("url override not applied: %s", cfg.Feed.URL)
	}
	if cfg.Feed.Tier != "elite" {
		t.Errorf("tier override not applied: %s", cfg.Feed.Tier)
	}
}

func TestLoadConfigRejectsBadTier(t *testing.T) {
	path := writeTempConfig(t, strings.Replace(minimalConfig, `tier: "free"`, `tier: "gold"`, 1))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for unknown tier")
	}
}

func TestLoadConfigRequiresURL(t *testing.T) {
	t.Setenv("VOLSPIKE_WS_URL", "")
	content := strings.Replace(minimalConfig,
		`  url: "wss://fstream.binance.com/stream?streams=!ticker@arr/!markPrice@arr"`+"\n", "", 1)
	path := writeTempConfig(t, content)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing feed url")
	}
}

func TestLoadConfigRequiresKafkaTopic(t *testing.T) {
	content := minimalConfig + `  kafka:
    enabled: true
    brokers: ["localhost:9092"]
`
	path := writeTempConfig(t, content)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for kafka without topic")
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	prodPath := dir + "/config.production.yml"
	if err := os.WriteFile(prodPath, []byte("volspike: {}\n"), 0o644); err != nil {
		t.Fatalf("write production config: %v", err)
	}
	envPaths := map[string]string{"production": prodPath}

	t.Setenv("APP_ENV", "production")
	if got := resolveEnvSpecificPath("", "base.yml", envPaths); got != prodPath {
		t.Errorf("default path not swapped for environment file: %s", got)
	}
	if got := resolveEnvSpecificPath("explicit.yml", "base.yml", envPaths); got != "explicit.yml" {
		t.Errorf("explicit path overridden: %s", got)
	}

	t.Setenv("APP_ENV", "development")
	if got := resolveEnvSpecificPath("", "base.yml", envPaths); got != "base.yml" {
		t.Errorf("development resolved to non-default path: %s", got)
	}

	t.Setenv("APP_ENV", "production")
	missing := map[string]string{"production": dir + "/nope.yml"}
	if got := resolveEnvSpecificPath("", "base.yml", missing); got != "base.yml" {
		t.Errorf("missing environment file did not fall back: %s", got)
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike(EnvironmentProduction) || !IsProductionLike(EnvironmentStaging) {
		t.Error("production and staging should be production-like")
	}
	if IsProductionLike(EnvironmentDevelopment) {
		t.Error("development should not be production-like")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}
