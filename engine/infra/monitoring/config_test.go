package monitoring

import "testing"

func TestDefaultConfig_IsDisabledWithMetricsPath(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Enabled {
		t.Fatal("expected monitoring disabled by default")
	}
	if cfg.Path != "/metrics" {
		t.Fatalf("expected /metrics, got %q", cfg.Path)
	}
}

func TestValidate_RejectsEmptyPath(t *testing.T) {
	cfg := &Config{Path: ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestValidate_RejectsPathWithoutLeadingSlash(t *testing.T) {
	cfg := &Config{Path: "metrics"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path without leading slash")
	}
}

func TestValidate_RejectsAPIPrefix(t *testing.T) {
	cfg := &Config{Path: "/api/metrics"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for /api/ prefixed path")
	}
}

func TestValidate_RejectsQueryParameters(t *testing.T) {
	cfg := &Config{Path: "/metrics?foo=bar"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path containing a query string")
	}
}

func TestValidate_AcceptsValidPath(t *testing.T) {
	cfg := &Config{Path: "/metrics"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadWithEnv_FallsBackToYAMLConfig(t *testing.T) {
	t.Setenv("MONITORING_ENABLED", "")
	t.Setenv("MONITORING_PATH", "")
	cfg, err := LoadWithEnv(t.Context(), &Config{Enabled: true, Path: "/custom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled || cfg.Path != "/custom" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadWithEnv_EnvOverridesYAML(t *testing.T) {
	t.Setenv("MONITORING_ENABLED", "true")
	t.Setenv("MONITORING_PATH", "/env-metrics")
	cfg, err := LoadWithEnv(t.Context(), &Config{Enabled: false, Path: "/custom"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Enabled || cfg.Path != "/env-metrics" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadWithEnv_InvalidResultReturnsError(t *testing.T) {
	t.Setenv("MONITORING_ENABLED", "")
	t.Setenv("MONITORING_PATH", "no-leading-slash")
	_, err := LoadWithEnv(t.Context(), nil)
	if err == nil {
		t.Fatal("expected error for invalid resulting path")
	}
}
