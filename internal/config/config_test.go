package config

import (
	"os"
	"testing"
	"time"
)

const testYAML = `
log_level: debug

planner:
  strategy: hybrid
  learning_primary: true
  fallback_threshold: 0.7
  planning_timeout: 30s
  step_timeout: 20s
  continue_on_error: true
  max_retries: 2

generative:
  timeout: 45s
  providers:
    - id: anthropic
      api: anthropic-messages
      api_key: "${ANTHROPIC_API_KEY}"
      model: claude-sonnet-4-5
      max_tokens: 2048
    - id: openai
      api: openai-chat
      api_key: "${OPENAI_API_KEY}"
      model: gpt-5.2
    - id: local
      api: mock
  cooldown:
    initial: 30s
    max: 10m
    multiplier: 4

agents:
  database_driver: sqlite
  database_dsn: "file:ops.db"
  lua:
    - name: weather
      description: Weather lookups
      script: scripts/weather.lua
      tools:
        - name: forecast
          description: Fetch a forecast
          parameters:
            - name: city
              description: City name
              required: true

gateway:
  addr: ":9090"

scheduler:
  jobs:
    - name: nightly-health
      schedule: "0 3 * * *"
      query: "Check database health"
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Planner.Strategy != "hybrid" {
		t.Errorf("Strategy = %q, want hybrid", cfg.Planner.Strategy)
	}
	if !cfg.Planner.LearningPrimary {
		t.Error("LearningPrimary should be true")
	}
	if cfg.Planner.FallbackThreshold != 0.7 {
		t.Errorf("FallbackThreshold = %v, want 0.7", cfg.Planner.FallbackThreshold)
	}
	if !cfg.Planner.ContinueOnError {
		t.Error("ContinueOnError should be true")
	}
	if len(cfg.Generative.Providers) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(cfg.Generative.Providers))
	}
	if cfg.Generative.Providers[2].API != "mock" {
		t.Errorf("third provider api = %q, want mock", cfg.Generative.Providers[2].API)
	}
	if cfg.Agents.DatabaseDriver != "sqlite" {
		t.Errorf("DatabaseDriver = %q, want sqlite", cfg.Agents.DatabaseDriver)
	}
	if len(cfg.Agents.Lua) != 1 || cfg.Agents.Lua[0].Name != "weather" {
		t.Errorf("lua agents = %+v, want one named weather", cfg.Agents.Lua)
	}
	if cfg.Gateway.Addr != ":9090" {
		t.Errorf("Gateway.Addr = %q, want :9090", cfg.Gateway.Addr)
	}
	if len(cfg.Scheduler.Jobs) != 1 || cfg.Scheduler.Jobs[0].Schedule != "0 3 * * *" {
		t.Errorf("scheduler jobs = %+v", cfg.Scheduler.Jobs)
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-123")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Generative.Providers[0].APIKey != "sk-test-123" {
		t.Errorf("APIKey = %q, want expanded env value", cfg.Generative.Providers[0].APIKey)
	}
}

func TestParseLeavesUnsetEnvPlaceholder(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Generative.Providers[1].APIKey != "${OPENAI_API_KEY}" {
		t.Errorf("unset env var should keep placeholder, got %q", cfg.Generative.Providers[1].APIKey)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Planner.Strategy != "hybrid" {
		t.Errorf("default strategy = %q, want hybrid", cfg.Planner.Strategy)
	}
	if cfg.Planner.FallbackThreshold != 0.7 {
		t.Errorf("default threshold = %v, want 0.7", cfg.Planner.FallbackThreshold)
	}
	if cfg.Gateway.Addr != ":8080" {
		t.Errorf("default gateway addr = %q, want :8080", cfg.Gateway.Addr)
	}
}

func TestParseRejectsUnknownStrategy(t *testing.T) {
	_, err := Parse([]byte("planner:\n  strategy: psychic\n"))
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestParseRejectsBadThreshold(t *testing.T) {
	_, err := Parse([]byte("planner:\n  strategy: hybrid\n  fallback_threshold: 1.5\n"))
	if err == nil {
		t.Fatal("expected error for threshold out of range")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	_, err := Parse([]byte("planner:\n  strategy: hybrid\n  fallback_threshold: 0.5\n  step_timeout: whenever\n"))
	if err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestParseRejectsLuaAgentWithoutTools(t *testing.T) {
	bad := `
agents:
  lua:
    - name: broken
      script: x.lua
`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for lua agent without tools")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/planmux.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDurationHelper(t *testing.T) {
	tests := []struct {
		in       string
		fallback string
		want     string
	}{
		{"30s", "1m", "30s"},
		{"", "1m", "1m"},
		{"garbage", "1m", "1m"},
	}
	for _, tt := range tests {
		got := Duration(tt.in, mustDuration(t, tt.fallback))
		if got != mustDuration(t, tt.want) {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func mustDuration(t *testing.T, s string) time.Duration {
	t.Helper()
	d, err := time.ParseDuration(s)
	if err != nil {
		t.Fatalf("bad test duration %q: %v", s, err)
	}
	return d
}
