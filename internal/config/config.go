package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Planner    PlannerConfig    `yaml:"planner"`
	Generative GenerativeConfig `yaml:"generative"`
	Agents     AgentsConfig     `yaml:"agents"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// PlannerConfig selects the planning strategy and its gating parameters.
type PlannerConfig struct {
	Strategy          string  `yaml:"strategy"` // rule_based | learning_based | hybrid
	LearningPrimary   bool    `yaml:"learning_primary"`
	FallbackThreshold float64 `yaml:"fallback_threshold"`
	PlanningTimeout   string  `yaml:"planning_timeout"`
	StepTimeout       string  `yaml:"step_timeout"`
	ContinueOnError   bool    `yaml:"continue_on_error"`
	MaxRetries        int     `yaml:"max_retries"`
}

type GenerativeConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
	Timeout   string           `yaml:"timeout"`
	Cooldown  CooldownConfig   `yaml:"cooldown"`
}

type ProviderConfig struct {
	ID        string `yaml:"id"`
	API       string `yaml:"api"` // anthropic-messages | openai-chat | mock
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type CooldownConfig struct {
	Initial    string `yaml:"initial"`
	Max        string `yaml:"max"`
	Multiplier int    `yaml:"multiplier"`
	RedisAddr  string `yaml:"redis_addr,omitempty"`
}

type AgentsConfig struct {
	DatabaseDriver string           `yaml:"database_driver"` // postgres | sqlite
	DatabaseDSN    string           `yaml:"database_dsn"`
	Lua            []LuaAgentConfig `yaml:"lua,omitempty"`
}

// LuaAgentConfig declares a scripted agent: the descriptor lives in config,
// the tool implementations in the script's global invoke(tool, args).
type LuaAgentConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Script      string       `yaml:"script"`
	Tools       []ToolConfig `yaml:"tools"`
}

type ToolConfig struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Parameters  []ParameterConfig `yaml:"parameters,omitempty"`
}

type ParameterConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
}

type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

type SchedulerConfig struct {
	Jobs []JobConfig `yaml:"jobs,omitempty"`
}

type JobConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or @every syntax
	Query    string `yaml:"query"`
	Paused   bool   `yaml:"paused,omitempty"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Planner: PlannerConfig{
			Strategy:          "hybrid",
			LearningPrimary:   true,
			FallbackThreshold: 0.7,
			PlanningTimeout:   "30s",
			StepTimeout:       "20s",
			MaxRetries:        1,
		},
		Generative: GenerativeConfig{
			Timeout: "60s",
			Cooldown: CooldownConfig{
				Initial:    "1m",
				Max:        "1h",
				Multiplier: 5,
			},
		},
		Gateway: GatewayConfig{Addr: ":8080"},
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvValues(cfg *Config) {
	for i, p := range cfg.Generative.Providers {
		p.BaseURL = expandEnv(p.BaseURL)
		p.APIKey = expandEnv(p.APIKey)
		cfg.Generative.Providers[i] = p
	}
	cfg.Agents.DatabaseDSN = expandEnv(cfg.Agents.DatabaseDSN)
	cfg.Generative.Cooldown.RedisAddr = expandEnv(cfg.Generative.Cooldown.RedisAddr)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvValues(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Planner.Strategy {
	case "rule_based", "learning_based", "hybrid":
	default:
		return fmt.Errorf("unknown planner strategy %q (supported: rule_based, learning_based, hybrid)", c.Planner.Strategy)
	}
	if c.Planner.FallbackThreshold < 0 || c.Planner.FallbackThreshold > 1 {
		return fmt.Errorf("fallback_threshold %v out of range [0,1]", c.Planner.FallbackThreshold)
	}
	for _, d := range []struct {
		name  string
		value string
	}{
		{"planner.planning_timeout", c.Planner.PlanningTimeout},
		{"planner.step_timeout", c.Planner.StepTimeout},
		{"generative.timeout", c.Generative.Timeout},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	for _, l := range c.Agents.Lua {
		if l.Name == "" || l.Script == "" {
			return fmt.Errorf("lua agent entries need both name and script")
		}
		if len(l.Tools) == 0 {
			return fmt.Errorf("lua agent %q declares no tools", l.Name)
		}
	}
	return nil
}

// Duration parses a config duration string, returning fallback when the
// field is empty. Malformed values are caught by Validate at load time.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
