package planner

import (
	"fmt"
	"log/slog"

	"github.com/planmux/planmux/internal/agent"
)

const (
	StrategyRuleBased = "rule_based"
	StrategyLearning  = "learning_based"
	StrategyHybrid    = "hybrid"
)

// Config mirrors the planner section of the application config.
type Config struct {
	Strategy          string
	LearningPrimary   bool
	FallbackThreshold float64
	MaxRetries        int
}

// FromConfig selects the concrete planner at construction time.
func FromConfig(cfg Config, registry *agent.Registry, gen Generator, logger *slog.Logger) (Planner, error) {
	rule := NewRuleBasedPlanner(registry)
	generative := NewGenerativePlanner(gen, registry, cfg.MaxRetries, logger)

	switch cfg.Strategy {
	case StrategyRuleBased:
		return rule, nil
	case StrategyLearning:
		return generative, nil
	case StrategyHybrid, "":
		return NewHybridPlanner(rule, generative, cfg.LearningPrimary, cfg.FallbackThreshold, logger), nil
	default:
		return nil, fmt.Errorf("unknown planner strategy %q (supported: %s, %s, %s)",
			cfg.Strategy, StrategyRuleBased, StrategyLearning, StrategyHybrid)
	}
}
