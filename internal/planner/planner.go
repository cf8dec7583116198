// Package planner turns a free-text query into an ordered execution plan.
// Two strategies exist, deterministic keyword matching and generative-model
// planning, composed by a hybrid strategy with confidence-gated fallback.
// Every plan records which strategy produced it and why.
package planner

import (
	"context"

	"github.com/google/uuid"
)

// Method tags the provenance of a plan.
type Method string

const (
	MethodRuleBased      Method = "rule_based"
	MethodLearningBased  Method = "learning_based"
	MethodHybridFallback Method = "hybrid_fallback"
)

// Step addresses one tool invocation. Args values may carry substitution
// tokens resolved at execution time: $query, $file, $ctx.KEY and $step.N
// (the text output of step N). DependsOn orders steps that need an earlier
// step to finish without consuming its output; $step.N references imply the
// same dependency.
type Step struct {
	Agent     string            `json:"agent" yaml:"agent"`
	Tool      string            `json:"tool" yaml:"tool"`
	Args      map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
	DependsOn []int             `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Plan is one workflow: ordered steps plus provenance. WorkflowID is unique
// per planning call; a re-plan gets a fresh one.
type Plan struct {
	WorkflowID string  `json:"workflow_id" yaml:"workflow_id"`
	Steps      []Step  `json:"steps" yaml:"steps"`
	Method     Method  `json:"planning_method" yaml:"planning_method"`
	Reason     string  `json:"planning_reason" yaml:"planning_reason"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Planner produces a plan for a query, restricted to the named agents.
type Planner interface {
	CreateWorkflow(ctx context.Context, query string, availableAgents []string) (*Plan, error)
}

// Generator is the slice of the generative client the planners need.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func newWorkflowID() string {
	return uuid.NewString()
}
