// Package orchestrator executes plans: it asks the configured planner for a
// workflow, schedules the steps respecting their dependencies, and returns
// one result envelope per step in plan order.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/planmux/planmux/internal/agent"
	"github.com/planmux/planmux/internal/metrics"
	"github.com/planmux/planmux/internal/planner"
)

const DefaultPlanningTimeout = 20 * time.Second

// Request is one natural-language request plus its attachments.
type Request struct {
	Query    string
	FilePath string
	Context  map[string]string
}

// Result carries the plan provenance and one entry per plan step, in plan
// order. Steps skipped after an abort still get an entry so indices line up
// with the plan.
type Result struct {
	WorkflowID string         `json:"workflow_id"`
	Method     planner.Method `json:"planning_method"`
	Reason     string         `json:"planning_reason"`
	Confidence float64        `json:"confidence"`
	Steps      []agent.Result `json:"steps"`
}

// StepObserver is notified as each step finishes, before the full result is
// assembled. Steps can complete concurrently; calls are serialized.
type StepObserver func(index int, step planner.Step, result agent.Result)

type Orchestrator struct {
	planner         planner.Planner
	agents          *agent.Registry
	guard           *Guard
	logger          *slog.Logger
	metrics         *metrics.Metrics
	planningTimeout time.Duration
	continueOnError bool
}

type Option func(*Orchestrator)

// WithPlanningTimeout bounds the planning phase; execution keeps the
// caller's deadline.
func WithPlanningTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.planningTimeout = d
		}
	}
}

// WithStepTimeout bounds each individual step invocation.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.guard.StepTimeout = d
		}
	}
}

// WithContinueOnError keeps executing runnable steps after a failure
// instead of aborting the workflow.
func WithContinueOnError(v bool) Option {
	return func(o *Orchestrator) { o.continueOnError = v }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(p planner.Planner, agents *agent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:         p,
		agents:          agents,
		guard:           NewGuard(DefaultStepTimeout),
		logger:          slog.Default(),
		planningTimeout: DefaultPlanningTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessRequest plans and executes one request.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (*Result, error) {
	return o.process(ctx, req, nil)
}

// ProcessRequestObserved is ProcessRequest with per-step notifications,
// used by the gateway to stream step results as they land.
func (o *Orchestrator) ProcessRequestObserved(ctx context.Context, req Request, observe StepObserver) (*Result, error) {
	return o.process(ctx, req, observe)
}

func (o *Orchestrator) process(ctx context.Context, req Request, observe StepObserver) (*Result, error) {
	planCtx, cancel := context.WithTimeout(ctx, o.planningTimeout)
	plan, err := o.planner.CreateWorkflow(planCtx, req.Query, o.agents.Names())
	cancel()
	if err != nil {
		o.metrics.ObservePlanningFailure(failureKind(err))
		return nil, fmt.Errorf("plan request: %w", err)
	}

	o.metrics.ObservePlan(string(plan.Method), plan.Method == planner.MethodHybridFallback)
	o.logger.Info("plan created",
		"workflow_id", plan.WorkflowID,
		"method", plan.Method,
		"steps", len(plan.Steps),
		"confidence", plan.Confidence)

	steps := o.executePlan(ctx, req, plan, observe)

	return &Result{
		WorkflowID: plan.WorkflowID,
		Method:     plan.Method,
		Reason:     plan.Reason,
		Confidence: plan.Confidence,
		Steps:      steps,
	}, nil
}

// executePlan runs the plan in waves: every step whose dependencies have
// completed runs concurrently with the rest of its wave. Results are
// indexed by plan position regardless of completion order.
func (o *Orchestrator) executePlan(ctx context.Context, req Request, plan *planner.Plan, observe StepObserver) []agent.Result {
	n := len(plan.Steps)
	results := make([]agent.Result, n)
	completed := make(map[int]agent.Result, n)

	deps, invalid := dependencyGraph(plan.Steps)
	for i, reason := range invalid {
		results[i] = agent.Errorf("step %d not run: %s", i, reason)
		completed[i] = results[i]
	}

	var mu sync.Mutex
	record := func(i int, res agent.Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		completed[i] = res
		if observe != nil {
			observe(i, plan.Steps[i], res)
		}
	}

	pending := make(map[int]bool, n)
	for i := range plan.Steps {
		if _, done := completed[i]; !done {
			pending[i] = true
		}
	}

	aborted := -1
	for len(pending) > 0 && aborted < 0 {
		wave := readySteps(pending, deps, completed)
		if len(wave) == 0 {
			// Remaining steps depend on failed or unreachable steps.
			break
		}

		// Steps in a wave run concurrently and may read dependency
		// outputs, so they get an immutable snapshot of what has
		// completed so far.
		snapshot := make(map[int]agent.Result, len(completed))
		for k, v := range completed {
			snapshot[k] = v
		}

		var wg sync.WaitGroup
		for _, i := range wave {
			delete(pending, i)
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				record(i, o.runStep(ctx, req, i, plan.Steps[i], snapshot))
			}(i)
		}
		wg.Wait()

		if !o.continueOnError {
			for _, i := range wave {
				if results[i].IsError {
					aborted = i
					break
				}
			}
		}
	}

	// Pad unrun steps so the result always has one entry per plan step.
	for i := range plan.Steps {
		if _, done := completed[i]; done {
			continue
		}
		if aborted >= 0 {
			results[i] = agent.Errorf("aborted: step %d failed", aborted)
		} else {
			results[i] = agent.Errorf("step %d not run: dependency failed", i)
		}
	}
	return results
}

func (o *Orchestrator) runStep(ctx context.Context, req Request, index int, step planner.Step, completed map[int]agent.Result) agent.Result {
	ag, ok := o.agents.Get(step.Agent)
	if !ok {
		return agent.Errorf("agent %q not registered", step.Agent)
	}
	if !o.agents.HasTool(step.Agent, step.Tool) {
		return agent.Errorf("agent %q has no tool %q", step.Agent, step.Tool)
	}

	args, err := resolveArgs(req, step.Args, completed)
	if err != nil {
		return agent.Errorf("resolve step %d args: %v", index, err)
	}

	start := time.Now()
	result := o.guard.Invoke(ctx, ag, step.Tool, args)
	elapsed := time.Since(start)

	o.metrics.ObserveStep(step.Agent, result.IsError, elapsed)
	if result.IsError {
		o.logger.Warn("step failed",
			"step", index, "agent", step.Agent, "tool", step.Tool, "error", result.Text())
	} else {
		o.logger.Debug("step completed",
			"step", index, "agent", step.Agent, "tool", step.Tool, "elapsed", elapsed)
	}
	return result
}

// dependencyGraph merges declared DependsOn entries with the implicit
// dependencies of $step.N argument references. A dependency must point at
// an earlier step; anything else marks the step invalid.
func dependencyGraph(steps []planner.Step) (map[int][]int, map[int]string) {
	deps := make(map[int][]int, len(steps))
	invalid := map[int]string{}
	for i, step := range steps {
		seen := map[int]bool{}
		all := append(append([]int{}, step.DependsOn...), stepRefs(step.Args)...)
		for _, d := range all {
			if d < 0 || d >= i {
				invalid[i] = fmt.Sprintf("dependency %d is not an earlier step", d)
				break
			}
			if !seen[d] {
				seen[d] = true
				deps[i] = append(deps[i], d)
			}
		}
	}
	return deps, invalid
}

func readySteps(pending map[int]bool, deps map[int][]int, completed map[int]agent.Result) []int {
	var ready []int
	for i := range pending {
		ok := true
		for _, d := range deps[i] {
			res, done := completed[d]
			if !done || res.IsError {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, i)
		}
	}
	return ready
}

func failureKind(err error) string {
	switch {
	case planner.IsExhausted(err):
		return "exhausted"
	case planner.IsTimeout(err):
		return "timeout"
	case planner.IsValidation(err):
		return "validation"
	default:
		return "planning"
	}
}
