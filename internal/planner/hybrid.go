package planner

import (
	"context"
	"fmt"
	"log/slog"
)

// HybridPlanner composes a primary and a secondary strategy. The secondary
// runs only when the primary fails outright or reports confidence below the
// threshold (strict less-than: confidence exactly at the threshold keeps
// the primary). Between two successful attempts the strictly higher
// confidence wins; ties go to the primary.
type HybridPlanner struct {
	primary   Planner
	secondary Planner
	threshold float64
	logger    *slog.Logger
}

// NewHybridPlanner builds the hybrid strategy. learningPrimary selects the
// generative planner as the primary branch.
func NewHybridPlanner(rule, generative Planner, learningPrimary bool, threshold float64, logger *slog.Logger) *HybridPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HybridPlanner{threshold: threshold, logger: logger}
	if learningPrimary {
		h.primary, h.secondary = generative, rule
	} else {
		h.primary, h.secondary = rule, generative
	}
	return h
}

func (p *HybridPlanner) CreateWorkflow(ctx context.Context, query string, availableAgents []string) (*Plan, error) {
	primaryPlan, primaryErr := p.primary.CreateWorkflow(ctx, query, availableAgents)

	if primaryErr == nil && primaryPlan.Confidence >= p.threshold {
		return primaryPlan, nil
	}

	if primaryErr != nil {
		p.logger.Debug("primary planner failed, engaging secondary", "error", primaryErr)
	} else {
		p.logger.Debug("primary confidence below threshold, engaging secondary",
			"confidence", primaryPlan.Confidence, "threshold", p.threshold)
	}

	secondaryPlan, secondaryErr := p.secondary.CreateWorkflow(ctx, query, availableAgents)

	switch {
	case primaryErr != nil && secondaryErr != nil:
		return nil, &ExhaustedError{PrimaryErr: primaryErr, SecondaryErr: secondaryErr}

	case primaryErr != nil:
		// Primary never produced a plan, so this is the secondary's own
		// result, not a confidence override.
		secondaryPlan.Reason = fmt.Sprintf("%s (primary strategy failed: %v)", secondaryPlan.Reason, primaryErr)
		return secondaryPlan, nil

	case secondaryErr != nil:
		// Sub-threshold, but the only plan there is.
		primaryPlan.Reason = fmt.Sprintf("%s (secondary strategy failed: %v)", primaryPlan.Reason, secondaryErr)
		return primaryPlan, nil
	}

	if secondaryPlan.Confidence > primaryPlan.Confidence {
		secondaryPlan.Method = MethodHybridFallback
		secondaryPlan.Reason = fmt.Sprintf(
			"fallback engaged: primary confidence %.2f below threshold %.2f, secondary confidence %.2f wins (%s)",
			primaryPlan.Confidence, p.threshold, secondaryPlan.Confidence, secondaryPlan.Reason)
		return secondaryPlan, nil
	}

	primaryPlan.Reason = fmt.Sprintf(
		"%s (kept primary: confidence %.2f vs secondary %.2f, threshold %.2f)",
		primaryPlan.Reason, primaryPlan.Confidence, secondaryPlan.Confidence, p.threshold)
	return primaryPlan, nil
}
