package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/planmux/planmux/internal/agent"
)

const (
	workflowOpenTag  = "[workflow]"
	workflowCloseTag = "[/workflow]"

	// Confidence assumed when the model omits one, kept low so a hybrid
	// strategy is not misled by an opaque response.
	defaultGenerativeConfidence = 0.35
)

// workflowJSON is the shape expected inside [workflow]...[/workflow].
type workflowJSON struct {
	Confidence *float64   `json:"confidence"`
	Reason     string     `json:"reason"`
	Steps      []stepJSON `json:"steps"`
}

type stepJSON struct {
	Agent     string            `json:"agent"`
	Tool      string            `json:"tool"`
	Args      map[string]string `json:"args"`
	DependsOn []int             `json:"depends_on"`
}

// GenerativePlanner asks the generative client for a workflow and validates
// the answer against the agent registry. Steps referencing unknown agents
// or tools are dropped; when nothing survives it fails with a
// ValidationError so the caller can fall back.
type GenerativePlanner struct {
	gen        Generator
	registry   *agent.Registry
	maxRetries int
	logger     *slog.Logger
}

func NewGenerativePlanner(gen Generator, registry *agent.Registry, maxRetries int, logger *slog.Logger) *GenerativePlanner {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GenerativePlanner{
		gen:        gen,
		registry:   registry,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (p *GenerativePlanner) CreateWorkflow(ctx context.Context, query string, availableAgents []string) (*Plan, error) {
	if len(availableAgents) == 0 {
		return nil, &PlanningError{Reason: "no agents available"}
	}

	prompt := p.buildPrompt(query, availableAgents)
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		response, err := p.gen.Generate(ctx, prompt)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &TimeoutError{Elapsed: time.Since(start)}
			}
			return nil, &PlanningError{Reason: fmt.Sprintf("generate: %v", err)}
		}

		plan, err := p.parseAndValidate(response, availableAgents)
		if err == nil {
			return plan, nil
		}
		lastErr = err
		p.logger.Debug("generative plan rejected, retrying",
			"attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// buildPrompt enumerates the available agents with their tools and
// parameter schemas, then asks for a bracketed workflow block.
func (p *GenerativePlanner) buildPrompt(query string, availableAgents []string) string {
	var sb strings.Builder
	sb.WriteString("You are a workflow planner. Available agents and tools:\n\n")

	for _, name := range availableAgents {
		desc, ok := p.registry.Descriptor(name)
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("## %s\n%s\n", desc.Name, desc.Description))
		for _, tool := range desc.Tools {
			sb.WriteString(fmt.Sprintf("- %s.%s: %s\n", desc.Name, tool.Name, tool.Description))
			for _, param := range tool.Parameters {
				req := ""
				if param.Required {
					req = " (required)"
				}
				sb.WriteString(fmt.Sprintf("  - %s: %s%s\n", param.Name, param.Description, req))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Plan the minimal ordered steps answering the request below. Reply with exactly one block:\n")
	sb.WriteString(workflowOpenTag)
	sb.WriteString("\n")
	sb.WriteString(`{"confidence": 0.0-1.0, "reason": "why these steps", "steps": [{"agent": "name", "tool": "name", "args": {"param": "value"}, "depends_on": [optional earlier step indices]}]}`)
	sb.WriteString("\n")
	sb.WriteString(workflowCloseTag)
	sb.WriteString("\n\nArg values may use $query (the request text), $file (the attached file) and $step.N (output of step N).\n")
	sb.WriteString("\nRequest: ")
	sb.WriteString(query)
	sb.WriteString("\n")
	return sb.String()
}

func (p *GenerativePlanner) parseAndValidate(response string, availableAgents []string) (*Plan, error) {
	wf, err := extractWorkflow(response)
	if err != nil {
		return nil, err
	}

	available := make(map[string]bool, len(availableAgents))
	for _, name := range availableAgents {
		available[name] = true
	}

	var steps []Step
	var dropped []string
	for _, s := range wf.Steps {
		if !available[s.Agent] || !p.registry.HasTool(s.Agent, s.Tool) {
			dropped = append(dropped, s.Agent+"."+s.Tool)
			continue
		}
		if s.Args == nil {
			s.Args = map[string]string{}
		}
		steps = append(steps, Step{
			Agent:     s.Agent,
			Tool:      s.Tool,
			Args:      s.Args,
			DependsOn: s.DependsOn,
		})
	}

	if len(steps) == 0 {
		if len(dropped) == 0 {
			return nil, &ValidationError{Dropped: []string{"(empty step list)"}}
		}
		return nil, &ValidationError{Dropped: dropped}
	}

	confidence := defaultGenerativeConfidence
	if wf.Confidence != nil && *wf.Confidence >= 0 && *wf.Confidence <= 1 {
		confidence = *wf.Confidence
	}

	reason := wf.Reason
	if reason == "" {
		reason = "generative plan"
	}
	if len(dropped) > 0 {
		reason = fmt.Sprintf("%s (dropped invalid steps: %v)", reason, dropped)
	}

	return &Plan{
		WorkflowID: newWorkflowID(),
		Steps:      steps,
		Method:     MethodLearningBased,
		Reason:     reason,
		Confidence: confidence,
	}, nil
}

// extractWorkflow pulls the first parseable [workflow] block out of the
// response text.
func extractWorkflow(response string) (*workflowJSON, error) {
	rest := response
	for {
		start := strings.Index(rest, workflowOpenTag)
		if start < 0 {
			return nil, &ValidationError{Dropped: []string{"(no workflow block in response)"}}
		}
		rest = rest[start+len(workflowOpenTag):]
		end := strings.Index(rest, workflowCloseTag)
		if end < 0 {
			return nil, &ValidationError{Dropped: []string{"(unterminated workflow block)"}}
		}
		body := strings.TrimSpace(rest[:end])
		rest = rest[end+len(workflowCloseTag):]

		var wf workflowJSON
		if err := json.Unmarshal([]byte(body), &wf); err != nil {
			continue
		}
		return &wf, nil
	}
}
