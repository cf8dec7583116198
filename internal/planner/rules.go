package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/planmux/planmux/internal/agent"
)

// signature maps a set of query keywords to one agent/tool pair. Signatures
// are ordered: on equal match counts the earlier entry wins, so specific
// multi-keyword entries come first.
type signature struct {
	keywords []string
	agent    string
	tool     string
}

var defaultSignatures = []signature{
	{[]string{"health", "optimize"}, "database-ops", "health_check"},
	{[]string{"database", "health"}, "database-ops", "health_check"},
	{[]string{"optimize", "performance"}, "database-ops", "optimize"},
	{[]string{"migrate", "schema"}, "database-ops", "migrate"},
	{[]string{"efficiency"}, "energy-analytics", "analyze_efficiency"},
	{[]string{"consumption"}, "energy-analytics", "consumption_report"},
	{[]string{"energy", "usage"}, "energy-analytics", "consumption_report"},
	{[]string{"extract", "pdf"}, "document-extract", "extract_text"},
	{[]string{"extract", "document"}, "document-extract", "extract_text"},
	{[]string{"read", "file"}, "document-extract", "extract_text"},
	{[]string{"health"}, "database-ops", "health_check"},
	{[]string{"optimize"}, "database-ops", "optimize"},
	{[]string{"migrate"}, "database-ops", "migrate"},
	{[]string{"pdf"}, "document-extract", "extract_text"},
}

const (
	confidenceFloor = 0.3  // no keyword matched; generic fallback routing
	confidenceBase  = 0.4  // plus 0.15 per matched keyword
	confidenceCeil  = 0.95 // a keyword match is never certainty
)

var (
	datePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	monthPattern   = regexp.MustCompile(`\b\d{4}-\d{2}\b`)
	versionPattern = regexp.MustCompile(`(?i)\bversion\s+(\w+)|\bv(\d+)\b`)
	quotedPattern  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// RuleBasedPlanner matches domain keyword signatures against the query and
// emits a single-step plan. It never performs I/O and is fully
// deterministic: the same query and registry always yield the same plan,
// workflow ID aside. Its only failure is an empty agent set.
type RuleBasedPlanner struct {
	registry   *agent.Registry
	signatures []signature
}

func NewRuleBasedPlanner(registry *agent.Registry) *RuleBasedPlanner {
	return &RuleBasedPlanner{
		registry:   registry,
		signatures: defaultSignatures,
	}
}

func (p *RuleBasedPlanner) CreateWorkflow(_ context.Context, query string, availableAgents []string) (*Plan, error) {
	if len(availableAgents) == 0 {
		return nil, &PlanningError{Reason: "no agents available"}
	}

	available := make(map[string]bool, len(availableAgents))
	for _, name := range availableAgents {
		if _, ok := p.registry.Get(name); ok {
			available[name] = true
		}
	}
	if len(available) == 0 {
		return nil, &PlanningError{Reason: "none of the requested agents are registered"}
	}

	lower := strings.ToLower(query)

	best, matched := p.bestSignature(lower, available)
	if matched == 0 {
		return p.fallbackPlan(query, availableAgents, available), nil
	}

	args := p.deriveArgs(query, best.agent, best.tool)
	confidence := confidenceBase + 0.15*float64(matched)
	if confidence > confidenceCeil {
		confidence = confidenceCeil
	}

	return &Plan{
		WorkflowID: newWorkflowID(),
		Steps:      []Step{{Agent: best.agent, Tool: best.tool, Args: args}},
		Method:     MethodRuleBased,
		Reason: fmt.Sprintf("matched %d keyword(s) %v for %s.%s",
			matched, best.keywords, best.agent, best.tool),
		Confidence: confidence,
	}, nil
}

func (p *RuleBasedPlanner) bestSignature(lowerQuery string, available map[string]bool) (signature, int) {
	var best signature
	bestCount := 0
	for _, sig := range p.signatures {
		if !available[sig.agent] || !p.registry.HasTool(sig.agent, sig.tool) {
			continue
		}
		count := 0
		for _, kw := range sig.keywords {
			if strings.Contains(lowerQuery, kw) {
				count++
			}
		}
		if count == len(sig.keywords) && count > bestCount {
			best = sig
			bestCount = count
		}
	}
	return best, bestCount
}

// fallbackPlan routes keyword-less queries to the system agent's default
// tool, or to the first available agent when system is not registered.
func (p *RuleBasedPlanner) fallbackPlan(query string, availableAgents []string, available map[string]bool) *Plan {
	target := ""
	if available["system"] {
		target = "system"
	} else {
		// availableAgents preserves caller order; pick the first registered one.
		for _, name := range availableAgents {
			if available[name] {
				target = name
				break
			}
		}
	}

	desc, _ := p.registry.Descriptor(target)
	tool, _ := desc.DefaultTool()

	args := map[string]string{}
	for _, param := range tool.Parameters {
		if v, ok := p.extractLiteral(query, param.Name); ok {
			args[param.Name] = v
		} else if param.Required {
			args[param.Name] = placeholderFor(param.Name)
		}
	}

	return &Plan{
		WorkflowID: newWorkflowID(),
		Steps:      []Step{{Agent: target, Tool: tool.Name, Args: args}},
		Method:     MethodRuleBased,
		Reason:     fmt.Sprintf("no domain keywords matched; routing to %s.%s", target, tool.Name),
		Confidence: confidenceFloor,
	}
}

// deriveArgs fills a tool's declared parameters from literal values found
// in the query, with placeholders for required parameters it cannot fill.
func (p *RuleBasedPlanner) deriveArgs(query, agentName, toolName string) map[string]string {
	desc, _ := p.registry.Descriptor(agentName)
	tool, _ := desc.Tool(toolName)

	args := map[string]string{}
	for _, param := range tool.Parameters {
		if v, ok := p.extractLiteral(query, param.Name); ok {
			args[param.Name] = v
		} else if param.Required {
			args[param.Name] = placeholderFor(param.Name)
		}
	}
	return args
}

func (p *RuleBasedPlanner) extractLiteral(query, paramName string) (string, bool) {
	name := strings.ToLower(paramName)
	switch {
	case strings.Contains(name, "file") || strings.Contains(name, "path"):
		return "$file", true
	case name == "query":
		return "$query", true
	case strings.HasPrefix(name, "start"):
		dates := datePattern.FindAllString(query, 2)
		if len(dates) >= 1 {
			return dates[0], true
		}
	case strings.HasPrefix(name, "end"):
		dates := datePattern.FindAllString(query, 2)
		if len(dates) >= 2 {
			return dates[1], true
		}
	case strings.Contains(name, "period"):
		if m := monthPattern.FindString(query); m != "" {
			return m, true
		}
	case strings.Contains(name, "version"):
		if m := versionPattern.FindStringSubmatch(query); m != nil {
			if m[1] != "" {
				return m[1], true
			}
			return m[2], true
		}
	}
	if m := quotedPattern.FindStringSubmatch(query); m != nil {
		if m[1] != "" {
			return m[1], true
		}
		return m[2], true
	}
	return "", false
}

func placeholderFor(paramName string) string {
	return "<" + paramName + ">"
}
