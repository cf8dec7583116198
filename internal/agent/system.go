package agent

import (
	"context"
	"fmt"
)

// Generator is the one capability the system agent needs from the
// generative client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SystemAgent is the generic catch-all: queries with no domain match are
// answered directly by the generative client.
type SystemAgent struct {
	gen Generator
}

func NewSystemAgent(gen Generator) *SystemAgent {
	return &SystemAgent{gen: gen}
}

func SystemDescriptor() Descriptor {
	return Descriptor{
		Name:        "system",
		Description: "General-purpose fallback for queries outside every domain agent",
		Tools: []ToolSpec{
			{
				Name:        "general_query",
				Description: "Answer a free-form question",
				Parameters: []Parameter{
					{Name: "query", Description: "The question to answer", Required: true},
				},
			},
			{
				Name:        "echo",
				Description: "Return the input unchanged, for plumbing checks",
				Parameters: []Parameter{
					{Name: "text", Description: "Text to echo", Required: true},
				},
			},
		},
	}
}

func (a *SystemAgent) Invoke(ctx context.Context, tool string, args map[string]string) Result {
	switch tool {
	case "general_query":
		query := args["query"]
		if query == "" {
			return Errorf("general_query requires a query argument")
		}
		answer, err := a.gen.Generate(ctx, fmt.Sprintf("Answer concisely:\n\n%s", query))
		if err != nil {
			return Errorf("general_query: %v", err)
		}
		return TextResult(answer)
	case "echo":
		return TextResult(args["text"])
	default:
		return Errorf("system agent has no tool %q", tool)
	}
}
