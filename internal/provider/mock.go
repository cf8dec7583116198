package provider

import "context"

// DegradedContent is the deterministic completion used when no real provider
// is reachable. It carries a low-confidence single-step workflow addressed to
// the system agent, so planners that parse it still produce a usable plan and
// hybrid fallback is driven by confidence instead of an error path.
const DegradedContent = `[workflow]
{"confidence": 0.2, "reason": "degraded completion: no generative provider reachable", "steps": [{"agent": "system", "tool": "general_query", "args": {"query": "$query"}}]}
[/workflow]`

// MockProvider returns DegradedContent for every request. It backs the
// "mock" api type in config and the terminal fallback inside genclient.
type MockProvider struct {
	id string
}

func NewMockProvider(id string) *MockProvider {
	if id == "" {
		id = "mock"
	}
	return &MockProvider{id: id}
}

func (p *MockProvider) ID() string { return p.id }

func (p *MockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var inputLen int
	for _, m := range req.Messages {
		inputLen += len(m.Content)
	}
	return &CompletionResponse{
		ID:      "mock-completion",
		Model:   "mock",
		Content: DegradedContent,
		Usage:   Usage{InputTokens: inputLen / 4},
	}, nil
}
