package orchestrator

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/planmux/planmux/internal/agent"
)

const (
	DefaultMaxOutputBytes = 64 * 1024 // 64KB
	DefaultStepTimeout    = 30 * time.Second
)

// Step outputs flow back into generative prompts, so anything that looks
// like a workflow block is masked before it can be re-parsed as one.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[workflow\]`),
	regexp.MustCompile(`\[/workflow\]`),
	regexp.MustCompile(`\[tool_call\]`),
}

// Guard bounds a single step invocation: a per-step timeout enforced even
// when the agent ignores its context, and a size cap on the output.
type Guard struct {
	MaxOutputBytes int
	StepTimeout    time.Duration
}

func NewGuard(stepTimeout time.Duration) *Guard {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Guard{
		MaxOutputBytes: DefaultMaxOutputBytes,
		StepTimeout:    stepTimeout,
	}
}

// Invoke runs one tool call under the step timeout. A late result from a
// stuck agent is discarded; the buffered channel lets its goroutine exit.
func (g *Guard) Invoke(ctx context.Context, ag agent.Agent, tool string, args map[string]string) agent.Result {
	stepCtx, cancel := context.WithTimeout(ctx, g.StepTimeout)
	defer cancel()

	done := make(chan agent.Result, 1)
	go func() {
		done <- ag.Invoke(stepCtx, tool, args)
	}()

	select {
	case result := <-done:
		return g.sanitize(result)
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return agent.Errorf("step canceled: %v", ctx.Err())
		}
		return agent.Errorf("step %q timed out after %s", tool, g.StepTimeout)
	}
}

func (g *Guard) sanitize(result agent.Result) agent.Result {
	for i, block := range result.Content {
		result.Content[i].Text = g.sanitizeText(block.Text)
	}
	return result
}

func (g *Guard) sanitizeText(s string) string {
	if g.MaxOutputBytes > 0 && len(s) > g.MaxOutputBytes {
		s = s[:g.MaxOutputBytes] + "\n[truncated: output exceeded size limit]"
	}
	for _, pat := range forbiddenPatterns {
		s = pat.ReplaceAllStringFunc(s, func(match string) string {
			return strings.Repeat("*", len(match))
		})
	}
	return s
}
