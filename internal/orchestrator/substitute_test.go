package orchestrator

import (
	"testing"

	"github.com/planmux/planmux/internal/agent"
)

func TestStepRefs(t *testing.T) {
	refs := stepRefs(map[string]string{
		"a": "use $step.2 and $step.0",
		"b": "$step.2 again",
		"c": "plain",
	})
	seen := map[int]bool{}
	for _, r := range refs {
		seen[r] = true
	}
	if len(refs) != 2 || !seen[0] || !seen[2] {
		t.Errorf("refs = %v, want {0, 2} once each", refs)
	}
}

func TestResolveArgsTokens(t *testing.T) {
	req := Request{
		Query:    "what changed?",
		FilePath: "/tmp/diff.txt",
		Context:  map[string]string{"env": "staging"},
	}
	completed := map[int]agent.Result{
		0: agent.TextResult("upstream output"),
	}

	args, err := resolveArgs(req, map[string]string{
		"q":     "$query",
		"f":     "$file",
		"env":   "deploy to $ctx.env",
		"chain": "prev: $step.0",
		"plain": "untouched",
	}, completed)
	if err != nil {
		t.Fatalf("resolveArgs() error: %v", err)
	}

	want := map[string]string{
		"q":     "what changed?",
		"f":     "/tmp/diff.txt",
		"env":   "deploy to staging",
		"chain": "prev: upstream output",
		"plain": "untouched",
	}
	for k, v := range want {
		if args[k] != v {
			t.Errorf("args[%q] = %q, want %q", k, args[k], v)
		}
	}
}

func TestResolveArgsUnknownContextKey(t *testing.T) {
	_, err := resolveArgs(Request{}, map[string]string{"x": "$ctx.nope"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown context key")
	}
}

func TestResolveArgsFailedStepReference(t *testing.T) {
	completed := map[int]agent.Result{0: agent.Errorf("boom")}
	_, err := resolveArgs(Request{}, map[string]string{"x": "$step.0"}, completed)
	if err == nil {
		t.Fatal("expected error for reference to failed step")
	}
}

func TestResolveArgsMissingStepReference(t *testing.T) {
	_, err := resolveArgs(Request{}, map[string]string{"x": "$step.5"}, nil)
	if err == nil {
		t.Fatal("expected error for reference to incomplete step")
	}
}
