package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/planmux/planmux/internal/agent"
)

// nopAgent satisfies agent.Agent for registry fixtures; planners only read
// descriptors.
type nopAgent struct{}

func (nopAgent) Invoke(_ context.Context, tool string, _ map[string]string) agent.Result {
	return agent.TextResult("ran " + tool)
}

func testRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry()
	for _, desc := range []agent.Descriptor{
		agent.SystemDescriptor(),
		agent.EnergyDescriptor(),
		agent.DatabaseOpsDescriptor(),
		agent.DocumentDescriptor(),
	} {
		if err := r.Register(desc, nopAgent{}); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func allAgents(r *agent.Registry) []string { return r.Names() }

func TestRuleBasedDatabaseHealthQuery(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(), "Check database health and optimize performance", allAgents(r))
	if err != nil {
		t.Fatalf("CreateWorkflow() error: %v", err)
	}
	if len(plan.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(plan.Steps))
	}
	step := plan.Steps[0]
	if step.Agent != "database-ops" {
		t.Errorf("agent = %q, want database-ops", step.Agent)
	}
	if step.Tool != "health_check" && step.Tool != "optimize" {
		t.Errorf("tool = %q, want a database maintenance tool", step.Tool)
	}
	if plan.Method != MethodRuleBased {
		t.Errorf("method = %q, want rule_based", plan.Method)
	}
	if plan.Confidence < 0.7 {
		t.Errorf("multi-keyword match confidence = %v, want >= 0.7", plan.Confidence)
	}
	if plan.WorkflowID == "" {
		t.Error("workflow id must be set")
	}
}

func TestRuleBasedNoKeywordFallsBackToSystem(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(), "Who was the first president of the United States?", allAgents(r))
	if err != nil {
		t.Fatalf("CreateWorkflow() error: %v", err)
	}
	step := plan.Steps[0]
	if step.Agent != "system" || step.Tool != "general_query" {
		t.Errorf("step = %s.%s, want system.general_query", step.Agent, step.Tool)
	}
	if step.Args["query"] != "$query" {
		t.Errorf("query arg = %q, want $query token", step.Args["query"])
	}
	if plan.Confidence >= 0.7 {
		t.Errorf("no-match confidence = %v, want low", plan.Confidence)
	}
	if plan.Method != MethodRuleBased {
		t.Errorf("method = %q", plan.Method)
	}
}

func TestRuleBasedNoKeywordWithoutSystemAgent(t *testing.T) {
	r := agent.NewRegistry()
	if err := r.Register(agent.EnergyDescriptor(), nopAgent{}); err != nil {
		t.Fatal(err)
	}
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(), "Tell me a story", []string{"energy-analytics"})
	if err != nil {
		t.Fatalf("CreateWorkflow() error: %v", err)
	}
	step := plan.Steps[0]
	if step.Agent != "energy-analytics" || step.Tool != "analyze_efficiency" {
		t.Errorf("step = %s.%s, want first agent's default tool", step.Agent, step.Tool)
	}
}

func TestRuleBasedEmptyAgentsFails(t *testing.T) {
	p := NewRuleBasedPlanner(testRegistry(t))
	_, err := p.CreateWorkflow(context.Background(), "anything", nil)
	if err == nil {
		t.Fatal("expected PlanningError for empty agent set")
	}
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Errorf("error type = %T, want *PlanningError", err)
	}
}

func TestRuleBasedDeterministic(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)
	query := "Analyze efficiency for site \"plant-7\" in 2026-07"

	first, err := p.CreateWorkflow(context.Background(), query, allAgents(r))
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.CreateWorkflow(context.Background(), query, allAgents(r))
	if err != nil {
		t.Fatal(err)
	}

	if first.WorkflowID == second.WorkflowID {
		t.Error("workflow ids must be unique per planning call")
	}
	first.WorkflowID, second.WorkflowID = "", ""
	if first.Method != second.Method || first.Reason != second.Reason || first.Confidence != second.Confidence {
		t.Error("plan provenance must be identical across calls")
	}
	if len(first.Steps) != len(second.Steps) {
		t.Fatal("step counts differ")
	}
	for i := range first.Steps {
		a, b := first.Steps[i], second.Steps[i]
		if a.Agent != b.Agent || a.Tool != b.Tool {
			t.Errorf("step %d differs: %v vs %v", i, a, b)
		}
		for k, v := range a.Args {
			if b.Args[k] != v {
				t.Errorf("step %d arg %q differs: %q vs %q", i, k, v, b.Args[k])
			}
		}
	}
}

func TestRuleBasedExtractsDateRange(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(),
		"Give me the consumption between 2026-01-01 and 2026-01-31", allAgents(r))
	if err != nil {
		t.Fatal(err)
	}
	step := plan.Steps[0]
	if step.Agent != "energy-analytics" || step.Tool != "consumption_report" {
		t.Fatalf("step = %s.%s", step.Agent, step.Tool)
	}
	if step.Args["start_date"] != "2026-01-01" {
		t.Errorf("start_date = %q", step.Args["start_date"])
	}
	if step.Args["end_date"] != "2026-01-31" {
		t.Errorf("end_date = %q", step.Args["end_date"])
	}
}

func TestRuleBasedExtractsSchemaVersion(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(), "Migrate the schema to version 4", allAgents(r))
	if err != nil {
		t.Fatal(err)
	}
	step := plan.Steps[0]
	if step.Agent != "database-ops" || step.Tool != "migrate" {
		t.Fatalf("step = %s.%s", step.Agent, step.Tool)
	}
	if step.Args["schema_version"] != "4" {
		t.Errorf("schema_version = %q, want 4", step.Args["schema_version"])
	}
}

func TestRuleBasedFileParameterToken(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	plan, err := p.CreateWorkflow(context.Background(), "Extract the text from the attached pdf", allAgents(r))
	if err != nil {
		t.Fatal(err)
	}
	step := plan.Steps[0]
	if step.Agent != "document-extract" || step.Tool != "extract_text" {
		t.Fatalf("step = %s.%s", step.Agent, step.Tool)
	}
	if step.Args["file_path"] != "$file" {
		t.Errorf("file_path = %q, want $file token", step.Args["file_path"])
	}
}

func TestRuleBasedRespectsAvailableSubset(t *testing.T) {
	r := testRegistry(t)
	p := NewRuleBasedPlanner(r)

	// database-ops keywords but only energy available: no signature is
	// eligible, and system is absent from the subset too.
	plan, err := p.CreateWorkflow(context.Background(), "optimize the database", []string{"energy-analytics"})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Steps[0].Agent != "energy-analytics" {
		t.Errorf("agent = %q, must stay within available subset", plan.Steps[0].Agent)
	}
	if plan.Confidence != confidenceFloor {
		t.Errorf("confidence = %v, want floor", plan.Confidence)
	}
}
