package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/planmux/planmux/internal/agent"
	"github.com/planmux/planmux/internal/orchestrator"
	"github.com/planmux/planmux/internal/planner"
	"github.com/planmux/planmux/internal/scheduler"
)

type fakeRunner struct {
	err   error
	steps []planner.Step
}

func (r *fakeRunner) result() *orchestrator.Result {
	res := &orchestrator.Result{
		WorkflowID: "wf-1",
		Method:     planner.MethodRuleBased,
		Reason:     "test",
		Confidence: 0.9,
	}
	for _, s := range r.steps {
		res.Steps = append(res.Steps, agent.TextResult(s.Agent+"."+s.Tool+" ok"))
	}
	return res
}

func (r *fakeRunner) ProcessRequest(_ context.Context, _ orchestrator.Request) (*orchestrator.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.result(), nil
}

func (r *fakeRunner) ProcessRequestObserved(_ context.Context, _ orchestrator.Request, observe orchestrator.StepObserver) (*orchestrator.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	res := r.result()
	for i, s := range r.steps {
		observe(i, s, res.Steps[i])
	}
	return res, nil
}

type fakeJobs struct {
	jobs map[string]scheduler.Job
}

func newFakeJobs() *fakeJobs { return &fakeJobs{jobs: map[string]scheduler.Job{}} }

func (f *fakeJobs) ListJobs() []scheduler.Job {
	out := make([]scheduler.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

func (f *fakeJobs) AddJob(job scheduler.Job) error {
	if _, ok := f.jobs[job.Name]; ok {
		return fmt.Errorf("job %q already exists", job.Name)
	}
	f.jobs[job.Name] = job
	return nil
}

func (f *fakeJobs) RemoveJob(name string) error {
	j, ok := f.jobs[name]
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	if j.Source == "config" {
		return scheduler.ErrConfigProtected
	}
	delete(f.jobs, name)
	return nil
}

func testServer(t *testing.T, runner Runner, jobs JobAdmin) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(runner, jobs, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRequestEndpoint(t *testing.T) {
	runner := &fakeRunner{steps: []planner.Step{{Agent: "system", Tool: "echo"}}}
	srv := testServer(t, runner, nil)

	body := bytes.NewBufferString(`{"query": "do the thing"}`)
	resp, err := http.Post(srv.URL+"/v1/requests", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result orchestrator.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.WorkflowID != "wf-1" || result.Method != planner.MethodRuleBased {
		t.Errorf("result = %+v", result)
	}
	if len(result.Steps) != 1 || result.Steps[0].IsError {
		t.Errorf("steps = %+v", result.Steps)
	}
}

func TestRequestEndpointRejectsEmptyQuery(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, nil)

	resp, err := http.Post(srv.URL+"/v1/requests", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRequestEndpointPlanningFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("plan request: %w", &planner.PlanningError{Reason: "no agents"})}
	srv := testServer(t, runner, nil)

	resp, err := http.Post(srv.URL+"/v1/requests", "application/json", strings.NewReader(`{"query": "q"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(eb.Error, "no agents") {
		t.Errorf("error body = %q", eb.Error)
	}
}

func TestWebsocketStreamsSteps(t *testing.T) {
	runner := &fakeRunner{steps: []planner.Step{
		{Agent: "system", Tool: "echo"},
		{Agent: "database-ops", Tool: "health_check"},
	}}
	srv := testServer(t, runner, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := wsjson.Write(ctx, conn, requestBody{Query: "stream it"}); err != nil {
		t.Fatal(err)
	}

	var events []streamEvent
	for {
		var ev streamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event: %v (got %d events)", err, len(events))
		}
		events = append(events, ev)
		if ev.Type == "done" {
			break
		}
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 2 steps + done", len(events))
	}
	if events[0].Type != "step" || events[0].Agent != "system" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Index != 1 || events[1].Tool != "health_check" {
		t.Errorf("event 1 = %+v", events[1])
	}
	done := events[2]
	if done.Result == nil || done.Result.WorkflowID != "wf-1" || len(done.Result.Steps) != 2 {
		t.Errorf("done event = %+v", done)
	}
}

func TestJobEndpoints(t *testing.T) {
	jobs := newFakeJobs()
	jobs.jobs["static"] = scheduler.Job{Name: "static", Schedule: "@hourly", Query: "q", Source: "config"}
	srv := testServer(t, &fakeRunner{}, jobs)

	resp, err := http.Post(srv.URL+"/v1/jobs", "application/json",
		strings.NewReader(`{"name": "nightly", "schedule": "@daily", "query": "report"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/jobs")
	if err != nil {
		t.Fatal(err)
	}
	var listed []scheduler.Job
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if len(listed) != 2 {
		t.Errorf("listed %d jobs, want 2", len(listed))
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/jobs/nightly", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/v1/jobs/static", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("protected delete status = %d", resp.StatusCode)
	}
}

func TestJobEndpointsDisabled(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, nil)
	resp, err := http.Get(srv.URL + "/v1/jobs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when scheduler disabled", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, &fakeRunner{}, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
