// Package gateway is the network surface: a JSON endpoint for one-shot
// requests, a websocket that streams step results as they complete, and
// the scheduler's job admin endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planmux/planmux/internal/agent"
	"github.com/planmux/planmux/internal/orchestrator"
	"github.com/planmux/planmux/internal/planner"
	"github.com/planmux/planmux/internal/scheduler"
	"github.com/planmux/planmux/internal/version"
)

const requestTimeout = 5 * time.Minute

// Runner is the slice of the orchestrator the gateway needs.
type Runner interface {
	ProcessRequest(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	ProcessRequestObserved(ctx context.Context, req orchestrator.Request, observe orchestrator.StepObserver) (*orchestrator.Result, error)
}

// JobAdmin is the slice of the scheduler the gateway needs. Nil disables
// the job endpoints.
type JobAdmin interface {
	ListJobs() []scheduler.Job
	AddJob(job scheduler.Job) error
	RemoveJob(name string) error
}

type requestBody struct {
	Query    string            `json:"query"`
	FilePath string            `json:"file_path,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
}

// streamEvent is one websocket frame: a step completion or the final
// result.
type streamEvent struct {
	Type   string               `json:"type"` // "step" or "done"
	Index  int                  `json:"index,omitempty"`
	Agent  string               `json:"agent,omitempty"`
	Tool   string               `json:"tool,omitempty"`
	Step   *agent.Result        `json:"step,omitempty"`
	Result *orchestrator.Result `json:"result,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Gateway struct {
	runner Runner
	jobs   JobAdmin
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(runner Runner, jobs JobAdmin, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		runner: runner,
		jobs:   jobs,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	g.mux.HandleFunc("POST /v1/requests", g.handleRequest)
	g.mux.HandleFunc("GET /v1/ws", g.handleWebsocket)
	g.mux.HandleFunc("GET /v1/jobs", g.handleListJobs)
	g.mux.HandleFunc("POST /v1/jobs", g.handleAddJob)
	g.mux.HandleFunc("DELETE /v1/jobs/{name}", g.handleRemoveJob)
	g.mux.HandleFunc("GET /healthz", g.handleHealth)
	g.mux.Handle("GET /metrics", promhttp.Handler())
	return g
}

func (g *Gateway) Handler() http.Handler { return g.mux }

// ListenAndServe blocks until ctx is canceled, then drains with a short
// shutdown grace period.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	g.logger.Info("gateway listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if body.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := g.runner.ProcessRequest(ctx, orchestrator.Request{
		Query:    body.Query,
		FilePath: body.FilePath,
		Context:  body.Context,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		if planner.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleWebsocket reads one request off the socket, streams a "step" event
// per completed step, then a final "done" event with the full result.
func (g *Gateway) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var body requestBody
	if err := wsjson.Read(ctx, conn, &body); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "unreadable request")
		return
	}
	if body.Query == "" {
		conn.Close(websocket.StatusInvalidFramePayloadData, "query is required")
		return
	}

	result, err := g.runner.ProcessRequestObserved(ctx, orchestrator.Request{
		Query:    body.Query,
		FilePath: body.FilePath,
		Context:  body.Context,
	}, func(index int, step planner.Step, res agent.Result) {
		event := streamEvent{
			Type:  "step",
			Index: index,
			Agent: step.Agent,
			Tool:  step.Tool,
			Step:  &res,
		}
		if err := wsjson.Write(ctx, conn, event); err != nil {
			g.logger.Debug("step stream write failed", "error", err)
		}
	})
	if err != nil {
		wsjson.Write(ctx, conn, errorBody{Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "planning failed")
		return
	}

	if err := wsjson.Write(ctx, conn, streamEvent{Type: "done", Result: result}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (g *Gateway) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if g.jobs == nil {
		writeError(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	writeJSON(w, http.StatusOK, g.jobs.ListJobs())
}

func (g *Gateway) handleAddJob(w http.ResponseWriter, r *http.Request) {
	if g.jobs == nil {
		writeError(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	var job scheduler.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode job: %v", err))
		return
	}
	if err := g.jobs.AddJob(job); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (g *Gateway) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	if g.jobs == nil {
		writeError(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	name := r.PathValue("name")
	if err := g.jobs.RemoveJob(name); err != nil {
		status := http.StatusNotFound
		if errors.Is(err, scheduler.ErrConfigProtected) {
			status = http.StatusForbidden
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
