package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/planmux/planmux/internal/agent"
	"github.com/planmux/planmux/internal/config"
	"github.com/planmux/planmux/internal/gateway"
	"github.com/planmux/planmux/internal/genclient"
	"github.com/planmux/planmux/internal/metrics"
	"github.com/planmux/planmux/internal/orchestrator"
	"github.com/planmux/planmux/internal/planner"
	"github.com/planmux/planmux/internal/provider"
	"github.com/planmux/planmux/internal/scheduler"
	"github.com/planmux/planmux/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	query := flag.String("query", "", "process one request and exit")
	file := flag.String("file", "", "file attached to the request")
	ctxPairs := flag.String("ctx", "", "request context as k=v,k=v pairs")
	serve := flag.Bool("serve", false, "run the gateway and scheduler")
	dataDir := flag.String("data-dir", "", "directory for persisted state")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *query, *file, *ctxPairs, *serve, *dataDir); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, query, file, ctxPairs string, serve bool, dataDir string) error {
	gen, err := buildGenerativeClient(cfg, logger)
	if err != nil {
		return err
	}

	agents, closeAgents, err := buildAgents(cfg, gen)
	if err != nil {
		return err
	}
	defer closeAgents()

	plan, err := planner.FromConfig(planner.Config{
		Strategy:          cfg.Planner.Strategy,
		LearningPrimary:   cfg.Planner.LearningPrimary,
		FallbackThreshold: cfg.Planner.FallbackThreshold,
		MaxRetries:        cfg.Planner.MaxRetries,
	}, agents, gen, logger)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	orch := orchestrator.New(plan, agents,
		orchestrator.WithPlanningTimeout(config.Duration(cfg.Planner.PlanningTimeout, orchestrator.DefaultPlanningTimeout)),
		orchestrator.WithStepTimeout(config.Duration(cfg.Planner.StepTimeout, orchestrator.DefaultStepTimeout)),
		orchestrator.WithContinueOnError(cfg.Planner.ContinueOnError),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(logger),
	)

	if query != "" {
		return runOnce(orch, query, file, ctxPairs)
	}
	if !serve {
		fmt.Println(version.Get())
		fmt.Printf("Ready: %d agents, %d providers. Use -query or -serve.\n",
			agents.Len(), len(cfg.Generative.Providers))
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(orch, dataDir, logger)
	if err := sched.Start(configJobs(cfg)); err != nil {
		return err
	}
	defer sched.Stop()

	gw := gateway.New(orch, sched, logger)
	return gw.ListenAndServe(ctx, cfg.Gateway.Addr)
}

func runOnce(orch *orchestrator.Orchestrator, query, file, ctxPairs string) error {
	result, err := orch.ProcessRequest(context.Background(), orchestrator.Request{
		Query:    query,
		FilePath: file,
		Context:  parseContextPairs(ctxPairs),
	})
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func buildGenerativeClient(cfg *config.Config, logger *slog.Logger) (*genclient.Client, error) {
	// Registration order is failover order.
	registry := provider.NewRegistry()
	for _, pc := range cfg.Generative.Providers {
		p, err := provider.FromConfig(provider.Config{
			ID:        pc.ID,
			API:       pc.API,
			BaseURL:   pc.BaseURL,
			APIKey:    pc.APIKey,
			Model:     pc.Model,
			MaxTokens: pc.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	cooldownCfg := genclient.CooldownConfig{
		Initial:    config.Duration(cfg.Generative.Cooldown.Initial, genclient.DefaultCooldownConfig().Initial),
		Max:        config.Duration(cfg.Generative.Cooldown.Max, genclient.DefaultCooldownConfig().Max),
		Multiplier: cfg.Generative.Cooldown.Multiplier,
	}
	var cooldowns genclient.CooldownStore
	if addr := cfg.Generative.Cooldown.RedisAddr; addr != "" {
		cooldowns = genclient.NewRedisCooldowns(cooldownCfg, addr)
	} else {
		cooldowns = genclient.NewMemoryCooldowns(cooldownCfg)
	}

	return genclient.New(registry.List(),
		genclient.WithTimeout(config.Duration(cfg.Generative.Timeout, genclient.DefaultTimeout)),
		genclient.WithCooldowns(cooldowns),
		genclient.WithLogger(logger),
	), nil
}

// buildAgents registers the built-in agents plus any Lua agents from
// config. The returned closer releases database handles.
func buildAgents(cfg *config.Config, gen agent.Generator) (*agent.Registry, func(), error) {
	registry := agent.NewRegistry()
	closers := []func() error{}
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if err := registry.Register(agent.SystemDescriptor(), agent.NewSystemAgent(gen)); err != nil {
		return nil, closeAll, err
	}
	if err := registry.Register(agent.EnergyDescriptor(), agent.NewEnergyAgent()); err != nil {
		return nil, closeAll, err
	}
	if err := registry.Register(agent.DocumentDescriptor(), agent.NewDocumentAgent()); err != nil {
		return nil, closeAll, err
	}

	dbAgent, err := agent.NewDatabaseOpsAgent(cfg.Agents.DatabaseDriver, cfg.Agents.DatabaseDSN)
	if err != nil {
		return nil, closeAll, err
	}
	closers = append(closers, dbAgent.Close)
	if err := registry.Register(agent.DatabaseOpsDescriptor(), dbAgent); err != nil {
		return nil, closeAll, err
	}

	for _, lc := range cfg.Agents.Lua {
		la, err := agent.NewLuaAgent(lc.Script)
		if err != nil {
			return nil, closeAll, fmt.Errorf("lua agent %q: %w", lc.Name, err)
		}
		if err := registry.Register(luaDescriptor(lc), la); err != nil {
			return nil, closeAll, err
		}
	}

	return registry, closeAll, nil
}

func luaDescriptor(lc config.LuaAgentConfig) agent.Descriptor {
	desc := agent.Descriptor{
		Name:        lc.Name,
		Description: lc.Description,
	}
	for _, t := range lc.Tools {
		spec := agent.ToolSpec{Name: t.Name, Description: t.Description}
		for _, p := range t.Parameters {
			spec.Parameters = append(spec.Parameters, agent.Parameter{
				Name:        p.Name,
				Description: p.Description,
				Required:    p.Required,
			})
		}
		desc.Tools = append(desc.Tools, spec)
	}
	return desc
}

func configJobs(cfg *config.Config) []scheduler.Job {
	jobs := make([]scheduler.Job, 0, len(cfg.Scheduler.Jobs))
	for _, j := range cfg.Scheduler.Jobs {
		jobs = append(jobs, scheduler.Job{
			Name:     j.Name,
			Schedule: j.Schedule,
			Query:    j.Query,
			Paused:   j.Paused,
		})
	}
	return jobs
}

func parseContextPairs(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			out[k] = v
		}
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
