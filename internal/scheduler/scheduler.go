// Package scheduler runs recurring requests on cron schedules. Jobs come
// from the static config or are added at runtime; dynamic jobs persist to
// the data directory and survive restarts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/planmux/planmux/internal/orchestrator"
)

// RequestRunner is the slice of the orchestrator the scheduler needs.
type RequestRunner interface {
	ProcessRequest(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Job is one recurring request. Schedule is a standard 5-field cron
// expression; @every and the other cron descriptors work too.
type Job struct {
	Name     string            `yaml:"name" json:"name"`
	Schedule string            `yaml:"schedule" json:"schedule"`
	Query    string            `yaml:"query" json:"query"`
	FilePath string            `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	Context  map[string]string `yaml:"context,omitempty" json:"context,omitempty"`
	Paused   bool              `yaml:"paused,omitempty" json:"paused,omitempty"`
	Source   string            `yaml:"source,omitempty" json:"source,omitempty"` // "config" or "dynamic"
}

var ErrConfigProtected = fmt.Errorf("config-defined jobs cannot be modified or removed")

type runningJob struct {
	job   Job
	entry cron.EntryID // zero when paused
}

// Scheduler owns the cron runner and the job table.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*runningJob
	runner  RequestRunner
	cron    *cron.Cron
	logger  *slog.Logger
	dataDir string

	jobTimeout time.Duration
}

func New(runner RequestRunner, dataDir string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:       make(map[string]*runningJob),
		runner:     runner,
		cron:       cron.New(),
		logger:     logger,
		dataDir:    dataDir,
		jobTimeout: 5 * time.Minute,
	}
}

// Start registers the static jobs plus any persisted dynamic jobs and
// launches the cron runner. Invalid jobs are skipped, not fatal.
func (s *Scheduler) Start(staticJobs []Job) error {
	for i := range staticJobs {
		staticJobs[i].Source = "config"
		if err := s.add(staticJobs[i]); err != nil {
			s.logger.Warn("skipping static job", "job", staticJobs[i].Name, "error", err)
		}
	}

	dynamicJobs, err := s.loadDynamic()
	if err != nil {
		s.logger.Warn("loading dynamic jobs", "error", err)
	}
	for _, j := range dynamicJobs {
		j.Source = "dynamic"
		if err := s.add(j); err != nil {
			s.logger.Warn("skipping dynamic job", "job", j.Name, "error", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AddJob registers a dynamic job at runtime and persists it.
func (s *Scheduler) AddJob(job Job) error {
	job.Source = "dynamic"
	if err := s.add(job); err != nil {
		return err
	}
	return s.persistDynamic()
}

// RemoveJob unschedules and forgets a dynamic job.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if rj.job.Source == "config" {
		s.mu.Unlock()
		return ErrConfigProtected
	}
	if rj.entry != 0 {
		s.cron.Remove(rj.entry)
	}
	delete(s.jobs, name)
	s.mu.Unlock()

	return s.persistDynamic()
}

// PauseJob unschedules a job without forgetting it.
func (s *Scheduler) PauseJob(name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if rj.entry != 0 {
		s.cron.Remove(rj.entry)
		rj.entry = 0
	}
	rj.job.Paused = true
	s.mu.Unlock()

	return s.persistDynamic()
}

// ResumeJob puts a paused job back on its schedule.
func (s *Scheduler) ResumeJob(name string) error {
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if !rj.job.Paused {
		s.mu.Unlock()
		return fmt.Errorf("job %q is not paused", name)
	}
	job := rj.job
	entry, err := s.schedule(job)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rj.entry = entry
	rj.job.Paused = false
	s.mu.Unlock()

	return s.persistDynamic()
}

// ListJobs returns a snapshot of every registered job.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, rj.job)
	}
	return out
}

func (s *Scheduler) GetJob(name string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rj, ok := s.jobs[name]
	if !ok {
		return Job{}, false
	}
	return rj.job, true
}

func (s *Scheduler) add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Query == "" {
		return fmt.Errorf("job %q has no query", job.Name)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule for job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already exists", job.Name)
	}

	rj := &runningJob{job: job}
	if !job.Paused {
		entry, err := s.schedule(job)
		if err != nil {
			return err
		}
		rj.entry = entry
	}
	s.jobs[job.Name] = rj
	return nil
}

func (s *Scheduler) schedule(job Job) (cron.EntryID, error) {
	return s.cron.AddFunc(job.Schedule, func() {
		s.execute(job)
	})
}

func (s *Scheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.runner.ProcessRequest(ctx, orchestrator.Request{
		Query:    job.Query,
		FilePath: job.FilePath,
		Context:  job.Context,
	})
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}

	failed := 0
	for _, step := range result.Steps {
		if step.IsError {
			failed++
		}
	}
	s.logger.Info("scheduled job finished",
		"job", job.Name,
		"workflow_id", result.WorkflowID,
		"method", result.Method,
		"steps", len(result.Steps),
		"failed_steps", failed,
		"elapsed", time.Since(start))
}

func (s *Scheduler) persistPath() string {
	return filepath.Join(s.dataDir, "scheduler", "jobs.yaml")
}

func (s *Scheduler) persistDynamic() error {
	if s.dataDir == "" {
		return nil
	}

	s.mu.RLock()
	var dynamicJobs []Job
	for _, rj := range s.jobs {
		if rj.job.Source == "dynamic" {
			dynamicJobs = append(dynamicJobs, rj.job)
		}
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.persistPath()), 0700); err != nil {
		return fmt.Errorf("creating scheduler dir: %w", err)
	}

	data, err := yaml.Marshal(dynamicJobs)
	if err != nil {
		return fmt.Errorf("marshaling jobs: %w", err)
	}
	return os.WriteFile(s.persistPath(), data, 0600)
}

func (s *Scheduler) loadDynamic() ([]Job, error) {
	if s.dataDir == "" {
		return nil, nil
	}

	data, err := os.ReadFile(s.persistPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}

	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing jobs file: %w", err)
	}
	return jobs, nil
}
