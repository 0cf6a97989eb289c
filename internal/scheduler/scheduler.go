// Package scheduler runs a long-lived loop: a single goroutine that
// wakes every minute, checks each configured
// job's schedule, and dispatches due jobs to the Daily Computer, the
// Performance Tracker, or the market-indices cache refresh. It
// deliberately does not pull in a cron library (see DESIGN.md): the
// job set is small and fixed, and a plain HH:MM / every-N-minutes
// schedule is simpler to reason about than a five-field cron parser
// for the handful of schedules this core needs.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/eastmoney-sub000/factord/internal/compute"
	"github.com/eastmoney-sub000/factord/internal/domain/tradedate"
	"github.com/eastmoney-sub000/factord/internal/perf"
)

// JobType discriminates the fixed set of recurring jobs this core runs.
type JobType string

const (
	JobDailyCompute     JobType = "daily_compute"
	JobPerformanceEval  JobType = "performance_eval"
	JobIndicesRefresh   JobType = "indices_refresh"
)

// Job is one scheduled unit of work, loaded from YAML.
type Job struct {
	Name    string  `yaml:"name"`
	Type    JobType `yaml:"type"`
	Enabled bool    `yaml:"enabled"`

	// At is a daily HH:MM trigger (local time), used by daily_compute
	// and performance_eval.
	At string `yaml:"at"`

	// EveryMinutes is an interval trigger, used by indices_refresh
	// (defaults to every 5 minutes).
	EveryMinutes int `yaml:"every_minutes"`

	// FundUniverse selects which fund universe daily_compute runs
	// against; ignored for other job types.
	FundUniverse string `yaml:"fund_universe"`
}

// GlobalConfig holds scheduler-wide settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	Timezone string `yaml:"timezone"`
}

// Config is the full YAML-loaded scheduler configuration.
type Config struct {
	Jobs   []Job        `yaml:"jobs"`
	Global GlobalConfig `yaml:"global"`
}

// LoadConfig reads and parses a scheduler config file, applying
// defaults for any unset global setting.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scheduler config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scheduler config: %w", err)
	}
	if cfg.Global.LogLevel == "" {
		cfg.Global.LogLevel = "info"
	}
	if cfg.Global.Timezone == "" {
		cfg.Global.Timezone = "UTC"
	}
	return cfg, nil
}

// JobResult reports one job run's outcome for logging/status.
type JobResult struct {
	JobName   string
	StartTime time.Time
	EndTime   time.Time
	Success   bool
	Error     string
}

// IndicesRefresher runs the market-indices cache refresh; a narrow
// interface so the scheduler doesn't depend on a concrete cache type.
type IndicesRefresher interface {
	RefreshIndices(ctx context.Context) error
}

// jobMetrics is the narrow interface RunJob uses to record outcomes.
// internal/metrics.Registry satisfies it; left nil, nothing is recorded.
type jobMetrics interface {
	ObserveSchedulerJob(job, outcome string)
}

// Scheduler drives the configured jobs against the Daily Computer and
// Performance Tracker. Its own state is the last-run timestamp per job
// (to detect due triggers), its start time and a running flag; it never
// holds a second lock alongside the components it calls.
type Scheduler struct {
	cfg       Config
	computer  *compute.Computer
	tracker   *perf.Tracker
	indices   IndicesRefresher
	metrics   jobMetrics

	mu        sync.Mutex
	lastRun   map[string]time.Time
	startTime time.Time
	running   bool
}

// New builds a Scheduler. indices may be nil, in which case
// indices_refresh jobs are skipped with a warning.
func New(cfg Config, computer *compute.Computer, tracker *perf.Tracker, indices IndicesRefresher) *Scheduler {
	return &Scheduler{cfg: cfg, computer: computer, tracker: tracker, indices: indices, lastRun: map[string]time.Time{}}
}

// SetMetrics attaches a metrics sink; m may be nil to disable recording.
func (s *Scheduler) SetMetrics(m jobMetrics) {
	s.metrics = m
}

// ListJobs returns the configured jobs.
func (s *Scheduler) ListJobs() []Job { return s.cfg.Jobs }

// Start blocks, waking every minute to check and dispatch due jobs,
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	log.Info().Int("jobs", len(s.cfg.Jobs)).Msg("scheduler starting")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.checkAndRunJobs(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			s.checkAndRunJobs(ctx)
		}
	}
}

func (s *Scheduler) checkAndRunJobs(ctx context.Context) {
	now := time.Now()
	for _, job := range s.cfg.Jobs {
		if !job.Enabled {
			continue
		}
		if !s.isDue(job, now) {
			continue
		}
		s.mu.Lock()
		s.lastRun[job.Name] = now
		s.mu.Unlock()

		go func(j Job) {
			result := s.RunJob(ctx, j)
			if !result.Success {
				log.Error().Str("job", result.JobName).Str("error", result.Error).Msg("scheduled job failed")
			} else {
				log.Info().Str("job", result.JobName).Dur("took", result.EndTime.Sub(result.StartTime)).Msg("scheduled job completed")
			}
		}(job)
	}
}

// isDue reports whether job should fire at now, given its last run.
func (s *Scheduler) isDue(job Job, now time.Time) bool {
	s.mu.Lock()
	last, ran := s.lastRun[job.Name]
	s.mu.Unlock()

	switch job.Type {
	case JobIndicesRefresh:
		interval := job.EveryMinutes
		if interval <= 0 {
			interval = 5
		}
		return !ran || now.Sub(last) >= time.Duration(interval)*time.Minute
	case JobDailyCompute, JobPerformanceEval:
		if job.At == "" {
			return false
		}
		hh, mm, ok := parseHHMM(job.At)
		if !ok {
			return false
		}
		due := now.Hour() == hh && now.Minute() == mm
		alreadyToday := ran && sameDay(last, now)
		return due && !alreadyToday
	default:
		return false
	}
}

func parseHHMM(s string) (hh, mm int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RunJob executes a single named job immediately, independent of its
// schedule, used both by the minute-tick loop and by an operator's
// manual "run now" CLI invocation.
func (s *Scheduler) RunJob(ctx context.Context, job Job) JobResult {
	result := JobResult{JobName: job.Name, StartTime: time.Now()}

	var err error
	switch job.Type {
	case JobDailyCompute:
		err = s.runDailyCompute(ctx, job)
	case JobPerformanceEval:
		err = s.runPerformanceEval(ctx)
	case JobIndicesRefresh:
		err = s.runIndicesRefresh(ctx)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	result.EndTime = time.Now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
	}
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failed"
		}
		s.metrics.ObserveSchedulerJob(job.Name, outcome)
	}
	return result
}

func (s *Scheduler) runDailyCompute(ctx context.Context, job Job) error {
	if s.computer == nil {
		return fmt.Errorf("daily compute job configured but no Computer is wired")
	}
	trade := tradedate.Today()

	if _, err := s.computer.RunStock(ctx, trade); err != nil {
		return fmt.Errorf("compute stock factors: %w", err)
	}

	universe := compute.FundUniverse(job.FundUniverse)
	if universe == "" {
		universe = compute.FundUniverseTracked
	}
	if _, err := s.computer.RunFund(ctx, trade, universe); err != nil {
		return fmt.Errorf("compute fund factors: %w", err)
	}
	return nil
}

func (s *Scheduler) runPerformanceEval(ctx context.Context) error {
	if s.tracker == nil {
		return fmt.Errorf("performance eval job configured but no Tracker is wired")
	}
	n7, n30, err := s.tracker.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("performance tracker sweep: %w", err)
	}
	log.Info().Int("evaluated_7d", n7).Int("evaluated_30d", n30).Msg("performance tracker sweep complete")
	return nil
}

func (s *Scheduler) runIndicesRefresh(ctx context.Context) error {
	if s.indices == nil {
		log.Warn().Msg("indices_refresh job is enabled but no IndicesRefresher is wired, skipping")
		return nil
	}
	return s.indices.RefreshIndices(ctx)
}
