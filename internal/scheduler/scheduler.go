// Package scheduler runs the recurring maintenance tasks: library
// scans, search batches, health sweeps, dedup, cleanup, and backups.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/events"
)

// TaskFunc is one schedulable unit of work.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes a recurring task.
type TaskConfig struct {
	ID         string
	Name       string
	Cron       string
	Func       TaskFunc
	RunOnStart bool
}

// TaskInfo is the externally visible state of one task.
type TaskInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Cron      string     `json:"cron"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type taskEntry struct {
	config    TaskConfig
	job       gocron.Job
	running   bool
	lastRun   *time.Time
	lastError string
}

// Scheduler owns the gocron instance and the per-task state. Tasks are
// non-reentrant: a tick that lands while the previous run is still
// going is skipped, not queued.
type Scheduler struct {
	gocron gocron.Scheduler
	bus    *events.Bus
	logger zerolog.Logger
	tasks  map[string]*taskEntry
	mu     sync.RWMutex
}

// New creates an empty scheduler.
func New(bus *events.Bus, logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, errkind.Newf(errkind.Internal, "create scheduler: %w", err)
	}
	return &Scheduler{
		gocron: gs,
		bus:    bus,
		logger: logger.With().Str("component", "scheduler").Logger(),
		tasks:  make(map[string]*taskEntry),
	}, nil
}

// Register adds a task. An empty cron disables scheduling but keeps the
// task available for manual triggering.
func (s *Scheduler) Register(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return errkind.Newf(errkind.Configuration, "task %q already registered", config.ID)
	}

	entry := &taskEntry{config: config}
	if config.Cron != "" {
		job, err := s.gocron.NewJob(
			gocron.CronJob(config.Cron, false),
			gocron.NewTask(func() { s.execute(config.ID) }),
			gocron.WithName(config.Name),
			gocron.WithTags(config.ID),
		)
		if err != nil {
			return errkind.Newf(errkind.Configuration, "schedule task %q: %w", config.ID, err)
		}
		entry.job = job
	}
	s.tasks[config.ID] = entry

	s.logger.Info().
		Str("id", config.ID).
		Str("cron", config.Cron).
		Bool("run_on_start", config.RunOnStart).
		Msg("task registered")
	return nil
}

// Start launches the cron loop and fires RunOnStart tasks.
func (s *Scheduler) Start() {
	s.gocron.Start()

	s.mu.RLock()
	var startup []string
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			startup = append(startup, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range startup {
		go s.execute(id)
	}
}

// Stop shuts the cron loop down, waiting for in-flight jobs.
func (s *Scheduler) Stop() error {
	return s.gocron.Shutdown()
}

// RunNow triggers a task manually. A task already running returns a
// contention error instead of queueing a second run.
func (s *Scheduler) RunNow(taskID string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskID]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return errkind.Newf(errkind.Configuration, "task %q not found", taskID)
	}
	if running {
		return errkind.Newf(errkind.Contention, "task %q already running", taskID)
	}
	go s.execute(taskID)
	return nil
}

func (s *Scheduler) execute(taskID string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	started := time.Now()
	_ = s.bus.Publish(events.TaskStarted, events.Payload{"task": taskID})
	s.logger.Info().Str("task", taskID).Msg("task started")

	err := entry.config.Func(context.Background())

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &started
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.mu.Unlock()

	took := time.Since(started)
	errText := ""
	if err != nil {
		errText = err.Error()
		s.logger.Error().Err(err).Str("task", taskID).Dur("took", took).Msg("task failed")
	} else {
		s.logger.Info().Str("task", taskID).Dur("took", took).Msg("task finished")
	}
	_ = s.bus.Publish(events.TaskFinished, events.Payload{
		"task":        taskID,
		"duration_ms": took.Milliseconds(),
		"error":       errText,
	})
}

// Tasks lists all registered tasks with their current state.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		out = append(out, s.infoLocked(entry))
	}
	return out
}

// Task returns one task's state.
func (s *Scheduler) Task(taskID string) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil, errkind.Newf(errkind.Configuration, "task %q not found", taskID)
	}
	info := s.infoLocked(entry)
	return &info, nil
}

func (s *Scheduler) infoLocked(entry *taskEntry) TaskInfo {
	info := TaskInfo{
		ID:        entry.config.ID,
		Name:      entry.config.Name,
		Cron:      entry.config.Cron,
		Running:   entry.running,
		LastRun:   entry.lastRun,
		LastError: entry.lastError,
	}
	if entry.job != nil {
		if next, err := entry.job.NextRun(); err == nil {
			info.NextRun = &next
		}
	}
	return info
}
