// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobRunning is returned when a job is triggered while a previous run is still in progress
var ErrJobRunning = errors.New("job already running")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus describes one registered job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"next_run"`
	LastRun   *time.Time `json:"last_run"`
	LastError string     `json:"last_error,omitempty"`
}

// Status is a snapshot of the scheduler
type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// registration tracks a job added to cron
type registration struct {
	id        cron.EntryID
	name      string
	schedule  string
	lastRun   *time.Time
	lastError string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	running bool
	jobs    []*registration
	active  map[string]bool // job names with a run in progress
}

// New creates a new scheduler. Schedules have a seconds field and are
// evaluated in loc (UTC when nil).
func New(loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		log:    log.With().Str("component", "scheduler").Logger(),
		active: make(map[string]bool),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Scheduler already running, skipping start")
		return
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"         - Every 5 minutes
//   - "@hourly"               - Every hour
//   - "0 30 8 * * MON-FRI"    - 8:30 AM weekdays
//   - "@every 30s"            - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	reg := &registration{name: job.Name(), schedule: schedule}

	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(job); errors.Is(err, ErrJobRunning) {
			s.log.Warn().Str("job", job.Name()).Msg("Previous run still in progress, skipping")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}
	reg.id = id

	s.mu.Lock()
	s.jobs = append(s.jobs, reg)
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule). The run is recorded
// in Status like a scheduled one and never overlaps another run of the same job.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.execute(job)
}

// execute runs job unless a run of the same name is in progress, and
// records the outcome on every registration of that name
func (s *Scheduler) execute(job Job) (err error) {
	name := job.Name()
	if !s.begin(name) {
		return ErrJobRunning
	}

	s.log.Debug().Str("job", name).Msg("Running job")

	// A panicking job must not take the scheduler down
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error().Interface("panic", r).Str("job", name).Msg("Job panicked")
		}
		s.finish(name, err)
	}()

	err = job.Run()
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", name).
			Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Msg("Job completed")
	return nil
}

func (s *Scheduler) begin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[name] {
		return false
	}
	s.active[name] = true
	return true
}

func (s *Scheduler) finish(name string, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, name)
	for _, reg := range s.jobs {
		if reg.name != name {
			continue
		}
		reg.lastRun = &now
		reg.lastError = ""
		if err != nil {
			reg.lastError = err.Error()
		}
	}
}

// Status returns the registered jobs with their next run times
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{Running: s.running, Jobs: make([]JobStatus, 0, len(s.jobs))}
	for _, reg := range s.jobs {
		js := JobStatus{
			Name:      reg.name,
			Schedule:  reg.schedule,
			Running:   s.active[reg.name],
			LastRun:   reg.lastRun,
			LastError: reg.lastError,
		}
		if s.running {
			if next := s.cron.Entry(reg.id).Next; !next.IsZero() {
				js.NextRun = &next
			}
		}
		status.Jobs = append(status.Jobs, js)
	}

	sort.SliceStable(status.Jobs, func(i, j int) bool {
		return status.Jobs[i].Name < status.Jobs[j].Name
	})
	return status
}
