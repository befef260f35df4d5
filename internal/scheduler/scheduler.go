// Package scheduler decides when backup jobs run. A single tick loop reads
// due schedules from the store in priority order, gates each through
// admission, and hands admitted ones to the execution path, which tracks
// in-flight backups, applies timeout and retry policy, and writes results
// back through the store.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"backupd/internal/backup"
	"backupd/internal/events"
	"backupd/internal/resources"
	"backupd/internal/schedule"
)

// admissionRetryDelay is how far out a denied-but-due or failed-with-budget
// schedule is pushed before re-evaluation.
const admissionRetryDelay = 5 * time.Minute

// Config holds the scheduler's tunables. Zero values get defaults.
type Config struct {
	MaxConcurrentBackups int
	MonitorResources     bool
	MaxCPUPercent        float64
	MaxMemoryPercent     float64
	MaxDiskPercent       float64
	TickInterval         time.Duration
	WarmupDelay          time.Duration
	DefaultTimeout       time.Duration
	DrainTimeout         time.Duration
	DrainPoll            time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentBackups <= 0 {
		c.MaxConcurrentBackups = 2
	}
	if c.MaxCPUPercent <= 0 {
		c.MaxCPUPercent = 80
	}
	if c.MaxMemoryPercent <= 0 {
		c.MaxMemoryPercent = 85
	}
	if c.MaxDiskPercent <= 0 {
		c.MaxDiskPercent = 90
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.WarmupDelay <= 0 {
		c.WarmupDelay = 5 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = time.Hour
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.DrainPoll <= 0 {
		c.DrainPoll = 500 * time.Millisecond
	}
	return c
}

// ActiveExecution tracks one in-flight backup between start and terminal
// outcome. The cancel func doubles as the timeout handle: firing it signals
// the backup unit to stop.
type ActiveExecution struct {
	ID           string              `json:"id"`
	ScheduleName string              `json:"scheduleName"`
	Type         schedule.BackupType `json:"type"`
	StartedAt    time.Time           `json:"startedAt"`

	cancel context.CancelFunc
}

func (e *ActiveExecution) view() *ActiveExecution {
	c := *e
	c.cancel = nil
	return &c
}

// Scheduler is constructed with its collaborators injected; it owns the
// ActiveExecution set and all aggregate statistics.
type Scheduler struct {
	logger  zerolog.Logger
	cfg     Config
	store   *schedule.Store
	backups backup.Manager
	sampler resources.Sampler
	bus     *events.Bus
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	active  map[string]*ActiveExecution
	stats   Stats
}

// New wires a scheduler. The store must already be loaded.
func New(logger zerolog.Logger, cfg Config, store *schedule.Store, backups backup.Manager, sampler resources.Sampler, bus *events.Bus) *Scheduler {
	s := &Scheduler{
		logger:  logger.With().Str("component", "backup-scheduler").Logger(),
		cfg:     cfg.withDefaults(),
		store:   store,
		backups: backups,
		sampler: sampler,
		bus:     bus,
		metrics: NewMetrics(),
		now:     time.Now,
		active:  make(map[string]*ActiveExecution),
	}
	s.refreshNextScheduled()
	s.bus.Publish(events.Event{Type: events.TypeInitialized})
	return s
}

// SetClock overrides the time source; used by tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Metrics exposes the scheduler's prometheus registry.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// Start launches the tick loop: one warm-up tick shortly after start, then
// one tick per interval. Safe to call when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.run(stopCh)
	s.logger.Info().
		Dur("interval", s.cfg.TickInterval).
		Int("max_concurrent", s.cfg.MaxConcurrentBackups).
		Msg("Scheduler started")
	s.bus.Publish(events.Event{Type: events.TypeStarted})
}

// Stop halts the tick loop without waiting for in-flight executions.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler stopped")
	s.bus.Publish(events.Event{Type: events.TypeStopped})
}

// Shutdown stops ticking, waits up to DrainTimeout for active executions to
// finish, then persists final state unconditionally.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	deadline := time.After(s.cfg.DrainTimeout)
drain:
	for s.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			break drain
		case <-deadline:
			break drain
		case <-time.After(s.cfg.DrainPoll):
		}
	}
	if n := s.ActiveCount(); n > 0 {
		s.logger.Warn().Int("active", n).Msg("Executions still outstanding after drain, shutting down anyway")
	}

	err := s.store.Save()
	s.bus.Publish(events.Event{Type: events.TypeShutdown})
	return err
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ActiveCount returns the number of in-flight executions.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) run(stopCh chan struct{}) {
	warmup := time.NewTimer(s.cfg.WarmupDelay)
	defer warmup.Stop()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-warmup.C:
			s.tick()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick is one evaluation cycle. Due schedules are processed sequentially in
// priority order with admission re-checked before each start, so a schedule
// late in the list can lose the last concurrency slot to an earlier one.
func (s *Scheduler) tick() {
	now := s.now()
	checked := now
	s.mu.Lock()
	s.stats.LastScheduleCheck = &checked
	s.mu.Unlock()

	for _, sc := range s.store.Due(now) {
		ok, reason := s.admit(sc, now)
		if !ok {
			s.deferSchedule(sc, now, reason)
			continue
		}
		s.launch(sc, sc.Type, now)
	}

	s.refreshNextScheduled()
}

// deferSchedule pushes a denied-but-due schedule out by the retry delay so
// it is re-evaluated instead of starved.
func (s *Scheduler) deferSchedule(sc *schedule.Schedule, now time.Time, reason string) {
	next := now.Add(admissionRetryDelay)
	if _, err := s.store.Mutate(sc.Name, func(rec *schedule.Schedule) error {
		rec.NextRun = &next
		return nil
	}); err != nil {
		s.logger.Error().Err(err).Str("schedule", sc.Name).Msg("Failed to defer schedule")
		return
	}
	s.mu.Lock()
	s.stats.TotalSkipped++
	s.mu.Unlock()
	s.metrics.Skipped.Inc()
	s.logger.Debug().
		Str("schedule", sc.Name).
		Str("reason", reason).
		Time("next_attempt", next).
		Msg("Admission denied, deferred")
}

func (s *Scheduler) refreshNextScheduled() {
	next := s.store.NextScheduled()
	s.mu.Lock()
	s.stats.NextScheduledBackup = next
	s.mu.Unlock()
}

// TriggerBackup starts the named schedule immediately, bypassing admission
// and the due-time check. An optional type override applies to this run
// only; the stored schedule keeps its configured type.
func (s *Scheduler) TriggerBackup(name string, override schedule.BackupType) (*ActiveExecution, error) {
	sc, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}
	typ := sc.Type
	if override != "" {
		if !override.Valid() {
			return nil, fmt.Errorf("invalid backup type: %q", override)
		}
		typ = override
	}
	s.logger.Info().Str("schedule", name).Str("type", string(typ)).Msg("Manually triggered backup")
	return s.launch(sc, typ, s.now()), nil
}

// Schedule command surface. Mutations go through the store and publish an
// event on success; malformed input surfaces synchronously to the caller.

func (s *Scheduler) AddSchedule(sc *schedule.Schedule) error {
	if err := s.store.Add(sc); err != nil {
		return err
	}
	s.refreshNextScheduled()
	s.bus.Publish(events.Event{Type: events.TypeScheduleAdded, Data: sc.Name})
	return nil
}

func (s *Scheduler) UpdateSchedule(name string, upd *schedule.Schedule) (*schedule.Schedule, error) {
	out, err := s.store.Update(name, upd)
	if err != nil {
		return nil, err
	}
	s.refreshNextScheduled()
	s.bus.Publish(events.Event{Type: events.TypeScheduleUpdated, Data: name})
	return out, nil
}

func (s *Scheduler) RemoveSchedule(name string) error {
	if err := s.store.Remove(name); err != nil {
		return err
	}
	s.refreshNextScheduled()
	s.bus.Publish(events.Event{Type: events.TypeScheduleRemoved, Data: name})
	return nil
}

func (s *Scheduler) ToggleSchedule(name string) (*schedule.Schedule, error) {
	out, err := s.store.Toggle(name)
	if err != nil {
		return nil, err
	}
	s.refreshNextScheduled()
	s.bus.Publish(events.Event{Type: events.TypeScheduleToggled, Data: name})
	return out, nil
}

func (s *Scheduler) GetSchedule(name string) (*schedule.Schedule, error) {
	return s.store.Get(name)
}

func (s *Scheduler) ListSchedules() []*schedule.Schedule {
	return s.store.All()
}

// Status returns the aggregate view consumed by operators.
func (s *Scheduler) Status() Status {
	total, enabled := s.store.Counts()

	s.mu.Lock()
	st := Status{
		Running:          s.running,
		ActiveExecutions: len(s.active),
		TotalSchedules:   total,
		EnabledSchedules: enabled,
		Stats:            s.stats,
	}
	for _, e := range s.active {
		st.Active = append(st.Active, e.view())
	}
	s.mu.Unlock()

	sort.Slice(st.Active, func(i, j int) bool {
		return st.Active[i].StartedAt.Before(st.Active[j].StartedAt)
	})
	st.Limits = Limits{
		MaxConcurrentBackups: s.cfg.MaxConcurrentBackups,
		MaxCPUPercent:        s.cfg.MaxCPUPercent,
		MaxMemoryPercent:     s.cfg.MaxMemoryPercent,
		MaxDiskPercent:       s.cfg.MaxDiskPercent,
		MonitorResources:     s.cfg.MonitorResources,
	}
	return st
}
