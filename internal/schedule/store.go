package schedule

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"backupd/internal/fsatomic"
)

// Store owns the persisted name -> schedule mapping. The file is rewritten
// in full on every mutation; write failures are logged and the in-memory
// state stays authoritative for the running process.
type Store struct {
	logger zerolog.Logger
	path   string
	now    func() time.Time

	mu        sync.RWMutex
	schedules map[string]*Schedule
}

// NewStore creates a store backed by the JSON file at path. Call Load before
// serving reads.
func NewStore(logger zerolog.Logger, path string) *Store {
	return &Store{
		logger:    logger.With().Str("component", "schedule-store").Logger(),
		path:      path,
		now:       time.Now,
		schedules: make(map[string]*Schedule),
	}
}

// SetClock overrides the time source; used by tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Load reads the persisted mapping. A missing or unparsable file falls back
// to the bootstrap defaults, which are persisted immediately.
func (s *Store) Load() error {
	var m map[string]*Schedule
	ok, err := fsatomic.LoadJSON(s.path, &m)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Schedule file unreadable, using bootstrap defaults")
	}
	if err != nil || !ok || len(m) == 0 {
		m = bootstrapSchedules(s.now())
		s.mu.Lock()
		s.schedules = m
		s.mu.Unlock()
		if err := s.Save(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to persist bootstrap schedules")
		}
		s.logger.Info().Int("count", len(m)).Msg("Initialized default schedules")
		return nil
	}
	for name, sched := range m {
		if sched.Name == "" {
			sched.Name = name
		}
	}
	s.mu.Lock()
	s.schedules = m
	s.mu.Unlock()
	s.logger.Info().Int("count", len(m)).Msg("Loaded schedules")
	return nil
}

// Save writes the full mapping atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	snapshot := make(map[string]*Schedule, len(s.schedules))
	for name, sched := range s.schedules {
		snapshot[name] = sched.Clone()
	}
	s.mu.RUnlock()
	return fsatomic.WithLock(s.path, func() error {
		return fsatomic.SaveJSON(s.path, snapshot, 0o600)
	})
}

// persist logs save failures instead of propagating them.
func (s *Store) persist() {
	if err := s.Save(); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("Failed to persist schedules")
	}
}

// Get returns a copy of the named schedule.
func (s *Store) Get(name string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return sched.Clone(), nil
}

// All returns copies of every schedule, sorted by name.
func (s *Store) All() []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counts returns the total and enabled schedule counts.
func (s *Store) Counts() (total, enabled int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total = len(s.schedules)
	for _, sched := range s.schedules {
		if sched.Enabled {
			enabled++
		}
	}
	return total, enabled
}

// Add creates a new schedule. The frequency is validated and the first
// nextRun computed before the record is stored and persisted.
func (s *Store) Add(sched *Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if !sched.Type.Valid() {
		return fmt.Errorf("invalid backup type: %q", sched.Type)
	}
	now := s.now()
	next, err := NextRun(sched.Frequency, now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.schedules[sched.Name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, sched.Name)
	}
	c := sched.Clone()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.NextRun = &next
	// Runtime bookkeeping always starts clean; clients cannot seed it.
	c.LastRun = nil
	c.RunCount = 0
	c.SuccessCount = 0
	c.FailureCount = 0
	s.schedules[c.Name] = c
	s.mu.Unlock()

	s.persist()
	s.logger.Info().Str("name", c.Name).Str("frequency", c.Frequency).Msg("Added schedule")
	return nil
}

// Update replaces the mutable fields of an existing schedule. A frequency
// change recomputes nextRun; counters and createdAt are preserved.
func (s *Store) Update(name string, upd *Schedule) (*Schedule, error) {
	if upd.Type != "" && !upd.Type.Valid() {
		return nil, fmt.Errorf("invalid backup type: %q", upd.Type)
	}
	now := s.now()
	freqChanged := false

	s.mu.Lock()
	existing, ok := s.schedules[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if upd.Frequency != "" && upd.Frequency != existing.Frequency {
		next, err := NextRun(upd.Frequency, now)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		existing.Frequency = upd.Frequency
		existing.NextRun = &next
		freqChanged = true
	}
	if upd.Type != "" {
		existing.Type = upd.Type
	}
	existing.Enabled = upd.Enabled
	existing.Priority = upd.Priority
	existing.RetryCount = upd.RetryCount
	if upd.TimeoutMs > 0 {
		existing.TimeoutMs = upd.TimeoutMs
	}
	existing.Conditions = nil
	if upd.Conditions != nil {
		cond := *upd.Conditions
		existing.Conditions = &cond
	}
	existing.UpdatedAt = now
	out := existing.Clone()
	s.mu.Unlock()

	s.persist()
	s.logger.Info().Str("name", name).Bool("frequency_changed", freqChanged).Msg("Updated schedule")
	return out, nil
}

// Put writes back a schedule mutated by the execution path. The record must
// already exist; updatedAt is bumped and the mapping persisted.
func (s *Store) Put(sched *Schedule) error {
	s.mu.Lock()
	if _, ok := s.schedules[sched.Name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, sched.Name)
	}
	c := sched.Clone()
	c.UpdatedAt = s.now()
	s.schedules[c.Name] = c
	s.mu.Unlock()

	s.persist()
	return nil
}

// Mutate applies fn to the named schedule atomically: read, modify and write
// back happen under a single hold of the write lock, so concurrent callers
// cannot lose each other's updates. fn runs on a copy; when it returns an
// error the stored record is left untouched.
func (s *Store) Mutate(name string, fn func(*Schedule) error) (*Schedule, error) {
	s.mu.Lock()
	sched, ok := s.schedules[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c := sched.Clone()
	if err := fn(c); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	c.UpdatedAt = s.now()
	s.schedules[name] = c
	out := c.Clone()
	s.mu.Unlock()

	s.persist()
	return out, nil
}

// Remove deletes a schedule.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	if _, ok := s.schedules[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.schedules, name)
	s.mu.Unlock()

	s.persist()
	s.logger.Info().Str("name", name).Msg("Removed schedule")
	return nil
}

// Toggle flips a schedule's enabled flag. Enabling recomputes nextRun so a
// long-disabled schedule does not fire immediately on a stale due time.
func (s *Store) Toggle(name string) (*Schedule, error) {
	now := s.now()

	s.mu.Lock()
	sched, ok := s.schedules[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	sched.Enabled = !sched.Enabled
	if sched.Enabled {
		if next, err := NextRun(sched.Frequency, now); err == nil {
			sched.NextRun = &next
		}
	}
	sched.UpdatedAt = now
	out := sched.Clone()
	s.mu.Unlock()

	s.persist()
	s.logger.Info().Str("name", name).Bool("enabled", out.Enabled).Msg("Toggled schedule")
	return out, nil
}

// Due returns copies of schedules eligible to run at now, sorted ascending
// by priority (lower value runs first).
func (s *Store) Due(now time.Time) []*Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*Schedule
	for _, sched := range s.schedules {
		if sched.Enabled && sched.NextRun != nil && !sched.NextRun.After(now) {
			due = append(due, sched.Clone())
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].Priority < due[j].Priority })
	return due
}

// NextScheduled returns the minimum nextRun across enabled schedules, or nil
// when nothing is scheduled.
func (s *Store) NextScheduled() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var min *time.Time
	for _, sched := range s.schedules {
		if !sched.Enabled || sched.NextRun == nil {
			continue
		}
		if min == nil || sched.NextRun.Before(*min) {
			t := *sched.NextRun
			min = &t
		}
	}
	return min
}

// bootstrapSchedules is the default policy set installed when no schedule
// file exists or it cannot be parsed.
func bootstrapSchedules(now time.Time) map[string]*Schedule {
	mk := func(name string, typ BackupType, freq string, prio, retries int, timeoutMs int64, cond *Conditions) *Schedule {
		sched := &Schedule{
			Name:       name,
			Enabled:    true,
			Type:       typ,
			Frequency:  freq,
			Priority:   prio,
			RetryCount: retries,
			TimeoutMs:  timeoutMs,
			Conditions: cond,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if next, err := NextRun(freq, now); err == nil {
			sched.NextRun = &next
		}
		return sched
	}
	return map[string]*Schedule{
		"critical-full": mk("critical-full", TypeFull, "0 */6 * * *", 1, 3, 3600000, &Conditions{
			MinFreeSpace:   10 << 30,
			MaxLoadAverage: 5.0,
		}),
		"rolling-incremental": mk("rolling-incremental", TypeIncremental, "0 */2 * * *", 5, 2, 1800000, &Conditions{
			MinFreeSpace: 5 << 30,
		}),
		"daily-full": mk("daily-full", TypeFull, "0 2 * * *", 3, 3, 7200000, &Conditions{
			TimeWindow: &TimeWindow{Start: 1, End: 5},
		}),
	}
}
