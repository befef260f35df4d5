package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"backupd/internal/backup"
	"backupd/internal/events"
	"backupd/internal/schedule"
)

// launch starts one execution of sc. Bookkeeping happens up front: lastRun
// and runCount are recorded and the next cadence computed immediately, so a
// long-running backup never blocks future scheduling of the same policy.
// typ is the type to execute, which a manual trigger may override without
// touching the stored schedule.
func (s *Scheduler) launch(sc *schedule.Schedule, typ schedule.BackupType, now time.Time) *ActiveExecution {
	started := now
	var cadenceErr error
	if _, err := s.store.Mutate(sc.Name, func(rec *schedule.Schedule) error {
		rec.LastRun = &started
		rec.RunCount++
		if next, err := schedule.NextRun(rec.Frequency, now); err == nil {
			rec.NextRun = &next
		} else {
			rec.NextRun = nil
			cadenceErr = err
		}
		return nil
	}); err != nil {
		s.logger.Error().Err(err).Str("schedule", sc.Name).Msg("Failed to record execution start")
	}
	if cadenceErr != nil {
		s.bus.Publish(events.Event{Type: events.TypeScheduleError, Data: &ExecutionEvent{
			Schedule: sc.Name,
			Error:    cadenceErr.Error(),
		}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), sc.Timeout(s.cfg.DefaultTimeout))
	exec := &ActiveExecution{
		ID:           uuid.New().String(),
		ScheduleName: sc.Name,
		Type:         typ,
		StartedAt:    now,
		cancel:       cancel,
	}

	s.mu.Lock()
	s.active[exec.ID] = exec
	s.stats.TotalScheduled++
	s.mu.Unlock()
	s.metrics.Started.Inc()
	s.metrics.Active.Inc()

	s.logger.Info().
		Str("schedule", sc.Name).
		Str("type", string(typ)).
		Str("execution", exec.ID).
		Msg("Starting backup")
	s.bus.Publish(events.Event{Type: events.TypeBackupStarted, Data: &ExecutionEvent{
		Schedule:  sc.Name,
		Execution: exec.ID,
		Type:      typ,
	}})

	go s.await(ctx, exec)
	return exec.view()
}

// await blocks until the backup unit finishes or the execution's timeout
// fires, then routes the outcome through exactly one finish path. The
// timeout path cancels the context, signalling a cooperative backup unit to
// stop instead of running on as a zombie.
func (s *Scheduler) await(ctx context.Context, exec *ActiveExecution) {
	type outcome struct {
		res *backup.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var res *backup.Result
		var err error
		if exec.Type == schedule.TypeIncremental {
			res, err = s.backups.CreateIncrementalBackup(ctx)
		} else {
			res, err = s.backups.CreateFullBackup(ctx)
		}
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				s.finishTimeout(exec)
				return
			}
			s.finishFailure(exec, out.err)
			return
		}
		s.finishSuccess(exec, out.res)
	case <-ctx.Done():
		s.finishTimeout(exec)
	}
}

// unregister removes the execution in every terminal path and releases its
// timeout handle.
func (s *Scheduler) unregister(exec *ActiveExecution) {
	exec.cancel()
	s.mu.Lock()
	delete(s.active, exec.ID)
	s.mu.Unlock()
	s.metrics.Active.Dec()
}

func (s *Scheduler) finishSuccess(exec *ActiveExecution, res *backup.Result) {
	elapsed := s.now().Sub(exec.StartedAt)
	s.unregister(exec)

	if _, err := s.store.Mutate(exec.ScheduleName, func(sc *schedule.Schedule) error {
		sc.SuccessCount++
		return nil
	}); err != nil && !errors.Is(err, schedule.ErrNotFound) {
		s.logger.Error().Err(err).Str("schedule", exec.ScheduleName).Msg("Failed to record success")
	}

	s.mu.Lock()
	s.stats.TotalCompleted++
	s.stats.TotalExecutionMs += elapsed.Milliseconds()
	s.stats.AvgExecutionMs = s.stats.TotalExecutionMs / s.stats.TotalCompleted
	s.mu.Unlock()
	s.metrics.Completed.Inc()
	s.metrics.Duration.Observe(elapsed.Seconds())

	s.logger.Info().
		Str("schedule", exec.ScheduleName).
		Str("execution", exec.ID).
		Dur("elapsed", elapsed).
		Msg("Backup completed")
	s.bus.Publish(events.Event{Type: events.TypeBackupCompleted, Data: &ExecutionEvent{
		Schedule:    exec.ScheduleName,
		Execution:   exec.ID,
		Type:        exec.Type,
		Result:      res,
		ExecutionMs: elapsed.Milliseconds(),
	}})
	s.refreshNextScheduled()
}

// finishFailure applies retry policy: while budget remains, decrement it and
// pull nextRun in to a short-horizon retry; once exhausted, the schedule
// waits for its normal cadence.
func (s *Scheduler) finishFailure(exec *ActiveExecution, cause error) {
	s.unregister(exec)
	now := s.now()

	var retryAt *time.Time
	retriesLeft := 0
	_, err := s.store.Mutate(exec.ScheduleName, func(sc *schedule.Schedule) error {
		sc.FailureCount++
		if sc.RetryCount > 0 {
			sc.RetryCount--
			retry := now.Add(admissionRetryDelay)
			sc.NextRun = &retry
			retryAt = &retry
			retriesLeft = sc.RetryCount
		}
		return nil
	})
	switch {
	case err != nil && !errors.Is(err, schedule.ErrNotFound):
		s.logger.Error().Err(err).Str("schedule", exec.ScheduleName).Msg("Failed to record failure")
	case err == nil && retryAt != nil:
		s.logger.Warn().
			Str("schedule", exec.ScheduleName).
			Int("retries_left", retriesLeft).
			Time("retry_at", *retryAt).
			Msg("Backup failed, retry scheduled")
	case err == nil:
		s.logger.Warn().
			Str("schedule", exec.ScheduleName).
			Msg("Backup failed, retry budget exhausted")
	}

	s.mu.Lock()
	s.stats.TotalFailed++
	s.mu.Unlock()
	s.metrics.Failed.Inc()

	s.logger.Error().Err(cause).
		Str("schedule", exec.ScheduleName).
		Str("execution", exec.ID).
		Msg("Backup failed")
	s.bus.Publish(events.Event{Type: events.TypeBackupFailed, Data: &ExecutionEvent{
		Schedule:  exec.ScheduleName,
		Execution: exec.ID,
		Type:      exec.Type,
		Error:     cause.Error(),
	}})
	s.refreshNextScheduled()
}

// finishTimeout counts against failure statistics but does not consume
// retry budget; the schedule resumes on its normal cadence.
func (s *Scheduler) finishTimeout(exec *ActiveExecution) {
	s.unregister(exec)

	if _, err := s.store.Mutate(exec.ScheduleName, func(sc *schedule.Schedule) error {
		sc.FailureCount++
		return nil
	}); err != nil && !errors.Is(err, schedule.ErrNotFound) {
		s.logger.Error().Err(err).Str("schedule", exec.ScheduleName).Msg("Failed to record timeout")
	}

	s.mu.Lock()
	s.stats.TotalFailed++
	s.mu.Unlock()
	s.metrics.Timeouts.Inc()

	s.logger.Warn().
		Str("schedule", exec.ScheduleName).
		Str("execution", exec.ID).
		Time("started_at", exec.StartedAt).
		Msg("Backup timed out, cancellation signalled")
	s.bus.Publish(events.Event{Type: events.TypeBackupTimeout, Data: exec.view()})
	s.refreshNextScheduled()
}
