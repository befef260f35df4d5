package scheduler

import (
	"context"
	"fmt"
	"time"

	"backupd/internal/resources"
	"backupd/internal/schedule"
)

// admit decides whether a due schedule may start now. Checks run in order:
// concurrency limit, global resource ceilings (when monitoring is on), then
// the schedule's own conditions. Nothing is cached; every call samples
// fresh. The returned reason is empty on admission.
func (s *Scheduler) admit(sc *schedule.Schedule, now time.Time) (bool, string) {
	s.mu.Lock()
	activeCount := len(s.active)
	s.mu.Unlock()
	if activeCount >= s.cfg.MaxConcurrentBackups {
		return false, fmt.Sprintf("max concurrent backups reached (%d)", s.cfg.MaxConcurrentBackups)
	}

	cond := sc.Conditions
	needSample := s.cfg.MonitorResources ||
		(cond != nil && (cond.MinFreeSpace > 0 || cond.MaxLoadAverage > 0))

	var usage resources.Usage
	sampled := false
	if needSample {
		u, err := s.sampler.Snapshot(context.Background())
		if err != nil {
			// Fail open on sampling errors rather than starve every
			// resource-gated schedule behind a broken sampler.
			s.logger.Warn().Err(err).Msg("Resource sampling failed, skipping resource checks")
		} else {
			usage = u
			sampled = true
		}
	}

	if s.cfg.MonitorResources && sampled {
		if usage.CPUPercent > s.cfg.MaxCPUPercent {
			return false, fmt.Sprintf("cpu usage %.1f%% above ceiling %.1f%%", usage.CPUPercent, s.cfg.MaxCPUPercent)
		}
		if usage.MemoryPercent > s.cfg.MaxMemoryPercent {
			return false, fmt.Sprintf("memory usage %.1f%% above ceiling %.1f%%", usage.MemoryPercent, s.cfg.MaxMemoryPercent)
		}
		if usage.DiskPercent > s.cfg.MaxDiskPercent {
			return false, fmt.Sprintf("disk usage %.1f%% above ceiling %.1f%%", usage.DiskPercent, s.cfg.MaxDiskPercent)
		}
	}

	if cond != nil {
		if cond.MinFreeSpace > 0 && sampled && usage.DiskFreeBytes < uint64(cond.MinFreeSpace) {
			return false, fmt.Sprintf("free space %d below schedule minimum %d", usage.DiskFreeBytes, cond.MinFreeSpace)
		}
		if cond.MaxLoadAverage > 0 && sampled && usage.Load1 > cond.MaxLoadAverage {
			return false, fmt.Sprintf("load average %.2f above schedule maximum %.2f", usage.Load1, cond.MaxLoadAverage)
		}
		if cond.TimeWindow != nil && !cond.TimeWindow.Contains(now.Hour()) {
			return false, fmt.Sprintf("hour %d outside window [%d,%d]", now.Hour(), cond.TimeWindow.Start, cond.TimeWindow.End)
		}
	}

	return true, ""
}
