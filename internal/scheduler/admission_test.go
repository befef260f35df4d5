package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backupd/internal/resources"
	"backupd/internal/schedule"
)

func TestAdmitDeniesAtConcurrencyLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2}, &fakeBackup{}, &fakeSampler{usage: healthyUsage()})

	sc := baseSchedule("a", 1)
	if ok, _ := s.admit(sc, now); !ok {
		t.Fatal("idle scheduler should admit")
	}

	// Fill both slots.
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	s.active["x"] = &ActiveExecution{ID: "x", cancel: cancel}
	s.active["y"] = &ActiveExecution{ID: "y", cancel: cancel}
	s.mu.Unlock()

	ok, reason := s.admit(sc, now)
	if ok {
		t.Fatal("admission must be denied at the concurrency limit")
	}
	if !strings.Contains(reason, "concurrent") {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestAdmitResourceCeilings(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sc := baseSchedule("a", 1)

	cases := []struct {
		name  string
		usage resources.Usage
		want  bool
	}{
		{"healthy", healthyUsage(), true},
		{"cpu", func() resources.Usage { u := healthyUsage(); u.CPUPercent = 95; return u }(), false},
		{"memory", func() resources.Usage { u := healthyUsage(); u.MemoryPercent = 99; return u }(), false},
		{"disk", func() resources.Usage { u := healthyUsage(); u.DiskPercent = 99; return u }(), false},
	}
	for _, c := range cases {
		s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2, MonitorResources: true}, &fakeBackup{}, &fakeSampler{usage: c.usage})
		if ok, reason := s.admit(sc, now); ok != c.want {
			t.Errorf("%s: admit = %v (%s), want %v", c.name, ok, reason, c.want)
		}
	}
}

func TestAdmitCeilingsIgnoredWhenMonitoringOff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hot := healthyUsage()
	hot.CPUPercent = 99
	s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2, MonitorResources: false}, &fakeBackup{}, &fakeSampler{usage: hot})
	if ok, reason := s.admit(baseSchedule("a", 1), now); !ok {
		t.Fatalf("ceilings must not apply with monitoring off: %s", reason)
	}
}

func TestAdmitScheduleConditions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // hour 12

	mkSched := func(cond *schedule.Conditions) *schedule.Schedule {
		sc := baseSchedule("a", 1)
		sc.Conditions = cond
		return sc
	}

	t.Run("min free space", func(t *testing.T) {
		u := healthyUsage()
		u.DiskFreeBytes = 1 << 30
		s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2}, &fakeBackup{}, &fakeSampler{usage: u})
		if ok, _ := s.admit(mkSched(&schedule.Conditions{MinFreeSpace: 2 << 30}), now); ok {
			t.Fatal("should deny below minFreeSpace")
		}
		if ok, reason := s.admit(mkSched(&schedule.Conditions{MinFreeSpace: 1 << 20}), now); !ok {
			t.Fatalf("should admit above minFreeSpace: %s", reason)
		}
	})

	t.Run("max load average", func(t *testing.T) {
		u := healthyUsage()
		u.Load1 = 8.0
		s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2}, &fakeBackup{}, &fakeSampler{usage: u})
		if ok, _ := s.admit(mkSched(&schedule.Conditions{MaxLoadAverage: 5.0}), now); ok {
			t.Fatal("should deny above maxLoadAverage")
		}
	})

	t.Run("time window", func(t *testing.T) {
		s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2}, &fakeBackup{}, &fakeSampler{usage: healthyUsage()})
		if ok, _ := s.admit(mkSched(&schedule.Conditions{TimeWindow: &schedule.TimeWindow{Start: 1, End: 5}}), now); ok {
			t.Fatal("hour 12 is outside [1,5]")
		}
		if ok, reason := s.admit(mkSched(&schedule.Conditions{TimeWindow: &schedule.TimeWindow{Start: 10, End: 14}}), now); !ok {
			t.Fatalf("hour 12 is inside [10,14]: %s", reason)
		}
	})
}

func TestAdmitFailsOpenOnSamplerError(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, Config{MaxConcurrentBackups: 2, MonitorResources: true}, &fakeBackup{}, &fakeSampler{err: errors.New("procfs gone")})
	sc := baseSchedule("a", 1)
	sc.Conditions = &schedule.Conditions{MinFreeSpace: 1 << 40}
	if ok, reason := s.admit(sc, now); !ok {
		t.Fatalf("sampler failure must not deny admission: %s", reason)
	}
}
