package schedule

import (
	"encoding/json"
	"time"
)

// BackupType selects which operation of the backup unit a schedule invokes.
type BackupType string

const (
	TypeFull        BackupType = "full"
	TypeIncremental BackupType = "incremental"
)

// Valid reports whether t is a known backup type.
func (t BackupType) Valid() bool {
	return t == TypeFull || t == TypeIncremental
}

// TimeWindow is an inclusive hour-of-day range. Windows may wrap midnight
// (start=22, end=4 covers 22:00 through 04:59).
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls inside the window.
func (w TimeWindow) Contains(hour int) bool {
	if w.Start <= w.End {
		return hour >= w.Start && hour <= w.End
	}
	return hour >= w.Start || hour <= w.End
}

// Conditions gate admission of a due schedule beyond the global resource
// ceilings. Zero values mean "not set".
type Conditions struct {
	MinFreeSpace   int64       `json:"minFreeSpace,omitempty"`
	MaxLoadAverage float64     `json:"maxLoadAverage,omitempty"`
	TimeWindow     *TimeWindow `json:"timeWindow,omitempty"`
}

// Schedule is one named backup policy. It is owned by the Store; callers
// receive copies and write changes back through the Store API.
type Schedule struct {
	Name         string      `json:"name"`
	Enabled      bool        `json:"enabled"`
	Type         BackupType  `json:"type"`
	Frequency    string      `json:"frequency"`
	Priority     int         `json:"priority"`
	RetryCount   int         `json:"retryCount"`
	TimeoutMs    int64       `json:"timeout"`
	Conditions   *Conditions `json:"conditions,omitempty"`
	LastRun      *time.Time  `json:"lastRun,omitempty"`
	NextRun      *time.Time  `json:"nextRun,omitempty"`
	RunCount     int         `json:"runCount"`
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`

	// extra holds fields written by other tools; preserved across
	// load/save cycles without interpretation.
	extra map[string]json.RawMessage
}

// Timeout returns the execution timeout as a duration, or def when unset.
func (s *Schedule) Timeout(def time.Duration) time.Duration {
	if s.TimeoutMs <= 0 {
		return def
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Clone returns a deep copy safe to mutate independently of the original.
func (s *Schedule) Clone() *Schedule {
	c := *s
	if s.Conditions != nil {
		cond := *s.Conditions
		if s.Conditions.TimeWindow != nil {
			w := *s.Conditions.TimeWindow
			cond.TimeWindow = &w
		}
		c.Conditions = &cond
	}
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	if s.NextRun != nil {
		t := *s.NextRun
		c.NextRun = &t
	}
	if s.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(s.extra))
		for k, v := range s.extra {
			c.extra[k] = v
		}
	}
	return &c
}

type scheduleAlias Schedule

var knownScheduleFields = []string{
	"name", "enabled", "type", "frequency", "priority", "retryCount",
	"timeout", "conditions", "lastRun", "nextRun", "runCount",
	"successCount", "failureCount", "createdAt", "updatedAt",
}

// UnmarshalJSON decodes the known fields and stashes everything else so a
// round trip through the store never loses data written by other tools.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var a scheduleAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownScheduleFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}
	*s = Schedule(a)
	s.extra = raw
	return nil
}

// MarshalJSON emits the known fields merged with any preserved unknown ones.
func (s Schedule) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(scheduleAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
