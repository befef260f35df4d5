package scheduler

import (
	"time"

	"backupd/internal/schedule"
)

// Stats is the process-lifetime aggregate, rebuilt from zero at startup.
// Execution times are milliseconds.
type Stats struct {
	TotalScheduled      int64      `json:"totalScheduled"`
	TotalCompleted      int64      `json:"totalCompleted"`
	TotalFailed         int64      `json:"totalFailed"`
	TotalSkipped        int64      `json:"totalSkipped"`
	TotalExecutionMs    int64      `json:"totalExecutionTime"`
	AvgExecutionMs      int64      `json:"averageExecutionTime"`
	LastScheduleCheck   *time.Time `json:"lastScheduleCheck,omitempty"`
	NextScheduledBackup *time.Time `json:"nextScheduledBackup,omitempty"`
}

// Limits echoes the admission configuration in status responses.
type Limits struct {
	MaxConcurrentBackups int     `json:"maxConcurrentBackups"`
	MaxCPUPercent        float64 `json:"maxCpuUsage"`
	MaxMemoryPercent     float64 `json:"maxMemoryUsage"`
	MaxDiskPercent       float64 `json:"maxDiskUsage"`
	MonitorResources     bool    `json:"monitorResources"`
}

// Status is the aggregate query surface.
type Status struct {
	Running          bool               `json:"running"`
	ActiveExecutions int                `json:"activeExecutions"`
	Active           []*ActiveExecution `json:"active,omitempty"`
	TotalSchedules   int                `json:"totalSchedules"`
	EnabledSchedules int                `json:"enabledSchedules"`
	Stats            Stats              `json:"stats"`
	Limits           Limits             `json:"limits"`
}

// ExecutionEvent is the payload attached to execution lifecycle events.
type ExecutionEvent struct {
	Schedule    string              `json:"schedule"`
	Execution   string              `json:"execution,omitempty"`
	Type        schedule.BackupType `json:"type,omitempty"`
	Result      any                 `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	ExecutionMs int64               `json:"executionTime,omitempty"`
}
