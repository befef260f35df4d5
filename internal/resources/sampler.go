// Package resources samples system utilization for admission decisions.
package resources

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Usage is one point-in-time snapshot of system utilization.
type Usage struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	DiskPercent   float64 `json:"diskPercent"`
	DiskFreeBytes uint64  `json:"diskFreeBytes"`
	Load1         float64 `json:"load1"`
}

// Sampler produces utilization snapshots. Implementations must be safe for
// use from the scheduler tick loop.
type Sampler interface {
	Snapshot(ctx context.Context) (Usage, error)
}

type systemSampler struct {
	diskPath string
}

// NewSystemSampler samples the live system via gopsutil. diskPath is the
// mount point whose usage and free space gate backups.
func NewSystemSampler(diskPath string) Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &systemSampler{diskPath: diskPath}
}

func (s *systemSampler) Snapshot(ctx context.Context) (Usage, error) {
	var u Usage

	// Interval 0 reports usage since the previous call instead of blocking
	// the tick for a measurement window.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		u.CPUPercent = pct[0]
	} else if err != nil {
		return u, err
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return u, err
	}
	u.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return u, err
	}
	u.DiskPercent = du.UsedPercent
	u.DiskFreeBytes = du.Free

	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return u, err
	}
	u.Load1 = avg.Load1

	return u, nil
}
