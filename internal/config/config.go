package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config is assembled from BACKUPD_* environment variables with sane
// defaults; unparsable values fall back silently.
type Config struct {
	Port     int
	LogLevel zerolog.Level

	StateFile   string
	PresetsFile string

	BackupCommand string
	DiskPath      string

	EnableScheduling     bool
	TickInterval         time.Duration
	MaxConcurrentBackups int
	MonitorResources     bool
	MaxCPUPercent        float64
	MaxMemoryPercent     float64
	MaxDiskPercent       float64
}

func FromEnv() Config {
	cfg := Config{
		Port:                 9402,
		LogLevel:             zerolog.InfoLevel,
		StateFile:            "/var/lib/backupd/schedules.json",
		PresetsFile:          "/etc/backupd/presets.yaml",
		DiskPath:             "/",
		EnableScheduling:     true,
		TickInterval:         time.Minute,
		MaxConcurrentBackups: 2,
		MonitorResources:     true,
		MaxCPUPercent:        80,
		MaxMemoryPercent:     85,
		MaxDiskPercent:       90,
	}

	if v := os.Getenv("BACKUPD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("BACKUPD_LOG"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			cfg.LogLevel = l
		}
	}
	if v := os.Getenv("BACKUPD_STATE_FILE"); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv("BACKUPD_PRESETS_FILE"); v != "" {
		cfg.PresetsFile = v
	}
	if v := os.Getenv("BACKUPD_BACKUP_CMD"); v != "" {
		cfg.BackupCommand = v
	}
	if v := os.Getenv("BACKUPD_DISK_PATH"); v != "" {
		cfg.DiskPath = v
	}
	if v := os.Getenv("BACKUPD_ENABLE_SCHEDULING"); v != "" {
		cfg.EnableScheduling = parseBool(v, cfg.EnableScheduling)
	}
	if v := os.Getenv("BACKUPD_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("BACKUPD_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentBackups = n
		}
	}
	if v := os.Getenv("BACKUPD_MONITOR_RESOURCES"); v != "" {
		cfg.MonitorResources = parseBool(v, cfg.MonitorResources)
	}
	cfg.MaxCPUPercent = envPercent("BACKUPD_MAX_CPU", cfg.MaxCPUPercent)
	cfg.MaxMemoryPercent = envPercent("BACKUPD_MAX_MEMORY", cfg.MaxMemoryPercent)
	cfg.MaxDiskPercent = envPercent("BACKUPD_MAX_DISK", cfg.MaxDiskPercent)

	return cfg
}

func parseBool(v string, def bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envPercent(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || f > 100 {
		return def
	}
	return f
}
