package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/events"
	"backupd/internal/resources"
	"backupd/internal/schedule"
	"backupd/internal/scheduler"
	"backupd/internal/server"
)

func main() {
	cfg := config.FromEnv()
	logger := zerolog.New(os.Stderr).Level(cfg.LogLevel).With().Timestamp().Logger()

	store := schedule.NewStore(logger, cfg.StateFile)
	if err := store.Load(); err != nil {
		logger.Error().Err(err).Msg("Schedule store load failed, continuing with defaults")
	}

	bus := events.NewBus()
	go logEvents(logger, bus)

	sched := scheduler.New(logger, scheduler.Config{
		MaxConcurrentBackups: cfg.MaxConcurrentBackups,
		MonitorResources:     cfg.MonitorResources,
		MaxCPUPercent:        cfg.MaxCPUPercent,
		MaxMemoryPercent:     cfg.MaxMemoryPercent,
		MaxDiskPercent:       cfg.MaxDiskPercent,
		TickInterval:         cfg.TickInterval,
	}, store, backup.NewCommandManager(logger, cfg.BackupCommand), resources.NewSystemSampler(cfg.DiskPath), bus)

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.PresetsFile).Msg("Preset table unavailable, using defaults")
		presets = config.DefaultPresets()
	}

	if cfg.EnableScheduling {
		sched.Start()
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: server.NewRouter(logger, sched, presets)}
	go func() {
		logger.Info().Msgf("backupd listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server exited")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed to persist state")
	}
	_ = srv.Shutdown(ctx)
}

// logEvents mirrors scheduler lifecycle events into the log so operators
// see them without a subscriber of their own.
func logEvents(logger zerolog.Logger, bus *events.Bus) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for e := range ch {
		logger.Info().Str("event", e.Type).Interface("data", e.Data).Msg("Scheduler event")
	}
}
