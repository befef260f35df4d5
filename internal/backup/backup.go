// Package backup defines the contract with the backup execution unit and a
// command-backed implementation of it. The scheduler core only ever sees the
// Manager interface; the actual backup I/O lives outside this process.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result describes one finished backup.
type Result struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Location   string    `json:"location,omitempty"`
	SizeBytes  int64     `json:"sizeBytes,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Manager is the external backup unit. Both operations honor context
// cancellation so the scheduler can signal timeouts instead of leaking
// zombie executions.
type Manager interface {
	CreateFullBackup(ctx context.Context) (*Result, error)
	CreateIncrementalBackup(ctx context.Context) (*Result, error)
}

// CommandManager shells backups out to an external command. The backup type
// is passed as the first argument and in BACKUP_TYPE; the command's last
// output line, if any, is taken as the backup location.
type CommandManager struct {
	logger  zerolog.Logger
	command string
}

// NewCommandManager wraps command as a Manager.
func NewCommandManager(logger zerolog.Logger, command string) *CommandManager {
	return &CommandManager{
		logger:  logger.With().Str("component", "backup-command").Logger(),
		command: command,
	}
}

func (m *CommandManager) CreateFullBackup(ctx context.Context) (*Result, error) {
	return m.run(ctx, "full")
}

func (m *CommandManager) CreateIncrementalBackup(ctx context.Context) (*Result, error) {
	return m.run(ctx, "incremental")
}

func (m *CommandManager) run(ctx context.Context, typ string) (*Result, error) {
	if m.command == "" {
		return nil, fmt.Errorf("no backup command configured")
	}
	started := time.Now()

	cmd := exec.CommandContext(ctx, m.command, typ)
	cmd.Env = append(os.Environ(), "BACKUP_TYPE="+typ)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	m.logger.Info().Str("type", typ).Msg("Invoking backup command")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("backup command failed: %w: %s", err, strings.TrimSpace(out.String()))
	}

	res := &Result{
		ID:         uuid.New().String(),
		Type:       typ,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		res.Location = last
	}
	return res, nil
}
