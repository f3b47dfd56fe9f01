package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webbot/internal/agent"
	"webbot/internal/logging"
	"webbot/internal/system"
)

var runDebug bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until its balance reaches zero",
	Long: `Boots the agent from the state directory and runs the turn loop and
heartbeat until the wallet is empty or the process is interrupted.

Exits 0 when the agent dies or is interrupted, 1 on configuration errors.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	p, id, cfg, err := loadState()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings in %s: %w", p.SettingsPath(), err)
	}

	level := cfg.Logging.Level
	if runDebug {
		level = "debug"
	}
	if err := logging.Initialize(logging.Options{
		Dir:     p.LogsDir(),
		Level:   level,
		Console: cfg.Logging.Console,
	}); err != nil {
		return err
	}
	defer logging.CloseAll()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := system.Boot(ctx, system.Options{Paths: p, Config: cfg, Identity: id})
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Debug("Agent booted", zap.String("name", id.Name), zap.String("state_dir", p.StateDir))
	outcome, err := a.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outcome.Reason {
	case agent.StopDead:
		fmt.Fprintf(out, "%s is dead after %d turns. Balance reached zero.\n", id.Name, outcome.LastTurn)
	default:
		fmt.Fprintf(out, "%s stopped after turn %d (%s).\n", id.Name, outcome.LastTurn, outcome.Tier)
	}
	return nil
}

// withTimeout bounds network lookups made by inspection commands.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, inspectTimeout)
}
