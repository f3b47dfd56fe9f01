// Package main implements the web CLI: it creates an agent identity, runs the
// agent until it dies, and inspects the state an agent leaves behind.
//
// Usage:
//
//	web init --name alpha --creator <address> --rpc <url>
//	web run
//	web status
//	web logs --tail 50
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webbot/internal/config"
)

var (
	// Global flags
	stateDir string
	verbose  bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "web",
	Short: "web - a self-sustaining agent that pays for its own compute",
	Long: `web runs an autonomous agent funded by a Solana wallet.

The agent reasons in turns, calls tools, and watches its balance. As the
balance falls it moves to cheaper models and slower heartbeats; at zero it
stops. Everything it does is persisted in the state directory, which the
inspection commands read without starting the agent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.OutputPaths = []string{"stderr"}
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "State directory (default: $WEB_HOME or ~/.web)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose CLI logging")

	initCmd.Flags().StringVar(&initName, "name", "", "Agent name (required)")
	initCmd.Flags().StringVar(&initCreator, "creator", "", "Creator wallet address (required)")
	initCmd.Flags().StringVar(&initRPC, "rpc", "", "Solana RPC endpoint (required)")
	initCmd.Flags().StringVar(&initGenesis, "genesis", "", "Genesis prompt")
	initCmd.Flags().StringVar(&initProvider, "provider", "", "Inference provider (anthropic, gemini)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing identity")
	_ = initCmd.MarkFlagRequired("name")
	_ = initCmd.MarkFlagRequired("creator")
	_ = initCmd.MarkFlagRequired("rpc")

	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Log at debug level")

	statusCmd.Flags().BoolVar(&statusBalance, "balance", false, "Fetch the live wallet balance")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 20, "Number of recent turns to show")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Number of recent entries to show")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "Number of recent messages to show")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(childrenCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(soulCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func paths() config.Paths {
	return config.NewPaths(stateDir)
}

// loadState reads the identity and settings from the state directory.
func loadState() (config.Paths, *config.Identity, *config.Config, error) {
	p := paths()
	id, err := config.LoadIdentity(p.IdentityPath())
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w (run 'web init' first)", err)
	}
	cfg, err := config.Load(p.SettingsPath())
	if err != nil {
		return p, nil, nil, err
	}
	return p, id, cfg, nil
}
