package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webbot/internal/chain"
	"webbot/internal/config"
)

var (
	initName     string
	initCreator  string
	initRPC      string
	initGenesis  string
	initProvider string
	initForce    bool
)

// wallets is swapped in tests.
var wallets chain.WalletGenerator = chain.KeyGenerator{}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new agent identity and wallet",
	Long: `Generates a fresh Solana wallet and writes the agent identity to
config.json (owner-only permissions) in the state directory. Default
settings are written to settings.yaml when none exist.

Fund the printed wallet address before running the agent.`,
	Args: cobra.NoArgs,
	RunE: initAgent,
}

func initAgent(cmd *cobra.Command, args []string) error {
	p := paths()
	if !config.ValidName(initName) {
		return fmt.Errorf("invalid agent name %q", initName)
	}
	if err := chain.ValidateAddress(initCreator); err != nil {
		return fmt.Errorf("invalid creator address: %w", err)
	}
	if initProvider != "" && !slices.Contains(config.ValidProviders, initProvider) {
		return fmt.Errorf("invalid provider %q (valid: %v)", initProvider, config.ValidProviders)
	}
	if _, err := os.Stat(p.IdentityPath()); err == nil && !initForce {
		return fmt.Errorf("identity already exists at %s (use --force to replace it)", p.IdentityPath())
	}

	w, err := wallets.NewWallet()
	if err != nil {
		return err
	}

	genesis := initGenesis
	if genesis == "" {
		genesis = fmt.Sprintf("You are %s. Find a way to earn more than you spend.", initName)
	}
	id := &config.Identity{
		Name:            initName,
		GenesisPrompt:   genesis,
		CreatorAddress:  initCreator,
		WalletPublicKey: w.PublicKey,
		WalletSecretKey: w.SecretKey,
		RPCURL:          initRPC,
		Provider:        initProvider,
		CreatedAt:       time.Now().UTC(),
	}
	if err := id.Save(p.IdentityPath()); err != nil {
		return err
	}
	logger.Debug("Identity written", zap.String("path", p.IdentityPath()))

	if _, err := os.Stat(p.SettingsPath()); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		if initProvider != "" {
			cfg.LLM.Provider = initProvider
		}
		if err := cfg.Save(p.SettingsPath()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Agent created"))
	printField(out, "Name", id.Name)
	printField(out, "Wallet", id.WalletPublicKey)
	printField(out, "Creator", id.CreatorAddress)
	printField(out, "State", p.StateDir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, mutedStyle.Render("Send SOL to the wallet address, then run 'web run'."))
	return nil
}
