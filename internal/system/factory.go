// Package system wires the agent runtime together from configuration. It is
// the one place that constructs concrete collaborators; everything below it
// receives them by injection.
package system

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"webbot/internal/agent"
	"webbot/internal/audit"
	"webbot/internal/chain"
	"webbot/internal/config"
	"webbot/internal/heartbeat"
	"webbot/internal/inference"
	"webbot/internal/logging"
	"webbot/internal/prompt"
	"webbot/internal/replication"
	"webbot/internal/selfmod"
	"webbot/internal/social"
	"webbot/internal/store"
	"webbot/internal/tools"
	toolchain "webbot/internal/tools/chain"
	"webbot/internal/tools/core"
	"webbot/internal/tools/shell"
	toolsocial "webbot/internal/tools/social"
	"webbot/internal/tools/web"
	"webbot/internal/usage"
)

// ChainBackend is the blockchain surface the runtime uses.
type ChainBackend interface {
	chain.BalanceFetcher
	chain.Transferer
}

// Options selects what Boot builds. Inference and Chain replace the network
// clients when set.
type Options struct {
	Paths    config.Paths
	Config   *config.Config
	Identity *config.Identity
	// WorkDir resolves relative tool paths. Empty uses the process directory.
	WorkDir string

	Inference inference.Client
	Chain     ChainBackend
}

// Agent is a fully wired runtime for one identity.
type Agent struct {
	Identity    *config.Identity
	Config      *config.Config
	Store       *store.LocalStore
	Ledger      *audit.Ledger
	Messages    *social.MessageBox
	Registry    *tools.Registry
	Dispatcher  *tools.Dispatcher
	Replication *replication.Manager
	Heartbeat   *heartbeat.Scheduler
	Documents   *prompt.Documents
	Usage       *usage.Tracker
	Loop        *agent.Loop
	Runtime     *agent.Runtime

	closers []io.Closer
}

// Boot builds the runtime. On error everything opened so far is closed.
func Boot(ctx context.Context, opts Options) (_ *Agent, err error) {
	cfg, id := opts.Config, opts.Identity
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if id == nil {
		return nil, config.ErrNotConfigured
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}

	a := &Agent{Identity: id, Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Persistence
	a.Store, err = store.NewLocalStore(opts.Paths.DatabasePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.Store)
	a.Ledger = audit.NewLedger(a.Store)
	a.Messages = social.NewMessageBox(a.Store)

	// 2. Chain
	backend := opts.Chain
	if backend == nil {
		rpcURL := id.RPCURL
		if cfg.Chain.RPCURL != "" {
			rpcURL = cfg.Chain.RPCURL
		}
		client := chain.NewClient(rpcURL, chain.Options{ConfirmTimeout: cfg.GetConfirmTimeout()})
		a.closers = append(a.closers, client)
		backend = client
	}

	// 3. Inference
	llm := opts.Inference
	if llm == nil {
		llm, err = inference.NewClient(ctx, inferenceSettings(cfg, id))
		if err != nil {
			return nil, fmt.Errorf("inference client: %w", err)
		}
	}

	a.Usage, err = usage.NewTracker(opts.Paths.UsagePath())
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Usage tracking disabled: %v", err)
		a.Usage = nil
	}

	// 4. Tools
	a.Replication = replication.NewManager(replication.Deps{
		Store:       a.Store,
		Wallets:     chain.KeyGenerator{},
		Transfer:    backend,
		Balances:    backend,
		Ledger:      a.Ledger,
		ChildrenDir: opts.Paths.ChildrenDir(cfg),
	})
	guard := selfmod.NewGuard(a.Ledger, selfmod.Options{
		Root:      workDir,
		Protected: cfg.SelfModify.ProtectedPaths,
		Limit:     cfg.SelfModify.Limit,
		Window:    cfg.GetSelfModifyWindow(),
	})
	a.Registry = tools.NewRegistry()
	if err := registerTools(a.Registry, cfg, opts.Paths, workDir, guard, backend, a.Replication, a.Messages); err != nil {
		return nil, err
	}
	a.Dispatcher = tools.NewDispatcher(a.Registry)

	// 5. Loop and supervisor
	a.Documents = prompt.NewDocuments(opts.Paths.ConstitutionPath(), opts.Paths.SoulPath())
	a.Heartbeat = heartbeat.NewScheduler(id.Name, id.WalletPublicKey, backend, cfg.HeartbeatIntervals())

	deps := agent.Deps{
		Identity:   id,
		Store:      a.Store,
		Balances:   backend,
		Inference:  llm,
		Dispatcher: a.Dispatcher,
		Messages:   a.Messages,
		Documents:  a.Documents,
		Stop:       a.Heartbeat.Dead(),
	}
	if a.Usage != nil {
		deps.Usage = a.Usage
	}
	a.Loop = agent.NewLoop(deps, agent.Settings{
		TurnDelay:     cfg.GetTurnDelay(),
		HistoryWindow: cfg.GetHistoryWindow(),
		MaxTokens:     cfg.LLM.MaxTokens,
		SelfModLimit:  cfg.SelfModify.Limit,
		ModelFor:      cfg.ModelFor,
	})
	a.Runtime = agent.NewRuntime(id.Name, a.Loop, a.Heartbeat).WithReconciler(a.Replication)

	if watcher, err := prompt.NewWatcher(a.Documents); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Document watcher disabled: %v", err)
	} else {
		a.Runtime.WithService(watcher)
	}

	logging.Boot("Booted %s with %d tools (provider %s)", id.Name, a.Registry.Count(), llm.Provider())
	return a, nil
}

func inferenceSettings(cfg *config.Config, id *config.Identity) inference.Settings {
	s := inference.Settings{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	}
	if id.Provider != "" && os.Getenv("WEB_LLM_PROVIDER") == "" {
		s.Provider = id.Provider
	}
	if s.APIKey == "" {
		s.APIKey = id.APIKey
	}
	if s.Provider != "anthropic" {
		s.BaseURL = ""
	}
	return s
}

func registerTools(reg *tools.Registry, cfg *config.Config, paths config.Paths, workDir string,
	guard *selfmod.Guard, backend ChainBackend, spawner toolchain.Spawner, box toolsocial.Mailbox) error {
	maxOut := cfg.Tools.MaxOutputBytes
	steps := []struct {
		name string
		fn   func() error
	}{
		{"shell", func() error {
			return shell.RegisterAll(reg, shell.Options{Timeout: cfg.GetShellTimeout(), MaxOutput: maxOut, Dir: workDir})
		}},
		{"core", func() error {
			return core.RegisterAll(reg, core.Options{Root: workDir, SoulPath: paths.SoulPath(), Guard: guard})
		}},
		{"web", func() error {
			return web.RegisterAll(reg, web.Options{Timeout: cfg.GetHTTPTimeout(), MaxOutput: maxOut})
		}},
		{"chain", func() error { return toolchain.RegisterAll(reg, backend, spawner) }},
		{"social", func() error { return toolsocial.RegisterAll(reg, box) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("register %s tools: %w", step.name, err)
		}
	}
	return nil
}

// Run starts the supervisor and blocks until the agent stops.
func (a *Agent) Run(ctx context.Context) (agent.Outcome, error) {
	return a.Runtime.Run(ctx)
}

// Close flushes usage and releases resources in reverse order of creation.
func (a *Agent) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Usage != nil {
		if err := a.Usage.Close(); err != nil {
			errs = append(errs, err)
		}
		a.Usage = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
