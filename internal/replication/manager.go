// Package replication spawns funded child agents.
//
// A spawn moves real funds, so the child's key material is made durable
// before the transfer: the child config is staged next to its final
// location and a pending record is written, then SOL is sent. Only a
// confirmed transfer promotes the staged file and marks the child active.
// Reconcile settles children left pending by a crash or an unconfirmed
// transfer.
package replication

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"webbot/internal/audit"
	"webbot/internal/chain"
	"webbot/internal/config"
	"webbot/internal/logging"
	"webbot/internal/store"
)

const (
	configFile  = "config.json"
	stagingFile = "config.json.pending"
)

var (
	// ErrInvalidRequest is returned for requests rejected before any side effect.
	ErrInvalidRequest = errors.New("invalid replication request")

	// ErrNameTaken is returned when a live child already uses the name.
	ErrNameTaken = errors.New("child name already in use")
)

// Request describes a child to spawn.
type Request struct {
	Name          string
	GenesisPrompt string
	InitialSOL    float64
}

// Result is the outcome of a spawn.
type Result struct {
	Success     bool
	ChildID     string
	ChildWallet string
	Signature   string
	// Pending is set when the transfer was sent but not confirmed; the child
	// stays pending until Reconcile settles it.
	Pending bool
	Error   string
}

// Store is the persistence the manager needs.
type Store interface {
	InsertChild(ctx context.Context, c *store.Child) error
	SettleChild(ctx context.Context, id string, status store.ChildStatus, txSignature, errMsg string) error
	ListChildren(ctx context.Context, parent string, status store.ChildStatus) ([]store.Child, error)
}

// Manager spawns and reconciles children.
type Manager struct {
	store    Store
	wallets  chain.WalletGenerator
	transfer chain.Transferer
	balances chain.BalanceFetcher
	ledger   *audit.Ledger
	dir      string
	now      func() time.Time
}

// Deps wires a Manager.
type Deps struct {
	Store    Store
	Wallets  chain.WalletGenerator
	Transfer chain.Transferer
	Balances chain.BalanceFetcher
	// Ledger, if set, receives a replicate entry per funded child.
	Ledger *audit.Ledger
	// ChildrenDir holds one directory per child.
	ChildrenDir string
}

// NewManager returns a manager.
func NewManager(d Deps) *Manager {
	return &Manager{
		store:    d.Store,
		wallets:  d.Wallets,
		transfer: d.Transfer,
		balances: d.Balances,
		ledger:   d.Ledger,
		dir:      d.ChildrenDir,
		now:      time.Now,
	}
}

// ChildDir returns the directory for a child name.
func (m *Manager) ChildDir(name string) string {
	return filepath.Join(m.dir, name)
}

func (m *Manager) validate(ctx context.Context, parent *config.Identity, req Request) error {
	switch {
	case parent == nil || parent.Name == "":
		return fmt.Errorf("%w: missing parent identity", ErrInvalidRequest)
	case !config.ValidName(req.Name):
		return fmt.Errorf("%w: name %q must be 1-64 letters, digits, '-' or '_'", ErrInvalidRequest, req.Name)
	case req.Name == parent.Name:
		return fmt.Errorf("%w: child cannot share the parent's name", ErrInvalidRequest)
	case req.GenesisPrompt == "":
		return fmt.Errorf("%w: genesis prompt is empty", ErrInvalidRequest)
	case math.IsNaN(req.InitialSOL) || math.IsInf(req.InitialSOL, 0) || req.InitialSOL <= 0:
		return fmt.Errorf("%w: initial SOL must be positive", ErrInvalidRequest)
	}
	if _, err := chain.LamportsFromSOL(req.InitialSOL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	existing, err := m.store.ListChildren(ctx, parent.Name, "")
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}
	for _, c := range existing {
		if c.Name == req.Name && c.Status != store.ChildFailed {
			return fmt.Errorf("%w: %s is %s", ErrNameTaken, c.Name, c.Status)
		}
	}
	for _, f := range []string{configFile, stagingFile} {
		if _, err := os.Stat(filepath.Join(m.ChildDir(req.Name), f)); err == nil {
			return fmt.Errorf("%w: %s already exists", ErrNameTaken, filepath.Join(m.ChildDir(req.Name), f))
		}
	}
	return nil
}

// Spawn creates, stages and funds a child. Validation failures return an
// error with no side effects; failures after validation are reported in
// Result with the child recorded as failed.
func (m *Manager) Spawn(ctx context.Context, parent *config.Identity, req Request) (Result, error) {
	if err := m.validate(ctx, parent, req); err != nil {
		return Result{Error: err.Error()}, err
	}
	log := logging.Get(logging.CategoryReplication).With("parent", parent.Name, "child", req.Name)

	wallet, err := m.wallets.NewWallet()
	if err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("generate child wallet: %w", err)
	}

	child := &store.Child{
		Parent:          parent.Name,
		Name:            req.Name,
		WalletPublicKey: wallet.PublicKey,
		GenesisPrompt:   req.GenesisPrompt,
		InitialSOL:      req.InitialSOL,
		Status:          store.ChildPending,
	}
	if err := m.store.InsertChild(ctx, child); err != nil {
		return Result{Error: err.Error()}, fmt.Errorf("record child: %w", err)
	}

	identity := &config.Identity{
		Name:            req.Name,
		GenesisPrompt:   req.GenesisPrompt,
		CreatorAddress:  parent.WalletPublicKey,
		WalletPublicKey: wallet.PublicKey,
		WalletSecretKey: wallet.SecretKey,
		RPCURL:          parent.RPCURL,
		APIKey:          parent.APIKey,
		Provider:        parent.Provider,
		Parent:          parent.Name,
		CreatedAt:       m.now().UTC(),
	}
	staged := filepath.Join(m.ChildDir(req.Name), stagingFile)
	if err := identity.Save(staged); err != nil {
		m.fail(ctx, child.ID, staged, fmt.Sprintf("stage config: %v", err))
		return Result{ChildID: child.ID, ChildWallet: wallet.PublicKey, Error: err.Error()}, nil
	}
	log.Info("Staged child %s (%s), funding %.4f SOL", req.Name, wallet.PublicKey, req.InitialSOL)

	signer := chain.Wallet{PublicKey: parent.WalletPublicKey, SecretKey: parent.WalletSecretKey}
	sig, err := m.transfer.Transfer(ctx, signer, wallet.PublicKey, req.InitialSOL, chain.TokenSOL)
	// Settlement must outlive a cancelled turn once funds may have moved.
	settleCtx := context.WithoutCancel(ctx)
	if err != nil && !transferRejected(ctx, sig, err) {
		log.Warn("Funding transfer %q not settled, leaving %s pending: %v", sig, req.Name, err)
		return Result{ChildID: child.ID, ChildWallet: wallet.PublicKey, Signature: sig, Pending: true, Error: err.Error()}, nil
	}
	if err != nil {
		m.fail(settleCtx, child.ID, staged, err.Error())
		return Result{ChildID: child.ID, ChildWallet: wallet.PublicKey, Signature: sig, Error: err.Error()}, nil
	}

	if err := m.activate(settleCtx, child.ID, req.Name, sig); err != nil {
		// Funds moved; the child stays pending and Reconcile retries the promotion.
		log.Error("Funded %s but could not activate: %v", req.Name, err)
		return Result{ChildID: child.ID, ChildWallet: wallet.PublicKey, Signature: sig, Pending: true, Error: err.Error()}, nil
	}

	if m.ledger != nil {
		if _, err := m.ledger.Append(settleCtx, audit.Entry{
			Action:     audit.ActionReplicate,
			Actor:      parent.Name,
			TargetPath: m.ChildDir(req.Name),
			Reason:     "spawned child " + req.Name,
			Details: map[string]interface{}{
				"child_wallet": wallet.PublicKey,
				"initial_sol":  req.InitialSOL,
				"signature":    sig,
			},
		}); err != nil {
			log.Warn("Could not audit replication: %v", err)
		}
	}

	logging.Replication("Child %s spawned: wallet=%s sig=%s", req.Name, wallet.PublicKey, sig)
	return Result{Success: true, ChildID: child.ID, ChildWallet: wallet.PublicKey, Signature: sig}, nil
}

// transferRejected reports whether err proves no funds moved. A transfer
// with a signature, an unconfirmed one, or one cut short by ctx may still
// land, so the child's key must survive until Reconcile checks the wallet.
func transferRejected(ctx context.Context, sig string, err error) bool {
	switch {
	case sig != "":
		return false
	case errors.Is(err, chain.ErrUnconfirmed):
		return false
	case ctx.Err() != nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// activate promotes the staged config and marks the child active.
func (m *Manager) activate(ctx context.Context, id, name, sig string) error {
	dir := m.ChildDir(name)
	staged := filepath.Join(dir, stagingFile)
	final := filepath.Join(dir, configFile)
	if err := os.Rename(staged, final); err != nil {
		if _, statErr := os.Stat(final); statErr != nil {
			return fmt.Errorf("promote child config: %w", err)
		}
	}
	return m.store.SettleChild(ctx, id, store.ChildActive, sig, "")
}

// fail marks the child failed and removes its staged config so a failed
// child never leaves key material behind.
func (m *Manager) fail(ctx context.Context, id, staged, reason string) {
	if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Get(logging.CategoryReplication).Warn("Could not remove staged config %s: %v", staged, err)
	}
	_ = os.Remove(filepath.Dir(staged))
	if err := m.store.SettleChild(ctx, id, store.ChildFailed, "", reason); err != nil {
		logging.Get(logging.CategoryReplication).Error("Could not mark child %s failed: %v", id, err)
	}
	logging.Replication("Child %s failed: %s", id, reason)
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Activated []string
	Failed    []string
	Skipped   []string
}

// Reconcile settles parent's pending children. A funded child wallet is
// promoted to active; an empty one is marked failed. Children whose balance
// cannot be read, or whose funded config cannot be promoted, are left pending.
func (m *Manager) Reconcile(ctx context.Context, parent string) (ReconcileReport, error) {
	var report ReconcileReport
	pending, err := m.store.ListChildren(ctx, parent, store.ChildPending)
	if err != nil {
		return report, fmt.Errorf("list pending children: %w", err)
	}

	for _, c := range pending {
		bal, err := m.balances.Balance(ctx, c.WalletPublicKey)
		if err != nil {
			logging.Get(logging.CategoryReplication).Warn("Reconcile %s: balance unavailable: %v", c.Name, err)
			report.Skipped = append(report.Skipped, c.Name)
			continue
		}
		staged := filepath.Join(m.ChildDir(c.Name), stagingFile)
		if bal > 0 {
			if err := m.activate(ctx, c.ID, c.Name, ""); err != nil {
				// Funded children are never marked failed.
				logging.Get(logging.CategoryReplication).Error("Reconcile %s: funded (%.4f SOL) but not promoted: %v", c.Name, bal, err)
				report.Skipped = append(report.Skipped, c.Name)
				continue
			}
			logging.Replication("Reconciled %s as active (%.4f SOL)", c.Name, bal)
			report.Activated = append(report.Activated, c.Name)
			continue
		}
		m.fail(ctx, c.ID, staged, "funding never arrived")
		report.Failed = append(report.Failed, c.Name)
	}
	return report, nil
}
