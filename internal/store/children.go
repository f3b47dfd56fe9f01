package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webbot/internal/logging"
)

// ChildStatus is the provisioning state of a spawned child.
type ChildStatus string

const (
	ChildPending ChildStatus = "pending"
	ChildActive  ChildStatus = "active"
	ChildFailed  ChildStatus = "failed"
)

// ErrInvalidTransition is returned when a child is not in the expected state.
var ErrInvalidTransition = errors.New("invalid child status transition")

// Child is a spawned descendant agent.
type Child struct {
	ID              string
	Parent          string
	Name            string
	WalletPublicKey string
	GenesisPrompt   string
	InitialSOL      float64
	Status          ChildStatus
	TxSignature     string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const childColumns = `id, parent, name, wallet_public_key, genesis_prompt, initial_sol, status, tx_signature, error, created_at, updated_at`

// InsertChild records a new child. The status must be pending.
func (s *LocalStore) InsertChild(ctx context.Context, c *Child) error {
	if c.Status == "" {
		c.Status = ChildPending
	}
	if c.Status != ChildPending {
		return fmt.Errorf("%w: new child must be pending, got %s", ErrInvalidTransition, c.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.timestamp(c.CreatedAt)
	c.CreatedAt = fromNanos(now)
	c.UpdatedAt = c.CreatedAt

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO children (`+childColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`,
		c.ID, c.Parent, c.Name, c.WalletPublicKey, c.GenesisPrompt, c.InitialSOL, string(c.Status), now, now,
	); err != nil {
		return fmt.Errorf("insert child: %w", err)
	}
	logging.StoreDebug("Recorded pending child %s (%s)", c.Name, c.WalletPublicKey)
	return nil
}

// SettleChild moves a pending child to active or failed. Settled children
// never change again.
func (s *LocalStore) SettleChild(ctx context.Context, id string, status ChildStatus, txSignature, errMsg string) error {
	if status != ChildActive && status != ChildFailed {
		return fmt.Errorf("%w: cannot settle to %s", ErrInvalidTransition, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE children SET status = ?, tx_signature = ?, error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), txSignature, errMsg, s.timestamp(time.Time{}), id, string(ChildPending))
	if err != nil {
		return fmt.Errorf("settle child: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle child: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: child %s is not pending", ErrInvalidTransition, id)
	}
	return nil
}

// GetChild returns a child by id.
func (s *LocalStore) GetChild(ctx context.Context, id string) (*Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+childColumns+` FROM children WHERE id = ?`, id)
	c, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListChildren returns a parent's children, newest first. An empty status
// matches every status.
func (s *LocalStore) ListChildren(ctx context.Context, parent string, status ChildStatus) ([]Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + childColumns + ` FROM children WHERE parent = ?`
	args := []interface{}{parent}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()

	var out []Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChild(r rowScanner) (*Child, error) {
	var c Child
	var status string
	var created, updated int64
	if err := r.Scan(&c.ID, &c.Parent, &c.Name, &c.WalletPublicKey, &c.GenesisPrompt, &c.InitialSOL,
		&status, &c.TxSignature, &c.Error, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan child: %w", err)
	}
	c.Status = ChildStatus(status)
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}
