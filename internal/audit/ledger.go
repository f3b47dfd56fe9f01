// Package audit is the append-only record of privileged actions.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webbot/internal/logging"
	"webbot/internal/store"
)

// Action kinds.
const (
	ActionSelfModify = "self_modify"
	ActionReplicate  = "replicate"
)

// Entry is one privileged action.
type Entry struct {
	ID         string
	Action     string
	TargetPath string
	Reason     string
	Actor      string
	Details    map[string]interface{}
	CreatedAt  time.Time
}

// Filter narrows a query. Zero fields match everything.
type Filter = store.AuditFilter

// Backend is the persistence the ledger needs.
type Backend interface {
	AppendAudit(ctx context.Context, r *store.AuditRecord) error
	QueryAudit(ctx context.Context, f store.AuditFilter) ([]store.AuditRecord, error)
	CountAudit(ctx context.Context, f store.AuditFilter) (int, error)
}

// Ledger appends and queries audit entries. It exposes no update or delete.
type Ledger struct {
	backend Backend
	now     func() time.Time
}

// NewLedger returns a ledger over backend.
func NewLedger(backend Backend) *Ledger {
	return &Ledger{backend: backend, now: time.Now}
}

// WithClock overrides the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time { return l.now() }

// Append durably records e. The entry is visible to Query once Append returns.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.Action == "" {
		return Entry{}, errors.New("audit entry requires an action")
	}
	if e.Actor == "" {
		return Entry{}, errors.New("audit entry requires an actor")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	rec := &store.AuditRecord{
		ID:         e.ID,
		Actor:      e.Actor,
		Action:     e.Action,
		TargetPath: e.TargetPath,
		Reason:     e.Reason,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	}
	if err := l.backend.AppendAudit(ctx, rec); err != nil {
		return Entry{}, fmt.Errorf("append audit: %w", err)
	}
	e.ID = rec.ID
	e.CreatedAt = rec.CreatedAt

	logging.Audit("%s by %s target=%q reason=%q", e.Action, e.Actor, e.TargetPath, e.Reason)
	return e, nil
}

// Query returns matching entries in creation order.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	recs, err := l.backend.QueryAudit(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	out := make([]Entry, len(recs))
	for i, r := range recs {
		out[i] = Entry{
			ID:         r.ID,
			Action:     r.Action,
			TargetPath: r.TargetPath,
			Reason:     r.Reason,
			Actor:      r.Actor,
			Details:    r.Details,
			CreatedAt:  r.CreatedAt,
		}
	}
	return out, nil
}

// CountSince counts an actor's entries of one action within the trailing window.
func (l *Ledger) CountSince(ctx context.Context, actor, action string, window time.Duration) (int, error) {
	n, err := l.backend.CountAudit(ctx, store.AuditFilter{
		Actor:  actor,
		Action: action,
		Since:  l.now().Add(-window),
	})
	if err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return n, nil
}

// Count returns the number of entries matching f.
func (l *Ledger) Count(ctx context.Context, f Filter) (int, error) {
	n, err := l.backend.CountAudit(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return n, nil
}
