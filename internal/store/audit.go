package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one row of the append-only audit log.
type AuditRecord struct {
	ID         string
	Actor      string
	Action     string
	TargetPath string
	Reason     string
	Details    map[string]interface{}
	CreatedAt  time.Time
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	Actor  string
	Action string
	Since  time.Time // inclusive
	Until  time.Time // exclusive
	Limit  int
	// Newest returns the most recent Limit entries, still in ascending order.
	Newest bool
}

// AppendAudit inserts an audit record. There is no update or delete.
func (s *LocalStore) AppendAudit(ctx context.Context, r *AuditRecord) error {
	details := "{}"
	if len(r.Details) > 0 {
		data, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	ts := s.timestamp(r.CreatedAt)
	r.CreatedAt = fromNanos(ts)

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, actor, action, target_path, reason, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Actor, r.Action, r.TargetPath, r.Reason, details, ts,
	); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (f AuditFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		clauses = append(clauses, "action = ?")
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryAudit returns matching records in creation order.
func (s *LocalStore) QueryAudit(ctx context.Context, f AuditFilter) ([]AuditRecord, error) {
	where, args := f.where()
	order := " ORDER BY created_at ASC, rowid ASC"
	if f.Newest {
		order = " ORDER BY created_at DESC, rowid DESC"
	}
	query := `SELECT id, actor, action, target_path, reason, details, created_at FROM audit_log` + where + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var details string
		var created int64
		if err := rows.Scan(&r.ID, &r.Actor, &r.Action, &r.TargetPath, &r.Reason, &details, &created); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		r.CreatedAt = fromNanos(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if f.Newest {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// CountAudit counts matching records. Limit and Newest are ignored.
func (s *LocalStore) CountAudit(ctx context.Context, f AuditFilter) (int, error) {
	where, args := f.where()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return n, nil
}
