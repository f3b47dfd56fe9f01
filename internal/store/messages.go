package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one inter-agent communication.
type Message struct {
	ID          string
	From        string
	To          string
	Content     string
	Delivered   bool
	CreatedAt   time.Time
	DeliveredAt time.Time
}

// InsertMessage stores an undelivered message.
func (s *LocalStore) InsertMessage(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	ts := s.timestamp(m.CreatedAt)
	m.CreatedAt = fromNanos(ts)
	m.Delivered = false

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, from_agent, to_agent, content, delivered, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		m.ID, m.From, m.To, m.Content, ts,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// TakeUndelivered returns a recipient's undelivered messages oldest first and
// marks exactly those delivered, in one transaction.
func (s *LocalStore) TakeUndelivered(ctx context.Context, to string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin receive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, from_agent, to_agent, content, created_at FROM messages
		 WHERE to_agent = ? AND delivered = 0 ORDER BY created_at ASC, rowid ASC`, to)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}

	var msgs []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromNanos(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(msgs) == 0 {
		return nil, nil
	}

	deliveredAt := s.timestamp(time.Time{})
	placeholders := make([]string, len(msgs))
	args := []interface{}{deliveredAt}
	for i, m := range msgs {
		placeholders[i] = "?"
		args = append(args, m.ID)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET delivered = 1, delivered_at = ? WHERE delivered = 0 AND id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	); err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}

	for i := range msgs {
		msgs[i].Delivered = true
		msgs[i].DeliveredAt = fromNanos(deliveredAt)
	}
	return msgs, nil
}

// CountUndelivered peeks at a recipient's inbox without marking anything.
func (s *LocalStore) CountUndelivered(ctx context.Context, to string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE to_agent = ? AND delivered = 0`, to,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count inbox: %w", err)
	}
	return n, nil
}

// ListMessages returns recent messages to or from an agent, newest first,
// without changing delivery state.
func (s *LocalStore) ListMessages(ctx context.Context, agent string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_agent, to_agent, content, delivered, created_at, delivered_at FROM messages
		 WHERE to_agent = ? OR from_agent = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		agent, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var delivered int
		var created int64
		var deliveredAt sql.NullInt64
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &delivered, &created, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Delivered = delivered != 0
		m.CreatedAt = fromNanos(created)
		if deliveredAt.Valid {
			m.DeliveredAt = fromNanos(deliveredAt.Int64)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
