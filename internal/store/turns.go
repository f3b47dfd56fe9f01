package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webbot/internal/logging"
	"webbot/internal/survival"
)

// ErrTurnExists is returned when a turn number is reused for an agent.
var ErrTurnExists = errors.New("turn already recorded")

// Turn is one completed reasoning cycle.
type Turn struct {
	ID        string
	Agent     string
	Number    int
	Content   string
	Tier      survival.Tier
	CreatedAt time.Time
	ToolCalls []ToolCallRecord
}

// ToolCallRecord is one executed tool invocation within a turn. Input and
// Output are stored verbatim and never re-validated.
type ToolCallRecord struct {
	ID        string
	Agent     string
	Turn      int
	Tool      string
	Input     json.RawMessage
	Output    json.RawMessage
	CreatedAt time.Time
}

// SaveTurn writes a turn and its tool calls in one transaction.
func (s *LocalStore) SaveTurn(ctx context.Context, turn Turn, calls []ToolCallRecord) error {
	if turn.Number < 1 {
		return fmt.Errorf("invalid turn number %d", turn.Number)
	}
	if !turn.Tier.Valid() {
		return fmt.Errorf("invalid tier %q", turn.Tier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	createdAt := s.timestamp(turn.CreatedAt)

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE agent = ? AND turn = ?`, turn.Agent, turn.Number,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check turn: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s #%d", ErrTurnExists, turn.Agent, turn.Number)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (id, agent, turn, content, tier, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.Agent, turn.Number, turn.Content, string(turn.Tier), createdAt,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	for _, c := range calls {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		callAt := createdAt
		if !c.CreatedAt.IsZero() {
			callAt = c.CreatedAt.UnixNano()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tool_calls (id, agent, turn, tool, input, output, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, turn.Agent, turn.Number, c.Tool, rawOrNull(c.Input), rawOrNull(c.Output), callAt,
		); err != nil {
			return fmt.Errorf("insert tool call %s: %w", c.Tool, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	logging.StoreDebug("Saved turn %d for %s with %d tool calls", turn.Number, turn.Agent, len(calls))
	return nil
}

func rawOrNull(r json.RawMessage) string {
	if len(r) == 0 {
		return "null"
	}
	return string(r)
}

// LastTurnNumber returns the highest recorded turn for an agent, or 0.
func (s *LocalStore) LastTurnNumber(ctx context.Context, agent string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(turn) FROM turns WHERE agent = ?`, agent,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("max turn: %w", err)
	}
	return int(n.Int64), nil
}

// LatestTurn returns the most recent turn for an agent.
func (s *LocalStore) LatestTurn(ctx context.Context, agent string) (*Turn, error) {
	turns, err := s.RecentTurns(ctx, agent, 1)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, ErrNotFound
	}
	return &turns[0], nil
}

// RecentTurns returns up to n most recent turns in chronological order, each
// with its tool calls attached.
func (s *LocalStore) RecentTurns(ctx context.Context, agent string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, turn, content, tier, created_at FROM turns
		 WHERE agent = ? ORDER BY turn DESC LIMIT ?`, agent, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}

	var turns []Turn
	for rows.Next() {
		var t Turn
		var tier string
		var created int64
		if err := rows.Scan(&t.ID, &t.Agent, &t.Number, &t.Content, &tier, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Tier = survival.Tier(tier)
		t.CreatedAt = fromNanos(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(turns) == 0 {
		return nil, nil
	}

	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	calls, err := s.toolCallsBetween(ctx, agent, turns[0].Number, turns[len(turns)-1].Number)
	if err != nil {
		return nil, err
	}
	for i := range turns {
		turns[i].ToolCalls = calls[turns[i].Number]
	}
	return turns, nil
}

// ToolCalls returns the tool calls of one turn in execution order.
func (s *LocalStore) ToolCalls(ctx context.Context, agent string, turn int) ([]ToolCallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls, err := s.toolCallsBetween(ctx, agent, turn, turn)
	if err != nil {
		return nil, err
	}
	return calls[turn], nil
}

func (s *LocalStore) toolCallsBetween(ctx context.Context, agent string, from, to int) (map[int][]ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, turn, tool, input, output, created_at FROM tool_calls
		 WHERE agent = ? AND turn BETWEEN ? AND ? ORDER BY turn, created_at, rowid`, agent, from, to)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]ToolCallRecord)
	for rows.Next() {
		var c ToolCallRecord
		var input, output string
		var created int64
		if err := rows.Scan(&c.ID, &c.Agent, &c.Turn, &c.Tool, &input, &output, &created); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		c.Input = json.RawMessage(input)
		c.Output = json.RawMessage(output)
		c.CreatedAt = fromNanos(created)
		out[c.Turn] = append(out[c.Turn], c)
	}
	return out, rows.Err()
}
