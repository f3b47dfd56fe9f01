// Package agent runs the turn loop: query the tier, build context, ask the
// model, dispatch its tool calls in order and persist the turn. The loop only
// stops on a dead tier or cancellation; every other failure is retried after
// a doubled delay.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"webbot/internal/chain"
	"webbot/internal/config"
	"webbot/internal/inference"
	"webbot/internal/logging"
	"webbot/internal/prompt"
	"webbot/internal/store"
	"webbot/internal/survival"
	"webbot/internal/tools"
)

// StopReason explains why Run returned.
type StopReason string

const (
	StopDead      StopReason = "dead"
	StopCancelled StopReason = "cancelled"
)

// Outcome is returned to the supervisor when the loop stops.
type Outcome struct {
	Reason   StopReason
	LastTurn int
	Tier     survival.Tier
}

// TurnStore is the persistence the loop needs.
type TurnStore interface {
	LastTurnNumber(ctx context.Context, agent string) (int, error)
	RecentTurns(ctx context.Context, agent string, n int) ([]store.Turn, error)
	SaveTurn(ctx context.Context, turn store.Turn, calls []store.ToolCallRecord) error
}

// MessageCounter peeks at the unread message count.
type MessageCounter interface {
	Pending(ctx context.Context, identity string) (int, error)
}

// DocumentSource supplies the constitution and SOUL documents.
type DocumentSource interface {
	Constitution() string
	Soul() string
}

// UsageRecorder accounts inference tokens.
type UsageRecorder interface {
	Track(provider, model string, tier survival.Tier, input, output int)
}

// Settings are the loop's tunables.
type Settings struct {
	TurnDelay     time.Duration
	HistoryWindow int
	MaxTokens     int
	SelfModLimit  int
	// ModelFor maps a tier to a model name.
	ModelFor func(survival.Tier) string
}

// Deps are the loop's collaborators. Messages, Documents and Usage are
// optional.
type Deps struct {
	Identity   *config.Identity
	Store      TurnStore
	Balances   chain.BalanceFetcher
	Inference  inference.Client
	Dispatcher *tools.Dispatcher
	Messages   MessageCounter
	Documents  DocumentSource
	Usage      UsageRecorder
	// Stop, when closed, prevents new turns from starting. An in-flight turn
	// still completes and persists.
	Stop <-chan struct{}
}

// Loop is the turn loop for one identity.
type Loop struct {
	deps     Deps
	settings Settings
	sleep    func(ctx context.Context, stop <-chan struct{}, d time.Duration) bool
	now      func() time.Time
}

// NewLoop creates a loop. Zero settings take the documented defaults.
func NewLoop(deps Deps, settings Settings) *Loop {
	if settings.TurnDelay <= 0 {
		settings.TurnDelay = 5 * time.Second
	}
	if settings.HistoryWindow <= 0 {
		settings.HistoryWindow = 20
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 4096
	}
	if settings.ModelFor == nil {
		cfg := config.DefaultConfig()
		settings.ModelFor = cfg.ModelFor
	}
	return &Loop{deps: deps, settings: settings, sleep: sleepOrStop, now: time.Now}
}

// TurnResult reports one completed cycle.
type TurnResult struct {
	Number    int
	Tier      survival.Tier
	Text      string
	ToolCalls int
	Dead      bool
}

// Run executes turns until the tier is dead, Stop is closed or ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) (Outcome, error) {
	name := l.deps.Identity.Name
	logging.Turn("Agent loop starting for %s (%s)", name, l.deps.Identity.WalletPublicKey)

	outcome := Outcome{Reason: StopCancelled}
	if last, err := l.deps.Store.LastTurnNumber(ctx, name); err == nil {
		outcome.LastTurn = last
	}

	for {
		if reason, stopped := l.stopped(ctx); stopped {
			outcome.Reason = reason
			if reason == StopDead {
				outcome.Tier = survival.TierDead
			}
			logging.Turn("Agent loop stopped (%s) after turn %d", reason, outcome.LastTurn)
			return outcome, nil
		}

		delay := l.settings.TurnDelay
		res, err := l.RunTurn(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			logging.Get(logging.CategoryTurn).Error("Error in agent loop: %v", err)
			delay *= 2
		case res.Dead:
			logging.Get(logging.CategoryTurn).Warn("Balance is below the survival floor. %s stops.", name)
			outcome.Reason = StopDead
			outcome.Tier = survival.TierDead
			return outcome, nil
		default:
			outcome.LastTurn = res.Number
			outcome.Tier = res.Tier
		}

		l.sleep(ctx, l.deps.Stop, delay)
	}
}

func (l *Loop) stopped(ctx context.Context) (StopReason, bool) {
	if ctx.Err() != nil {
		return StopCancelled, true
	}
	if l.deps.Stop != nil {
		select {
		case <-l.deps.Stop:
			return StopDead, true
		default:
		}
	}
	return "", false
}

// sleepOrStop waits d and reports whether the full delay elapsed.
func sleepOrStop(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// RunTurn performs one cycle. A dead tier is reported in the result, not as
// an error; nothing is persisted for it.
func (l *Loop) RunTurn(ctx context.Context) (TurnResult, error) {
	id := l.deps.Identity

	// QueryTier
	balance, err := l.deps.Balances.Balance(ctx, id.WalletPublicKey)
	if err != nil {
		return TurnResult{}, fmt.Errorf("balance check: %w", err)
	}
	tier := survival.TierFor(balance)
	if tier.IsDead() {
		return TurnResult{Tier: tier, Dead: true}, nil
	}

	// BuildContext
	last, err := l.deps.Store.LastTurnNumber(ctx, id.Name)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load turn number: %w", err)
	}
	number := last + 1
	history, err := l.deps.Store.RecentTurns(ctx, id.Name, l.settings.HistoryWindow)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load history: %w", err)
	}
	unread := 0
	if l.deps.Messages != nil {
		if n, err := l.deps.Messages.Pending(ctx, id.Name); err != nil {
			logging.Get(logging.CategoryTurn).Warn("Unread message count unavailable: %v", err)
		} else {
			unread = n
		}
	}
	constitution, soul := prompt.DefaultConstitution, ""
	if l.deps.Documents != nil {
		constitution, soul = l.deps.Documents.Constitution(), l.deps.Documents.Soul()
	}

	available := l.availableTools(tier)
	names := make([]string, 0, len(available))
	defs := make([]inference.ToolDefinition, 0, len(available))
	for _, t := range available {
		names = append(names, tools.Describe(t))
		defs = append(defs, inference.ToolDefinition{Name: t.Name, Description: t.Description, InputSchema: t.Schema.JSONSchema()})
	}

	messages := HistoryMessages(history)
	messages = append(messages, inference.Message{
		Role: inference.RoleUser,
		Text: prompt.BuildTurnMessage(prompt.TurnFacts{
			Turn:           number,
			BalanceSOL:     balance,
			Tier:           tier,
			Soul:           soul,
			UnreadMessages: unread,
		}),
	})

	// Infer
	model := l.settings.ModelFor(tier)
	logging.TurnDebug("Turn %d: reasoning with %s (tier %s, %d history turns)", number, model, tier, len(history))
	resp, err := l.deps.Inference.Infer(ctx, inference.Request{
		Model: model,
		System: prompt.BuildSystemPrompt(prompt.SystemParams{
			Identity:     id,
			Tier:         tier,
			Constitution: constitution,
			Tools:        names,
			SelfModLimit: l.settings.SelfModLimit,
		}),
		Messages:  messages,
		Tools:     defs,
		MaxTokens: l.settings.MaxTokens,
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("inference: %w", err)
	}
	if l.deps.Usage != nil {
		l.deps.Usage.Track(l.deps.Inference.Provider(), model, tier, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	// Dispatch, sequentially and in model order, with the tier fixed above.
	env := tools.Env{Identity: id, Tier: tier, Turn: number}
	records := make([]store.ToolCallRecord, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		records = append(records, l.dispatch(ctx, env, call))
	}

	// Persist
	turn := store.Turn{
		ID:        uuid.NewString(),
		Agent:     id.Name,
		Number:    number,
		Content:   resp.Text,
		Tier:      tier,
		CreatedAt: l.now(),
	}
	if err := l.deps.Store.SaveTurn(persistContext(ctx), turn, records); err != nil {
		if errors.Is(err, store.ErrTurnExists) {
			return TurnResult{}, fmt.Errorf("turn %d already recorded: %w", number, err)
		}
		return TurnResult{}, fmt.Errorf("persist turn %d: %w", number, err)
	}

	logging.Turn("Turn %d complete (tier %s, %d tool calls)", number, tier, len(records))
	return TurnResult{Number: number, Tier: tier, Text: resp.Text, ToolCalls: len(records)}, nil
}

// persistContext keeps a cancellation that arrives after dispatch from
// discarding the record of side effects that already happened.
func persistContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (l *Loop) availableTools(tier survival.Tier) []*tools.Tool {
	all := l.deps.Dispatcher.Registry().All()
	out := make([]*tools.Tool, 0, len(all))
	for _, t := range all {
		if t.Allows(tier) {
			out = append(out, t)
		}
	}
	return out
}

func (l *Loop) dispatch(ctx context.Context, env tools.Env, call inference.ToolCall) store.ToolCallRecord {
	rec := store.ToolCallRecord{
		ID:    uuid.NewString(),
		Agent: env.Identity.Name,
		Turn:  env.Turn,
		Tool:  call.Name,
		Input: call.Input,
	}
	if len(rec.Input) == 0 || !json.Valid(rec.Input) {
		rec.Input = []byte("{}")
	}

	logging.Turn("Calling tool: %s", call.Name)
	args, argErr := tools.DecodeArgs(call.Input)
	var out tools.Output
	if argErr != nil {
		out = tools.Output{Tool: call.Name, Err: argErr}
	} else {
		out = l.deps.Dispatcher.Execute(ctx, env, call.Name, args)
	}
	if !out.IsSuccess() {
		logging.TurnDebug("Tool %s returned %s: %s", call.Name, out.Err.Code, out.Err.Message)
	}
	rec.Output = out.JSON()
	rec.CreatedAt = l.now()
	return rec
}
