package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webbot/internal/audit"
	"webbot/internal/chain"
	"webbot/internal/config"
	"webbot/internal/store"
	"webbot/internal/survival"
	"webbot/internal/system"
	"webbot/internal/tools"
	"webbot/internal/usage"
)

const inspectTimeout = 15 * time.Second

// maxCellWidth bounds tool input and output in logs.
const maxCellWidth = 160

var (
	statusBalance bool
	logsTail      int
	auditLimit    int
	messagesLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity, last turn and persisted state",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent turns and their tool calls",
	Args:  cobra.NoArgs,
	RunE:  showLogs,
}

var childrenCmd = &cobra.Command{
	Use:   "children",
	Short: "List spawned children",
	Args:  cobra.NoArgs,
	RunE:  showChildren,
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the self-modification and replication audit log",
	Args:  cobra.NoArgs,
	RunE:  showAudit,
}

var soulCmd = &cobra.Command{
	Use:   "soul",
	Short: "Render the agent's SOUL.md",
	Args:  cobra.NoArgs,
	RunE:  showSoul,
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List recent messages without marking them delivered",
	Args:  cobra.NoArgs,
	RunE:  showMessages,
}

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Print the agent card as JSON",
	Args:  cobra.NoArgs,
	RunE:  showCard,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage by tier and model",
	Args:  cobra.NoArgs,
	RunE:  showUsage,
}

// openStore opens the agent database. A missing database is reported rather
// than created.
func openStore(p config.Paths, cfg *config.Config) (*store.LocalStore, error) {
	path := p.DatabasePath(cfg)
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("no database at %s (has the agent run yet?)", path)
			}
			return nil, err
		}
	}
	return store.NewLocalStore(path)
}

func showStatus(cmd *cobra.Command, args []string) error {
	p, id, cfg, err := loadState()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	fmt.Fprintln(out, titleStyle.Render(id.Name))
	printField(out, "Wallet", id.WalletPublicKey)
	printField(out, "Creator", id.CreatorAddress)
	if id.Parent != "" {
		printField(out, "Parent", id.Parent)
	}
	printField(out, "Created", id.CreatedAt.Local().Format(time.RFC3339))

	if statusBalance {
		rpcURL := id.RPCURL
		if cfg.Chain.RPCURL != "" {
			rpcURL = cfg.Chain.RPCURL
		}
		client := chain.NewClient(rpcURL, chain.Options{})
		balance, err := client.Balance(ctx, id.WalletPublicKey)
		_ = client.Close()
		if err != nil {
			printField(out, "Balance", errorStyle.Render(err.Error()))
		} else {
			printField(out, "Balance", fmt.Sprintf("%.4f SOL", balance))
			printField(out, "Live tier", renderTier(survival.TierFor(balance)))
		}
	}

	s, err := openStore(p, cfg)
	if err != nil {
		fmt.Fprintln(out, mutedStyle.Render(err.Error()))
		return nil
	}
	defer s.Close()

	last, err := s.LatestTurn(ctx, id.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		printField(out, "Turns", 0)
	case err != nil:
		return err
	default:
		printField(out, "Turns", last.Number)
		printField(out, "Tier", renderTier(last.Tier))
		printField(out, "Last turn", last.CreatedAt.Local().Format(time.RFC3339))
	}

	pending, err := s.CountUndelivered(ctx, id.Name)
	if err != nil {
		return err
	}
	printField(out, "Unread", pending)

	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	printField(out, "Tool calls", stats["tool_calls"])
	printField(out, "Children", stats["children"])
	printField(out, "Audit", stats["audit_log"])
	return nil
}

func showLogs(cmd *cobra.Command, args []string) error {
	p, id, cfg, err := loadState()
	if err != nil {
		return err
	}
	s, err := openStore(p, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := withTimeout(cmd)
	defer cancel()
	turns, err := s.RecentTurns(ctx, id.Name, logsTail)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(turns) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No turns recorded."))
		return nil
	}
	for _, t := range turns {
		writeTurn(out, t)
	}
	return nil
}

func writeTurn(w io.Writer, t store.Turn) {
	fmt.Fprintf(w, "%s %s %s\n",
		titleStyle.Render(fmt.Sprintf("Turn %d", t.Number)),
		renderTier(t.Tier),
		mutedStyle.Render(t.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	if text := strings.TrimSpace(t.Content); text != "" {
		fmt.Fprintln(w, text)
	}
	for _, c := range t.ToolCalls {
		fmt.Fprintf(w, "  -> %s %s\n     %s\n", c.Tool, oneLine(c.Input), oneLine(c.Output))
	}
	fmt.Fprintln(w)
}

// oneLine compacts JSON and truncates it for a single terminal line.
func oneLine(raw json.RawMessage) string {
	var buf bytes.Buffer
	s := string(raw)
	if err := json.Compact(&buf, raw); err == nil {
		s = buf.String()
	}
	s = strings.Join(strings.Fields(s), " ")
	if cut, ok := tools.Truncate(s, maxCellWidth); ok {
		return cut + "..."
	}
	return s
}

func showChildren(cmd *cobra.Command, args []string) error {
	p, id, cfg, err := loadState()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	var children []store.Child
	if s, err := openStore(p, cfg); err != nil {
		logger.Debug("Store unavailable", zap.Error(err))
	} else {
		children, err = s.ListChildren(ctx, id.Name, "")
		_ = s.Close()
		if err != nil {
			return err
		}
	}

	onDisk, err := system.DiscoverChildrenOnDisk(p.ChildrenDir(cfg))
	if err != nil {
		return err
	}
	disk := make(map[string]system.ChildState, len(onDisk))
	for _, c := range onDisk {
		disk[c.Name] = c.State
	}

	if len(children) == 0 && len(onDisk) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No children."))
		return nil
	}

	seen := make(map[string]bool, len(children))
	for _, c := range children {
		seen[c.Name] = true
		state, ok := disk[c.Name]
		if !ok {
			state = "missing"
		}
		fmt.Fprintf(out, "%s  %-8s %.4f SOL  disk:%s  %s\n",
			titleStyle.Render(c.Name), c.Status, c.InitialSOL, state, c.WalletPublicKey)
		if c.Error != "" {
			fmt.Fprintf(out, "    %s\n", errorStyle.Render(c.Error))
		}
	}
	// Directories the database does not know about.
	var orphans []string
	for _, c := range onDisk {
		if !seen[c.Name] {
			orphans = append(orphans, fmt.Sprintf("%s (%s)", c.Name, c.State))
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		fmt.Fprintln(out, mutedStyle.Render("Untracked: "+strings.Join(orphans, ", ")))
	}
	return nil
}

func showAudit(cmd *cobra.Command, args []string) error {
	p, _, cfg, err := loadState()
	if err != nil {
		return err
	}
	s, err := openStore(p, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := withTimeout(cmd)
	defer cancel()
	entries, err := audit.NewLedger(s).Query(ctx, audit.Filter{Limit: auditLimit, Newest: true})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("Audit log is empty."))
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s %s %s %s\n",
			mutedStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			titleStyle.Render(e.Action), e.Actor, e.TargetPath)
		if e.Reason != "" {
			fmt.Fprintf(out, "    %s\n", e.Reason)
		}
	}
	return nil
}

func showSoul(cmd *cobra.Command, args []string) error {
	p := paths()
	data, err := os.ReadFile(p.SoulPath())
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("SOUL.md is empty."))
		return nil
	}
	if err != nil {
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(string(data))
	if err != nil {
		logger.Debug("Markdown render failed", zap.Error(err))
		rendered = string(data)
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

func showMessages(cmd *cobra.Command, args []string) error {
	p, id, cfg, err := loadState()
	if err != nil {
		return err
	}
	s, err := openStore(p, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := withTimeout(cmd)
	defer cancel()
	msgs, err := s.ListMessages(ctx, id.Name, messagesLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No messages."))
		return nil
	}
	for _, m := range msgs {
		state := "read"
		if !m.Delivered {
			state = "unread"
		}
		fmt.Fprintf(out, "%s %s -> %s [%s]\n    %s\n",
			mutedStyle.Render(m.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			m.From, m.To, state, m.Content)
	}
	return nil
}

func showCard(cmd *cobra.Command, args []string) error {
	_, id, _, err := loadState()
	if err != nil {
		return err
	}
	capabilities := make([]string, 0, len(tools.Categories))
	for _, c := range tools.Categories {
		capabilities = append(capabilities, string(c))
	}
	card, err := chain.NewAgentCard(id.Name, id.WalletPublicKey, id.CreatorAddress, capabilities, id.CreatedAt)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(card)
}

func showUsage(cmd *cobra.Command, args []string) error {
	p := paths()
	stats, err := usage.Read(p.UsagePath())
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No usage recorded."))
		return nil
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printField(out, "Calls", stats.Calls)
	printField(out, "Input", stats.Total.Input)
	printField(out, "Output", stats.Total.Output)
	writeBreakdown(out, "By tier", stats.ByTier)
	writeBreakdown(out, "By model", stats.ByModel)
	writeBreakdown(out, "By day", stats.ByDay)
	return nil
}

func writeBreakdown(w io.Writer, title string, m map[string]usage.TokenCounts) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, titleStyle.Render(title))
	for _, k := range keys {
		c := m[k]
		fmt.Fprintf(w, "  %-28s in %-10d out %-10d total %d\n", k, c.Input, c.Output, c.Total)
	}
}
