// Package selfmod gates the agent's edits to its own source and documents.
//
// Every permitted modification is appended to the audit ledger before the
// file is touched. Protected paths are refused outright, and an identity is
// limited to a fixed number of modifications in a trailing window counted
// from the ledger itself.
package selfmod

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webbot/internal/audit"
	"webbot/internal/config"
	"webbot/internal/logging"
)

var (
	// ErrProtectedPath is returned for targets on the protected list.
	ErrProtectedPath = errors.New("path is protected")

	// ErrRateLimited is returned when the trailing-window limit is reached.
	ErrRateLimited = errors.New("self-modification rate limit reached")
)

const (
	DefaultLimit  = 10
	DefaultWindow = time.Hour
)

// Options configures a Guard.
type Options struct {
	// Root resolves relative targets. Empty uses the working directory.
	Root string
	// Protected extends the built-in protected list.
	Protected []string
	Limit     int
	Window    time.Duration
}

// Guard applies self-modifications.
type Guard struct {
	ledger    *audit.Ledger
	root      string
	protected [][]string
	limit     int
	window    time.Duration
}

// NewGuard returns a guard recording into ledger. The built-in protected
// paths are always included.
func NewGuard(ledger *audit.Ledger, opts Options) *Guard {
	g := &Guard{
		ledger: ledger,
		root:   opts.Root,
		limit:  opts.Limit,
		window: opts.Window,
	}
	if g.root == "" {
		if wd, err := os.Getwd(); err == nil {
			g.root = wd
		}
	}
	if g.limit <= 0 {
		g.limit = DefaultLimit
	}
	if g.window <= 0 {
		g.window = DefaultWindow
	}

	seen := make(map[string]bool)
	for _, p := range append(append([]string{}, config.DefaultProtectedPaths...), opts.Protected...) {
		key := strings.ToLower(filepath.ToSlash(filepath.Clean(p)))
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		g.protected = append(g.protected, splitPath(key))
	}
	return g
}

// Limit returns the maximum modifications per window.
func (g *Guard) Limit() int { return g.limit }

// Window returns the rate-limit window.
func (g *Guard) Window() time.Duration { return g.window }

// Resolve returns the absolute form of target.
func (g *Guard) Resolve(target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(g.root, target)
}

// IsProtected reports whether target names a protected file under any of
// its cleaned, absolute or symlink-resolved forms.
func (g *Guard) IsProtected(target string) bool {
	for _, form := range g.forms(target) {
		parts := splitPath(strings.ToLower(filepath.ToSlash(form)))
		for _, p := range g.protected {
			if hasSuffix(parts, p) {
				return true
			}
		}
	}
	return false
}

func (g *Guard) forms(target string) []string {
	forms := []string{filepath.Clean(target)}
	abs := g.Resolve(target)
	forms = append(forms, abs)
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		forms = append(forms, real)
	} else if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		// Target does not exist yet; its directory may still be a link.
		forms = append(forms, filepath.Join(dir, filepath.Base(abs)))
	}
	return forms
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}

func hasSuffix(parts, suffix []string) bool {
	if len(suffix) == 0 || len(suffix) > len(parts) {
		return false
	}
	off := len(parts) - len(suffix)
	for i := range suffix {
		if parts[off+i] != suffix[i] {
			return false
		}
	}
	return true
}

// Check runs the policy checks without recording or writing anything.
func (g *Guard) Check(ctx context.Context, actor, target string) error {
	if g.IsProtected(target) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, target)
	}
	n, err := g.ledger.CountSince(ctx, actor, audit.ActionSelfModify, g.window)
	if err != nil {
		return err
	}
	if n >= g.limit {
		return fmt.Errorf("%w: %d modifications in the last %v (limit %d)", ErrRateLimited, n, g.window, g.limit)
	}
	return nil
}

// Apply checks policy, appends the audit entry and then writes content to
// target. A failed write leaves the entry in place as a record of the attempt.
func (g *Guard) Apply(ctx context.Context, actor, target, content, reason string) (audit.Entry, error) {
	if err := g.Check(ctx, actor, target); err != nil {
		logging.Get(logging.CategoryAudit).Warn("self_modify refused for %s: %v", actor, err)
		return audit.Entry{}, err
	}

	path := g.Resolve(target)
	sum := sha256.Sum256([]byte(content))
	entry, err := g.ledger.Append(ctx, audit.Entry{
		Action:     audit.ActionSelfModify,
		Actor:      actor,
		TargetPath: path,
		Reason:     reason,
		Details: map[string]interface{}{
			"bytes":  len(content),
			"sha256": hex.EncodeToString(sum[:]),
		},
	})
	if err != nil {
		return audit.Entry{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return entry, fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return entry, fmt.Errorf("write %s: %w", path, err)
	}
	return entry, nil
}
