// Package logging provides categorized structured logging for the agent runtime.
// Every category shares one zap core that tees a console encoder and a dated
// JSON file under the state directory. Before Initialize all loggers are no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup and shutdown
	CategorySurvival    Category = "survival"    // Balance and tier evaluation
	CategoryTurn        Category = "turn"        // Turn loop
	CategoryAPI         Category = "api"         // Inference calls
	CategoryTools       Category = "tools"       // Tool dispatch
	CategoryChain       Category = "chain"       // Blockchain RPC
	CategoryReplication Category = "replication" // Child spawning
	CategoryAudit       Category = "audit"       // Self-modification ledger
	CategorySocial      Category = "social"      // Inter-agent messages
	CategoryHeartbeat   Category = "heartbeat"   // Heartbeat scheduler
	CategoryStore       Category = "store"       // Persistence
)

// Options controls where and how much is logged.
type Options struct {
	// Dir receives the dated JSON log file. Empty disables file output.
	Dir string
	// Level is one of debug, info, warn, error.
	Level string
	// Console enables human-readable output on stderr.
	Console bool
}

// Logger wraps a zap sugared logger bound to a category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logFile *os.File
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared core. It may be called again to reconfigure;
// the previous file handle is closed.
func Initialize(opts Options) error {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	var cores []zapcore.Core
	var file *os.File
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := fmt.Sprintf("%s_web.log", time.Now().Format("2006-01-02"))
		file, err = os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}
	if opts.Console {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	level.SetLevel(lvl)
	logFile = file
	if len(cores) == 0 {
		root = zap.NewNop()
	} else {
		root = zap.New(zapcore.NewTee(cores...))
	}
	loggers = make(map[Category]*Logger)

	root.Named(string(CategoryBoot)).Debug("logging initialized",
		zap.String("dir", opts.Dir),
		zap.String("level", lvl.String()),
		zap.Bool("console", opts.Console))
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// SetLevel changes the level of every category at runtime.
func SetLevel(s string) error {
	lvl, err := parseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Root returns the shared zap logger for callers that want typed fields.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Get returns (or creates) the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// CloseAll flushes and closes the log file (call at shutdown). Subsequent
// logging is discarded until Initialize is called again.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	root = zap.NewNop()
	loggers = make(map[Category]*Logger)
}

func closeLocked() {
	_ = root.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Survival logs to the survival category
func Survival(format string, args ...interface{}) { Get(CategorySurvival).Info(format, args...) }

// Turn logs to the turn category
func Turn(format string, args ...interface{}) { Get(CategoryTurn).Info(format, args...) }

// TurnDebug logs debug to the turn category
func TurnDebug(format string, args ...interface{}) { Get(CategoryTurn).Debug(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Tools logs to the tools category
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

// ToolsDebug logs debug to the tools category
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

// Chain logs to the chain category
func Chain(format string, args ...interface{}) { Get(CategoryChain).Info(format, args...) }

// Replication logs to the replication category
func Replication(format string, args ...interface{}) {
	Get(CategoryReplication).Info(format, args...)
}

// Audit logs to the audit category
func Audit(format string, args ...interface{}) { Get(CategoryAudit).Info(format, args...) }

// Social logs to the social category
func Social(format string, args ...interface{}) { Get(CategorySocial).Info(format, args...) }

// Heartbeat logs to the heartbeat category
func Heartbeat(format string, args ...interface{}) { Get(CategoryHeartbeat).Info(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs warning to the store category
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
