// Package usage accounts inference tokens per provider, model, survival
// tier and day, persisted to usage.json in the state directory.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"webbot/internal/logging"
	"webbot/internal/survival"
)

const (
	dataVersion = "1.0"

	// DefaultSaveDelay debounces writes after Track.
	DefaultSaveDelay = 5 * time.Second
)

// Tracker records token usage and persists it.
type Tracker struct {
	mu        sync.Mutex
	data      Data
	filePath  string
	dirty     bool
	saveDelay time.Duration
	timer     *time.Timer
	now       func() time.Time
}

// NewTracker loads (or starts) the usage file at path. A corrupt file is
// logged and replaced on the next save.
func NewTracker(path string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}
	t := &Tracker{
		filePath:  path,
		data:      Data{Version: dataVersion},
		saveDelay: DefaultSaveDelay,
		now:       time.Now,
	}
	t.data.Aggregate.ensureMaps()

	if err := t.load(); err != nil {
		logging.Get(logging.CategoryAPI).Warn("Ignoring unreadable usage file %s: %v", path, err)
		t.data = Data{Version: dataVersion}
		t.data.Aggregate.ensureMaps()
	}
	return t, nil
}

func (t *Tracker) load() error {
	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	d.Aggregate.ensureMaps()
	t.data = d
	return nil
}

// Track records one inference call and schedules a save.
func (t *Tracker) Track(provider, model string, tier survival.Tier, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.Add(input, output)
	agg.Calls++
	addToMap(agg.ByProvider, provider, input, output)
	addToMap(agg.ByModel, model, input, output)
	addToMap(agg.ByTier, string(tier), input, output)
	addToMap(agg.ByDay, t.now().UTC().Format("2006-01-02"), input, output)

	if !t.dirty {
		t.dirty = true
		t.timer = time.AfterFunc(t.saveDelay, func() {
			if err := t.Flush(); err != nil {
				logging.Get(logging.CategoryAPI).Warn("Failed to save usage: %v", err)
			}
		})
	}
}

// Flush writes pending changes.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	if err := t.saveLocked(); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Close stops the pending save timer and flushes.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	return t.Flush()
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0o644)
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByTier = copyTokenCountsMap(stats.ByTier)
	stats.ByDay = copyTokenCountsMap(stats.ByDay)
	return stats
}

// Read loads a usage file without tracking, for inspection commands.
func Read(path string) (AggregatedStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AggregatedStats{}, err
	}
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return AggregatedStats{}, fmt.Errorf("parse %s: %w", path, err)
	}
	d.Aggregate.ensureMaps()
	return d.Aggregate, nil
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}
