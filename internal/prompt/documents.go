package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"webbot/internal/logging"
)

// Documents caches the constitution and SOUL files. An entry is reused
// while the file's size and mtime are unchanged; a Watcher drops entries on
// filesystem events so rewrites within the mtime granularity are seen too.
type Documents struct {
	constitutionPath string
	soulPath         string

	mu    sync.Mutex
	cache map[string]document
}

type document struct {
	content string
	size    int64
	modTime time.Time
}

// NewDocuments creates a cache for the two documents.
func NewDocuments(constitutionPath, soulPath string) *Documents {
	return &Documents{
		constitutionPath: filepath.Clean(constitutionPath),
		soulPath:         filepath.Clean(soulPath),
		cache:            make(map[string]document),
	}
}

// Constitution returns the constitution text, or DefaultConstitution when
// the file is missing or empty.
func (d *Documents) Constitution() string {
	text := d.load(d.constitutionPath)
	if text == "" {
		return DefaultConstitution
	}
	return text
}

// Soul returns the SOUL document, empty if it does not exist.
func (d *Documents) Soul() string {
	return d.load(d.soulPath)
}

// Paths returns the cached files.
func (d *Documents) Paths() []string {
	return []string{d.constitutionPath, d.soulPath}
}

// Invalidate drops the cached copy of path.
func (d *Documents) Invalidate(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, filepath.Clean(path))
}

func (d *Documents) cached(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.cache[path]
	return ok
}

func (d *Documents) load(path string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Get(logging.CategoryTurn).Warn("Cannot stat %s: %v", path, err)
		}
		delete(d.cache, path)
		return ""
	}
	if c, ok := d.cache[path]; ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
		return c.content
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Get(logging.CategoryTurn).Warn("Cannot read %s: %v", path, err)
		return ""
	}
	d.cache[path] = document{content: string(data), size: info.Size(), modTime: info.ModTime()}
	logging.TurnDebug("Loaded %s (%d bytes)", path, len(data))
	return string(data)
}
