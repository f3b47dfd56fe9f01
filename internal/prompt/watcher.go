package prompt

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"webbot/internal/logging"
)

// Watcher invalidates Documents entries when their files change on disk.
// It watches the parent directories so files created after Start are seen.
type Watcher struct {
	mu      sync.Mutex
	docs    *Documents
	watcher *fsnotify.Watcher
	files   map[string]bool
	doneCh  chan struct{}
	running bool

	// onInvalidate is called after each invalidation.
	onInvalidate func(path string)
}

// NewWatcher creates a watcher for the documents' files.
func NewWatcher(docs *Documents) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	files := make(map[string]bool)
	for _, p := range docs.Paths() {
		files[p] = true
	}
	return &Watcher{docs: docs, watcher: fw, files: files, doneCh: make(chan struct{})}, nil
}

// Start adds the directories and runs the event loop until ctx is done or
// Stop is called. Directories that do not exist are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for p := range w.files {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			logging.Get(logging.CategoryTurn).Warn("Document watcher: cannot watch %s: %v", dir, err)
			continue
		}
		logging.TurnDebug("Document watcher: watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryTurn).Warn("Document watcher: close: %v", err)
	}
	if running {
		<-w.doneCh
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryTurn).Warn("Document watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if !w.files[path] {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.docs.Invalidate(path)
	logging.TurnDebug("Document watcher: %s %s", event.Op, path)
	if w.onInvalidate != nil {
		w.onInvalidate(path)
	}
}
