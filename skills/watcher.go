package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a manager's file-defined skills in sync with a catalog
// directory: new or edited *.json files are (re)loaded, removed files
// unregister the skill they defined.
type Watcher struct {
	manager *Manager
	dir     string
	fs      *fsnotify.Watcher

	mu     sync.Mutex
	byFile map[string]string // file path -> skill name
}

// NewWatcher creates a Watcher over dir. The directory's current contents
// are loaded immediately; call Run to follow subsequent changes.
func NewWatcher(m *Manager, dir string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{manager: m, dir: dir, fs: fs, byFile: make(map[string]string)}
	w.loadAll()
	return w, nil
}

func (w *Watcher) loadAll() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		slog.Warn("initial skill load failed", "dir", w.dir, "error", err)
		return
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		s, err := LoadFile(path)
		if err != nil {
			slog.Warn("skipping skill file", "file", entry.Name(), "error", err)
			continue
		}
		w.manager.Register(s)
		w.byFile[path] = s.Metadata().Name
		count++
	}
	slog.Info("skills loaded", "dir", w.dir, "count", count)
}

// Run processes filesystem events until the context is cancelled or the
// watcher is closed. It blocks; run it in its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("skill watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".json") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		s, err := LoadFile(event.Name)
		if err != nil {
			slog.Warn("skipping changed skill file", "file", filepath.Base(event.Name), "error", err)
			return
		}
		w.manager.Register(s)
		w.mu.Lock()
		w.byFile[event.Name] = s.Metadata().Name
		w.mu.Unlock()
		slog.Info("skill reloaded", "skill", s.Metadata().Name)

	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.mu.Lock()
		name, ok := w.byFile[event.Name]
		delete(w.byFile, event.Name)
		w.mu.Unlock()
		if ok {
			w.manager.Unregister(name)
			slog.Info("skill removed", "skill", name)
		}
	}
}

// Close stops watching the directory.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
