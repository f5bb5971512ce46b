// Package watcher observes the workspace for removed directories so that
// sessions never keep a working directory that no longer exists.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"workspace-terminal/internal/logging"
	"workspace-terminal/internal/protocol"
	"workspace-terminal/internal/session"
)

const (
	DefaultDebounce = 500 * time.Millisecond
)

// excludedDirs are directories excluded from watching and tree generation.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
}

// Reconciler repairs sessions affected by a removed path.
type Reconciler interface {
	Reconcile(path string) []session.Session
}

// ResetCallback is called with the sessions moved back to the root.
type ResetCallback func(sessions []session.Session)

// Watcher monitors the workspace tree and reconciles sessions after
// directories are removed or renamed.
type Watcher struct {
	root       string
	reconciler Reconciler
	callback   ResetCallback
	logger     *slog.Logger

	// Debounce delays reconciliation until events stop arriving.
	Debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	ready chan struct{}
}

// New creates a watcher for root. A nil logger discards output.
func New(root string, reconciler Reconciler, callback ResetCallback, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Watcher{
		root:       root,
		reconciler: reconciler,
		callback:   callback,
		logger:     logger,
		Debounce:   DefaultDebounce,
		pending:    make(map[string]struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the initial directory walk has completed.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the workspace until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsW.Close()

	if err := addDirsRecursive(fsW, w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	close(w.ready)
	w.logger.Info("watcher_started", "root", w.root)

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsW.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsW, event)

		case err, ok := <-fsW.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher_error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(fsW *fsnotify.Watcher, event fsnotify.Event) {
	// If a new directory is created, watch it too.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(fsW, event.Name); err != nil {
				w.logger.Debug("watcher_add_failed", "path", event.Name, "error", err)
			}
		}
		return
	}

	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[filepath.Clean(event.Name)] = struct{}{}

	// Debounce: reset timer on each event.
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Debounce, w.flush)
}

// flush reconciles every path removed since the last flush.
func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)

	var reset []session.Session
	for _, p := range paths {
		reset = append(reset, w.reconciler.Reconcile(p)...)
	}
	if len(reset) == 0 {
		return
	}

	w.logger.Info("sessions_reconciled", "count", len(reset))
	if w.callback != nil {
		w.callback(reset)
	}
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// BuildFileTree generates a FileNode tree for a directory up to maxDepth levels.
func BuildFileTree(dir string, maxDepth int) []protocol.FileNode {
	return buildTreeRecursive(dir, dir, 0, maxDepth)
}

func buildTreeRecursive(rootDir, currentDir string, depth, maxDepth int) []protocol.FileNode {
	if depth >= maxDepth {
		return nil
	}

	entries, err := os.ReadDir(currentDir)
	if err != nil {
		return nil
	}

	// Separate dirs and files, then sort: dirs first, files second.
	var dirs, files []os.DirEntry
	for _, entry := range entries {
		name := entry.Name()
		if excludedDirs[name] || isHidden(name) {
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, entry)
		} else {
			files = append(files, entry)
		}
	}

	nodes := make([]protocol.FileNode, 0, len(dirs)+len(files))

	for _, d := range dirs {
		fullPath := filepath.Join(currentDir, d.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		nodes = append(nodes, protocol.FileNode{
			Name:     d.Name(),
			Path:     relPath,
			IsDir:    true,
			Children: buildTreeRecursive(rootDir, fullPath, depth+1, maxDepth),
		})
	}

	for _, f := range files {
		fullPath := filepath.Join(currentDir, f.Name())
		relPath, _ := filepath.Rel(rootDir, fullPath)
		var size int64
		if info, err := f.Info(); err == nil {
			size = info.Size()
		}
		nodes = append(nodes, protocol.FileNode{
			Name: f.Name(),
			Path: relPath,
			Size: size,
		})
	}

	return nodes
}

// addDirsRecursive adds a directory and its subdirectories to an fsnotify watcher.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		if excludedDirs[d.Name()] && path != dir {
			return filepath.SkipDir
		}

		return w.Add(path)
	})
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
