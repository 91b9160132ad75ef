// Package watch re-aggregates libraries when their version tree files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is invoked once per changed library after the debounce delay.
type Handler func(ctx context.Context, library string) error

// Watcher watches an input directory laid out as
// <dir>/<library>/<version>/<package>.json.
type Watcher struct {
	dir       string
	handler   Handler
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	debounceDelay time.Duration
	pending       map[string]struct{}
	pendingMu     sync.Mutex
	debounceTimer *time.Timer

	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runMu  sync.Mutex
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnError sets the callback for watch and handler errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a Watcher over dir. Every existing directory below dir is
// watched; directories created later are added as they appear.
func New(dir string, handler Handler, opts ...WatcherOption) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		dir:           filepath.Clean(dir),
		handler:       handler,
		fsWatcher:     fsWatcher,
		logger:        slog.New(slog.DiscardHandler),
		debounceDelay: 500 * time.Millisecond,
		pending:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addDirs(w.dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to add directories to watch: %w", err)
	}
	return w, nil
}

// addDirs recursively adds root and its subdirectories to the watcher.
func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// Start begins watching for changes. Handlers run with ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.eventLoop()
}

// Stop stops the watcher and waits for a running handler to return.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.pendingMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.pendingMu.Unlock()
	err := w.fsWatcher.Close()
	w.wg.Wait()
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				w.reportError(err)
			}
			// New library and version directories may arrive already
			// populated, e.g. when moved in.
			if lib, ok := libraryForDir(w.dir, event.Name); ok {
				w.enqueue(lib)
			}
			return
		}
	}

	lib, ok := LibraryFor(w.dir, event.Name)
	if !ok {
		return
	}
	w.enqueue(lib)
}

func (w *Watcher) enqueue(lib string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[lib] = struct{}{}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.flush)
}

// flush runs the handler for every library collected since the last flush.
func (w *Watcher) flush() {
	w.pendingMu.Lock()
	libs := make([]string, 0, len(w.pending))
	for lib := range w.pending {
		libs = append(libs, lib)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()
	sort.Strings(libs)

	w.runMu.Lock()
	defer w.runMu.Unlock()
	for _, lib := range libs {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Info("library changed", "library", lib)
		if err := w.handler(w.ctx, lib); err != nil {
			w.reportError(fmt.Errorf("library %s: %w", lib, err))
		}
	}
}

func (w *Watcher) reportError(err error) {
	w.logger.Warn("watch error", "error", err)
	if w.onError != nil {
		w.onError(err)
	}
}

// LibraryFor maps a path below dir to the library it belongs to. Only
// version tree files (<library>/<version>/<package>.json) count.
func LibraryFor(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[0] == ".." || filepath.Ext(parts[2]) != ".json" {
		return "", false
	}
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false
		}
	}
	return parts[0], true
}

// libraryForDir maps a library directory (<library>) or a version
// directory (<library>/<version>) below dir to its library.
func libraryForDir(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 2 || parts[0] == "." || parts[0] == ".." {
		return "", false
	}
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false
		}
	}
	return parts[0], true
}
