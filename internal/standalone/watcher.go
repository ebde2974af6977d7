// Package standalone watches and scans plain filesystem directories,
// grouping discovered media into series and movies that feed the wanted
// pipeline without a library manager.
package standalone

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/mediascan"
)

// FileEvent is one settled filesystem change on a video file.
type FileEvent struct {
	Path    string
	Removed bool
}

// Handler consumes settled file events.
type Handler func(events []FileEvent)

// Watcher monitors directories for video file changes. Events are
// debounced per path; before dispatch a file's size is sampled twice and
// the debounce restarts while the file is still growing, so half-copied
// media never reaches the scanner.
type Watcher struct {
	fsWatcher      *fsnotify.Watcher
	debounceDelay  time.Duration
	stabilityDelay time.Duration
	logger         zerolog.Logger
	handler        Handler

	watchedPaths map[string]bool
	pathsMu      sync.RWMutex

	pending map[string]*pendingFile
	mu      sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingFile struct {
	timer    *time.Timer
	lastSize int64
	removed  bool
}

// NewWatcher creates a watcher. Zero delays fall back to 5s debounce
// and 2s stability.
func NewWatcher(debounce, stability time.Duration, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	if stability <= 0 {
		stability = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fsWatcher:      fsWatcher,
		debounceDelay:  debounce,
		stabilityDelay: stability,
		logger:         logger.With().Str("component", "standalone-watcher").Logger(),
		watchedPaths:   make(map[string]bool),
		pending:        make(map[string]*pendingFile),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// SetHandler sets the settled-event consumer.
func (w *Watcher) SetHandler(h Handler) { w.handler = h }

// Start launches the event loop.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
}

// Stop cancels pending timers and closes the underlying watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	w.mu.Lock()
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]*pendingFile)
	w.mu.Unlock()
	w.wg.Wait()
	return w.fsWatcher.Close()
}

// AddPath watches a directory tree recursively.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.pathsMu.Lock()
	defer w.pathsMu.Unlock()

	if w.watchedPaths[absPath] {
		return nil
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.watchedPaths[absPath] = true
	w.logger.Info().Str("path", absPath).Msg("watching directory")

	filepath.WalkDir(absPath, func(subPath string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && subPath != absPath {
			if err := w.fsWatcher.Add(subPath); err != nil {
				w.logger.Warn().Err(err).Str("path", subPath).Msg("subdirectory watch failed")
				return nil
			}
			w.watchedPaths[subPath] = true
		}
		return nil
	})
	return nil
}

// WatchedPaths lists the directories currently under watch.
func (w *Watcher) WatchedPaths() []string {
	w.pathsMu.RLock()
	defer w.pathsMu.RUnlock()
	paths := make([]string, 0, len(w.watchedPaths))
	for path := range w.watchedPaths {
		paths = append(paths, path)
	}
	return paths
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
			w.handleFsEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	// New subdirectories join the watch so nested copies are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsWatcher.Add(event.Name); err == nil {
				w.pathsMu.Lock()
				w.watchedPaths[event.Name] = true
				w.pathsMu.Unlock()
			}
			return
		}
	}

	name := filepath.Base(event.Name)
	if !mediascan.IsVideoFile(name) || mediascan.IsSampleFile(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.schedule(event.Name, true)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.schedule(event.Name, false)
	}
}

// schedule arms (or re-arms) the per-path debounce timer. A burst of
// writes on one file collapses into a single dispatch.
func (w *Watcher) schedule(path string, removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.removed = removed
		p.timer.Reset(w.debounceDelay)
		return
	}
	p := &pendingFile{removed: removed}
	p.timer = time.AfterFunc(w.debounceDelay, func() { w.settle(path) })
	w.pending[path] = p
}

// settle runs after the debounce window. Removals dispatch immediately;
// additions only dispatch once two size samples agree.
func (w *Watcher) settle(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	w.mu.Unlock()
	if !ok || w.ctx.Err() != nil {
		return
	}

	if p.removed {
		w.dispatch(path, p)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Vanished between the event and the check.
		w.dispatchRemoved(path, p)
		return
	}
	size := info.Size()
	if p.lastSize == 0 {
		// First sample; re-check after the stability window.
		p.lastSize = size
		w.mu.Lock()
		p.timer.Reset(w.stabilityDelay)
		w.mu.Unlock()
		return
	}
	if size != p.lastSize {
		// Still growing: back to a full debounce window.
		p.lastSize = size
		w.mu.Lock()
		p.timer.Reset(w.debounceDelay)
		w.mu.Unlock()
		w.logger.Debug().Str("path", path).Int64("size", size).Msg("file still settling")
		return
	}
	w.dispatch(path, p)
}

func (w *Watcher) dispatch(path string, p *pendingFile) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if w.handler != nil {
		go w.handler([]FileEvent{{Path: path, Removed: p.removed}})
	}
	w.logger.Debug().Str("path", path).Bool("removed", p.removed).Msg("file event settled")
}

func (w *Watcher) dispatchRemoved(path string, p *pendingFile) {
	p.removed = true
	w.dispatch(path, p)
}
