package standalone

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/managers"
	"github.com/sublarr/sublarr/internal/mediascan"
)

// Service owns the watcher lifecycle and routes settled file events
// into the scanner. It satisfies managers.FilesystemSource.
type Service struct {
	scanner *Scanner
	watcher *Watcher
	cfg     config.StandaloneConfig
	logger  zerolog.Logger
}

var _ managers.FilesystemSource = (*Service)(nil)

// NewService builds the standalone subsystem. Call Start to begin
// watching; the initial full scan runs there too.
func NewService(scanner *Scanner, cfg config.StandaloneConfig, logger zerolog.Logger) (*Service, error) {
	watcher, err := NewWatcher(cfg.DebounceDelay, cfg.StabilityDelay, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		scanner: scanner,
		watcher: watcher,
		cfg:     cfg,
		logger:  logger.With().Str("component", "standalone").Logger(),
	}, nil
}

// Start performs an initial scan, then watches the configured
// directories for changes.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.scanner.Scan(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial scan failed")
	}

	for _, dir := range s.cfg.Directories {
		err := s.Watch(dir, func(changes []managers.FileChange) {
			s.handle(ctx, changes)
		})
		if err != nil {
			s.logger.Error().Err(err).Str("dir", dir).Msg("watch failed")
		}
	}
	s.watcher.Start()
	return nil
}

// Stop shuts the watcher down.
func (s *Service) Stop() error {
	return s.watcher.Stop()
}

// Rescan triggers a full walk on demand.
func (s *Service) Rescan(ctx context.Context) (*ScanSummary, error) {
	return s.scanner.Scan(ctx)
}

// Watch adds root to the watch set and installs handler for its settled
// changes.
func (s *Service) Watch(root string, handler func([]managers.FileChange)) error {
	s.watcher.SetHandler(func(events []FileEvent) {
		changes := make([]managers.FileChange, len(events))
		for i, ev := range events {
			changes[i] = managers.FileChange{Path: ev.Path, Removed: ev.Removed}
		}
		handler(changes)
	})
	return s.watcher.AddPath(root)
}

// Walk enumerates the non-sample video files currently under root.
func (s *Service) Walk(root string) ([]string, error) {
	return walkVideos(root)
}

func (s *Service) handle(ctx context.Context, changes []managers.FileChange) {
	var removed []string
	added := false
	for _, ch := range changes {
		if ch.Removed {
			removed = append(removed, ch.Path)
		} else {
			added = true
		}
	}
	if len(removed) > 0 {
		if err := s.scanner.RemovePaths(ctx, removed); err != nil {
			s.logger.Error().Err(err).Msg("remove vanished files failed")
		}
	}
	if added {
		if _, err := s.scanner.Scan(ctx); err != nil {
			s.logger.Error().Err(err).Msg("rescan after file event failed")
		}
	}
}

// walkVideos is the shared directory walk behind both Scanner.Scan and
// Service.Walk.
func walkVideos(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !mediascan.IsVideoFile(name) || mediascan.IsSampleFile(name) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
