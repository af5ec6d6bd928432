package engine

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch rebuilds the scanner's rule options whenever a YAML file in the
// custom rules directory changes. Blocks until ctx is done. No-op when the
// scanner has no custom rules directory.
func (s *Scanner) Watch(ctx context.Context, logger *slog.Logger) error {
	if s.customDir == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.customDir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Info("custom rules changed, reloading", "file", event.Name)
			s.rebuildOpts()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", "error", err)
		}
	}
}
