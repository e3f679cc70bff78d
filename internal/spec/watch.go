package spec

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the type table at path on every write and hands it to
// onChange. A table that fails to load or validate is logged and dropped,
// leaving the previous one in place. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file, so saves that
// rename a temp file over path keep reloading.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(Types)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	logger.Info("watching service types", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			types, err := LoadTypes(path)
			if err != nil {
				logger.Error("service types reload failed, keeping previous table",
					zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("service types reloaded", zap.String("path", path), zap.Strings("types", types.Names()))
			onChange(types)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("service types watcher error", zap.Error(err))
		}
	}
}
