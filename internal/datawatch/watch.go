// Package datawatch reloads the dataset when the CSV file changes on
// disk, so a refreshed WHO export shows up without a restart.
package datawatch

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch monitors path and calls reload each time the file is written.
// It runs until ctx is cancelled.
//
// If a reload fails (e.g., a half-written file), the error is logged and
// the previously loaded dataset stays live.
func Watch(ctx context.Context, log *zap.Logger, path string, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Info("watching dataset for changes", zap.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Only reload on write or create events. Tools often replace
			// the file via rename (atomic save), so also catch Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := reload(); err != nil {
				log.Error("dataset reload failed, keeping previous data",
					zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("dataset reloaded", zap.String("path", path))

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("dataset watcher error", zap.Error(err))
		}
	}
}
