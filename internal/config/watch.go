package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watch on the Manager's backing file and
// calls Reload on every write/create event, until ctx is cancelled.
// Reload errors are reported to onErr rather than stopping the watch,
// since a single bad write to the file should not kill the watcher.
func (m *Manager) Watch(ctx context.Context, onErr func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := m.Reload(); err != nil && onErr != nil {
					onErr(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onErr != nil {
					onErr(err)
				}
			}
		}
	}()
	return nil
}
