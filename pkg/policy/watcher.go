package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Watch reloads the policy file when it is edited externally. Accepted
// edits bump the version with source="file" and notify subscribers; a
// write the store itself just made is ignored by value comparison.
// Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file, which would detach a
	// direct file watch.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.reloadFromFile()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Policy watcher error", "error", err)
		}
	}
}

func (s *Store) reloadFromFile() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("Could not read edited policy file", "path", s.path, "error", err)
		return
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		s.logger.Warn("Edited policy file is not valid YAML, ignoring",
			"path", s.path, "error", err)
		return
	}
	loaded, err := validateLoaded(p)
	if err != nil {
		s.logger.Warn("Edited policy file rejected", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	unchanged := loaded.AlarmPrioritization == s.cur.AlarmPrioritization &&
		loaded.WaysOfWorking == s.cur.WaysOfWorking &&
		loaded.KPIAlignment == s.cur.KPIAlignment
	if unchanged {
		s.mu.Unlock()
		return
	}
	loaded.Version = s.cur.Version + 1
	loaded.UpdatedAt = s.now().UTC()
	loaded.Source = "file"
	s.cur = loaded
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info("Policy reloaded from file", "version", loaded.Version)
}
