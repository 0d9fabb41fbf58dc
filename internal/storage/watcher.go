package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent reports a write to a cached file, attributed back to its
// (owner, space, remote path) scope.
type ChangeEvent struct {
	Owner       string
	SpaceID     string
	RemotePath  string
	StoragePath string
}

// Watch monitors the cache root for local edits to cached files and
// sends a ChangeEvent for each write. It blocks until the context is
// cancelled. Directory creations extend the watch so files created in
// fresh subdirectories are caught too.
func (p *Provider) Watch(ctx context.Context, events chan<- ChangeEvent) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := p.addRecursive(watcher); err != nil {
		return fmt.Errorf("adding cache root to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			p.handleEvent(ctx, watcher, event, events)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}
			// fsnotify errors are non-fatal (e.g. too many watches);
			// the affected paths just won't report edits.
			_ = err
		}
	}
}

func (p *Provider) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event, events chan<- ChangeEvent) {
	if shouldIgnore(event.Name) {
		return
	}

	if event.Has(fsnotify.Create) {
		// New directory: start watching it so we catch files created
		// inside it. Lstat avoids following symlinks out of the cache.
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			_ = watcher.Add(event.Name)
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// Harmless if the path wasn't a watched directory.
		_ = watcher.Remove(event.Name)
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	owner, spaceID, remotePath, ok := p.RemotePathFor(event.Name)
	if !ok {
		return
	}

	change := ChangeEvent{
		Owner:       owner,
		SpaceID:     spaceID,
		RemotePath:  remotePath,
		StoragePath: event.Name,
	}

	select {
	case events <- change:
	case <-ctx.Done():
	}
}

// addRecursive walks the cache root and adds all directories to the
// fsnotify watcher.
func (p *Provider) addRecursive(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(p.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") && path != p.root {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

// shouldIgnore returns true for paths that are not user content: hidden
// files and editor temp files.
func shouldIgnore(absPath string) bool {
	name := filepath.Base(absPath)

	if strings.HasPrefix(name, ".") {
		return true
	}

	return strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp")
}
