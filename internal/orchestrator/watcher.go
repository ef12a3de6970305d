package orchestrator

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rescanDebounce coalesces bursts of file-system events into one tree rescan.
const rescanDebounce = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and triggers a tree
// rescan plus refresh whenever Markdown files change on disk, until ctx is
// cancelled. New directories created at runtime are added to the watch list.
// Events for temp files and hidden entries are ignored.
func Watch(ctx context.Context, orch *Orchestrator, vaultRoot string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	// rescanTimer debounces the rescan so editors that write in bursts
	// (tmp file + rename) cause one refresh, not several.
	var rescanTimer *time.Timer
	var rescanCh <-chan time.Time

	scheduleRescan := func() {
		if rescanTimer == nil {
			rescanTimer = time.NewTimer(rescanDebounce)
			rescanCh = rescanTimer.C
		} else {
			rescanTimer.Reset(rescanDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rescanTimer != nil {
				rescanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rescanCh:
			if err := orch.Rescan(ctx); err != nil {
				logger.Warn("watcher: rescan failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			base := filepath.Base(absPath)
			if strings.HasPrefix(base, ".") {
				continue // hidden entries and atomic-write temp files
			}

			// New directories join the watch list so nested notes keep
			// producing events.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleRescan()
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change",
					slog.String("path", absPath),
					slog.String("op", ev.Op.String()))
				scheduleRescan()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
