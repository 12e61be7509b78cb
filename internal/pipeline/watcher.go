package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mvp-joe/erlgraph/internal/extract"
)

// Watcher watches the root directory for source changes and re-runs
// extraction after a quiet period. The whole corpus is rewritten on
// each pass; the emitter's temp-then-rename keeps readers consistent.
type Watcher struct {
	pipeline     *Pipeline
	rootDir      string
	locator      *extract.Locator
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
}

// NewWatcher creates a file watcher driving the given pipeline.
func NewWatcher(p *Pipeline) (*Watcher, error) {
	locator, err := extract.NewLocator(p.rootDir, p.cfg.Paths.Include, p.cfg.Paths.Ignore,
		p.cfg.Limits.MinFileSize, p.cfg.Limits.MaxFileSize)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		pipeline:     p,
		rootDir:      p.rootDir,
		locator:      locator,
		watcher:      watcher,
		debounceTime: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}

	if err := w.addDirectoriesRecursively(p.rootDir); err != nil {
		watcher.Close()
		return nil, err
	}

	return w, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.watcher.Close()
	})
}

// watch is the main event loop with debouncing logic.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	rerunCh := make(chan struct{}, 1)
	changedFiles := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !w.shouldProcessEvent(event) {
				continue
			}

			relPath, _ := filepath.Rel(w.rootDir, event.Name)
			changedFiles[relPath] = true

			// New directories join the watch set.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if w.shouldWatchDirectory(event.Name) {
						if err := w.addDirectoriesRecursively(event.Name); err != nil {
							log.Printf("Warning: failed to watch new directory %s: %v", event.Name, err)
						}
					}
				}
			}

			if debounceTimer != nil {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
			}

			debounceTimer = time.AfterFunc(w.debounceTime, func() {
				select {
				case rerunCh <- struct{}{}:
				default:
				}
			})

		case <-rerunCh:
			w.triggerRerun(ctx, changedFiles)
			changedFiles = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("File watcher error: %v", err)
		}
	}
}

// triggerRerun re-extracts the tree. Touch events that left file
// content unchanged (same hash as the last successful run) are
// filtered out first; an empty batch after filtering is a no-op.
func (w *Watcher) triggerRerun(ctx context.Context, changedFiles map[string]bool) {
	if len(changedFiles) == 0 {
		return
	}

	if w.pipeline.store != nil && !w.contentChanged(changedFiles) {
		log.Printf("Ignoring %d change event(s): file content unchanged", len(changedFiles))
		return
	}

	log.Printf("Re-extracting due to changes in %d file(s)...", len(changedFiles))
	start := time.Now()

	summary, err := w.pipeline.Run(ctx)
	if err != nil {
		log.Printf("Error during re-extraction: %v", err)
		return
	}

	log.Printf("Re-extraction complete in %v (%d records from %d files, %d failed)",
		time.Since(start), summary.Records, summary.FilesTotal, summary.FilesFailed)
}

// contentChanged reports whether any changed file's hash differs from
// its last successful extraction.
func (w *Watcher) contentChanged(changedFiles map[string]bool) bool {
	checksums, err := w.pipeline.store.SucceededChecksums()
	if err != nil {
		log.Printf("Warning: failed to read manifest checksums: %v", err)
		return true
	}

	for relPath := range changedFiles {
		prev, ok := checksums[relPath]
		if !ok {
			return true
		}
		src, err := os.ReadFile(filepath.Join(w.rootDir, relPath))
		if err != nil {
			// Deleted or unreadable counts as changed.
			return true
		}
		sum := sha256.Sum256(src)
		if hex.EncodeToString(sum[:]) != prev {
			return true
		}
	}
	return false
}

// shouldProcessEvent checks if an event should trigger re-extraction.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	relPath, err := filepath.Rel(w.rootDir, event.Name)
	if err != nil {
		return false
	}

	return w.locator.Matches(relPath)
}

// shouldWatchDirectory checks if a directory should be watched.
func (w *Watcher) shouldWatchDirectory(path string) bool {
	relPath, err := filepath.Rel(w.rootDir, path)
	if err != nil {
		return false
	}
	return !w.locator.Ignores(relPath)
}

// addDirectoriesRecursively adds all directories in the tree to the watcher.
func (w *Watcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Printf("Warning: error accessing %s: %v", path, err)
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		if path != rootPath && !w.shouldWatchDirectory(path) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to watch directory %s: %v", path, err)
			return nil
		}

		return nil
	})
}
