package walk

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dirsync/server/internal/snapshot"
	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem events under a root into fresh snapshot captures.
// Event bursts are coalesced within a debounce window, then the whole tree is
// re-walked and the resulting snapshot handed to the callback. The walk is
// the source of truth; events only decide when to look.
type Watcher struct {
	root      string
	ignore    *Matcher
	debounce  time.Duration
	onCapture func(snapshot.Snapshot)

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(root string, ignore *Matcher, debounce time.Duration, onCapture func(snapshot.Snapshot)) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}

	w := &Watcher{
		root:      abs,
		ignore:    ignore,
		debounce:  debounce,
		onCapture: onCapture,
		fsw:       fsw,
	}

	if err := w.addRecursive(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive registers root and every subdirectory with the fs watcher.
// fsnotify watches are not recursive on their own.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignore.Match(path) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			log.Printf("watch add %s: %v", path, err)
		}
		return nil
	})
}

// Run consumes events until ctx is cancelled. New directories are added to
// the watch set as they appear; everything else just schedules a capture.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignore.Match(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						log.Printf("watch add %s: %v", event.Name, err)
					}
				}
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

// schedule arms or rewinds the debounce timer; the capture fires once the
// tree has been quiet for the full window.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.capture)
}

func (w *Watcher) capture() {
	w.mu.Lock()
	w.timer = nil
	w.mu.Unlock()

	snap, err := Walk(w.root, w.ignore)
	if err != nil {
		log.Printf("capture walk failed: %v", err)
		return
	}
	w.onCapture(snap)
}
