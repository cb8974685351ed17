package filter

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDuration coalesces bursts of writes from editors.
var DebounceDuration = 500 * time.Millisecond

// Watcher reloads a Rules file when it changes on disk.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	done     chan struct{}
	rules    *Rules
	onReload func([]string)
}

// WatchRules starts watching the rule file's directory. onReload is called
// with the fresh patterns after each successful reload; it may be nil.
func WatchRules(rules *Rules, onReload func([]string)) (*Watcher, error) {
	if rules.Path() == "" {
		return nil, fmt.Errorf("filter rules have no backing file")
	}
	dir := filepath.Dir(rules.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher:  fw,
		done:     make(chan struct{}),
		rules:    rules,
		onReload: onReload,
	}
	go w.loop(fw)
	log.Printf("INFO: Watching %s for filter rule changes", rules.Path())
	return w, nil
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.watcher = nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	var debounce *time.Timer
	target := filepath.Clean(w.rules.Path())

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DebounceDuration, w.reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR: filter rule watcher: %v", err)

		case <-w.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.rules.Reload(); err != nil {
		log.Printf("ERROR: reloading filter rules: %v", err)
		return
	}
	patterns := w.rules.Patterns()
	log.Printf("INFO: filter rules reloaded (%d rules)", len(patterns))
	if w.onReload != nil {
		w.onReload(patterns)
	}
}
