// Package watcher reports changes to settings files.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the bursts editors and atomic saves produce.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches a set of files through their parent directories, so
// files replaced by rename or created later are still seen.
type Watcher struct {
	onChange func(path string)
	debounce time.Duration

	// dir -> base names watched in it
	targets map[string]map[string]bool

	fs   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// New creates a watcher that calls onChange with the file's path after it
// was written, created, renamed or removed.
func New(onChange func(path string), paths ...string) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watcher: onChange is required")
	}
	w := &Watcher{
		onChange: onChange,
		debounce: DefaultDebounce,
		targets:  make(map[string]map[string]bool),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		dir, base := filepath.Split(abs)
		dir = filepath.Clean(dir)
		if w.targets[dir] == nil {
			w.targets[dir] = make(map[string]bool)
		}
		w.targets[dir][base] = true
	}
	return w, nil
}

// SetDebounce changes the debounce interval. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching. Parent directories that do not exist are skipped;
// it is an error only when nothing at all can be watched.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	watched := 0
	for dir := range w.targets {
		if _, err := os.Stat(dir); err != nil {
			log.Debug().Str("dir", dir).Msg("Settings directory missing, not watching")
			continue
		}
		if err := fsw.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to watch directory")
			continue
		}
		watched++
	}
	if watched == 0 && len(w.targets) > 0 {
		_ = fsw.Close()
		return fmt.Errorf("no watchable directories")
	}

	w.fs = fsw
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}
	dir, base := filepath.Split(ev.Name)
	if !w.targets[filepath.Clean(dir)][base] {
		return
	}
	w.schedule(filepath.Clean(ev.Name))
}

// schedule restarts the debounce timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() { w.fire(path, t) })
	w.timers[path] = t
}

// fire runs the callback for t unless a newer change replaced it while it
// waited for the lock.
func (w *Watcher) fire(path string, t *time.Timer) {
	w.mu.Lock()
	if w.closed || w.timers[path] != t {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.mu.Unlock()

	log.Debug().Str("path", path).Msg("Settings file changed")
	w.onChange(path)
}

// Stop stops watching and cancels pending callbacks. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = nil
	w.mu.Unlock()

	close(w.done)
	var err error
	if w.fs != nil {
		err = w.fs.Close()
	}
	w.wg.Wait()
	return err
}
