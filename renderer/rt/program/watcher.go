package program

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher collects change notifications for shader files. Directories are
// watched rather than files because editors often replace a file on save.
type Watcher struct {
	watcher *fsnotify.Watcher
	log     Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
	dirty map[string]bool
	done  chan struct{}
}

func NewWatcher(log Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = nopLogger{}
	}
	w := &Watcher{
		watcher: fw,
		log:     log,
		files:   map[string]bool{},
		dirs:    map[string]bool{},
		dirty:   map[string]bool{},
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) Add(file string) error {
	file = filepath.Clean(file)
	dir := filepath.Dir(file)

	w.mu.Lock()
	w.files[file] = true
	watched := w.dirs[dir]
	w.dirs[dir] = true
	w.mu.Unlock()

	if watched {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		delete(w.dirs, dir)
		w.mu.Unlock()
		return err
	}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			w.mu.Lock()
			if w.files[name] {
				w.dirty[name] = true
			}
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnf("shader watcher: %v", err)
		}
	}
}

// Drain returns the files changed since the previous call and forgets them.
func (w *Watcher) Drain() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirty := w.dirty
	w.dirty = map[string]bool{}
	return dirty
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
