// Package fsw turns file-system events into a monotonic change
// generation. Consumers snapshot ChangeGen and compare later; equality
// over time means no watched file changed in between.
package fsw

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

type Watcher struct {
	gen  atomic.Uint64
	fw   *fsnotify.Watcher
	once sync.Once
	done chan struct{}
}

func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "fsnotify watcher")
	}
	w := &Watcher{fw: fw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case _, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.gen.Add(1)
		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// treat watch errors as potential mutations
			w.gen.Add(1)
		case <-w.done:
			return
		}
	}
}

// Add registers a path (file or directory) for change tracking.
func (w *Watcher) Add(path string) error {
	return errors.Wrapf(w.fw.Add(path), "watch %s", path)
}

// ChangeGen returns the current generation.
func (w *Watcher) ChangeGen() uint64 {
	return w.gen.Load()
}

// Bump advances the generation by hand; higher layers use this when
// they observe mutations through other channels.
func (w *Watcher) Bump() {
	w.gen.Add(1)
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}
