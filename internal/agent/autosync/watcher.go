package autosync

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rjeczalik/notify"
)

var ErrAlreadyWatching = errors.New("watcher already running")

// Watcher reports changes below a directory. The channel returned by Watch
// carries changed paths and is closed after Stop.
type Watcher interface {
	Watch(dir string) (<-chan string, error)
	Stop()
}

// NotifyWatcher watches a directory tree recursively with rjeczalik/notify.
type NotifyWatcher struct {
	mu   sync.Mutex
	raw  chan notify.EventInfo
	done chan struct{}
}

func NewNotifyWatcher() *NotifyWatcher {
	return &NotifyWatcher{}
}

func (w *NotifyWatcher) Watch(dir string) (<-chan string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.raw != nil {
		return nil, ErrAlreadyWatching
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", dir, err)
	}

	raw := make(chan notify.EventInfo, 100)
	if err := notify.Watch(filepath.Join(abs, "..."), raw, notify.All); err != nil {
		return nil, fmt.Errorf("failed to setup file watcher: %w", err)
	}

	out := make(chan string, 100)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case ei := <-raw:
				// drop when the consumer is behind; one queued path is enough
				// to trigger the next pass
				select {
				case out <- ei.Path():
				default:
				}
			case <-done:
				return
			}
		}
	}()

	w.raw, w.done = raw, done
	return out, nil
}

func (w *NotifyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.raw == nil {
		return
	}
	notify.Stop(w.raw)
	close(w.done)
	w.raw, w.done = nil, nil
}
