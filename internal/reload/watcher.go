// Package reload applies configuration changes to running modules, on
// SIGHUP or when the configuration file changes on disk.
package reload

import (
	"context"
	"os"
	"time"
)

// DefaultPollInterval is how often the watcher stats the file.
const DefaultPollInterval = 5 * time.Second

// Event reports a change of the watched file.
type Event struct {
	Path    string
	ModTime time.Time
}

// fileState is what the watcher compares between polls.
type fileState struct {
	modTime time.Time
	size    int64
}

func (s fileState) missing() bool { return s.modTime.IsZero() }

// Watcher polls a file and emits an Event when its modification time or
// size changes. A missing file is not a change; its reappearance is.
// Events are coalesced: a change that happens while the previous event is
// still unread is dropped.
type Watcher struct {
	path     string
	interval time.Duration
	events   chan Event
	last     fileState
}

// NewWatcher creates a watcher for path. The file's current state is the
// baseline: only later changes are reported. A non-positive interval means
// DefaultPollInterval.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		path:     path,
		interval: interval,
		events:   make(chan Event, 1),
	}
	w.last = w.stat()
	return w
}

// Events returns the change notifications. The channel is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := w.stat()
		if cur.missing() || cur == w.last {
			continue
		}
		w.last = cur
		select {
		case w.events <- Event{Path: w.path, ModTime: cur.modTime}:
		default:
		}
	}
}

func (w *Watcher) stat() fileState {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}
}
