package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teemow/mailsense/internal/logging"
)

const (
	defaultDebounceDelay = 50 * time.Millisecond
	changesBuffer        = 64
)

// Watcher reports user ids whose FileStore record changed on disk, including
// writes made by other processes sharing the directory. Bursts of events for
// one user are debounced into a single notification.
type Watcher struct {
	fsw      *fsnotify.Watcher
	delay    time.Duration
	changes  chan string
	done     chan struct{}
	closeErr error
	once     sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher watches dir. A zero delay uses the default debounce delay.
func NewWatcher(dir string, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fsw:     fsw,
		delay:   delay,
		changes: make(chan string, changesBuffer),
		done:    make(chan struct{}),
		logger:  logging.WithComponent(logger, "session.watcher"),
		timers:  make(map[string]*time.Timer),
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()

	return w, nil
}

// Changes returns the channel of changed user ids. It is never closed.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		for id, t := range w.timers {
			t.Stop()
			delete(w.timers, id)
		}
		w.mu.Unlock()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Remove) && !evt.Has(fsnotify.Rename) {
				continue
			}
			if id, ok := userIDFromPath(evt.Name); ok {
				w.schedule(id)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", logging.Err(err))
		}
	}
}

func (w *Watcher) schedule(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[id]; ok {
		t.Reset(w.delay)
		return
	}
	w.timers[id] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		w.emit(id)
	})
}

func (w *Watcher) emit(id string) {
	select {
	case <-w.done:
	case w.changes <- id:
	default:
		w.logger.Debug("Dropping change notification, consumer stalled", logging.UserHash(id))
	}
}
