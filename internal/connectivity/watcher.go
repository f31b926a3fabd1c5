package connectivity

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher feeds a Signal from a status file containing "online" or
// "offline". The host writes the file whenever its network state changes.
//
// The parent directory is watched rather than the file itself so that
// atomic replace-by-rename is seen.
type Watcher struct {
	path   string
	signal *Signal
	logger *log.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a Watcher for path. It must be started with Start.
func NewWatcher(path string, signal *Signal, logger *log.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("status file path cannot be empty")
	}
	if signal == nil {
		return nil, fmt.Errorf("signal cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:    abs,
		signal:  signal,
		logger:  logger,
		watcher: fw,
		done:    make(chan struct{}),
	}, nil
}

// Path returns the watched status file.
func (w *Watcher) Path() string {
	return w.path
}

// Start reads the current status, if the file exists, and begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.readStatus()

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Printf("Watching connectivity status file %s", w.path)
	return nil
}

// Stop stops watching. It blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.readStatus()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// readStatus applies the file's contents to the signal. A missing or
// unreadable file leaves the state unchanged.
func (w *Watcher) readStatus() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Printf("Warning: failed to read %s: %v", w.path, err)
		}
		return
	}
	if len(data) == 0 {
		// Truncated mid-write; the following write event carries the value.
		return
	}

	state, err := ParseState(string(data))
	if err != nil {
		w.logger.Printf("Warning: %v", err)
		return
	}
	if w.signal.Set(state) {
		w.logger.Printf("Connectivity changed: %s", state)
	}
}
