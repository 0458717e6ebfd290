package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/neural-portfolio/pkg/logging"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeData ChangeType = iota
	ChangeTypeConfig
	ChangeTypeRemoved
)

func (c ChangeType) String() string {
	switch c {
	case ChangeTypeData:
		return "data"
	case ChangeTypeConfig:
		return "config"
	case ChangeTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches individual files for changes. The parent directories are
// watched so files replaced by rename are still seen.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]ChangeType // absolute path -> type of change it signals
	events  chan ChangeEvent
	done    chan struct{}
	mu      sync.Mutex
}

// NewFileWatcher creates a watcher for the portfolio data file.
func NewFileWatcher(dataPath string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		files:   make(map[string]ChangeType),
		events:  make(chan ChangeEvent, 100),
		done:    make(chan struct{}),
	}
	if err := fw.Add(dataPath, ChangeTypeData); err != nil {
		watcher.Close()
		return nil, err
	}
	return fw, nil
}

// Add watches another file; changes to it are reported with the given type
func (fw *FileWatcher) Add(path string, kind ChangeType) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fw.mu.Lock()
	fw.files[abs] = kind
	fw.mu.Unlock()

	if err := fw.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logging.Debug("watching file", "path", abs, "type", kind)
	return nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	count := len(fw.files)
	fw.mu.Unlock()
	logging.Info("started watching files", "count", count)

	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, bool) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return 0, false
	}
	fw.mu.Lock()
	kind, ok := fw.files[abs]
	fw.mu.Unlock()
	if !ok {
		return 0, false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if kind == ChangeTypeData {
			return ChangeTypeRemoved, true
		}
		return kind, true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		return kind, true
	default:
		return 0, false
	}
}

// processEvents filters file system events down to the watched files
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.done)
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			kind, relevant := fw.classify(event)
			if !relevant {
				continue
			}
			logging.Trace("file event", "path", event.Name, "op", event.Op.String(), "type", kind)
			select {
			case fw.events <- ChangeEvent{Type: kind, Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Done is closed once the watcher has stopped
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}
