package assets

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vkcore/engine/core"
)

var ErrWatcherClosed = errors.New("config watcher already closed")

/**
 * @brief Watches a single configuration file and reports every time its
 * content may have changed. The parent directory is watched so editors that
 * replace the file through a rename are still seen.
 */
type ConfigWatcher struct {
	path string

	mutex    sync.Mutex
	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	started  bool
	events   chan string
	errors   chan error
}

func NewConfigWatcher(path string) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("func NewConfigWatcher - %w", err)
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("func NewConfigWatcher - %w", err)
	}
	return &ConfigWatcher{
		path:     abs,
		fsnotify: fsWatch,
		// a pending change already means "reload", so one slot is enough
		events:  make(chan string, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

func (cw *ConfigWatcher) Path() string {
	return cw.path
}

// Start begins watching. Change notifications arrive on Events.
func (cw *ConfigWatcher) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isClosed {
		return ErrWatcherClosed
	}
	if cw.started {
		return nil
	}
	if err := cw.fsnotify.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("func Start - %w", err)
	}
	cw.started = true
	go cw.start()
	core.LogDebug("Watching %s for changes.", cw.path)
	return nil
}

// Events delivers the watched path each time it is created or written.
// Bursts of writes collapse into a single notification.
func (cw *ConfigWatcher) Events() <-chan string {
	return cw.events
}

func (cw *ConfigWatcher) Errors() <-chan error {
	return cw.errors
}

// Close stops the watcher and closes both channels. Safe to call twice.
func (cw *ConfigWatcher) Close() error {
	cw.mutex.Lock()
	if cw.isClosed {
		cw.mutex.Unlock()
		return nil
	}
	cw.isClosed = true
	started := cw.started
	close(cw.done)
	cw.mutex.Unlock()

	if started {
		<-cw.stopped
		return nil
	}
	close(cw.events)
	close(cw.errors)
	return cw.fsnotify.Close()
}

func (cw *ConfigWatcher) start() {
	defer close(cw.stopped)
	for {
		select {
		case e, ok := <-cw.fsnotify.Events:
			if !ok {
				cw.shutdown()
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			select {
			case cw.events <- cw.path:
			default:
			}

		case err, ok := <-cw.fsnotify.Errors:
			if !ok {
				cw.shutdown()
				return
			}
			core.LogError("config watcher: %s", err)
			select {
			case cw.errors <- err:
			default:
			}

		case <-cw.done:
			cw.shutdown()
			return
		}
	}
}

func (cw *ConfigWatcher) shutdown() {
	cw.fsnotify.Close()
	close(cw.events)
	close(cw.errors)
}
