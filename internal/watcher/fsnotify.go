//go:build !nohotreload

package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSWatcher watches a directory tree with fsnotify.
type FSWatcher struct {
	fsWatcher *fsnotify.Watcher

	root     string
	ignore   []string
	debounce time.Duration
	restart  func()

	stopOnce sync.Once
	done     chan struct{}
	stopped  chan struct{}

	log *zap.Logger
}

// New creates a watcher that calls restart for changes below cfg.Root.
func New(cfg Config, restart func(), log *zap.Logger) (Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watcher root is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watcher root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &FSWatcher{
		fsWatcher: fsw,
		root:      root,
		ignore:    cfg.Ignore,
		debounce:  cfg.Debounce,
		restart:   restart,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		log:       log.Named("watcher").With(zap.String("root", root)),
	}, nil
}

func (w *FSWatcher) Start() error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	go w.loop()

	w.log.Info("watching for changes", zap.Duration("debounce", w.debounce))

	return nil
}

func (w *FSWatcher) Stop() error {
	var err error

	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		<-w.stopped
	})

	return err
}

// addTree adds dir and all of its subdirectories that are not ignored.
func (w *FSWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// the directory may be gone by now
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if ignored(w.root, path, w.ignore) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}

		return nil
	})
}

func (w *FSWatcher) loop() {
	defer close(w.stopped)

	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			w.track(event)

			w.log.Debug("change detected",
				zap.String("path", event.Name),
				zap.Stringer("op", event.Op),
			)

			if w.debounce <= 0 {
				w.trigger()
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.trigger()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// trigger calls the restart callback unless the watcher was stopped.
func (w *FSWatcher) trigger() {
	select {
	case <-w.done:
		return
	default:
	}

	w.restart()
}

// track starts watching directories created below the root.
func (w *FSWatcher) track(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}

	if err := w.addTree(event.Name); err != nil {
		w.log.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
	}
}

// isRelevantEvent checks if the event should trigger a restart.
func (w *FSWatcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	return !ignored(w.root, event.Name, w.ignore)
}
