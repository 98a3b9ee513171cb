package dispatcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/jiufeng/jiutai/internal/logging"
)

// ConfigWatcher watches a service-config directory for new or changed
// *.xml files and calls onAdd for each successfully parsed config it
// discovers after start. It does not remove services that disappear:
// nothing in the original daemon model tears a running service down
// on file deletion, and conservatively loaded services are safer than
// silently dropped ones.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	logger  *logging.Logger
	onAdd   func(*ServiceConfig) error
	done    chan struct{}
}

// NewConfigWatcher starts watching dir. onAdd is called from the
// watcher's own goroutine for every config file that is created or
// written, after it parses and validates successfully.
func NewConfigWatcher(dir string, logger *logging.Logger, onAdd func(*ServiceConfig) error) (*ConfigWatcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, newErr("NewConfigWatcher", CodeUnavailable, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, newErr("NewConfigWatcher", CodeUnavailable, err)
	}

	cw := &ConfigWatcher{watcher: w, logger: logger, onAdd: onAdd, done: make(chan struct{})}
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	defer close(cw.done)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(ev.Name) != configFileExt {
				continue
			}
			cfg, err := ParseServiceConfigFile(ev.Name)
			if err != nil {
				cw.logger.Warn("ignoring invalid service config change", "file", ev.Name, "error", err)
				continue
			}
			if cw.onAdd != nil {
				if err := cw.onAdd(cfg); err != nil {
					cw.logger.Warn("failed to apply service config change", "file", ev.Name, "error", err)
				}
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (cw *ConfigWatcher) Close() error {
	err := cw.watcher.Close()
	<-cw.done
	return err
}
