package xpcconfig

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce coalesces the burst of write events an editor or atomic
// rename can produce for a single logical save.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a config file on disk and calls back with the new value
// whenever its contents change.
type Watcher struct {
	path     string
	onChange func(*Config)
	log      *logrus.Logger

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// WatchFile starts watching path for changes, invoking onChange with the
// freshly loaded config whenever the file's contents change. Parse errors
// are logged and otherwise ignored, leaving the previously loaded config in
// effect. Close stops the watch.
func WatchFile(path string, log *logrus.Logger, onChange func(*Config)) (*Watcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{path: path, onChange: onChange, log: log, fsw: fsw}
	go w.loop()
	return w, nil
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	go func() {
		for err := range w.fsw.Errors {
			w.log.WithError(err).WithField("path", w.path).Warn("xpcconfig: watch error")
		}
	}()
	for event := range w.fsw.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		w.scheduleReload()
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).WithField("path", w.path).Warn("xpcconfig: reload failed, keeping previous config")
		return
	}
	w.onChange(cfg)
}
