package control

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// FileState is the content of a control file:
//
//	paused = true
//	blanked = false
//	terminate = false
type FileState struct {
	Paused    bool `toml:"paused"`
	Blanked   bool `toml:"blanked"`
	Terminate bool `toml:"terminate"`
}

// LoadFile reads a control file.
func LoadFile(path string) (FileState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileState{}, err
	}
	var st FileState
	err = toml.Unmarshal(data, &st)
	return st, err
}

// ApplyFile copies st into f. Terminate is latched: a file can raise it
// but never clear it.
func ApplyFile(f *Flags, st FileState) {
	f.Paused.Store(st.Paused)
	f.Blanked.Store(st.Blanked)
	if st.Terminate {
		f.Terminate.Store(true)
	}
}

// FileWatcher reloads a control file into Flags whenever it changes.
type FileWatcher struct {
	path     string
	flags    *Flags
	debounce time.Duration
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewFileWatcher creates a watcher for path. Changes are debounced by 200ms.
func NewFileWatcher(path string, flags *Flags, logger zerolog.Logger) *FileWatcher {
	return &FileWatcher{
		path:     path,
		flags:    flags,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start applies the current file content and begins watching.
func (w *FileWatcher) Start() error {
	if st, err := LoadFile(w.path); err == nil {
		ApplyFile(w.flags, st)
	} else if !os.IsNotExist(err) {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("control file unreadable")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.watch(ctx)
	w.logger.Info().Str("path", w.path).Msg("control file watcher started")
	return nil
}

// Stop ends the watch loop.
func (w *FileWatcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *FileWatcher) watch(ctx context.Context) {
	defer close(w.done)
	var timerC <-chan time.Time
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			st, err := LoadFile(w.path)
			if err != nil {
				w.logger.Warn().Err(err).Msg("control file reload failed")
				continue
			}
			ApplyFile(w.flags, st)
			w.logger.Info().Bool("paused", st.Paused).Bool("blanked", st.Blanked).
				Bool("terminate", st.Terminate).Msg("control file applied")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("control file watcher error")
		}
	}
}
