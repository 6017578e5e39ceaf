package persona

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Source yields the persona currently in effect
type Source interface {
	Current() Options
}

// Static is a Source that never changes
type Static Options

// Current returns the fixed persona
func (s Static) Current() Options {
	return Options(s)
}

// FileSource serves a persona loaded from a YAML file and reloads it when the
// file changes. A failed reload keeps the previous persona.
type FileSource struct {
	path     string
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current Options

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFileSource loads the file once and starts watching its directory
func NewFileSource(path string, logger zerolog.Logger) (*FileSource, error) {
	opts, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	fs := &FileSource{
		path:     path,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		current:  opts,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go fs.run()
	return fs, nil
}

// Current returns the last successfully loaded persona
func (fs *FileSource) Current() Options {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.current
}

// Stop stops watching
func (fs *FileSource) Stop() error {
	close(fs.stopCh)
	err := fs.watcher.Close()
	<-fs.doneCh
	return err
}

func (fs *FileSource) run() {
	defer close(fs.doneCh)
	target := filepath.Clean(fs.path)

	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				fs.scheduleReload()
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.Error().Err(err).Msg("Persona watcher error")

		case <-fs.stopCh:
			if fs.timer != nil {
				fs.timer.Stop()
			}
			return
		}
	}
}

func (fs *FileSource) scheduleReload() {
	if fs.timer != nil {
		fs.timer.Stop()
	}
	fs.timer = time.AfterFunc(fs.debounce, fs.reload)
}

func (fs *FileSource) reload() {
	opts, err := LoadFile(fs.path)
	if err != nil {
		fs.logger.Warn().Err(err).Str("path", fs.path).Msg("Persona reload failed, keeping previous persona")
		return
	}

	fs.mu.Lock()
	fs.current = opts
	fs.mu.Unlock()

	fs.logger.Info().Str("persona", opts.Name).Msg("Persona reloaded")
}
