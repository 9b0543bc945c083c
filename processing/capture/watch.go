package capture

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	watchRetries    = 10
	watchRetryDelay = 50 * time.Millisecond
)

// WatchSource emits images as they are written into a directory, for rigs
// that drop each capture into a shared folder.
type WatchSource struct {
	stopOnce sync.Once

	dir     string
	logger  *zap.SugaredLogger
	watcher *fsnotify.Watcher

	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewWatchSource(dir string, logger *zap.SugaredLogger) *WatchSource {
	return &WatchSource{
		dir:       dir,
		logger:    logger,
		frameChan: make(chan image.Image, 4),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func (ws *WatchSource) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(ws.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", ws.dir, err)
	}
	ws.watcher = w
	ws.logger.Infow("watching for captures", "dir", ws.dir)

	go ws.watchLoop()
	return nil
}

func (ws *WatchSource) watchLoop() {
	defer close(ws.frameChan)
	defer ws.watcher.Close()

	seen := make(map[string]bool)
	for {
		select {
		case <-ws.stopChan:
			return

		case event, ok := <-ws.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if seen[event.Name] || !IsImageFile(event.Name) {
				continue
			}

			img, err := ws.loadWhenComplete(event.Name)
			if err != nil {
				// Still being written; a later Write event retries.
				ws.logger.Debugw("capture not readable yet", "file", filepath.Base(event.Name), "error", err)
				continue
			}
			seen[event.Name] = true

			select {
			case ws.frameChan <- img:
			case <-ws.stopChan:
				return
			}

		case err, ok := <-ws.watcher.Errors:
			if !ok {
				return
			}
			ws.errChan <- fmt.Errorf("watch error: %w", err)
			return
		}
	}
}

func (ws *WatchSource) loadWhenComplete(path string) (image.Image, error) {
	var err error
	for i := 0; i < watchRetries; i++ {
		var img image.Image
		if img, err = LoadImage(path); err == nil {
			return img, nil
		}
		select {
		case <-time.After(watchRetryDelay):
		case <-ws.stopChan:
			return nil, err
		}
	}
	return nil, err
}

func (ws *WatchSource) Stop() {
	ws.stopOnce.Do(func() {
		close(ws.stopChan)
	})
}

func (ws *WatchSource) FrameChan() <-chan image.Image { return ws.frameChan }
func (ws *WatchSource) ErrorChan() <-chan error       { return ws.errChan }
