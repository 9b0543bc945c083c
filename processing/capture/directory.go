package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has an extension a source can decode.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadImage decodes the image file at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// ListImages returns the image files in dir sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// DirectorySource replays the images of a directory in name order.
type DirectorySource struct {
	stopOnce sync.Once

	dir    string
	logger *zap.SugaredLogger

	frameChan chan image.Image
	errChan   chan error
	stopChan  chan struct{}
}

func NewDirectorySource(dir string, logger *zap.SugaredLogger) *DirectorySource {
	return &DirectorySource{
		dir:       dir,
		logger:    logger,
		frameChan: make(chan image.Image),
		errChan:   make(chan error, 1),
		stopChan:  make(chan struct{}),
	}
}

func (ds *DirectorySource) Start() error {
	files, err := ListImages(ds.dir)
	if err != nil {
		return fmt.Errorf("list scan directory: %w", err)
	}
	ds.logger.Infow("replaying scan directory", "dir", ds.dir, "images", len(files))

	go ds.readFiles(files)
	return nil
}

func (ds *DirectorySource) readFiles(files []string) {
	defer close(ds.frameChan)

	for _, path := range files {
		img, err := LoadImage(path)
		if err != nil {
			ds.errChan <- err
			return
		}
		ds.logger.Debugw("loaded", "file", filepath.Base(path))

		select {
		case ds.frameChan <- img:
		case <-ds.stopChan:
			return
		}
	}
}

func (ds *DirectorySource) Stop() {
	ds.stopOnce.Do(func() {
		close(ds.stopChan)
	})
}

func (ds *DirectorySource) FrameChan() <-chan image.Image { return ds.frameChan }
func (ds *DirectorySource) ErrorChan() <-chan error       { return ds.errChan }
