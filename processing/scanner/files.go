package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"scanlight/processing/capture"
	"scanlight/processing/graycode"
)

// ErrUnsupportedFile is returned for files that are neither images nor datasets.
var ErrUnsupportedFile = errors.New("unsupported file type")

// IngestFile feeds one file to the decoder: images are ingested as the next
// frame, dataset files replace the decoder's state.
func IngestFile(dec *graycode.Decoder, path string) error {
	switch {
	case strings.EqualFold(filepath.Ext(path), graycode.DataSetExtension):
		return dec.LoadDataSet(path)
	case capture.IsImageFile(path):
		img, err := capture.LoadImage(path)
		if err != nil {
			return err
		}
		return errors.Wrapf(dec.Ingest(img), "ingest %s", filepath.Base(path))
	default:
		return errors.Wrap(ErrUnsupportedFile, filepath.Base(path))
	}
}

// IngestDirectory resets the decoder, feeds it every file in dir in name
// order and decodes once at the end. Files that fail are skipped; their
// errors are combined in the result.
func IngestDirectory(dec *graycode.Decoder, dir string, logger *zap.SugaredLogger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read scan directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	dec.Reset()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if !capture.IsImageFile(name) && !strings.EqualFold(filepath.Ext(name), graycode.DataSetExtension) {
			logger.Debugw("skipping", "file", name)
			continue
		}
		logger.Debugw("loading", "file", name, "frame", dec.Frame())
		if ferr := IngestFile(dec, path); ferr != nil {
			logger.Warnw("file rejected", "file", name, "error", ferr)
			err = multierr.Append(err, ferr)
		}
	}

	if dec.State() == graycode.Empty {
		return err
	}
	return multierr.Append(err, dec.Update())
}
