// Package session holds the state behind the decode and triangulate tools,
// independent of how they are presented.
package session

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"scanlight/internal/config"
	"scanlight/processing/export"
	"scanlight/processing/graycode"
	"scanlight/processing/scanner"
)

// ErrNoData is returned when an operation needs a decoded dataset.
var ErrNoData = errors.New("no decoded data")

// DecodeSession turns dropped captures into a decoded dataset.
type DecodeSession struct {
	Decoder *graycode.Decoder
	Payload *graycode.Payload

	logger *zap.SugaredLogger
}

func NewDecodeSession(cfg *config.Config, logger *zap.SugaredLogger) (*DecodeSession, error) {
	payload, err := graycode.NewPayload(cfg.Projector.Width, cfg.Projector.Height)
	if err != nil {
		return nil, err
	}
	dec := graycode.NewDecoder(payload,
		graycode.WithThreshold(cfg.GetThreshold()),
		graycode.WithLogger(logger.Named("decoder")))

	return &DecodeSession{Decoder: dec, Payload: payload, logger: logger}, nil
}

// DropPaths processes files and directories dropped onto the tool. A
// directory replaces the current scan with its contents. A single image is
// appended to the current sequence, which is decoded as soon as it is
// complete. A dataset file replaces the current scan.
func (s *DecodeSession) DropPaths(paths []string) error {
	var err error
	for _, path := range paths {
		info, serr := os.Stat(path)
		if serr != nil {
			err = multierr.Append(err, serr)
			continue
		}

		if info.IsDir() {
			s.logger.Infow("decoding scan directory", "dir", path)
			err = multierr.Append(err, scanner.IngestDirectory(s.Decoder, path, s.logger))
			continue
		}

		s.logger.Infow("loading", "file", path, "frame", s.Decoder.Frame())
		if ferr := scanner.IngestFile(s.Decoder, path); ferr != nil {
			err = multierr.Append(err, ferr)
			continue
		}
		if s.Decoder.Complete() && s.Decoder.State() != graycode.Ready {
			err = multierr.Append(err, s.Decoder.Update())
		}
	}
	return err
}

// SetThreshold changes the brightness threshold and re-decodes a complete
// sequence with it.
func (s *DecodeSession) SetThreshold(t uint8) error {
	s.Decoder.SetThreshold(t)
	if !s.Decoder.Complete() {
		return nil
	}
	return s.Decoder.Update()
}

func (s *DecodeSession) Reset() {
	s.Decoder.Reset()
}

// CanSave reports whether there is a dataset with valid pixels to save.
func (s *DecodeSession) CanSave() bool {
	return s.Decoder.HasData()
}

// Save writes the dataset to basename.sl next to the median, inverse median
// and camera-in-projector previews.
func (s *DecodeSession) Save(basename string) error {
	if !s.CanSave() {
		return ErrNoData
	}
	basename = strings.TrimSuffix(basename, graycode.DataSetExtension)

	if err := s.Decoder.SaveDataSet(basename + graycode.DataSetExtension); err != nil {
		return err
	}
	err := multierr.Combine(
		export.SavePNG(basename+"-median.png", s.Decoder.Median()),
		export.SavePNG(basename+"-medianInverse.png", s.Decoder.MedianInverse()),
		export.SavePNG(basename+"-cameraInProjector.png", s.Decoder.CameraInProjector()),
	)
	if err != nil {
		return errors.Wrap(err, "save previews")
	}
	s.logger.Infow("saved scan", "basename", basename)
	return nil
}
