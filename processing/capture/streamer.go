package capture

import (
	"image"

	"scanlight/internal/models"
)

// Source delivers captured pattern frames in sequence order. FrameChan is
// closed when the source has no more frames.
type Source interface {
	Start() error
	Stop()
	FrameChan() <-chan image.Image
	ErrorChan() <-chan error
}

// Acker is implemented by sources that report decoding progress back to
// whoever produces the frames.
type Acker interface {
	Ack(progress models.ScanProgress)
}
