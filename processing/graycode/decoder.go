package graycode

import (
	"image"
	"sync"

	"go.uber.org/zap"
)

// DefaultThreshold is the mid-range brightness cutoff used when none is set.
const DefaultThreshold uint8 = 128

// State is the lifecycle stage of a Decoder.
type State int

const (
	// Empty means no frame has been ingested since creation or reset.
	Empty State = iota
	// Accumulating means some but not all frames of the sequence are stored.
	Accumulating
	// Ready means a dataset has been derived from a complete sequence.
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Accumulating:
		return "accumulating"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithThreshold sets the initial brightness threshold.
func WithThreshold(t uint8) Option {
	return func(d *Decoder) { d.threshold = t }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Decoder) { d.logger = logger }
}

// Decoder accumulates captured pattern frames and decodes them into a
// camera/projector correspondence. It is safe for concurrent use: ingest,
// update, reset and load take the write lock, accessors the read lock.
type Decoder struct {
	mu sync.RWMutex

	payload   *Payload
	threshold uint8
	logger    *zap.SugaredLogger

	width  int
	height int
	frames [][]uint8

	dataSet *DataSet
}

// NewDecoder returns an empty decoder for the payload's sequence.
func NewDecoder(payload *Payload, opts ...Option) *Decoder {
	d := &Decoder{
		payload:   payload,
		threshold: DefaultThreshold,
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Payload returns the sequence description the decoder was built for.
func (d *Decoder) Payload() *Payload {
	return d.payload
}

// Ingest stores the next frame of the sequence. Frames must arrive in
// payload order; the decoder is unchanged when an error is returned.
func (d *Decoder) Ingest(img image.Image) error {
	gray := ToGray(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	d.mu.Lock()
	defer d.mu.Unlock()

	total := d.payload.FrameCount()
	if len(d.frames) >= total {
		return &SequenceError{Frame: len(d.frames), Expected: total, Reason: "sequence already complete"}
	}
	if len(d.frames) > 0 && (w != d.width || h != d.height) {
		return &DimensionError{Width: w, Height: h, WantWidth: d.width, WantHeight: d.height}
	}
	if w == 0 || h == 0 {
		return &DimensionError{Width: w, Height: h, WantWidth: d.width, WantHeight: d.height}
	}

	if len(d.frames) == 0 {
		d.width, d.height = w, h
		d.frames = make([][]uint8, 0, total)
	}
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(pix[y*w:(y+1)*w], gray.Pix[y*gray.Stride:])
	}
	d.frames = append(d.frames, pix)

	d.logger.Debugw("ingested frame", "frame", len(d.frames)-1, "of", total, "width", w, "height", h)
	return nil
}

// Update decodes the stored frames with the current threshold. It may be
// called any number of times once the sequence is complete.
func (d *Decoder) Update() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateLocked()
}

func (d *Decoder) updateLocked() error {
	total := d.payload.FrameCount()
	if len(d.frames) != total || d.width == 0 {
		return &SequenceError{Frame: len(d.frames), Expected: total, Reason: "sequence incomplete"}
	}
	d.dataSet = decode(d.payload, d.frames, d.width, d.height, d.threshold)
	d.logger.Infow("decoded graycode sequence",
		"camera", []int{d.width, d.height},
		"projector", []int{d.payload.Width, d.payload.Height},
		"threshold", d.threshold,
		"active", d.dataSet.ActiveCount())
	return nil
}

// Reset discards every stored frame and the decoded dataset.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = 0, 0
	d.frames = nil
	d.dataSet = nil
	d.logger.Debug("decoder reset")
}

// Threshold returns the brightness cutoff.
func (d *Decoder) Threshold() uint8 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// SetThreshold changes the brightness cutoff. The dataset is only re-derived
// on the next Update.
func (d *Decoder) SetThreshold(t uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = t
}

// Frame returns the number of frames ingested so far.
func (d *Decoder) Frame() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.frames)
}

// Complete reports whether every frame of the sequence has been ingested.
func (d *Decoder) Complete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.frames) == d.payload.FrameCount()
}

// State returns the lifecycle stage.
func (d *Decoder) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case d.dataSet != nil:
		return Ready
	case len(d.frames) > 0:
		return Accumulating
	default:
		return Empty
	}
}

// HasData reports whether a decoded dataset with at least one valid pixel
// is available.
func (d *Decoder) HasData() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dataSet != nil && d.dataSet.ActiveCount() > 0
}

// DataSet returns the decoded dataset, or nil before the first Update.
// The dataset is replaced, never mutated, by later updates.
func (d *Decoder) DataSet() *DataSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dataSet
}

// CameraInProjector is the camera pixel map rendered in projector space.
func (d *Decoder) CameraInProjector() *image.NRGBA64 {
	if ds := d.DataSet(); ds != nil {
		return ds.CameraInProjector()
	}
	return nil
}

// ProjectorInCamera is the projector pixel map rendered in camera space.
func (d *Decoder) ProjectorInCamera() *image.NRGBA64 {
	if ds := d.DataSet(); ds != nil {
		return ds.ProjectorInCamera()
	}
	return nil
}

// Median is the per-pixel median of the lit samples.
func (d *Decoder) Median() *image.Gray {
	if ds := d.DataSet(); ds != nil {
		return ds.Median
	}
	return nil
}

// MedianInverse is the per-pixel median of the unlit samples.
func (d *Decoder) MedianInverse() *image.Gray {
	if ds := d.DataSet(); ds != nil {
		return ds.MedianInverse
	}
	return nil
}
