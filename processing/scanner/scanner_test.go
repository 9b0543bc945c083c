package scanner

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scanlight/internal/models"
	"scanlight/processing/graycode"
)

// chanSource is a capture source fed directly by the test.
type chanSource struct {
	frames chan image.Image
	errs   chan error

	mu      sync.Mutex
	acks    []models.ScanProgress
	stopped bool
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan image.Image, 64), errs: make(chan error, 1)}
}

func (s *chanSource) Start() error { return nil }
func (s *chanSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
func (s *chanSource) FrameChan() <-chan image.Image { return s.frames }
func (s *chanSource) ErrorChan() <-chan error       { return s.errs }

func (s *chanSource) Ack(p models.ScanProgress) {
	s.mu.Lock()
	s.acks = append(s.acks, p)
	s.mu.Unlock()
}

func renderAll(t *testing.T, p *graycode.Payload) []*image.Gray {
	t.Helper()
	frames := make([]*image.Gray, p.FrameCount())
	for i := range frames {
		img, err := p.Render(i)
		require.NoError(t, err)
		frames[i] = img
	}
	return frames
}

func newTestDecoder(t *testing.T) *graycode.Decoder {
	t.Helper()
	p, err := graycode.NewPayload(8, 4)
	require.NoError(t, err)
	return graycode.NewDecoder(p)
}

func waitDone(t *testing.T, p *Processor) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not finish")
	}
}

func TestProcessorDecodesFullSequence(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	src := newChanSource()
	for _, f := range renderAll(t, dec.Payload()) {
		src.frames <- f
	}
	close(src.frames)

	var patterns []int
	proc := NewProcessor(dec, src, zap.NewNop().Sugar())
	proc.Pattern = func(frame int) { patterns = append(patterns, frame) }
	require.NoError(t, proc.Start())
	waitDone(t, proc)

	total := dec.Payload().FrameCount()
	assert.Equal(t, graycode.Ready, dec.State())
	assert.Equal(t, 32, dec.DataSet().ActiveCount())
	assert.Equal(t, total, proc.Ingested())
	assert.False(t, proc.IsActive())
	assert.Len(t, patterns, total)
	assert.Equal(t, 0, patterns[0])
	assert.Equal(t, total-1, patterns[total-1])

	src.mu.Lock()
	defer src.mu.Unlock()
	require.Len(t, src.acks, total)
	last := src.acks[total-1]
	assert.Equal(t, "ready", last.State)
	assert.Equal(t, 32, last.Active)
	assert.True(t, src.stopped)
}

func TestProcessorReportsShortSequence(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	src := newChanSource()
	frames := renderAll(t, dec.Payload())
	src.frames <- frames[0]
	src.frames <- frames[1]
	close(src.frames)

	proc := NewProcessor(dec, src, zap.NewNop().Sugar())
	require.NoError(t, proc.Start())
	waitDone(t, proc)

	var seqErr *graycode.SequenceError
	require.ErrorAs(t, <-proc.ErrChan, &seqErr)
	assert.Equal(t, 2, seqErr.Frame)
	assert.Equal(t, graycode.Accumulating, dec.State())
}

func TestProcessorRejectsMismatchedFrame(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	src := newChanSource()
	frames := renderAll(t, dec.Payload())
	src.frames <- frames[0]
	src.frames <- image.NewGray(image.Rect(0, 0, 3, 3))

	proc := NewProcessor(dec, src, zap.NewNop().Sugar())
	require.NoError(t, proc.Start())
	waitDone(t, proc)

	var dimErr *graycode.DimensionError
	assert.ErrorAs(t, <-proc.ErrChan, &dimErr)
	assert.Equal(t, 1, dec.Frame())
}

func TestProcessorSourceError(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	src := newChanSource()
	src.errs <- errors.New("camera unplugged")

	proc := NewProcessor(dec, src, zap.NewNop().Sugar())
	require.NoError(t, proc.Start())
	waitDone(t, proc)
	assert.ErrorContains(t, <-proc.ErrChan, "camera unplugged")
}

func TestProcessorStop(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	src := newChanSource()

	proc := NewProcessor(dec, src, zap.NewNop().Sugar())
	proc.Pattern = func(int) {}
	proc.Settle = time.Hour
	require.NoError(t, proc.Start())
	proc.Stop()
	proc.Stop()
	waitDone(t, proc)
	assert.Equal(t, graycode.Empty, dec.State())
}

func writeFrames(t *testing.T, dir string, frames []*image.Gray) {
	t.Helper()
	for i, f := range frames {
		out, err := os.Create(filepath.Join(dir, "capture_"+string(rune('a'+i))+".png"))
		require.NoError(t, err)
		require.NoError(t, png.Encode(out, f))
		require.NoError(t, out.Close())
	}
}

func TestIngestDirectory(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	dir := t.TempDir()
	writeFrames(t, dir, renderAll(t, dec.Payload()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("rig 2"), 0o644))

	require.NoError(t, IngestDirectory(dec, dir, zap.NewNop().Sugar()))
	assert.True(t, dec.HasData())
	x, y, ok := dec.DataSet().ProjectorPixel(3*8 + 5)
	require.True(t, ok)
	assert.Equal(t, 5, x)
	assert.Equal(t, 3, y)
}

func TestIngestDirectoryIncomplete(t *testing.T) {
	t.Parallel()
	dec := newTestDecoder(t)
	dir := t.TempDir()
	writeFrames(t, dir, renderAll(t, dec.Payload())[:3])

	err := IngestDirectory(dec, dir, zap.NewNop().Sugar())
	var seqErr *graycode.SequenceError
	assert.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 3, dec.Frame())
}

func TestIngestDirectoryLoadsDataSet(t *testing.T) {
	t.Parallel()
	src := newTestDecoder(t)
	for _, f := range renderAll(t, src.Payload()) {
		require.NoError(t, src.Ingest(f))
	}
	require.NoError(t, src.Update())

	dir := t.TempDir()
	require.NoError(t, src.SaveDataSet(filepath.Join(dir, "scan"+graycode.DataSetExtension)))

	dec := newTestDecoder(t)
	require.NoError(t, IngestDirectory(dec, dir, zap.NewNop().Sugar()))
	assert.Equal(t, src.DataSet().Data, dec.DataSet().Data)
}

func TestIngestFileUnsupported(t *testing.T) {
	t.Parallel()
	err := IngestFile(newTestDecoder(t), "model.obj")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}
