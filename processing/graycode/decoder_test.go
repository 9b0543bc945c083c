package graycode

import (
	"errors"
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renderCapture renders every frame of p as seen by a camera that images
// each projector pixel as a scale x scale block.
func renderCapture(t *testing.T, p *Payload, scale int) []*image.Gray {
	t.Helper()
	frames := make([]*image.Gray, 0, p.FrameCount())
	for i := 0; i < p.FrameCount(); i++ {
		pattern, err := p.Render(i)
		require.NoError(t, err)
		cam := image.NewGray(image.Rect(0, 0, p.Width*scale, p.Height*scale))
		for y := 0; y < cam.Rect.Dy(); y++ {
			for x := 0; x < cam.Rect.Dx(); x++ {
				cam.Pix[y*cam.Stride+x] = pattern.Pix[(y/scale)*pattern.Stride+x/scale]
			}
		}
		frames = append(frames, cam)
	}
	return frames
}

func ingestAll(t *testing.T, d *Decoder, frames []*image.Gray) {
	t.Helper()
	for _, f := range frames {
		require.NoError(t, d.Ingest(f))
	}
}

func newDecoder(t *testing.T, w, h int, opts ...Option) *Decoder {
	t.Helper()
	p, err := NewPayload(w, h)
	require.NoError(t, err)
	return NewDecoder(p, opts...)
}

func TestGrayCodeRoundTrip(t *testing.T) {
	t.Parallel()
	for v := uint32(0); v < 1<<12; v++ {
		g := GrayEncode(v)
		require.Equal(t, v, GrayDecode(g))
		if v > 0 {
			diff := g ^ GrayEncode(v-1)
			assert.Equal(t, uint32(0), diff&(diff-1), "consecutive codes differ in more than one bit at %d", v)
		}
	}
	assert.Equal(t, uint32(0xffffffff), GrayDecode(GrayEncode(0xffffffff)))
}

func TestPayloadBits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w, h         int
		bitsX, bitsY int
	}{
		{2, 1, 1, 0},
		{1, 3, 0, 2},
		{5, 3, 3, 2},
		{16, 9, 4, 4},
		{1024, 768, 10, 10},
		{1920, 1080, 11, 11},
	}
	for _, tt := range tests {
		p, err := NewPayload(tt.w, tt.h)
		require.NoError(t, err)
		assert.Equal(t, tt.bitsX, p.BitsX, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.bitsY, p.BitsY, "%dx%d", tt.w, tt.h)
		assert.Equal(t, 2*(tt.bitsX+tt.bitsY), p.FrameCount())
	}

	_, err := NewPayload(0, 10)
	assert.Error(t, err)
	_, err = NewPayload(1, 1)
	assert.Error(t, err, "a single pixel projector has an empty sequence")
}

func TestPayloadRenderRange(t *testing.T) {
	t.Parallel()
	p, err := NewPayload(8, 4)
	require.NoError(t, err)

	_, err = p.Render(-1)
	assert.Error(t, err)
	_, err = p.Render(p.FrameCount())
	assert.Error(t, err)

	normal, err := p.Render(0)
	require.NoError(t, err)
	inverse, err := p.Render(1)
	require.NoError(t, err)
	for i := range normal.Pix {
		assert.Equal(t, uint8(255), normal.Pix[i]^inverse.Pix[i])
	}
}

func TestDecodeRecoversProjectorPixels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		w, h  int
		scale int
	}{
		{"single column", 1, 6, 1},
		{"square", 2, 2, 1},
		{"odd", 5, 3, 1},
		{"wide", 16, 9, 1},
		{"non power of two", 37, 20, 1},
		{"upsampled camera", 12, 7, 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := newDecoder(t, tt.w, tt.h, WithThreshold(128))
			ingestAll(t, d, renderCapture(t, d.Payload(), tt.scale))
			require.NoError(t, d.Update())
			require.Equal(t, Ready, d.State())

			ds := d.DataSet()
			require.Equal(t, tt.w*tt.h*tt.scale*tt.scale, ds.ActiveCount())
			for cam := range ds.Active {
				x, y, ok := ds.ProjectorPixel(cam)
				require.True(t, ok)
				assert.Equal(t, (cam%ds.CameraWidth)/tt.scale, x)
				assert.Equal(t, (cam/ds.CameraWidth)/tt.scale, y)
			}
			assert.Equal(t, uint8(255), ds.Median.Pix[0])
			assert.Equal(t, uint8(0), ds.MedianInverse.Pix[0])
		})
	}
}

func TestDecodeOutOfBoundsIsInactive(t *testing.T) {
	t.Parallel()
	wide, err := NewPayload(8, 3)
	require.NoError(t, err)
	d := newDecoder(t, 5, 3)
	require.Equal(t, wide.FrameCount(), d.Payload().FrameCount())

	ingestAll(t, d, renderCapture(t, wide, 1))
	require.NoError(t, d.Update())

	ds := d.DataSet()
	for cam, active := range ds.Active {
		assert.Equal(t, cam%8 < 5, active, "camera pixel %d", cam)
	}
}

func TestUpdateIsIdempotent(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 13, 6)
	ingestAll(t, d, renderCapture(t, d.Payload(), 1))

	require.NoError(t, d.Update())
	first := d.DataSet()
	require.NoError(t, d.Update())
	second := d.DataSet()

	assert.Empty(t, cmp.Diff(first, second))
	assert.Empty(t, cmp.Diff(first.CameraInProjector(), second.CameraInProjector()))
}

// contrastCapture renders the sequence with a per-pixel contrast that ramps
// across the camera, so that raising the threshold progressively drops pixels.
func contrastCapture(t *testing.T, p *Payload) []*image.Gray {
	t.Helper()
	frames := renderCapture(t, p, 1)
	for _, f := range frames {
		for i, v := range f.Pix {
			k := uint8(1 + (i*7)%127)
			if v == 255 {
				f.Pix[i] = 128 + k
			} else {
				f.Pix[i] = 128 - k
			}
		}
	}
	return frames
}

func TestThresholdMonotonicity(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 16, 16)
	ingestAll(t, d, contrastCapture(t, d.Payload()))

	prev := -1
	for th := 0; th <= 255; th += 5 {
		d.SetThreshold(uint8(th))
		require.NoError(t, d.Update())
		count := d.DataSet().ActiveCount()
		if prev >= 0 {
			assert.LessOrEqual(t, count, prev, "threshold %d", th)
		}
		prev = count
	}
	assert.Equal(t, 0, prev)

	d.SetThreshold(0)
	require.NoError(t, d.Update())
	assert.Equal(t, 256, d.DataSet().ActiveCount())
}

func TestSetThresholdNeedsUpdate(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	ingestAll(t, d, contrastCapture(t, d.Payload()))
	require.NoError(t, d.Update())
	before := d.DataSet()

	d.SetThreshold(255)
	assert.Same(t, before, d.DataSet())
	assert.Equal(t, uint8(255), d.Threshold())

	require.NoError(t, d.Update())
	assert.Equal(t, 0, d.DataSet().ActiveCount())
}

func TestTiedPairIsInactive(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 2)
	frames := renderCapture(t, d.Payload(), 1)
	frames[2].Pix[3] = 100
	frames[3].Pix[3] = 100
	ingestAll(t, d, frames)
	d.SetThreshold(0)
	require.NoError(t, d.Update())

	assert.False(t, d.DataSet().Active[3])
	assert.Equal(t, 7, d.DataSet().ActiveCount())
}

func TestIngestAfterCompleteIsSequenceError(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	frames := renderCapture(t, d.Payload(), 1)
	ingestAll(t, d, frames)
	require.True(t, d.Complete())

	err := d.Ingest(frames[0])
	var seqErr *SequenceError
	require.True(t, errors.As(err, &seqErr))
	assert.Equal(t, d.Payload().FrameCount(), d.Frame())
}

func TestIngestDimensionMismatch(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	require.NoError(t, d.Ingest(image.NewGray(image.Rect(0, 0, 10, 10))))

	err := d.Ingest(image.NewGray(image.Rect(0, 0, 10, 11)))
	var dimErr *DimensionError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 10, dimErr.WantWidth)
	assert.Equal(t, 11, dimErr.Height)
	assert.Equal(t, 1, d.Frame())
	assert.Equal(t, Accumulating, d.State())
}

func TestIngestConvertsColorFrames(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	rgba := image.NewRGBA(image.Rect(3, 3, 9, 7))
	require.NoError(t, d.Ingest(rgba))
	require.NoError(t, d.Ingest(image.NewGray(image.Rect(0, 0, 6, 4))))
}

func TestUpdateBeforeCompleteIsSequenceError(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	var seqErr *SequenceError
	require.True(t, errors.As(d.Update(), &seqErr))

	frames := renderCapture(t, d.Payload(), 1)
	ingestAll(t, d, frames[:3])
	require.True(t, errors.As(d.Update(), &seqErr))
	assert.Nil(t, d.DataSet())
	assert.False(t, d.HasData())
}

func TestResetReturnsToEmpty(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 4, 4)
	ingestAll(t, d, renderCapture(t, d.Payload(), 1))
	require.NoError(t, d.Update())
	require.True(t, d.HasData())

	d.Reset()
	assert.Equal(t, Empty, d.State())
	assert.Equal(t, 0, d.Frame())
	assert.Nil(t, d.Median())
	assert.Nil(t, d.CameraInProjector())

	require.NoError(t, d.Ingest(image.NewGray(image.Rect(0, 0, 3, 3))))
	assert.Equal(t, Accumulating, d.State())
}

func TestRemapImages(t *testing.T) {
	t.Parallel()
	d := newDecoder(t, 8, 4)
	ingestAll(t, d, renderCapture(t, d.Payload(), 1))
	require.NoError(t, d.Update())

	cip := d.CameraInProjector()
	require.Equal(t, image.Rect(0, 0, 8, 4), cip.Bounds())
	last := cip.NRGBA64At(7, 3)
	assert.Equal(t, uint16(0xffff), last.R)
	assert.Equal(t, uint16(0xffff), last.G)
	assert.Equal(t, uint16(0xffff), last.A)

	pic := d.ProjectorInCamera()
	require.Equal(t, image.Rect(0, 0, 8, 4), pic.Bounds())
	assert.Equal(t, uint16(0), pic.NRGBA64At(0, 0).R)
	assert.Equal(t, uint16(0xffff), pic.NRGBA64At(0, 0).A)
}
