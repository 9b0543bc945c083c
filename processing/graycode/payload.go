package graycode

import (
	"image"
	"math/bits"

	"github.com/pkg/errors"
)

// Payload describes the pattern sequence for one projector resolution.
//
// Frames 2b and 2b+1 carry bit plane b as the normal pattern followed by its
// photometric inverse. Planes 0..BitsX-1 encode the projector column, most
// significant bit first; planes BitsX..Bits-1 encode the row the same way.
type Payload struct {
	Width  int
	Height int
	BitsX  int
	BitsY  int
}

// NewPayload returns the payload for a projector of the given resolution.
// A single pixel projector has nothing to encode and is rejected.
func NewPayload(width, height int) (*Payload, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid projector resolution %dx%d", width, height)
	}
	p := &Payload{
		Width:  width,
		Height: height,
		BitsX:  ceilLog2(width),
		BitsY:  ceilLog2(height),
	}
	if p.Bits() == 0 {
		return nil, errors.Errorf("projector resolution %dx%d has no bit planes", width, height)
	}
	return p, nil
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// Bits is the number of bit planes in the sequence.
func (p *Payload) Bits() int {
	return p.BitsX + p.BitsY
}

// FrameCount is the number of frames a complete capture holds.
func (p *Payload) FrameCount() int {
	return 2 * p.Bits()
}

// Size is the number of projector pixels.
func (p *Payload) Size() int {
	return p.Width * p.Height
}

// Plane returns which axis and which bit of that axis a bit plane encodes.
// Bit positions count from the least significant bit.
func (p *Payload) Plane(plane int) (vertical bool, bit int) {
	if plane < p.BitsX {
		return false, p.BitsX - 1 - plane
	}
	return true, p.BitsY - 1 - (plane - p.BitsX)
}

// Render draws the projector image for one frame of the sequence.
func (p *Payload) Render(frame int) (*image.Gray, error) {
	if frame < 0 || frame >= p.FrameCount() {
		return nil, errors.Errorf("frame %d out of range [0, %d)", frame, p.FrameCount())
	}
	vertical, bit := p.Plane(frame / 2)
	inverse := frame%2 == 1

	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+p.Width]
		for x := range row {
			v := uint32(x)
			if vertical {
				v = uint32(y)
			}
			on := GrayEncode(v)>>uint(bit)&1 == 1
			if on != inverse {
				row[x] = 255
			}
		}
	}
	return img, nil
}

// GrayEncode converts a binary value to its reflected Gray code.
func GrayEncode(v uint32) uint32 {
	return v ^ (v >> 1)
}

// GrayDecode converts a reflected Gray code back to binary.
func GrayDecode(g uint32) uint32 {
	for shift := uint(1); shift < 32; shift <<= 1 {
		g ^= g >> shift
	}
	return g
}
