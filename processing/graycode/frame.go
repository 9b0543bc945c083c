package graycode

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Frame is one captured pattern image together with its position in the
// sequence.
type Frame struct {
	Image *image.Gray
	Index int
}

// Inverse reports whether the frame holds the inverted pattern of its plane.
func (f Frame) Inverse() bool {
	return f.Index%2 == 1
}

// Plane is the bit plane the frame belongs to.
func (f Frame) Plane() int {
	return f.Index / 2
}

// ToGray returns img as an 8-bit grayscale raster anchored at the origin.
// Gray images that are already tightly packed are returned as is; crops of a
// larger raster are copied so Pix holds exactly Dx*Dy bytes.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && g.Stride == b.Dx() && len(g.Pix) == b.Dx()*b.Dy() {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(out, out.Bounds(), img, b.Min, xdraw.Src)
	return out
}
