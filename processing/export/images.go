package export

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"scanlight/internal/models"
)

// SavePNG writes img to path with best compression.
func SavePNG(path string, img image.Image) (err error) {
	if img == nil {
		return errors.Errorf("no image to save to %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create png")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return errors.Wrapf(enc.Encode(f, img), "encode %s", path)
}

// RenderPreview draws the mesh seen from above (looking down -Z) into a
// width x height image, shading points by height. pointSize is the side of
// the square drawn for each point.
func RenderPreview(mesh *models.Mesh, width, height, pointSize int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+3] = 0xff
	}
	lo, hi, ok := mesh.Bounds()
	if !ok {
		return img
	}
	span := max(hi.X-lo.X, hi.Y-lo.Y)
	if span == 0 {
		span = 1
	}
	depth := hi.Z - lo.Z
	scale := float64(min(width, height)-1) / span
	pointSize = max(pointSize, 1)

	for _, v := range mesh.Vertices {
		px := int((v.Position.X - lo.X) * scale)
		py := height - 1 - int((v.Position.Y-lo.Y)*scale)
		shade := uint8(255)
		if depth > 0 {
			shade = uint8(64 + 191*(v.Position.Z-lo.Z)/depth)
		}
		c := color.RGBA{R: shade, G: shade, B: 255, A: 0xff}
		for dy := 0; dy < pointSize; dy++ {
			for dx := 0; dx < pointSize; dx++ {
				if image.Pt(px+dx, py+dy).In(img.Rect) {
					img.SetRGBA(px+dx, py+dy, c)
				}
			}
		}
	}
	return img
}
