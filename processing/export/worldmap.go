// Package export writes triangulation and decoding results to disk.
package export

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"scanlight/internal/models"
)

// FloatImage is a float32 RGBA raster. Pixel (x, y) occupies
// Pix[4*(y*Width+x) : 4*(y*Width+x)+4].
type FloatImage struct {
	Width  int
	Height int
	Pix    []float32
}

func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{Width: width, Height: height, Pix: make([]float32, 4*width*height)}
}

// At returns the RGBA value at (x, y).
func (f *FloatImage) At(x, y int) [4]float32 {
	i := 4 * (y*f.Width + x)
	return [4]float32{f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]}
}

// WorldMap rasterizes mesh into projector space: the pixel at each vertex's
// texture coordinate holds its position in RGB and 1 in alpha. Pixels
// without a vertex are zero. Texture coordinates outside the raster are
// skipped.
func WorldMap(mesh *models.Mesh, width, height int) *FloatImage {
	img := NewFloatImage(width, height)
	if mesh == nil {
		return img
	}
	for _, v := range mesh.Vertices {
		x, y := v.TexCoord.X, v.TexCoord.Y
		if x < 0 || y < 0 || x >= width || y >= height {
			continue
		}
		i := 4 * (y*width + x)
		img.Pix[i] = float32(v.Position.X)
		img.Pix[i+1] = float32(v.Position.Y)
		img.Pix[i+2] = float32(v.Position.Z)
		img.Pix[i+3] = 1
	}
	return img
}

// WriteRaw writes the pixels as little-endian float32 values, row by row
// with no header.
func (f *FloatImage) WriteRaw(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var buf [4]byte
	for _, v := range f.Pix {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := bw.Write(buf[:]); err != nil {
			return errors.Wrap(err, "write world map")
		}
	}
	return errors.Wrap(bw.Flush(), "write world map")
}

// SaveRaw writes the raster to path.
func (f *FloatImage) SaveRaw(path string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create world map")
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()
	return f.WriteRaw(out)
}
