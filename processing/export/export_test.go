package export

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanlight/internal/models"
)

func testMesh() *models.Mesh {
	return &models.Mesh{Vertices: []models.Vertex{
		{Position: r3.Vector{X: 1, Y: 2, Z: 3}, TexCoord: image.Pt(0, 0)},
		{Position: r3.Vector{X: -1, Y: 0.5, Z: 0}, TexCoord: image.Pt(3, 1)},
		{Position: r3.Vector{X: 9, Y: 9, Z: 9}, TexCoord: image.Pt(4, 0)},
		{Position: r3.Vector{X: 9, Y: 9, Z: 9}, TexCoord: image.Pt(-1, 1)},
	}}
}

func TestWorldMap(t *testing.T) {
	t.Parallel()
	img := WorldMap(testMesh(), 4, 2)

	assert.Equal(t, [4]float32{1, 2, 3, 1}, img.At(0, 0))
	assert.Equal(t, [4]float32{-1, 0.5, 0, 1}, img.At(3, 1))
	assert.Equal(t, [4]float32{}, img.At(1, 0))

	filled := 0
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 1 {
			filled++
		}
	}
	assert.Equal(t, 2, filled, "out of range texture coordinates are skipped")
}

func TestWorldMapRawLayout(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "output.raw")
	require.NoError(t, WorldMap(testMesh(), 4, 2).SaveRaw(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 4*2*4*4)

	at := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	assert.Equal(t, float32(1), at(0))
	assert.Equal(t, float32(3), at(2))
	assert.Equal(t, float32(1), at(3))
	pix := 4 * (1*4 + 3)
	assert.Equal(t, float32(-1), at(pix))
	assert.Equal(t, float32(1), at(pix+3))
}

func TestWritePCD(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePCD(&buf, testMesh()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 10+4)
	assert.Equal(t, "VERSION .7", lines[0])
	assert.Equal(t, "POINTS 4", lines[8])
	assert.Equal(t, "DATA ascii", lines[9])
	assert.Equal(t, "1.000000 2.000000 3.000000 0 0", lines[10])
}

func TestSavePNGAndPreview(t *testing.T) {
	t.Parallel()
	preview := RenderPreview(testMesh(), 32, 16, 2)
	require.Equal(t, image.Rect(0, 0, 32, 16), preview.Bounds())

	lit := 0
	for i := 0; i < len(preview.Pix); i += 4 {
		if preview.Pix[i+2] == 255 {
			lit++
		}
	}
	assert.Greater(t, lit, 0)

	path := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, SavePNG(path, preview))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, preview.Bounds(), decoded.Bounds())

	assert.Error(t, SavePNG(path, nil))
}

func TestRenderPreviewEmptyMesh(t *testing.T) {
	t.Parallel()
	img := RenderPreview(&models.Mesh{}, 4, 4, 1)
	assert.Equal(t, uint8(0xff), img.Pix[3])
	assert.Equal(t, uint8(0), img.Pix[0])
}
