package calibration

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeDoubles(t *testing.T, values []float64) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	path := filepath.Join(t.TempDir(), "matrix.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func sequence(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i + 1)
	}
	return v
}

func TestLoadMatrixFallsBackToIdentity(t *testing.T) {
	t.Parallel()
	logger := zap.NewNop().Sugar()

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"empty path", func(*testing.T) string { return "" }},
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.bin") }},
		{"seven doubles", func(t *testing.T) string { return writeDoubles(t, sequence(7)) }},
		{"fifteen and a half doubles", func(t *testing.T) string {
			path := writeDoubles(t, sequence(15))
			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
			require.NoError(t, err)
			_, err = f.Write([]byte{1, 2, 3, 4})
			require.NoError(t, err)
			require.NoError(t, f.Close())
			return path
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := LoadMatrix(tt.path(t), logger)
			assert.True(t, IsIdentity(m))
		})
	}
}

func TestReadMatrixShort(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, sequence(7)))
	m, err := ReadMatrix(&buf)
	assert.True(t, errors.Is(err, ErrShortMatrix))
	assert.True(t, IsIdentity(m))
}

func TestReadMatrixFlipsZ(t *testing.T) {
	t.Parallel()
	m := LoadMatrix(writeDoubles(t, append(sequence(16), 99, 98)), zap.NewNop().Sugar())
	require.False(t, IsIdentity(m))

	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			want := float64(col*4 + row + 1)
			if (row == 2) != (col == 2) {
				want = -want
			}
			assert.Equal(t, want, m.At(row, col), "row %d col %d", row, col)
		}
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	t.Parallel()
	want := mgl64.Perspective(mgl64.DegToRad(45), 4.0/3.0, 0.1, 100).Mul4(
		mgl64.LookAtV(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 1, 0}))
	path := filepath.Join(t.TempDir(), "m.bin")
	require.NoError(t, WriteMatrixFile(path, want))

	got, err := ReadMatrixFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadMatrixRejectsNonFinite(t *testing.T) {
	t.Parallel()
	values := sequence(16)
	values[5] = values[5] / 0
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, values))
	_, err := ReadMatrix(&buf)
	assert.Error(t, err)
}

func TestViewRays(t *testing.T) {
	t.Parallel()
	v := NewView(3, 3)
	assert.False(t, v.Calibrated())

	eye := mgl64.Vec3{1, 2, 3}
	v.SetProjection(mgl64.Perspective(mgl64.DegToRad(60), 1, 0.1, 50))
	v.SetView(mgl64.LookAtV(eye, mgl64.Vec3{1, 2, 0}, mgl64.Vec3{0, 1, 0}))
	require.True(t, v.Calibrated())

	pos := v.Position()
	assert.InDelta(t, 1, pos.X, 1e-9)
	assert.InDelta(t, 2, pos.Y, 1e-9)
	assert.InDelta(t, 3, pos.Z, 1e-9)

	centre, err := v.PixelRay(1, 1)
	require.NoError(t, err)
	dir := centre.Direction.Normalize()
	assert.InDelta(t, 0, dir.X, 1e-9)
	assert.InDelta(t, 0, dir.Y, 1e-9)
	assert.InDelta(t, -1, dir.Z, 1e-9)

	// The ray passes through the optical centre.
	back := centre.Origin.Sub(r3.Vector{X: 1, Y: 2, Z: 3})
	assert.InDelta(t, 0, back.Cross(centre.Direction).Norm(), 1e-9)

	// Pixel (0, 0) is top left: up and to the left of the optical axis.
	corner, err := v.PixelRay(0, 0)
	require.NoError(t, err)
	assert.Less(t, corner.Direction.X, 0.0)
	assert.Greater(t, corner.Direction.Y, 0.0)
}

func TestSingularView(t *testing.T) {
	t.Parallel()
	v := NewView(4, 4)
	v.SetProjection(mgl64.Mat4{})
	_, err := v.Caster()
	assert.ErrorIs(t, err, ErrSingular)

	_, err = NewView(0, 4).Caster()
	assert.Error(t, err)
}
