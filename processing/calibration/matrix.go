// Package calibration loads camera and projector calibration matrices and
// casts pixel rays through them.
package calibration

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// MatrixValues is the number of doubles a matrix file must hold.
const MatrixValues = 16

// ErrShortMatrix is returned when a matrix file holds fewer than 16 values.
var ErrShortMatrix = errors.New("calibration matrix needs 16 values")

// flipZ converts between the calibration tools' coordinate system and ours.
var flipZ = mgl64.Scale3D(1, 1, -1)

// ReadMatrix reads a matrix written by the calibration tools: raw
// little-endian doubles, of which the first 16 are used and any trailing
// values ignored. The values are row-major in the row-vector convention
// (translation in elements 12..14), which is exactly the column-major layout
// of an mgl64.Mat4 acting on column vectors. The Z axis is flipped on the way
// in.
func ReadMatrix(r io.Reader) (mgl64.Mat4, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return mgl64.Ident4(), errors.Wrap(err, "read calibration matrix")
	}
	if len(raw)/8 < MatrixValues {
		return mgl64.Ident4(), errors.Wrapf(ErrShortMatrix, "got %d", len(raw)/8)
	}
	var m mgl64.Mat4
	if err := binary.Read(bytes.NewReader(raw[:8*MatrixValues]), binary.LittleEndian, &m); err != nil {
		return mgl64.Ident4(), errors.Wrap(err, "decode calibration matrix")
	}
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return mgl64.Ident4(), errors.New("calibration matrix holds non-finite values")
		}
	}
	return flipZ.Mul4(m).Mul4(flipZ), nil
}

// WriteMatrix writes m in the format read by ReadMatrix.
func WriteMatrix(w io.Writer, m mgl64.Mat4) error {
	out := flipZ.Mul4(m).Mul4(flipZ)
	return errors.Wrap(binary.Write(w, binary.LittleEndian, out), "write calibration matrix")
}

// ReadMatrixFile reads a matrix file from disk.
func ReadMatrixFile(path string) (m mgl64.Mat4, err error) {
	f, err := os.Open(path)
	if err != nil {
		return mgl64.Ident4(), errors.Wrap(err, "open calibration matrix")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ReadMatrix(f)
}

// WriteMatrixFile writes m to path.
func WriteMatrixFile(path string, m mgl64.Mat4) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create calibration matrix")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WriteMatrix(f, m)
}

// LoadMatrix reads a matrix file and falls back to the identity matrix when
// path is empty or the file is missing, unreadable or short. Callers detect
// the fallback with IsIdentity.
func LoadMatrix(path string, logger *zap.SugaredLogger) mgl64.Mat4 {
	if path == "" {
		return mgl64.Ident4()
	}
	m, err := ReadMatrixFile(path)
	if err != nil {
		logger.Warnw("failed to load calibration matrix, using identity", "path", path, "error", err)
		return mgl64.Ident4()
	}
	return m
}

// IsIdentity reports whether m is exactly the identity matrix.
func IsIdentity(m mgl64.Mat4) bool {
	return m == mgl64.Ident4()
}
