package graycode

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DataSetExtension is the file extension used for persisted datasets.
const DataSetExtension = ".sl"

const (
	dataSetVersion   uint16 = 1
	maxCameraPixels         = 1 << 28
	stateFlagPartial uint8  = 0
	stateFlagReady   uint8  = 1
)

var dataSetMagic = [4]byte{'S', 'L', 'G', 'C'}

// dataSetHeader is the fixed little-endian prefix of a dataset file. The
// stored frames follow as a single gzip member.
type dataSetHeader struct {
	Magic           [4]byte
	Version         uint16
	ProjectorWidth  uint32
	ProjectorHeight uint32
	CameraWidth     uint32
	CameraHeight    uint32
	Threshold       uint8
	State           uint8
	FrameCount      uint32
	Checksum        uint32
}

// SaveDataSet writes the decoder state to path. The file is written next to
// path first and renamed into place, so a failed save never leaves a
// truncated dataset behind.
func (d *Decoder) SaveDataSet(path string) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create dataset file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmp))
		}
	}()

	if err := f.Chmod(0o644); err != nil {
		return multierr.Append(errors.Wrap(err, "create dataset file"), f.Close())
	}
	w := bufio.NewWriter(f)
	if _, err := d.WriteTo(w); err != nil {
		return multierr.Append(err, f.Close())
	}
	if err := w.Flush(); err != nil {
		return multierr.Append(errors.Wrap(err, "write dataset file"), f.Close())
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close dataset file")
	}
	return errors.Wrap(os.Rename(tmp, path), "move dataset file into place")
}

// LoadDataSet replaces the decoder state with the dataset stored at path.
// The decoder is left untouched if the file cannot be read or is invalid.
func (d *Decoder) LoadDataSet(path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return &FormatError{Reason: err.Error()}
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = d.ReadFrom(f)
	return err
}

// WriteTo serializes the stored frames, resolution and threshold.
func (d *Decoder) WriteTo(w io.Writer) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hdr := dataSetHeader{
		Magic:           dataSetMagic,
		Version:         dataSetVersion,
		ProjectorWidth:  uint32(d.payload.Width),
		ProjectorHeight: uint32(d.payload.Height),
		CameraWidth:     uint32(d.width),
		CameraHeight:    uint32(d.height),
		Threshold:       d.threshold,
		State:           stateFlagPartial,
		FrameCount:      uint32(len(d.frames)),
	}
	if d.dataSet != nil {
		hdr.State = stateFlagReady
	}
	crc := crc32.NewIEEE()
	for _, frame := range d.frames {
		crc.Write(frame)
	}
	hdr.Checksum = crc.Sum32()

	cw := &countingWriter{w: w}
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return cw.n, errors.Wrap(err, "write dataset header")
	}
	zw := gzip.NewWriter(cw)
	for _, frame := range d.frames {
		if _, err := zw.Write(frame); err != nil {
			return cw.n, errors.Wrap(err, "write dataset frames")
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, errors.Wrap(err, "write dataset frames")
	}
	return cw.n, nil
}

// ReadFrom restores decoder state written by WriteTo. Any inconsistency is
// reported as a *FormatError and leaves the decoder unchanged.
func (d *Decoder) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	br := bufio.NewReader(cr)

	var hdr dataSetHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return cr.n, formatErrorf("read header: %v", err)
	}
	if hdr.Magic != dataSetMagic {
		return cr.n, formatErrorf("bad magic %q", hdr.Magic[:])
	}
	if hdr.Version != dataSetVersion {
		return cr.n, formatErrorf("unsupported version %d", hdr.Version)
	}
	if int(hdr.ProjectorWidth) != d.payload.Width || int(hdr.ProjectorHeight) != d.payload.Height {
		return cr.n, formatErrorf("dataset projector %dx%d, decoder projector %dx%d",
			hdr.ProjectorWidth, hdr.ProjectorHeight, d.payload.Width, d.payload.Height)
	}
	total := d.payload.FrameCount()
	if int(hdr.FrameCount) > total {
		return cr.n, formatErrorf("%d frames stored, sequence has %d", hdr.FrameCount, total)
	}
	if hdr.State != stateFlagPartial && hdr.State != stateFlagReady {
		return cr.n, formatErrorf("unknown state %d", hdr.State)
	}
	if hdr.State == stateFlagReady && int(hdr.FrameCount) != total {
		return cr.n, formatErrorf("decoded dataset with incomplete sequence (%d of %d)", hdr.FrameCount, total)
	}
	pixels := uint64(hdr.CameraWidth) * uint64(hdr.CameraHeight)
	if hdr.FrameCount > 0 && (pixels == 0 || pixels > maxCameraPixels) {
		return cr.n, formatErrorf("invalid camera size %dx%d", hdr.CameraWidth, hdr.CameraHeight)
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		return cr.n, formatErrorf("open frames: %v", err)
	}
	zr.Multistream(false)
	frames := make([][]uint8, 0, total)
	crc := crc32.NewIEEE()
	for i := 0; i < int(hdr.FrameCount); i++ {
		frame := make([]uint8, pixels)
		if _, err := io.ReadFull(zr, frame); err != nil {
			return cr.n, formatErrorf("read frame %d: %v", i, err)
		}
		crc.Write(frame)
		frames = append(frames, frame)
	}
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return cr.n, formatErrorf("read frames: %v", err)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return cr.n, formatErrorf("trailing data after frames")
	}
	if crc.Sum32() != hdr.Checksum {
		return cr.n, formatErrorf("checksum mismatch")
	}

	width, height := int(hdr.CameraWidth), int(hdr.CameraHeight)
	if hdr.FrameCount == 0 {
		width, height, frames = 0, 0, nil
	}
	var ds *DataSet
	if hdr.State == stateFlagReady {
		ds = decode(d.payload, frames, width, height, hdr.Threshold)
	}

	d.mu.Lock()
	d.width, d.height = width, height
	d.frames = frames
	d.threshold = hdr.Threshold
	d.dataSet = ds
	d.mu.Unlock()

	d.logger.Infow("loaded graycode dataset", "frames", hdr.FrameCount, "camera", []int{width, height})
	return cr.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
