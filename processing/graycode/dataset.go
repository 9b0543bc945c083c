package graycode

import (
	"image"
	"image/color"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DataSet is the decoded correspondence between camera and projector pixels.
type DataSet struct {
	CameraWidth     int
	CameraHeight    int
	ProjectorWidth  int
	ProjectorHeight int
	Threshold       uint8

	// Data holds, per camera pixel, the projector pixel index y*ProjectorWidth+x.
	// Entries are only meaningful where Active is set.
	Data   []uint32
	Active []bool

	Median        *image.Gray
	MedianInverse *image.Gray
}

// ActiveCount returns the number of camera pixels with a valid correspondence.
func (d *DataSet) ActiveCount() int {
	n := 0
	for _, a := range d.Active {
		if a {
			n++
		}
	}
	return n
}

// ProjectorPixel returns the projector pixel seen by camera pixel index cam.
func (d *DataSet) ProjectorPixel(cam int) (x, y int, ok bool) {
	if cam < 0 || cam >= len(d.Active) || !d.Active[cam] {
		return 0, 0, false
	}
	p := int(d.Data[cam])
	return p % d.ProjectorWidth, p / d.ProjectorWidth, true
}

// CameraInProjector renders, in projector space, the camera pixel that sees
// each projector pixel. Red and green carry the normalized camera x and y;
// unmapped projector pixels are transparent. When several camera pixels see
// the same projector pixel the first in scan order wins.
func (d *DataSet) CameraInProjector() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, d.ProjectorWidth, d.ProjectorHeight))
	for cam, active := range d.Active {
		if !active {
			continue
		}
		px, py := int(d.Data[cam])%d.ProjectorWidth, int(d.Data[cam])/d.ProjectorWidth
		if img.NRGBA64At(px, py).A != 0 {
			continue
		}
		img.SetNRGBA64(px, py, color.NRGBA64{
			R: normalize(cam%d.CameraWidth, d.CameraWidth),
			G: normalize(cam/d.CameraWidth, d.CameraHeight),
			A: 0xffff,
		})
	}
	return img
}

// ProjectorInCamera renders, in camera space, the projector pixel seen by
// each camera pixel.
func (d *DataSet) ProjectorInCamera() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, d.CameraWidth, d.CameraHeight))
	for cam, active := range d.Active {
		if !active {
			continue
		}
		p := int(d.Data[cam])
		img.SetNRGBA64(cam%d.CameraWidth, cam/d.CameraWidth, color.NRGBA64{
			R: normalize(p%d.ProjectorWidth, d.ProjectorWidth),
			G: normalize(p/d.ProjectorWidth, d.ProjectorHeight),
			A: 0xffff,
		})
	}
	return img
}

func normalize(v, size int) uint16 {
	if size <= 1 {
		return 0
	}
	return uint16(v * 0xffff / (size - 1))
}

// decode derives a dataset from a complete set of frames. It only reads its
// arguments, so repeated calls with the same frames and threshold agree.
func decode(p *Payload, frames [][]uint8, width, height int, threshold uint8) *DataSet {
	n := width * height
	ds := &DataSet{
		CameraWidth:     width,
		CameraHeight:    height,
		ProjectorWidth:  p.Width,
		ProjectorHeight: p.Height,
		Threshold:       threshold,
		Data:            make([]uint32, n),
		Active:          make([]bool, n),
		Median:          image.NewGray(image.Rect(0, 0, width, height)),
		MedianInverse:   image.NewGray(image.Rect(0, 0, width, height)),
	}

	workers := runtime.GOMAXPROCS(0)
	rowsPer := (height + workers - 1) / max(workers, 1)
	var g errgroup.Group
	for start := 0; start < height; start += rowsPer {
		y0, y1 := start, min(start+rowsPer, height)
		g.Go(func() error {
			decodeRows(p, frames, ds, y0, y1)
			return nil
		})
	}
	_ = g.Wait()
	return ds
}

func decodeRows(p *Payload, frames [][]uint8, ds *DataSet, y0, y1 int) {
	planes := p.Bits()
	lit := make([]uint8, planes)
	unlit := make([]uint8, planes)
	width := ds.CameraWidth

	for i := y0 * width; i < y1*width; i++ {
		var codeX, codeY uint32
		tie := false
		for b := 0; b < planes; b++ {
			normal, inverse := frames[2*b][i], frames[2*b+1][i]
			if normal == inverse {
				tie = true
			}
			lit[b], unlit[b] = max(normal, inverse), min(normal, inverse)
			if normal <= inverse {
				continue
			}
			vertical, bit := p.Plane(b)
			if vertical {
				codeY |= 1 << uint(bit)
			} else {
				codeX |= 1 << uint(bit)
			}
		}

		hi, lo := median(lit), median(unlit)
		ds.Median.Pix[i] = hi
		ds.MedianInverse.Pix[i] = lo

		x, y := GrayDecode(codeX), GrayDecode(codeY)
		if tie || int(hi)-int(lo) < int(ds.Threshold) || x >= uint32(p.Width) || y >= uint32(p.Height) {
			continue
		}
		ds.Data[i] = y*uint32(p.Width) + x
		ds.Active[i] = true
	}
}

// median sorts v in place.
func median(v []uint8) uint8 {
	if len(v) == 0 {
		return 0
	}
	slices.Sort(v)
	n := len(v)
	return uint8((uint16(v[(n-1)/2]) + uint16(v[n/2])) / 2)
}
