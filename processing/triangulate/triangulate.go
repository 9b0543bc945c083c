// Package triangulate recovers 3D points from a decoded graycode dataset and
// a calibrated camera/projector pair.
package triangulate

import (
	"context"
	"image"
	"runtime"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scanlight/internal/models"
	"scanlight/processing/calibration"
	"scanlight/processing/graycode"
)

// DefaultDistanceThreshold is the largest accepted ray separation, in scene
// units, used by the tools unless configured otherwise.
const DefaultDistanceThreshold = 0.05

// parallelTolerance bounds sin² of the angle between two rays below which
// they are treated as parallel.
const parallelTolerance = 1e-12

// Stats summarizes one triangulation pass.
type Stats struct {
	Candidates   int
	Accepted     int
	Rejected     int
	Degenerate   int
	MeanResidual float64
	StdResidual  float64
	MaxResidual  float64
}

// ClosestApproach returns the midpoint of the shortest segment between the
// lines through a and b, and that segment's length. ok is false when the
// rays are parallel or have no direction.
func ClosestApproach(a, b calibration.Ray) (mid r3.Vector, distance float64, ok bool) {
	w0 := a.Origin.Sub(b.Origin)
	aa := a.Direction.Dot(a.Direction)
	ab := a.Direction.Dot(b.Direction)
	bb := b.Direction.Dot(b.Direction)
	aw := a.Direction.Dot(w0)
	bw := b.Direction.Dot(w0)

	denom := aa*bb - ab*ab
	if aa == 0 || bb == 0 || denom <= parallelTolerance*aa*bb {
		return r3.Vector{}, 0, false
	}
	s := (ab*bw - bb*aw) / denom
	t := (aa*bw - ab*aw) / denom

	p := a.At(s)
	q := b.At(t)
	return p.Add(q).Mul(0.5), p.Sub(q).Norm(), true
}

type chunk struct {
	vertices   []models.Vertex
	candidates int
	rejected   int
	degenerate int
}

// Triangulate intersects, for every active camera pixel of ds, the camera
// ray through that pixel with the projector ray through its decoded
// projector pixel. Points whose rays pass within threshold of each other are
// kept, in camera scan order; parallel pairs and wider misses are skipped.
// The same inputs always produce the same mesh.
func Triangulate(ctx context.Context, ds *graycode.DataSet, camera, projector *calibration.View,
	threshold float64,
) (*models.Mesh, Stats, error) {
	if ds == nil {
		return nil, Stats{}, errors.New("no decoded dataset")
	}
	if camera.Width != ds.CameraWidth || camera.Height != ds.CameraHeight {
		return nil, Stats{}, errors.Errorf("camera is %dx%d, dataset camera is %dx%d",
			camera.Width, camera.Height, ds.CameraWidth, ds.CameraHeight)
	}
	if projector.Width != ds.ProjectorWidth || projector.Height != ds.ProjectorHeight {
		return nil, Stats{}, errors.Errorf("projector is %dx%d, dataset projector is %dx%d",
			projector.Width, projector.Height, ds.ProjectorWidth, ds.ProjectorHeight)
	}
	camCaster, err := camera.Caster()
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "camera")
	}
	projCaster, err := projector.Caster()
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "projector")
	}

	height := ds.CameraHeight
	workers := runtime.GOMAXPROCS(0)
	rowsPer := max((height+workers-1)/max(workers, 1), 1)
	chunks := make([]chunk, (height+rowsPer-1)/rowsPer)

	g, gctx := errgroup.WithContext(ctx)
	for i := range chunks {
		i := i
		y0, y1 := i*rowsPer, min((i+1)*rowsPer, height)
		g.Go(func() error {
			return triangulateRows(gctx, ds, camCaster, projCaster, threshold, y0, y1, &chunks[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	var stats Stats
	total := 0
	for _, c := range chunks {
		total += len(c.vertices)
	}
	mesh := &models.Mesh{Vertices: make([]models.Vertex, 0, total)}
	for _, c := range chunks {
		mesh.Vertices = append(mesh.Vertices, c.vertices...)
		stats.Candidates += c.candidates
		stats.Rejected += c.rejected
		stats.Degenerate += c.degenerate
	}
	stats.Accepted = len(mesh.Vertices)

	if stats.Accepted > 0 {
		residuals := make([]float64, stats.Accepted)
		for i, v := range mesh.Vertices {
			residuals[i] = v.Residual
		}
		stats.MaxResidual = floats.Max(residuals)
		if stats.Accepted > 1 {
			stats.MeanResidual, stats.StdResidual = stat.MeanStdDev(residuals, nil)
		} else {
			stats.MeanResidual = residuals[0]
		}
	}
	return mesh, stats, nil
}

func triangulateRows(ctx context.Context, ds *graycode.DataSet, camera, projector *calibration.Caster,
	threshold float64, y0, y1 int, out *chunk,
) error {
	width := ds.CameraWidth
	for y := y0; y < y1; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for x := 0; x < width; x++ {
			px, py, ok := ds.ProjectorPixel(y*width + x)
			if !ok {
				continue
			}
			out.candidates++

			camRay, okCam := camera.Ray(x, y)
			projRay, okProj := projector.Ray(px, py)
			if !okCam || !okProj {
				out.degenerate++
				continue
			}
			mid, dist, ok := ClosestApproach(camRay, projRay)
			if !ok {
				out.degenerate++
				continue
			}
			if dist > threshold {
				out.rejected++
				continue
			}
			out.vertices = append(out.vertices, models.Vertex{
				Position: mid,
				TexCoord: image.Point{X: px, Y: py},
				Residual: dist,
			})
		}
	}
	return nil
}
