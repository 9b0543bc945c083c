package session

import (
	"context"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"scanlight/internal/config"
	"scanlight/internal/models"
	"scanlight/processing/calibration"
	"scanlight/processing/export"
	"scanlight/processing/graycode"
	"scanlight/processing/triangulate"
)

// ErrNotCalibrated is returned when triangulation is requested before the
// dataset and both intrinsics are loaded.
var ErrNotCalibrated = errors.New("dataset and calibration are not loaded")

// TriangulateSession reconstructs a point cloud from a decoded dataset and
// the camera and projector calibration.
type TriangulateSession struct {
	Decoder   *graycode.Decoder
	Camera    *calibration.View
	Projector *calibration.View

	logger *zap.SugaredLogger

	mu                sync.RWMutex
	mesh              *models.Mesh
	stats             triangulate.Stats
	distanceThreshold float64
	pointSize         float64
}

func NewTriangulateSession(cfg *config.Config, logger *zap.SugaredLogger) (*TriangulateSession, error) {
	payload, err := graycode.NewPayload(cfg.Projector.Width, cfg.Projector.Height)
	if err != nil {
		return nil, err
	}
	return &TriangulateSession{
		Decoder:           graycode.NewDecoder(payload, graycode.WithLogger(logger.Named("decoder"))),
		Camera:            calibration.NewView(cfg.Camera.Width, cfg.Camera.Height),
		Projector:         calibration.NewView(payload.Width, payload.Height),
		logger:            logger,
		mesh:              &models.Mesh{},
		distanceThreshold: cfg.GetDistanceThreshold(),
		pointSize:         cfg.GetPointSize(),
	}, nil
}

// LoadDataSet replaces the decoded dataset. The camera takes the dataset's
// capture resolution.
func (s *TriangulateSession) LoadDataSet(path string) error {
	if err := s.Decoder.LoadDataSet(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds := s.Decoder.DataSet(); ds != nil {
		s.Camera.Width, s.Camera.Height = ds.CameraWidth, ds.CameraHeight
	}
	// Geometry from the previous scan no longer matches the decoder.
	s.mesh = &models.Mesh{}
	s.stats = triangulate.Stats{}
	s.logger.Infow("loaded dataset", "path", path, "state", s.Decoder.State(), "frames", s.Decoder.Frame())
	return nil
}

func (s *TriangulateSession) LoadCameraIntrinsics(path string) {
	s.setMatrix(s.Camera.SetProjection, path)
}

func (s *TriangulateSession) LoadCameraExtrinsics(path string) {
	s.setMatrix(s.Camera.SetView, path)
}

func (s *TriangulateSession) LoadProjectorIntrinsics(path string) {
	s.setMatrix(s.Projector.SetProjection, path)
}

func (s *TriangulateSession) LoadProjectorExtrinsics(path string) {
	s.setMatrix(s.Projector.SetView, path)
}

func (s *TriangulateSession) setMatrix(set func(mgl64.Mat4), path string) {
	m := calibration.LoadMatrix(path, s.logger)
	s.mu.Lock()
	set(m)
	s.mu.Unlock()
}

// CanTriangulate reports whether a dataset with valid pixels is loaded and
// both intrinsics differ from identity.
func (s *TriangulateSession) CanTriangulate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Decoder.HasData() && s.Camera.Calibrated() && s.Projector.Calibrated()
}

// Triangulate rebuilds the mesh with the current distance threshold.
func (s *TriangulateSession) Triangulate(ctx context.Context) (triangulate.Stats, error) {
	if !s.CanTriangulate() {
		return triangulate.Stats{}, ErrNotCalibrated
	}

	s.mu.RLock()
	camera, projector := *s.Camera, *s.Projector
	threshold := s.distanceThreshold
	s.mu.RUnlock()

	mesh, stats, err := triangulate.Triangulate(ctx, s.Decoder.DataSet(), &camera, &projector, threshold)
	if err != nil {
		return triangulate.Stats{}, err
	}

	s.mu.Lock()
	s.mesh, s.stats = mesh, stats
	s.mu.Unlock()

	s.logger.Infow("triangulated",
		"points", stats.Accepted,
		"rejected", stats.Rejected,
		"degenerate", stats.Degenerate,
		"mean_residual", stats.MeanResidual)
	return stats, nil
}

func (s *TriangulateSession) DistanceThreshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distanceThreshold
}

// SetDistanceThreshold changes the acceptance distance and re-runs the
// triangulation when it is possible.
func (s *TriangulateSession) SetDistanceThreshold(ctx context.Context, v float64) error {
	s.mu.Lock()
	s.distanceThreshold = v
	s.mu.Unlock()

	if !s.CanTriangulate() {
		return nil
	}
	_, err := s.Triangulate(ctx)
	return err
}

func (s *TriangulateSession) PointSize() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pointSize
}

func (s *TriangulateSession) SetPointSize(v float64) {
	s.mu.Lock()
	s.pointSize = v
	s.mu.Unlock()
}

// Mesh returns the latest reconstruction. It is empty until the first
// successful Triangulate.
func (s *TriangulateSession) Mesh() *models.Mesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mesh
}

func (s *TriangulateSession) Stats() triangulate.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Preview renders the mesh from above at the given size.
func (s *TriangulateSession) Preview(width, height int) image.Image {
	return export.RenderPreview(s.Mesh(), width, height, int(s.PointSize()+0.5))
}

// SaveWorldMap writes the projector-sized world position map.
func (s *TriangulateSession) SaveWorldMap(path string) error {
	mesh := s.Mesh()
	if mesh.Len() == 0 {
		return errors.New("nothing triangulated yet")
	}
	s.mu.RLock()
	w, h := s.Projector.Width, s.Projector.Height
	s.mu.RUnlock()
	return export.WorldMap(mesh, w, h).SaveRaw(path)
}

func (s *TriangulateSession) SavePCD(path string) error {
	mesh := s.Mesh()
	if mesh.Len() == 0 {
		return errors.New("nothing triangulated yet")
	}
	return export.SavePCD(path, mesh)
}
