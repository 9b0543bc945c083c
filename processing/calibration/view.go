package calibration

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrSingular is returned when a view's combined matrix cannot be inverted.
var ErrSingular = errors.New("calibration matrices are singular")

// Ray is a half-line in world space.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// At returns the point Origin + t*Direction.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(t))
}

// View is a calibrated camera or projector: an image size plus the
// projection (intrinsics) and view (extrinsics) matrices, so that
// clip = Projection * View * world.
type View struct {
	Width      int
	Height     int
	Projection mgl64.Mat4
	View       mgl64.Mat4
}

// NewView returns an uncalibrated view of the given size.
func NewView(width, height int) *View {
	return &View{
		Width:      width,
		Height:     height,
		Projection: mgl64.Ident4(),
		View:       mgl64.Ident4(),
	}
}

// SetProjection replaces the intrinsics.
func (v *View) SetProjection(m mgl64.Mat4) {
	v.Projection = m
}

// SetView replaces the extrinsics.
func (v *View) SetView(m mgl64.Mat4) {
	v.View = m
}

// Calibrated reports whether intrinsics have been loaded.
func (v *View) Calibrated() bool {
	return !IsIdentity(v.Projection)
}

// Position returns the optical centre in world space.
func (v *View) Position() r3.Vector {
	c := v.View.Inv().Mul4x1(mgl64.Vec4{0, 0, 0, 1})
	if c[3] == 0 {
		return r3.Vector{}
	}
	return r3.Vector{X: c[0] / c[3], Y: c[1] / c[3], Z: c[2] / c[3]}
}

// Caster casts rays through pixels of a View.
type Caster struct {
	inverse mgl64.Mat4
	width   float64
	height  float64
}

// Caster precomputes the unprojection for v.
func (v *View) Caster() (*Caster, error) {
	if v.Width <= 0 || v.Height <= 0 {
		return nil, errors.Errorf("invalid view size %dx%d", v.Width, v.Height)
	}
	m := v.Projection.Mul4(v.View)
	if m.Det() == 0 {
		return nil, ErrSingular
	}
	return &Caster{inverse: m.Inv(), width: float64(v.Width), height: float64(v.Height)}, nil
}

// Ray returns the ray through the centre of pixel (x, y), running from the
// near plane towards the far plane. Image rows grow downwards.
func (c *Caster) Ray(x, y int) (Ray, bool) {
	ndcX := 2*(float64(x)+0.5)/c.width - 1
	ndcY := 1 - 2*(float64(y)+0.5)/c.height
	near, ok := c.unproject(ndcX, ndcY, -1)
	if !ok {
		return Ray{}, false
	}
	far, ok := c.unproject(ndcX, ndcY, 1)
	if !ok {
		return Ray{}, false
	}
	return Ray{Origin: near, Direction: far.Sub(near)}, true
}

func (c *Caster) unproject(x, y, z float64) (r3.Vector, bool) {
	p := c.inverse.Mul4x1(mgl64.Vec4{x, y, z, 1})
	if p[3] == 0 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: p[0] / p[3], Y: p[1] / p[3], Z: p[2] / p[3]}, true
}

// PixelRay is a convenience for casting a single ray.
func (v *View) PixelRay(x, y int) (Ray, error) {
	c, err := v.Caster()
	if err != nil {
		return Ray{}, err
	}
	r, ok := c.Ray(x, y)
	if !ok {
		return Ray{}, errors.Errorf("pixel (%d, %d) unprojects to infinity", x, y)
	}
	return r, nil
}
