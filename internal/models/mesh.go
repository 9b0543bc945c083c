package models

import (
	"image"

	"github.com/golang/geo/r3"
)

type Vertex struct {
	Position r3.Vector   `json:"position"`
	TexCoord image.Point `json:"tex_coord"`
	Residual float64     `json:"residual"`
}

// Mesh is an ordered point set produced by one triangulation pass. TexCoord
// is the projector pixel each point was triangulated from.
type Mesh struct {
	Vertices []Vertex `json:"vertices"`
}

func (m *Mesh) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

func (m *Mesh) Append(v Vertex) {
	m.Vertices = append(m.Vertices, v)
}

// Bounds returns the axis-aligned box around all vertices.
func (m *Mesh) Bounds() (lo, hi r3.Vector, ok bool) {
	if m.Len() == 0 {
		return r3.Vector{}, r3.Vector{}, false
	}
	lo, hi = m.Vertices[0].Position, m.Vertices[0].Position
	for _, v := range m.Vertices[1:] {
		p := v.Position
		lo = r3.Vector{X: min(lo.X, p.X), Y: min(lo.Y, p.Y), Z: min(lo.Z, p.Z)}
		hi = r3.Vector{X: max(hi.X, p.X), Y: max(hi.Y, p.Y), Z: max(hi.Z, p.Z)}
	}
	return lo, hi, true
}
