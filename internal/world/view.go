package world

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/terrain"
)

// MapView describes one on-screen map widget in pixels.
type MapView struct {
	Position     r2.Vec  `json:"position"`
	Size         r2.Vec  `json:"size"`
	Center       r2.Vec  `json:"center"`
	Shift        r2.Vec  `json:"shift"`
	DefaultShift r2.Vec  `json:"default_shift"`
	Zoom         float64 `json:"zoom"`
	Visible      bool    `json:"visible"`
}

// Diagonal returns the length of the view's pixel diagonal.
func (m MapView) Diagonal() float64 {
	return math.Hypot(m.Size.X, m.Size.Y)
}

// CenterWithDefaultShift returns the view's midpoint moved by its default shift.
func (m MapView) CenterWithDefaultShift() r2.Vec {
	return r2.Add(r2.Add(m.Position, r2.Scale(0.5, m.Size)), m.DefaultShift)
}

// Area is the per-area snapshot consumed on every area change.
type Area struct {
	ID      string
	Terrain terrain.Grid
	Tiles   landmark.Observations
}

// Frame is the live state consumed by one render pass.
type Frame struct {
	State      GameState
	Foreground bool
	LargeMap   MapView
	MiniMap    MapView
	Player     Entity
	Entities   []Entity
	// Tiles are the raw tile positions of the current area.
	Tiles landmark.Observations
}
