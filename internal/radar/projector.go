package radar

import "gonum.org/v1/gonum/spatial/r2"

// ViewMetrics are the per-view values a projection depends on.
type ViewMetrics struct {
	// Diagonal is the view's pixel diagonal length.
	Diagonal float64
	Scale    float64
}

// Projector maps a grid-space delta from the player, plus a terrain height
// delta, to a pixel offset from the map center.
type Projector interface {
	MapDelta(delta r2.Vec, heightDelta float64, view ViewMetrics) r2.Vec
}

// ProjectorFunc adapts a function to Projector.
type ProjectorFunc func(delta r2.Vec, heightDelta float64, view ViewMetrics) r2.Vec

// MapDelta calls f.
func (f ProjectorFunc) MapDelta(delta r2.Vec, heightDelta float64, view ViewMetrics) r2.Vec {
	return f(delta, heightDelta, view)
}

// TopDownProjector ignores height and scales the delta by the view scale.
// It stands in for the host projection when replaying snapshots.
var TopDownProjector Projector = ProjectorFunc(func(delta r2.Vec, _ float64, view ViewMetrics) r2.Vec {
	return r2.Scale(view.Scale, delta)
})
