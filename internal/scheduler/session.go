package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radar.overlay/internal/classify"
	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/terrain"
)

// AreaSession owns everything scoped to one area visit. It is created on
// AreaChanged and replaced, never reset, on the next one.
type AreaSession struct {
	ID      string
	Area    string
	Epoch   uint64
	Special bool
	Started time.Time

	// Classifier memoizes entity icons for this area only.
	Classifier *classify.Cache

	// Bitmap is nil until a decode for this epoch commits, or when map
	// drawing is off or the decode failed.
	Bitmap *terrain.Bitmap
	// Landmarks holds the recomputed groups of this area.
	Landmarks landmark.AreaIndex
	Report    landmark.Report
	// Tiles are the raw tile observations the landmarks were built from.
	Tiles landmark.Observations
	// Err is the last recompute failure, if any.
	Err error

	terrain terrain.Grid
}

// NewAreaSession returns an empty session for area. Bitmap and landmarks are
// filled in when a recompute for epoch commits.
func NewAreaSession(area string, epoch uint64, special bool, grid terrain.Grid, now time.Time) *AreaSession {
	return &AreaSession{
		ID:         uuid.New().String(),
		Area:       area,
		Epoch:      epoch,
		Special:    special,
		Started:    now,
		Classifier: classify.NewCache(special),
		Landmarks:  landmark.AreaIndex{},
		terrain:    grid,
	}
}

// HeightAt returns the terrain height of the session's area at a grid position.
func (s *AreaSession) HeightAt(x, y int) int {
	return s.terrain.HeightAt(x, y)
}

// HeightGridSize returns the width and row count of the height grid.
func (s *AreaSession) HeightGridSize() (width, rows int) {
	rows = len(s.terrain.Heights)
	if rows > 0 {
		width = len(s.terrain.Heights[0])
	}
	return width, rows
}
