package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/radar.overlay/internal/landmark"
)

// landmarkSpec is one -add-landmark value: area:tile:count[:display].
type landmarkSpec struct {
	Area    string
	Tile    string
	Count   int
	Display string
}

func parseLandmarkSpec(s string) (landmarkSpec, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) < 3 {
		return landmarkSpec{}, fmt.Errorf("landmark %q: want area:tile:count[:display]", s)
	}
	spec := landmarkSpec{Area: strings.TrimSpace(parts[0]), Tile: strings.TrimSpace(parts[1])}
	if spec.Area == "" || spec.Tile == "" {
		return landmarkSpec{}, fmt.Errorf("landmark %q: area and tile are required", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil || n < 0 {
		return landmarkSpec{}, fmt.Errorf("landmark %q: count must be a non-negative integer", s)
	}
	spec.Count = n
	if len(parts) == 4 {
		spec.Display = strings.TrimSpace(parts[3])
	}
	return spec, nil
}

// landmarkPutter is the part of the landmark store -add-landmark writes to.
type landmarkPutter interface {
	Put(area string, g landmark.Group) error
}

// tileCounter reports how many tiles named tile a recorded area holds.
type tileCounter func(area, tile string) (int, error)

// addLandmark stores spec. A zero count takes the number of tiles
// currently recorded for the area.
func addLandmark(store landmarkPutter, count tileCounter, spec landmarkSpec) (landmark.Group, error) {
	observed := 0
	if spec.Count == 0 {
		n, err := count(spec.Area, spec.Tile)
		if err != nil {
			return landmark.Group{}, fmt.Errorf("counting %q tiles in %q: %w", spec.Tile, spec.Area, err)
		}
		if n == 0 {
			return landmark.Group{}, fmt.Errorf("%w: no %q tiles recorded in %q", landmark.ErrInvalidGroup, spec.Tile, spec.Area)
		}
		observed = n
	}
	g, err := landmark.NewGroup(spec.Tile, spec.Display, spec.Count, observed)
	if err != nil {
		return landmark.Group{}, err
	}
	if err := store.Put(spec.Area, g); err != nil {
		return landmark.Group{}, err
	}
	return g, nil
}
