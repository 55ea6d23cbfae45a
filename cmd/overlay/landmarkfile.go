package main

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/radar.overlay/internal/landmark"
)

// landmarkFile is the YAML form of the landmark table, keyed by area then
// tile name:
//
//	1_1_town:
//	  Waypoint:
//	    count: 1
//	    display: Waypoint
type landmarkFile map[string]map[string]landmarkEntry

type landmarkEntry struct {
	Count   int    `yaml:"count"`
	Display string `yaml:"display,omitempty"`
}

// landmarkLister is the read side of the landmark store.
type landmarkLister interface {
	Areas() ([]string, error)
	Area(area string) (landmark.AreaIndex, error)
}

// exportLandmarks writes every stored landmark group as YAML.
func exportLandmarks(w io.Writer, store landmarkLister) (int, error) {
	areas, err := store.Areas()
	if err != nil {
		return 0, err
	}
	file := make(landmarkFile, len(areas))
	n := 0
	for _, area := range areas {
		idx, err := store.Area(area)
		if err != nil {
			return 0, fmt.Errorf("loading landmarks of %q: %w", area, err)
		}
		tiles := make(map[string]landmarkEntry, len(idx))
		for name, g := range idx {
			tiles[name] = landmarkEntry{Count: g.ExpectedClusterCount, Display: g.Display}
			n++
		}
		file[area] = tiles
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return 0, fmt.Errorf("encoding landmarks: %w", err)
	}
	return n, enc.Close()
}

// importLandmarks stores every group of a YAML landmark file. Entries are
// applied in area then tile order and the first failure stops the import.
func importLandmarks(r io.Reader, store landmarkPutter, count tileCounter) ([]landmarkSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var file landmarkFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing landmark file: %w", err)
	}

	var specs []landmarkSpec
	for area, tiles := range file {
		for tile, e := range tiles {
			if e.Count < 0 {
				return nil, fmt.Errorf("%w: %s/%s has negative count %d", landmark.ErrInvalidGroup, area, tile, e.Count)
			}
			specs = append(specs, landmarkSpec{Area: area, Tile: tile, Count: e.Count, Display: e.Display})
		}
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Area != specs[j].Area {
			return specs[i].Area < specs[j].Area
		}
		return specs[i].Tile < specs[j].Tile
	})

	for i, spec := range specs {
		if spec.Area == "" || spec.Tile == "" {
			return specs[:i], fmt.Errorf("%w: empty area or tile name", landmark.ErrInvalidGroup)
		}
		if _, err := addLandmark(store, count, spec); err != nil {
			return specs[:i], fmt.Errorf("%s/%s: %w", spec.Area, spec.Tile, err)
		}
	}
	return specs, nil
}
