package monitor

import (
	"fmt"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/security"
	"github.com/banshee-data/radar.overlay/internal/terrain"
)

var (
	tileColor   = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	centerColor = color.RGBA{R: 230, G: 60, B: 60, A: 255}
)

// PlotLandmarks writes a PNG scatter of the raw tile observations and the
// valid cluster centers of area to path.
func PlotLandmarks(path, area string, groups landmark.AreaIndex, obs landmark.Observations) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Landmarks - %s", area)
	p.X.Label.Text = "Grid X"
	p.Y.Label.Text = "Grid Y"

	var tiles, centers plotter.XYs
	for _, name := range groups.Names() {
		for _, v := range obs[name] {
			tiles = append(tiles, plotter.XY{X: v.X, Y: v.Y})
		}
		if g := groups[name]; g.Valid {
			for _, c := range g.Centers {
				centers = append(centers, plotter.XY{X: c.X, Y: c.Y})
			}
		}
	}

	if len(tiles) > 0 {
		s, err := plotter.NewScatter(tiles)
		if err != nil {
			return fmt.Errorf("tile scatter: %w", err)
		}
		s.GlyphStyle.Color = tileColor
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add("tiles", s)
	}
	if len(centers) > 0 {
		s, err := plotter.NewScatter(centers)
		if err != nil {
			return fmt.Errorf("center scatter: %w", err)
		}
		s.GlyphStyle.Color = centerColor
		s.GlyphStyle.Radius = vg.Points(4)
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(s)
		p.Legend.Add("centers", s)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save landmark plot: %w", err)
	}
	return nil
}

// SaveBitmap writes the decoded terrain bitmap to path as PNG.
func SaveBitmap(path string, bmp *terrain.Bitmap) error {
	if bmp == nil || bmp.Image == nil {
		return fmt.Errorf("no bitmap to save")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, bmp.Image); err != nil {
		f.Close()
		return fmt.Errorf("encode terrain png: %w", err)
	}
	return f.Close()
}

// DumpFiles are the paths written by Dump; empty when skipped.
type DumpFiles struct {
	Terrain   string
	Landmarks string
}

// Dump writes the terrain bitmap and landmark plot of one area into dir.
// Parts with nothing to show are skipped.
func Dump(dir, area string, bmp *terrain.Bitmap, groups landmark.AreaIndex, obs landmark.Observations) (DumpFiles, error) {
	var out DumpFiles
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, err
	}
	base := security.SanitizeFilename(area)
	if bmp != nil {
		path := filepath.Join(dir, base+"_terrain.png")
		if err := SaveBitmap(path, bmp); err != nil {
			return out, err
		}
		out.Terrain = path
	}
	if len(groups) > 0 {
		path := filepath.Join(dir, base+"_landmarks.png")
		if err := PlotLandmarks(path, area, groups, obs); err != nil {
			return out, err
		}
		out.Landmarks = path
	}
	return out, nil
}
