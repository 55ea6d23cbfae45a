// Package monitor serves debug views of the overlay's per-area artifacts.
package monitor

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/radar.overlay/internal/httputil"
	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
)

// Source is the scheduler surface the monitor reads.
type Source interface {
	Artifacts() (scheduler.Artifacts, bool)
	Status() scheduler.Status
}

// Server renders debug pages for a Source.
type Server struct {
	src Source
	// AssetsHost overrides where the chart page loads echarts from.
	AssetsHost string
}

// NewServer returns a Server reading from src.
func NewServer(src Source) *Server {
	return &Server{src: src}
}

// AttachAdminRoutes registers the debug pages under /debug/. Sources that
// implement Settings also get a POST settings route.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("status", "Scheduler status (JSON)", s.handleStatus)
	debug.HandleFunc("landmarks", "Landmark tiles and cluster centers of the current area", s.handleLandmarks)
	debug.HandleFunc("terrain.png", "Decoded terrain bitmap of the current area", s.handleTerrain)
	if _, ok := s.src.(Settings); ok {
		debug.HandleSilentFunc("settings", s.handleSettings)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.src.Status())
}

func (s *Server) handleTerrain(w http.ResponseWriter, r *http.Request) {
	art, ok := s.src.Artifacts()
	if !ok || art.Bitmap == nil || art.Bitmap.Image == nil {
		httputil.NotFound(w, "no terrain bitmap for the current area")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, art.Bitmap.Image); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode bitmap: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleLandmarks(w http.ResponseWriter, r *http.Request) {
	art, ok := s.src.Artifacts()
	if !ok {
		httputil.NotFound(w, "no area loaded")
		return
	}
	scatter := LandmarkChart(art.Area, art.Landmarks, art.Tiles, s.AssetsHost)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// LandmarkChart builds a scatter with one series of raw tiles and one of
// valid centers per landmark group.
func LandmarkChart(area string, groups landmark.AreaIndex, obs landmark.Observations, assetsHost string) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Landmarks", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Landmarks", Subtitle: fmt.Sprintf("area=%s groups=%d valid=%d", area, len(groups), len(groups.Valid()))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "grid x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "grid y", NameLocation: "middle", NameGap: 30}),
	)

	for _, name := range groups.Names() {
		g := groups[name]
		tiles := make([]opts.ScatterData, 0, len(obs[name]))
		for _, v := range obs[name] {
			tiles = append(tiles, opts.ScatterData{Value: []interface{}{v.X, v.Y}})
		}
		scatter.AddSeries(g.Display+" tiles", tiles, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

		if !g.Valid {
			continue
		}
		centers := make([]opts.ScatterData, 0, len(g.Centers))
		for _, c := range g.Centers {
			centers = append(centers, opts.ScatterData{Value: []interface{}{c.X, c.Y}})
		}
		scatter.AddSeries(g.Display+" centers", centers, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))
	}
	return scatter
}
