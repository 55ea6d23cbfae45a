package monitor

import (
	"context"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/radar.overlay/internal/config"
	"github.com/banshee-data/radar.overlay/internal/httputil"
)

// Settings is implemented by sources whose map settings can change while
// running. Both calls regenerate the current bitmap as needed.
type Settings interface {
	SetWalkableColor(ctx context.Context, c color.NRGBA) error
	SetDrawWalkableMap(ctx context.Context, on bool) error
}

// handleSettings applies the draw_walkable_map and walkable_color form
// values, in that order, and answers with the resulting status.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	set := s.src.(Settings)

	drawValue := strings.TrimSpace(r.FormValue("draw_walkable_map"))
	colorValue := strings.TrimSpace(r.FormValue("walkable_color"))
	if drawValue == "" && colorValue == "" {
		httputil.BadRequest(w, "nothing to change: set draw_walkable_map or walkable_color")
		return
	}

	var (
		draw    bool
		walkCol color.NRGBA
		err     error
	)
	if drawValue != "" {
		if draw, err = strconv.ParseBool(drawValue); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid draw_walkable_map %q", drawValue))
			return
		}
	}
	if colorValue != "" {
		if walkCol, err = parseColor(colorValue); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}

	if drawValue != "" {
		if err := set.SetDrawWalkableMap(r.Context(), draw); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to apply draw_walkable_map: %v", err))
			return
		}
	}
	if colorValue != "" {
		if err := set.SetWalkableColor(r.Context(), walkCol); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to apply walkable_color: %v", err))
			return
		}
	}
	httputil.WriteJSONOK(w, s.src.Status())
}

// parseColor reads "r,g,b,a" with components in [0, 1], the config format.
func parseColor(v string) (color.NRGBA, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("walkable_color %q: want r,g,b,a", v)
	}
	var c config.RGBA
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 || f > 1 {
			return color.NRGBA{}, fmt.Errorf("walkable_color %q: component %d must be between 0 and 1", v, i)
		}
		c[i] = f
	}
	return c.NRGBA(), nil
}
