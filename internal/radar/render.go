package radar

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/classify"
	"github.com/banshee-data/radar.overlay/internal/config"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/world"
)

// largeMapIconMultiplier enlarges icons on the large map relative to its zoom.
const largeMapIconMultiplier = 5

// dotRadius is the radius of the marker drawn for unrecognised entities.
const dotRadius = 5

var (
	labelBackground = color.NRGBA{A: 200}
	playerNameColor = color.NRGBA{R: 255, G: 128, B: 128, A: 255}
	unknownColor    = color.NRGBA{R: 255, B: 255, A: 255}
)

// CommandKind identifies a draw primitive.
type CommandKind uint8

const (
	// CmdTerrain draws the terrain bitmap onto Quad.
	CmdTerrain CommandKind = iota + 1
	// CmdLabel draws Text centred on At, over Background when its alpha is non-zero.
	CmdLabel
	// CmdIcon draws Icon centred on At with half-extent HalfSize.
	CmdIcon
	// CmdDot draws a filled circle of radius HalfSize at At.
	CmdDot
)

// Command is one draw primitive in screen pixels.
type Command struct {
	Kind       CommandKind
	Quad       [4]r2.Vec
	At         r2.Vec
	HalfSize   float64
	Icon       classify.IconKey
	Text       string
	Color      color.NRGBA
	Background color.NRGBA
}

func (c Command) String() string {
	switch c.Kind {
	case CmdTerrain:
		return fmt.Sprintf("terrain %v", c.Quad)
	case CmdLabel:
		return fmt.Sprintf("label %q at %v", c.Text, c.At)
	case CmdIcon:
		return fmt.Sprintf("icon %s at %v x%.2f", c.Icon, c.At, c.HalfSize)
	default:
		return fmt.Sprintf("dot at %v", c.At)
	}
}

// Rect is a screen-space window.
type Rect struct {
	Pos  r2.Vec
	Size r2.Vec
}

// Output is the result of one render pass.
type Output struct {
	Large []Command
	Mini  []Command
	// CullWindow clips the large map.
	CullWindow Rect
	// EditCullWindow asks the host to let the user reposition CullWindow.
	EditCullWindow bool
}

// Renderer builds draw commands for each frame.
type Renderer struct {
	cfg   *config.OverlayConfig
	icons *IconCatalog
	proj  Projector
}

// NewRenderer resolves the configured icon catalog.
func NewRenderer(cfg *config.OverlayConfig, proj Projector) (*Renderer, error) {
	if cfg == nil {
		cfg = config.EmptyOverlayConfig()
	}
	if proj == nil {
		return nil, fmt.Errorf("radar: nil projector")
	}
	icons, err := NewIconCatalog(cfg.GetIcons())
	if err != nil {
		return nil, fmt.Errorf("radar: %w", err)
	}
	return &Renderer{cfg: cfg, icons: icons, proj: proj}, nil
}

// Icons returns the resolved icon catalog.
func (r *Renderer) Icons() *IconCatalog { return r.icons }

// Render draws one frame. It must run on the scheduler's dispatcher
// goroutine since it updates the session's classification cache.
func (r *Renderer) Render(fc scheduler.FrameContext) Output {
	f := fc.Frame
	if f.State != world.InGameState {
		return Output{}
	}
	if r.cfg.GetDrawWhenForeground() && !f.Foreground {
		return Output{}
	}

	pos, size := r.cfg.GetCullWindowPos(), r.cfg.GetCullWindowSize()
	out := Output{
		CullWindow:     Rect{Pos: r2.Vec{X: pos[0], Y: pos[1]}, Size: r2.Vec{X: size[0], Y: size[1]}},
		EditCullWindow: fc.ModifyCullWindow || r.cfg.GetModifyCullWindow(),
	}
	if f.Player.Render == nil {
		return out
	}

	if f.LargeMap.Visible {
		center := r2.Add(r2.Add(f.LargeMap.Center, f.LargeMap.Shift), f.LargeMap.DefaultShift)
		scale := f.LargeMap.Zoom * r.cfg.GetLargeMapScaleMultiplier()
		p := pass{r: r, fc: fc, center: center, view: ViewMetrics{Diagonal: fc.Metrics.LargeMapDiagonal, Scale: scale}}
		p.terrain()
		p.labels()
		p.icons(scale * largeMapIconMultiplier)
		out.Large = p.cmds
	}

	if f.MiniMap.Visible {
		center := r2.Add(fc.Metrics.MiniMapCenter, f.MiniMap.Shift)
		p := pass{r: r, fc: fc, center: center, view: ViewMetrics{Diagonal: fc.Metrics.MiniMapDiagonal, Scale: f.MiniMap.Zoom}}
		p.icons(f.MiniMap.Zoom)
		out.Mini = p.cmds
	}
	return out
}

// pass draws into one map view.
type pass struct {
	r      *Renderer
	fc     scheduler.FrameContext
	center r2.Vec
	view   ViewMetrics
	cmds   []Command
}

func (p *pass) project(delta r2.Vec, heightDelta float64) r2.Vec {
	return r2.Add(p.center, p.r.proj.MapDelta(delta, heightDelta, p.view))
}

func (p *pass) player() *world.Render {
	return p.fc.Frame.Player.Render
}

func (p *pass) terrain() {
	bmp := p.fc.Bitmap
	if bmp == nil || !p.r.cfg.GetDrawWalkableMap() {
		return
	}
	pr := p.player()
	left, top := -pr.GridPosition.X, -pr.GridPosition.Y
	right, bottom := left+float64(bmp.Width), top+float64(bmp.Height)
	corners := [4]r2.Vec{{X: left, Y: top}, {X: right, Y: top}, {X: right, Y: bottom}, {X: left, Y: bottom}}
	var quad [4]r2.Vec
	for i, c := range corners {
		quad[i] = p.project(c, -pr.TerrainHeight)
	}
	p.cmds = append(p.cmds, Command{Kind: CmdTerrain, Quad: quad})
}

func (p *pass) label(at r2.Vec, text string, fg, bg color.NRGBA) {
	p.cmds = append(p.cmds, Command{Kind: CmdLabel, At: at, Text: text, Color: fg, Background: bg})
}

func (p *pass) labels() {
	cfg := p.r.cfg
	fg := cfg.GetTileNameColor().NRGBA()
	var bg color.NRGBA
	if cfg.GetTileNameBackground() {
		bg = labelBackground
	}
	pr := p.player()
	sess := p.fc.Session

	switch {
	case cfg.GetShowAllTileNames():
		tiles := p.fc.Frame.Tiles
		names := make([]string, 0, len(tiles))
		for name := range tiles {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, loc := range tiles[name] {
				height := 0
				if sess != nil {
					height = sess.HeightAt(int(loc.X), int(loc.Y))
				}
				at := p.project(r2.Sub(loc, pr.GridPosition), -pr.TerrainHeight+float64(height))
				p.label(at, name, fg, bg)
			}
		}
	case cfg.GetShowImportantTileNames():
		for _, g := range p.fc.Landmarks.Valid() {
			for _, loc := range g.Centers {
				// Cluster labels are placed with the tile height negated.
				height := 0
				if sess != nil {
					width, rows := sess.HeightGridSize()
					if loc.X < float64(width) && loc.Y < float64(rows) {
						height = -sess.HeightAt(int(loc.X), int(loc.Y))
					}
				}
				at := p.project(r2.Sub(loc, pr.GridPosition), -pr.TerrainHeight+float64(height))
				p.label(at, g.Display, fg, bg)
			}
		}
	}
}

func (p *pass) icon(key classify.IconKey, at r2.Vec, multiplier float64) {
	scale, ok := p.r.icons.Scale(key)
	if !ok || scale <= 0 {
		return
	}
	p.cmds = append(p.cmds, Command{Kind: CmdIcon, Icon: key, At: at, HalfSize: multiplier * scale})
}

func (p *pass) icons(multiplier float64) {
	f := p.fc.Frame
	pr := p.player()
	for _, e := range f.Entities {
		if p.r.cfg.GetHideUseless() && useless(e, f.Player) {
			continue
		}
		if e.Positioned == nil || e.Render == nil {
			continue
		}
		at := p.project(r2.Sub(e.Render.GridPosition, pr.GridPosition), e.Render.TerrainHeight-pr.TerrainHeight)

		switch {
		case e.Player != nil:
			if p.r.cfg.GetShowPlayerNames() {
				p.label(at, e.Player.Name, playerNameColor, labelBackground)
			} else {
				p.icon(classify.Key(classify.IconPlayer), at, multiplier)
			}
		case e.Blockage != nil:
			p.icon(classify.Key(classify.IconBlockage), at, multiplier)
		case e.Chest != nil:
			p.chest(e, at, multiplier)
		case e.Shrine != nil:
			if !e.Shrine.Used {
				p.icon(classify.Key(classify.IconShrine), at, multiplier)
			}
		case e.Life != nil:
			p.monster(e, at, multiplier)
		default:
			p.cmds = append(p.cmds, Command{Kind: CmdDot, At: at, HalfSize: dotRadius, Color: unknownColor})
		}
	}
}

// useless reports whether hide_useless filters e out.
func useless(e world.Entity, local world.Entity) bool {
	if e.Life == nil && e.Chest == nil && e.Player == nil {
		return true
	}
	if e.Chest != nil && e.Chest.Opened {
		return true
	}
	if e.Life != nil {
		if !e.Life.Alive {
			return true
		}
		if e.Magic == nil && e.Blockage == nil && e.Player == nil {
			return true
		}
	}
	if e.Blockage != nil && !e.Blockage.Blocked {
		return true
	}
	return e.Player != nil && (e.Local || e.ID == local.ID)
}

func (p *pass) chest(e world.Entity, at r2.Vec, multiplier float64) {
	sess := p.fc.Session
	if sess == nil {
		p.icon(classify.Key(classify.IconChest), at, multiplier)
		return
	}
	if sess.Special {
		key, _ := sess.Classifier.ClassifyChest(e.ID, e.Path)
		p.icon(key, at, multiplier)
		return
	}
	if e.Chest.MinimapIcon {
		key, visible := sess.Classifier.ClassifyChest(e.ID, e.Path)
		if visible {
			p.icon(key, at, multiplier)
		}
		return
	}
	p.icon(classify.Key(classify.IconChest), at, multiplier)
}

func (p *pass) monster(e world.Entity, at r2.Vec, multiplier float64) {
	sess := p.fc.Session
	if e.HasStatus(world.StatusFrozenInTime) {
		if sess != nil {
			sess.Classifier.MarkFrozen(e.ID)
		}
		if e.HasStatus(world.StatusLegionRewardDisplay) || strings.Contains(e.Path, "Chest") {
			p.icon(classify.Key(classify.IconLegionMonsterChest), at, multiplier)
			return
		}
	}
	if sess != nil && e.HasStatus(world.StatusHiddenMonster) {
		key := sess.Classifier.ClassifyHiddenMonster(e.ID, e.Path)
		switch key.Category {
		case classify.IconSuppressed:
			return
		case classify.IconNone:
		default:
			p.icon(key, at, multiplier)
			return
		}
	}
	if e.Positioned.Friendly {
		p.icon(classify.Key(classify.IconFriendly), at, multiplier)
		return
	}
	p.icon(classify.Key(rarityIcon(e.Magic)), at, multiplier)
}

func rarityIcon(m *world.MagicProperties) classify.IconCategory {
	if m == nil {
		return classify.IconNormalMonster
	}
	switch m.Rarity {
	case world.Magic:
		return classify.IconMagicMonster
	case world.Rare:
		return classify.IconRareMonster
	case world.Unique:
		return classify.IconUniqueMonster
	default:
		return classify.IconNormalMonster
	}
}
