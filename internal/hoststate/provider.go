// Package hoststate replays recorded host snapshots as a scheduler state
// provider. Each area is one JSON file, <dir>/<area>.json, optionally
// zstd-compressed as <dir>/<area>.json.zst.
package hoststate

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/banshee-data/radar.overlay/internal/landmark"
	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/security"
	"github.com/banshee-data/radar.overlay/internal/terrain"
	"github.com/banshee-data/radar.overlay/internal/world"
)

// maxSnapshotSize bounds a single snapshot file (64MB).
const maxSnapshotSize = 64 << 20

const (
	snapshotExt = ".json"
	zstdExt     = ".json.zst"
)

// ErrNoArea is returned while no area snapshot is selected.
var ErrNoArea = errors.New("no area selected")

//go:embed snapshot.schema.json
var snapshotSchemaJSON string

var snapshotSchema = jsonschema.MustCompileString("snapshot.schema.json", snapshotSchemaJSON)

// TerrainSnapshot is the packed walkability grid of an area. Packed is
// base64 in JSON.
type TerrainSnapshot struct {
	BytesPerRow int     `json:"bytes_per_row"`
	Packed      []byte  `json:"packed"`
	Heights     [][]int `json:"heights"`
}

// Snapshot is one recorded host state.
type Snapshot struct {
	Area       string                `json:"area"`
	State      world.GameState       `json:"state"`
	Foreground bool                  `json:"foreground"`
	Terrain    TerrainSnapshot       `json:"terrain"`
	Tiles      landmark.Observations `json:"tiles"`
	Player     world.Entity          `json:"player"`
	Entities   []world.Entity        `json:"entities"`
	LargeMap   world.MapView         `json:"large_map"`
	MiniMap    world.MapView         `json:"mini_map"`
}

// WorldArea converts the snapshot into the per-area scheduler input.
func (s *Snapshot) WorldArea() world.Area {
	return world.Area{
		ID: s.Area,
		Terrain: terrain.Grid{
			BytesPerRow: s.Terrain.BytesPerRow,
			Packed:      s.Terrain.Packed,
			Heights:     s.Terrain.Heights,
		},
		Tiles: s.Tiles,
	}
}

// Frame converts the snapshot into one render-pass input.
func (s *Snapshot) Frame() world.Frame {
	return world.Frame{
		State:      s.State,
		Foreground: s.Foreground,
		LargeMap:   s.LargeMap,
		MiniMap:    s.MiniMap,
		Player:     s.Player,
		Entities:   s.Entities,
		Tiles:      s.Tiles,
	}
}

// Provider serves the selected snapshot. It is safe for concurrent use.
type Provider struct {
	dir string

	mu      sync.RWMutex
	current *Snapshot
	closed  bool
}

var _ scheduler.StateProvider = (*Provider)(nil)

// New returns a provider reading snapshots from dir.
func New(dir string) (*Provider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot path %q is not a directory", dir)
	}
	return &Provider{dir: dir}, nil
}

// Load reads the snapshot of area without selecting it. A plain JSON file
// wins over a compressed one.
func (p *Provider) Load(area string) (*Snapshot, error) {
	if area == "" {
		return nil, fmt.Errorf("%w: empty area id", ErrNoArea)
	}
	path, compressed, err := p.resolve(area)
	if err != nil {
		return nil, err
	}
	data, err := readSnapshot(path, compressed)
	if err != nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", area, err)
	}
	if snap.Area == "" {
		snap.Area = area
	}
	return snap, nil
}

// resolve finds the snapshot file of area inside the snapshot directory.
func (p *Provider) resolve(area string) (string, bool, error) {
	var firstErr error
	for _, ext := range []string{snapshotExt, zstdExt} {
		path := filepath.Join(p.dir, area+ext)
		if err := security.ValidatePathWithinDirectory(path, p.dir); err != nil {
			return "", false, fmt.Errorf("invalid area id %q: %w", area, err)
		}
		_, err := os.Stat(path)
		if err == nil {
			return path, ext == zstdExt, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", false, fmt.Errorf("failed to stat snapshot: %w", firstErr)
}

func readSnapshot(path string, compressed bool) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd snapshot: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSnapshotSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) > maxSnapshotSize {
		return nil, fmt.Errorf("snapshot too large (max %d bytes)", maxSnapshotSize)
	}
	return data, nil
}

// DecodeSnapshot validates data against the snapshot schema and decodes it.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if err := snapshotSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Select loads area and makes it current. On error the previous snapshot
// stays selected.
func (p *Provider) Select(area string) error {
	snap, err := p.Load(area)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = snap
	p.closed = false
	p.mu.Unlock()
	monitoring.Diagf("hoststate: selected area %q (%s)", snap.Area, snap.State)
	return nil
}

// Apply updates the provider for a host event. Area changes select the
// named snapshot; an area without a usable snapshot leaves nothing
// selected. Closed makes the game look not loaded.
func (p *Provider) Apply(ev scheduler.Event) error {
	switch ev.Type {
	case scheduler.AreaChanged:
		if ev.Area == "" {
			return nil
		}
		if err := p.Select(ev.Area); err != nil {
			p.mu.Lock()
			p.current = nil
			p.mu.Unlock()
			return err
		}
		return nil
	case scheduler.Closed:
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
	}
	return nil
}

// SetForeground overrides the foreground flag of the current snapshot.
func (p *Provider) SetForeground(fg bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Foreground = fg
	}
}

// Areas lists the area ids with a snapshot in the directory.
func (p *Provider) Areas() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var areas []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), zstdExt)
		if !ok {
			name, ok = strings.CutSuffix(e.Name(), snapshotExt)
		}
		if ok && !seen[name] {
			seen[name] = true
			areas = append(areas, name)
		}
	}
	sort.Strings(areas)
	return areas, nil
}

// snapshot returns a shallow copy of the current snapshot.
func (p *Provider) snapshot() (Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil || p.closed {
		return Snapshot{}, false
	}
	return *p.current, true
}

// GameState returns the recorded state, or GameNotLoaded without a selection.
func (p *Provider) GameState() world.GameState {
	snap, ok := p.snapshot()
	if !ok {
		return world.GameNotLoaded
	}
	return snap.State
}

// CurrentArea returns the selected area.
func (p *Provider) CurrentArea(ctx context.Context) (world.Area, error) {
	if err := ctx.Err(); err != nil {
		return world.Area{}, err
	}
	snap, ok := p.snapshot()
	if !ok {
		return world.Area{}, ErrNoArea
	}
	return snap.WorldArea(), nil
}

// MapViews returns the recorded large and mini map views.
func (p *Provider) MapViews() (large, mini world.MapView) {
	snap, ok := p.snapshot()
	if !ok {
		return world.MapView{}, world.MapView{}
	}
	return snap.LargeMap, snap.MiniMap
}

// Frame returns the selected snapshot as a render-pass input.
func (p *Provider) Frame() (world.Frame, error) {
	snap, ok := p.snapshot()
	if !ok {
		return world.Frame{}, ErrNoArea
	}
	return snap.Frame(), nil
}
