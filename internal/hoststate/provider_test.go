package hoststate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/world"
)

func init() {
	monitoring.SetLogWriters(monitoring.LogWriters{})
}

const townSnapshot = `{
  "area": "1_1_town",
  "state": "InGameState",
  "foreground": true,
  "terrain": {"bytes_per_row": 1, "packed": "EQ==", "heights": [[0, 0]]},
  "tiles": {"Waypoint": [{"X": 10, "Y": 20}]},
  "player": {"id": 1, "path": "Metadata/Characters/Int", "local": true,
             "render": {"grid_position": {"X": 5, "Y": 6}, "terrain_height": 2}},
  "entities": [
    {"id": 7, "path": "Metadata/Chests/Chest1", "render": {"grid_position": {"X": 1, "Y": 1}},
     "chest": {"opened": false, "minimap_icon": true}}
  ],
  "large_map": {"size": {"X": 30, "Y": 40}, "zoom": 1, "visible": true},
  "mini_map": {"position": {"X": 100, "Y": 0}, "size": {"X": 6, "Y": 8}, "zoom": 0.5}
}`

func writeSnapshot(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newProvider(t *testing.T) *Provider {
	t.Helper()
	dir := t.TempDir()
	writeSnapshot(t, dir, "1_1_town.json", townSnapshot)
	writeSnapshot(t, dir, "broken.json", `{"state": "Nope"}`)
	writeSnapshot(t, dir, "notes.txt", "ignored")
	p, err := New(dir)
	require.NoError(t, err)
	return p
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(f, []byte("{}"), 0o644))
	_, err = New(f)
	assert.Error(t, err)
}

func TestNothingSelected(t *testing.T) {
	p := newProvider(t)
	assert.Equal(t, world.GameNotLoaded, p.GameState())
	_, err := p.CurrentArea(context.Background())
	assert.ErrorIs(t, err, ErrNoArea)
	_, err = p.Frame()
	assert.ErrorIs(t, err, ErrNoArea)
	large, mini := p.MapViews()
	assert.Zero(t, large)
	assert.Zero(t, mini)
}

func TestSelectServesSnapshot(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Select("1_1_town"))

	assert.Equal(t, world.InGameState, p.GameState())

	area, err := p.CurrentArea(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1_1_town", area.ID)
	assert.Equal(t, 1, area.Terrain.BytesPerRow)
	assert.Equal(t, []byte{0x11}, area.Terrain.Packed)
	require.NoError(t, area.Terrain.Validate())
	assert.Equal(t, []r2.Vec{{X: 10, Y: 20}}, area.Tiles["Waypoint"])

	large, mini := p.MapViews()
	assert.Equal(t, 50.0, large.Diagonal())
	assert.Equal(t, 10.0, mini.Diagonal())

	frame, err := p.Frame()
	require.NoError(t, err)
	assert.True(t, frame.Foreground)
	assert.True(t, frame.Player.Local)
	require.NotNil(t, frame.Player.Render)
	assert.Equal(t, r2.Vec{X: 5, Y: 6}, frame.Player.Render.GridPosition)
	require.Len(t, frame.Entities, 1)
	require.NotNil(t, frame.Entities[0].Chest)
	assert.True(t, frame.Entities[0].Chest.MinimapIcon)
}

func TestSelectErrorsKeepPrevious(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Select("1_1_town"))

	assert.Error(t, p.Select("missing"))
	assert.Error(t, p.Select("broken"))
	assert.Error(t, p.Select("../escape"))
	assert.ErrorIs(t, p.Select(""), ErrNoArea)

	area, err := p.CurrentArea(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1_1_town", area.ID)
}

func TestApplyEvents(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged, Area: "1_1_town"}))
	assert.Equal(t, world.InGameState, p.GameState())

	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.Moved}))
	assert.Equal(t, world.InGameState, p.GameState())

	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.Closed}))
	assert.Equal(t, world.GameNotLoaded, p.GameState())

	// An area change without an id keeps the current selection.
	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged}))
	assert.Equal(t, world.GameNotLoaded, p.GameState())

	assert.Error(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged, Area: "missing"}))
}

func TestApplyUnknownAreaClearsSelection(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged, Area: "1_1_town"}))

	assert.Error(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged, Area: "2_1_hideout"}))
	_, err := p.CurrentArea(context.Background())
	assert.ErrorIs(t, err, ErrNoArea)
	assert.Equal(t, world.GameNotLoaded, p.GameState())

	require.NoError(t, p.Apply(scheduler.Event{Type: scheduler.AreaChanged, Area: "1_1_town"}))
	area, err := p.CurrentArea(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1_1_town", area.ID)
}

func TestSchedulerFollowsFailedAreaChange(t *testing.T) {
	p := newProvider(t)
	sched, err := scheduler.New(scheduler.Options{Provider: p, OnEvent: func(ev scheduler.Event) { _ = p.Apply(ev) }})
	require.NoError(t, err)
	sched.Enable(true)
	ctx := context.Background()

	require.NoError(t, sched.Dispatch(ctx, scheduler.Event{Type: scheduler.AreaChanged, Area: "1_1_town"}))
	require.NotNil(t, sched.Session().Bitmap)

	require.NoError(t, sched.Dispatch(ctx, scheduler.Event{Type: scheduler.AreaChanged, Area: "2_1_hideout"}))
	sess := sched.Session()
	assert.Equal(t, "2_1_hideout", sess.Area)
	assert.Equal(t, uint64(2), sess.Epoch)
	assert.Nil(t, sess.Bitmap)
	assert.ErrorIs(t, sess.Err, ErrNoArea)
}

func TestSetForeground(t *testing.T) {
	p := newProvider(t)
	p.SetForeground(false) // no selection, no panic
	require.NoError(t, p.Select("1_1_town"))
	p.SetForeground(false)
	frame, err := p.Frame()
	require.NoError(t, err)
	assert.False(t, frame.Foreground)
}

func TestAreas(t *testing.T) {
	p := newProvider(t)
	areas, err := p.Areas()
	require.NoError(t, err)
	assert.Equal(t, []string{"1_1_town", "broken"}, areas)
}

func TestCurrentAreaHonoursContext(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Select("1_1_town"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.CurrentArea(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFillsAreaFromFileName(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "Hideout.json", `{"state": "EscapeState"}`)
	p, err := New(dir)
	require.NoError(t, err)
	snap, err := p.Load("Hideout")
	require.NoError(t, err)
	assert.Equal(t, "Hideout", snap.Area)
	assert.Equal(t, world.EscapeState, snap.State)
}

func writeCompressed(t *testing.T, dir, name, body string) {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644))
}

func TestLoadCompressedSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeCompressed(t, dir, "1_1_town.json.zst", townSnapshot)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json.zst"), []byte("not zstd"), 0o644))
	p, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, p.Select("1_1_town"))
	area, err := p.CurrentArea(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11}, area.Terrain.Packed)

	assert.Error(t, p.Select("garbage"))
}

func TestPlainSnapshotWinsOverCompressed(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "Hideout.json", `{"state": "EscapeState"}`)
	writeCompressed(t, dir, "Hideout.json.zst", `{"state": "InGameState"}`)
	writeCompressed(t, dir, "Lab.json.zst", `{"state": "InGameState"}`)
	p, err := New(dir)
	require.NoError(t, err)

	snap, err := p.Load("Hideout")
	require.NoError(t, err)
	assert.Equal(t, world.EscapeState, snap.State)

	areas, err := p.Areas()
	require.NoError(t, err)
	assert.Equal(t, []string{"Hideout", "Lab"}, areas)
}

func TestDecodeSnapshotValidatesSchema(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"empty object", `{}`, true},
		{"full", townSnapshot, true},
		{"not json", `{`, false},
		{"not an object", `[]`, false},
		{"unknown state", `{"state": "Nope"}`, false},
		{"negative row width", `{"terrain": {"bytes_per_row": -1}}`, false},
		{"tile not a vector list", `{"tiles": {"Waypoint": [1, 2]}}`, false},
		{"entity without id", `{"entities": [{"path": "Metadata/Chests/Chest1"}]}`, false},
		{"negative zoom", `{"mini_map": {"zoom": -1}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tt.body))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
