package sqlite

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/landmark"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "overlay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func group(t *testing.T, name, display string, expected int) landmark.Group {
	t.Helper()
	g, err := landmark.NewGroup(name, display, expected, 0)
	require.NoError(t, err)
	return g
}

func TestOpenMigrates(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestOpenExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewLandmarkStore(db).Put("Town", group(t, "Waypoint", "", 1)))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	idx, err := NewLandmarkStore(db).Area("Town")
	require.NoError(t, err)
	assert.Contains(t, idx, "Waypoint")
}

func TestPutAndArea(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))

	require.NoError(t, s.Put("Town", group(t, "Waypoint", "WP", 1)))
	require.NoError(t, s.Put("Town", group(t, "Stash", "", 2)))
	require.NoError(t, s.Put("Mine", group(t, "Lift", "", 1)))

	idx, err := s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stash", "Waypoint"}, idx.Names())
	assert.Equal(t, "WP", idx["Waypoint"].Display)
	assert.Equal(t, "Stash", idx["Stash"].Display, "display falls back to the tile name")
	assert.Len(t, idx["Stash"].Centers, 2)
	assert.False(t, idx["Stash"].Valid)

	empty, err := s.Area("Nowhere")
	require.NoError(t, err)
	assert.Empty(t, empty)

	areas, err := s.Areas()
	require.NoError(t, err)
	assert.Equal(t, []string{"Mine", "Town"}, areas)
}

func TestPutRejectsInvalidGroups(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	assert.ErrorIs(t, s.Put("", group(t, "Waypoint", "", 1)), landmark.ErrInvalidGroup)
	assert.ErrorIs(t, s.Put("Town", landmark.Group{}), landmark.ErrInvalidGroup)
	assert.ErrorIs(t, s.Put("Town", landmark.Group{Name: "X", ExpectedClusterCount: -1}), landmark.ErrInvalidGroup)
}

func TestSaveCentersRoundTrip(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	require.NoError(t, s.Put("Town", group(t, "Stash", "", 2)))
	require.NoError(t, s.Put("Town", group(t, "Waypoint", "", 1)))

	idx, err := s.Area("Town")
	require.NoError(t, err)
	stash := idx["Stash"]
	stash.Centers = []r2.Vec{{X: 1, Y: 2}, {X: 3, Y: 4}}
	stash.Valid = true
	idx["Stash"] = stash
	wp := idx["Waypoint"]
	wp.Centers = []r2.Vec{{X: 9, Y: 9}}
	idx["Waypoint"] = wp // invalid, not saved

	require.NoError(t, s.SaveCenters("Town", idx))

	got, err := s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, []r2.Vec{{X: 1, Y: 2}, {X: 3, Y: 4}}, got["Stash"].Centers)
	assert.Equal(t, []r2.Vec{{}}, got["Waypoint"].Centers)
}

func TestSaveCentersSkipsReconfiguredGroups(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	require.NoError(t, s.Put("Town", group(t, "Stash", "", 1)))
	stale := landmark.AreaIndex{"Stash": {Name: "Stash", ExpectedClusterCount: 1, Centers: []r2.Vec{{X: 5, Y: 5}}, Valid: true}}

	require.NoError(t, s.Put("Town", group(t, "Stash", "", 3)))
	require.NoError(t, s.SaveCenters("Town", stale))

	got, err := s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, []r2.Vec{{}, {}, {}}, got["Stash"].Centers)
}

func TestPutKeepsCentersWhenCountUnchanged(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	g := group(t, "Stash", "", 1)
	g.Centers = []r2.Vec{{X: 7, Y: 8}}
	require.NoError(t, s.Put("Town", g))

	require.NoError(t, s.Put("Town", landmark.Group{Name: "Stash", Display: "Chest", ExpectedClusterCount: 1}))
	got, err := s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, "Chest", got["Stash"].Display)
	assert.Equal(t, []r2.Vec{{X: 7, Y: 8}}, got["Stash"].Centers)

	require.NoError(t, s.Put("Town", landmark.Group{Name: "Stash", ExpectedClusterCount: 2}))
	got, err = s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, []r2.Vec{{}, {}}, got["Stash"].Centers)
}

func TestDelete(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	g := group(t, "Stash", "", 1)
	g.Centers = []r2.Vec{{X: 1, Y: 1}}
	require.NoError(t, s.Put("Town", g))

	require.NoError(t, s.Delete("Town", "Stash"))
	assert.ErrorIs(t, s.Delete("Town", "Stash"), ErrNotFound)

	idx, err := s.Area("Town")
	require.NoError(t, err)
	assert.Empty(t, idx)

	var centers int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM landmark_centers`).Scan(&centers))
	assert.Zero(t, centers, "centers are removed with their group")
}

func TestStoreFeedsRecompute(t *testing.T) {
	s := NewLandmarkStore(openTestDB(t))
	require.NoError(t, s.Put("Town", group(t, "Stash", "", 1)))

	groups, err := s.Area("Town")
	require.NoError(t, err)
	obs := landmark.Observations{"Stash": {{X: 4, Y: 6}}}
	idx, _, err := landmark.Recompute(t.Context(), groups, obs, landmark.Options{Area: "Town"})
	require.NoError(t, err)
	require.NoError(t, s.SaveCenters("Town", idx))

	got, err := s.Area("Town")
	require.NoError(t, err)
	assert.Equal(t, []r2.Vec{{X: 4, Y: 6}}, got["Stash"].Centers)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tailsql")
}
