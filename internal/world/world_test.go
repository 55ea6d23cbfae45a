package world

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestGameStateText(t *testing.T) {
	for s := GameNotLoaded; s <= ChangePasswordState; s++ {
		got, err := ParseGameState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseGameState("Flying")
	assert.Error(t, err)
	assert.Equal(t, "GameState(42)", GameState(42).String())

	var f struct {
		State GameState `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"state":"EscapeState"}`), &f))
	assert.Equal(t, EscapeState, f.State)
	assert.Error(t, json.Unmarshal([]byte(`{"state":"Nope"}`), &f))
}

func TestShowsMap(t *testing.T) {
	assert.True(t, InGameState.ShowsMap())
	assert.True(t, EscapeState.ShowsMap())
	assert.False(t, LoadingState.ShowsMap())
	assert.False(t, GameNotLoaded.ShowsMap())
}

func TestMapViewGeometry(t *testing.T) {
	v := MapView{
		Position:     r2.Vec{X: 100, Y: 0},
		Size:         r2.Vec{X: 6, Y: 8},
		DefaultShift: r2.Vec{X: 0, Y: 5},
	}
	assert.Equal(t, 10.0, v.Diagonal())
	assert.Equal(t, r2.Vec{X: 103, Y: 9}, v.CenterWithDefaultShift())
}

func TestEntityHasStatus(t *testing.T) {
	e := Entity{StatusEffects: []string{StatusFrozenInTime}}
	assert.True(t, e.HasStatus(StatusFrozenInTime))
	assert.False(t, e.HasStatus(StatusHiddenMonster))
	assert.Equal(t, "rare", Rare.String())
}
