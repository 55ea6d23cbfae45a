package world

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/classify"
)

// Status effect names the overlay reacts to.
const (
	StatusFrozenInTime        = "frozen_in_time"
	StatusHiddenMonster       = "hidden_monster"
	StatusLegionRewardDisplay = "legion_reward_display"
)

// Rarity is a monster's magic rarity.
type Rarity uint8

const (
	Normal Rarity = iota
	Magic
	Rare
	Unique
)

func (r Rarity) String() string {
	switch r {
	case Normal:
		return "normal"
	case Magic:
		return "magic"
	case Rare:
		return "rare"
	case Unique:
		return "unique"
	default:
		return "unknown"
	}
}

// Render carries an entity's grid placement. Entities without it are not drawn.
type Render struct {
	GridPosition  r2.Vec  `json:"grid_position"`
	TerrainHeight float64 `json:"terrain_height"`
}

// Life is present on anything with vitals.
type Life struct {
	Alive bool `json:"alive"`
}

// Chest is present on openable containers.
type Chest struct {
	Opened      bool `json:"opened"`
	MinimapIcon bool `json:"minimap_icon"`
}

// Shrine is present on shrines.
type Shrine struct {
	Used bool `json:"used"`
}

// Blockage is present on triggerable blockages such as mine walls.
type Blockage struct {
	Blocked bool `json:"blocked"`
}

// Player is present on player characters.
type Player struct {
	Name string `json:"name"`
}

// MagicProperties is present on monsters with a rarity.
type MagicProperties struct {
	Rarity Rarity `json:"rarity"`
}

// Positioned is present on entities placed in the world.
type Positioned struct {
	Friendly bool `json:"friendly"`
}

// Entity is one awake entity as reported by the host. Nil components are absent.
type Entity struct {
	ID            classify.EntityID `json:"id"`
	Path          string            `json:"path"`
	Local         bool              `json:"local,omitempty"`
	Render        *Render           `json:"render,omitempty"`
	Positioned    *Positioned       `json:"positioned,omitempty"`
	Life          *Life             `json:"life,omitempty"`
	Chest         *Chest            `json:"chest,omitempty"`
	Shrine        *Shrine           `json:"shrine,omitempty"`
	Blockage      *Blockage         `json:"blockage,omitempty"`
	Player        *Player           `json:"player,omitempty"`
	Magic         *MagicProperties  `json:"magic,omitempty"`
	StatusEffects []string          `json:"status_effects,omitempty"`
}

// HasStatus reports whether the entity carries the named status effect.
func (e Entity) HasStatus(name string) bool {
	return slices.Contains(e.StatusEffects, name)
}
