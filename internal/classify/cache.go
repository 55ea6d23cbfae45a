package classify

import "strings"

// Entity path prefixes. Comparisons are case-sensitive and ordinal.
const (
	QuestChestPrefix            = "Metadata/Chests/QuestChests"
	HeistChestPrefix            = "Metadata/Chests/LeagueHeist"
	DeliriumHiddenMonsterPrefix = "Metadata/Monsters/LeagueAffliction/DoodadDaemons/DoodadDaemon"
	DelveChestPrefix            = "Metadata/Chests/DelveChests/"

	heistSecondary = HeistChestPrefix + "/HeistChestSecondary"
)

// heistFactions are stripped from heist chest paths so one icon serves
// every faction's variant of a reward chest.
var heistFactions = []string{"Military", "Thug", "Science", "Robot"}

// EntityID is the per-area entity identity reported by the game.
type EntityID uint32

// Cache memoizes classification verdicts for the entities of one area.
// It is not safe for concurrent use; the scheduler's single dispatcher
// goroutine owns it.
type Cache struct {
	special bool
	chests  map[EntityID]IconKey
	hidden  map[EntityID]IconKey
	frozen  map[EntityID]struct{}
}

// NewCache returns an empty cache. special selects the whole-area chest
// mode used in the mine hub area.
func NewCache(special bool) *Cache {
	c := &Cache{special: special}
	c.ClearAll()
	return c
}

// Special reports whether the cache classifies chests in whole-area mode.
func (c *Cache) Special() bool { return c.special }

// ClassifyChest returns the chest icon for id. The boolean is false when
// the chest is permanently suppressed.
func (c *Cache) ClassifyChest(id EntityID, path string) (IconKey, bool) {
	if key, ok := c.chests[id]; ok {
		return key, key.Category != IconSuppressed
	}
	key := c.chestKey(path)
	c.chests[id] = key
	return key, key.Category != IconSuppressed
}

func (c *Cache) chestKey(path string) IconKey {
	if c.special {
		if rest, ok := strings.CutPrefix(path, DelveChestPrefix); ok {
			return IconKey{Category: IconDelveChest, Variant: rest}
		}
		return Key(IconDelveIgnore)
	}
	if strings.HasPrefix(path, QuestChestPrefix) {
		return Key(IconSuppressed)
	}
	if strings.HasPrefix(path, HeistChestPrefix) {
		return IconKey{Category: IconHeistChest, Variant: heistVariant(path)}
	}
	return Key(IconChest)
}

func heistVariant(path string) string {
	v := strings.ReplaceAll(path, heistSecondary, "")
	for _, faction := range heistFactions {
		v = strings.ReplaceAll(v, faction, "")
	}
	return v
}

// ClassifyHiddenMonster returns the icon for a monster carrying the hidden
// status. Frozen entities are always suppressed and never classified.
// Monsters outside the delirium family get IconNone.
func (c *Cache) ClassifyHiddenMonster(id EntityID, path string) IconKey {
	if c.IsFrozen(id) {
		return Key(IconSuppressed)
	}
	if key, ok := c.hidden[id]; ok {
		return key
	}
	key := Key(IconNone)
	if strings.HasPrefix(path, DeliriumHiddenMonsterPrefix) {
		key = deliriumKey(path)
	}
	c.hidden[id] = key
	return key
}

func deliriumKey(path string) IconKey {
	switch {
	case strings.Contains(path, "BloodBag"):
		return Key(IconDeliriumBomb)
	case strings.Contains(path, "EggFodder"), strings.Contains(path, "GlobSpawn"):
		return Key(IconDeliriumSpawner)
	default:
		return Key(IconDeliriumIgnore)
	}
}

// MarkFrozen records that id was seen frozen in time.
func (c *Cache) MarkFrozen(id EntityID) {
	c.frozen[id] = struct{}{}
}

// IsFrozen reports whether id was marked frozen in this area.
func (c *Cache) IsFrozen(id EntityID) bool {
	_, ok := c.frozen[id]
	return ok
}

// ClearAll drops every memoized verdict and the frozen set.
func (c *Cache) ClearAll() {
	c.chests = make(map[EntityID]IconKey)
	c.hidden = make(map[EntityID]IconKey)
	c.frozen = make(map[EntityID]struct{})
}

// Stats is a point-in-time count of cached entries.
type Stats struct {
	Chests int `json:"chests"`
	Hidden int `json:"hidden_monsters"`
	Frozen int `json:"frozen"`
}

// Stats returns the number of cached entries.
func (c *Cache) Stats() Stats {
	return Stats{Chests: len(c.chests), Hidden: len(c.hidden), Frozen: len(c.frozen)}
}
