package classify

// IconCategory is the closed set of icon kinds the overlay can draw.
type IconCategory uint8

const (
	// IconNone means "no special classification": callers fall back to
	// the entity's default icon.
	IconNone IconCategory = iota
	// IconSuppressed means "draw nothing".
	IconSuppressed
	IconPlayer
	IconBlockage
	IconChest
	IconShrine
	IconFriendly
	IconNormalMonster
	IconMagicMonster
	IconRareMonster
	IconUniqueMonster
	IconLegionMonsterChest
	IconDeliriumBomb
	IconDeliriumSpawner
	IconDeliriumIgnore
	IconHeistChest
	IconDelveChest
	IconDelveIgnore
)

var categoryNames = map[IconCategory]string{
	IconNone:               "None",
	IconSuppressed:         "Suppressed",
	IconPlayer:             "Player",
	IconBlockage:           "Blockage OR DelveWall",
	IconChest:              "Chest",
	IconShrine:             "Shrine",
	IconFriendly:           "Friendly",
	IconNormalMonster:      "Normal Monster",
	IconMagicMonster:       "Magic Monster",
	IconRareMonster:        "Rare Monster",
	IconUniqueMonster:      "Unique Monster",
	IconLegionMonsterChest: "Legion Monster Chest",
	IconDeliriumBomb:       "Delirium Bomb",
	IconDeliriumSpawner:    "Delirium Spawner",
	IconDeliriumIgnore:     "Delirium Ignore",
	IconHeistChest:         "Heist",
	IconDelveChest:         "Delve",
	IconDelveIgnore:        "Delve Ignore",
}

func (c IconCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Unknown"
}

// FixedCategories returns the categories whose icon name carries no variant.
func FixedCategories() []IconCategory {
	return []IconCategory{
		IconPlayer, IconBlockage, IconChest, IconShrine, IconFriendly,
		IconNormalMonster, IconMagicMonster, IconRareMonster, IconUniqueMonster,
		IconLegionMonsterChest, IconDeliriumBomb, IconDeliriumSpawner,
		IconDeliriumIgnore, IconDelveIgnore,
	}
}

// IconKey identifies one drawable icon. Variant is only set for heist and
// delve chests, whose icon is derived from the entity path.
type IconKey struct {
	Category IconCategory
	Variant  string
}

// Key returns a key without a variant.
func Key(c IconCategory) IconKey { return IconKey{Category: c} }

// String returns the catalog name of the key.
func (k IconKey) String() string {
	switch k.Category {
	case IconHeistChest:
		return "Heist " + k.Variant
	case IconDelveChest:
		return k.Variant
	default:
		return k.Category.String()
	}
}

// Drawable reports whether the key names an icon rather than a verdict.
func (k IconKey) Drawable() bool {
	return k.Category != IconNone && k.Category != IconSuppressed
}
