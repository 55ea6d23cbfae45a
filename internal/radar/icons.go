package radar

import (
	"fmt"

	"github.com/banshee-data/radar.overlay/internal/classify"
	"github.com/banshee-data/radar.overlay/internal/config"
)

// IconCatalog maps icon keys to their configured scale.
type IconCatalog struct {
	scales map[classify.IconKey]float64
}

var fixedIcons = func() map[string]classify.IconCategory {
	m := make(map[string]classify.IconCategory)
	for _, c := range classify.FixedCategories() {
		m[c.String()] = c
	}
	return m
}()

// sectionCategories lists which fixed icons each catalog section may name.
var sectionCategories = map[string][]classify.IconCategory{
	config.IconSectionBase: {
		classify.IconPlayer, classify.IconChest, classify.IconShrine, classify.IconFriendly,
		classify.IconNormalMonster, classify.IconMagicMonster, classify.IconRareMonster, classify.IconUniqueMonster,
	},
	config.IconSectionLegion:   {classify.IconLegionMonsterChest},
	config.IconSectionDelirium: {classify.IconDeliriumBomb, classify.IconDeliriumSpawner, classify.IconDeliriumIgnore},
	config.IconSectionDelve:    {classify.IconBlockage, classify.IconDelveIgnore},
}

// NewIconCatalog resolves configured icon names. Heist entries are keyed by
// chest variant; delve entries other than the blockage and ignore icons
// are keyed by chest variant. Any other unknown name is an error.
func NewIconCatalog(sections map[string]map[string]float64) (*IconCatalog, error) {
	c := &IconCatalog{scales: make(map[classify.IconKey]float64)}
	for section, icons := range sections {
		allowed, known := sectionCategories[section]
		if !known && section != config.IconSectionHeist {
			return nil, fmt.Errorf("unknown icon section %q", section)
		}
		for name, scale := range icons {
			key, err := resolveIcon(section, name, allowed)
			if err != nil {
				return nil, err
			}
			c.scales[key] = scale
		}
	}
	return c, nil
}

func resolveIcon(section, name string, allowed []classify.IconCategory) (classify.IconKey, error) {
	if section == config.IconSectionHeist {
		return classify.IconKey{Category: classify.IconHeistChest, Variant: name}, nil
	}
	if cat, ok := fixedIcons[name]; ok {
		for _, a := range allowed {
			if a == cat {
				return classify.Key(cat), nil
			}
		}
		return classify.IconKey{}, fmt.Errorf("icon %q does not belong in section %q", name, section)
	}
	if section == config.IconSectionDelve {
		return classify.IconKey{Category: classify.IconDelveChest, Variant: name}, nil
	}
	return classify.IconKey{}, fmt.Errorf("unknown icon %q in section %q", name, section)
}

// Scale returns the configured scale of key.
func (c *IconCatalog) Scale(key classify.IconKey) (float64, bool) {
	s, ok := c.scales[key]
	return s, ok
}

// Len returns the number of configured icons.
func (c *IconCatalog) Len() int { return len(c.scales) }
