package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical overlay defaults file.
const DefaultConfigPath = "config/overlay.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Icon catalog sections. Heist and delve sections are keyed by the variant
// derived from the entity path rather than by a fixed icon name.
const (
	IconSectionBase     = "base"
	IconSectionLegion   = "legion"
	IconSectionDelirium = "delirium"
	IconSectionHeist    = "heist"
	IconSectionDelve    = "delve"
)

// RGBA is a colour with components in [0, 1].
type RGBA [4]float64

// NRGBA converts the colour to 8-bit channels.
func (c RGBA) NRGBA() color.NRGBA {
	ch := func(v float64) uint8 { return uint8(v*255 + 0.5) }
	return color.NRGBA{R: ch(c[0]), G: ch(c[1]), B: ch(c[2]), A: ch(c[3])}
}

// FromNRGBA converts an 8-bit colour to RGBA.
func FromNRGBA(c color.NRGBA) RGBA {
	return RGBA{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255, float64(c.A) / 255}
}

func (c RGBA) validate(name string) error {
	for i, v := range c {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s[%d] must be between 0 and 1, got %f", name, i, v)
		}
	}
	return nil
}

// OverlayConfig is the root configuration of the overlay. Every field is
// optional; the Get* accessors supply defaults for omitted fields.
type OverlayConfig struct {
	// Map drawing
	WalkableMapColor        *RGBA    `json:"walkable_map_color,omitempty"`
	NonWalkableMapColor     *RGBA    `json:"non_walkable_map_color,omitempty"`
	DrawWalkableMap         *bool    `json:"draw_walkable_map,omitempty"`
	LargeMapScaleMultiplier *float64 `json:"large_map_scale_multiplier,omitempty"`
	DrawWhenForeground      *bool    `json:"draw_when_foreground,omitempty"`

	// Large map culling window
	ModifyCullWindow *bool       `json:"modify_cull_window,omitempty"`
	CullWindowPos    *[2]float64 `json:"cull_window_pos,omitempty"`
	CullWindowSize   *[2]float64 `json:"cull_window_size,omitempty"`

	// Tile labels
	ShowAllTileNames       *bool `json:"show_all_tile_names,omitempty"`
	ShowImportantTileNames *bool `json:"show_important_tile_names,omitempty"`
	TileNameColor          *RGBA `json:"tile_name_color,omitempty"`
	TileNameBackground     *bool `json:"tile_name_background,omitempty"`

	// Entities
	HideUseless     *bool    `json:"hide_useless,omitempty"`
	ShowPlayerNames *bool    `json:"show_player_names,omitempty"`
	SpecialAreaIDs  []string `json:"special_area_ids,omitempty"`

	// Recompute
	DecodeWorkers       *int    `json:"decode_workers,omitempty"`
	ClusterWorkers      *int    `json:"cluster_workers,omitempty"`
	KMeansMaxIterations *int    `json:"kmeans_max_iterations,omitempty"`
	FrameInterval       *string `json:"frame_interval,omitempty"` // duration string like "16ms"
	AsyncRecompute      *bool   `json:"async_recompute,omitempty"`

	// Icons maps section -> icon name -> icon scale.
	Icons map[string]map[string]float64 `json:"icons,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrRGBA(v RGBA) *RGBA          { return &v }

// EmptyOverlayConfig returns an OverlayConfig with all fields unset.
func EmptyOverlayConfig() *OverlayConfig {
	return &OverlayConfig{}
}

// DefaultOverlayConfig returns a config with every field set to its default.
func DefaultOverlayConfig() *OverlayConfig {
	empty := EmptyOverlayConfig()
	walkable := empty.GetWalkableMapColor()
	nonWalkable := empty.GetNonWalkableMapColor()
	tileName := empty.GetTileNameColor()
	pos, size := empty.GetCullWindowPos(), empty.GetCullWindowSize()
	return &OverlayConfig{
		WalkableMapColor:        &walkable,
		NonWalkableMapColor:     &nonWalkable,
		DrawWalkableMap:         ptrBool(empty.GetDrawWalkableMap()),
		LargeMapScaleMultiplier: ptrFloat64(empty.GetLargeMapScaleMultiplier()),
		DrawWhenForeground:      ptrBool(empty.GetDrawWhenForeground()),
		ModifyCullWindow:        ptrBool(false),
		CullWindowPos:           &pos,
		CullWindowSize:          &size,
		ShowAllTileNames:        ptrBool(empty.GetShowAllTileNames()),
		ShowImportantTileNames:  ptrBool(empty.GetShowImportantTileNames()),
		TileNameColor:           &tileName,
		TileNameBackground:      ptrBool(empty.GetTileNameBackground()),
		HideUseless:             ptrBool(empty.GetHideUseless()),
		ShowPlayerNames:         ptrBool(empty.GetShowPlayerNames()),
		SpecialAreaIDs:          empty.GetSpecialAreaIDs(),
		DecodeWorkers:           ptrInt(empty.GetDecodeWorkers()),
		ClusterWorkers:          ptrInt(empty.GetClusterWorkers()),
		KMeansMaxIterations:     ptrInt(empty.GetKMeansMaxIterations()),
		FrameInterval:           ptrString(empty.GetFrameInterval().String()),
		AsyncRecompute:          ptrBool(empty.GetAsyncRecompute()),
		Icons:                   DefaultIcons(),
	}
}

// DefaultIcons returns the icon catalog used when the config names none.
func DefaultIcons() map[string]map[string]float64 {
	return map[string]map[string]float64{
		IconSectionBase: {
			"Player": 1, "Chest": 0.5, "Shrine": 1, "Friendly": 0.5,
			"Normal Monster": 0.5, "Magic Monster": 0.5, "Rare Monster": 0.7, "Unique Monster": 0.8,
		},
		IconSectionLegion:   {"Legion Monster Chest": 1},
		IconSectionDelirium: {"Delirium Bomb": 0.5, "Delirium Spawner": 0.8, "Delirium Ignore": 0},
		IconSectionHeist:    {"Armour": 1, "Weapons": 1, "Jewellery": 1, "Currency": 1, "Gems": 1},
		IconSectionDelve: {
			"Blockage OR DelveWall": 1, "Delve Ignore": 0,
			"DelveAzuriteVein": 1, "DelveMiningSuppliesDynamite": 1, "DelveMiningSuppliesFlares": 1,
		},
	}
}

// LoadOverlayConfig loads an OverlayConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadOverlayConfig(path string) (*OverlayConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyOverlayConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveOverlayConfig writes cfg to path as indented JSON.
func SaveOverlayConfig(path string, cfg *OverlayConfig) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')

	tmp := cleanPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, cleanPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *OverlayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadOverlayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *OverlayConfig) Validate() error {
	colors := []struct {
		name string
		c    *RGBA
	}{
		{"walkable_map_color", c.WalkableMapColor},
		{"non_walkable_map_color", c.NonWalkableMapColor},
		{"tile_name_color", c.TileNameColor},
	}
	for _, col := range colors {
		if col.c == nil {
			continue
		}
		if err := col.c.validate(col.name); err != nil {
			return err
		}
	}

	if c.LargeMapScaleMultiplier != nil && *c.LargeMapScaleMultiplier <= 0 {
		return fmt.Errorf("large_map_scale_multiplier must be positive, got %f", *c.LargeMapScaleMultiplier)
	}

	if c.GetShowAllTileNames() && c.GetShowImportantTileNames() {
		return fmt.Errorf("show_all_tile_names and show_important_tile_names are mutually exclusive")
	}

	if c.CullWindowSize != nil && (c.CullWindowSize[0] < 0 || c.CullWindowSize[1] < 0) {
		return fmt.Errorf("cull_window_size must be non-negative, got %v", *c.CullWindowSize)
	}

	counts := []struct {
		name string
		v    *int
	}{
		{"decode_workers", c.DecodeWorkers},
		{"cluster_workers", c.ClusterWorkers},
		{"kmeans_max_iterations", c.KMeansMaxIterations},
	}
	for _, n := range counts {
		if n.v != nil && *n.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", n.name, *n.v)
		}
	}

	if c.FrameInterval != nil && *c.FrameInterval != "" {
		d, err := time.ParseDuration(*c.FrameInterval)
		if err != nil {
			return fmt.Errorf("invalid frame_interval '%s': %w", *c.FrameInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("frame_interval must be positive, got %s", d)
		}
	}

	for section, icons := range c.Icons {
		switch section {
		case IconSectionBase, IconSectionLegion, IconSectionDelirium, IconSectionHeist, IconSectionDelve:
		default:
			return fmt.Errorf("unknown icon section %q", section)
		}
		for name, scale := range icons {
			if scale < 0 {
				return fmt.Errorf("icon %s/%s scale must be non-negative, got %f", section, name, scale)
			}
		}
	}

	return nil
}

// GetWalkableMapColor returns the walkable_map_color value or the default.
func (c *OverlayConfig) GetWalkableMapColor() RGBA {
	if c.WalkableMapColor == nil {
		return RGBA{150.0 / 255, 75.0 / 255, 75.0 / 255, 1}
	}
	return *c.WalkableMapColor
}

// GetNonWalkableMapColor returns the non_walkable_map_color value or the default.
func (c *OverlayConfig) GetNonWalkableMapColor() RGBA {
	if c.NonWalkableMapColor == nil {
		return RGBA{} // fully transparent
	}
	return *c.NonWalkableMapColor
}

// GetDrawWalkableMap returns the draw_walkable_map value or the default.
func (c *OverlayConfig) GetDrawWalkableMap() bool {
	if c.DrawWalkableMap == nil {
		return true
	}
	return *c.DrawWalkableMap
}

// GetLargeMapScaleMultiplier returns the large_map_scale_multiplier value or the default.
func (c *OverlayConfig) GetLargeMapScaleMultiplier() float64 {
	if c.LargeMapScaleMultiplier == nil {
		return 0.1738
	}
	return *c.LargeMapScaleMultiplier
}

// GetDrawWhenForeground returns the draw_when_foreground value or the default.
func (c *OverlayConfig) GetDrawWhenForeground() bool {
	if c.DrawWhenForeground == nil {
		return true
	}
	return *c.DrawWhenForeground
}

// GetModifyCullWindow returns the modify_cull_window value or the default.
func (c *OverlayConfig) GetModifyCullWindow() bool {
	return c.ModifyCullWindow != nil && *c.ModifyCullWindow
}

// GetCullWindowPos returns the cull_window_pos value or the default.
func (c *OverlayConfig) GetCullWindowPos() [2]float64 {
	if c.CullWindowPos == nil {
		return [2]float64{0, 0}
	}
	return *c.CullWindowPos
}

// GetCullWindowSize returns the cull_window_size value or the default.
func (c *OverlayConfig) GetCullWindowSize() [2]float64 {
	if c.CullWindowSize == nil {
		return [2]float64{400, 400}
	}
	return *c.CullWindowSize
}

// GetShowAllTileNames returns the show_all_tile_names value or the default.
func (c *OverlayConfig) GetShowAllTileNames() bool {
	return c.ShowAllTileNames != nil && *c.ShowAllTileNames
}

// GetShowImportantTileNames returns the show_important_tile_names value or the default.
func (c *OverlayConfig) GetShowImportantTileNames() bool {
	if c.ShowImportantTileNames == nil {
		return true
	}
	return *c.ShowImportantTileNames
}

// GetTileNameColor returns the tile_name_color value or the default.
func (c *OverlayConfig) GetTileNameColor() RGBA {
	if c.TileNameColor == nil {
		return RGBA{1, 1, 1, 1}
	}
	return *c.TileNameColor
}

// GetTileNameBackground returns the tile_name_background value or the default.
func (c *OverlayConfig) GetTileNameBackground() bool {
	if c.TileNameBackground == nil {
		return true
	}
	return *c.TileNameBackground
}

// GetHideUseless returns the hide_useless value or the default.
func (c *OverlayConfig) GetHideUseless() bool {
	if c.HideUseless == nil {
		return true
	}
	return *c.HideUseless
}

// GetShowPlayerNames returns the show_player_names value or the default.
func (c *OverlayConfig) GetShowPlayerNames() bool {
	return c.ShowPlayerNames != nil && *c.ShowPlayerNames
}

// GetSpecialAreaIDs returns the area ids that use whole-area chest mode.
func (c *OverlayConfig) GetSpecialAreaIDs() []string {
	if c.SpecialAreaIDs == nil {
		return []string{"Delve_Main"}
	}
	return c.SpecialAreaIDs
}

// IsSpecialArea reports whether area is one of the special area ids.
func (c *OverlayConfig) IsSpecialArea(area string) bool {
	for _, id := range c.GetSpecialAreaIDs() {
		if id == area {
			return true
		}
	}
	return false
}

// GetDecodeWorkers returns the decode_workers value or the default.
// Zero means one worker per CPU.
func (c *OverlayConfig) GetDecodeWorkers() int {
	if c.DecodeWorkers == nil {
		return 0
	}
	return *c.DecodeWorkers
}

// GetClusterWorkers returns the cluster_workers value or the default.
// Zero means one worker per CPU.
func (c *OverlayConfig) GetClusterWorkers() int {
	if c.ClusterWorkers == nil {
		return 0
	}
	return *c.ClusterWorkers
}

// GetKMeansMaxIterations returns the kmeans_max_iterations value or the default.
func (c *OverlayConfig) GetKMeansMaxIterations() int {
	if c.KMeansMaxIterations == nil {
		return 100
	}
	return *c.KMeansMaxIterations
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *OverlayConfig) GetFrameInterval() time.Duration {
	const def = 16 * time.Millisecond
	if c.FrameInterval == nil || *c.FrameInterval == "" {
		return def
	}
	d, err := time.ParseDuration(*c.FrameInterval)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetAsyncRecompute returns the async_recompute value or the default.
func (c *OverlayConfig) GetAsyncRecompute() bool {
	return c.AsyncRecompute != nil && *c.AsyncRecompute
}

// GetIcons returns the icon catalog or the default catalog.
func (c *OverlayConfig) GetIcons() map[string]map[string]float64 {
	if c.Icons == nil {
		return DefaultIcons()
	}
	return c.Icons
}
