package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"mobsim/internal/sim/behaviors"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://mobsim.local/schemas/"

type Catalogs struct {
	Items ItemCatalog
	Mobs  MobCatalog
	Loot  LootCatalog
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID             string  `json:"id"`
	Class          string  `json:"class"` // "OTHER","WEAPON","BOW","SHIELD","ARMOR","HEADWEAR"
	Slot           string  `json:"slot,omitempty"`
	AttackDamage   float64 `json:"attack_damage,omitempty"`
	ArmorReduction int     `json:"armor_reduction,omitempty"`
	MaxDamage      int     `json:"max_damage,omitempty"`
	MaxStack       int     `json:"max_stack,omitempty"`
}

type MobCatalog struct {
	ByID   map[string]MobDef
	IDs    []string // sorted
	Digest string
}

type MobDef struct {
	ID            string           `json:"id"`
	Hostile       bool             `json:"hostile,omitempty"`
	Placement     string           `json:"placement"`
	SpawnWeight   int              `json:"spawn_weight,omitempty"`
	MaxHealth     float64          `json:"max_health,omitempty"`
	MovementSpeed float64          `json:"movement_speed,omitempty"`
	FollowRange   float64          `json:"follow_range,omitempty"`
	AttackDamage  float64          `json:"attack_damage,omitempty"`
	Armor         float64          `json:"armor,omitempty"`
	LootChance    float64          `json:"can_pick_up_loot_chance,omitempty"`
	LootTable     string           `json:"loot_table,omitempty"`
	Experience    int              `json:"experience,omitempty"`
	Rides         *RideDef         `json:"rides,omitempty"`
	Equipment     []EquipDef       `json:"equipment,omitempty"`
	Goals         []behaviors.Spec `json:"goals,omitempty"`
	Targets       []behaviors.Spec `json:"targets,omitempty"`
}

// EquipDef is a piece of gear a mob may spawn holding.
type EquipDef struct {
	Slot         string   `json:"slot"`
	Item         string   `json:"item"`
	Chance       float64  `json:"chance,omitempty"`
	Enchantments []string `json:"enchantments,omitempty"`
}

// Stack builds the configured item, enchantments included.
func (e EquipDef) Stack() equipment.Item {
	it := equipment.NewItem(e.Item, 1)
	if len(e.Enchantments) > 0 && !it.IsEmpty() {
		it.Enchantments = append([]string(nil), e.Enchantments...)
	}
	return it
}

// RideDef lets a mob spawn riding a freshly spawned mount of Kind.
type RideDef struct {
	Kind   string  `json:"kind"`
	Chance float64 `json:"chance"`
}

// Profile returns the behavior list the mob installs.
func (m MobDef) Profile() behaviors.Profile {
	return behaviors.Profile{Goals: m.Goals, Targets: m.Targets}
}

func (m MobDef) SpawnPlacement() terrain.Placement {
	p, _ := terrain.ParsePlacement(m.Placement)
	return p
}

type LootCatalog struct {
	Tables map[string]LootTable
	Digest string
}

type LootTable struct {
	Pools []LootPool `json:"pools"`
}

type LootPool struct {
	Rolls      int         `json:"rolls"`
	ExtraRolls int         `json:"extra_rolls,omitempty"`
	Entries    []LootEntry `json:"entries"`
}

// LootEntry with an empty Item is a weighted "nothing".
type LootEntry struct {
	Item         string `json:"item,omitempty"`
	Weight       int    `json:"weight"`
	Min          int    `json:"min,omitempty"`
	Max          int    `json:"max,omitempty"`
	LootingBonus int    `json:"looting_bonus,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadMobs(filepath.Join(configDir, "mobs.json"), &c.Mobs); err != nil {
		return nil, err
	}
	if err := loadLoot(filepath.Join(configDir, "loot_tables.json"), &c.Loot); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

// check resolves cross-file references.
func (c *Catalogs) check() error {
	for _, id := range c.Mobs.IDs {
		m := c.Mobs.ByID[id]
		if m.LootTable != "" {
			if _, ok := c.Loot.Tables[m.LootTable]; !ok {
				return fmt.Errorf("mobs.json: %s: unknown loot table %q", id, m.LootTable)
			}
		}
		for _, e := range m.Equipment {
			if _, ok := c.Items.Defs[e.Item]; !ok {
				return fmt.Errorf("mobs.json: %s: unknown item %q", id, e.Item)
			}
			for _, ench := range e.Enchantments {
				if !equipment.KnownEnchantment(ench) {
					return fmt.Errorf("mobs.json: %s: unknown enchantment %q", id, ench)
				}
			}
		}
		if r := m.Rides; r != nil {
			mount, ok := c.Mobs.ByID[r.Kind]
			switch {
			case !ok:
				return fmt.Errorf("mobs.json: %s: unknown mount kind %q", id, r.Kind)
			case r.Kind == id || mount.Rides != nil:
				return fmt.Errorf("mobs.json: %s: mount %q must not ride anything itself", id, r.Kind)
			}
		}
	}
	for name, t := range c.Loot.Tables {
		for _, p := range t.Pools {
			for _, e := range p.Entries {
				if e.Item == "" {
					continue
				}
				if _, ok := c.Items.Defs[e.Item]; !ok {
					return fmt.Errorf("loot_tables.json: %s: unknown item %q", name, e.Item)
				}
			}
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// validate checks raw against the embedded schema of the same name.
func validate(schema string, raw []byte) error {
	src, err := schemaFS.ReadFile("schemas/" + schema)
	if err != nil {
		return err
	}
	url := schemaBase + schema
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(src)); err != nil {
		return fmt.Errorf("schema %s: %w", schema, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("schema %s: %w", schema, err)
	}
	doc, err := unmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return s.Validate(doc)
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("items.schema.json", raw); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("items.json: duplicate id %q", d.ID)
		}
		if equipment.ParseClass(d.Class) == equipment.ClassArmor {
			if sl := parseSlot(d.Slot); !sl.Valid() || sl.Type() != equipment.TypeArmor {
				return fmt.Errorf("items.json: armor %q needs an armor slot, got %q", d.ID, d.Slot)
			}
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadMobs(path string, out *MobCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("mobs.schema.json", raw); err != nil {
		return fmt.Errorf("mobs.json: %w", err)
	}
	out.Digest = sha256Hex(raw)

	var defs []MobDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("mobs.json: %w", err)
	}
	out.ByID = map[string]MobDef{}
	out.IDs = out.IDs[:0]
	for _, m := range defs {
		if _, dup := out.ByID[m.ID]; dup {
			return fmt.Errorf("mobs.json: duplicate id %q", m.ID)
		}
		out.ByID[m.ID] = m
		out.IDs = append(out.IDs, m.ID)
	}
	sort.Strings(out.IDs)
	return nil
}

func loadLoot(path string, out *LootCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// A world without loot tables drops only equipment.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			out.Tables = map[string]LootTable{}
			return nil
		}
		return err
	}
	if err := validate("loot_tables.schema.json", raw); err != nil {
		return fmt.Errorf("loot_tables.json: %w", err)
	}
	out.Digest = sha256Hex(raw)
	out.Tables = map[string]LootTable{}
	if err := json.Unmarshal(raw, &out.Tables); err != nil {
		return fmt.Errorf("loot_tables.json: %w", err)
	}
	return nil
}

// ItemDef resolves an item id for the equipment rules.
func (c ItemCatalog) ItemDef(id string) (equipment.Def, bool) {
	d, ok := c.Defs[id]
	if !ok {
		return equipment.Def{}, false
	}
	return equipment.Def{
		Class:          equipment.ParseClass(d.Class),
		Slot:           parseSlot(d.Slot),
		AttackDamage:   d.AttackDamage,
		ArmorReduction: d.ArmorReduction,
		MaxDamage:      d.MaxDamage,
	}, true
}

// ParseSlot maps a slot name to its slot; unknown names are SlotAuto.
func ParseSlot(s string) equipment.Slot { return parseSlot(s) }

func parseSlot(s string) equipment.Slot {
	for _, sl := range equipment.AllSlots {
		if sl.String() == s {
			return sl
		}
	}
	return equipment.SlotAuto
}

// Generate rolls the named table. Every pool rolls Rolls times plus up to
// ExtraRolls more; each roll picks one entry by weight.
func (c LootCatalog) Generate(name string, rng *rand.Rand, looting int) ([]equipment.Item, bool) {
	t, ok := c.Tables[name]
	if !ok {
		return nil, false
	}
	var out []equipment.Item
	for _, p := range t.Pools {
		total := 0
		for _, e := range p.Entries {
			total += e.Weight
		}
		if total <= 0 {
			continue
		}
		rolls := p.Rolls
		if p.ExtraRolls > 0 {
			rolls += rng.Intn(p.ExtraRolls + 1)
		}
		for i := 0; i < rolls; i++ {
			e := pick(p.Entries, rng.Intn(total))
			if e.Item == "" {
				continue
			}
			n := e.Min
			if e.Min == 0 && e.Max == 0 {
				n = 1
			}
			if e.Max > e.Min {
				n += rng.Intn(e.Max - e.Min + 1)
			}
			if looting > 0 && e.LootingBonus > 0 {
				n += rng.Intn(looting*e.LootingBonus + 1)
			}
			if it := equipment.NewItem(e.Item, n); !it.IsEmpty() {
				out = append(out, it)
			}
		}
	}
	return out, true
}

func pick(entries []LootEntry, r int) LootEntry {
	for _, e := range entries {
		if r < e.Weight {
			return e
		}
		r -= e.Weight
	}
	return entries[len(entries)-1]
}
