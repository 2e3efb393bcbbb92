package equipment

import "sort"

const (
	EnchantBindingCurse   = "binding_curse"
	EnchantVanishingCurse = "vanishing_curse"
)

// Item is one stack held in an equipment slot. The zero value is the empty
// item; callers compare with IsEmpty rather than nil.
type Item struct {
	ID           string            `json:"id,omitempty"`
	Count        int               `json:"count,omitempty"`
	Meta         int               `json:"meta,omitempty"`
	Damage       int               `json:"damage,omitempty"`
	Tag          map[string]string `json:"tag,omitempty"`
	Enchantments []string          `json:"enchantments,omitempty"`
}

// Empty is the empty-slot sentinel.
var Empty = Item{}

func NewItem(id string, count int) Item {
	if id == "" || count <= 0 {
		return Empty
	}
	return Item{ID: id, Count: count}
}

func (it Item) IsEmpty() bool { return it.ID == "" || it.Count <= 0 }

// HasTag reports whether the stack carries any extra data beyond id/meta.
func (it Item) HasTag() bool { return len(it.Tag) > 0 || len(it.Enchantments) > 0 }

func (it Item) HasEnchantment(name string) bool {
	for _, e := range it.Enchantments {
		if e == name {
			return true
		}
	}
	return false
}

// Split removes n items from the stack and returns them as a new stack.
func (it *Item) Split(n int) Item {
	if it.IsEmpty() || n <= 0 {
		return Empty
	}
	if n > it.Count {
		n = it.Count
	}
	out := it.Clone()
	out.Count = n
	it.Count -= n
	if it.Count <= 0 {
		*it = Empty
	}
	return out
}

func (it Item) Clone() Item {
	if it.IsEmpty() {
		return Empty
	}
	out := it
	if it.Tag != nil {
		out.Tag = make(map[string]string, len(it.Tag))
		for k, v := range it.Tag {
			out.Tag[k] = v
		}
	}
	if it.Enchantments != nil {
		out.Enchantments = append([]string(nil), it.Enchantments...)
		sort.Strings(out.Enchantments)
	}
	return out
}

type Class int

const (
	ClassOther Class = iota
	ClassWeapon
	ClassBow
	ClassShield
	ClassArmor
	ClassHeadwear
)

func (c Class) String() string {
	switch c {
	case ClassWeapon:
		return "WEAPON"
	case ClassBow:
		return "BOW"
	case ClassShield:
		return "SHIELD"
	case ClassArmor:
		return "ARMOR"
	case ClassHeadwear:
		return "HEADWEAR"
	default:
		return "OTHER"
	}
}

func ParseClass(s string) Class {
	switch s {
	case "WEAPON":
		return ClassWeapon
	case "BOW":
		return ClassBow
	case "SHIELD":
		return ClassShield
	case "ARMOR":
		return ClassArmor
	case "HEADWEAR":
		return ClassHeadwear
	default:
		return ClassOther
	}
}

// Def is the static description of an item id.
type Def struct {
	Class          Class
	Slot           Slot // SlotAuto unless the item is bound to one slot
	AttackDamage   float64
	ArmorReduction int
	MaxDamage      int
}

// Catalog resolves item ids to their definitions.
type Catalog interface {
	ItemDef(id string) (Def, bool)
}

func lookup(cat Catalog, it Item) Def {
	if cat == nil || it.IsEmpty() {
		return Def{Slot: SlotAuto}
	}
	d, ok := cat.ItemDef(it.ID)
	if !ok {
		return Def{Slot: SlotAuto}
	}
	return d
}

// SlotFor picks the slot an item naturally occupies. Armor must name its
// armor slot; armor without one has no natural slot and yields SlotAuto.
func SlotFor(d Def) Slot {
	if d.Class == ClassArmor {
		if d.Slot.Valid() && d.Slot.Type() == TypeArmor {
			return d.Slot
		}
		return SlotAuto
	}
	if d.Slot.Valid() {
		return d.Slot
	}
	switch d.Class {
	case ClassHeadwear:
		return Head
	case ClassShield:
		return OffHand
	default:
		return MainHand
	}
}

// InSlot reports whether an item with def d may sit in slot. The two hand
// slots accept each other's items.
func InSlot(slot Slot, d Def) bool {
	s := SlotFor(d)
	return s == slot ||
		(s == MainHand && slot == OffHand) ||
		(s == OffHand && slot == MainHand)
}
