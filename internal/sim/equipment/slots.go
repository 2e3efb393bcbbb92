package equipment

import "math"

type Slot int

const (
	SlotAuto Slot = -1

	MainHand Slot = iota - 1
	OffHand
	Feet
	Legs
	Chest
	Head

	slotCount = 6
)

type SlotType int

const (
	TypeHand SlotType = iota
	TypeArmor
)

// AllSlots lists slots in canonical order (hands, then armor feet to head).
var AllSlots = [slotCount]Slot{MainHand, OffHand, Feet, Legs, Chest, Head}

var ArmorSlots = [4]Slot{Feet, Legs, Chest, Head}

func (s Slot) Valid() bool { return s >= MainHand && s <= Head }

func (s Slot) Type() SlotType {
	if s == MainHand || s == OffHand {
		return TypeHand
	}
	return TypeArmor
}

// Index is the position of the slot within its type's array.
func (s Slot) Index() int {
	if s.Type() == TypeHand {
		return int(s - MainHand)
	}
	return int(s - Feet)
}

func (s Slot) String() string {
	switch s {
	case MainHand:
		return "mainhand"
	case OffHand:
		return "offhand"
	case Feet:
		return "feet"
	case Legs:
		return "legs"
	case Chest:
		return "chest"
	case Head:
		return "head"
	default:
		return "auto"
	}
}

const (
	// DefaultDropChance is the natural drop chance of spawned equipment.
	DefaultDropChance float32 = 0.085
	// GuaranteedDropChance marks items that always drop and resist casual replacement.
	GuaranteedDropChance float32 = 2.0
)

// Slots is a fixed two-hand, four-armor inventory with per-slot drop chances.
type Slots struct {
	items   [slotCount]Item
	chances [slotCount]float32
}

func NewSlots() *Slots {
	s := &Slots{}
	for i := range s.chances {
		s.chances[i] = DefaultDropChance
	}
	return s
}

func (s *Slots) Get(slot Slot) Item {
	if s == nil || !slot.Valid() {
		return Empty
	}
	return s.items[slot]
}

func (s *Slots) Set(slot Slot, it Item) {
	if s == nil || !slot.Valid() {
		return
	}
	if it.IsEmpty() {
		it = Empty
	}
	s.items[slot] = it
}

func (s *Slots) DropChance(slot Slot) float32 {
	if s == nil || !slot.Valid() {
		return 0
	}
	return s.chances[slot]
}

// SetDropChance stores c clamped to [0, 2]; NaN falls back to the default.
func (s *Slots) SetDropChance(slot Slot, c float32) {
	if s == nil || !slot.Valid() {
		return
	}
	s.chances[slot] = ClampChance(c)
}

func ClampChance(c float32) float32 {
	switch {
	case math.IsNaN(float64(c)):
		return DefaultDropChance
	case c < 0:
		return 0
	case c > GuaranteedDropChance:
		return GuaranteedDropChance
	}
	return c
}

func (s *Slots) Hands() [2]Item {
	return [2]Item{s.Get(MainHand), s.Get(OffHand)}
}

func (s *Slots) Armor() [4]Item {
	var out [4]Item
	for i, sl := range ArmorSlots {
		out[i] = s.Get(sl)
	}
	return out
}

// TotalArmor sums the damage reduction of the equipped armor pieces.
func (s *Slots) TotalArmor(cat Catalog) int {
	total := 0
	for _, sl := range ArmorSlots {
		it := s.Get(sl)
		if it.IsEmpty() {
			continue
		}
		d := lookup(cat, it)
		if d.Class == ClassArmor {
			total += d.ArmorReduction
		}
	}
	return total
}

// ReplaceBySlotCode writes it into the slot addressed by an inventory slot
// code (98 main hand, 99 off hand, 100+i armor). It reports false for unknown
// codes and for items that do not belong in the addressed slot; the head slot
// accepts anything.
func (s *Slots) ReplaceBySlotCode(code int, it Item, cat Catalog) bool {
	var slot Slot
	switch {
	case code == 98:
		slot = MainHand
	case code == 99:
		slot = OffHand
	case code >= 100 && code < 100+len(ArmorSlots):
		slot = ArmorSlots[code-100]
	default:
		return false
	}
	if !it.IsEmpty() && slot != Head && !InSlot(slot, lookup(cat, it)) {
		return false
	}
	s.Set(slot, it)
	return true
}
