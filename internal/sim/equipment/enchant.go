package equipment

import "sort"

var (
	weaponEnchants = []string{"sharpness", "smite", "bane_of_arthropods", "knockback", "fire_aspect", "looting", "unbreaking"}
	bowEnchants    = []string{"power", "punch", "flame", "infinity", "unbreaking"}
	armorEnchants  = []string{"protection", "fire_protection", "blast_protection", "projectile_protection", "thorns", "unbreaking"}
	otherEnchants  = []string{"unbreaking"}

	slotEnchants = map[Slot][]string{
		Feet: {"feather_falling", "depth_strider"},
		Head: {"respiration", "aqua_affinity"},
	}

	// Curses never come from random enchanting; they only arrive on items
	// configured or dropped with them.
	curses = []string{EnchantBindingCurse, EnchantVanishingCurse}
)

// KnownEnchantment reports whether name is an enchantment the rules know.
func KnownEnchantment(name string) bool {
	for _, list := range [][]string{weaponEnchants, bowEnchants, armorEnchants, otherEnchants, curses} {
		for _, e := range list {
			if e == name {
				return true
			}
		}
	}
	for _, list := range slotEnchants {
		for _, e := range list {
			if e == name {
				return true
			}
		}
	}
	return false
}

func enchantPool(d Def, slot Slot) []string {
	var pool []string
	switch d.Class {
	case ClassWeapon:
		pool = weaponEnchants
	case ClassBow:
		pool = bowEnchants
	case ClassArmor:
		pool = append(append([]string(nil), armorEnchants...), slotEnchants[slot]...)
	default:
		pool = otherEnchants
	}
	return pool
}

// Enchant adds random enchantments suited to the item at the given level.
// The first one is always added; each further one needs Intn(50) <= level,
// and the level halves after every success. Existing enchantments are kept
// and never repeated.
func Enchant(rng Rand, cat Catalog, it Item, slot Slot, level int) Item {
	if it.IsEmpty() || level <= 0 {
		return it
	}
	out := it.Clone()
	var free []string
	for _, e := range enchantPool(lookup(cat, it), slot) {
		if !out.HasEnchantment(e) {
			free = append(free, e)
		}
	}
	for first := true; len(free) > 0; first = false {
		if !first {
			if rng.Intn(50) > level {
				break
			}
			level /= 2
		}
		i := rng.Intn(len(free))
		out.Enchantments = append(out.Enchantments, free[i])
		free = append(free[:i], free[i+1:]...)
	}
	sort.Strings(out.Enchantments)
	return out
}

// EnchantForDifficulty enchants the main hand with chance 0.25*difficulty
// and each armor piece with chance 0.5*difficulty, at level
// 5 + difficulty*Intn(18). difficulty is the clamped regional difficulty in
// [0, 1]. It returns how many items were enchanted.
func (s *Slots) EnchantForDifficulty(rng Rand, cat Catalog, difficulty float64) int {
	if s == nil || difficulty <= 0 {
		return 0
	}
	f := float32(difficulty)
	n := 0
	enchant := func(slot Slot) {
		level := int(5 + f*float32(rng.Intn(18)))
		s.Set(slot, Enchant(rng, cat, s.Get(slot), slot, level))
		n++
	}
	if !s.Get(MainHand).IsEmpty() && rng.Float32() < 0.25*f {
		enchant(MainHand)
	}
	for _, slot := range ArmorSlots {
		if !s.Get(slot).IsEmpty() && rng.Float32() < 0.5*f {
			enchant(slot)
		}
	}
	return n
}

// ExperienceBonus is the extra experience equipment adds to a player kill:
// 1 to 3 points for every item whose drop chance is not guaranteed.
func (s *Slots) ExperienceBonus(rng Rand) int {
	if s == nil {
		return 0
	}
	bonus := 0
	for _, slot := range append(ArmorSlots[:], MainHand, OffHand) {
		if !s.Get(slot).IsEmpty() && s.chances[slot] <= 1 {
			bonus += 1 + rng.Intn(3)
		}
	}
	return bonus
}
