package equipment

// Rand is the subset of *math/rand.Rand the equipment rules draw from.
type Rand interface {
	Float32() float32
	Float64() float64
	Intn(n int) int
}

// Upgrade is the verdict of comparing a candidate against an equipped slot.
// ReplaceChance is the drop chance of the item being displaced, i.e. the
// slot's stored chance, never the candidate's.
type Upgrade struct {
	Slot          Slot
	Accept        bool
	ReplaceChance float32
}

// EvaluateUpgrade decides whether candidate should replace the item in slot.
// The comparison is a total order per slot type: class first, then
// attack damage or armor reduction, then Meta, then tagged over untagged.
func (s *Slots) EvaluateUpgrade(cat Catalog, candidate Item, slot Slot) Upgrade {
	up := Upgrade{Slot: slot, ReplaceChance: s.DropChance(slot)}
	if candidate.IsEmpty() || !slot.Valid() {
		return up
	}
	cur := s.Get(slot)
	if cur.IsEmpty() {
		up.Accept = true
		return up
	}
	cd := lookup(cat, candidate)
	ed := lookup(cat, cur)

	if slot.Type() == TypeHand {
		switch {
		case cd.Class == ClassWeapon && ed.Class != ClassWeapon:
			up.Accept = true
		case cd.Class == ClassWeapon && ed.Class == ClassWeapon:
			up.Accept = outranks(candidate, cur, cd.AttackDamage, ed.AttackDamage)
		case cd.Class == ClassBow && ed.Class == ClassBow:
			up.Accept = candidate.HasTag() && !cur.HasTag()
		}
		return up
	}

	if cur.HasEnchantment(EnchantBindingCurse) {
		return up
	}
	switch {
	case cd.Class == ClassArmor && ed.Class != ClassArmor:
		up.Accept = true
	case cd.Class == ClassArmor && ed.Class == ClassArmor:
		up.Accept = outranks(candidate, cur, float64(cd.ArmorReduction), float64(ed.ArmorReduction))
	}
	return up
}

// EvaluatePickup evaluates candidate against the slot it naturally occupies.
func (s *Slots) EvaluatePickup(cat Catalog, candidate Item) Upgrade {
	return s.EvaluateUpgrade(cat, candidate, SlotFor(lookup(cat, candidate)))
}

func outranks(cand, cur Item, candScore, curScore float64) bool {
	if candScore != curScore {
		return candScore > curScore
	}
	if cand.Meta != cur.Meta {
		return cand.Meta > cur.Meta
	}
	return cand.HasTag() && !cur.HasTag()
}

// Equip installs it into slot. The displaced item is returned with dropped
// set when the slot's drop chance says it falls to the ground; otherwise it
// is discarded. The slot's chance becomes GuaranteedDropChance.
func (s *Slots) Equip(rng Rand, slot Slot, it Item) (displaced Item, dropped bool) {
	if s == nil || !slot.Valid() || it.IsEmpty() {
		return Empty, false
	}
	cur := s.Get(slot)
	if !cur.IsEmpty() && rng.Float32()-0.1 < s.chances[slot] {
		dropped = true
	}
	s.Set(slot, it)
	s.chances[slot] = GuaranteedDropChance
	return cur, dropped
}

// DropOnDeath empties the slots whose items fall when the wearer dies.
// Chances above 1 always drop intact; other items only drop when the
// wearer was recently hit by a player, and come out randomly worn.
func (s *Slots) DropOnDeath(rng Rand, cat Catalog, recentlyHit bool, looting int) []Item {
	var out []Item
	for _, slot := range AllSlots {
		it := s.Get(slot)
		if it.IsEmpty() || it.HasEnchantment(EnchantVanishingCurse) {
			continue
		}
		chance := s.chances[slot]
		guaranteed := chance > 1
		if !recentlyHit && !guaranteed {
			continue
		}
		if rng.Float32()-float32(looting)*0.01 >= chance {
			continue
		}
		d := lookup(cat, it)
		if !guaranteed && d.MaxDamage > 0 {
			spread := d.MaxDamage - 3
			if spread < 1 {
				spread = 1
			}
			it.Damage = d.MaxDamage - rng.Intn(1+rng.Intn(spread))
		}
		out = append(out, it)
		s.Set(slot, Empty)
	}
	return out
}

var armorTiers = map[Slot][5]string{
	Head:  {"leather_helmet", "golden_helmet", "chainmail_helmet", "iron_helmet", "diamond_helmet"},
	Chest: {"leather_chestplate", "golden_chestplate", "chainmail_chestplate", "iron_chestplate", "diamond_chestplate"},
	Legs:  {"leather_leggings", "golden_leggings", "chainmail_leggings", "iron_leggings", "diamond_leggings"},
	Feet:  {"leather_boots", "golden_boots", "chainmail_boots", "iron_boots", "diamond_boots"},
}

// ArmorForTier maps a material tier (0 leather .. 4 diamond) to an armor id.
func ArmorForTier(slot Slot, tier int) (string, bool) {
	ladder, ok := armorTiers[slot]
	if !ok || tier < 0 || tier >= len(ladder) {
		return "", false
	}
	return ladder[tier], true
}

// EquipForDifficulty fills empty armor slots from feet upward with a random
// tier. difficulty is the clamped regional difficulty in [0, 1]. It returns
// the number of pieces added.
func (s *Slots) EquipForDifficulty(rng Rand, difficulty float64, hard bool) int {
	if rng.Float32() >= float32(0.15*difficulty) {
		return 0
	}
	tier := rng.Intn(2)
	for i := 0; i < 3; i++ {
		if rng.Float32() < 0.095 {
			tier++
		}
	}
	stop := float32(0.25)
	if hard {
		stop = 0.1
	}
	added := 0
	first := true
	for _, slot := range ArmorSlots {
		if !first && rng.Float32() < stop {
			break
		}
		first = false
		if !s.Get(slot).IsEmpty() {
			continue
		}
		if id, ok := ArmorForTier(slot, tier); ok {
			s.Set(slot, NewItem(id, 1))
			added++
		}
	}
	return added
}
