package agent

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/attributes"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

func ItemToDoc(it equipment.Item) snapshot.ItemV1 {
	if it.IsEmpty() {
		return snapshot.ItemV1{}
	}
	c := it.Clone()
	return snapshot.ItemV1{ID: c.ID, Count: c.Count, Meta: c.Meta, Damage: c.Damage, Tag: c.Tag, Enchantments: c.Enchantments}
}

// ItemFromDoc turns malformed entries (no id, non-positive count) into the
// empty item.
func ItemFromDoc(d snapshot.ItemV1) equipment.Item {
	it := equipment.NewItem(d.ID, d.Count)
	if it.IsEmpty() {
		return equipment.Empty
	}
	it.Meta = d.Meta
	it.Damage = d.Damage
	if d.Damage < 0 {
		it.Damage = 0
	}
	if len(d.Tag) > 0 {
		it.Tag = d.Tag
	}
	if len(d.Enchantments) > 0 {
		it.Enchantments = d.Enchantments
	}
	return it.Clone()
}

// WriteDocument captures the agent's persistent state.
func (a *Agent) WriteDocument() snapshot.AgentV1 {
	canLoot := a.CanPickUpLoot
	doc := snapshot.AgentV1{
		ID:                  a.ID.String(),
		Kind:                a.Kind,
		Pos:                 [3]float64{a.Pos.X(), a.Pos.Y(), a.Pos.Z()},
		Yaw:                 a.Yaw,
		Pitch:               a.Pitch,
		Health:              a.Health,
		DataVersion:         snapshot.CurrentDataVersion,
		CanPickUpLoot:       &canLoot,
		PersistenceRequired: a.PersistenceRequired,
		LeftHanded:          a.LeftHanded,
		NoAI:                a.AIDisabled,
		FromSpawner:         a.FromSpawner,
		Leashed:             a.leash.leashed,
		IdleTicks:           a.IdleTicks,
	}
	if a.Mount != nil {
		doc.MountID = a.Mount.ID.String()
	}
	for _, it := range a.Equipment.Hands() {
		doc.HandItems = append(doc.HandItems, ItemToDoc(it))
	}
	for _, it := range a.Equipment.Armor() {
		doc.ArmorItems = append(doc.ArmorItems, ItemToDoc(it))
	}
	for _, sl := range []equipment.Slot{equipment.MainHand, equipment.OffHand} {
		doc.HandDropChances = append(doc.HandDropChances, a.Equipment.DropChance(sl))
	}
	for _, sl := range equipment.ArmorSlots {
		doc.ArmorDropChances = append(doc.ArmorDropChances, a.Equipment.DropChance(sl))
	}

	doc.Leash = a.leashDoc()

	if a.DeathLootTable != "" {
		doc.DeathLootTable = a.DeathLootTable
		doc.DeathLootTableSeed = a.DeathLootTableSeed
	}

	for _, name := range a.Attributes.Names() {
		inst := a.Attributes.Get(name)
		av := snapshot.AttributeV1{Name: string(name), Base: inst.Base()}
		for _, m := range inst.Modifiers() {
			av.Modifiers = append(av.Modifiers, snapshot.ModifierV1{
				UUID:      m.ID.String(),
				Name:      m.Name,
				Amount:    m.Amount,
				Operation: int(m.Op),
			})
		}
		doc.Attributes = append(doc.Attributes, av)
	}
	return doc
}

func (a *Agent) leashDoc() *snapshot.LeashV1 {
	l := a.leash
	switch {
	case !isNil(l.holder):
		if k, ok := l.holder.(Knot); ok {
			p := k.KnotPos()
			return &snapshot.LeashV1{X: &p.X, Y: &p.Y, Z: &p.Z}
		}
		return &snapshot.LeashV1{UUID: l.holder.EntityID().String()}
	case l.pending && l.pendingID != uuid.Nil:
		return &snapshot.LeashV1{UUID: l.pendingID.String()}
	case l.pending && l.pendingPos != nil:
		p := *l.pendingPos
		return &snapshot.LeashV1{X: &p.X, Y: &p.Y, Z: &p.Z}
	}
	return nil
}

// ReadDocument loads persistent state into the agent. Booleans added after
// the first schema version only overwrite the current value when the
// document carries a version marker or the stored value is true. Malformed
// equipment and out-of-range chances are clamped rather than rejected.
func (a *Agent) ReadDocument(doc snapshot.AgentV1) {
	if id, err := uuid.Parse(doc.ID); err == nil {
		a.ID = id
	}
	if doc.Kind != "" {
		a.Kind = doc.Kind
	}
	a.Pos = mgl64.Vec3{doc.Pos[0], doc.Pos[1], doc.Pos[2]}
	a.Yaw = finiteOr(doc.Yaw, 0)
	a.Pitch = finiteOr(doc.Pitch, 0)

	versioned := doc.DataVersion >= 1
	if doc.CanPickUpLoot != nil && (versioned || *doc.CanPickUpLoot) {
		a.CanPickUpLoot = *doc.CanPickUpLoot
	}
	if versioned || doc.PersistenceRequired {
		a.PersistenceRequired = doc.PersistenceRequired
	}

	if doc.HandItems != nil {
		for i, sl := range []equipment.Slot{equipment.MainHand, equipment.OffHand} {
			a.Equipment.Set(sl, itemAt(doc.HandItems, i))
		}
	}
	if doc.ArmorItems != nil {
		for i, sl := range equipment.ArmorSlots {
			a.Equipment.Set(sl, itemAt(doc.ArmorItems, i))
		}
	}
	for i, c := range doc.HandDropChances {
		if i >= 2 {
			break
		}
		a.Equipment.SetDropChance(equipment.Slot(int(equipment.MainHand)+i), c)
	}
	for i, c := range doc.ArmorDropChances {
		if i >= len(equipment.ArmorSlots) {
			break
		}
		a.Equipment.SetDropChance(equipment.ArmorSlots[i], c)
	}

	a.leash = leashState{leashed: doc.Leashed}
	if doc.Leashed {
		a.leash.pending = true
	}
	if doc.Leashed && doc.Leash != nil {
		if id, err := uuid.Parse(doc.Leash.UUID); err == nil && doc.Leash.UUID != "" {
			a.leash.pendingID = id
		} else if doc.Leash.HasPos() {
			p := terrain.Pos{X: *doc.Leash.X, Y: *doc.Leash.Y, Z: *doc.Leash.Z}
			a.leash.pendingPos = &p
		}
	}

	a.LeftHanded = doc.LeftHanded
	a.AIDisabled = doc.NoAI
	a.FromSpawner = doc.FromSpawner

	if doc.DeathLootTable != "" {
		a.DeathLootTable = doc.DeathLootTable
		a.DeathLootTableSeed = doc.DeathLootTableSeed
	}

	for _, av := range doc.Attributes {
		name := attributes.Name(av.Name)
		inst := a.Attributes.Get(name)
		if inst == nil {
			inst = a.Attributes.Register(name, av.Base, math.Inf(-1), math.Inf(1))
		}
		inst.SetBase(av.Base)
		for _, m := range av.Modifiers {
			id, err := uuid.Parse(m.UUID)
			if err != nil {
				continue
			}
			op := attributes.Operation(m.Operation)
			if op < attributes.OpAdd || op > attributes.OpMultiplyTotal {
				continue
			}
			inst.Apply(attributes.Modifier{ID: id, Name: m.Name, Amount: m.Amount, Op: op})
		}
	}

	limit := a.MaxHealth()
	a.Health = finiteOr(doc.Health, limit)
	if a.Health <= 0 || a.Health > limit {
		a.Health = limit
	}
	if doc.IdleTicks > 0 {
		a.IdleTicks = doc.IdleTicks
	}
}

func itemAt(items []snapshot.ItemV1, i int) equipment.Item {
	if i >= len(items) {
		return equipment.Empty
	}
	return ItemFromDoc(items[i])
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
