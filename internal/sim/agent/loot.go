package agent

import (
	"math/rand"

	"go.uber.org/zap"

	"mobsim/internal/sim/equipment"
)

// LootTables rolls named loot tables. ok is false for unknown tables.
type LootTables interface {
	Generate(name string, rng *rand.Rand, looting int) (items []equipment.Item, ok bool)
}

// PickUp offers a ground item to the agent. On acceptance the item goes into
// its natural slot, the displaced item may drop according to the slot's
// chance, the agent becomes persistent, and the whole stack is consumed.
func (a *Agent) PickUp(env Env, it equipment.Item) bool {
	if !a.Alive() || !a.CanPickUpLoot || it.IsEmpty() {
		return false
	}
	up := a.Equipment.EvaluatePickup(a.cat, it)
	allowed := up.Accept
	if a.hooks.AuthorizePickup != nil {
		allowed = a.hooks.AuthorizePickup(a, it, allowed)
	}
	if !allowed {
		return false
	}
	displaced, dropped := a.Equipment.Equip(a.rng, up.Slot, it.Clone())
	if dropped {
		env.drop(a.Pos, displaced)
	}
	a.PersistenceRequired = true
	a.log.Debug("picked up", zap.String("item", it.ID), zap.Stringer("slot", up.Slot), zap.Bool("displaced_dropped", dropped))
	return true
}

// Die marks the agent dead and drops its loot: the death loot table (seeded
// when a seed is stored) and then equipment. Agents without a table drop
// only equipment. The returned items have already been handed to the world.
func (a *Agent) Die(env Env, recentlyHit bool, looting int, tables LootTables) []equipment.Item {
	if a.dead || a.removed {
		return nil
	}
	a.dead = true
	a.Health = 0
	a.Tasks.Goals.StopAll()
	a.Tasks.Targets.StopAll()
	a.Nav.Clear()
	a.Dismount()
	if a.Rider != nil {
		a.Rider.Mount = nil
		a.Rider = nil
	}

	var drops []equipment.Item
	table := a.DeathLootTable
	if table == "" {
		table = a.LootTable
	}
	if table != "" && tables != nil {
		rng := a.rng
		if a.DeathLootTableSeed != 0 {
			rng = rand.New(rand.NewSource(a.DeathLootTableSeed))
		}
		if items, ok := tables.Generate(table, rng, looting); ok {
			drops = append(drops, items...)
		} else {
			a.log.Warn("unknown loot table", zap.String("table", table))
		}
		a.DeathLootTable = ""
	}
	drops = append(drops, a.Equipment.DropOnDeath(a.rng, a.cat, recentlyHit, looting)...)
	for _, it := range drops {
		env.drop(a.Pos, it)
	}
	if a.leash.leashed {
		a.notifyUnleash(UnleashDied)
		a.ClearLeash(env, true)
	}
	return drops
}

// ExperiencePoints is what a player kill yields: the base plus the equipment
// bonus. Kinds without a base yield nothing. Call it before Die so the
// bonus still sees the equipment.
func (a *Agent) ExperiencePoints() int {
	if a.Experience <= 0 {
		return 0
	}
	return a.Experience + a.Equipment.ExperienceBonus(a.rng)
}
