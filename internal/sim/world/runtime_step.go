package world

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/sim/agent"
)

// stepInternal runs one tick:
//  1. player joins, moves and leaves, then admin drops
//  2. requested spawns, then natural spawning
//  3. player attacks, interactions and admin equips
//  4. every agent in spawn order: base tick, loot pickup, AI
//  5. removal sweep and reference cleanup, knot and item upkeep
//  6. tick log, observers, periodic snapshot, metrics
func (w *World) stepInternal(in Inputs) string {
	start := time.Now()
	tick := w.tick.Load()
	env := w.env(tick)

	w.removals = w.removals[:0]
	w.tickAudits = w.tickAudits[:0]
	w.targetChanges = w.targetChanges[:0]

	entry := TickLogEntry{Tick: tick}
	var gone []uuid.UUID

	for _, j := range in.Joins {
		if j.ID == uuid.Nil {
			continue
		}
		if j.Resp != nil {
			select {
			case j.Resp <- tick:
			default:
			}
		}
		if p := w.players[j.ID]; p != nil {
			p.Pos = j.Pos
			continue
		}
		w.players[j.ID] = &Player{ID: j.ID, Pos: j.Pos, Held: j.Held.Clone()}
		rec := RecordedJoin{PlayerID: j.ID.String(), Pos: vec(j.Pos)}
		if !j.Held.IsEmpty() {
			held := j.Held.Clone()
			rec.Held = &held
		}
		entry.Joins = append(entry.Joins, rec)
	}
	for _, m := range in.Moves {
		if p := w.players[m.ID]; p != nil {
			p.Pos = m.Pos
			entry.Moves = append(entry.Moves, RecordedMove{PlayerID: m.ID.String(), Pos: vec(m.Pos)})
		}
	}
	for _, id := range in.Leaves {
		p := w.players[id]
		if p == nil {
			continue
		}
		p.gone = true
		delete(w.players, id)
		gone = append(gone, id)
		entry.Leaves = append(entry.Leaves, id.String())
	}
	for _, d := range in.Drops {
		if d.Item.IsEmpty() {
			continue
		}
		w.DropItem(d.Pos, d.Item)
		entry.Drops = append(entry.Drops, RecordedDrop{Pos: vec(d.Pos), Item: d.Item.Clone()})
	}

	for _, req := range in.Spawns {
		if rec, ok := w.handleSpawnRequest(req); ok {
			entry.Spawns = append(entry.Spawns, rec)
		}
	}
	entry.Spawns = append(entry.Spawns, w.spawnNatural()...)

	for _, req := range in.Attacks {
		if w.playerAttack(tick, req) {
			entry.Attacks = append(entry.Attacks, req)
		}
	}
	for _, req := range in.Interacts {
		if w.playerInteract(env, req) {
			entry.Interacts = append(entry.Interacts, req)
		}
	}
	for _, req := range in.Equips {
		if w.equip(req) {
			entry.Equips = append(entry.Equips, req)
		}
	}

	for _, id := range w.order {
		a := w.agents[id]
		if a == nil || !a.Alive() {
			continue
		}
		a.BaseTick(env)
		w.pickUpLoot(env, a)
		a.UpdateActionState(env)
	}

	gone = append(gone, w.sweep(env)...)
	for _, id := range gone {
		for _, a := range w.agents {
			a.DropReference(id)
		}
	}
	w.pruneKnots()
	w.expireItems(tick)
	entry.Removals = append(entry.Removals, w.removals...)

	digest := w.stateDigest(tick)
	entry.Digest = digest
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Warn("tick log write failed", zap.Uint64("tick", tick), zap.Error(err))
		}
	}

	if len(w.observers) > 0 && tick%w.cfg.ObserverEveryTicks == 0 {
		w.broadcastObservers(tick)
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && tick != 0 && tick%w.cfg.SnapshotEveryTicks == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(tick):
		default:
			w.log.Warn("snapshot sink backpressure", zap.Uint64("tick", tick))
		}
	}

	w.tick.Add(1)
	w.storeMetrics(tick, time.Since(start))
	return digest
}

// sweep removes dead and despawned agents, keeping spawn order, and returns
// their ids.
func (w *World) sweep(env agent.Env) []uuid.UUID {
	var out []uuid.UUID
	kept := w.order[:0]
	for _, id := range w.order {
		a := w.agents[id]
		if a == nil {
			continue
		}
		removed, why := a.Removed()
		switch {
		case a.Dead():
			why = "death"
		case removed:
			// A despawning agent lets go of its leash.
			a.ClearLeash(env, true)
		default:
			kept = append(kept, id)
			continue
		}
		if a.Senses != nil {
			hits, misses := a.Senses.Stats()
			w.stats.senseHits += uint64(hits)
			w.stats.senseMisses += uint64(misses)
		}
		delete(w.agents, id)
		out = append(out, id)
		w.removals = append(w.removals, Removal{AgentID: id.String(), Kind: a.Kind, Reason: why})
		w.stats.removed++
		w.log.Debug("agent left world", zap.String("agent", id.String()), zap.String("reason", why))
	}
	w.order = kept
	return out
}

func (w *World) playerAttack(tick uint64, req AttackRequest) bool {
	p := w.players[req.PlayerID]
	a := w.agents[req.AgentID]
	if p == nil || a == nil || !a.Alive() {
		return false
	}
	dmg := req.Damage
	if dmg <= 0 {
		dmg = 1
	}
	if a.Damage(tick, dmg, p) {
		w.kill(a, tick)
	}
	return true
}

func (w *World) playerInteract(env agent.Env, req InteractRequest) bool {
	p := w.players[req.PlayerID]
	a := w.agents[req.AgentID]
	if p == nil || a == nil {
		return false
	}
	if !a.Interact(env, p, &p.Held) {
		return false
	}
	if a.Alive() {
		params := a.Params()
		a.FaceEntity(p, params.FaceSpeedHorizontal, params.FaceSpeedVertical)
	}
	leashed := a.Leashed()
	w.audit(a, "INTERACT", "", map[string]any{"player": p.ID.String(), "leashed": leashed})
	return true
}

// equip overwrites an agent slot by inventory code. The slot's drop chance
// is left alone.
func (w *World) equip(req EquipRequest) bool {
	a := w.agents[req.AgentID]
	if a == nil || !a.Alive() {
		return false
	}
	if !a.Equipment.ReplaceBySlotCode(req.SlotCode, req.Item.Clone(), w.cats.Items) {
		w.log.Debug("equip rejected", zap.String("agent", req.AgentID.String()), zap.Int("slot_code", req.SlotCode), zap.String("item", req.Item.ID))
		return false
	}
	w.audit(a, "EQUIP", "", map[string]any{"slot_code": req.SlotCode, "item": req.Item.ID})
	return true
}

// pickUpLoot offers the agent every settled stack within reach, in drop
// order.
func (w *World) pickUpLoot(env agent.Env, a *agent.Agent) {
	if !a.CanPickUpLoot || !a.Alive() {
		return
	}
	reach := w.cfg.PickupReach
	n := len(w.items)
	for i := 0; i < n; i++ {
		it := w.items[i]
		if it.gone || env.Tick-it.born < w.cfg.PickupDelay {
			continue
		}
		d := it.pos.Sub(a.Pos)
		if d.Dot(d) > reach*reach {
			continue
		}
		id := it.item.ID
		if a.PickUp(env, it.item) {
			it.gone = true
			w.audit(a, "PICKUP", "", map[string]any{"item": id})
		}
	}
}
