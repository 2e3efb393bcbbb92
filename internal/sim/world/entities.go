package world

import (
	"bytes"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

// Player is a connected human. Players are never damaged by agents; hits on
// them are only audited.
type Player struct {
	ID   uuid.UUID
	Pos  mgl64.Vec3
	Held equipment.Item

	gone bool
}

func (p *Player) EntityID() uuid.UUID  { return p.ID }
func (p *Player) Position() mgl64.Vec3 { return p.Pos }
func (p *Player) Alive() bool          { return p != nil && !p.gone }

// itemEntity is a stack lying on the ground.
type itemEntity struct {
	id   uuid.UUID
	pos  mgl64.Vec3
	item equipment.Item
	born uint64
	gone bool
}

// knot is a leash anchor fixed to a block.
type knot struct {
	id   uuid.UUID
	pos  terrain.Pos
	gone bool
}

func (k *knot) EntityID() uuid.UUID  { return k.id }
func (k *knot) Position() mgl64.Vec3 { return k.pos.Center() }
func (k *knot) Alive() bool          { return k != nil && !k.gone }
func (k *knot) KnotPos() terrain.Pos { return k.pos }

func lessID(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 }

func sortKnots(ks []*knot) {
	sort.Slice(ks, func(i, j int) bool { return lessID(ks[i].id, ks[j].id) })
}

// sortedPlayers returns players in id order so every scan is deterministic.
func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// newEntityID draws ids from the world rng so replays agree.
func (w *World) newEntityID() uuid.UUID {
	id, err := uuid.NewRandomFromReader(w.rng)
	if err != nil {
		return uuid.New()
	}
	return id
}

// NearestPlayer implements agent.World.
func (w *World) NearestPlayer(pos mgl64.Vec3) (agent.Entity, bool) {
	var best *Player
	bestD := 0.0
	for _, p := range w.sortedPlayers() {
		d := p.Pos.Sub(pos)
		dd := d.Dot(d)
		if best == nil || dd < bestD {
			best, bestD = p, dd
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// FindEntity implements agent.World.
func (w *World) FindEntity(id uuid.UUID, near mgl64.Vec3, radius float64) (agent.Entity, bool) {
	e, ok := w.lookup(id)
	if !ok {
		return nil, false
	}
	d := e.Position().Sub(near)
	if d.Dot(d) > radius*radius {
		return nil, false
	}
	return e, true
}

func (w *World) lookup(id uuid.UUID) (agent.Entity, bool) {
	if p := w.players[id]; p.Alive() {
		return p, true
	}
	if a := w.agents[id]; a.Alive() {
		return a, true
	}
	for _, k := range w.knots {
		if k.id == id && k.Alive() {
			return k, true
		}
	}
	return nil, false
}

// LeashKnot implements agent.World.
func (w *World) LeashKnot(p terrain.Pos) agent.Entity {
	if k := w.knots[p]; k != nil && k.Alive() {
		return k
	}
	k := &knot{id: w.newEntityID(), pos: p}
	w.knots[p] = k
	return k
}

// DropItem implements agent.World.
func (w *World) DropItem(pos mgl64.Vec3, it equipment.Item) {
	if it.IsEmpty() {
		return
	}
	w.items = append(w.items, &itemEntity{
		id:   w.newEntityID(),
		pos:  pos,
		item: it.Clone(),
		born: w.tick.Load(),
	})
	w.counters.NextItem++
}

// pruneKnots drops knots nothing is tied to.
func (w *World) pruneKnots() {
	if len(w.knots) == 0 {
		return
	}
	held := map[uuid.UUID]bool{}
	for _, a := range w.agents {
		if h := a.LeashHolder(); h != nil {
			held[h.EntityID()] = true
		}
	}
	for p, k := range w.knots {
		if !held[k.id] {
			k.gone = true
			delete(w.knots, p)
		}
	}
}

// expireItems removes picked-up and timed-out stacks, keeping drop order.
func (w *World) expireItems(tick uint64) {
	kept := w.items[:0]
	for _, it := range w.items {
		if it.gone || it.item.IsEmpty() {
			continue
		}
		if tick >= it.born && tick-it.born >= w.cfg.ItemLifetime {
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(w.items); i++ {
		w.items[i] = nil
	}
	w.items = kept
}
