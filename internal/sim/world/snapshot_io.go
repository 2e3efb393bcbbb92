package world

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/terrain"
)

// ExportSnapshot captures the world as of the end of tick. Only call it from
// the loop goroutine or between StepOnce calls.
func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Tick:    tick,
		},
		Seed:           w.cfg.Seed,
		TickRate:       w.cfg.TickRateHz,
		Difficulty:     w.cfg.Difficulty,
		BaseHeight:     w.cfg.BaseHeight,
		HeightVariance: w.cfg.HeightVariance,
		PoolPermille:   w.cfg.PoolPermille,
		Counters:       w.counters,
	}

	for _, e := range w.terrain.Edits() {
		snap.Blocks = append(snap.Blocks, snapshot.BlockEditV1{
			Pos:   [3]int{e.Pos.X, e.Pos.Y, e.Pos.Z},
			Block: uint8(e.Block),
		})
	}

	snap.Agents = make([]snapshot.AgentV1, 0, len(w.order))
	for _, a := range w.Agents() {
		snap.Agents = append(snap.Agents, a.WriteDocument())
	}
	for _, p := range w.sortedPlayers() {
		snap.Players = append(snap.Players, snapshot.PlayerV1{ID: p.ID.String(), Pos: vec(p.Pos)})
	}
	for _, it := range w.items {
		if it.gone || it.item.IsEmpty() {
			continue
		}
		snap.Items = append(snap.Items, snapshot.ItemEntityV1{
			EntityID: it.id.String(),
			Pos:      vec(it.pos),
			Item:     agent.ItemToDoc(it.item),
		})
	}

	knots := make([]*knot, 0, len(w.knots))
	for _, k := range w.knots {
		knots = append(knots, k)
	}
	sortKnots(knots)
	for _, k := range knots {
		snap.Knots = append(snap.Knots, snapshot.KnotV1{ID: k.id.String(), Pos: [3]int{k.pos.X, k.pos.Y, k.pos.Z}})
	}
	return snap
}

// ImportSnapshot replaces the world state with snap. The world must not be
// running. Leash references resolve on each agent's next tick, riders are
// seated again once every agent exists, and every agent is reseeded from the
// world generator.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != 1 {
		return fmt.Errorf("world %s: unsupported snapshot version %d", w.cfg.ID, snap.Header.Version)
	}

	cfg := w.cfg
	cfg.Seed = snap.Seed
	if snap.TickRate > 0 {
		cfg.TickRateHz = snap.TickRate
	}
	cfg.Difficulty = snap.Difficulty
	cfg.BaseHeight = snap.BaseHeight
	cfg.HeightVariance = snap.HeightVariance
	cfg.PoolPermille = snap.PoolPermille
	cfg.applyDefaults()

	store := terrain.NewStore(terrain.Gen{
		Seed:           cfg.Seed,
		BaseHeight:     cfg.BaseHeight,
		HeightVariance: cfg.HeightVariance,
		PoolPermille:   cfg.PoolPermille,
	})
	for _, b := range snap.Blocks {
		store.SetBlock(terrain.Pos{X: b.Pos[0], Y: b.Pos[1], Z: b.Pos[2]}, terrain.Block(b.Block))
	}

	// Validate kinds before touching live state.
	for i, doc := range snap.Agents {
		if _, ok := w.cats.Mobs.ByID[doc.Kind]; !ok {
			return fmt.Errorf("world %s: agent %d (%s): unknown kind %q", w.cfg.ID, i, doc.ID, doc.Kind)
		}
	}

	w.cfg = cfg
	w.terrain = store
	w.finder = terrain.NewGridPathfinder(store)
	w.finder.MaxNodes = cfg.PathNodeBudget
	w.rng = rand.New(rand.NewSource(cfg.Seed ^ int64(snap.Header.Tick)))
	w.counters = snap.Counters

	w.agents = map[uuid.UUID]*agent.Agent{}
	w.order = w.order[:0]
	w.players = map[uuid.UUID]*Player{}
	w.items = w.items[:0]
	w.knots = map[terrain.Pos]*knot{}

	for _, k := range snap.Knots {
		id, err := uuid.Parse(k.ID)
		if err != nil {
			return fmt.Errorf("world %s: knot id %q: %w", w.cfg.ID, k.ID, err)
		}
		p := terrain.Pos{X: k.Pos[0], Y: k.Pos[1], Z: k.Pos[2]}
		w.knots[p] = &knot{id: id, pos: p}
	}
	for _, ps := range snap.Players {
		id, err := uuid.Parse(ps.ID)
		if err != nil {
			return fmt.Errorf("world %s: player id %q: %w", w.cfg.ID, ps.ID, err)
		}
		w.players[id] = &Player{ID: id, Pos: toVec(ps.Pos)}
	}
	for _, it := range snap.Items {
		item := agent.ItemFromDoc(it.Item)
		if item.IsEmpty() {
			continue
		}
		id, err := uuid.Parse(it.EntityID)
		if err != nil {
			id = w.newEntityID()
		}
		w.items = append(w.items, &itemEntity{id: id, pos: toVec(it.Pos), item: item, born: snap.Header.Tick})
	}
	for _, doc := range snap.Agents {
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return fmt.Errorf("world %s: agent id %q: %w", w.cfg.ID, doc.ID, err)
		}
		if w.agents[id] != nil {
			return fmt.Errorf("world %s: duplicate agent %s", w.cfg.ID, id)
		}
		a, err := w.newAgent(w.cats.Mobs.ByID[doc.Kind], id, toVec(doc.Pos))
		if err != nil {
			return fmt.Errorf("world %s: %w", w.cfg.ID, err)
		}
		a.ReadDocument(doc)
		w.addAgent(a)
	}

	w.tick.Store(snap.Header.Tick + 1)
	env := w.env(w.tick.Load())
	for _, doc := range snap.Agents {
		if doc.MountID == "" {
			continue
		}
		rider := w.agents[uuid.MustParse(doc.ID)]
		mid, err := uuid.Parse(doc.MountID)
		if m := w.agents[mid]; err != nil || m == nil || !rider.StartRiding(env, m) {
			w.log.Warn("snapshot mount link dropped", zap.String("agent", doc.ID), zap.String("mount", doc.MountID))
		}
	}
	w.log.Info("snapshot imported",
		zap.Uint64("tick", snap.Header.Tick),
		zap.Int("agents", len(w.agents)),
		zap.Int("items", len(w.items)),
	)
	return nil
}
