package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/attributes"
	"mobsim/internal/sim/behaviors"
	"mobsim/internal/sim/catalogs"
	"mobsim/internal/sim/navigation"
	"mobsim/internal/sim/terrain"
)

// newAgent builds an agent of kind def without placing it in the world.
func (w *World) newAgent(def catalogs.MobDef, id uuid.UUID, pos mgl64.Vec3) (*agent.Agent, error) {
	a := agent.New(agent.Config{
		ID:         id,
		Kind:       def.ID,
		Pos:        pos,
		Seed:       w.rng.Int63(),
		Hostile:    def.Hostile,
		LootTable:  def.LootTable,
		Experience: def.Experience,
		Catalog:    w.cats.Items,
		Navigator:  navigation.NewGround(w.finder, w.cfg.MaxPathDistance),
		Hooks:      w.hooksFor(),
		Params:     w.cfg.Params,
		Log:        w.log,
	})
	setBase(a, attributes.MaxHealth, def.MaxHealth)
	setBase(a, attributes.MovementSpeed, def.MovementSpeed)
	setBase(a, attributes.FollowRange, def.FollowRange)
	setBase(a, attributes.AttackDamage, def.AttackDamage)
	setBase(a, attributes.Armor, def.Armor)
	a.Health = a.MaxHealth()
	if err := behaviors.Install(a, def.Profile(), w.sensor); err != nil {
		return nil, fmt.Errorf("%s: %w", def.ID, err)
	}
	return a, nil
}

func setBase(a *agent.Agent, name attributes.Name, v float64) {
	if v <= 0 {
		return
	}
	if inst := a.Attributes.Get(name); inst != nil {
		inst.SetBase(v)
	}
}

type spawnOpts struct {
	persistent  bool
	fromSpawner bool
}

// spawnAgent creates a fresh agent and rolls its spawn-time traits: the
// follow-range bonus, handedness, loot pickup, catalog gear, difficulty
// armor and enchantments, and a jockey mount.
func (w *World) spawnAgent(def catalogs.MobDef, pos mgl64.Vec3, opts spawnOpts) (*agent.Agent, error) {
	a, err := w.newAgent(def, w.newEntityID(), pos)
	if err != nil {
		return nil, err
	}
	a.OnInitialSpawn()
	rng := a.Rand()

	regional := float64(w.cfg.Difficulty) / 3
	a.CanPickUpLoot = rng.Float32() < float32(def.LootChance*regional)
	for _, e := range def.Equipment {
		slot := catalogs.ParseSlot(e.Slot)
		if !slot.Valid() || !a.Equipment.Get(slot).IsEmpty() {
			continue
		}
		if rng.Float64() < e.Chance {
			a.Equipment.Set(slot, e.Stack())
		}
	}
	if def.Hostile && w.cfg.Difficulty > 0 {
		a.Equipment.EquipForDifficulty(rng, regional, w.cfg.Difficulty == 3)
		a.Equipment.EnchantForDifficulty(rng, w.cats.Items, regional)
	}
	a.FromSpawner = opts.fromSpawner
	if opts.persistent {
		a.EnablePersistence()
	}
	w.addAgent(a)
	w.stats.spawned++
	w.counters.Spawned++
	if r := def.Rides; r != nil && w.cfg.Difficulty > 0 && rng.Float64() < r.Chance {
		w.mountJockey(a, r.Kind, opts)
	}
	return a, nil
}

// mountJockey spawns a mount of kind under a and seats a on it.
func (w *World) mountJockey(a *agent.Agent, kind string, opts spawnOpts) {
	def, ok := w.cats.Mobs.ByID[kind]
	if !ok {
		return
	}
	m, err := w.spawnAgent(def, a.Pos, opts)
	if err != nil {
		w.log.Warn("jockey mount failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	if a.StartRiding(w.env(w.tick.Load()), m) {
		w.audit(a, "MOUNT", "jockey", map[string]any{"mount": m.ID.String()})
	}
}

func (w *World) addAgent(a *agent.Agent) {
	w.agents[a.ID] = a
	w.order = append(w.order, a.ID)
}

func (w *World) handleSpawnRequest(req SpawnRequest) (RecordedSpawn, bool) {
	reply := func(id uuid.UUID) {
		if req.Resp == nil {
			return
		}
		select {
		case req.Resp <- id:
		default:
		}
	}
	def, ok := w.cats.Mobs.ByID[req.Kind]
	if !ok {
		w.log.Warn("spawn: unknown kind", zap.String("kind", req.Kind))
		reply(uuid.Nil)
		return RecordedSpawn{}, false
	}
	a, err := w.spawnAgent(def, req.Pos, spawnOpts{persistent: req.Persistent, fromSpawner: req.FromSpawner})
	if err != nil {
		w.log.Warn("spawn failed", zap.Error(err))
		reply(uuid.Nil)
		return RecordedSpawn{}, false
	}
	reply(a.ID)
	return RecordedSpawn{
		AgentID:     a.ID.String(),
		Kind:        def.ID,
		Pos:         vec(a.Pos),
		Persistent:  req.Persistent,
		FromSpawner: req.FromSpawner,
		MountID:     mountID(a),
	}, true
}

func mountID(a *agent.Agent) string {
	if a.Mount == nil {
		return ""
	}
	return a.Mount.ID.String()
}

// spawnNatural tries to populate the area around players. Hostile kinds do
// not spawn on peaceful.
func (w *World) spawnNatural() []RecordedSpawn {
	if w.cfg.MaxAgents <= 0 || len(w.players) == 0 {
		return nil
	}
	players := w.sortedPlayers()
	var out []RecordedSpawn
	for i := 0; i < w.cfg.SpawnAttempts && len(w.agents) < w.cfg.MaxAgents; i++ {
		def, ok := w.pickMob()
		if !ok {
			return out
		}
		anchor := terrain.BlockPos(players[w.rng.Intn(len(players))].Pos)
		r := w.cfg.SpawnRadius
		x := anchor.X + w.rng.Intn(2*r+1) - r
		z := anchor.Z + w.rng.Intn(2*r+1) - r
		p := w.spawnPos(def.SpawnPlacement(), x, z)
		if !w.farFromPlayers(p.Center()) {
			continue
		}
		rule := terrain.Rule{Placement: def.SpawnPlacement(), Custom: w.placement[def.ID]}
		if !rule.CanSpawnAt(w.terrain, p) {
			continue
		}
		a, err := w.spawnAgent(def, p.Center(), spawnOpts{})
		if err != nil {
			w.log.Warn("natural spawn failed", zap.Error(err))
			continue
		}
		out = append(out, RecordedSpawn{AgentID: a.ID.String(), Kind: def.ID, Pos: vec(a.Pos), Natural: true, MountID: mountID(a)})
	}
	return out
}

func (w *World) pickMob() (catalogs.MobDef, bool) {
	total := 0
	for _, id := range w.cats.Mobs.IDs {
		if d := w.cats.Mobs.ByID[id]; w.spawnable(d) {
			total += d.SpawnWeight
		}
	}
	if total <= 0 {
		return catalogs.MobDef{}, false
	}
	r := w.rng.Intn(total)
	for _, id := range w.cats.Mobs.IDs {
		d := w.cats.Mobs.ByID[id]
		if !w.spawnable(d) {
			continue
		}
		if r < d.SpawnWeight {
			return d, true
		}
		r -= d.SpawnWeight
	}
	return catalogs.MobDef{}, false
}

func (w *World) spawnable(d catalogs.MobDef) bool {
	return d.SpawnWeight > 0 && !(d.Hostile && w.cfg.Difficulty == 0)
}

// spawnPos picks the candidate block in column (x, z) for a placement.
func (w *World) spawnPos(pl terrain.Placement, x, z int) terrain.Pos {
	y := w.terrain.SurfaceY(x, z)
	if pl == terrain.InAir {
		y += 4 + w.rng.Intn(8)
	}
	return terrain.Pos{X: x, Y: y, Z: z}
}

func (w *World) farFromPlayers(pos mgl64.Vec3) bool {
	p, ok := w.NearestPlayer(pos)
	if !ok {
		return true
	}
	return p.Position().Sub(pos).Len() >= w.cfg.MinPlayerDistance
}

func vec(v mgl64.Vec3) [3]float64 { return [3]float64{v.X(), v.Y(), v.Z()} }

func toVec(v [3]float64) mgl64.Vec3 {
	for i, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			v[i] = 0
		}
	}
	return mgl64.Vec3{v[0], v[1], v[2]}
}
