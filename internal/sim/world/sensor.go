package world

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/attributes"
	"mobsim/internal/sim/behaviors"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

// sightStep is the spacing of line-of-sight samples along the eye ray.
const sightStep = 0.5

// sensor is the world as seen by behaviors. It reads world state directly;
// the agent's perception snapshot memoizes it per tick.
type sensor struct {
	w *World
}

var _ behaviors.Sensor = sensor{}

func (s sensor) InWater(a *agent.Agent) bool {
	return s.w.terrain.Liquid(terrain.BlockPos(a.Pos))
}

func (s sensor) Candidates(a *agent.Agent, kinds []string, radius float64) []agent.Entity {
	r2 := radius * radius
	var out []agent.Entity
	within := func(e agent.Entity) bool {
		d := e.Position().Sub(a.Pos)
		return d.Dot(d) <= r2
	}
	for _, k := range kinds {
		if k == behaviors.KindPlayer {
			for _, p := range s.w.sortedPlayers() {
				if p.Alive() && within(p) {
					out = append(out, p)
				}
			}
			continue
		}
		for _, id := range s.w.order {
			o := s.w.agents[id]
			if o == nil || o == a || o.Kind != k || !o.Alive() || !within(o) {
				continue
			}
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di := out[i].Position().Sub(a.Pos)
		dj := out[j].Position().Sub(a.Pos)
		return di.Dot(di) < dj.Dot(dj)
	})
	return out
}

func (s sensor) Lookup(id uuid.UUID) (agent.Entity, bool) { return s.w.lookup(id) }

// LineOfSight samples the segment between the two eyes and fails on the
// first solid block.
func (s sensor) LineOfSight(a *agent.Agent, e agent.Entity) bool {
	s.w.stats.sightChecks++
	from := a.EyePos()
	to := e.Position().Add(mgl64.Vec3{0, a.Params().EyeHeight, 0})
	if o, ok := e.(*agent.Agent); ok {
		to = o.EyePos()
	}
	d := to.Sub(from)
	n := int(d.Len()/sightStep) + 1
	for i := 1; i < n; i++ {
		p := from.Add(d.Mul(float64(i) / float64(n)))
		if s.w.terrain.Solid(terrain.BlockPos(p)) {
			return false
		}
	}
	return true
}

// RandomPosition tries ten random columns around the agent and returns the
// first dry surface within v blocks of its height.
func (s sensor) RandomPosition(a *agent.Agent, h, v int) (mgl64.Vec3, bool) {
	if h <= 0 {
		return mgl64.Vec3{}, false
	}
	rng := a.Rand()
	base := terrain.BlockPos(a.Pos)
	for i := 0; i < 10; i++ {
		x := base.X + rng.Intn(2*h+1) - h
		z := base.Z + rng.Intn(2*h+1) - h
		y := s.w.terrain.SurfaceY(x, z)
		if y-base.Y > v || base.Y-y > v {
			continue
		}
		p := terrain.Pos{X: x, Y: y, Z: z}
		if s.w.terrain.Liquid(p) {
			continue
		}
		return p.Center(), true
	}
	return mgl64.Vec3{}, false
}

// Attack lands a melee hit from a on e. Agents take damage and may die;
// players are only audited.
func (s sensor) Attack(a *agent.Agent, e agent.Entity) bool {
	w := s.w
	dmg := a.Attributes.Value(attributes.AttackDamage)
	if def, ok := w.cats.Items.ItemDef(a.Equipment.Get(equipment.MainHand).ID); ok {
		dmg += def.AttackDamage
	}
	switch o := e.(type) {
	case *agent.Agent:
		if !o.Alive() {
			return false
		}
		tick := w.tick.Load()
		if o.Damage(tick, dmg, a) {
			w.kill(o, tick)
		}
		return true
	case *Player:
		if !o.Alive() {
			return false
		}
		w.audit(a, "ATTACK_PLAYER", "", map[string]any{"player": o.ID.String(), "damage": dmg})
		return true
	}
	w.log.Debug("attack on unsupported entity", zap.String("agent", a.ID.String()))
	return false
}

func (s sensor) Allies(a *agent.Agent, radius float64) []*agent.Agent {
	r2 := radius * radius
	var out []*agent.Agent
	for _, id := range s.w.order {
		o := s.w.agents[id]
		if o == nil || o == a || !o.Alive() {
			continue
		}
		d := o.Pos.Sub(a.Pos)
		if d.Dot(d) <= r2 {
			out = append(out, o)
		}
	}
	return out
}
