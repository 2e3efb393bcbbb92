package behaviors

import (
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/navigation"
	"mobsim/internal/sim/tasks"
)

type player struct {
	id    uuid.UUID
	pos   mgl64.Vec3
	alive bool
}

func newPlayer(pos mgl64.Vec3) *player { return &player{id: uuid.New(), pos: pos, alive: true} }

func (p *player) EntityID() uuid.UUID   { return p.id }
func (p *player) Position() mgl64.Vec3 { return p.pos }
func (p *player) Alive() bool          { return p.alive }

type fakeSensor struct {
	water   bool
	players []*player
	spot    *mgl64.Vec3
	allies  []*agent.Agent

	sightCalls int
	attacks    []agent.Entity
}

func (s *fakeSensor) InWater(*agent.Agent) bool { return s.water }

func (s *fakeSensor) Candidates(a *agent.Agent, kinds []string, radius float64) []agent.Entity {
	var out []agent.Entity
	for _, k := range kinds {
		if k != KindPlayer {
			continue
		}
		for _, p := range s.players {
			if p.alive && p.pos.Sub(a.Pos).Len() <= radius {
				out = append(out, p)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position().Sub(a.Pos).Len() < out[j].Position().Sub(a.Pos).Len()
	})
	return out
}

func (s *fakeSensor) Lookup(id uuid.UUID) (agent.Entity, bool) {
	for _, p := range s.players {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

func (s *fakeSensor) LineOfSight(*agent.Agent, agent.Entity) bool {
	s.sightCalls++
	return true
}

func (s *fakeSensor) RandomPosition(*agent.Agent, int, int) (mgl64.Vec3, bool) {
	if s.spot == nil {
		return mgl64.Vec3{}, false
	}
	return *s.spot, true
}

func (s *fakeSensor) Attack(_ *agent.Agent, e agent.Entity) bool {
	s.attacks = append(s.attacks, e)
	return true
}

func (s *fakeSensor) Allies(*agent.Agent, float64) []*agent.Agent { return s.allies }

type straight struct{}

func (straight) FindPath(_, to mgl64.Vec3, _ float64) (*navigation.Path, bool) {
	return navigation.NewPath(to), true
}

type reasonLog struct {
	reasons []agent.Reason
}

func (l *reasonLog) hooks() agent.Hooks {
	return agent.Hooks{TargetChanged: func(_ *agent.Agent, _, _ agent.Entity, r agent.Reason) {
		l.reasons = append(l.reasons, r)
	}}
}

func newZombie(hooks agent.Hooks) *agent.Agent {
	return agent.New(agent.Config{
		Kind:      "zombie",
		Pos:       mgl64.Vec3{0, 64, 0},
		Seed:      7,
		Hostile:   true,
		Navigator: navigation.NewGround(straight{}, 32),
		Hooks:     hooks,
	})
}

func run(a *agent.Agent, from, n int) {
	for i := from; i < from+n; i++ {
		a.UpdateActionState(agent.Env{Tick: uint64(i)})
	}
}

var hunter = Profile{
	Goals: []Spec{
		{Name: NameSwim, Priority: 0},
		{Name: NameMeleeAttack, Priority: 2, Speed: 1},
		{Name: NameWatchClosest, Priority: 8, Range: 8},
		{Name: NameLookIdle, Priority: 8},
	},
	Targets: []Spec{
		{Name: NameHurtByTarget, Priority: 1},
		{Name: NameNearestTarget, Priority: 2, Kinds: []string{KindPlayer}, CheckSight: true, Interval: 1},
	},
}

func TestInstall(t *testing.T) {
	s := &fakeSensor{}
	a := newZombie(agent.Hooks{})
	require.NoError(t, Install(a, hunter, s))
	assert.Equal(t, 4, a.Tasks.Goals.Len())
	assert.Equal(t, 2, a.Tasks.Targets.Len())

	b := newZombie(agent.Hooks{})
	err := Install(b, Profile{Goals: []Spec{{Name: NameSwim}, {Name: "fly", Priority: 3}}}, s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"fly"`)
	assert.Equal(t, 0, b.Tasks.Goals.Len())
}

func TestSwim(t *testing.T) {
	s := &fakeSensor{water: true}
	a := newZombie(agent.Hooks{})
	a.Tasks.AddTask(0, NewSwim(a, s))
	jumps := 0
	for i := 0; i < 50; i++ {
		run(a, i, 1)
		if a.Jumping {
			jumps++
		}
	}
	assert.Greater(t, jumps, 25)

	s.water = false
	run(a, 50, 1)
	run(a, 51, 1)
	assert.False(t, a.Jumping)
}

func TestNearestTargetAndMelee(t *testing.T) {
	var log reasonLog
	p := newPlayer(mgl64.Vec3{1.5, 64, 0})
	s := &fakeSensor{players: []*player{p}}
	a := newZombie(log.hooks())
	require.NoError(t, Install(a, hunter, s))

	run(a, 1, 1)
	require.Equal(t, agent.Entity(p), a.Target())
	require.Len(t, s.attacks, 1)

	run(a, 2, 19)
	assert.Len(t, s.attacks, 1, "cooldown holds")
	run(a, 21, 1)
	assert.Len(t, s.attacks, 2)

	// One line-of-sight computation per tick however many tasks ask.
	assert.Equal(t, 21, s.sightCalls)

	p.alive = false
	run(a, 22, 1)
	assert.Nil(t, a.Target())
	assert.Equal(t, []agent.Reason{agent.ReasonClosest, agent.ReasonDied}, log.reasons)
}

func TestNearestTargetOutOfRange(t *testing.T) {
	s := &fakeSensor{players: []*player{newPlayer(mgl64.Vec3{40, 64, 0})}}
	a := newZombie(agent.Hooks{})
	require.NoError(t, Install(a, hunter, s))
	run(a, 1, 5)
	assert.Nil(t, a.Target())
}

func TestHurtByTargetCallsHelp(t *testing.T) {
	var log reasonLog
	attacker := newPlayer(mgl64.Vec3{3, 64, 0})
	ally := newZombie(agent.Hooks{})
	busy := newZombie(agent.Hooks{})
	other := agent.New(agent.Config{Kind: "skeleton"})
	decoy := newPlayer(mgl64.Vec3{0, 64, 2})
	busy.RequestTarget(decoy, agent.ReasonClosest)

	s := &fakeSensor{players: []*player{attacker}, allies: []*agent.Agent{ally, busy, other}}
	a := newZombie(log.hooks())
	h := NewHurtByTarget(a, s)
	h.CallHelp = true
	a.Tasks.AddTargetTask(1, h)

	run(a, 1, 1)
	assert.Nil(t, a.Target())

	a.Damage(5, 3, attacker)
	run(a, 5, 1)
	assert.Equal(t, agent.Entity(attacker), a.Target())
	assert.Equal(t, agent.Entity(attacker), ally.Target())
	assert.Equal(t, agent.Entity(decoy), busy.Target())
	assert.Nil(t, other.Target())
	assert.Equal(t, []agent.Reason{agent.ReasonRetaliate}, log.reasons)

	// Walking out of follow range drops the target as forgotten.
	attacker.pos = mgl64.Vec3{100, 64, 0}
	run(a, 6, 1)
	assert.Nil(t, a.Target())
	assert.Equal(t, []agent.Reason{agent.ReasonRetaliate, agent.ReasonForgot}, log.reasons)

	// The same hit is not avenged twice.
	attacker.pos = mgl64.Vec3{3, 64, 0}
	run(a, 7, 3)
	assert.Nil(t, a.Target())
}

func TestHurtByTargetAvengesFirstTickHit(t *testing.T) {
	attacker := newPlayer(mgl64.Vec3{3, 64, 0})
	s := &fakeSensor{players: []*player{attacker}}
	a := newZombie(agent.Hooks{})
	a.Tasks.AddTargetTask(1, NewHurtByTarget(a, s))

	a.Damage(0, 1, attacker)
	run(a, 0, 1)
	assert.Equal(t, agent.Entity(attacker), a.Target())
}

func TestWander(t *testing.T) {
	spot := mgl64.Vec3{6, 64, 0}
	s := &fakeSensor{spot: &spot}
	a := newZombie(agent.Hooks{})
	w := NewWander(a, s, 1)
	w.Interval = 1
	a.Tasks.AddTask(5, w)

	run(a, 1, 1)
	assert.True(t, a.Tasks.Goals.IsRunning(w))
	assert.Greater(t, a.Pos.X(), 0.0)

	s.spot = nil
	run(a, 2, 40)
	assert.InDelta(t, 6, a.Pos.X(), 0.5)
	assert.False(t, a.Tasks.Goals.IsRunning(w))

	// Long-idle agents stay put.
	b := newZombie(agent.Hooks{})
	wb := NewWander(b, s, 1)
	wb.Interval = 1
	b.Tasks.AddTask(5, wb)
	b.IdleTicks = 200
	run(b, 1, 1)
	assert.False(t, b.Tasks.Goals.IsRunning(wb))
}

func TestWatchClosest(t *testing.T) {
	s := &fakeSensor{players: []*player{newPlayer(mgl64.Vec3{5, 64, 0})}}
	a := newZombie(agent.Hooks{})
	w := NewWatchClosest(a, s, 8)
	w.Chance = 1
	a.Tasks.AddTask(1, w)

	run(a, 1, 1)
	assert.InDelta(t, -10, a.Yaw, 1e-9)
	run(a, 2, 8)
	assert.InDelta(t, -90, a.Yaw, 1e-9)
	assert.InDelta(t, 0, a.Pitch, 1e-9)
}

func TestLookIdleHoldsMove(t *testing.T) {
	a := newZombie(agent.Hooks{})
	li := NewLookIdle(a)
	a.Tasks.AddTask(1, li)
	for i := 0; i < 500 && !a.Tasks.Goals.IsRunning(li); i++ {
		run(a, i, 1)
	}
	require.True(t, a.Tasks.Goals.IsRunning(li))
	assert.Same(t, li, a.Tasks.Goals.Owner(tasks.FlagMove))
}
