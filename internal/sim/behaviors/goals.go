package behaviors

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/tasks"
)

// Swim keeps the agent afloat by jumping most ticks while in water.
type Swim struct {
	a *agent.Agent
	s Sensor
}

func NewSwim(a *agent.Agent, s Sensor) *Swim { return &Swim{a: a, s: s} }

func (t *Swim) Name() string         { return NameSwim }
func (t *Swim) Flags() tasks.FlagSet { return tasks.Flags(tasks.FlagJump) }
func (t *Swim) ShouldStart() bool    { return t.s.InWater(t.a) }
func (t *Swim) ShouldContinue() bool { return t.ShouldStart() }
func (t *Swim) Start()               {}
func (t *Swim) Stop()                {}

func (t *Swim) Tick() {
	if t.a.Rand().Float32() < 0.8 {
		t.a.Jump.SetJumping()
	}
}

// Wander walks to a random nearby spot now and then. Agents that have been
// idle too long stop wandering so the despawn rule can catch them.
type Wander struct {
	Speed    float64
	Interval int
	MaxIdle  int

	a      *agent.Agent
	s      Sensor
	target mgl64.Vec3
}

func NewWander(a *agent.Agent, s Sensor, speed float64) *Wander {
	if speed <= 0 {
		speed = 1
	}
	return &Wander{Speed: speed, Interval: 120, MaxIdle: 100, a: a, s: s}
}

func (t *Wander) Name() string         { return NameWander }
func (t *Wander) Flags() tasks.FlagSet { return tasks.Flags(tasks.FlagMove) }

func (t *Wander) ShouldStart() bool {
	if t.a.IdleTicks >= t.MaxIdle {
		return false
	}
	if t.Interval > 1 && t.a.Rand().Intn(t.Interval) != 0 {
		return false
	}
	p, ok := t.s.RandomPosition(t.a, 10, 7)
	if !ok {
		return false
	}
	t.target = p
	return true
}

func (t *Wander) ShouldContinue() bool { return !t.a.Nav.Idle() }

func (t *Wander) Start() {
	t.a.Nav.MoveTo(t.a.Pos, t.target, t.Speed)
}

func (t *Wander) Tick() {}
func (t *Wander) Stop() {}

// WatchClosest looks at the current target, or else the nearest player in
// range, for a couple of seconds.
type WatchClosest struct {
	Range  float64
	Chance float32

	a       *agent.Agent
	s       Sensor
	watched agent.Entity
	left    int
}

func NewWatchClosest(a *agent.Agent, s Sensor, radius float64) *WatchClosest {
	if radius <= 0 {
		radius = 8
	}
	return &WatchClosest{Range: radius, Chance: 0.02, a: a, s: s}
}

func (t *WatchClosest) Name() string         { return NameWatchClosest }
func (t *WatchClosest) Flags() tasks.FlagSet { return tasks.Flags(tasks.FlagLook) }

func (t *WatchClosest) ShouldStart() bool {
	if t.a.Rand().Float32() >= t.Chance {
		return false
	}
	if tg := t.a.Target(); tg != nil && tg.Alive() {
		t.watched = tg
		return true
	}
	e, ok := nearest(t.a, t.s, []string{KindPlayer}, t.Range, false)
	if !ok {
		return false
	}
	t.watched = e
	return true
}

func (t *WatchClosest) ShouldContinue() bool {
	if t.watched == nil || !t.watched.Alive() {
		return false
	}
	if distSq(t.a, t.watched) > t.Range*t.Range {
		return false
	}
	return t.left > 0
}

func (t *WatchClosest) Start() { t.left = 40 + t.a.Rand().Intn(40) }

func (t *WatchClosest) Tick() {
	p := t.a.Params()
	t.a.Look.SetLookPosition(eyeOf(t.watched), p.FaceSpeedHorizontal, p.FaceSpeedVertical)
	t.left--
}

func (t *WatchClosest) Stop() { t.watched = nil }

// LookIdle glances in a random direction. It holds Move as well so the agent
// stands still while looking around.
type LookIdle struct {
	a      *agent.Agent
	dx, dz float64
	left   int
}

func NewLookIdle(a *agent.Agent) *LookIdle { return &LookIdle{a: a} }

func (t *LookIdle) Name() string { return NameLookIdle }
func (t *LookIdle) Flags() tasks.FlagSet {
	return tasks.Flags(tasks.FlagMove, tasks.FlagLook)
}
func (t *LookIdle) ShouldStart() bool    { return t.a.Rand().Float32() < 0.02 }
func (t *LookIdle) ShouldContinue() bool { return t.left >= 0 }

func (t *LookIdle) Start() {
	angle := 2 * math.Pi * t.a.Rand().Float64()
	t.dx = math.Cos(angle)
	t.dz = math.Sin(angle)
	t.left = 20 + t.a.Rand().Intn(20)
}

func (t *LookIdle) Tick() {
	t.left--
	p := t.a.Params()
	at := t.a.EyePos().Add(mgl64.Vec3{t.dx, 0, t.dz})
	t.a.Look.SetLookPosition(at, p.FaceSpeedHorizontal, p.FaceSpeedVertical)
}

func (t *LookIdle) Stop() {}

// MeleeAttack chases the attack target and hits it when in reach.
type MeleeAttack struct {
	Speed      float64
	LongMemory bool
	Reach      float64
	Cooldown   int

	a       *agent.Agent
	s       Sensor
	repath  int
	wait    int
	lastPos mgl64.Vec3
}

func NewMeleeAttack(a *agent.Agent, s Sensor, speed float64) *MeleeAttack {
	if speed <= 0 {
		speed = 1
	}
	return &MeleeAttack{Speed: speed, Reach: 2, Cooldown: 20, a: a, s: s}
}

func (t *MeleeAttack) Name() string { return NameMeleeAttack }
func (t *MeleeAttack) Flags() tasks.FlagSet {
	return tasks.Flags(tasks.FlagMove, tasks.FlagLook)
}

func (t *MeleeAttack) ShouldStart() bool {
	tg := t.a.Target()
	if tg == nil || !tg.Alive() {
		return false
	}
	if t.inReach(tg) {
		return true
	}
	return t.a.Nav.MoveTo(t.a.Pos, tg.Position(), t.Speed)
}

func (t *MeleeAttack) ShouldContinue() bool {
	tg := t.a.Target()
	if tg == nil || !tg.Alive() {
		return false
	}
	if !t.LongMemory {
		return !t.a.Nav.Idle() || t.inReach(tg)
	}
	r := followRange(t.a)
	return distSq(t.a, tg) <= r*r
}

func (t *MeleeAttack) Start() {
	t.repath = 0
	t.wait = 0
	if tg := t.a.Target(); tg != nil {
		t.lastPos = tg.Position()
	}
}

func (t *MeleeAttack) Tick() {
	tg := t.a.Target()
	if tg == nil {
		return
	}
	t.a.Look.SetLookPosition(eyeOf(tg), 30, 30)

	t.repath--
	moved := tg.Position().Sub(t.lastPos).Len() >= 1
	if (t.LongMemory || canSee(t.a, t.s, tg)) && t.repath <= 0 && (moved || t.a.Nav.Idle()) {
		t.lastPos = tg.Position()
		t.repath = 4 + t.a.Rand().Intn(7)
		d := distSq(t.a, tg)
		switch {
		case d > 1024:
			t.repath += 10
		case d > 256:
			t.repath += 5
		}
		if !t.a.Nav.MoveTo(t.a.Pos, tg.Position(), t.Speed) {
			t.repath += 15
		}
	}

	if t.wait > 0 {
		t.wait--
	}
	if t.inReach(tg) && t.wait <= 0 {
		t.wait = t.Cooldown
		t.s.Attack(t.a, tg)
	}
}

func (t *MeleeAttack) Stop() { t.a.Nav.Clear() }

func (t *MeleeAttack) inReach(tg agent.Entity) bool {
	return distSq(t.a, tg) <= t.Reach*t.Reach
}
