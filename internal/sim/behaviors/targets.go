package behaviors

import (
	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/tasks"
)

// UnseenMemory is how many ticks a sight-checking target task keeps a target
// it cannot see.
const UnseenMemory = 60

// keeper holds the shared continue rule of target tasks: the target must be
// alive, within follow range, and (when checking sight) seen recently.
type keeper struct {
	a          *agent.Agent
	s          Sensor
	CheckSight bool
	unseen     int
}

func (k *keeper) keep() bool {
	tg := k.a.Target()
	if tg == nil || !tg.Alive() {
		return false
	}
	r := followRange(k.a)
	if distSq(k.a, tg) > r*r {
		return false
	}
	if k.CheckSight {
		if canSee(k.a, k.s, tg) {
			k.unseen = 0
		} else if k.unseen++; k.unseen > UnseenMemory {
			return false
		}
	}
	return true
}

// release drops the target with no stated reason; RequestTarget works out
// whether it was forgotten or died.
func (k *keeper) release() {
	k.unseen = 0
	k.a.RequestTarget(nil, agent.ReasonUnknown)
}

// NearestAttackableTarget picks the closest entity of the listed kinds.
type NearestAttackableTarget struct {
	keeper
	Kinds    []string
	Interval int

	found agent.Entity
}

func NewNearestAttackableTarget(a *agent.Agent, s Sensor, kinds []string) *NearestAttackableTarget {
	if len(kinds) == 0 {
		kinds = []string{KindPlayer}
	}
	return &NearestAttackableTarget{keeper: keeper{a: a, s: s}, Kinds: kinds, Interval: 10}
}

func (t *NearestAttackableTarget) Name() string         { return NameNearestTarget }
func (t *NearestAttackableTarget) Flags() tasks.FlagSet { return tasks.Flags(tasks.FlagTarget) }

func (t *NearestAttackableTarget) ShouldStart() bool {
	if t.Interval > 1 && t.a.Rand().Intn(t.Interval) != 0 {
		return false
	}
	e, ok := nearest(t.a, t.s, t.Kinds, followRange(t.a), t.CheckSight)
	if !ok {
		return false
	}
	t.found = e
	return true
}

func (t *NearestAttackableTarget) ShouldContinue() bool { return t.keep() }

func (t *NearestAttackableTarget) Start() {
	t.unseen = 0
	t.a.RequestTarget(t.found, agent.ReasonClosest)
	t.found = nil
}

func (t *NearestAttackableTarget) Tick() {}
func (t *NearestAttackableTarget) Stop() { t.release() }

// HurtByTarget retaliates against the last attacker and, with CallHelp,
// rallies idle allies of the same kind.
type HurtByTarget struct {
	keeper
	CallHelp bool

	// seen is the tick of the last avenged hit; valid once avenged is set.
	seen    uint64
	avenged bool
}

func NewHurtByTarget(a *agent.Agent, s Sensor) *HurtByTarget {
	return &HurtByTarget{keeper: keeper{a: a, s: s}}
}

func (t *HurtByTarget) Name() string         { return NameHurtByTarget }
func (t *HurtByTarget) Flags() tasks.FlagSet { return tasks.Flags(tasks.FlagTarget) }

func (t *HurtByTarget) ShouldStart() bool {
	who, at := t.a.LastAttacker()
	if who == nil || (t.avenged && at == t.seen) || !who.Alive() {
		return false
	}
	return who.EntityID() != t.a.ID
}

func (t *HurtByTarget) ShouldContinue() bool { return t.keep() }

func (t *HurtByTarget) Start() {
	who, at := t.a.LastAttacker()
	t.seen = at
	t.avenged = true
	t.unseen = 0
	t.a.RequestTarget(who, agent.ReasonRetaliate)
	if !t.CallHelp {
		return
	}
	for _, ally := range t.s.Allies(t.a, followRange(t.a)) {
		if ally == t.a || ally.Kind != t.a.Kind || ally.Target() != nil {
			continue
		}
		ally.RequestTarget(who, agent.ReasonRetaliate)
	}
}

func (t *HurtByTarget) Tick() {}
func (t *HurtByTarget) Stop() { t.release() }
