package agent

import (
	"go.uber.org/zap"

	"mobsim/internal/sim/navigation"
	"mobsim/internal/sim/tasks"
)

// ControlRefreshTicks is how often the goal scheduler's control flags are
// re-derived from the riding state.
const ControlRefreshTicks = 5

// BaseTick runs the housekeeping that precedes AI: age, riding, leash upkeep
// and the periodic control-flag refresh.
func (a *Agent) BaseTick(env Env) {
	if !a.Alive() {
		return
	}
	a.TicksExisted++
	a.followMount()
	a.UpdateLeash(env)
	if a.TicksExisted%ControlRefreshTicks == 0 {
		a.RefreshControlFlags()
	}
}

// followMount keeps a rider on its mount. A dead mount throws the rider off.
func (a *Agent) followMount() {
	m := a.Mount
	if m == nil {
		return
	}
	if !m.Alive() {
		a.Dismount()
		return
	}
	a.Pos = m.Pos
}

// RefreshControlFlags disables movement, looking and jumping while another
// agent steers this one.
func (a *Agent) RefreshControlFlags() {
	free := a.Rider == nil
	a.Tasks.Goals.SetControlFlag(tasks.FlagMove, free)
	a.Tasks.Goals.SetControlFlag(tasks.FlagJump, free)
	a.Tasks.Goals.SetControlFlag(tasks.FlagLook, free)
}

// UpdateActionState runs one AI tick: despawn check, perception reset,
// target then goal selection, navigation, and control application in the
// order move, look, jump. Nothing here can fail; missing collaborators only
// mean that step has no effect this tick.
func (a *Agent) UpdateActionState(env Env) {
	if !a.Alive() {
		return
	}
	a.IdleTicks++
	a.checkDespawn(env)
	if a.removed {
		return
	}
	if a.AIDisabled || a.FromSpawner {
		return
	}

	a.Senses.Reset(env.Tick)
	if g, ok := a.Nav.(interface{ SetMaxDrop(int) }); ok {
		g.SetMaxDrop(a.MaxFallHeight(env.Difficulty))
	}
	a.Tasks.Update()

	if req := a.Nav.Update(a.Pos); req.Active {
		a.Move.SetWantedPosition(req.Target, req.Speed)
	}

	if m := a.Mount; m != nil && m.Alive() {
		navigation.Copy(m.Nav, a.Nav, a.params.MountSpeed)
		m.Move = a.Move
		a.Move.Active = false
	}

	a.Move.apply(a)
	a.Look.apply(a)
	a.Jump.apply(a)
}

// checkDespawn applies the despawn policy. The hook, when sampled and holding
// an opinion, is final; the distance rule only runs otherwise.
func (a *Agent) checkDespawn(env Env) {
	if a.PersistenceRequired {
		a.IdleTicks = 0
		return
	}
	mask := a.params.HookSampleMask
	if a.IdleTicks&mask == mask && a.hooks.CanDespawn != nil {
		switch a.hooks.CanDespawn(a) {
		case DespawnDeny:
			a.IdleTicks = 0
			return
		case DespawnAllow:
			a.despawn("policy")
			return
		}
	}
	if env.World == nil {
		return
	}
	p, ok := env.World.NearestPlayer(a.Pos)
	if !ok || isNil(p) {
		return
	}
	d := p.Position().Sub(a.Pos)
	distSq := d.Dot(d)
	far := a.params.DespawnFarRadius
	near := a.params.DespawnNearRadius
	switch {
	case distSq > far*far:
		a.despawn("far")
	case a.IdleTicks > a.params.DespawnIdleTicks && a.rng.Intn(a.params.DespawnOdds) == 0 && distSq > near*near:
		a.despawn("idle")
	case distSq < near*near:
		a.IdleTicks = 0
	}
}

func (a *Agent) despawn(why string) {
	a.log.Debug("despawn", zap.String("cause", why), zap.Int("idle", a.IdleTicks))
	a.remove("despawn:" + why)
}
