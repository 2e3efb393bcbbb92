package agent

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

// LeadItemID is the item that leashes agents and drops when a leash breaks.
const LeadItemID = "lead"

type leashState struct {
	leashed bool
	holder  Entity

	// A reference read from a document, resolved on the next tick.
	pending    bool
	pendingID  uuid.UUID
	pendingPos *terrain.Pos
}

func (a *Agent) Leashed() bool       { return a.leash.leashed }
func (a *Agent) LeashHolder() Entity { return a.leash.holder }

// SetLeashHolder tethers the agent to holder and gets it off any mount.
func (a *Agent) SetLeashHolder(holder Entity) {
	if isNil(holder) {
		return
	}
	a.leash.leashed = true
	a.leash.holder = holder
	if a.Mount != nil {
		a.Dismount()
	}
}

// ClearLeash releases the leash, optionally dropping a lead item.
func (a *Agent) ClearLeash(env Env, dropLead bool) {
	if !a.leash.leashed {
		return
	}
	a.leash.leashed = false
	a.leash.holder = nil
	if dropLead {
		env.drop(a.Pos, equipment.NewItem(LeadItemID, 1))
	}
}

func (a *Agent) CanBeLeashedTo(player Entity) bool {
	return !a.leash.leashed && !a.Hostile
}

// UpdateLeash resolves a pending persisted reference and breaks the leash
// when the agent dies or the holder disappears.
func (a *Agent) UpdateLeash(env Env) {
	if a.leash.pending {
		a.recreateLeash(env)
	}
	if !a.leash.leashed {
		return
	}
	switch {
	case !a.Alive():
		a.notifyUnleash(UnleashDied)
		a.ClearLeash(env, true)
	case isNil(a.leash.holder) || !a.leash.holder.Alive():
		a.notifyUnleash(UnleashHolderGone)
		a.ClearLeash(env, true)
	}
}

func (a *Agent) recreateLeash(env Env) {
	defer func() {
		a.leash.pending = false
		a.leash.pendingID = uuid.Nil
		a.leash.pendingPos = nil
	}()
	if !a.leash.leashed {
		return
	}
	switch {
	case a.leash.pendingID != uuid.Nil:
		if env.World == nil {
			return
		}
		if h, ok := env.World.FindEntity(a.leash.pendingID, a.Pos, a.params.LeashRecreateRadius); ok {
			a.SetLeashHolder(h)
		}
	case a.leash.pendingPos != nil:
		if env.World == nil {
			return
		}
		if k := env.World.LeashKnot(*a.leash.pendingPos); !isNil(k) {
			a.SetLeashHolder(k)
		}
	default:
		a.notifyUnleash(UnleashUnknown)
		a.ClearLeash(env, true)
	}
}

func (a *Agent) notifyUnleash(r UnleashReason) {
	a.log.Debug("unleash", zap.Stringer("reason", r))
	if a.hooks.Unleashed != nil {
		a.hooks.Unleashed(a, a.leash.holder, r)
	}
}

// Interact handles a player using held on the agent. The holder of the leash
// unties it; a lead in hand ties it. It reports whether anything happened.
func (a *Agent) Interact(env Env, player Entity, held *equipment.Item) bool {
	if !a.Alive() || isNil(player) {
		return false
	}
	if a.leash.leashed && sameEntity(a.leash.holder, player) {
		if a.hooks.AuthorizeUnleash != nil && !a.hooks.AuthorizeUnleash(a, player) {
			return false
		}
		a.notifyUnleash(UnleashPlayer)
		a.ClearLeash(env, true)
		return true
	}
	if held != nil && held.ID == LeadItemID && !held.IsEmpty() && a.CanBeLeashedTo(player) {
		if a.hooks.AuthorizeLeash != nil && !a.hooks.AuthorizeLeash(a, player) {
			return false
		}
		a.SetLeashHolder(player)
		held.Split(1)
		return true
	}
	return false
}
