package world

import (
	"go.uber.org/zap"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/equipment"
)

// Policy is the host's say over agent decisions. The world wraps it into each
// agent's hooks and audits every verdict that changes the outcome.
type Policy interface {
	AuthorizeTarget(a *agent.Agent, candidate agent.Entity, reason agent.Reason) (agent.Entity, bool)
	CanDespawn(a *agent.Agent) agent.Decision
	AuthorizePickup(a *agent.Agent, it equipment.Item, allowed bool) bool
	AuthorizeLeash(a *agent.Agent, holder agent.Entity) bool
	AuthorizeUnleash(a *agent.Agent, holder agent.Entity) bool
}

// DefaultPolicy approves everything and has no despawn opinion.
type DefaultPolicy struct{}

func (DefaultPolicy) AuthorizeTarget(_ *agent.Agent, c agent.Entity, _ agent.Reason) (agent.Entity, bool) {
	return c, true
}
func (DefaultPolicy) CanDespawn(*agent.Agent) agent.Decision                         { return agent.DespawnDefault }
func (DefaultPolicy) AuthorizePickup(_ *agent.Agent, _ equipment.Item, ok bool) bool { return ok }
func (DefaultPolicy) AuthorizeLeash(*agent.Agent, agent.Entity) bool                 { return true }
func (DefaultPolicy) AuthorizeUnleash(*agent.Agent, agent.Entity) bool               { return true }

func entityID(e agent.Entity) string {
	if e == nil {
		return ""
	}
	if a, ok := e.(*agent.Agent); ok && a == nil {
		return ""
	}
	return e.EntityID().String()
}

// hooksFor binds the policy and the world's bookkeeping to one agent.
func (w *World) hooksFor() agent.Hooks {
	return agent.Hooks{
		AuthorizeTarget: func(a *agent.Agent, c agent.Entity, r agent.Reason) (agent.Entity, bool) {
			got, ok := w.policy.AuthorizeTarget(a, c, r)
			if !ok {
				w.audit(a, "TARGET_DENIED", r.String(), map[string]any{"candidate": entityID(c)})
			}
			return got, ok
		},
		CanDespawn: func(a *agent.Agent) agent.Decision {
			return w.policy.CanDespawn(a)
		},
		AuthorizePickup: func(a *agent.Agent, it equipment.Item, allowed bool) bool {
			ok := w.policy.AuthorizePickup(a, it, allowed)
			if ok != allowed {
				w.audit(a, "PICKUP_OVERRIDE", "", map[string]any{"item": it.ID, "allowed": ok})
			}
			return ok
		},
		AuthorizeLeash: func(a *agent.Agent, holder agent.Entity) bool {
			ok := w.policy.AuthorizeLeash(a, holder)
			if !ok {
				w.audit(a, "LEASH_DENIED", "", map[string]any{"holder": entityID(holder)})
			}
			return ok
		},
		AuthorizeUnleash: func(a *agent.Agent, holder agent.Entity) bool {
			ok := w.policy.AuthorizeUnleash(a, holder)
			if !ok {
				w.audit(a, "UNLEASH_DENIED", "", map[string]any{"holder": entityID(holder)})
			}
			return ok
		},
		TargetChanged: func(a *agent.Agent, from, to agent.Entity, r agent.Reason) {
			w.recordTargetChange(a, from, to, r)
		},
		Unleashed: func(a *agent.Agent, holder agent.Entity, r agent.UnleashReason) {
			w.audit(a, "UNLEASH", r.String(), map[string]any{"holder": entityID(holder)})
		},
	}
}

func (w *World) SetPolicy(p Policy) {
	if p == nil {
		p = DefaultPolicy{}
	}
	w.policy = p
	w.log.Debug("policy set", zap.String("policy", policyName(p)))
}

func policyName(p Policy) string {
	if _, ok := p.(DefaultPolicy); ok {
		return "default"
	}
	return "custom"
}
