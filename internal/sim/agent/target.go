package agent

import "go.uber.org/zap"

func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	if a, ok := e.(*Agent); ok && a == nil {
		return true
	}
	return false
}

func sameEntity(x, y Entity) bool {
	switch {
	case isNil(x) && isNil(y):
		return true
	case isNil(x) || isNil(y):
		return false
	}
	return x.EntityID() == y.EntityID()
}

// RequestTarget moves the attack target to candidate (nil clears it). It
// returns false when candidate is already the target or the hook vetoes.
// Clearing a live target with ReasonUnknown is reclassified by liveness
// before the hook sees it.
func (a *Agent) RequestTarget(candidate Entity, reason Reason) bool {
	if isNil(candidate) {
		candidate = nil
	}
	if sameEntity(a.target, candidate) {
		return false
	}
	if reason == ReasonUnknown && a.target != nil && candidate == nil {
		if a.target.Alive() {
			reason = ReasonForgot
		} else {
			reason = ReasonDied
		}
	}
	if a.hooks.AuthorizeTarget != nil {
		if reason == ReasonUnknown {
			fields := []zap.Field{zap.Stringer("reason", reason)}
			if candidate != nil {
				fields = append(fields, zap.String("candidate", candidate.EntityID().String()))
			}
			a.log.Warn("unknown target change reason", fields...)
		}
		next, ok := a.hooks.AuthorizeTarget(a, candidate, reason)
		if !ok {
			return false
		}
		if isNil(next) {
			next = nil
		}
		candidate = next
	}
	from := a.target
	a.target = candidate
	if a.hooks.TargetChanged != nil {
		a.hooks.TargetChanged(a, from, candidate, reason)
	}
	return true
}
