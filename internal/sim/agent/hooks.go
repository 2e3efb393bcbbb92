package agent

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/terrain"
)

// Reason explains a target change to the authorization hook.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonForgot
	ReasonDied
	ReasonClosest
	ReasonRetaliate
	ReasonOther
)

func (r Reason) String() string {
	switch r {
	case ReasonForgot:
		return "FORGOT_TARGET"
	case ReasonDied:
		return "TARGET_DIED"
	case ReasonClosest:
		return "CLOSEST_ENTITY"
	case ReasonRetaliate:
		return "TARGET_ATTACKED_ENTITY"
	case ReasonOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Decision is the despawn hook's verdict. DespawnDefault means no opinion.
type Decision int

const (
	DespawnDefault Decision = iota
	DespawnAllow
	DespawnDeny
)

func (d Decision) String() string {
	switch d {
	case DespawnAllow:
		return "ALLOW"
	case DespawnDeny:
		return "DENY"
	default:
		return "DEFAULT"
	}
}

type UnleashReason int

const (
	UnleashUnknown UnleashReason = iota
	UnleashHolderGone
	UnleashPlayer
	UnleashDied
)

func (r UnleashReason) String() string {
	switch r {
	case UnleashHolderGone:
		return "HOLDER_GONE"
	case UnleashPlayer:
		return "PLAYER_UNLEASH"
	case UnleashDied:
		return "DIED"
	default:
		return "UNKNOWN"
	}
}

// Hooks are synchronous decision points invoked inline. A nil hook approves.
type Hooks struct {
	// AuthorizeTarget may veto a target change (ok=false) or substitute
	// another candidate by returning it.
	AuthorizeTarget func(a *Agent, candidate Entity, reason Reason) (target Entity, ok bool)
	CanDespawn      func(a *Agent) Decision
	// AuthorizePickup receives the built-in verdict and returns the final one.
	AuthorizePickup  func(a *Agent, it equipment.Item, allowed bool) bool
	AuthorizeLeash   func(a *Agent, holder Entity) bool
	AuthorizeUnleash func(a *Agent, holder Entity) bool

	TargetChanged func(a *Agent, from, to Entity, reason Reason)
	Unleashed     func(a *Agent, holder Entity, reason UnleashReason)
}

// World is the slice of the simulation an agent reaches into during a tick.
type World interface {
	NearestPlayer(pos mgl64.Vec3) (Entity, bool)
	// FindEntity looks up a living entity by id within radius of near.
	FindEntity(id uuid.UUID, near mgl64.Vec3, radius float64) (Entity, bool)
	// LeashKnot returns the knot at p, creating it when missing.
	LeashKnot(p terrain.Pos) Entity
	DropItem(pos mgl64.Vec3, it equipment.Item)
}

// Knot is a fixed leash anchor.
type Knot interface {
	Entity
	KnotPos() terrain.Pos
}

// Env is the per-tick context passed into every controller call.
type Env struct {
	Tick       uint64
	Difficulty int
	World      World
}

func (e Env) drop(pos mgl64.Vec3, it equipment.Item) {
	if e.World == nil || it.IsEmpty() {
		return
	}
	e.World.DropItem(pos, it)
}
