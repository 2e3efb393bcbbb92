package terrain

import (
	"fmt"
	"strings"
)

type Placement int

const (
	OnGround Placement = iota
	InAir
	InWater
)

func (p Placement) String() string {
	switch p {
	case InAir:
		return "IN_AIR"
	case InWater:
		return "IN_WATER"
	default:
		return "ON_GROUND"
	}
}

func ParsePlacement(s string) (Placement, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ON_GROUND":
		return OnGround, nil
	case "IN_AIR":
		return InAir, nil
	case "IN_WATER":
		return InWater, nil
	default:
		return OnGround, fmt.Errorf("unknown placement %q", s)
	}
}

// Query is the read-only block access a spawn predicate needs.
type Query interface {
	Solid(p Pos) bool
	Liquid(p Pos) bool
}

// Predicate overrides the generic spawn test for a placement.
type Predicate func(q Query, p Pos) bool

type Rule struct {
	Placement Placement
	Custom    Predicate
}

// CanSpawnAt uses the rule's custom predicate when one is set, and the
// generic placement test otherwise.
func (r Rule) CanSpawnAt(q Query, p Pos) bool {
	if q == nil {
		return false
	}
	if r.Custom != nil {
		return r.Custom(q, p)
	}
	return CanCreatureSpawn(q, r.Placement, p)
}

func emptyAt(q Query, p Pos) bool { return !q.Solid(p) && !q.Liquid(p) }

// CanCreatureSpawn is the generic predicate. Ground spawns need a solid floor
// and two clear blocks; water spawns need water at and below the position and
// no solid block above; air spawns need two clear blocks.
func CanCreatureSpawn(q Query, placement Placement, p Pos) bool {
	switch placement {
	case InWater:
		return q.Liquid(p) && q.Liquid(p.Down()) && !q.Solid(p.Up())
	case InAir:
		return emptyAt(q, p) && emptyAt(q, p.Up())
	default:
		return q.Solid(p.Down()) && emptyAt(q, p) && emptyAt(q, p.Up())
	}
}
