package navigation

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pathfinder computes routes over the terrain. A failed query returns
// (nil, false); it never errors.
type Pathfinder interface {
	FindPath(from, to mgl64.Vec3, maxDist float64) (*Path, bool)
}

// DropFinder is a Pathfinder that can route down ledges deeper than the
// one-block default.
type DropFinder interface {
	FindPathDrop(from, to mgl64.Vec3, maxDist float64, maxDrop int) (*Path, bool)
}

// MoveRequest is what a navigator asks the move control to do this tick.
type MoveRequest struct {
	Target mgl64.Vec3
	Speed  float64
	Active bool
}

type Navigator interface {
	MoveTo(from, to mgl64.Vec3, speed float64) bool
	SetPath(p *Path, speed float64) bool
	Path() *Path
	Speed() float64
	Update(pos mgl64.Vec3) MoveRequest
	Clear()
	Idle() bool
}

// Ground follows paths on foot. Waypoints are consumed once the agent is
// within Reach of them horizontally. MaxDrop, when positive and the finder
// supports it, is the deepest ledge a planned path may step down.
type Ground struct {
	Finder  Pathfinder
	Reach   float64
	MaxDist float64
	MaxDrop int

	path  *Path
	speed float64
}

func NewGround(finder Pathfinder, maxDist float64) *Ground {
	return &Ground{Finder: finder, Reach: 0.5, MaxDist: maxDist}
}

// MoveTo plans a path and follows it. It returns false when no path exists.
func (g *Ground) MoveTo(from, to mgl64.Vec3, speed float64) bool {
	if g.Finder == nil {
		return false
	}
	var (
		p  *Path
		ok bool
	)
	if df, drops := g.Finder.(DropFinder); drops && g.MaxDrop > 0 {
		p, ok = df.FindPathDrop(from, to, g.MaxDist, g.MaxDrop)
	} else {
		p, ok = g.Finder.FindPath(from, to, g.MaxDist)
	}
	if !ok {
		return false
	}
	return g.SetPath(p, speed)
}

func (g *Ground) SetMaxDrop(n int) { g.MaxDrop = n }

// SetPath replaces the current path. An empty path clears navigation.
func (g *Ground) SetPath(p *Path, speed float64) bool {
	if p.Len() == 0 || p.Done() {
		g.Clear()
		return false
	}
	g.path = p
	g.speed = speed
	return true
}

func (g *Ground) Path() *Path    { return g.path }
func (g *Ground) Speed() float64 { return g.speed }
func (g *Ground) Idle() bool     { return g.path.Done() }

func (g *Ground) Clear() {
	g.path = nil
	g.speed = 0
}

func (g *Ground) Update(pos mgl64.Vec3) MoveRequest {
	reach := g.Reach
	if reach <= 0 {
		reach = 0.5
	}
	for !g.path.Done() {
		wp, _ := g.path.Current()
		if horizontalDist(pos, wp) > reach || math.Abs(pos.Y()-wp.Y()) > 1 {
			return MoveRequest{Target: wp, Speed: g.speed, Active: true}
		}
		g.path.Advance()
	}
	if g.path != nil {
		g.Clear()
	}
	return MoveRequest{}
}

// Copy hands the rider's path to its mount at the given speed. The rider's own
// navigation is left untouched.
func Copy(mount, rider Navigator, speed float64) bool {
	if mount == nil || rider == nil {
		return false
	}
	return mount.SetPath(rider.Path().Clone(), speed)
}

func horizontalDist(a, b mgl64.Vec3) float64 {
	dx := a.X() - b.X()
	dz := a.Z() - b.Z()
	return math.Sqrt(dx*dx + dz*dz)
}
