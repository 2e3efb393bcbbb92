package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"mobsim/internal/sim/navigation"
)

// GridPathfinder searches walkable columns breadth-first with a fixed
// neighbor order, so identical queries always yield identical paths. A column
// is walkable when its surface is at most one block above or below the
// current one; FindPathDrop allows deeper drops.
type GridPathfinder struct {
	Store    *Store
	MaxNodes int
}

func NewGridPathfinder(s *Store) *GridPathfinder {
	return &GridPathfinder{Store: s, MaxNodes: 4096}
}

type cell struct{ x, z int }

var dirs = [4]cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func (f *GridPathfinder) FindPath(from, to mgl64.Vec3, maxDist float64) (*navigation.Path, bool) {
	return f.search(from, to, maxDist, 1)
}

// FindPathDrop is FindPath with steps down of up to maxDrop blocks. Climbs
// stay limited to one block.
func (f *GridPathfinder) FindPathDrop(from, to mgl64.Vec3, maxDist float64, maxDrop int) (*navigation.Path, bool) {
	if maxDrop < 1 {
		maxDrop = 1
	}
	return f.search(from, to, maxDist, maxDrop)
}

func (f *GridPathfinder) search(from, to mgl64.Vec3, maxDist float64, maxDrop int) (*navigation.Path, bool) {
	if f == nil || f.Store == nil {
		return nil, false
	}
	start := BlockPos(from)
	goal := BlockPos(to)
	if maxDist > 0 && from.Sub(to).Len() > maxDist {
		return nil, false
	}
	limit := f.MaxNodes
	if limit <= 0 {
		limit = 4096
	}
	bound := int(math.Ceil(maxDist)) + 2

	s, g := cell{start.X, start.Z}, cell{goal.X, goal.Z}
	if s == g {
		return navigation.NewPath(f.waypoint(g)), true
	}

	parent := map[cell]cell{s: s}
	queue := []cell{s}
	for head := 0; head < len(queue) && len(parent) < limit; head++ {
		cur := queue[head]
		cy := f.Store.SurfaceY(cur.x, cur.z)
		for _, d := range dirs {
			n := cell{cur.x + d.x, cur.z + d.z}
			if _, seen := parent[n]; seen {
				continue
			}
			if maxDist > 0 && (abs(n.x-s.x) > bound || abs(n.z-s.z) > bound) {
				continue
			}
			if dy := f.Store.SurfaceY(n.x, n.z) - cy; dy > 1 || -dy > maxDrop {
				continue
			}
			parent[n] = cur
			if n == g {
				return f.build(parent, s, g), true
			}
			queue = append(queue, n)
		}
	}
	return nil, false
}

func (f *GridPathfinder) build(parent map[cell]cell, s, g cell) *navigation.Path {
	var rev []cell
	for c := g; c != s; c = parent[c] {
		rev = append(rev, c)
	}
	pts := make([]mgl64.Vec3, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		pts = append(pts, f.waypoint(rev[i]))
	}
	return navigation.NewPath(pts...)
}

func (f *GridPathfinder) waypoint(c cell) mgl64.Vec3 {
	return Pos{c.x, f.Store.SurfaceY(c.x, c.z), c.z}.Center()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
