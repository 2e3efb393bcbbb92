package navigation

import "github.com/go-gl/mathgl/mgl64"

// Path is an ordered list of waypoints with a cursor on the next one to reach.
type Path struct {
	points []mgl64.Vec3
	cursor int
}

func NewPath(points ...mgl64.Vec3) *Path {
	return &Path{points: append([]mgl64.Vec3(nil), points...)}
}

func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.points)
}

// Done reports whether every waypoint has been consumed. A nil path is done.
func (p *Path) Done() bool { return p == nil || p.cursor >= len(p.points) }

// Current returns the next waypoint; ok is false once the path is done.
func (p *Path) Current() (mgl64.Vec3, bool) {
	if p.Done() {
		return mgl64.Vec3{}, false
	}
	return p.points[p.cursor], true
}

func (p *Path) Advance() {
	if !p.Done() {
		p.cursor++
	}
}

func (p *Path) Index() int {
	if p == nil {
		return 0
	}
	return p.cursor
}

// Final returns the last waypoint of the path.
func (p *Path) Final() (mgl64.Vec3, bool) {
	if p.Len() == 0 {
		return mgl64.Vec3{}, false
	}
	return p.points[len(p.points)-1], true
}

func (p *Path) Points() []mgl64.Vec3 {
	if p == nil {
		return nil
	}
	return append([]mgl64.Vec3(nil), p.points...)
}

// Clone returns an independent copy with the same cursor.
func (p *Path) Clone() *Path {
	if p == nil {
		return nil
	}
	return &Path{points: p.Points(), cursor: p.cursor}
}
