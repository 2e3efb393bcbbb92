package agent

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"mobsim/internal/sim/attributes"
)

// MoveControl holds the position the agent wants to walk to this tick.
type MoveControl struct {
	Target mgl64.Vec3
	Speed  float64
	Active bool
}

func (m *MoveControl) SetWantedPosition(p mgl64.Vec3, speed float64) {
	m.Target = p
	m.Speed = speed
	m.Active = true
}

// apply steps the agent toward the wanted position without overshooting and
// turns the body at most 90 degrees toward the direction of travel.
func (m *MoveControl) apply(a *Agent) {
	if !m.Active {
		return
	}
	m.Active = false
	d := m.Target.Sub(a.Pos)
	flat := mgl64.Vec3{d.X(), 0, d.Z()}
	dist := flat.Len()
	if dist < 1e-7 {
		a.Pos = mgl64.Vec3{a.Pos.X(), m.Target.Y(), a.Pos.Z()}
		return
	}
	step := m.Speed * a.Attributes.Value(attributes.MovementSpeed)
	if step <= 0 {
		return
	}
	if step > dist {
		step = dist
	}
	a.Pos = a.Pos.Add(flat.Mul(step / dist))
	if math.Abs(d.Y()) <= 1 {
		a.Pos = mgl64.Vec3{a.Pos.X(), m.Target.Y(), a.Pos.Z()}
	}
	if d.Y() > 0 {
		a.Jump.Jumping = true
	}
	want := math.Atan2(d.Z(), d.X())*180/math.Pi - 90
	a.Yaw = UpdateRotation(a.Yaw, want, 90)
}

// LookControl turns the head toward a point at bounded rates.
type LookControl struct {
	Target    mgl64.Vec3
	YawRate   float64
	PitchRate float64
	Active    bool
}

func (l *LookControl) SetLookPosition(p mgl64.Vec3, yawRate, pitchRate float64) {
	l.Target = p
	l.YawRate = yawRate
	l.PitchRate = pitchRate
	l.Active = true
}

func (l *LookControl) apply(a *Agent) {
	if !l.Active {
		return
	}
	l.Active = false
	a.turnToward(l.Target, l.YawRate, l.PitchRate)
}

type JumpControl struct {
	Jumping bool
}

func (j *JumpControl) SetJumping() { j.Jumping = true }

func (j *JumpControl) apply(a *Agent) {
	a.Jumping = j.Jumping
	j.Jumping = false
}

// FaceEntity turns the agent toward e, bounded by the given per-call deltas.
func (a *Agent) FaceEntity(e Entity, maxYaw, maxPitch float64) {
	if isNil(e) {
		return
	}
	p := e.Position()
	if o, ok := e.(*Agent); ok {
		p = o.EyePos()
	}
	a.turnToward(p, maxYaw, maxPitch)
}

func (a *Agent) turnToward(p mgl64.Vec3, maxYaw, maxPitch float64) {
	eye := a.EyePos()
	dx := p.X() - eye.X()
	dy := p.Y() - eye.Y()
	dz := p.Z() - eye.Z()
	h := math.Sqrt(dx*dx + dz*dz)
	yaw := math.Atan2(dz, dx)*180/math.Pi - 90
	pitch := -math.Atan2(dy, h) * 180 / math.Pi
	a.Pitch = UpdateRotation(a.Pitch, pitch, maxPitch)
	a.Yaw = UpdateRotation(a.Yaw, yaw, maxYaw)
}

// UpdateRotation moves angle toward target by the shortest arc, at most
// maxStep degrees.
func UpdateRotation(angle, target, maxStep float64) float64 {
	d := WrapDegrees(target - angle)
	if d > maxStep {
		d = maxStep
	}
	if d < -maxStep {
		d = -maxStep
	}
	return angle + d
}

// WrapDegrees maps v into [-180, 180).
func WrapDegrees(v float64) float64 {
	v = math.Mod(v, 360)
	if v >= 180 {
		v -= 360
	}
	if v < -180 {
		v += 360
	}
	return v
}
