// Package behaviors holds the concrete goal and target tasks agents run.
// Every task reads the world through a Sensor and memoizes per-tick queries
// in the agent's perception snapshot.
package behaviors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/attributes"
	"mobsim/internal/sim/tasks"
)

// KindPlayer matches players in target kind lists.
const KindPlayer = "player"

// Sensor is the world as the behaviors see it.
type Sensor interface {
	InWater(a *agent.Agent) bool
	// Candidates lists live entities of the given kinds within radius,
	// nearest first.
	Candidates(a *agent.Agent, kinds []string, radius float64) []agent.Entity
	Lookup(id uuid.UUID) (agent.Entity, bool)
	LineOfSight(a *agent.Agent, e agent.Entity) bool
	// RandomPosition picks a walkable spot within h blocks horizontally and
	// v vertically, or reports false.
	RandomPosition(a *agent.Agent, h, v int) (mgl64.Vec3, bool)
	Attack(a *agent.Agent, e agent.Entity) bool
	Allies(a *agent.Agent, radius float64) []*agent.Agent
}

// Spec configures one behavior of a mob profile. Zero fields take the
// behavior's defaults.
type Spec struct {
	Name       string   `json:"name" yaml:"name"`
	Priority   int      `json:"priority" yaml:"priority"`
	Speed      float64  `json:"speed,omitempty" yaml:"speed,omitempty"`
	Range      float64  `json:"range,omitempty" yaml:"range,omitempty"`
	Chance     float64  `json:"chance,omitempty" yaml:"chance,omitempty"`
	Interval   int      `json:"interval,omitempty" yaml:"interval,omitempty"`
	Kinds      []string `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	CheckSight bool     `json:"check_sight,omitempty" yaml:"check_sight,omitempty"`
	LongMemory bool     `json:"long_memory,omitempty" yaml:"long_memory,omitempty"`
	CallHelp   bool     `json:"call_help,omitempty" yaml:"call_help,omitempty"`
}

// Profile is the behavior list of a mob kind.
type Profile struct {
	Goals   []Spec `json:"goals" yaml:"goals"`
	Targets []Spec `json:"targets" yaml:"targets"`
}

// Names of the behaviors Install understands.
const (
	NameSwim          = "swim"
	NameWander        = "wander"
	NameWatchClosest  = "watch_closest"
	NameLookIdle      = "look_idle"
	NameMeleeAttack   = "melee_attack"
	NameNearestTarget = "nearest_attackable_target"
	NameHurtByTarget  = "hurt_by_target"
)

// Install adds the profile's tasks to a. Unknown names fail the whole
// profile before anything is added.
func Install(a *agent.Agent, p Profile, s Sensor) error {
	type entry struct {
		priority int
		task     tasks.Task
		target   bool
	}
	var out []entry
	for _, sp := range p.Goals {
		t, err := buildGoal(a, sp, s)
		if err != nil {
			return fmt.Errorf("goal %d: %w", sp.Priority, err)
		}
		out = append(out, entry{priority: sp.Priority, task: t})
	}
	for _, sp := range p.Targets {
		t, err := buildTarget(a, sp, s)
		if err != nil {
			return fmt.Errorf("target %d: %w", sp.Priority, err)
		}
		out = append(out, entry{priority: sp.Priority, task: t, target: true})
	}
	for _, e := range out {
		if e.target {
			a.Tasks.AddTargetTask(e.priority, e.task)
		} else {
			a.Tasks.AddTask(e.priority, e.task)
		}
	}
	return nil
}

func buildGoal(a *agent.Agent, sp Spec, s Sensor) (tasks.Task, error) {
	switch sp.Name {
	case NameSwim:
		return NewSwim(a, s), nil
	case NameWander:
		w := NewWander(a, s, sp.Speed)
		if sp.Interval > 0 {
			w.Interval = sp.Interval
		}
		return w, nil
	case NameWatchClosest:
		w := NewWatchClosest(a, s, sp.Range)
		if sp.Chance > 0 {
			w.Chance = float32(sp.Chance)
		}
		return w, nil
	case NameLookIdle:
		return NewLookIdle(a), nil
	case NameMeleeAttack:
		m := NewMeleeAttack(a, s, sp.Speed)
		m.LongMemory = sp.LongMemory
		return m, nil
	}
	return nil, fmt.Errorf("unknown goal behavior %q", sp.Name)
}

func buildTarget(a *agent.Agent, sp Spec, s Sensor) (tasks.Task, error) {
	switch sp.Name {
	case NameNearestTarget:
		n := NewNearestAttackableTarget(a, s, sp.Kinds)
		n.CheckSight = sp.CheckSight
		if sp.Interval > 0 {
			n.Interval = sp.Interval
		}
		return n, nil
	case NameHurtByTarget:
		h := NewHurtByTarget(a, s)
		h.CallHelp = sp.CallHelp
		return h, nil
	}
	return nil, fmt.Errorf("unknown target behavior %q", sp.Name)
}

func canSee(a *agent.Agent, s Sensor, e agent.Entity) bool {
	if e == nil {
		return false
	}
	return a.Senses.CanSee(a.Senses.Tick(), e.EntityID(), func() bool {
		return s.LineOfSight(a, e)
	})
}

// nearest returns the closest live candidate of kinds, optionally requiring
// line of sight. The candidate list is shared by every task that asks the
// same question in the same tick.
func nearest(a *agent.Agent, s Sensor, kinds []string, radius float64, sight bool) (agent.Entity, bool) {
	key := "near:" + strings.Join(kinds, ",") + "@" + strconv.FormatFloat(radius, 'f', -1, 64)
	ids := a.Senses.Nearby(a.Senses.Tick(), key, func() []uuid.UUID {
		var out []uuid.UUID
		for _, e := range s.Candidates(a, kinds, radius) {
			out = append(out, e.EntityID())
		}
		return out
	})
	for _, id := range ids {
		if id == a.ID {
			continue
		}
		e, ok := s.Lookup(id)
		if !ok || !e.Alive() {
			continue
		}
		if sight && !canSee(a, s, e) {
			continue
		}
		return e, true
	}
	return nil, false
}

func followRange(a *agent.Agent) float64 {
	return a.Attributes.Value(attributes.FollowRange)
}

func distSq(a *agent.Agent, e agent.Entity) float64 {
	d := e.Position().Sub(a.Pos)
	return d.Dot(d)
}

func eyeOf(e agent.Entity) mgl64.Vec3 {
	if o, ok := e.(*agent.Agent); ok {
		return o.EyePos()
	}
	return e.Position().Add(mgl64.Vec3{0, 1.62, 0})
}
