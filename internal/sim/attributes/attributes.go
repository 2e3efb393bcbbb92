package attributes

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

type Name string

const (
	MaxHealth           Name = "generic.maxHealth"
	MovementSpeed       Name = "generic.movementSpeed"
	FollowRange         Name = "generic.followRange"
	AttackDamage        Name = "generic.attackDamage"
	Armor               Name = "generic.armor"
	KnockbackResistance Name = "generic.knockbackResistance"
)

// Operation controls how a modifier folds into the attribute value.
// Operations are applied in ascending order: all adds, then all
// base multipliers, then all total multipliers.
type Operation int

const (
	OpAdd Operation = iota
	OpMultiplyBase
	OpMultiplyTotal
)

type Modifier struct {
	ID     uuid.UUID
	Name   string
	Amount float64
	Op     Operation
}

type Instance struct {
	name Name
	base float64
	min  float64
	max  float64

	mods  map[uuid.UUID]Modifier
	seq   map[uuid.UUID]int
	next  int
	cache float64
	dirty bool
}

func (i *Instance) Name() Name    { return i.name }
func (i *Instance) Base() float64 { return i.base }

func (i *Instance) SetBase(v float64) {
	if math.IsNaN(v) {
		return
	}
	i.base = v
	i.dirty = true
}

// Apply installs m, replacing any modifier with the same ID.
func (i *Instance) Apply(m Modifier) {
	if m.Op < OpAdd || m.Op > OpMultiplyTotal || math.IsNaN(m.Amount) {
		return
	}
	if _, ok := i.mods[m.ID]; !ok {
		i.seq[m.ID] = i.next
		i.next++
	}
	i.mods[m.ID] = m
	i.dirty = true
}

func (i *Instance) Remove(id uuid.UUID) bool {
	if _, ok := i.mods[id]; !ok {
		return false
	}
	delete(i.mods, id)
	delete(i.seq, id)
	i.dirty = true
	return true
}

func (i *Instance) Has(id uuid.UUID) bool {
	_, ok := i.mods[id]
	return ok
}

// Modifiers returns the installed modifiers in application order.
func (i *Instance) Modifiers() []Modifier {
	out := make([]Modifier, 0, len(i.mods))
	for _, m := range i.mods {
		out = append(out, m)
	}
	sort.Slice(out, func(a, b int) bool { return i.seq[out[a].ID] < i.seq[out[b].ID] })
	return out
}

func (i *Instance) Value() float64 {
	if !i.dirty {
		return i.cache
	}
	mods := i.Modifiers()
	v := i.base
	for _, m := range mods {
		if m.Op == OpAdd {
			v += m.Amount
		}
	}
	total := v
	for _, m := range mods {
		if m.Op == OpMultiplyBase {
			total += v * m.Amount
		}
	}
	for _, m := range mods {
		if m.Op == OpMultiplyTotal {
			total *= 1 + m.Amount
		}
	}
	i.cache = clamp(total, i.min, i.max)
	i.dirty = false
	return i.cache
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Store holds the attribute instances of one agent.
type Store struct {
	m map[Name]*Instance
}

func NewStore() *Store {
	return &Store{m: map[Name]*Instance{}}
}

// Register creates the attribute if missing. An existing instance keeps its
// modifiers and only has its base and bounds updated.
func (s *Store) Register(name Name, base, min, max float64) *Instance {
	if min > max {
		min, max = max, min
	}
	if inst, ok := s.m[name]; ok {
		inst.min, inst.max = min, max
		inst.SetBase(base)
		return inst
	}
	inst := &Instance{
		name:  name,
		base:  base,
		min:   min,
		max:   max,
		mods:  map[uuid.UUID]Modifier{},
		seq:   map[uuid.UUID]int{},
		dirty: true,
	}
	s.m[name] = inst
	return inst
}

func (s *Store) Get(name Name) *Instance {
	if s == nil {
		return nil
	}
	return s.m[name]
}

// Value returns 0 for attributes that were never registered.
func (s *Store) Value(name Name) float64 {
	inst := s.Get(name)
	if inst == nil {
		return 0
	}
	return inst.Value()
}

func (s *Store) Names() []Name {
	out := make([]Name, 0, len(s.m))
	for n := range s.m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterDefaults installs the attributes every living agent carries.
func (s *Store) RegisterDefaults() {
	s.Register(MaxHealth, 20, 0, 1024)
	s.Register(MovementSpeed, 0.25, 0, 1024)
	s.Register(FollowRange, 16, 0, 2048)
	s.Register(Armor, 0, 0, 30)
	s.Register(KnockbackResistance, 0, 0, 1)
}
