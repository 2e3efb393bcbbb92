package agent

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/sim/attributes"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/navigation"
	"mobsim/internal/sim/perception"
	"mobsim/internal/sim/tasks"
)

// Entity is the capability every tick participant exposes: agents, players,
// leash knots.
type Entity interface {
	EntityID() uuid.UUID
	Position() mgl64.Vec3
	Alive() bool
}

// Params holds the per-agent tuning the controller reads every tick.
type Params struct {
	DespawnFarRadius  float64
	DespawnNearRadius float64
	DespawnIdleTicks  int
	DespawnOdds       int
	// HookSampleMask selects the ticks on which CanDespawn is consulted:
	// idle&mask == mask.
	HookSampleMask int

	FaceSpeedHorizontal float64
	FaceSpeedVertical   float64
	MountSpeed          float64
	LeashRecreateRadius float64
	EyeHeight           float64
}

func DefaultParams() Params {
	return Params{
		DespawnFarRadius:    128,
		DespawnNearRadius:   32,
		DespawnIdleTicks:    600,
		DespawnOdds:         800,
		HookSampleMask:      31,
		FaceSpeedHorizontal: 10,
		FaceSpeedVertical:   40,
		MountSpeed:          1.5,
		LeashRecreateRadius: 10,
		EyeHeight:           1.62,
	}
}

func (p *Params) applyDefaults() {
	d := DefaultParams()
	if p.DespawnFarRadius <= 0 {
		p.DespawnFarRadius = d.DespawnFarRadius
	}
	if p.DespawnNearRadius <= 0 {
		p.DespawnNearRadius = d.DespawnNearRadius
	}
	if p.DespawnIdleTicks <= 0 {
		p.DespawnIdleTicks = d.DespawnIdleTicks
	}
	if p.DespawnOdds <= 0 {
		p.DespawnOdds = d.DespawnOdds
	}
	if p.HookSampleMask <= 0 {
		p.HookSampleMask = d.HookSampleMask
	}
	if p.FaceSpeedHorizontal <= 0 {
		p.FaceSpeedHorizontal = d.FaceSpeedHorizontal
	}
	if p.FaceSpeedVertical <= 0 {
		p.FaceSpeedVertical = d.FaceSpeedVertical
	}
	if p.MountSpeed <= 0 {
		p.MountSpeed = d.MountSpeed
	}
	if p.LeashRecreateRadius <= 0 {
		p.LeashRecreateRadius = d.LeashRecreateRadius
	}
	if p.EyeHeight <= 0 {
		p.EyeHeight = d.EyeHeight
	}
}

type Config struct {
	ID   uuid.UUID
	Kind string
	Pos  mgl64.Vec3
	Seed int64

	// Hostile agents cannot be leashed.
	Hostile       bool
	CanPickUpLoot bool
	LootTable     string
	Experience    int

	Catalog   equipment.Catalog
	Navigator navigation.Navigator
	Hooks     Hooks
	Params    Params
	Log       *zap.Logger
}

// Agent is one autonomous mob. It is owned by the world loop goroutine.
type Agent struct {
	ID     uuid.UUID
	Kind   string
	Pos    mgl64.Vec3
	Yaw    float64
	Pitch  float64
	Health float64

	AIDisabled          bool
	LeftHanded          bool
	FromSpawner         bool
	PersistenceRequired bool
	CanPickUpLoot       bool
	Hostile             bool
	Jumping             bool

	IdleTicks    int
	TicksExisted uint64

	// LootTable is the kind's default table; DeathLootTable overrides it.
	LootTable          string
	DeathLootTable     string
	DeathLootTableSeed int64

	// Experience is the base a player kill yields.
	Experience int

	Attributes *attributes.Store
	Equipment  *equipment.Slots
	Tasks      tasks.Pair
	Nav        navigation.Navigator
	Senses     *perception.Snapshot

	Move MoveControl
	Look LookControl
	Jump JumpControl

	// Mount is the agent being ridden; Rider is the agent controlling this one.
	Mount *Agent
	Rider *Agent

	target         Entity
	lastAttacker   Entity
	lastAttackTick uint64

	leash leashState

	dead      bool
	removed   bool
	removedBy string

	hooks  Hooks
	params Params
	cat    equipment.Catalog
	rng    *rand.Rand
	log    *zap.Logger
}

func New(cfg Config) *Agent {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Navigator == nil {
		cfg.Navigator = navigation.NewGround(nil, 16)
	}
	cfg.Params.applyDefaults()

	a := &Agent{
		ID:            cfg.ID,
		Kind:          cfg.Kind,
		Pos:           cfg.Pos,
		Hostile:       cfg.Hostile,
		CanPickUpLoot: cfg.CanPickUpLoot,
		LootTable:     cfg.LootTable,
		Experience:    cfg.Experience,
		Attributes:    attributes.NewStore(),
		Equipment:     equipment.NewSlots(),
		Nav:           cfg.Navigator,
		Senses:        perception.NewSnapshot(),
		hooks:         cfg.Hooks,
		params:        cfg.Params,
		cat:           cfg.Catalog,
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		log:           cfg.Log.With(zap.String("agent", cfg.ID.String()), zap.String("kind", cfg.Kind)),
	}
	a.Attributes.RegisterDefaults()
	a.Attributes.Register(attributes.AttackDamage, 2, 0, 2048)
	a.Health = a.MaxHealth()
	a.Tasks = tasks.NewPair(a.log)
	return a
}

func (a *Agent) EntityID() uuid.UUID {
	if a == nil {
		return uuid.Nil
	}
	return a.ID
}

func (a *Agent) Position() mgl64.Vec3 { return a.Pos }

// Alive reports whether the agent is still in the world and not dead.
func (a *Agent) Alive() bool { return a != nil && !a.dead && !a.removed }

func (a *Agent) Dead() bool { return a.dead }

// Removed reports whether the agent has left the world; reason says why.
func (a *Agent) Removed() (bool, string) { return a.removed, a.removedBy }

func (a *Agent) remove(reason string) {
	if a.removed {
		return
	}
	a.removed = true
	a.removedBy = reason
	a.Tasks.Goals.StopAll()
	a.Tasks.Targets.StopAll()
	a.Nav.Clear()
	a.log.Debug("agent removed", zap.String("reason", reason))
}

func (a *Agent) Params() Params             { return a.params }
func (a *Agent) Catalog() equipment.Catalog { return a.cat }
func (a *Agent) Rand() *rand.Rand           { return a.rng }
func (a *Agent) Logger() *zap.Logger        { return a.log }

func (a *Agent) MaxHealth() float64 { return a.Attributes.Value(attributes.MaxHealth) }

// EyePos is the point perception and looks are measured from.
func (a *Agent) EyePos() mgl64.Vec3 {
	return a.Pos.Add(mgl64.Vec3{0, a.params.EyeHeight, 0})
}

func (a *Agent) Target() Entity { return a.target }

func (a *Agent) LastAttacker() (Entity, uint64) { return a.lastAttacker, a.lastAttackTick }

// EnablePersistence marks the agent as never despawning.
func (a *Agent) EnablePersistence() { a.PersistenceRequired = true }

// DropReference forgets every link to id. The world calls it when id leaves,
// so agents never hold on to removed entities.
func (a *Agent) DropReference(id uuid.UUID) {
	if a.target != nil && a.target.EntityID() == id {
		a.target = nil
	}
	if a.lastAttacker != nil && a.lastAttacker.EntityID() == id {
		a.lastAttacker = nil
	}
	if a.Mount != nil && a.Mount.ID == id {
		a.Mount = nil
	}
	if a.Rider != nil && a.Rider.ID == id {
		a.Rider = nil
	}
}

// StartRiding mounts m. A leashed agent drops its leash when it mounts.
func (a *Agent) StartRiding(env Env, m *Agent) bool {
	if m == nil || m == a || !m.Alive() || m.Rider != nil {
		return false
	}
	a.Mount = m
	m.Rider = a
	if a.leash.leashed {
		a.ClearLeash(env, true)
	}
	return true
}

func (a *Agent) Dismount() {
	if a.Mount != nil {
		a.Mount.Rider = nil
		a.Mount = nil
	}
}

// MaxFallHeight is how far the agent will willingly drop. Chasing a target
// makes it braver the healthier it is.
func (a *Agent) MaxFallHeight(difficulty int) int {
	if a.target == nil {
		return 3
	}
	i := int(a.Health - a.MaxHealth()*0.33)
	i -= (3 - difficulty) * 4
	if i < 0 {
		i = 0
	}
	return i + 3
}

// Damage applies armor-reduced damage from source and reports whether the
// hit was lethal. The caller handles death.
func (a *Agent) Damage(tick uint64, amount float64, source Entity) bool {
	if !a.Alive() || amount <= 0 {
		return false
	}
	armor := float64(a.Equipment.TotalArmor(a.cat)) + a.Attributes.Value(attributes.Armor)
	if armor > 20 {
		armor = 20
	}
	a.Health -= amount * (1 - armor/25)
	if source != nil {
		a.lastAttacker = source
		a.lastAttackTick = tick
	}
	a.IdleTicks = 0
	return a.Health <= 0
}

// OnInitialSpawn applies the random follow-range bonus and picks handedness.
func (a *Agent) OnInitialSpawn() {
	id, err := uuid.NewRandomFromReader(a.rng)
	if err != nil {
		id = uuid.New()
	}
	if inst := a.Attributes.Get(attributes.FollowRange); inst != nil {
		inst.Apply(attributes.Modifier{
			ID:     id,
			Name:   "Random spawn bonus",
			Amount: a.rng.NormFloat64() * 0.05,
			Op:     attributes.OpMultiplyBase,
		})
	}
	a.LeftHanded = a.rng.Float32() < 0.05
}
