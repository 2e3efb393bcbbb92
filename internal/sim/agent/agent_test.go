package agent

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/navigation"
	"mobsim/internal/sim/tasks"
	"mobsim/internal/sim/terrain"
)

type mapCatalog map[string]equipment.Def

func (m mapCatalog) ItemDef(id string) (equipment.Def, bool) {
	d, ok := m[id]
	return d, ok
}

var catalog = mapCatalog{
	"wooden_sword": {Class: equipment.ClassWeapon, Slot: equipment.SlotAuto, AttackDamage: 4, MaxDamage: 59},
	"stone_sword":  {Class: equipment.ClassWeapon, Slot: equipment.SlotAuto, AttackDamage: 5, MaxDamage: 131},
	"iron_sword":   {Class: equipment.ClassWeapon, Slot: equipment.SlotAuto, AttackDamage: 6, MaxDamage: 250},
	"iron_helmet":  {Class: equipment.ClassArmor, Slot: equipment.Head, ArmorReduction: 2, MaxDamage: 165},
	"gold_helmet":  {Class: equipment.ClassArmor, Slot: equipment.Head, ArmorReduction: 2, MaxDamage: 77},
	"lead":         {Class: equipment.ClassOther, Slot: equipment.SlotAuto},
}

type fakeEntity struct {
	id    uuid.UUID
	pos   mgl64.Vec3
	alive bool
}

func newFake(pos mgl64.Vec3) *fakeEntity {
	return &fakeEntity{id: uuid.New(), pos: pos, alive: true}
}

func (f *fakeEntity) EntityID() uuid.UUID   { return f.id }
func (f *fakeEntity) Position() mgl64.Vec3 { return f.pos }
func (f *fakeEntity) Alive() bool          { return f.alive }

type fakeKnot struct {
	fakeEntity
	at terrain.Pos
}

func (k *fakeKnot) KnotPos() terrain.Pos { return k.at }

type fakeWorld struct {
	player   *fakeEntity
	entities map[uuid.UUID]Entity
	knots    map[terrain.Pos]*fakeKnot
	drops    []equipment.Item
}

func newWorld() *fakeWorld {
	return &fakeWorld{entities: map[uuid.UUID]Entity{}, knots: map[terrain.Pos]*fakeKnot{}}
}

func (w *fakeWorld) NearestPlayer(mgl64.Vec3) (Entity, bool) {
	if w.player == nil {
		return nil, false
	}
	return w.player, true
}

func (w *fakeWorld) FindEntity(id uuid.UUID, near mgl64.Vec3, radius float64) (Entity, bool) {
	e, ok := w.entities[id]
	if !ok || e.Position().Sub(near).Len() > radius {
		return nil, false
	}
	return e, true
}

func (w *fakeWorld) LeashKnot(p terrain.Pos) Entity {
	if k := w.knots[p]; k != nil {
		return k
	}
	k := &fakeKnot{fakeEntity: fakeEntity{id: uuid.New(), pos: p.Center(), alive: true}, at: p}
	w.knots[p] = k
	return k
}

func (w *fakeWorld) DropItem(_ mgl64.Vec3, it equipment.Item) { w.drops = append(w.drops, it) }

func newAgent(t *testing.T, hooks Hooks) *Agent {
	t.Helper()
	return New(Config{
		Kind:          "zombie",
		Pos:           mgl64.Vec3{0, 64, 0},
		Seed:          1,
		CanPickUpLoot: true,
		Catalog:       catalog,
		Hooks:         hooks,
	})
}

func TestRequestTarget_SameTargetIsNoop(t *testing.T) {
	calls := 0
	a := newAgent(t, Hooks{AuthorizeTarget: func(*Agent, Entity, Reason) (Entity, bool) {
		calls++
		return nil, true
	}})
	assert.False(t, a.RequestTarget(nil, ReasonUnknown))

	p := newFake(mgl64.Vec3{3, 64, 0})
	a.hooks.AuthorizeTarget = nil
	require.True(t, a.RequestTarget(p, ReasonClosest))
	a.hooks.AuthorizeTarget = func(_ *Agent, c Entity, _ Reason) (Entity, bool) { calls++; return c, true }

	assert.False(t, a.RequestTarget(p, ReasonUnknown))
	assert.Same(t, p, a.Target())
	assert.Equal(t, 0, calls)
}

func TestRequestTarget_ReclassifiesUnknownClear(t *testing.T) {
	var got []Reason
	hooks := Hooks{AuthorizeTarget: func(_ *Agent, c Entity, r Reason) (Entity, bool) {
		got = append(got, r)
		return c, true
	}}
	a := newAgent(t, hooks)
	live := newFake(mgl64.Vec3{})
	require.True(t, a.RequestTarget(live, ReasonClosest))
	require.True(t, a.RequestTarget(nil, ReasonUnknown))

	dead := newFake(mgl64.Vec3{})
	require.True(t, a.RequestTarget(dead, ReasonClosest))
	dead.alive = false
	require.True(t, a.RequestTarget(nil, ReasonUnknown))

	assert.Equal(t, []Reason{ReasonClosest, ReasonForgot, ReasonClosest, ReasonDied}, got)
	assert.Nil(t, a.Target())
}

func TestRequestTarget_WarnsWhenUnknownReachesHook(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := New(Config{Kind: "zombie", Log: zap.New(core), Hooks: Hooks{
		AuthorizeTarget: func(_ *Agent, c Entity, _ Reason) (Entity, bool) { return c, true },
	}})
	p := newFake(mgl64.Vec3{})
	require.True(t, a.RequestTarget(p, ReasonUnknown))
	assert.Equal(t, 1, logs.FilterMessage("unknown target change reason").Len())
	assert.Same(t, p, a.Target())
}

func TestRequestTarget_HookVetoAndSubstitute(t *testing.T) {
	decoy := newFake(mgl64.Vec3{9, 64, 9})
	veto := true
	var changed []Entity
	a := newAgent(t, Hooks{
		AuthorizeTarget: func(_ *Agent, c Entity, _ Reason) (Entity, bool) {
			if veto {
				return nil, false
			}
			return decoy, true
		},
		TargetChanged: func(_ *Agent, _, to Entity, _ Reason) { changed = append(changed, to) },
	})
	p := newFake(mgl64.Vec3{})
	assert.False(t, a.RequestTarget(p, ReasonClosest))
	assert.Nil(t, a.Target())

	veto = false
	assert.True(t, a.RequestTarget(p, ReasonClosest))
	assert.Same(t, decoy, a.Target())
	require.Len(t, changed, 1)
	assert.Same(t, decoy, changed[0])
}

func TestDespawn_PersistentNeverDespawns(t *testing.T) {
	w := newWorld()
	w.player = newFake(mgl64.Vec3{5000, 64, 0})
	a := newAgent(t, Hooks{CanDespawn: func(*Agent) Decision { return DespawnAllow }})
	a.PersistenceRequired = true
	for tick := uint64(0); tick < 5000; tick++ {
		a.UpdateActionState(Env{Tick: tick, World: w})
		require.True(t, a.Alive())
	}
	assert.Equal(t, 0, a.IdleTicks)
}

func TestDespawn_DistanceRule(t *testing.T) {
	w := newWorld()
	a := newAgent(t, Hooks{})

	w.player = newFake(mgl64.Vec3{10, 64, 0})
	a.IdleTicks = 500
	a.UpdateActionState(Env{Tick: 1, World: w})
	assert.True(t, a.Alive())
	assert.Equal(t, 0, a.IdleTicks)

	w.player = newFake(mgl64.Vec3{0, 64, 129})
	a.UpdateActionState(Env{Tick: 2, World: w})
	removed, why := a.Removed()
	assert.True(t, removed)
	assert.Equal(t, "despawn:far", why)

	// No player in range of the query: nothing happens.
	b := newAgent(t, Hooks{})
	b.UpdateActionState(Env{Tick: 1, World: newWorld()})
	assert.True(t, b.Alive())
	assert.Equal(t, 1, b.IdleTicks)
}

func TestDespawn_HookIsAuthoritative(t *testing.T) {
	w := newWorld()
	w.player = newFake(mgl64.Vec3{0, 64, 500})
	decision := DespawnDeny
	sampled := 0
	a := newAgent(t, Hooks{CanDespawn: func(*Agent) Decision { sampled++; return decision }})

	a.IdleTicks = 30
	a.UpdateActionState(Env{Tick: 1, World: w})
	assert.True(t, a.Alive(), "deny must skip the distance rule")
	assert.Equal(t, 0, a.IdleTicks)
	assert.Equal(t, 1, sampled)

	w.player = newFake(mgl64.Vec3{1, 64, 0})
	decision = DespawnAllow
	a.IdleTicks = 62
	a.UpdateActionState(Env{Tick: 2, World: w})
	removed, why := a.Removed()
	assert.True(t, removed)
	assert.Equal(t, "despawn:policy", why)

	// Off-sample ticks never consult the hook.
	b := newAgent(t, Hooks{CanDespawn: func(*Agent) Decision { sampled++; return DespawnAllow }})
	before := sampled
	b.IdleTicks = 3
	b.UpdateActionState(Env{Tick: 3, World: w})
	assert.Equal(t, before, sampled)
	assert.True(t, b.Alive())
}

func TestDespawn_DefaultFallsBackToDistance(t *testing.T) {
	w := newWorld()
	w.player = newFake(mgl64.Vec3{200, 64, 0})
	a := newAgent(t, Hooks{CanDespawn: func(*Agent) Decision { return DespawnDefault }})
	a.IdleTicks = 30
	a.UpdateActionState(Env{Tick: 1, World: w})
	removed, why := a.Removed()
	assert.True(t, removed)
	assert.Equal(t, "despawn:far", why)
}

func TestUpdateActionState_AIDisabledSkipsTasks(t *testing.T) {
	ticks := 0
	a := newAgent(t, Hooks{})
	a.Tasks.AddTask(1, &tasks.Func{Label: "count", Mask: tasks.Flags(tasks.FlagMove), StartIf: func() bool { return true }, OnTick: func() { ticks++ }})

	a.AIDisabled = true
	a.UpdateActionState(Env{Tick: 1})
	assert.Equal(t, 0, ticks)
	assert.Equal(t, 1, a.IdleTicks)

	a.AIDisabled = false
	a.FromSpawner = true
	a.UpdateActionState(Env{Tick: 2})
	assert.Equal(t, 0, ticks)

	a.FromSpawner = false
	a.UpdateActionState(Env{Tick: 3})
	assert.Equal(t, 1, ticks)
	assert.Equal(t, uint64(3), a.Senses.Tick())
}

func TestUpdateActionState_NavigationDrivesMovement(t *testing.T) {
	a := newAgent(t, Hooks{})
	a.Nav.SetPath(navigation.NewPath(mgl64.Vec3{10, 64, 0}), 1)
	a.UpdateActionState(Env{Tick: 1})
	assert.InDelta(t, 0.25, a.Pos.X(), 1e-9)
	assert.InDelta(t, -90, a.Yaw, 1e-9)
}

func TestUpdateActionState_MountCopiesRiderPath(t *testing.T) {
	env := Env{Tick: 1}
	rider := newAgent(t, Hooks{})
	mount := New(Config{Kind: "horse", Pos: mgl64.Vec3{0, 64, 0}})
	require.True(t, rider.StartRiding(env, mount))

	rider.Nav.SetPath(navigation.NewPath(mgl64.Vec3{20, 64, 0}, mgl64.Vec3{40, 64, 0}), 1)
	rider.UpdateActionState(env)

	require.NotNil(t, mount.Nav.Path())
	assert.Equal(t, rider.Nav.Path().Points(), mount.Nav.Path().Points())
	assert.Equal(t, 1.5, mount.Nav.Speed())
	assert.True(t, mount.Move.Active)
	assert.Equal(t, mgl64.Vec3{20, 64, 0}, mount.Move.Target)
}

func TestRefreshControlFlags(t *testing.T) {
	mount := newAgent(t, Hooks{})
	rider := newAgent(t, Hooks{})
	require.True(t, rider.StartRiding(Env{}, mount))

	mount.RefreshControlFlags()
	g := mount.Tasks.Goals
	assert.False(t, g.ControlFlagEnabled(tasks.FlagMove))
	assert.False(t, g.ControlFlagEnabled(tasks.FlagLook))
	assert.False(t, g.ControlFlagEnabled(tasks.FlagJump))

	rider.Dismount()
	mount.RefreshControlFlags()
	assert.True(t, g.ControlFlagEnabled(tasks.FlagMove))
	assert.True(t, g.ControlFlagEnabled(tasks.FlagLook))
	assert.True(t, g.ControlFlagEnabled(tasks.FlagJump))

	// BaseTick only refreshes every fifth tick.
	require.True(t, rider.StartRiding(Env{}, mount))
	for i := 0; i < ControlRefreshTicks-1; i++ {
		mount.BaseTick(Env{})
	}
	assert.True(t, g.ControlFlagEnabled(tasks.FlagJump))
	mount.BaseTick(Env{})
	assert.False(t, g.ControlFlagEnabled(tasks.FlagJump))
}

func TestUpdateActionState_SetsDropBudget(t *testing.T) {
	a := newAgent(t, Hooks{})
	g := navigation.NewGround(nil, 16)
	a.Nav = g
	a.UpdateActionState(Env{Tick: 1, Difficulty: 2})
	assert.Equal(t, 3, g.MaxDrop)

	require.True(t, a.RequestTarget(newFake(mgl64.Vec3{}), ReasonClosest))
	a.UpdateActionState(Env{Tick: 2, Difficulty: 3})
	assert.Equal(t, 16, g.MaxDrop)
}

func TestBaseTick_RiderFollowsMount(t *testing.T) {
	mount := New(Config{Kind: "chicken", Pos: mgl64.Vec3{3, 64, 4}})
	rider := newAgent(t, Hooks{})
	require.True(t, rider.StartRiding(Env{}, mount))

	rider.Nav.SetPath(navigation.NewPath(mgl64.Vec3{20, 64, 0}), 1)
	rider.UpdateActionState(Env{Tick: 1})
	assert.False(t, rider.Move.Active)
	mount.Move.apply(mount)
	rider.BaseTick(Env{Tick: 2})
	assert.Equal(t, mount.Pos, rider.Pos)

	mount.Health = 0
	rider.BaseTick(Env{Tick: 3})
	assert.Nil(t, rider.Mount)
	assert.Nil(t, mount.Rider)
}

func TestRotation(t *testing.T) {
	assert.InDelta(t, -170, WrapDegrees(190), 1e-9)
	assert.InDelta(t, 10, WrapDegrees(370), 1e-9)
	assert.InDelta(t, 190, UpdateRotation(170, -170, 30), 1e-9)
	assert.InDelta(t, 5, UpdateRotation(0, 5, 30), 1e-9)
	assert.InDelta(t, -30, UpdateRotation(0, -100, 30), 1e-9)

	a := newAgent(t, Hooks{})
	other := New(Config{Kind: "pig", Pos: mgl64.Vec3{50, 64, 0}})
	a.FaceEntity(other, 10, 40)
	assert.InDelta(t, -10, a.Yaw, 1e-9)
	assert.InDelta(t, 0, a.Pitch, 1e-9)
}

func TestMaxFallHeight(t *testing.T) {
	a := newAgent(t, Hooks{})
	assert.Equal(t, 3, a.MaxFallHeight(3))
	require.True(t, a.RequestTarget(newFake(mgl64.Vec3{}), ReasonClosest))
	assert.Equal(t, 16, a.MaxFallHeight(3))
	assert.Equal(t, 8, a.MaxFallHeight(1))
	a.Health = 2
	assert.Equal(t, 3, a.MaxFallHeight(1))
}

func TestPickUp_EmptyHandScenario(t *testing.T) {
	w := newWorld()
	a := newAgent(t, Hooks{})
	require.Equal(t, equipment.DefaultDropChance, a.Equipment.DropChance(equipment.MainHand))

	up := a.Equipment.EvaluateUpgrade(catalog, equipment.NewItem("stone_sword", 1), equipment.MainHand)
	assert.True(t, up.Accept)
	assert.Equal(t, float32(0.085), up.ReplaceChance)

	require.True(t, a.PickUp(Env{World: w}, equipment.NewItem("stone_sword", 1)))
	assert.Equal(t, "stone_sword", a.Equipment.Get(equipment.MainHand).ID)
	assert.Equal(t, equipment.GuaranteedDropChance, a.Equipment.DropChance(equipment.MainHand))
	assert.True(t, a.PersistenceRequired)
	assert.Empty(t, w.drops)
}

func TestPickUp_DisplacedItemDropsAtSlotChance(t *testing.T) {
	w := newWorld()
	a := newAgent(t, Hooks{})
	a.Equipment.Set(equipment.MainHand, equipment.NewItem("wooden_sword", 1))
	a.Equipment.SetDropChance(equipment.MainHand, 2)

	require.True(t, a.PickUp(Env{World: w}, equipment.NewItem("iron_sword", 1)))
	require.Len(t, w.drops, 1)
	assert.Equal(t, "wooden_sword", w.drops[0].ID)

	// A weaker sword is refused.
	assert.False(t, a.PickUp(Env{World: w}, equipment.NewItem("stone_sword", 1)))
}

func TestPickUp_HookAndFlag(t *testing.T) {
	a := newAgent(t, Hooks{AuthorizePickup: func(_ *Agent, _ equipment.Item, allowed bool) bool { return false }})
	assert.False(t, a.PickUp(Env{}, equipment.NewItem("iron_sword", 1)))
	assert.True(t, a.Equipment.Get(equipment.MainHand).IsEmpty())
	assert.False(t, a.PersistenceRequired)

	b := newAgent(t, Hooks{})
	b.CanPickUpLoot = false
	assert.False(t, b.PickUp(Env{}, equipment.NewItem("iron_sword", 1)))

	c := newAgent(t, Hooks{})
	c.Equipment.Set(equipment.Head, equipment.Item{ID: "gold_helmet", Count: 1, Enchantments: []string{equipment.EnchantBindingCurse}})
	assert.False(t, c.PickUp(Env{}, equipment.Item{ID: "iron_helmet", Count: 1, Meta: 3}))
}

type seededTables struct{}

func (seededTables) Generate(name string, rng *rand.Rand, looting int) ([]equipment.Item, bool) {
	if name != "zombie" {
		return nil, false
	}
	return []equipment.Item{equipment.NewItem("rotten_flesh", 1+rng.Intn(5)+looting)}, true
}

func TestDie_SeededLootIsReproducible(t *testing.T) {
	roll := func() []equipment.Item {
		w := newWorld()
		a := newAgent(t, Hooks{})
		a.DeathLootTable = "zombie"
		a.DeathLootTableSeed = 1234
		a.Equipment.Set(equipment.MainHand, equipment.NewItem("iron_sword", 1))
		a.Equipment.SetDropChance(equipment.MainHand, 2)
		drops := a.Die(Env{World: w}, false, 0, seededTables{})
		require.Equal(t, drops, w.drops)
		assert.True(t, a.Dead())
		assert.False(t, a.Alive())
		assert.Empty(t, a.DeathLootTable)
		return drops
	}
	first := roll()
	second := roll()
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "rotten_flesh", first[0].ID)
	assert.Equal(t, "iron_sword", first[1].ID)
}

func TestDamage(t *testing.T) {
	a := newAgent(t, Hooks{})
	src := newFake(mgl64.Vec3{})
	assert.False(t, a.Damage(7, 5, src))
	assert.InDelta(t, 15, a.Health, 1e-9)
	who, at := a.LastAttacker()
	assert.Same(t, src, who)
	assert.Equal(t, uint64(7), at)
	assert.True(t, a.Damage(8, 100, src))
}

func TestOnInitialSpawn_Deterministic(t *testing.T) {
	a := newAgent(t, Hooks{})
	b := newAgent(t, Hooks{})
	a.OnInitialSpawn()
	b.OnInitialSpawn()
	assert.Equal(t, a.WriteDocument().Attributes, b.WriteDocument().Attributes)
	assert.Equal(t, a.LeftHanded, b.LeftHanded)
	assert.NotEqual(t, 16.0, a.Attributes.Value("generic.followRange"))
}

func TestDropReference(t *testing.T) {
	a := newAgent(t, Hooks{})
	p := newFake(mgl64.Vec3{})
	require.True(t, a.RequestTarget(p, ReasonClosest))
	a.Damage(1, 1, p)
	a.DropReference(p.id)
	assert.Nil(t, a.Target())
	who, _ := a.LastAttacker()
	assert.Nil(t, who)
}
