package world

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/catalogs"
	"mobsim/internal/sim/equipment"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not find repo root from %s", dir)
		}
		dir = parent
	}
}

func loadCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join(findRepoRoot(t), "configs"))
	require.NoError(t, err)
	return cats
}

func newTestWorld(t *testing.T, mut func(*WorldConfig)) *World {
	t.Helper()
	cfg := WorldConfig{ID: "test", Seed: 42, TickRateHz: 20, Difficulty: 0}
	if mut != nil {
		mut(&cfg)
	}
	w, err := New(cfg, loadCatalogs(t))
	require.NoError(t, err)
	return w
}

// ground is the standing position on top of column (x, z).
func ground(w *World, x, z int) mgl64.Vec3 {
	y := w.Terrain().SurfaceY(x, z)
	return mgl64.Vec3{float64(x) + 0.5, float64(y), float64(z) + 0.5}
}

type tickRecorder struct{ entries []TickLogEntry }

func (r *tickRecorder) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *tickRecorder) removals() []Removal {
	var out []Removal
	for _, e := range r.entries {
		out = append(out, e.Removals...)
	}
	return out
}

type auditRecorder struct{ entries []AuditEntry }

func (r *auditRecorder) WriteAudit(e AuditEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *auditRecorder) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// spawn runs one step that places an agent of kind and returns it.
func spawn(t *testing.T, w *World, kind string, pos mgl64.Vec3, persistent bool) *agent.Agent {
	t.Helper()
	resp := make(chan uuid.UUID, 1)
	w.StepOnce(Inputs{Spawns: []SpawnRequest{{Kind: kind, Pos: pos, Persistent: persistent, Resp: resp}}})
	id := <-resp
	require.NotEqual(t, uuid.Nil, id)
	a, ok := w.Agent(id)
	require.True(t, ok)
	return a
}

func TestNew_RequiresCatalogs(t *testing.T) {
	_, err := New(WorldConfig{}, nil)
	require.Error(t, err)
}

func TestNew_AppliesDefaults(t *testing.T) {
	w := newTestWorld(t, func(c *WorldConfig) {
		c.ID = ""
		c.TickRateHz = 0
		c.Difficulty = 9
	})
	cfg := w.Config()
	assert.Equal(t, "world_1", cfg.ID)
	assert.Equal(t, 20, cfg.TickRateHz)
	assert.Equal(t, 3, cfg.Difficulty)
	assert.Equal(t, uint64(1), cfg.ObserverEveryTicks)
}

func TestStepOnce_IsDeterministic(t *testing.T) {
	run := func() []string {
		w := newTestWorld(t, func(c *WorldConfig) {
			c.Difficulty = 2
			c.MaxAgents = 12
			c.SpawnAttempts = 2
		})
		pid := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
		in := Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0)}}}
		for i, kind := range []string{"zombie", "zombie", "cow", "pig", "chicken"} {
			in.Spawns = append(in.Spawns, SpawnRequest{Kind: kind, Pos: ground(w, 4+i*2, 3)})
		}
		var digests []string
		for i := 0; i < 120; i++ {
			_, d := w.StepOnce(in)
			digests = append(digests, d)
			in = Inputs{}
		}
		require.GreaterOrEqual(t, w.counters.Spawned, uint64(5))
		return digests
	}
	a, b := run(), run()
	require.Len(t, a, 120)
	assert.Equal(t, a, b)
}

func TestStepOnce_TickAdvances(t *testing.T) {
	w := newTestWorld(t, nil)
	tick, _ := w.StepOnce(Inputs{})
	assert.Equal(t, uint64(0), tick)
	tick, _ = w.StepOnce(Inputs{})
	assert.Equal(t, uint64(1), tick)
	assert.Equal(t, uint64(2), w.CurrentTick())
	assert.Equal(t, uint64(1), w.Metrics().Tick)
}

func TestSpawn_UnknownKindReportsNil(t *testing.T) {
	w := newTestWorld(t, nil)
	resp := make(chan uuid.UUID, 1)
	w.StepOnce(Inputs{Spawns: []SpawnRequest{{Kind: "dragon", Pos: ground(w, 0, 0), Resp: resp}}})
	assert.Equal(t, uuid.Nil, <-resp)
	assert.Empty(t, w.Agents())
}

func TestAttack_LethalHitRemovesAgentAndAudits(t *testing.T) {
	w := newTestWorld(t, nil)
	ticks := &tickRecorder{}
	audits := &auditRecorder{}
	w.SetTickLogger(ticks)
	w.SetAuditLogger(audits)

	pid := uuid.New()
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0)}}})
	cow := spawn(t, w, "cow", ground(w, 1, 0), true)

	w.StepOnce(Inputs{Attacks: []AttackRequest{{PlayerID: pid, AgentID: cow.ID, Damage: 100}}})

	_, ok := w.Agent(cow.ID)
	assert.False(t, ok)
	assert.Contains(t, ticks.removals(), Removal{AgentID: cow.ID.String(), Kind: "cow", Reason: "death"})
	assert.Contains(t, audits.actions(), "DEATH")
	for _, e := range audits.entries {
		if e.Action == "DEATH" {
			assert.Equal(t, pid.String(), e.Details["killer"])
			assert.Equal(t, true, e.Details["player_kill"])
		}
	}
	last := ticks.entries[len(ticks.entries)-1]
	require.Len(t, last.Attacks, 1)
	assert.NotEmpty(t, last.Digest)
}

func TestAttack_UnknownTargetIsIgnored(t *testing.T) {
	w := newTestWorld(t, nil)
	ticks := &tickRecorder{}
	w.SetTickLogger(ticks)
	pid := uuid.New()
	w.StepOnce(Inputs{
		Joins:   []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0)}},
		Attacks: []AttackRequest{{PlayerID: pid, AgentID: uuid.New(), Damage: 5}},
	})
	require.Len(t, ticks.entries, 1)
	assert.Empty(t, ticks.entries[0].Attacks)
}

func TestLeave_DropsTargetReferences(t *testing.T) {
	w := newTestWorld(t, nil)
	pid := uuid.New()
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0)}}})
	z := spawn(t, w, "zombie", ground(w, 3, 0), true)

	p, ok := w.Player(pid)
	require.True(t, ok)
	z.RequestTarget(p, agent.ReasonClosest)
	require.NotNil(t, z.Target())

	w.StepOnce(Inputs{Leaves: []uuid.UUID{pid}})
	assert.Nil(t, z.Target())
	_, ok = w.Player(pid)
	assert.False(t, ok)
}

func TestPickUp_AgentEquipsDroppedItem(t *testing.T) {
	w := newTestWorld(t, nil)
	audits := &auditRecorder{}
	w.SetAuditLogger(audits)
	z := spawn(t, w, "zombie", ground(w, 0, 0), false)
	z.CanPickUpLoot = true
	z.Equipment.Set(equipment.MainHand, equipment.Empty)

	w.StepOnce(Inputs{Drops: []DropRequest{{Pos: z.Pos, Item: equipment.NewItem("iron_sword", 1)}}})

	assert.Equal(t, "iron_sword", z.Equipment.Get(equipment.MainHand).ID)
	assert.True(t, z.PersistenceRequired)
	assert.Equal(t, 0, w.ItemCount())
	assert.Contains(t, audits.actions(), "PICKUP")
}

func TestPickUp_DelayKeepsFreshDrops(t *testing.T) {
	w := newTestWorld(t, func(c *WorldConfig) { c.PickupDelay = 5 })
	z := spawn(t, w, "zombie", ground(w, 0, 0), false)
	z.CanPickUpLoot = true
	z.Equipment.Set(equipment.MainHand, equipment.Empty)

	w.StepOnce(Inputs{Drops: []DropRequest{{Pos: z.Pos, Item: equipment.NewItem("iron_sword", 1)}}})
	assert.True(t, z.Equipment.Get(equipment.MainHand).IsEmpty())
	assert.Equal(t, 1, w.ItemCount())
}

func TestItems_ExpireAfterLifetime(t *testing.T) {
	w := newTestWorld(t, func(c *WorldConfig) { c.ItemLifetime = 3 })
	w.StepOnce(Inputs{Drops: []DropRequest{{Pos: ground(w, 0, 0), Item: equipment.NewItem("bone", 2)}}})
	assert.Equal(t, 1, w.ItemCount())
	w.StepOnce(Inputs{})
	w.StepOnce(Inputs{})
	assert.Equal(t, 1, w.ItemCount())
	w.StepOnce(Inputs{})
	assert.Equal(t, 0, w.ItemCount())
}

func TestInteract_LeashAndRelease(t *testing.T) {
	w := newTestWorld(t, nil)
	audits := &auditRecorder{}
	w.SetAuditLogger(audits)
	pid := uuid.New()
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0), Held: equipment.NewItem(agent.LeadItemID, 2)}}})
	cow := spawn(t, w, "cow", ground(w, 2, 0), true)

	w.StepOnce(Inputs{Interacts: []InteractRequest{{PlayerID: pid, AgentID: cow.ID}}})
	require.True(t, cow.Leashed())
	assert.Equal(t, pid, cow.LeashHolder().EntityID())
	p, _ := w.Player(pid)
	assert.Equal(t, 1, p.Held.Count)
	assert.Contains(t, audits.actions(), "INTERACT")

	w.StepOnce(Inputs{Interacts: []InteractRequest{{PlayerID: pid, AgentID: cow.ID}}})
	assert.False(t, cow.Leashed())
	assert.Equal(t, 1, w.ItemCount(), "the lead drops when released")
	assert.Contains(t, audits.actions(), "UNLEASH")
}

func TestInteract_HostileCannotBeLeashed(t *testing.T) {
	w := newTestWorld(t, nil)
	pid := uuid.New()
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0), Held: equipment.NewItem(agent.LeadItemID, 1)}}})
	z := spawn(t, w, "zombie", ground(w, 2, 0), true)

	w.StepOnce(Inputs{Interacts: []InteractRequest{{PlayerID: pid, AgentID: z.ID}}})
	assert.False(t, z.Leashed())
	p, _ := w.Player(pid)
	assert.Equal(t, 1, p.Held.Count)
}

func TestDespawn_FarFromEveryPlayer(t *testing.T) {
	w := newTestWorld(t, nil)
	ticks := &tickRecorder{}
	w.SetTickLogger(ticks)
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: uuid.New(), Pos: ground(w, 300, 0)}}})

	resp := make(chan uuid.UUID, 1)
	w.StepOnce(Inputs{Spawns: []SpawnRequest{{Kind: "cow", Pos: ground(w, 0, 0), Resp: resp}}})
	id := <-resp
	require.NotEqual(t, uuid.Nil, id)
	_, ok := w.Agent(id)
	assert.False(t, ok)
	assert.Contains(t, ticks.removals(), Removal{AgentID: id.String(), Kind: "cow", Reason: "despawn:far"})
	assert.Equal(t, uint64(1), w.Metrics().RemovedTotal)
}

func TestDespawn_PersistentStays(t *testing.T) {
	w := newTestWorld(t, nil)
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: uuid.New(), Pos: ground(w, 300, 0)}}})
	cow := spawn(t, w, "cow", ground(w, 0, 0), true)
	for i := 0; i < 40; i++ {
		w.StepOnce(Inputs{})
	}
	_, ok := w.Agent(cow.ID)
	assert.True(t, ok)
}

func TestDespawn_NoPlayersKeepsAgents(t *testing.T) {
	w := newTestWorld(t, nil)
	cow := spawn(t, w, "cow", ground(w, 0, 0), false)
	for i := 0; i < 40; i++ {
		w.StepOnce(Inputs{})
	}
	_, ok := w.Agent(cow.ID)
	assert.True(t, ok)
}

func TestNaturalSpawning_PeacefulHasNoHostiles(t *testing.T) {
	w := newTestWorld(t, func(c *WorldConfig) {
		c.Difficulty = 0
		c.MaxAgents = 30
		c.SpawnAttempts = 4
	})
	pid := uuid.New()
	w.StepOnce(Inputs{Joins: []PlayerJoin{{ID: pid, Pos: ground(w, 0, 0)}}})
	for i := 0; i < 200; i++ {
		w.StepOnce(Inputs{})
	}
	for _, a := range w.Agents() {
		assert.False(t, a.Hostile, "%s spawned on peaceful", a.Kind)
	}
	assert.LessOrEqual(t, len(w.Agents()), 30)
}
