package world

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/observerproto"
	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/catalogs"
	"mobsim/internal/sim/terrain"
)

// World owns every entity of one simulation. All state below the channels is
// touched only by the loop goroutine (Run) or by a caller of StepOnce.
type World struct {
	cfg  WorldConfig
	cats *catalogs.Catalogs
	log  *zap.Logger

	terrain *terrain.Store
	finder  *terrain.GridPathfinder
	sensor  sensor
	policy  Policy
	rng     *rand.Rand

	agents  map[uuid.UUID]*agent.Agent
	order   []uuid.UUID // spawn order; agents tick in this order
	players map[uuid.UUID]*Player
	items   []*itemEntity
	knots   map[terrain.Pos]*knot

	placement map[string]terrain.Predicate
	counters  snapshot.CountersV1

	observers map[string]*observerClient

	// Collected during a step, flushed at its end.
	removals      []Removal
	tickAudits    []AuditEntry
	targetChanges []observerproto.TargetChange

	stats struct {
		sightChecks uint64
		spawned     uint64
		removed     uint64
		// Perception cache counts of agents already swept.
		senseHits   uint64
		senseMisses uint64
	}

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink SnapshotSink

	tick    atomic.Uint64
	metrics atomic.Value

	spawn         chan SpawnRequest
	join          chan PlayerJoin
	move          chan PlayerMove
	leave         chan uuid.UUID
	drop          chan DropRequest
	attack        chan AttackRequest
	interact      chan InteractRequest
	equips        chan EquipRequest
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	snapReq       chan snapshotReq

	stop     chan struct{}
	stopOnce sync.Once
}

type Option func(*World)

func WithLogger(l *zap.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

func WithPolicy(p Policy) Option {
	return func(w *World) {
		if p != nil {
			w.policy = p
		}
	}
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, opts ...Option) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world %s: catalogs are required", cfg.ID)
	}
	cfg.applyDefaults()

	store := terrain.NewStore(terrain.Gen{
		Seed:           cfg.Seed,
		BaseHeight:     cfg.BaseHeight,
		HeightVariance: cfg.HeightVariance,
		PoolPermille:   cfg.PoolPermille,
	})
	finder := terrain.NewGridPathfinder(store)
	finder.MaxNodes = cfg.PathNodeBudget

	w := &World{
		cfg:           cfg,
		cats:          cats,
		log:           zap.NewNop(),
		terrain:       store,
		finder:        finder,
		policy:        DefaultPolicy{},
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		agents:        map[uuid.UUID]*agent.Agent{},
		players:       map[uuid.UUID]*Player{},
		knots:         map[terrain.Pos]*knot{},
		placement:     map[string]terrain.Predicate{},
		observers:     map[string]*observerClient{},
		spawn:         make(chan SpawnRequest, 64),
		join:          make(chan PlayerJoin, 64),
		move:          make(chan PlayerMove, 1024),
		leave:         make(chan uuid.UUID, 64),
		drop:          make(chan DropRequest, 256),
		attack:        make(chan AttackRequest, 256),
		interact:      make(chan InteractRequest, 256),
		equips:        make(chan EquipRequest, 64),
		observerJoin:  make(chan ObserverJoinRequest, 32),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 32),
		snapReq:       make(chan snapshotReq, 8),
		stop:          make(chan struct{}),
	}
	w.sensor = sensor{w: w}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With(zap.String("world", cfg.ID))
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) SetSnapshotSink(ch SnapshotSink) { w.snapshotSink = ch }

// SetPlacementRule overrides the generic spawn test for one mob kind.
func (w *World) SetPlacementRule(kind string, p terrain.Predicate) {
	if p == nil {
		delete(w.placement, kind)
		return
	}
	w.placement[kind] = p
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	return w.cfg
}

func (w *World) Catalogs() *catalogs.Catalogs { return w.cats }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Terrain() *terrain.Store { return w.terrain }

func (w *World) Spawn() chan<- SpawnRequest                         { return w.spawn }
func (w *World) Join() chan<- PlayerJoin                            { return w.join }
func (w *World) Move() chan<- PlayerMove                            { return w.move }
func (w *World) Leave() chan<- uuid.UUID                            { return w.leave }
func (w *World) Drop() chan<- DropRequest                           { return w.drop }
func (w *World) Attack() chan<- AttackRequest                       { return w.attack }
func (w *World) Interact() chan<- InteractRequest                   { return w.interact }
func (w *World) Equip() chan<- EquipRequest                         { return w.equips }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

// Agent returns a live agent by id. Only safe from the loop goroutine or
// between StepOnce calls.
func (w *World) Agent(id uuid.UUID) (*agent.Agent, bool) {
	a := w.agents[id]
	return a, a != nil
}

// Agents lists agents in tick order. Same safety rules as Agent.
func (w *World) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(w.order))
	for _, id := range w.order {
		if a := w.agents[id]; a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Player returns a connected player. Same safety rules as Agent.
func (w *World) Player(id uuid.UUID) (*Player, bool) {
	p := w.players[id]
	return p, p != nil
}

// ItemCount reports how many stacks lie on the ground.
func (w *World) ItemCount() int {
	n := 0
	for _, it := range w.items {
		if !it.gone {
			n++
		}
	}
	return n
}

func (w *World) env(tick uint64) agent.Env {
	return agent.Env{Tick: tick, Difficulty: w.cfg.Difficulty, World: w}
}

func (w *World) audit(a *agent.Agent, action, reason string, details map[string]any) {
	e := AuditEntry{
		Tick:    w.tick.Load(),
		Actor:   "WORLD",
		Action:  action,
		Reason:  reason,
		Details: details,
	}
	if a != nil {
		e.Actor = a.ID.String()
		p := terrain.BlockPos(a.Pos)
		e.Pos = [3]int{p.X, p.Y, p.Z}
	}
	w.tickAudits = append(w.tickAudits, e)
	if w.auditLogger != nil {
		if err := w.auditLogger.WriteAudit(e); err != nil {
			w.log.Warn("audit write failed", zap.Error(err))
		}
	}
}

func (w *World) recordTargetChange(a *agent.Agent, from, to agent.Entity, r agent.Reason) {
	w.targetChanges = append(w.targetChanges, observerproto.TargetChange{
		AgentID: a.ID.String(),
		From:    entityID(from),
		To:      entityID(to),
		Reason:  r.String(),
	})
}

// kill runs death for a lethally damaged agent. A hit from a player within
// the recent-hit window counts as a player kill for the rare drops.
func (w *World) kill(a *agent.Agent, tick uint64) {
	recent := false
	who, at := a.LastAttacker()
	if _, ok := who.(*Player); ok && tick-at <= w.cfg.RecentHitTicks {
		recent = true
	}
	looting := 0
	if recent {
		looting = w.cfg.LootingLevel
	}
	xp := 0
	if recent {
		xp = a.ExperiencePoints()
	}
	drops := a.Die(w.env(tick), recent, looting, w.cats.Loot)
	ids := make([]string, 0, len(drops))
	for _, it := range drops {
		ids = append(ids, fmt.Sprintf("%s x%d", it.ID, it.Count))
	}
	w.audit(a, "DEATH", "", map[string]any{"killer": entityID(who), "player_kill": recent, "drops": ids, "xp": xp})
}
