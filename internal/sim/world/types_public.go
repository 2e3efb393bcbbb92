package world

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/persistence/snapshot"
	"mobsim/internal/sim/equipment"
)

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry holds the applied inputs of one tick, enough to replay it,
// plus its outcome.
type TickLogEntry struct {
	Tick      uint64            `json:"tick"`
	Joins     []RecordedJoin    `json:"joins,omitempty"`
	Moves     []RecordedMove    `json:"moves,omitempty"`
	Leaves    []string          `json:"leaves,omitempty"`
	Drops     []RecordedDrop    `json:"drops,omitempty"`
	Spawns    []RecordedSpawn   `json:"spawns,omitempty"`
	Attacks   []AttackRequest   `json:"attacks,omitempty"`
	Interacts []InteractRequest `json:"interacts,omitempty"`
	Equips    []EquipRequest    `json:"equips,omitempty"`
	Removals  []Removal         `json:"removals,omitempty"`
	Digest    string            `json:"digest"`
}

type RecordedJoin struct {
	PlayerID string          `json:"player_id"`
	Pos      [3]float64      `json:"pos"`
	Held     *equipment.Item `json:"held,omitempty"`
}

type RecordedMove struct {
	PlayerID string     `json:"player_id"`
	Pos      [3]float64 `json:"pos"`
}

type RecordedDrop struct {
	Pos  [3]float64     `json:"pos"`
	Item equipment.Item `json:"item"`
}

// RecordedSpawn is one applied spawn. MountID names the mount a jockey was
// spawned riding; replay rolls it again rather than spawning it separately.
type RecordedSpawn struct {
	AgentID     string     `json:"agent_id"`
	Kind        string     `json:"kind"`
	Pos         [3]float64 `json:"pos"`
	Persistent  bool       `json:"persistent,omitempty"`
	FromSpawner bool       `json:"from_spawner,omitempty"`
	Natural     bool       `json:"natural,omitempty"`
	MountID     string     `json:"mount_id,omitempty"`
}

// Removal records an agent leaving the world; Reason is "death" or
// "despawn:<cause>".
type Removal struct {
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "TARGET", "DEATH"
	Pos     [3]int         `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// SpawnRequest places one agent of Kind at Pos, skipping placement rules.
// FromSpawner marks agents a spawner block placed; they run no AI.
type SpawnRequest struct {
	Kind        string
	Pos         mgl64.Vec3
	Persistent  bool
	FromSpawner bool
	// Resp, when set, receives the new agent id (uuid.Nil on failure).
	Resp chan uuid.UUID
}

// PlayerJoin adds a player, or moves it when it is already present.
type PlayerJoin struct {
	ID   uuid.UUID
	Pos  mgl64.Vec3
	Held equipment.Item
	// Resp, when set, receives the tick the join was applied on.
	Resp chan uint64
}

type PlayerMove struct {
	ID  uuid.UUID
	Pos mgl64.Vec3
}

type AttackRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
	AgentID  uuid.UUID `json:"agent_id"`
	Damage   float64   `json:"damage"`
}

// InteractRequest is a player using its held item on an agent.
type InteractRequest struct {
	PlayerID uuid.UUID `json:"player_id"`
	AgentID  uuid.UUID `json:"agent_id"`
}

type DropRequest struct {
	Pos  mgl64.Vec3
	Item equipment.Item
}

// EquipRequest overwrites one of an agent's slots by inventory code: 98 main
// hand, 99 off hand, 100 to 103 feet to head.
type EquipRequest struct {
	AgentID  uuid.UUID      `json:"agent_id"`
	SlotCode int            `json:"slot_code"`
	Item     equipment.Item `json:"item"`
}

// Inputs are everything queued for one tick, applied in field order.
type Inputs struct {
	Joins     []PlayerJoin
	Moves     []PlayerMove
	Leaves    []uuid.UUID
	Drops     []DropRequest
	Spawns    []SpawnRequest
	Attacks   []AttackRequest
	Interacts []InteractRequest
	Equips    []EquipRequest
}

func (in *Inputs) reset() {
	in.Joins = in.Joins[:0]
	in.Moves = in.Moves[:0]
	in.Leaves = in.Leaves[:0]
	in.Drops = in.Drops[:0]
	in.Spawns = in.Spawns[:0]
	in.Attacks = in.Attacks[:0]
	in.Interacts = in.Interacts[:0]
	in.Equips = in.Equips[:0]
}

// ObserverJoinRequest registers a read-only observer session that receives
// per-tick state on TickOut. All observer state is maintained by the world
// loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	Radius    float64
	MaxAgents int
	FocusID   string
}

// ObserverSubscribeRequest updates an existing observer session.
type ObserverSubscribeRequest struct {
	SessionID string

	Radius    float64
	MaxAgents int
	FocusID   string
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Tick uint64
	Err  string
}

// SnapshotSink receives exported snapshots; sends never block the loop.
type SnapshotSink chan<- snapshot.SnapshotV1
