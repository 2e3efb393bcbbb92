package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Radius limits agents to those within this many blocks of the focus.
	// Zero means the whole world.
	Radius    float64 `json:"radius,omitempty"`
	MaxAgents int     `json:"max_agents,omitempty"`

	// Optional: center the view on an agent or player.
	FocusID string `json:"focus_id,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	MobKinds        []string    `json:"mob_kinds"`
	ItemPalette     []string    `json:"item_palette"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	Seed       int64 `json:"seed"`
	Difficulty int   `json:"difficulty"`
	BaseHeight int   `json:"base_height"`
}

// Server -> Client. Sent every observer tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Agents        []AgentState   `json:"agents"`
	Players       []PlayerState  `json:"players,omitempty"`
	Items         int            `json:"items"`
	Removals      []RemovalInfo  `json:"removals,omitempty"`
	TargetChanges []TargetChange `json:"target_changes,omitempty"`
	Audits        []AuditEntry   `json:"audits,omitempty"`
}

type AgentState struct {
	ID     string     `json:"id"`
	Kind   string     `json:"kind"`
	Pos    [3]float64 `json:"pos"`
	Yaw    float64    `json:"yaw"`
	Pitch  float64    `json:"pitch"`
	Health float64    `json:"health"`
	MaxHP  float64    `json:"max_health"`

	TargetID string `json:"target_id,omitempty"`
	HolderID string `json:"holder_id,omitempty"`
	MountID  string `json:"mount_id,omitempty"`
	MainHand string `json:"main_hand,omitempty"`

	Persistent bool `json:"persistent,omitempty"`
	IdleTicks  int  `json:"idle_ticks"`

	// Running task names, goals then targets.
	Goals   []string `json:"goals,omitempty"`
	Targets []string `json:"targets,omitempty"`
}

type PlayerState struct {
	ID  string     `json:"id"`
	Pos [3]float64 `json:"pos"`
}

type RemovalInfo struct {
	AgentID string `json:"agent_id"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

type TargetChange struct {
	AgentID string `json:"agent_id"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Reason  string `json:"reason"`
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Pos     [3]int         `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
