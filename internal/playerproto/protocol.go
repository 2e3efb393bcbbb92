package playerproto

import (
	"encoding/json"

	"mobsim/internal/observerproto"
)

// Version is the player protocol version.
const Version = "0.1"

const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
	TypeAck     = "ACK"
	TypeError   = "ERROR"
)

// Error codes are shared with the observer protocol.
const (
	ErrProtoBadRequest = observerproto.ErrProtoBadRequest
	ErrWorldBusy       = observerproto.ErrWorldBusy
	ErrRateLimit       = observerproto.ErrRateLimit
	ErrInternal        = observerproto.ErrInternal
)

type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the player WS connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional: reconnect as an existing player. A fresh id is issued when
	// empty.
	PlayerID string     `json:"player_id,omitempty"`
	Pos      [3]float64 `json:"pos"`
	Held     *ItemRef   `json:"held,omitempty"`
}

type ItemRef struct {
	ID    string `json:"id"`
	Count int    `json:"count,omitempty"`
}

// Server -> Client. Sent once the world has applied the join.
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerID        string `json:"player_id"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
	TickRateHz      int    `json:"tick_rate_hz"`
}

// Client -> Server. Any combination of a move, an attack and an interaction;
// they are queued for the next tick in that order.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`

	Move     *[3]float64  `json:"move,omitempty"`
	Attack   *AttackAct   `json:"attack,omitempty"`
	Interact *InteractAct `json:"interact,omitempty"`
}

type AttackAct struct {
	AgentID string  `json:"agent_id"`
	Damage  float64 `json:"damage,omitempty"`
}

type InteractAct struct {
	AgentID string `json:"agent_id"`
}

// Server -> Client. The ACT with Seq was queued.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
}

// Server -> Client. Sent before a policy close or when an ACT is rejected.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(seq uint64, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Seq: seq, Code: code, Message: msg}
}
