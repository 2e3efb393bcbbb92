package world

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mobsim/internal/observerproto"
	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/tasks"
)

type observerClient struct {
	id      string
	tickOut chan []byte

	radius    float64
	maxAgents int
	focusID   uuid.UUID
}

func clampInt(v, lo, hi, def int) int {
	if v <= 0 {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseFocus(s string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:        req.SessionID,
		tickOut:   req.TickOut,
		radius:    max(req.Radius, 0),
		maxAgents: clampInt(req.MaxAgents, 1, 4096, 512),
		focusID:   parseFocus(req.FocusID),
	}
	w.log.Debug("observer joined", zap.String("session", req.SessionID))
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.radius = max(req.Radius, 0)
	c.maxAgents = clampInt(req.MaxAgents, 1, 4096, 512)
	c.focusID = parseFocus(req.FocusID)
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) closeObservers() {
	for id, c := range w.observers {
		delete(w.observers, id)
		close(c.tickOut)
	}
}

func (w *World) broadcastObservers(tick uint64) {
	base := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Items:           w.ItemCount(),
		TargetChanges:   w.targetChanges,
	}
	for _, r := range w.removals {
		base.Removals = append(base.Removals, observerproto.RemovalInfo{AgentID: r.AgentID, Kind: r.Kind, Reason: r.Reason})
	}
	for _, a := range w.tickAudits {
		base.Audits = append(base.Audits, observerproto.AuditEntry{
			Tick: a.Tick, Actor: a.Actor, Action: a.Action, Pos: a.Pos, Reason: a.Reason, Details: a.Details,
		})
	}
	for _, p := range w.sortedPlayers() {
		base.Players = append(base.Players, observerproto.PlayerState{ID: p.ID.String(), Pos: vec(p.Pos)})
	}
	states := make([]observerproto.AgentState, 0, len(w.order))
	all := w.Agents()
	for _, a := range all {
		states = append(states, agentState(a))
	}

	for _, c := range w.observers {
		msg := base
		msg.Agents = w.visibleAgents(c, all, states)
		b, err := json.Marshal(msg)
		if err != nil {
			w.log.Warn("observer encode failed", zap.String("session", c.id), zap.Error(err))
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

// visibleAgents filters by the observer's focus and radius, then caps the
// count keeping spawn order.
func (w *World) visibleAgents(c *observerClient, all []*agent.Agent, states []observerproto.AgentState) []observerproto.AgentState {
	out := make([]observerproto.AgentState, 0, min(len(states), c.maxAgents))
	var center agent.Entity
	if c.radius > 0 && c.focusID != uuid.Nil {
		if e, ok := w.lookup(c.focusID); ok {
			center = e
		}
	}
	for i, a := range all {
		if len(out) >= c.maxAgents {
			break
		}
		if center != nil {
			d := a.Pos.Sub(center.Position())
			if d.Dot(d) > c.radius*c.radius {
				continue
			}
		}
		out = append(out, states[i])
	}
	return out
}

func agentState(a *agent.Agent) observerproto.AgentState {
	s := observerproto.AgentState{
		ID:         a.ID.String(),
		Kind:       a.Kind,
		Pos:        vec(a.Pos),
		Yaw:        a.Yaw,
		Pitch:      a.Pitch,
		Health:     a.Health,
		MaxHP:      a.MaxHealth(),
		TargetID:   entityID(a.Target()),
		HolderID:   entityID(a.LeashHolder()),
		MainHand:   a.Equipment.Get(equipment.MainHand).ID,
		Persistent: a.PersistenceRequired,
		IdleTicks:  a.IdleTicks,
		Goals:      taskNames(a.Tasks.Goals.Running()),
		Targets:    taskNames(a.Tasks.Targets.Running()),
	}
	if a.Mount != nil {
		s.MountID = a.Mount.ID.String()
	}
	return s
}

func taskNames(ts []tasks.Task) []string {
	if len(ts) == 0 {
		return nil
	}
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if n, ok := t.(tasks.Named); ok {
			out = append(out, n.Name())
			continue
		}
		out = append(out, fmt.Sprintf("%T", t))
	}
	return out
}
