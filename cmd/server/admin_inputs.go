package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"mobsim/internal/sim/equipment"
	"mobsim/internal/sim/world"
)

const spawnReplyTimeout = 5 * time.Second

type itemBody struct {
	ID           string   `json:"id"`
	Count        int      `json:"count,omitempty"`
	Enchantments []string `json:"enchantments,omitempty"`
}

type spawnBody struct {
	Kind        string     `json:"kind"`
	Pos         [3]float64 `json:"pos"`
	Persistent  bool       `json:"persistent,omitempty"`
	FromSpawner bool       `json:"from_spawner,omitempty"`
}

type dropBody struct {
	Pos  [3]float64 `json:"pos"`
	Item itemBody   `json:"item"`
}

type equipBody struct {
	AgentID  string   `json:"agent_id"`
	SlotCode int      `json:"slot_code"`
	Item     itemBody `json:"item"`
}

// adminPost wraps a loopback-only POST handler that decodes a JSON body.
func adminPost[T any](h func(rw http.ResponseWriter, body T)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var body T
		dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64*1024))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeAdmin(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		h(rw, body)
	}
}

func writeAdmin(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func adminError(rw http.ResponseWriter, status int, err error) {
	writeAdmin(rw, status, map[string]any{"ok": false, "error": err.Error()})
}

func (rt *worldRuntime) buildItem(b itemBody) (equipment.Item, error) {
	if _, ok := rt.world.Catalogs().Items.ItemDef(b.ID); !ok {
		return equipment.Empty, fmt.Errorf("unknown item %q", b.ID)
	}
	for _, e := range b.Enchantments {
		if !equipment.KnownEnchantment(e) {
			return equipment.Empty, fmt.Errorf("unknown enchantment %q", e)
		}
	}
	count := b.Count
	if count <= 0 {
		count = 1
	}
	it := equipment.NewItem(b.ID, count)
	it.Enchantments = append([]string(nil), b.Enchantments...)
	return it, nil
}

// handleSpawn queues a spawn and waits for the tick that applies it.
func (rt *worldRuntime) handleSpawn(rw http.ResponseWriter, b spawnBody) {
	if _, ok := rt.world.Catalogs().Mobs.ByID[b.Kind]; !ok {
		adminError(rw, http.StatusBadRequest, fmt.Errorf("unknown kind %q", b.Kind))
		return
	}
	resp := make(chan uuid.UUID, 1)
	req := world.SpawnRequest{Kind: b.Kind, Pos: mgl64.Vec3(b.Pos), Persistent: b.Persistent, FromSpawner: b.FromSpawner, Resp: resp}
	select {
	case rt.world.Spawn() <- req:
	default:
		adminError(rw, http.StatusServiceUnavailable, fmt.Errorf("spawn queue full"))
		return
	}
	select {
	case id := <-resp:
		if id == uuid.Nil {
			adminError(rw, http.StatusUnprocessableEntity, fmt.Errorf("spawn of %s refused", b.Kind))
			return
		}
		writeAdmin(rw, http.StatusOK, map[string]any{"ok": true, "agent_id": id.String()})
	case <-time.After(spawnReplyTimeout):
		adminError(rw, http.StatusServiceUnavailable, fmt.Errorf("spawn not applied"))
	}
}

func (rt *worldRuntime) handleDrop(rw http.ResponseWriter, b dropBody) {
	it, err := rt.buildItem(b.Item)
	if err != nil {
		adminError(rw, http.StatusBadRequest, err)
		return
	}
	select {
	case rt.world.Drop() <- world.DropRequest{Pos: mgl64.Vec3(b.Pos), Item: it}:
		writeAdmin(rw, http.StatusAccepted, map[string]any{"ok": true})
	default:
		adminError(rw, http.StatusServiceUnavailable, fmt.Errorf("drop queue full"))
	}
}

// handleEquip only queues the request; slot and agent checks happen on the
// tick and show up as an EQUIP audit.
func (rt *worldRuntime) handleEquip(rw http.ResponseWriter, b equipBody) {
	id, err := uuid.Parse(b.AgentID)
	if err != nil {
		adminError(rw, http.StatusBadRequest, fmt.Errorf("agent_id: %w", err))
		return
	}
	it, err := rt.buildItem(b.Item)
	if err != nil {
		adminError(rw, http.StatusBadRequest, err)
		return
	}
	select {
	case rt.world.Equip() <- world.EquipRequest{AgentID: id, SlotCode: b.SlotCode, Item: it}:
		writeAdmin(rw, http.StatusAccepted, map[string]any{"ok": true})
	default:
		adminError(rw, http.StatusServiceUnavailable, fmt.Errorf("equip queue full"))
	}
}
