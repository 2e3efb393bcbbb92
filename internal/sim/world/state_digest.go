package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"

	"mobsim/internal/sim/equipment"
)

// stateDigest hashes the replay-relevant state so two runs from the same
// seed and inputs can be compared tick by tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, w.counters.Spawned)
	digestWriteU64(h, &tmp, w.counters.NextItem)

	for _, id := range w.order {
		a := w.agents[id]
		if a == nil {
			continue
		}
		h.Write(id[:])
		h.Write([]byte(a.Kind))
		for _, f := range []float64{a.Pos.X(), a.Pos.Y(), a.Pos.Z(), a.Yaw, a.Pitch, a.Health} {
			digestWriteU64(h, &tmp, math.Float64bits(f))
		}
		digestWriteU64(h, &tmp, uint64(a.IdleTicks))
		h.Write([]byte{boolByte(a.PersistenceRequired), boolByte(a.Leashed()), boolByte(a.CanPickUpLoot)})
		if t := a.Target(); t != nil {
			tid := t.EntityID()
			h.Write(tid[:])
		}
		for _, s := range equipment.AllSlots {
			it := a.Equipment.Get(s)
			h.Write([]byte(it.ID))
			digestWriteU64(h, &tmp, uint64(it.Count))
		}
	}

	players := w.sortedPlayers()
	for _, p := range players {
		h.Write(p.ID[:])
		for _, f := range []float64{p.Pos.X(), p.Pos.Y(), p.Pos.Z()} {
			digestWriteU64(h, &tmp, math.Float64bits(f))
		}
	}

	for _, it := range w.items {
		if it.gone {
			continue
		}
		h.Write([]byte(it.item.ID))
		digestWriteU64(h, &tmp, uint64(it.item.Count))
	}

	knots := make([]*knot, 0, len(w.knots))
	for _, k := range w.knots {
		knots = append(knots, k)
	}
	sortKnots(knots)
	for _, k := range knots {
		h.Write(k.id[:])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
