package world

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mobsim/internal/sim/equipment"
)

var ErrDigestMismatch = errors.New("digest mismatch")

// InputsFromLog rebuilds the inputs a tick log entry recorded. Natural spawns
// are skipped since the world rolls them itself.
func InputsFromLog(e TickLogEntry) (Inputs, error) {
	var in Inputs
	for _, j := range e.Joins {
		id, err := uuid.Parse(j.PlayerID)
		if err != nil {
			return Inputs{}, fmt.Errorf("tick %d join: %w", e.Tick, err)
		}
		var held equipment.Item
		if j.Held != nil {
			held = j.Held.Clone()
		}
		in.Joins = append(in.Joins, PlayerJoin{ID: id, Pos: toVec(j.Pos), Held: held})
	}
	for _, m := range e.Moves {
		id, err := uuid.Parse(m.PlayerID)
		if err != nil {
			return Inputs{}, fmt.Errorf("tick %d move: %w", e.Tick, err)
		}
		in.Moves = append(in.Moves, PlayerMove{ID: id, Pos: toVec(m.Pos)})
	}
	for _, s := range e.Leaves {
		id, err := uuid.Parse(s)
		if err != nil {
			return Inputs{}, fmt.Errorf("tick %d leave: %w", e.Tick, err)
		}
		in.Leaves = append(in.Leaves, id)
	}
	for _, d := range e.Drops {
		in.Drops = append(in.Drops, DropRequest{Pos: toVec(d.Pos), Item: d.Item.Clone()})
	}
	for _, s := range e.Spawns {
		if s.Natural {
			continue
		}
		in.Spawns = append(in.Spawns, SpawnRequest{Kind: s.Kind, Pos: toVec(s.Pos), Persistent: s.Persistent, FromSpawner: s.FromSpawner})
	}
	in.Attacks = append(in.Attacks, e.Attacks...)
	in.Interacts = append(in.Interacts, e.Interacts...)
	for _, q := range e.Equips {
		q.Item = q.Item.Clone()
		in.Equips = append(in.Equips, q)
	}
	return in, nil
}

// ReplayEntry steps the world with the inputs of e and checks the resulting
// digest. The world must be at e.Tick.
func (w *World) ReplayEntry(e TickLogEntry) error {
	if cur := w.CurrentTick(); cur != e.Tick {
		return fmt.Errorf("tick mismatch: world=%d entry=%d", cur, e.Tick)
	}
	in, err := InputsFromLog(e)
	if err != nil {
		return err
	}
	_, got := w.StepOnce(in)
	if got != e.Digest {
		return fmt.Errorf("tick %d: %w: got=%s want=%s", e.Tick, ErrDigestMismatch, got, e.Digest)
	}
	return nil
}
