package world

import (
	"context"
	"errors"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.closeObservers()

	var pending Inputs
	var pendingSnaps []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pending.Joins = append(pending.Joins, req)
		case req := <-w.move:
			pending.Moves = append(pending.Moves, req)
		case id := <-w.leave:
			pending.Leaves = append(pending.Leaves, id)
		case req := <-w.drop:
			pending.Drops = append(pending.Drops, req)
		case req := <-w.spawn:
			pending.Spawns = append(pending.Spawns, req)
		case req := <-w.attack:
			pending.Attacks = append(pending.Attacks, req)
		case req := <-w.interact:
			pending.Interacts = append(pending.Interacts, req)
		case req := <-w.equips:
			pending.Equips = append(pending.Equips, req)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.snapReq:
			pendingSnaps = append(pendingSnaps, req)
		case <-ticker.C:
			w.stepInternal(pending)
			w.handleSnapshotRequests(pendingSnaps)
			pending.reset()
			pendingSnaps = pendingSnaps[:0]
		}
	}
}

// Stop ends Run. It is safe to call more than once.
func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the loop. It is meant for tests and replays and must not be
// mixed with a running loop.
func (w *World) StepOnce(in Inputs) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(in)
	return tick, digest
}

// RequestSnapshot asks the loop to export a snapshot to the sink at the end
// of the current tick.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case w.snapReq <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}
	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink backpressure"
		}
	}
	resp := snapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Caller gave up; never block the loop.
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
