package main

import (
	"fmt"
	"io"

	"mobsim/internal/persistence/indexdb"
	"mobsim/internal/sim/world"
)

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(out io.Writer, worldID string, m world.WorldMetrics, idx indexdb.Stats, withIndex bool) {
	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s gauge\n", name, help, name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	}

	gauge("mobsim_world_tick", "Last completed world tick.")
	fmt.Fprintf(out, "mobsim_world_tick{world=%q} %d\n", worldID, m.Tick)

	gauge("mobsim_world_entities", "Live entities by type.")
	fmt.Fprintf(out, "mobsim_world_entities{world=%q,type=%q} %d\n", worldID, "agent", m.Agents)
	fmt.Fprintf(out, "mobsim_world_entities{world=%q,type=%q} %d\n", worldID, "player", m.Players)
	fmt.Fprintf(out, "mobsim_world_entities{world=%q,type=%q} %d\n", worldID, "item", m.Items)
	fmt.Fprintf(out, "mobsim_world_entities{world=%q,type=%q} %d\n", worldID, "knot", m.Knots)

	gauge("mobsim_world_observers", "Connected observer sessions.")
	fmt.Fprintf(out, "mobsim_world_observers{world=%q} %d\n", worldID, m.Observers)

	counter("mobsim_agents_spawned_total", "Agents spawned since start.")
	fmt.Fprintf(out, "mobsim_agents_spawned_total{world=%q} %d\n", worldID, m.SpawnedTotal)
	counter("mobsim_agents_removed_total", "Agents removed by death or despawn.")
	fmt.Fprintf(out, "mobsim_agents_removed_total{world=%q} %d\n", worldID, m.RemovedTotal)
	counter("mobsim_sight_checks_total", "Line of sight queries.")
	fmt.Fprintf(out, "mobsim_sight_checks_total{world=%q} %d\n", worldID, m.SightChecksTotal)
	counter("mobsim_sense_cache_total", "Per-tick perception cache lookups by result.")
	fmt.Fprintf(out, "mobsim_sense_cache_total{world=%q,result=%q} %d\n", worldID, "hit", m.SenseHitsTotal)
	fmt.Fprintf(out, "mobsim_sense_cache_total{world=%q,result=%q} %d\n", worldID, "miss", m.SenseMissesTotal)

	gauge("mobsim_world_queue_depth", "Request channel backlog.")
	q := m.QueueDepths
	for _, kv := range []struct {
		name string
		n    int
	}{
		{"spawn", q.Spawn}, {"join", q.Join}, {"move", q.Move},
		{"leave", q.Leave}, {"attack", q.Attack}, {"interact", q.Interact},
		{"equip", q.Equip},
	} {
		fmt.Fprintf(out, "mobsim_world_queue_depth{world=%q,queue=%q} %d\n", worldID, kv.name, kv.n)
	}

	gauge("mobsim_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "mobsim_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	if !withIndex {
		return
	}
	gauge("mobsim_index_queue_depth", "Index writer queue depth.")
	fmt.Fprintf(out, "mobsim_index_queue_depth{world=%q} %d\n", worldID, idx.QueueDepth)
	gauge("mobsim_index_queue_capacity", "Index writer queue capacity.")
	fmt.Fprintf(out, "mobsim_index_queue_capacity{world=%q} %d\n", worldID, idx.QueueCapacity)
	counter("mobsim_index_dropped_total", "Index writes dropped because the queue was full.")
	fmt.Fprintf(out, "mobsim_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", idx.DropTickTotal)
	fmt.Fprintf(out, "mobsim_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", idx.DropAuditTotal)
	fmt.Fprintf(out, "mobsim_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", idx.DropSnapshotTotal)
}
