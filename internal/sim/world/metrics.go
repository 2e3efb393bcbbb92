package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Agents       int `json:"agents"`
	Players      int `json:"players"`
	Items        int `json:"items"`
	Knots        int `json:"knots"`
	Observers    int `json:"observers"`
	LoadedChunks int `json:"loaded_chunks"`

	SpawnedTotal     uint64 `json:"spawned_total"`
	RemovedTotal     uint64 `json:"removed_total"`
	SightChecksTotal uint64 `json:"sight_checks_total"`
	// Perception cache lookups, live and swept agents together.
	SenseHitsTotal   uint64 `json:"sense_hits_total"`
	SenseMissesTotal uint64 `json:"sense_misses_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Spawn    int `json:"spawn"`
	Join     int `json:"join"`
	Move     int `json:"move"`
	Leave    int `json:"leave"`
	Attack   int `json:"attack"`
	Interact int `json:"interact"`
	Equip    int `json:"equip"`
}

func (w *World) storeMetrics(tick uint64, took time.Duration) {
	hits, misses := w.stats.senseHits, w.stats.senseMisses
	for _, a := range w.agents {
		if a.Senses == nil {
			continue
		}
		h, m := a.Senses.Stats()
		hits += uint64(h)
		misses += uint64(m)
	}
	w.metrics.Store(WorldMetrics{
		Tick:             tick,
		Agents:           len(w.agents),
		Players:          len(w.players),
		Items:            w.ItemCount(),
		Knots:            len(w.knots),
		Observers:        len(w.observers),
		LoadedChunks:     w.terrain.LoadedChunks(),
		SpawnedTotal:     w.stats.spawned,
		RemovedTotal:     w.stats.removed,
		SightChecksTotal: w.stats.sightChecks,
		SenseHitsTotal:   hits,
		SenseMissesTotal: misses,
		QueueDepths: QueueDepths{
			Spawn:    len(w.spawn),
			Join:     len(w.join),
			Move:     len(w.move),
			Leave:    len(w.leave),
			Attack:   len(w.attack),
			Interact: len(w.interact),
			Equip:    len(w.equips),
		},
		StepMS: float64(took.Microseconds()) / 1000,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
