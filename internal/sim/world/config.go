package world

import (
	"mobsim/internal/sim/agent"
	"mobsim/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	Seed       int64
	TickRateHz int
	// Difficulty is 0 (peaceful) .. 3 (hard).
	Difficulty int

	SnapshotEveryTicks uint64
	ObserverEveryTicks uint64

	BaseHeight     int
	HeightVariance int
	PoolPermille   uint64

	// Params is copied into every agent.
	Params agent.Params

	MaxPathDistance float64
	PathNodeBudget  int

	MaxAgents         int
	SpawnAttempts     int
	SpawnRadius       int
	MinPlayerDistance float64

	PickupReach    float64
	ItemLifetime   uint64
	PickupDelay    uint64
	LootingLevel   int
	RecentHitTicks uint64
}

// ConfigFromTuning builds a world config from the tuning file. Terrain shape
// comes from the caller since it is fixed for the life of a world.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		Seed:               seed,
		TickRateHz:         t.TickRateHz,
		Difficulty:         t.Difficulty,
		SnapshotEveryTicks: uint64(max(t.SnapshotEveryTicks, 0)),
		ObserverEveryTicks: uint64(max(t.ObserverEveryTicks, 0)),
		Params:             t.AgentParams(),
		MaxPathDistance:    t.Movement.MaxPathDistance,
		PathNodeBudget:     t.Movement.PathNodeBudget,
		MaxAgents:          t.Spawning.MaxAgents,
		SpawnAttempts:      t.Spawning.AttemptsPerTick,
		SpawnRadius:        t.Spawning.Radius,
		MinPlayerDistance:  t.Spawning.MinPlayerDistance,
		PickupReach:        t.Loot.PickupReach,
		ItemLifetime:       uint64(max(t.Loot.ItemLifetime, 0)),
		PickupDelay:        uint64(max(t.Loot.PickupDelay, 0)),
		LootingLevel:       t.Loot.LootingLevel,
		RecentHitTicks:     t.Loot.RecentHitTicks,
	}
}

func (cfg *WorldConfig) applyDefaults() {
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.Difficulty < 0 {
		cfg.Difficulty = 0
	}
	if cfg.Difficulty > 3 {
		cfg.Difficulty = 3
	}
	if cfg.ObserverEveryTicks == 0 {
		cfg.ObserverEveryTicks = 1
	}
	if cfg.BaseHeight <= 0 {
		cfg.BaseHeight = 64
	}
	if cfg.MaxPathDistance <= 0 {
		cfg.MaxPathDistance = 32
	}
	if cfg.PathNodeBudget <= 0 {
		cfg.PathNodeBudget = 4096
	}
	if cfg.SpawnAttempts < 0 {
		cfg.SpawnAttempts = 0
	}
	if cfg.SpawnRadius <= 0 {
		cfg.SpawnRadius = 48
	}
	if cfg.PickupReach <= 0 {
		cfg.PickupReach = 1
	}
	if cfg.ItemLifetime == 0 {
		cfg.ItemLifetime = 6000
	}
	if cfg.RecentHitTicks == 0 {
		cfg.RecentHitTicks = 100
	}
}
