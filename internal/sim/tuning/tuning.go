package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mobsim/internal/sim/agent"
)

type Tuning struct {
	TickRateHz         int `yaml:"tick_rate_hz"`
	Difficulty         int `yaml:"difficulty"` // 0 peaceful .. 3 hard
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ObserverEveryTicks int `yaml:"observer_every_ticks"`

	Despawn  Despawn  `yaml:"despawn"`
	Movement Movement `yaml:"movement"`
	Spawning Spawning `yaml:"spawning"`
	Loot     Loot     `yaml:"loot"`
}

type Despawn struct {
	FarRadius      float64 `yaml:"far_radius"`
	NearRadius     float64 `yaml:"near_radius"`
	IdleTicks      int     `yaml:"idle_ticks"`
	Odds           int     `yaml:"odds"`
	HookSampleMask int     `yaml:"hook_sample_mask"`
}

type Movement struct {
	FaceYawRate         float64 `yaml:"face_yaw_rate"`
	FacePitchRate       float64 `yaml:"face_pitch_rate"`
	MountSpeed          float64 `yaml:"mount_speed"`
	MaxPathDistance     float64 `yaml:"max_path_distance"`
	PathNodeBudget      int     `yaml:"path_node_budget"`
	LeashRecreateRadius float64 `yaml:"leash_recreate_radius"`
}

type Spawning struct {
	MaxAgents         int     `yaml:"max_agents"`
	AttemptsPerTick   int     `yaml:"attempts_per_tick"`
	Radius            int     `yaml:"radius"`
	MinPlayerDistance float64 `yaml:"min_player_distance"`
}

type Loot struct {
	PickupReach    float64 `yaml:"pickup_reach"`
	ItemLifetime   int     `yaml:"item_lifetime_ticks"`
	PickupDelay    int     `yaml:"pickup_delay_ticks"`
	LootingLevel   int     `yaml:"looting_level"`
	RecentHitTicks uint64  `yaml:"recent_hit_ticks"`
}

// Defaults mirrors configs/tuning.yaml; Load starts from it so a partial file
// only overrides what it names.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:         20,
		Difficulty:         2,
		SnapshotEveryTicks: 6000,
		ObserverEveryTicks: 1,
		Despawn: Despawn{
			FarRadius:      128,
			NearRadius:     32,
			IdleTicks:      600,
			Odds:           800,
			HookSampleMask: 31,
		},
		Movement: Movement{
			FaceYawRate:         10,
			FacePitchRate:       40,
			MountSpeed:          1.5,
			MaxPathDistance:     32,
			PathNodeBudget:      4096,
			LeashRecreateRadius: 10,
		},
		Spawning: Spawning{
			MaxAgents:         40,
			AttemptsPerTick:   1,
			Radius:            48,
			MinPlayerDistance: 24,
		},
		Loot: Loot{
			PickupReach:    1,
			ItemLifetime:   6000,
			PickupDelay:    10,
			RecentHitTicks: 100,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be positive, got %d", t.TickRateHz))
	}
	if t.Difficulty < 0 || t.Difficulty > 3 {
		errs = append(errs, fmt.Errorf("difficulty must be 0..3, got %d", t.Difficulty))
	}
	if t.Despawn.NearRadius > t.Despawn.FarRadius {
		errs = append(errs, fmt.Errorf("despawn.near_radius %.1f exceeds far_radius %.1f", t.Despawn.NearRadius, t.Despawn.FarRadius))
	}
	if t.Despawn.Odds <= 0 {
		errs = append(errs, errors.New("despawn.odds must be positive"))
	}
	if m := t.Despawn.HookSampleMask; m < 0 || m&(m+1) != 0 {
		errs = append(errs, fmt.Errorf("despawn.hook_sample_mask must be 2^n-1, got %d", m))
	}
	return errors.Join(errs...)
}

// AgentParams is the per-agent slice of the tuning.
func (t Tuning) AgentParams() agent.Params {
	p := agent.DefaultParams()
	p.DespawnFarRadius = t.Despawn.FarRadius
	p.DespawnNearRadius = t.Despawn.NearRadius
	p.DespawnIdleTicks = t.Despawn.IdleTicks
	p.DespawnOdds = t.Despawn.Odds
	p.HookSampleMask = t.Despawn.HookSampleMask
	p.FaceSpeedHorizontal = t.Movement.FaceYawRate
	p.FaceSpeedVertical = t.Movement.FacePitchRate
	p.MountSpeed = t.Movement.MountSpeed
	p.LeashRecreateRadius = t.Movement.LeashRecreateRadius
	return p
}
