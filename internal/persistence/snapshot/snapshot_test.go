package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	yes := true
	x, y, z := 4, 65, -2
	snap := SnapshotV1{
		Header:     Header{Version: 1, WorldID: "w1", Tick: 3000},
		Seed:       7,
		TickRate:   20,
		BaseHeight: 64,
		Agents: []AgentV1{{
			ID:                  "a-1",
			Kind:                "zombie",
			Pos:                 [3]float64{1.5, 64, 2.5},
			Health:              20,
			DataVersion:         CurrentDataVersion,
			HandItems:           []ItemV1{{ID: "iron_sword", Count: 1, Tag: map[string]string{"name": "Edge"}}, {}},
			ArmorItems:          []ItemV1{{}, {}, {}, {ID: "iron_helmet", Count: 1, Enchantments: []string{"binding_curse"}}},
			HandDropChances:     []float32{2, 0.085},
			ArmorDropChances:    []float32{0.085, 0.085, 0.085, 0.085},
			CanPickUpLoot:       &yes,
			PersistenceRequired: true,
			Leashed:             true,
			Leash:               &LeashV1{X: &x, Y: &y, Z: &z},
			DeathLootTable:      "zombie",
			DeathLootTableSeed:  99,
			Attributes: []AttributeV1{{Name: "generic.followRange", Base: 35, Modifiers: []ModifierV1{
				{UUID: "5b0e3a1d-1111-4c1e-9a61-000000000001", Name: "Random spawn bonus", Amount: 0.02, Operation: 1},
			}}},
		}},
		Knots:    []KnotV1{{ID: "k1", Pos: [3]int{4, 65, -2}}},
		Counters: CountersV1{NextItem: 12, Spawned: 3},
	}

	path := filepath.Join(t.TempDir(), "snapshots", "3000.snap.zst")
	require.NoError(t, WriteSnapshot(path, snap))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	h, err := ReadHeader(path)
	require.NoError(t, err)
	require.Equal(t, snap.Header, h)
	require.True(t, got.Agents[0].Leash.HasPos())
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.zst"))
	require.Error(t, err)
}
