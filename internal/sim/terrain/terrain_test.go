package terrain

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flat() *Store {
	return NewStore(Gen{Seed: 1, BaseHeight: 64})
}

func TestStore_FlatColumns(t *testing.T) {
	s := flat()
	assert.Equal(t, 64, s.SurfaceY(0, 0))
	assert.Equal(t, 64, s.SurfaceY(-37, 1200))
	assert.True(t, s.Solid(Pos{3, 63, 3}))
	assert.False(t, s.Solid(Pos{3, 64, 3}))
	assert.Equal(t, Air, s.Block(Pos{3, 70, 3}))
	assert.Equal(t, 2, s.LoadedChunks())
}

func TestStore_EditsOverrideGeneration(t *testing.T) {
	s := flat()
	s.SetBlock(Pos{1, 64, 1}, Solid)
	s.SetBlock(Pos{1, 65, 1}, Solid)
	assert.Equal(t, 66, s.SurfaceY(1, 1))
	s.SetBlock(Pos{2, 63, 2}, Water)
	assert.True(t, s.Liquid(Pos{2, 63, 2}))
}

func TestStore_Deterministic(t *testing.T) {
	a := NewStore(Gen{Seed: 42, BaseHeight: 60, HeightVariance: 3, PoolPermille: 300})
	b := NewStore(Gen{Seed: 42, BaseHeight: 60, HeightVariance: 3, PoolPermille: 300})
	for x := -40; x < 40; x += 7 {
		for z := -40; z < 40; z += 5 {
			p := Pos{x, 60, z}
			require.Equal(t, a.SurfaceY(x, z), b.SurfaceY(x, z))
			require.Equal(t, a.Block(p), b.Block(p))
		}
	}
}

func TestCanCreatureSpawn(t *testing.T) {
	s := flat()
	assert.True(t, CanCreatureSpawn(s, OnGround, Pos{0, 64, 0}))
	assert.False(t, CanCreatureSpawn(s, OnGround, Pos{0, 66, 0}))
	assert.False(t, CanCreatureSpawn(s, OnGround, Pos{0, 63, 0}))
	assert.True(t, CanCreatureSpawn(s, InAir, Pos{0, 80, 0}))

	s.SetBlock(Pos{5, 64, 5}, Water)
	s.SetBlock(Pos{5, 63, 5}, Water)
	assert.True(t, CanCreatureSpawn(s, InWater, Pos{5, 64, 5}))
	assert.False(t, CanCreatureSpawn(s, InWater, Pos{5, 63, 5}))
	assert.False(t, CanCreatureSpawn(s, OnGround, Pos{5, 64, 5}))
}

func TestRule_CustomPredicateWins(t *testing.T) {
	s := flat()
	calls := 0
	r := Rule{Placement: OnGround, Custom: func(q Query, p Pos) bool { calls++; return p.Y > 100 }}
	assert.False(t, r.CanSpawnAt(s, Pos{0, 64, 0}))
	assert.True(t, r.CanSpawnAt(s, Pos{0, 101, 0}))
	assert.Equal(t, 2, calls)
	assert.False(t, Rule{}.CanSpawnAt(nil, Pos{}))
}

func TestParsePlacement(t *testing.T) {
	p, err := ParsePlacement("in_water")
	require.NoError(t, err)
	assert.Equal(t, InWater, p)
	_, err = ParsePlacement("underground")
	assert.Error(t, err)
}

func TestGridPathfinder_RoutesAroundWall(t *testing.T) {
	s := flat()
	for z := -3; z <= 3; z++ {
		s.SetBlock(Pos{2, 64, z}, Solid)
		s.SetBlock(Pos{2, 65, z}, Solid)
	}
	f := NewGridPathfinder(s)
	p, ok := f.FindPath(mgl64.Vec3{0.5, 64, 0.5}, mgl64.Vec3{4.5, 64, 0.5}, 32)
	require.True(t, ok)
	end, _ := p.Final()
	assert.Equal(t, mgl64.Vec3{4.5, 64, 0.5}, end)
	for _, wp := range p.Points() {
		assert.NotEqual(t, 2.5, wp.X(), "path crossed the wall at %v", wp)
	}

	q, ok := f.FindPath(mgl64.Vec3{0.5, 64, 0.5}, mgl64.Vec3{4.5, 64, 0.5}, 32)
	require.True(t, ok)
	assert.Equal(t, p.Points(), q.Points())
}

func TestGridPathfinder_DropDepth(t *testing.T) {
	s := flat()
	for x := -12; x <= 1; x++ {
		for z := -12; z <= 12; z++ {
			for y := 64; y <= 66; y++ {
				s.SetBlock(Pos{x, y, z}, Solid)
			}
		}
	}
	f := NewGridPathfinder(s)
	from, to := mgl64.Vec3{0.5, 67, 0.5}, mgl64.Vec3{4.5, 64, 0.5}

	_, ok := f.FindPath(from, to, 8)
	assert.False(t, ok, "plain search never drops three blocks")
	_, ok = f.FindPathDrop(from, to, 8, 2)
	assert.False(t, ok)
	p, ok := f.FindPathDrop(from, to, 8, 3)
	require.True(t, ok)
	end, _ := p.Final()
	assert.Equal(t, to, end)

	_, ok = f.FindPathDrop(to, from, 8, 3)
	assert.False(t, ok, "climbs stay limited to one block")
}

func TestGridPathfinder_TooFar(t *testing.T) {
	f := NewGridPathfinder(flat())
	_, ok := f.FindPath(mgl64.Vec3{0, 64, 0}, mgl64.Vec3{100, 64, 0}, 16)
	assert.False(t, ok)
	_, ok = (*GridPathfinder)(nil).FindPath(mgl64.Vec3{}, mgl64.Vec3{}, 1)
	assert.False(t, ok)
}

func TestStore_PoolsAreDeepEnoughForWaterSpawns(t *testing.T) {
	s := NewStore(Gen{Seed: 3, BaseHeight: 64, PoolPermille: 1000})
	var found *Pos
	for x := -48; x <= 48 && found == nil; x++ {
		for z := -48; z <= 48; z++ {
			if s.Liquid(Pos{x, 64, z}) {
				found = &Pos{x, 64, z}
				break
			}
		}
	}
	require.NotNil(t, found)
	assert.True(t, s.Liquid(found.Down()))
	assert.True(t, s.Solid(found.Down().Down()))
	assert.Equal(t, 64, s.SurfaceY(found.X, found.Z))
	assert.True(t, CanCreatureSpawn(s, InWater, *found))
	assert.False(t, CanCreatureSpawn(s, OnGround, *found))
}

func TestStore_EditsAreOrdered(t *testing.T) {
	s := flat()
	s.SetBlock(Pos{2, 64, 0}, Solid)
	s.SetBlock(Pos{-1, 70, 3}, Water)
	s.SetBlock(Pos{2, 63, 5}, Air)
	assert.Equal(t, []Edit{
		{Pos: Pos{-1, 70, 3}, Block: Water},
		{Pos: Pos{2, 63, 5}, Block: Air},
		{Pos: Pos{2, 64, 0}, Block: Solid},
	}, s.Edits())
}
