package terrain

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

type Block uint8

const (
	Air Block = iota
	Solid
	Water
)

func (b Block) String() string {
	switch b {
	case Solid:
		return "SOLID"
	case Water:
		return "WATER"
	default:
		return "AIR"
	}
}

type Pos struct {
	X, Y, Z int
}

func (p Pos) Up() Pos   { return Pos{p.X, p.Y + 1, p.Z} }
func (p Pos) Down() Pos { return Pos{p.X, p.Y - 1, p.Z} }

// Center returns the world-space point at the middle of the block's floor.
func (p Pos) Center() mgl64.Vec3 {
	return mgl64.Vec3{float64(p.X) + 0.5, float64(p.Y), float64(p.Z) + 0.5}
}

// BlockPos returns the block containing v.
func BlockPos(v mgl64.Vec3) Pos {
	return Pos{int(math.Floor(v.X())), int(math.Floor(v.Y())), int(math.Floor(v.Z()))}
}

type Gen struct {
	Seed           int64
	BaseHeight     int
	HeightVariance int
	// PoolPermille is the chance, per pool grid cell, of a water pool.
	PoolPermille uint64
	PoolGrid     int
	PoolRadius   int
}

func (g *Gen) applyDefaults() {
	if g.BaseHeight <= 0 {
		g.BaseHeight = 64
	}
	if g.HeightVariance < 0 {
		g.HeightVariance = 0
	}
	if g.PoolGrid <= 0 {
		g.PoolGrid = 48
	}
	if g.PoolRadius <= 0 {
		g.PoolRadius = 4
	}
	if g.PoolPermille > 1000 {
		g.PoolPermille = 1000
	}
}

type ChunkKey struct {
	CX int
	CZ int
}

type column struct {
	height int
	pool   bool
}

type chunk struct {
	cols [16 * 16]column
}

func (c *chunk) at(x, z int) column { return c.cols[x+z*16] }

// Store is a column-generated block world with sparse edits. Every column is
// solid below its surface height; pool columns hold two blocks of water at the
// surface. It is accessed only from the world loop goroutine.
type Store struct {
	gen    Gen
	chunks map[ChunkKey]*chunk
	edits  map[Pos]Block
}

func NewStore(gen Gen) *Store {
	gen.applyDefaults()
	return &Store{
		gen:    gen,
		chunks: map[ChunkKey]*chunk{},
		edits:  map[Pos]Block{},
	}
}

func (s *Store) column(x, z int) column {
	k := ChunkKey{CX: floorDiv(x, 16), CZ: floorDiv(z, 16)}
	ch := s.chunks[k]
	if ch == nil {
		ch = s.generate(k)
		s.chunks[k] = ch
	}
	return ch.at(mod(x, 16), mod(z, 16))
}

func (s *Store) generate(k ChunkKey) *chunk {
	ch := &chunk{}
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			wx := k.CX*16 + x
			wz := k.CZ*16 + z
			h := s.gen.BaseHeight
			if s.gen.HeightVariance > 0 {
				// Coarse 8x8 regions keep steps at most one block between most neighbors.
				h += int(hash2(s.gen.Seed, floorDiv(wx, 8), floorDiv(wz, 8)) % uint64(s.gen.HeightVariance+1))
			}
			pool := inCluster(s.gen.Seed+7, wx, wz, s.gen.PoolGrid, s.gen.PoolRadius, s.gen.PoolPermille)
			ch.cols[x+z*16] = column{height: h, pool: pool}
		}
	}
	return ch
}

func (s *Store) Block(p Pos) Block {
	if b, ok := s.edits[p]; ok {
		return b
	}
	c := s.column(p.X, p.Z)
	switch {
	case c.pool && (p.Y == c.height || p.Y == c.height-1):
		return Water
	case p.Y < c.height:
		return Solid
	default:
		return Air
	}
}

func (s *Store) SetBlock(p Pos, b Block) {
	s.edits[p] = b
}

func (s *Store) Solid(p Pos) bool  { return s.Block(p) == Solid }
func (s *Store) Liquid(p Pos) bool { return s.Block(p) == Water }

// SurfaceY returns the lowest non-solid y above the generated ground of the
// column, walking up through edited blocks.
func (s *Store) SurfaceY(x, z int) int {
	y := s.column(x, z).height
	for i := 0; i < 256 && s.Solid(Pos{x, y, z}); i++ {
		y++
	}
	return y
}

// LoadedChunks reports how many chunks have been generated.
func (s *Store) LoadedChunks() int { return len(s.chunks) }

func (s *Store) Seed() int64 { return s.gen.Seed }

func (s *Store) Gen() Gen { return s.gen }

type Edit struct {
	Pos   Pos
	Block Block
}

// Edits lists every block edit ordered by x, then y, then z.
func (s *Store) Edits() []Edit {
	out := make([]Edit, 0, len(s.edits))
	for p, b := range s.edits {
		out = append(out, Edit{Pos: p, Block: b})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Pos, out[j].Pos
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}
