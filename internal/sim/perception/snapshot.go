package perception

import "github.com/google/uuid"

// Snapshot memoizes perception queries for a single tick. Every read names
// the tick it belongs to; a read for any other tick discards the cache first,
// so results never leak across tick boundaries.
type Snapshot struct {
	tick   uint64
	valid  bool
	seen   map[uuid.UUID]bool
	nearby map[string][]uuid.UUID

	hits   int
	misses int
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		seen:   map[uuid.UUID]bool{},
		nearby: map[string][]uuid.UUID{},
	}
}

// Reset clears all cached results and binds the snapshot to tick.
func (s *Snapshot) Reset(tick uint64) {
	clear(s.seen)
	clear(s.nearby)
	s.tick = tick
	s.valid = true
}

func (s *Snapshot) Tick() uint64 { return s.tick }

func (s *Snapshot) sync(tick uint64) {
	if !s.valid || s.tick != tick {
		s.Reset(tick)
	}
}

// CanSee returns the cached line-of-sight result for id, computing it with
// compute on the first query of the tick. A nil compute yields false.
func (s *Snapshot) CanSee(tick uint64, id uuid.UUID, compute func() bool) bool {
	s.sync(tick)
	if v, ok := s.seen[id]; ok {
		s.hits++
		return v
	}
	s.misses++
	v := compute != nil && compute()
	s.seen[id] = v
	return v
}

// Nearby returns the cached proximity query result under key. The returned
// slice is shared; callers must not modify it.
func (s *Snapshot) Nearby(tick uint64, key string, compute func() []uuid.UUID) []uuid.UUID {
	s.sync(tick)
	if v, ok := s.nearby[key]; ok {
		s.hits++
		return v
	}
	s.misses++
	var v []uuid.UUID
	if compute != nil {
		v = compute()
	}
	s.nearby[key] = v
	return v
}

// Stats reports cache hits and misses since creation.
func (s *Snapshot) Stats() (hits, misses int) { return s.hits, s.misses }
