package game

import (
	"math/rand"
	"sync"
)

// RNGSource hands out independent *rand.Rand values from a single seeded
// stream, so concurrent room starts each get their own generator (a bare
// *rand.Rand is not safe for concurrent use) while the whole server's shuffle
// sequence stays reproducible from one seed — the same injectable-randomness
// pattern the teacher's Dictionary uses for word selection, extended to
// safely fan out across goroutines.
type RNGSource struct {
	mu   sync.Mutex
	seed *rand.Rand
}

// NewRNGSource builds a source from a single int64 seed.
func NewRNGSource(seed int64) *RNGSource {
	return &RNGSource{seed: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh, independently usable *rand.Rand.
func (s *RNGSource) Next() *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rand.New(rand.NewSource(s.seed.Int63()))
}
