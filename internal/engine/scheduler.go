package engine

import "math/rand"

// Stage is one steppable pipeline participant. The five core stages and any
// registered workload agents all implement it; dispatch is via this
// interface only.
type Stage interface {
	Name() string
	Step(tick int)
}

// Scheduler decides the per-tick invocation order of the stages. The
// pipeline is correct under any ordering: a stage running before its
// upstream producer simply sees an empty queue and catches up next tick.
type Scheduler interface {
	Order(tick int, stages []Stage) []Stage
}

// SequentialScheduler invokes stages in registration order every tick.
type SequentialScheduler struct{}

func (SequentialScheduler) Order(_ int, stages []Stage) []Stage {
	return stages
}

// ShuffledScheduler draws a fresh random permutation of the stages each
// tick, seeded for reproducibility.
type ShuffledScheduler struct {
	rng *rand.Rand
}

func NewShuffledScheduler(seed int64) *ShuffledScheduler {
	return &ShuffledScheduler{rng: rand.New(rand.NewSource(seed))}
}

func (s *ShuffledScheduler) Order(_ int, stages []Stage) []Stage {
	ordered := make([]Stage, len(stages))
	copy(ordered, stages)
	s.rng.Shuffle(len(ordered), func(i, j int) {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	})
	return ordered
}
