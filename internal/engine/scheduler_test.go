package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopStage struct{ name string }

func (s noopStage) Name() string { return s.name }
func (s noopStage) Step(int)     {}

func stageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = stage.Name()
	}
	return names
}

func TestSequentialSchedulerKeepsRegistrationOrder(t *testing.T) {
	stages := []Stage{noopStage{"a"}, noopStage{"b"}, noopStage{"c"}}

	ordered := SequentialScheduler{}.Order(1, stages)

	assert.Equal(t, []string{"a", "b", "c"}, stageNames(ordered))
}

func TestShuffledSchedulerIsAPermutation(t *testing.T) {
	stages := []Stage{noopStage{"a"}, noopStage{"b"}, noopStage{"c"}, noopStage{"d"}}
	s := NewShuffledScheduler(1)

	ordered := s.Order(1, stages)

	require.Len(t, ordered, len(stages))
	assert.ElementsMatch(t, stageNames(stages), stageNames(ordered))
	// The input slice is never reordered in place.
	assert.Equal(t, []string{"a", "b", "c", "d"}, stageNames(stages))
}

func TestShuffledSchedulerSeedReproducible(t *testing.T) {
	stages := []Stage{noopStage{"a"}, noopStage{"b"}, noopStage{"c"}, noopStage{"d"}, noopStage{"e"}}

	first := NewShuffledScheduler(99)
	second := NewShuffledScheduler(99)

	for tick := 1; tick <= 10; tick++ {
		assert.Equal(t, stageNames(first.Order(tick, stages)), stageNames(second.Order(tick, stages)))
	}
}
