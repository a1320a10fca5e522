// sampling_test.go: allocation math and draw properties
package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIDs(start, count int) []uint {
	ids := make([]uint, count)
	for i := range count {
		ids[i] = uint(start + i)
	}
	return ids
}

func TestUniformCapsAtPopulation(t *testing.T) {
	s := NewSeededSampler(1, 1)

	picked := s.Uniform(makeIDs(1, 10), 5)
	assert.Len(t, picked, 5)

	picked = s.Uniform(makeIDs(1, 3), 10)
	assert.Len(t, picked, 3)

	assert.Empty(t, s.Uniform(nil, 5))
	assert.Empty(t, s.Uniform(makeIDs(1, 5), 0))
}

func TestUniformDrawsDistinctMembers(t *testing.T) {
	s := NewSeededSampler(7, 7)
	ids := makeIDs(1, 20)

	picked := s.Uniform(ids, 10)
	seen := make(map[uint]bool, len(picked))
	for _, id := range picked {
		assert.False(t, seen[id], "member %d drawn twice", id)
		seen[id] = true
	}
}

func TestAllocateProportionalRoundingScenario(t *testing.T) {
	// Population of 10 across strata of sizes {6,3,1}, requested size 5.
	// Proportions 0.6/0.3/0.1 give allocations 3 and round(1.5)=2, which
	// exhausts the budget before the smallest stratum is visited.
	strata := Strata{
		"a": makeIDs(1, 6),
		"b": makeIDs(7, 3),
		"c": makeIDs(10, 1),
	}

	counts := AllocateProportional(strata, 5)
	assert.Equal(t, 3, counts["a"])
	assert.Equal(t, 2, counts["b"])
	assert.NotContains(t, counts, "c")

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 5, total)
}

func TestAllocateProportionalMinimumOnePerStratum(t *testing.T) {
	// A tiny stratum still contributes one sample when budget allows.
	strata := Strata{
		"a-tiny": makeIDs(100, 3),
		"b-big":  makeIDs(1, 97),
	}

	counts := AllocateProportional(strata, 10)
	assert.GreaterOrEqual(t, counts["a-tiny"], 1)

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 10, total)
}

func TestAllocateProportionalCapsAtPopulation(t *testing.T) {
	strata := Strata{
		"a": makeIDs(1, 4),
		"b": makeIDs(5, 2),
	}

	counts := AllocateProportional(strata, 100)
	assert.Equal(t, 4, counts["a"])
	assert.Equal(t, 2, counts["b"])
}

func TestAllocateProportionalEmpty(t *testing.T) {
	assert.Empty(t, AllocateProportional(Strata{}, 5))
	assert.Empty(t, AllocateProportional(Strata{"a": makeIDs(1, 3)}, 0))
}

func TestProportionalRealizedCountsMatchAllocation(t *testing.T) {
	s := NewSeededSampler(3, 9)
	strata := Strata{
		"x": makeIDs(1, 8),
		"y": makeIDs(20, 5),
		"z": makeIDs(40, 2),
	}

	picked, counts := s.Proportional(strata, 9)
	assert.Len(t, picked, 9)

	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 9, total)

	// Every pick belongs to the stratum it was counted against.
	membership := make(map[uint]string)
	for label, members := range strata {
		for _, id := range members {
			membership[id] = label
		}
	}
	realized := make(map[string]int)
	for _, id := range picked {
		label, ok := membership[id]
		require.True(t, ok, "picked unknown member %d", id)
		realized[label]++
	}
	assert.Equal(t, counts, realized)
}

func TestAllocateWeightedProperties(t *testing.T) {
	tests := []struct {
		name      string
		lowN      int
		highN     int
		size      int
		lowWeight float64
	}{
		{"balanced", 50, 50, 30, 2.0},
		{"low heavy", 80, 20, 25, 2.0},
		{"high heavy", 10, 90, 40, 2.0},
		{"tiny low group", 2, 98, 50, 3.0},
		{"budget exceeds population", 5, 5, 100, 2.0},
		{"no low group", 0, 30, 10, 2.0},
		{"no high group", 30, 0, 10, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lowAlloc, highAlloc := AllocateWeighted(tt.lowN, tt.highN, tt.size, tt.lowWeight)

			expectedTotal := min(tt.size, tt.lowN+tt.highN)
			assert.Equal(t, expectedTotal, lowAlloc+highAlloc, "allocations must sum to min(size, population)")
			assert.LessOrEqual(t, lowAlloc, tt.lowN, "low allocation exceeds its population")
			assert.LessOrEqual(t, highAlloc, tt.highN, "high allocation exceeds its population")
			assert.GreaterOrEqual(t, lowAlloc, 0)
			assert.GreaterOrEqual(t, highAlloc, 0)
		})
	}
}

func TestAllocateWeightedOversamplesLowConfidence(t *testing.T) {
	// Equal group sizes with a 2x low weight: low gets two thirds.
	lowAlloc, highAlloc := AllocateWeighted(60, 60, 30, 2.0)
	assert.Equal(t, 20, lowAlloc)
	assert.Equal(t, 10, highAlloc)
}

func TestAllocateWeightedEmptyPopulation(t *testing.T) {
	lowAlloc, highAlloc := AllocateWeighted(0, 0, 10, 2.0)
	assert.Zero(t, lowAlloc)
	assert.Zero(t, highAlloc)
}
