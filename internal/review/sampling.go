// sampling.go: selects bounded subsets of annotation populations
package review

import (
	"math"
	"math/rand/v2"

	"github.com/clinreview/clinreview/internal/datastore"
)

// Sampler draws random subsets. Allocation math is pure and lives in the
// Allocate* functions; only the draw step consumes randomness, so realized
// counts are reproducible regardless of which members get picked.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a Sampler with a randomly seeded generator.
func NewSampler() *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededSampler creates a Sampler with a fixed seed for deterministic
// draws in tests.
func NewSeededSampler(seed1, seed2 uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// draw selects n distinct members uniformly without replacement.
func (s *Sampler) draw(ids []uint, n int) []uint {
	if n >= len(ids) {
		picked := make([]uint, len(ids))
		copy(picked, ids)
		return picked
	}
	perm := s.rng.Perm(len(ids))
	picked := make([]uint, n)
	for i := range n {
		picked[i] = ids[perm[i]]
	}
	return picked
}

// Uniform draws min(size, N) distinct members uniformly without
// replacement. An empty population yields an empty result.
func (s *Sampler) Uniform(ids []uint, size int) []uint {
	if len(ids) == 0 || size <= 0 {
		return nil
	}
	return s.draw(ids, min(size, len(ids)))
}

// AllocateProportional computes the per-stratum allocation for a target
// sample size. Strata are visited in sorted-label order; each non-empty
// stratum gets max(1, round(n_i/N * S)) capped by its own size and the
// remaining budget, and allocation stops once the budget is spent.
//
// Every non-empty stratum therefore contributes at least one sample while
// budget remains, at the cost of slightly oversampling small strata. That
// bias is accepted: an audit wants coverage of rare strata more than exact
// proportionality.
func AllocateProportional(strata Strata, size int) map[string]int {
	total := strata.Total()
	if total == 0 || size <= 0 {
		return map[string]int{}
	}

	remaining := min(size, total)
	allocations := make(map[string]int, len(strata))
	for _, label := range strata.SortedLabels() {
		if remaining == 0 {
			break
		}
		stratumSize := len(strata[label])
		proportion := float64(stratumSize) / float64(total)
		allocation := max(1, int(math.Round(proportion*float64(min(size, total)))))
		allocation = min(allocation, stratumSize, remaining)
		allocations[label] = allocation
		remaining -= allocation
	}
	return allocations
}

// Proportional performs proportional stratified sampling: allocation via
// AllocateProportional, then a uniform draw within each stratum. It returns
// the selected members and the realized per-stratum counts for audit
// reporting.
func (s *Sampler) Proportional(strata Strata, size int) (picked []uint, counts map[string]int) {
	counts = AllocateProportional(strata, size)
	for _, label := range strata.SortedLabels() {
		allocation, ok := counts[label]
		if !ok {
			continue
		}
		picked = append(picked, s.draw(strata[label], allocation)...)
	}
	return picked, counts
}

// AllocateWeighted splits a sample budget between the low and high
// confidence groups. The low group's weight is multiplied by lowWeight so
// uncertain classifications are oversampled. Each group's allocation is
// capped by its own population and the residual budget goes to the other
// group, keeping lowAlloc+highAlloc == min(size, lowN+highN).
func AllocateWeighted(lowN, highN, size int, lowWeight float64) (lowAlloc, highAlloc int) {
	population := lowN + highN
	if population == 0 || size <= 0 {
		return 0, 0
	}
	size = min(size, population)

	weightedTotal := float64(lowN)*lowWeight + float64(highN)
	lowShare := float64(lowN) * lowWeight / weightedTotal
	lowAlloc = min(lowN, int(math.Round(lowShare*float64(size))))
	highAlloc = min(highN, size-lowAlloc)
	// residual budget from a capped group flows to the other
	lowAlloc = min(lowN, size-highAlloc)
	return lowAlloc, highAlloc
}

// ConfidenceWeighted partitions annotations at the confidence threshold and
// draws from each group per AllocateWeighted. Annotations without a
// confidence score count as low confidence. It returns the selected members
// and the realized group counts.
func (s *Sampler) ConfidenceWeighted(annotations []datastore.Annotation, size int, threshold, lowWeight float64) (picked []uint, lowCount, highCount int) {
	var lowIDs, highIDs []uint
	for i := range annotations {
		if annotationConfidence(&annotations[i]) < threshold {
			lowIDs = append(lowIDs, annotations[i].ID)
		} else {
			highIDs = append(highIDs, annotations[i].ID)
		}
	}

	lowAlloc, highAlloc := AllocateWeighted(len(lowIDs), len(highIDs), size, lowWeight)
	picked = append(picked, s.draw(lowIDs, lowAlloc)...)
	picked = append(picked, s.draw(highIDs, highAlloc)...)
	return picked, lowAlloc, highAlloc
}
