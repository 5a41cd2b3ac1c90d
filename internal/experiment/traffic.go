package experiment

import (
	"math/rand"
	"sync"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/ports"
)

// lockedRand is a seeded math/rand source guarded for concurrent use
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSeededRandom returns a concurrency-safe RandomSource with a fixed seed
func NewSeededRandom(seed int64) ports.RandomSource {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.Float64()
}

// trafficWeights returns normalized weights in variant order. A missing or
// all-zero split means equal traffic.
func trafficWeights(variants []domain.Variant, split map[core.VariantID]float64) []float64 {
	weights := make([]float64, len(variants))
	total := 0.0
	for i, v := range variants {
		w := split[v.ID]
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(variants))
		}
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// pickVariant maps a uniform draw onto cumulative weights
func pickVariant(weights []float64, draw float64) int {
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return i
		}
	}
	return len(weights) - 1
}

// validateTrafficSplit checks that every key names a variant and weights are non-negative
func validateTrafficSplit(variants []domain.Variant, split map[core.VariantID]float64) error {
	if len(split) == 0 {
		return nil
	}
	known := make(map[core.VariantID]bool, len(variants))
	for _, v := range variants {
		known[v.ID] = true
	}
	total := 0.0
	for id, w := range split {
		if !known[id] {
			return core.NewValidationError("traffic_split", "unknown variant "+id.String())
		}
		if w < 0 {
			return core.NewValidationError("traffic_split", "weights must be non-negative")
		}
		total += w
	}
	if total <= 0 {
		return core.NewValidationError("traffic_split", "weights must not all be zero")
	}
	return nil
}
