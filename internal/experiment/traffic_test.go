package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
)

func TestTrafficWeights(t *testing.T) {
	variants := []domain.Variant{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, trafficWeights(variants, nil), 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.25},
		trafficWeights(variants, map[core.VariantID]float64{"a": 2, "b": 1, "c": 1}), 1e-12)
}

func TestPickVariant(t *testing.T) {
	weights := []float64{0.2, 0.3, 0.5}
	assert.Equal(t, 0, pickVariant(weights, 0.0))
	assert.Equal(t, 1, pickVariant(weights, 0.2))
	assert.Equal(t, 2, pickVariant(weights, 0.99))
	assert.Equal(t, 2, pickVariant([]float64{0.3, 0.3, 0.3}, 0.95))
}

func TestSeededSplitApproximatesWeights(t *testing.T) {
	rnd := NewSeededRandom(42)
	weights := trafficWeights([]domain.Variant{{ID: "a"}, {ID: "b"}}, map[core.VariantID]float64{"a": 0.8, "b": 0.2})

	counts := make([]int, 2)
	for i := 0; i < 10000; i++ {
		counts[pickVariant(weights, rnd.Float64())]++
	}
	assert.InDelta(t, 0.8, float64(counts[0])/10000, 0.02)
}

func TestValidateTrafficSplit(t *testing.T) {
	variants := []domain.Variant{{ID: "a"}, {ID: "b"}}
	assert.NoError(t, validateTrafficSplit(variants, nil))
	assert.NoError(t, validateTrafficSplit(variants, map[core.VariantID]float64{"a": 1}))
	assert.Error(t, validateTrafficSplit(variants, map[core.VariantID]float64{"a": -1, "b": 2}))
	assert.Error(t, validateTrafficSplit(variants, map[core.VariantID]float64{"a": 0, "b": 0}))
}

func TestRegistryArchiveMoves(t *testing.T) {
	r := NewRegistry()
	r.insert(&record{id: "x"})
	r.insert(&record{id: "y"})

	assert.True(t, r.archive("x"))
	assert.False(t, r.archive("x"))

	_, archived, ok := r.get("x")
	assert.True(t, ok)
	assert.True(t, archived)

	active, completed := r.counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, completed)
	assert.Equal(t, core.ExperimentID("y"), r.list(false)[0].id)
}
