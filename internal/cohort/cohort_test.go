package cohort

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
)

func observation(variant, category string, accuracy, latency, cost float64) experiment.Observation {
	return experiment.Observation{
		VariantID:  core.VariantID(variant),
		Success:    true,
		Metrics:    map[string]float64{"accuracy": accuracy, "latency_ms": latency, "cost": cost},
		Attributes: map[string]string{AttrAgentCategory: category},
	}
}

func TestAnalyze_RuleNeverMatches(t *testing.T) {
	def := Definition{
		Name:     "NEVER",
		Segments: []string{"X", "Y"},
		Rule:     func(experiment.Observation, Context) string { return "nowhere" },
	}
	obs := []experiment.Observation{observation("a", "", 0.9, 100, 0.1)}

	report := NewAnalyzer(nil, nil, nil).Analyze(def, obs, Context{})

	assert.Equal(t, "NEVER", report.Definition)
	assert.Empty(t, report.Segments)
	assert.Empty(t, report.Insights)
}

func TestAnalyzeByName_Unknown(t *testing.T) {
	_, err := NewAnalyzer(nil, nil, nil).AnalyzeByName("NOPE", nil, Context{})
	assert.ErrorIs(t, err, core.ErrUnknownCohort)
	assert.True(t, core.IsNotFoundError(err))
}

func TestAnalyze_AgentCategory(t *testing.T) {
	obs := []experiment.Observation{
		observation("a", "DEVELOPMENT_EXPERTS", 0.95, 800, 0.1),
		observation("b", "DEVELOPMENT_EXPERTS", 0.85, 1200, 0.1),
		observation("a", "BUSINESS_LOGIC", 0.60, 4000, 0.3),
		observation("b", "BUSINESS_LOGIC", 0.70, 3500, 0.3),
		observation("a", "", 0.99, 100, 0.0), // UNKNOWN is not a listed segment
	}

	report, err := NewAnalyzer(nil, nil, nil).AnalyzeByName(AgentCategory, obs, Context{})
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	assert.Equal(t, "DEVELOPMENT_EXPERTS", report.Segments[0].Segment)
	assert.Equal(t, "BUSINESS_LOGIC", report.Segments[1].Segment)
	assert.Equal(t, 2, report.Segments[0].SampleSize)
	assert.InDelta(t, 0.9, report.Segments[0].Metric("accuracy").Mean, 1e-12)
	assert.InDelta(t, 0.005, report.Segments[0].Variance["accuracy"], 1e-12)

	byType := map[stats.InsightType][]stats.Insight{}
	for _, in := range report.Insights {
		byType[in.Type] = append(byType[in.Type], in)
	}
	require.Len(t, byType[stats.InsightBestPerforming], 1)
	assert.Equal(t, "DEVELOPMENT_EXPERTS", byType[stats.InsightBestPerforming][0].Cohort)
	// 0.9·0.4 + 1·0.3 + (1 − 0.2)·0.3
	assert.InDelta(t, 0.9, byType[stats.InsightBestPerforming][0].Value, 1e-12)

	require.Len(t, byType[stats.InsightImprovementOpportunity], 1)
	assert.Equal(t, "BUSINESS_LOGIC", byType[stats.InsightImprovementOpportunity][0].Cohort)
	require.Len(t, byType[stats.InsightPerformanceIssue], 1)
	assert.InDelta(t, 3750, byType[stats.InsightPerformanceIssue][0].Value, 1e-9)
	assert.Len(t, report.Segments[1].Recommendations, 2)
}

func TestAnalyze_SegmentMetricsIncludeFailedTrials(t *testing.T) {
	failed := observation("b", "DEVELOPMENT_EXPERTS", 0, 500, 0.1)
	failed.Success = false
	obs := []experiment.Observation{
		observation("a", "DEVELOPMENT_EXPERTS", 0.9, 700, 0.1),
		observation("b", "DEVELOPMENT_EXPERTS", 0.9, 900, 0.1),
		failed,
	}

	report, err := NewAnalyzer(nil, nil, nil).AnalyzeByName(AgentCategory, obs, Context{})
	require.NoError(t, err)

	require.Len(t, report.Segments, 1)
	segment := report.Segments[0]
	assert.Equal(t, 3, segment.SampleSize)
	assert.Equal(t, 3, segment.Metric("accuracy").N)
	assert.InDelta(t, 0.6, segment.Metric("accuracy").Mean, 1e-12)
	assert.InDelta(t, 2.0/3.0, segment.SuccessRate, 1e-12)
	// 0.6 is under the accuracy floor once the failure counts
	assert.Contains(t, segment.Recommendations, "Specialize variants for this segment to raise accuracy")
}

func TestInsights_NoBestWhenScoresNonPositive(t *testing.T) {
	segments := []stats.CohortResult{{
		Segment:     "EXPENSIVE",
		SuccessRate: 0,
		Metrics: []stats.MetricSummary{
			{Metric: "accuracy", Mean: 0.9},
			{Metric: "cost", Mean: 2.0},
		},
	}}

	insights := Insights(segments)

	for _, in := range insights {
		assert.NotEqual(t, stats.InsightBestPerforming, in.Type)
	}
}

func TestBuiltinRules(t *testing.T) {
	defs := map[string]Definition{}
	for _, d := range BuiltinDefinitions() {
		defs[d.Name] = d
	}

	tests := []struct {
		def  string
		obs  experiment.Observation
		want string
	}{
		{TaskComplexity, experiment.Observation{}, "MEDIUM"},
		{TaskComplexity, experiment.Observation{Attributes: map[string]string{AttrTaskComplexity: "COMPLEX"}}, "COMPLEX"},
		{CostSensitivity, experiment.Observation{}, "BALANCED"},
		{AgentCategory, experiment.Observation{}, Unassigned},
		{ResponseTime, experiment.Observation{Metrics: map[string]float64{"latency_ms": 500}}, "FAST (<1s)"},
		{ResponseTime, experiment.Observation{Metrics: map[string]float64{"latency_ms": 3500}}, "SLOW (>3s)"},
		{ResponseTime, experiment.Observation{}, "NORMAL (1-3s)"},
	}

	for _, tt := range tests {
		t.Run(tt.def+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, defs[tt.def].Rule(tt.obs, Context{}))
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{AgentCategory, CostSensitivity, ResponseTime, TaskComplexity}, r.Names())

	err := r.Register(Definition{Name: "NO_RULE"})
	assert.True(t, core.IsValidationError(err))

	require.NoError(t, r.Register(Definition{
		Name:     "REGION",
		Segments: []string{"EU", "US"},
		Rule:     func(o experiment.Observation, _ Context) string { return o.Attribute("region") },
	}))
	def, err := r.Get("REGION")
	require.NoError(t, err)
	assert.Equal(t, []string{"EU", "US"}, def.Segments)
}

func TestAnalyze_PerSegmentComparison(t *testing.T) {
	var obs []experiment.Observation
	for i := 0; i < 20; i++ {
		delta := 0.01 * float64(i%2*2-1)
		obs = append(obs,
			observation("a", "AI_ML_SPECIALISTS", 0.95+delta, 500, 0.1),
			observation("b", "AI_ML_SPECIALISTS", 0.70+delta, 500, 0.1),
			observation("a", "USER_EXPERIENCE", 0.90+delta, 500, 0.1),
		)
	}
	engine := hypothesis.NewEngine(nil, hypothesis.DefaultOptions())
	ctx := Context{Variants: []core.VariantID{"a", "b"}, Family: stats.FamilyAuto, Metric: "accuracy"}

	report, err := NewAnalyzer(nil, engine, nil).AnalyzeByName(AgentCategory, obs, ctx)
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	mixed := report.Segments[0]
	require.NotNil(t, mixed.Comparison)
	assert.Equal(t, stats.FamilyWelchT, mixed.Comparison.Family)
	assert.True(t, mixed.Comparison.Significant)
	assert.Contains(t, mixed.Recommendations, "Variants differ significantly within this segment")

	single := report.Segments[1]
	assert.Nil(t, single.Comparison)
}
