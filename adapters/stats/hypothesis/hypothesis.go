// Package hypothesis implements the five test families used to compare experiment
// variants: Welch's t-test, chi-square, Mann-Whitney U, one-way ANOVA and a
// Bayesian difference of means. Every test is a pure function of its input groups.
package hypothesis

import (
	"context"
	"fmt"
	"math"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/aggregate"
	istats "gosplit/internal/stats"
)

// DefaultMinGroupSize is the fewest in-scope values per group any family accepts.
// Families also enforce their own hard floor (2 per group, 3 overall for ANOVA).
const DefaultMinGroupSize = 10

// Options tunes every family
type Options struct {
	Alpha        float64
	MinGroupSize int
	Tails        istats.TailStrategy
}

// DefaultOptions returns α=0.05, DefaultMinGroupSize and the approximate tails
func DefaultOptions() Options {
	return Options{
		Alpha:        0.05,
		MinGroupSize: DefaultMinGroupSize,
		Tails:        istats.ApproximateTails{},
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = def.Alpha
	}
	if o.MinGroupSize <= 0 {
		o.MinGroupSize = def.MinGroupSize
	}
	if o.Tails == nil {
		o.Tails = def.Tails
	}
	return o
}

// minimum returns the effective per-group floor for a family with the given hard floor
func (o Options) minimum(floor int) int {
	if o.MinGroupSize > floor {
		return o.MinGroupSize
	}
	return floor
}

// Group is a labelled sample of metric values
type Group struct {
	Label  string
	Values []float64
}

func (g Group) summary() stats.GroupSummary {
	return stats.GroupSummary{
		Label:    g.Label,
		Mean:     istats.Mean(g.Values),
		Variance: istats.Variance(g.Values),
		N:        len(g.Values),
	}
}

// Proportion is a success count over trials for one group
type Proportion struct {
	Label     string
	Successes int
	Trials    int
}

// ObservationGroup is the raw observations of one variant
type ObservationGroup struct {
	Label        string
	Observations []experiment.Observation
}

// GroupsFromObservations builds one ObservationGroup per variant, in variant order
func GroupsFromObservations(observations []experiment.Observation, variants []core.VariantID) []ObservationGroup {
	partitioned := aggregate.GroupByVariant(observations, variants)
	groups := make([]ObservationGroup, len(variants))
	for i, v := range variants {
		groups[i] = ObservationGroup{Label: v.String(), Observations: partitioned[i]}
	}
	return groups
}

// RequiresTwoGroups reports whether a family compares exactly two groups
func RequiresTwoGroups(family stats.TestFamily) bool {
	switch family {
	case stats.FamilyWelchT, stats.FamilyMannWhitney, stats.FamilyBayesian:
		return true
	}
	return false
}

// Engine dispatches analysis requests to the test families
type Engine struct {
	aggregator  *aggregate.Aggregator
	opts        Options
	welch       *WelchTTest
	chiSquare   *ChiSquareTest
	mannWhitney *MannWhitneyTest
	anova       *ANOVATest
	bayesian    *BayesianTest
}

// NewEngine creates an engine. A nil aggregator gets the standard metric scopes.
func NewEngine(aggregator *aggregate.Aggregator, opts Options) *Engine {
	if aggregator == nil {
		aggregator = aggregate.NewAggregator()
	}
	return &Engine{
		aggregator:  aggregator,
		opts:        opts.normalized(),
		welch:       NewWelchTTest(),
		chiSquare:   NewChiSquareTest(),
		mannWhitney: NewMannWhitneyTest(),
		anova:       NewANOVATest(),
		bayesian:    NewBayesianTest(),
	}
}

// Options returns the engine's normalized options
func (e *Engine) Options() Options {
	return e.opts
}

// Aggregator returns the metric aggregator the engine extracts values with
func (e *Engine) Aggregator() *aggregate.Aggregator {
	return e.aggregator
}

// Run executes one family over the observation groups. alpha<=0 uses the engine default.
// Insufficient data yields a Valid=false result; misuse (fewer than two groups, a
// two-group family given more, an unknown family) is an error.
func (e *Engine) Run(family stats.TestFamily, groups []ObservationGroup, metric string, alpha float64) (stats.AnalysisResult, error) {
	if len(groups) < 2 {
		return stats.AnalysisResult{}, fmt.Errorf("%w: got %d groups", core.ErrTooFewVariants, len(groups))
	}

	opts := e.opts
	if alpha > 0 && alpha < 1 {
		opts.Alpha = alpha
	}

	resolved := family.Resolve(len(groups))
	if RequiresTwoGroups(resolved) && len(groups) != 2 {
		return stats.AnalysisResult{}, core.NewValidationError("family",
			fmt.Sprintf("%s compares exactly two groups, got %d", resolved, len(groups)))
	}

	var res stats.AnalysisResult
	switch resolved {
	case stats.FamilyWelchT:
		res = e.welch.Compare(e.values(groups[0], metric), e.values(groups[1], metric), metric, opts)
	case stats.FamilyChiSquare:
		res = e.chiSquare.CompareProportions(proportions(groups), opts)
	case stats.FamilyMannWhitney:
		res = e.mannWhitney.Compare(e.values(groups[0], metric), e.values(groups[1], metric), metric, opts)
	case stats.FamilyANOVA:
		valueGroups := make([]Group, len(groups))
		for i, g := range groups {
			valueGroups[i] = e.values(g, metric)
		}
		res = e.anova.Compare(valueGroups, metric, opts)
	case stats.FamilyBayesian:
		res = e.bayesian.Compare(e.values(groups[0], metric), e.values(groups[1], metric), metric, opts)
	default:
		return stats.AnalysisResult{}, fmt.Errorf("%w: %q", core.ErrUnknownTestFamily, family)
	}
	return finite(res), nil
}

// finite downgrades a result whose statistic or p-value is NaN or ±Inf
func finite(res stats.AnalysisResult) stats.AnalysisResult {
	if !res.Valid {
		return res
	}
	for _, v := range []float64{res.Statistic, res.PValue, res.EffectSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out := stats.Invalid(res.Family, res.Metric, "test statistic is not finite")
			out.Groups = res.Groups
			out.Alpha = res.Alpha
			out.Recommendation = "Check for constant or degenerate metric values"
			return out
		}
	}
	return res
}

// RunAll runs every family that applies to the number of groups, concurrently.
// Results come back in AllFamilies order.
func (e *Engine) RunAll(ctx context.Context, groups []ObservationGroup, metric string, alpha float64) ([]stats.AnalysisResult, error) {
	families := make([]stats.TestFamily, 0, len(stats.AllFamilies()))
	for _, f := range stats.AllFamilies() {
		if RequiresTwoGroups(f) && len(groups) != 2 {
			continue
		}
		families = append(families, f)
	}

	type indexed struct {
		result stats.AnalysisResult
		err    error
		index  int
	}
	resultChan := make(chan indexed, len(families))

	for i, family := range families {
		go func(family stats.TestFamily, idx int) {
			res, err := e.Run(family, groups, metric, alpha)
			resultChan <- indexed{result: res, err: err, index: idx}
		}(family, i)
	}

	results := make([]stats.AnalysisResult, len(families))
	for range families {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resultChan:
			if r.err != nil {
				return nil, r.err
			}
			results[r.index] = r.result
		}
	}
	return results, nil
}

func (e *Engine) values(g ObservationGroup, metric string) Group {
	return Group{Label: g.Label, Values: e.aggregator.Values(g.Observations, metric)}
}

// GoodnessOfFit runs the chi-square goodness-of-fit test of observed against
// expected frequencies. alpha<=0 uses the engine default. Mismatched lengths and
// non-positive expected cells are errors.
func (e *Engine) GoodnessOfFit(observed, expected []float64, alpha float64) (stats.AnalysisResult, error) {
	opts := e.opts
	if alpha > 0 {
		opts.Alpha = alpha
	}
	res, err := e.chiSquare.GoodnessOfFit(observed, expected, opts)
	if err != nil {
		return stats.AnalysisResult{}, err
	}
	return finite(res), nil
}

// Assumptions screens metric in every group for normality and, for two groups,
// equal variances. The checks are advisory and never change the chosen family.
func (e *Engine) Assumptions(groups []ObservationGroup, metric string) stats.AssumptionChecks {
	checks := stats.AssumptionChecks{Metric: metric, Normality: make([]stats.NormalityCheck, len(groups))}
	values := make([][]float64, len(groups))
	for i, g := range groups {
		values[i] = e.values(g, metric).Values
		checks.Normality[i] = istats.ValidateNormality(values[i])
		checks.Normality[i].Label = g.Label
	}
	if len(groups) == 2 {
		v := istats.ValidateHomoscedasticity(values[0], values[1])
		if math.IsInf(v.FRatio, 1) {
			// one constant group; keep the result encodable
			v.FRatio = math.MaxFloat64
		}
		checks.Variance = &v
	}
	return checks
}

func proportions(groups []ObservationGroup) []Proportion {
	out := make([]Proportion, len(groups))
	for i, g := range groups {
		out[i] = Proportion{
			Label:     g.Label,
			Successes: aggregate.CountSuccessful(g.Observations),
			Trials:    len(g.Observations),
		}
	}
	return out
}

// Helper functions for result interpretation

// effectLabel classifies a standardized effect size
func effectLabel(effect float64) string {
	abs := math.Abs(effect)
	if abs < 0.2 {
		return "Small"
	} else if abs < 0.5 {
		return "Medium"
	}
	return "Large"
}

// groupName renders "Group 1 (label)" or just "Group 1"
func groupName(index int, label string) string {
	if label == "" {
		return fmt.Sprintf("Group %d", index)
	}
	return fmt.Sprintf("Group %d (%s)", index, label)
}

func insufficient(family stats.TestFamily, metric, test string, need int, sizes ...int) stats.AnalysisResult {
	reason := fmt.Sprintf("insufficient data for %s: need at least %d samples per group, got %v", test, need, sizes)
	return stats.Invalid(family, metric, reason)
}
