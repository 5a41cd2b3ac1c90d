package ports

import (
	"context"

	"gosplit/domain/experiment"
)

// PolicyValidator is consulted once per experiment and once per variant before
// creation. A non-nil error rejects the experiment.
type PolicyValidator interface {
	ValidateExperiment(ctx context.Context, name string, config experiment.Config) error
	ValidateVariant(ctx context.Context, variant experiment.Variant) error
}
