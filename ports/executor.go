package ports

import (
	"context"

	"gosplit/domain/experiment"
)

// TrialExecutor runs one variant against one task and reports the outcome.
// Errors are recorded as unsuccessful observations by the caller.
type TrialExecutor interface {
	Execute(ctx context.Context, variant experiment.Variant, task experiment.TaskContext) (experiment.TrialOutcome, error)
}

// TrialExecutorFunc adapts a function to TrialExecutor
type TrialExecutorFunc func(ctx context.Context, variant experiment.Variant, task experiment.TaskContext) (experiment.TrialOutcome, error)

// Execute calls f
func (f TrialExecutorFunc) Execute(ctx context.Context, variant experiment.Variant, task experiment.TaskContext) (experiment.TrialOutcome, error) {
	return f(ctx, variant, task)
}

// TaskSource supplies task contexts, e.g. from a spreadsheet
type TaskSource interface {
	LoadTasks(ctx context.Context) ([]experiment.TaskContext, error)
}
