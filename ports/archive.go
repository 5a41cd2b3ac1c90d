package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// ExperimentArchive persists completed experiments
type ExperimentArchive interface {
	Save(ctx context.Context, snapshot experiment.Snapshot) error
	Get(ctx context.Context, id core.ExperimentID) (experiment.Snapshot, error)
	List(ctx context.Context, limit int) ([]experiment.Summary, error)
}
