package ports

import (
	"context"

	"gosplit/domain/experiment"
)

// SignalSink receives monitoring signals
type SignalSink interface {
	Emit(ctx context.Context, signal experiment.Signal)
}
