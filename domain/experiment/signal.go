package experiment

import (
	"time"

	"gosplit/domain/core"
)

// SignalKind classifies a monitoring signal
type SignalKind string

const (
	SignalSignificanceAchieved SignalKind = "SIGNIFICANCE_ACHIEVED"
	SignalDurationExceeded     SignalKind = "DURATION_EXCEEDED"
	SignalQualityIssue         SignalKind = "QUALITY_ISSUE"
	SignalLowSampleSize        SignalKind = "LOW_SAMPLE_SIZE"
)

// Severity of a signal
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityHigh    Severity = "HIGH"
)

// Signal is raised by the monitor. It never changes experiment state.
type Signal struct {
	Kind           SignalKind        `json:"kind"`
	ExperimentID   core.ExperimentID `json:"experiment_id"`
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	Value          float64           `json:"value"`
	Threshold      float64           `json:"threshold"`
	Recommendation string            `json:"recommendation,omitempty"`
	WinningVariant core.VariantID    `json:"winning_variant,omitempty"`
	At             time.Time         `json:"at"`
}
