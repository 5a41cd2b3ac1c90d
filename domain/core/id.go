package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ExperimentID  ID
	VariantID     ID
	ObservationID ID
	TaskID        ID
)

// String conversions for domain IDs
func (id ExperimentID) String() string  { return ID(id).String() }
func (id VariantID) String() string     { return ID(id).String() }
func (id ObservationID) String() string { return ID(id).String() }
func (id TaskID) String() string        { return ID(id).String() }

// NewExperimentID returns a fresh, time-ordered experiment identifier.
func NewExperimentID() ExperimentID { return ExperimentID("exp_" + NewID()) }

// NewObservationID returns a fresh observation identifier.
func NewObservationID() ObservationID { return ObservationID(NewID()) }

// ParseExperimentID parses a string into ExperimentID
func ParseExperimentID(s string) (ExperimentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("experiment ID cannot be empty")
	}
	return ExperimentID(s), nil
}

// ParseVariantID parses a string into VariantID
func ParseVariantID(s string) (VariantID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("variant ID cannot be empty")
	}
	return VariantID(s), nil
}
