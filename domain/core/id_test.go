package core

import (
	"strings"
	"testing"
	"time"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestNewExperimentIDPrefix(t *testing.T) {
	id := NewExperimentID()
	if !strings.HasPrefix(id.String(), "exp_") {
		t.Errorf("Expected exp_ prefix, got %s", id)
	}
}

// TestParseExperimentID tests experiment ID parsing
func TestParseExperimentID(t *testing.T) {
	tests := []struct {
		input    string
		expected ExperimentID
		hasError bool
	}{
		{"exp_1", ExperimentID("exp_1"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		result, err := ParseExperimentID(tt.input)
		if tt.hasError {
			if err == nil {
				t.Errorf("Expected error for input %q", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Unexpected error for input %q: %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, result)
		}
	}
}

func TestComputeSampleHash_StableAcrossMapOrder(t *testing.T) {
	records := []SampleRecord{
		{ID: "o1", Variant: "a", Success: true, Metrics: map[string]float64{"accuracy": 0.9, "cost": 0.1, "latency_ms": 800}},
		{ID: "o2", Variant: "b", Success: false, Metrics: nil},
	}

	first := ComputeSampleHash(records)
	for i := 0; i < 50; i++ {
		if got := ComputeSampleHash(records); got != first {
			t.Fatalf("hash changed between calls: %s != %s", got, first)
		}
	}

	records = append(records, SampleRecord{ID: "o3", Variant: "a", Success: true})
	if ComputeSampleHash(records) == first {
		t.Error("Expected hash to change when a record is appended")
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)
	clock.Advance(time.Hour)
	if got := clock.Now(); !got.Equal(start.Add(time.Hour)) {
		t.Errorf("Expected %v, got %v", start.Add(time.Hour), got)
	}
}
