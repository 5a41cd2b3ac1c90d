package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// SampleRecord is the minimal view of an observation needed to fingerprint a sample set.
type SampleRecord struct {
	ID      string
	Variant string
	Success bool
	Metrics map[string]float64
}

// ComputeSampleHash fingerprints an ordered sample set. Metric keys are sorted so map
// iteration order never changes the result.
func ComputeSampleHash(records []SampleRecord) Hash {
	var data strings.Builder
	for _, r := range records {
		data.WriteString(r.ID)
		data.WriteByte('|')
		data.WriteString(r.Variant)
		data.WriteString(fmt.Sprintf("|%t", r.Success))

		keys := make([]string, 0, len(r.Metrics))
		for k := range r.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data.WriteString(fmt.Sprintf("|%s=%v", k, r.Metrics[k]))
		}
		data.WriteByte('\n')
	}
	return NewHash([]byte(data.String()))
}
