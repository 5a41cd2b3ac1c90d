// Package policy implements the creation-time content checks consulted once
// per experiment and once per variant.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	domain "gosplit/domain/experiment"
	"gosplit/ports"
)

// DefaultMaxPayloadBytes caps the encoded size of a variant payload
const DefaultMaxPayloadBytes = 64 * 1024

// ContentPolicy rejects experiments and variants that mention blocked terms
// or carry oversized payloads
type ContentPolicy struct {
	blocked         []string
	maxPayloadBytes int
	validate        *validator.Validate
}

var _ ports.PolicyValidator = (*ContentPolicy)(nil)

// NewContentPolicy creates a policy. Terms match case-insensitively.
func NewContentPolicy(blockedTerms []string, maxPayloadBytes int) *ContentPolicy {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	terms := make([]string, 0, len(blockedTerms))
	for _, t := range blockedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &ContentPolicy{blocked: terms, maxPayloadBytes: maxPayloadBytes, validate: validator.New()}
}

// ValidateExperiment checks the experiment name
func (p *ContentPolicy) ValidateExperiment(_ context.Context, name string, _ domain.Config) error {
	if term := p.match(name); term != "" {
		return fmt.Errorf("experiment name contains blocked term %q", term)
	}
	return nil
}

// ValidateVariant checks the variant fields and its encoded payload
func (p *ContentPolicy) ValidateVariant(_ context.Context, v domain.Variant) error {
	if err := p.validate.Struct(v); err != nil {
		return fmt.Errorf("variant is malformed: %w", err)
	}
	if term := p.match(v.Name); term != "" {
		return fmt.Errorf("variant name contains blocked term %q", term)
	}
	if len(v.Payload) == 0 {
		return nil
	}

	encoded, err := json.Marshal(v.Payload)
	if err != nil {
		return fmt.Errorf("variant payload is not serializable: %w", err)
	}
	if len(encoded) > p.maxPayloadBytes {
		return fmt.Errorf("variant payload is %d bytes, limit %d", len(encoded), p.maxPayloadBytes)
	}
	if term := p.match(string(encoded)); term != "" {
		return fmt.Errorf("variant payload contains blocked term %q", term)
	}
	return nil
}

func (p *ContentPolicy) match(text string) string {
	lower := strings.ToLower(text)
	for _, term := range p.blocked {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}
