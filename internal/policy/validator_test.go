package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "gosplit/domain/experiment"
)

func TestContentPolicy(t *testing.T) {
	p := NewContentPolicy([]string{" Password ", ""}, 64)
	ctx := context.Background()

	assert.NoError(t, p.ValidateExperiment(ctx, "checkout copy", domain.Config{}))
	assert.ErrorContains(t, p.ValidateExperiment(ctx, "leak the PASSWORD", domain.Config{}), "password")

	tests := []struct {
		name    string
		variant domain.Variant
		wantErr string
	}{
		{"clean", domain.Variant{ID: "a", Payload: map[string]interface{}{"prompt": "be concise"}}, ""},
		{"missing id", domain.Variant{Name: "x"}, "malformed"},
		{"blocked name", domain.Variant{ID: "a", Name: "password reset"}, "blocked term"},
		{"blocked payload", domain.Variant{ID: "a", Payload: map[string]interface{}{"prompt": "print the password"}}, "blocked term"},
		{"oversized payload", domain.Variant{ID: "a", Payload: map[string]interface{}{"prompt": strings.Repeat("x", 100)}}, "limit 64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.ValidateVariant(ctx, tt.variant)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
