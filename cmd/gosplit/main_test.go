package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseVariantFlag(t *testing.T) {
	id, profile, err := parseVariantFlag("candidate=0.9")
	require.NoError(t, err)
	assert.Equal(t, core.VariantID("candidate"), id)
	assert.Equal(t, 0.9, profile.AccuracyMean)

	id, profile, err = parseVariantFlag("control")
	require.NoError(t, err)
	assert.Equal(t, core.VariantID("control"), id)
	assert.Equal(t, 0.82, profile.AccuracyMean)

	for _, bad := range []string{"=0.5", "x=abc", "x=1.5"} {
		_, _, err := parseVariantFlag(bad)
		assert.Error(t, err, bad)
	}
}

func TestPowerCommand(t *testing.T) {
	out, err := execute(t, "power", "--effect-size", "0.5", "--power", "0.8")
	require.NoError(t, err)
	assert.Contains(t, out, "sample size per group: 63")

	out, err = execute(t, "power", "--sample-size", "63", "--effect-size", "0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "power: 0.8")

	_, err = execute(t, "power", "--effect-size", "0.5")
	assert.Error(t, err)
}

func TestSimulateCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "simulate",
		"--variant", "control=0.70", "--variant", "candidate=0.90",
		"--tasks", "300", "--family", "welch_ttest", "--metric", "accuracy", "-o", "json")
	require.NoError(t, err)

	var analysis domain.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &analysis), out)
	assert.Equal(t, 300, analysis.TotalSamples)
	assert.True(t, analysis.Comparison.Valid)
	assert.True(t, analysis.Comparison.Significant)
	assert.Equal(t, core.VariantID("candidate"), analysis.WinningVariant)
}

func TestSimulateCommand_Text(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "simulate", "--tasks", "60", "--template", "BASIC_AB_TEST")
	require.NoError(t, err)
	assert.Contains(t, out, "60 samples")
	assert.Contains(t, out, "welch_ttest on accuracy")
}

func TestMigrateRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "migrate")
	assert.Error(t, err)
}
