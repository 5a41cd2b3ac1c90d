package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelError, ParseLogLevel("error"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelTrace, ParseLogLevel("TRACE"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel(""))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("chatty"))
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelWarn)

	logger.Info("hidden %d", 1)
	logger.Debug("hidden %d", 2)
	assert.Empty(t, buf.String())

	logger.Warn("shown %d", 3)
	assert.Contains(t, buf.String(), "shown 3")
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelTrace).With("experiment", "exp_1")

	logger.Trace("tick")
	assert.Contains(t, buf.String(), "experiment=exp_1")
	assert.Contains(t, buf.String(), "tick")
}
