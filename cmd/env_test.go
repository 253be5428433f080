package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/places-import/internal/resilience"
)

func TestLogBreakerTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	logBreakerTransition(resilience.CircuitClosed, resilience.CircuitOpen)
	logBreakerTransition(resilience.CircuitHalfOpen, resilience.CircuitClosed)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "open", entries[0].ContextMap()["to"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "half-open", entries[1].ContextMap()["from"])
}
