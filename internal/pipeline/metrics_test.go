package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptmill/internal/record"
)

func TestMetrics_ObservePhase(t *testing.T) {
	m := NewMetrics()
	m.ObservePhase(PhaseDispatch, PhaseReport{
		Attempted: 4,
		Succeeded: 1,
		Failures:  map[string]int{"TIMEOUT": 2, "TOOL_FAILED": 1},
	})
	m.ObservePhase(PhaseDispatch, PhaseReport{Attempted: 1, Succeeded: 1})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.attempts.WithLabelValues(PhaseDispatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.successes.WithLabelValues(PhaseDispatch)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues(PhaseDispatch, "TIMEOUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(PhaseDispatch, "TOOL_FAILED")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObservePhase(PhaseGenerate, PhaseReport{Attempted: 3, Succeeded: 3})
	m.ObserveCounts(record.Counts{Pending: 3, Completed: 7})
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.ObserveRun(start, start.Add(90*time.Second))

	path := filepath.Join(t.TempDir(), "promptmill.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)
	assert.Contains(t, out, `promptmill_phase_attempts_total{phase="generate"} 3`)
	assert.Contains(t, out, `promptmill_prompts{status="completed"} 7`)
	assert.Contains(t, out, `promptmill_prompts{status="pending"} 3`)
	assert.Contains(t, out, "promptmill_last_run_duration_seconds 90")
}

func TestRunIDs(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14], "version nibble")

	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
