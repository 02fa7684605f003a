package diffengine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/netcheck/internal/capture"
	"github.com/andrej220/netcheck/pkg/lg"
)

func newEngine(t *testing.T) (*Engine, *capture.Recorder) {
	t.Helper()
	backend := capture.NewFSBackend(t.TempDir())
	store := capture.NewStore(backend)
	return NewEngine(store, lg.Discard), capture.NewRecorder(backend, lg.Discard)
}

func record(t *testing.T, rec *capture.Recorder, host, cmd string, phase capture.Phase, out string) {
	t.Helper()
	_, err := rec.Record(context.Background(), host, cmd, phase, out)
	require.NoError(t, err)
}

func TestDiffIdenticalOutputs(t *testing.T) {
	engine, rec := newEngine(t)
	record(t, rec, "r1", "show version", capture.PhasePre, "vA")
	record(t, rec, "r1", "show version", capture.PhasePost, "vA")

	report, err := engine.Diff(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.False(t, report.Entries[0].Changed)
	assert.Empty(t, report.Entries[0].Unified)
	assert.Equal(t, 0, report.Changed())
}

func TestDiffChangedLine(t *testing.T) {
	engine, rec := newEngine(t)
	record(t, rec, "r1", "show ip route", capture.PhasePre, "a\nb\nc")
	record(t, rec, "r1", "show ip route", capture.PhasePost, "a\nx\nc")

	report, err := engine.Diff(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)

	e := report.Entries[0]
	assert.True(t, e.Changed)
	assert.Contains(t, e.Unified, "-b")
	assert.Contains(t, e.Unified, "+x")
	// unchanged lines appear as context
	assert.Contains(t, e.Unified, " a")
	assert.Contains(t, e.Unified, " c")
}

func TestDiffMissingCounterpartSkipped(t *testing.T) {
	engine, rec := newEngine(t)
	record(t, rec, "r1", "show version", capture.PhasePre, "vA")
	record(t, rec, "r1", "show version", capture.PhasePost, "vA")
	record(t, rec, "r1", "show clock", capture.PhasePre, "t1")

	report, err := engine.Diff(context.Background(), "r1")
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, "show version", report.Entries[0].Command)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "show clock", report.Skipped[0].Command)
	assert.Equal(t, "no post counterpart", report.Skipped[0].Reason)
}

func TestDiffEntryOrderFollowsPre(t *testing.T) {
	engine, rec := newEngine(t)
	preOrder := []string{"show version", "show clock", "show bgp summary"}
	for _, cmd := range preOrder {
		record(t, rec, "r1", cmd, capture.PhasePre, "x")
	}
	// post captured in reverse; report order must still follow pre
	for i := len(preOrder) - 1; i >= 0; i-- {
		record(t, rec, "r1", preOrder[i], capture.PhasePost, "x")
	}

	report, err := engine.Diff(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, report.Entries, len(preOrder))
	for i, cmd := range preOrder {
		assert.Equal(t, cmd, report.Entries[i].Command)
	}
}

func TestDiffEndToEnd(t *testing.T) {
	engine, rec := newEngine(t)
	host := "10.0.0.1"
	record(t, rec, host, "show version", capture.PhasePre, "vA")
	record(t, rec, host, "show clock", capture.PhasePre, "t1")
	record(t, rec, host, "show version", capture.PhasePost, "vA")
	record(t, rec, host, "show clock", capture.PhasePost, "t2")

	report, err := engine.Diff(context.Background(), host)
	require.NoError(t, err)
	require.Len(t, report.Entries, 2)

	version, clock := report.Entries[0], report.Entries[1]
	assert.Equal(t, "show version", version.Command)
	assert.False(t, version.Changed)

	assert.Equal(t, "show clock", clock.Command)
	assert.True(t, clock.Changed)
	assert.Contains(t, clock.Unified, "-t1")
	assert.Contains(t, clock.Unified, "+t2")
	assert.Equal(t, 1, report.Changed())
}

func TestRenderReport(t *testing.T) {
	engine, rec := newEngine(t)
	record(t, rec, "r1", "show version", capture.PhasePre, "vA")
	record(t, rec, "r1", "show version", capture.PhasePost, "vA")
	record(t, rec, "r1", "show clock", capture.PhasePre, "t1")
	record(t, rec, "r1", "show clock", capture.PhasePost, "t2")
	record(t, rec, "r1", "show ip route", capture.PhasePre, "r")

	report, err := engine.Diff(context.Background(), "r1")
	require.NoError(t, err)
	report.RunID = "test-run"

	text := report.Render()
	assert.Contains(t, text, "Host:      r1")
	assert.Contains(t, text, "Run:       test-run")
	assert.Contains(t, text, NoDifferences)
	assert.Contains(t, text, "-t1")
	assert.Contains(t, text, "+t2")
	assert.Contains(t, text, "Skipped: show ip route (no post counterpart)")
	// two delimiter lines per compared command and per skipped command
	assert.Equal(t, 6, strings.Count(text, separator))
}
