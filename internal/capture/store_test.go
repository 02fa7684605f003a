package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/netcheck/pkg/lg"
)

func seedPhase(t *testing.T, rec *Recorder, host string, phase Phase, outputs map[string]string, order []string) {
	t.Helper()
	ctx := context.Background()
	for _, cmd := range order {
		_, err := rec.Record(ctx, host, cmd, phase, outputs[cmd])
		require.NoError(t, err)
	}
}

func TestPairedCommandsIntersection(t *testing.T) {
	ctx := context.Background()
	backend := NewFSBackend(t.TempDir())
	rec := NewRecorder(backend, lg.Discard)
	store := NewStore(backend)

	seedPhase(t, rec, "r1", PhasePre,
		map[string]string{"show version": "vA", "show clock": "t1", "show ip route": "r"},
		[]string{"show version", "show clock", "show ip route"})
	seedPhase(t, rec, "r1", PhasePost,
		map[string]string{"show clock": "t2", "show version": "vA", "show bgp summary": "b"},
		[]string{"show clock", "show version", "show bgp summary"})

	p, err := store.PairedCommands(ctx, "r1")
	require.NoError(t, err)

	// paired keeps pre capture order, not post
	assert.Equal(t, []string{"show version", "show clock"}, p.Paired)
	assert.Equal(t, []string{"show ip route"}, p.PreOnly)
	assert.Equal(t, []string{"show bgp summary"}, p.PostOnly)
}

func TestPairedCommandsNoPost(t *testing.T) {
	ctx := context.Background()
	backend := NewFSBackend(t.TempDir())
	rec := NewRecorder(backend, lg.Discard)
	store := NewStore(backend)

	seedPhase(t, rec, "r1", PhasePre,
		map[string]string{"show version": "vA"}, []string{"show version"})

	p, err := store.PairedCommands(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, p.Paired)
	assert.Equal(t, []string{"show version"}, p.PreOnly)
	assert.Empty(t, p.PostOnly)
}

func TestStoreReadBack(t *testing.T) {
	ctx := context.Background()
	backend := NewFSBackend(t.TempDir())
	rec := NewRecorder(backend, lg.Discard)
	store := NewStore(backend)

	_, err := rec.Record(ctx, "r1", "show clock", PhasePost, "t2")
	require.NoError(t, err)

	got, err := store.Read(ctx, "r1", "show clock", PhasePost)
	require.NoError(t, err)
	assert.Equal(t, "t2", got)
}
