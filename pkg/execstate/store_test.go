package execstate

import (
	"testing"

	"github.com/cuemby/fleet/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestMapStoreGetUnknown(t *testing.T) {
	s := NewMapStore()

	state, ok := s.Get("w1")
	assert.False(t, ok)
	assert.Empty(t, state)
}

func TestMapStorePutOverwrites(t *testing.T) {
	s := NewMapStore()

	s.Put("w1", types.ExecPending)
	state, ok := s.Get("w1")
	assert.True(t, ok)
	assert.Equal(t, types.ExecPending, state)

	s.Put("w1", types.ExecRunning)
	state, ok = s.Get("w1")
	assert.True(t, ok)
	assert.Equal(t, types.ExecRunning, state)
}

func TestMapStoreSnapshotIsACopy(t *testing.T) {
	s := NewMapStore()
	s.Put("w1", types.ExecRunning)

	snap := s.Snapshot()
	assert.Equal(t, types.ExecRunning, snap["w1"])

	snap["w1"] = types.ExecFailed
	state, _ := s.Get("w1")
	assert.Equal(t, types.ExecRunning, state, "mutating the snapshot must not affect the store")
}
