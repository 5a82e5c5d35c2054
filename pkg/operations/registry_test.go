package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aundhe1m/backy-agent/pkg/types"
)

func TestBeginAndGet(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)

	require.NoError(t, r.Begin("g1", types.StateCreating))

	op, ok := r.Get("g1")
	require.True(t, ok)
	assert.Equal(t, types.StateCreating, op.State)
	assert.False(t, op.StartedAt.IsZero())
	assert.Nil(t, op.CompletedAt)

	_, ok = r.Get("g2")
	assert.False(t, ok)
}

func TestBeginConflictsWhileMutating(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)

	require.NoError(t, r.Begin("g1", types.StateCreating))

	err := r.Begin("g1", types.StateMounting)
	assert.ErrorIs(t, err, types.ErrConflict)

	// Different pools mutate independently.
	assert.NoError(t, r.Begin("g2", types.StateMounting))

	// After completion the GUID is free again.
	r.Complete("g1", types.StateReady, "")
	assert.NoError(t, r.Begin("g1", types.StateUnmounting))
}

func TestTranscriptAppendOnly(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)
	require.NoError(t, r.Begin("g1", types.StateCreating))

	r.Append("g1", "$ mdadm --create /dev/md0", "mdadm: array /dev/md0 started.")

	first, ok := r.Transcript("g1")
	require.True(t, ok)
	require.Len(t, first, 2)

	r.Append("g1", "$ mkfs.ext4 -F /dev/md0", "done")

	second, ok := r.Transcript("g1")
	require.True(t, ok)
	require.Len(t, second, 4)
	assert.Equal(t, first, second[:2], "existing lines never change")

	// The earlier snapshot is unaffected by later appends.
	assert.Len(t, first, 2)
}

func TestCompleteRecordsOutcome(t *testing.T) {
	r := NewRegistry(time.Hour, time.Hour)
	require.NoError(t, r.Begin("g1", types.StateCreating))
	r.SetDetails("g1", "md0", "/mnt/p1")

	r.Complete("g1", types.StateFailed, "mkfs.ext4 failed")

	op, ok := r.Get("g1")
	require.True(t, ok)
	assert.Equal(t, types.StateFailed, op.State)
	assert.Equal(t, "mkfs.ext4 failed", op.ErrorMessage)
	assert.Equal(t, "md0", op.MdDeviceName)
	assert.Equal(t, "/mnt/p1", op.MountPath)
	require.NotNil(t, op.CompletedAt)
}

func TestSweepEvictsOnlyExpiredCompleted(t *testing.T) {
	r := NewRegistry(24*time.Hour, time.Hour)

	require.NoError(t, r.Begin("old", types.StateCreating))
	r.Complete("old", types.StateReady, "")
	require.NoError(t, r.Begin("fresh", types.StateCreating))
	r.Complete("fresh", types.StateReady, "")
	require.NoError(t, r.Begin("running", types.StateCreating))

	// Age the "old" entry beyond retention.
	r.mu.Lock()
	aged := time.Now().Add(-25 * time.Hour)
	r.ops["old"].CompletedAt = &aged
	r.mu.Unlock()

	r.sweep(time.Now())

	_, ok := r.Get("old")
	assert.False(t, ok)
	_, ok = r.Get("fresh")
	assert.True(t, ok)
	_, ok = r.Get("running")
	assert.True(t, ok)
}
