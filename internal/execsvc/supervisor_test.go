package execsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorCreateListGet(t *testing.T) {
	sup := NewSupervisor(24*time.Hour, 0, testLogger(t))
	script := makeScript(t, "true")

	id := sup.Create(script, nil, nil)
	require.NotEmpty(t, id)

	rs := sup.Get(id)
	require.NotNil(t, rs)

	_, err := rs.GetReturnCode(context.Background())
	require.NoError(t, err)

	snapshots := sup.List()
	require.Len(t, snapshots, 1)
	assert.Equal(t, id, snapshots[0].ID)
}

func TestSupervisorInsertionOrder(t *testing.T) {
	sup := NewSupervisor(24*time.Hour, 0, testLogger(t))
	script := makeScript(t, "sleep 0.2")

	id1 := sup.Create(script, nil, nil)
	id2 := sup.Create(script, nil, nil)
	id3 := sup.Create(script, nil, nil)

	snapshots := sup.List()
	require.Len(t, snapshots, 3)
	assert.Equal(t, []string{id1, id2, id3}, []string{snapshots[0].ID, snapshots[1].ID, snapshots[2].ID})
}

func TestSupervisorDeleteRemovesImmediatelyAndCleansScratch(t *testing.T) {
	sup := NewSupervisor(24*time.Hour, 0, testLogger(t))
	script := makeScript(t, "sleep 5")

	scratch := t.TempDir()
	marker := filepath.Join(scratch, "marker")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	id := sup.Create(script, nil, []string{scratch})

	require.NoError(t, sup.Delete(context.Background(), id))

	assert.Nil(t, sup.Get(id))
	assert.Empty(t, sup.List())

	_, statErr := os.Stat(scratch)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSupervisorDeleteUnknownIDReturnsNotFound(t *testing.T) {
	sup := NewSupervisor(24*time.Hour, 0, testLogger(t))
	err := sup.Delete(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestSupervisorCleanupDelayRemovesAfterExpiry(t *testing.T) {
	sup := NewSupervisor(50*time.Millisecond, 0, testLogger(t))
	script := makeScript(t, "true")

	scratch := t.TempDir()
	id := sup.Create(script, nil, []string{scratch})

	rs := sup.Get(id)
	require.NotNil(t, rs)
	_, err := rs.GetReturnCode(context.Background())
	require.NoError(t, err)

	require.NotNil(t, sup.Get(id), "record should linger until cleanup delay elapses")

	assert.Eventually(t, func() bool {
		return sup.Get(id) == nil
	}, time.Second, 10*time.Millisecond)

	_, statErr := os.Stat(scratch)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSupervisorShutdownKillsAndCleansUp(t *testing.T) {
	sup := NewSupervisor(24*time.Hour, 0, testLogger(t))
	script := makeScript(t, "sleep 5")

	scratch := t.TempDir()
	sup.Create(script, nil, []string{scratch})

	sup.Shutdown(context.Background())

	_, statErr := os.Stat(scratch)
	assert.True(t, os.IsNotExist(statErr))
}
