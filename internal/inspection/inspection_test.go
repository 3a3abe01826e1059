package inspection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/visual-aoi/internal/sharedfs"
)

func newTestManager(t *testing.T, idle time.Duration) *Manager {
	t.Helper()
	root := sharedfs.NewRoot(t.TempDir(), "/mnt/visual-aoi-shared/")
	return NewManager(root, idle)
}

func TestCreateAllocatesWorkspace(t *testing.T) {
	m := newTestManager(t, time.Hour)
	sess, err := m.Create("widget-a", ClientMetadata{"client": "scanner-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())
	_ = sess
}

func TestGetMissingSessionNotFound(t *testing.T) {
	m := newTestManager(t, time.Hour)
	_, err := m.Get([16]byte{})
	require.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestManager(t, time.Hour)
	sess, err := m.Create("widget-a", nil)
	require.NoError(t, err)

	require.NoError(t, m.Close(sess.ID))
	assert.Equal(t, 0, m.Count())
	assert.NoError(t, m.Close(sess.ID))
}

func TestSecondInflightInspectionConflicts(t *testing.T) {
	m := newTestManager(t, time.Hour)
	sess, err := m.Create("widget-a", nil)
	require.NoError(t, err)

	_, err = m.BeginInspection(sess.ID)
	require.NoError(t, err)

	_, err = m.BeginInspection(sess.ID)
	require.Error(t, err)

	m.EndInspection(sess, "result")
	_, err = m.BeginInspection(sess.ID)
	require.NoError(t, err)
}

func TestSweepClosesIdleSessions(t *testing.T) {
	m := newTestManager(t, time.Millisecond)
	_, err := m.Create("widget-a", nil)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.sweepOnce()

	assert.Equal(t, 0, m.Count())
}

func TestStartStopSweeperLifecycle(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()
}
