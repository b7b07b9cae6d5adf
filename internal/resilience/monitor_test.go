package resilience

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/storage"
)

type fakePauser struct {
	mu           sync.Mutex
	pauseCalls   int
	resumeCalls  int
}

func (f *fakePauser) PauseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
}

func (f *fakePauser) ResumeOutage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
}

func (f *fakePauser) pauses() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseCalls
}

func (f *fakePauser) resumes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumeCalls
}

func newTestMonitor(t *testing.T, cfg config.ResilienceConfig) (*Monitor, *storage.Store, *fakePauser) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pauser := &fakePauser{}
	return New(store, pauser, cfg, nil), store, pauser
}

func TestMonitor_PausesAfterOutageThreshold(t *testing.T) {
	m, _, pauser := newTestMonitor(t, config.ResilienceConfig{OutageAfter: "10ms"})

	m.handleState(false)
	assert.Equal(t, 0, pauser.pauses(), "must not pause on the first failed probe")

	time.Sleep(15 * time.Millisecond)
	m.handleState(false)
	assert.Equal(t, 1, pauser.pauses())

	// Further failed probes while already paused must not re-trigger PauseAll.
	m.handleState(false)
	assert.Equal(t, 1, pauser.pauses())
}

func TestMonitor_RecoverySchedulesResumeAfterDelay(t *testing.T) {
	m, _, pauser := newTestMonitor(t, config.ResilienceConfig{OutageAfter: "10ms", ResumeDelay: "20ms"})

	m.handleState(false)
	time.Sleep(15 * time.Millisecond)
	m.handleState(false)
	require.Equal(t, 1, pauser.pauses())

	m.handleState(true)
	assert.Equal(t, 0, pauser.resumes(), "resume must be delayed, not immediate")

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && pauser.resumes() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, pauser.resumes())
}

func TestMonitor_TriggerPauseAndResume(t *testing.T) {
	m, _, pauser := newTestMonitor(t, config.ResilienceConfig{})

	m.TriggerPause()
	assert.Equal(t, 1, pauser.pauses())

	m.TriggerResume()
	assert.Equal(t, 1, pauser.resumes())
}

func TestMonitor_RecordStateWritesSystemStatus(t *testing.T) {
	m, store, _ := newTestMonitor(t, config.ResilienceConfig{})

	m.recordState(false)
	st, err := store.GetSystemState()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, models.NetworkOffline, st.NetworkStatus)

	m.recordState(true)
	st, err = store.GetSystemState()
	require.NoError(t, err)
	assert.Equal(t, models.NetworkOnline, st.NetworkStatus)
}

func TestParseDuration_FallsBackOnEmptyOrInvalid(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("", 5*time.Second))
	assert.Equal(t, 5*time.Second, parseDuration("not-a-duration", 5*time.Second))
	assert.Equal(t, 2*time.Second, parseDuration("2s", 5*time.Second))
}
