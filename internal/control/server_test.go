package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/resilience"
	"github.com/hakim/reconcore/internal/stageengine"
	"github.com/hakim/reconcore/internal/storage"
	"github.com/hakim/reconcore/internal/taskqueue"
)

// blockingEngine satisfies taskqueue.Engine without running any real stage
// function — RunScan blocks until the test releases it, so a scan created
// through the control surface can be observed as "active" before it ever
// touches an external tool.
type blockingEngine struct {
	controls map[string]*stageengine.Control
	gates    map[string]chan struct{}
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		controls: make(map[string]*stageengine.Control),
		gates:    make(map[string]chan struct{}),
	}
}

func (e *blockingEngine) ControlFor(scanID string) *stageengine.Control {
	c, ok := e.controls[scanID]
	if !ok {
		c = stageengine.NewControl()
		e.controls[scanID] = c
	}
	return c
}

func (e *blockingEngine) RunScan(ctx context.Context, scanID string) error {
	g, ok := e.gates[scanID]
	if !ok {
		g = make(chan struct{})
		e.gates[scanID] = g
	}
	<-g
	return nil
}

func (e *blockingEngine) release(scanID string) {
	if g, ok := e.gates[scanID]; ok {
		close(g)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store, *taskqueue.Queue, *blockingEngine) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := newBlockingEngine()
	queue := taskqueue.New(store, engine, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	queue.Start(ctx)
	t.Cleanup(func() { cancel(); queue.Shutdown() })

	monitor := resilience.New(store, queue, config.ResilienceConfig{}, nil)

	srv := New(store, queue, monitor, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return ts, store, queue, engine
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateAndGetTarget(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/targets/", createTargetRequest{
		Domain:  "acme.com",
		Include: []string{"*.acme.com"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Target
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "acme.com", created.Domain)

	resp2 := doJSON(t, http.MethodGet, ts.URL+"/targets/"+created.ID, nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestCreateTarget_RejectsOutOfScopeDomain(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/targets/", createTargetRequest{
		Domain:  "evil.com",
		Include: []string{"*.acme.com"},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTarget_NotFound(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/targets/does-not-exist", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateScan_QueuesAndTracksActive(t *testing.T) {
	ts, store, queue, engine := newTestServer(t)

	target := models.NewTarget("acme", "acme.com")
	require.NoError(t, store.CreateTarget(target))

	resp := doJSON(t, http.MethodPost, ts.URL+"/scans/", createScanRequest{TargetID: target.ID})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sc models.Scan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sc))

	waitForCondition(t, func() bool { return len(queue.QueueStatus().Active) == 1 })

	pauseResp := doJSON(t, http.MethodPost, ts.URL+"/scans/"+sc.ID+"/pause", nil)
	defer pauseResp.Body.Close()
	assert.Equal(t, http.StatusOK, pauseResp.StatusCode)

	resumeResp := doJSON(t, http.MethodPost, ts.URL+"/scans/"+sc.ID+"/resume", nil)
	defer resumeResp.Body.Close()
	assert.Equal(t, http.StatusOK, resumeResp.StatusCode)

	engine.release(sc.ID)
}

func TestCreateScan_UnknownTargetReturnsNotFound(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/scans/", createScanRequest{TargetID: "ghost"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSystemStatus_ReportsQueueOccupancy(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/system/status", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status systemStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 0, status.QueuePending)
}

func TestSystemPauseResume_DelegatesToResilienceMonitor(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/system/pause", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2 := doJSON(t, http.MethodPost, ts.URL+"/system/resume", nil)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestSystemPause_ReturnsUnavailableWithoutMonitor(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer store.Close()

	engine := newBlockingEngine()
	queue := taskqueue.New(store, engine, nil, nil)
	srv := New(store, queue, nil, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/system/pause", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
