package autoconnect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	mu        sync.Mutex
	connectFn func(ctx context.Context, address string) error
	reads     int
}

func (f *fakeConnector) Connect(ctx context.Context, address string) error {
	if f.connectFn != nil {
		return f.connectFn(ctx, address)
	}
	return nil
}

func (f *fakeConnector) Disconnect(address string) error { return nil }

func (f *fakeConnector) ReadCharacteristic(ctx context.Context, address, charUUID string) ([]byte, error) {
	f.mu.Lock()
	f.reads++
	f.mu.Unlock()
	return []byte("BlueFusion"), nil
}

// Scenario C from spec §8: exponential backoff 1s -> 2s -> 4s, then
// should_retry=false once max_retries is exhausted.
func TestScenarioC_RetryDelaySequence(t *testing.T) {
	c := &managedConnection{
		config: Config{
			InitialRetryDelay: time.Second,
			MaxRetryDelay:     time.Minute,
			RetryStrategy:     ExponentialBackoff,
			MaxRetries:        3,
			MaxConsecutiveFailures: 10,
		},
		enabled: true,
		state:   Disconnected,
	}

	c.retryCount = 0
	assert.Equal(t, time.Second, c.calculateRetryDelay())
	c.retryCount = 1
	assert.Equal(t, 2*time.Second, c.calculateRetryDelay())
	c.retryCount = 2
	assert.Equal(t, 4*time.Second, c.calculateRetryDelay())

	assert.True(t, c.shouldRetry())
	c.retryCount = 3
	assert.False(t, c.shouldRetry())
}

func TestCalculateRetryDelayCapsAtMax(t *testing.T) {
	c := &managedConnection{
		config: Config{
			InitialRetryDelay: time.Second,
			MaxRetryDelay:     5 * time.Second,
			RetryStrategy:     ExponentialBackoff,
		},
		retryCount: 10,
	}
	assert.Equal(t, 5*time.Second, c.calculateRetryDelay())
}

func TestShouldRetryFalseWhenDisabled(t *testing.T) {
	c := &managedConnection{config: Config{MaxRetries: 5, MaxConsecutiveFailures: 5}, enabled: false}
	assert.False(t, c.shouldRetry())
}

func TestShouldRetryFalseWhenPaused(t *testing.T) {
	c := &managedConnection{config: Config{MaxRetries: 5, MaxConsecutiveFailures: 5}, enabled: true, state: Paused}
	assert.False(t, c.shouldRetry())
}

func TestMetricsUpdateTracksStability(t *testing.T) {
	var m Metrics
	m.update(true, 2*time.Second)
	m.update(false, 0)
	m.update(true, 4*time.Second)

	assert.Equal(t, 3, m.TotalAttempts)
	assert.Equal(t, 2, m.SuccessfulConnections)
	assert.Equal(t, 1, m.FailedConnections)
	assert.Equal(t, 0, m.ConsecutiveFailures)
	assert.InDelta(t, 2.0/3.0, m.StabilityScore, 1e-9)
	assert.Equal(t, 3*time.Second, m.AverageConnectionTime)
}

func TestMetricsConsecutiveFailuresResetOnSuccess(t *testing.T) {
	var m Metrics
	m.update(false, 0)
	m.update(false, 0)
	assert.Equal(t, 2, m.ConsecutiveFailures)
	m.update(true, time.Second)
	assert.Equal(t, 0, m.ConsecutiveFailures)
}

func TestAddAndRemoveManagedDevice(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(&fakeConnector{}, nil, statePath)

	m.AddManagedDevice("AA:BB:CC:DD:EE:01", DefaultConfig())
	status, ok := m.GetConnectionStatus("AA:BB:CC:DD:EE:01")
	require.True(t, ok)
	assert.Equal(t, Disconnected, status.State)

	m.RemoveManagedDevice("AA:BB:CC:DD:EE:01")
	_, ok = m.GetConnectionStatus("AA:BB:CC:DD:EE:01")
	assert.False(t, ok)
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(&fakeConnector{}, nil, statePath)
	m.AddManagedDevice("AA:BB:CC:DD:EE:02", DefaultConfig())

	m.mu.Lock()
	m.devices["AA:BB:CC:DD:EE:02"].metrics.update(true, time.Second)
	m.mu.Unlock()
	require.NoError(t, m.saveState())

	m2 := NewManager(&fakeConnector{}, nil, statePath)
	status, ok := m2.GetConnectionStatus("AA:BB:CC:DD:EE:02")
	require.True(t, ok)
	assert.Equal(t, 1, status.Metrics.TotalAttempts)
	assert.Equal(t, 1, status.Metrics.SuccessfulConnections)
}

func TestLoadStateVersionMismatchEmitsEvent(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"version":"0.1","devices":{}}`), 0o600))

	var events []Event
	m := NewManager(&fakeConnector{}, nil, statePath)
	m.RegisterEventCallback(func(e Event) { events = append(events, e) })
	m.loadState()

	found := false
	for _, e := range events {
		if e.Type == EventStateVersionMismatch {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAttemptConnectionSuccessUpdatesMetrics(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	connector := &fakeConnector{connectFn: func(ctx context.Context, address string) error { return nil }}
	m := NewManager(connector, nil, statePath)
	m.AddManagedDevice("AA:BB:CC:DD:EE:03", DefaultConfig())

	m.attemptConnection(context.Background(), "AA:BB:CC:DD:EE:03")

	status, ok := m.GetConnectionStatus("AA:BB:CC:DD:EE:03")
	require.True(t, ok)
	assert.Equal(t, Connected, status.State)
	assert.Equal(t, 1, status.Metrics.SuccessfulConnections)
}

func TestAttemptConnectionFailureSetsFailedState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	connector := &fakeConnector{connectFn: func(ctx context.Context, address string) error { return errors.New("refused") }}
	m := NewManager(connector, nil, statePath)
	m.AddManagedDevice("AA:BB:CC:DD:EE:04", DefaultConfig())

	m.attemptConnection(context.Background(), "AA:BB:CC:DD:EE:04")

	status, ok := m.GetConnectionStatus("AA:BB:CC:DD:EE:04")
	require.True(t, ok)
	assert.Equal(t, Failed, status.State)
	assert.Equal(t, 1, status.Metrics.FailedConnections)
}

func TestGenerateAnalyticsReportCountsByState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(&fakeConnector{}, nil, statePath)
	m.AddManagedDevice("AA:BB:CC:DD:EE:05", DefaultConfig())
	m.AddManagedDevice("AA:BB:CC:DD:EE:06", DefaultConfig())

	report := m.GenerateAnalyticsReport()
	assert.Equal(t, 2, report.ConnectionStates[Disconnected])
	assert.Len(t, report.PerDevice, 2)
}

func TestGetConnectionSummaryFormatsPercentage(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	m := NewManager(&fakeConnector{}, nil, statePath)
	m.AddManagedDevice("AA:BB:CC:DD:EE:07", DefaultConfig())
	m.mu.Lock()
	m.devices["AA:BB:CC:DD:EE:07"].metrics.update(true, time.Second)
	m.mu.Unlock()

	summary := m.GetConnectionSummary()
	assert.Contains(t, summary["AA:BB:CC:DD:EE:07"], "100%")
}
