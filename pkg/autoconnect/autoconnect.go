// Package autoconnect implements the per-device auto-connect state
// machine: priority-weighted admission control, configurable retry
// strategies, active health probing, stability metrics and a persisted
// JSON snapshot.
package autoconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluefusion/internal/groutine"
)

// DeviceNameCharacteristicUUID is the health-probe characteristic (2A00).
const DeviceNameCharacteristicUUID = "00002A00-0000-1000-8000-00805F9B34FB"

// State is a managed connection's current lifecycle state.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
	Failed       State = "failed"
	Paused       State = "paused"
)

// Priority is the admission weight for a managed device.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

func (p Priority) weight() int {
	switch p {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// RetryStrategy selects the backoff function for retry delay.
type RetryStrategy string

const (
	ExponentialBackoff RetryStrategy = "exponential_backoff"
	FixedInterval      RetryStrategy = "fixed_interval"
	LinearBackoff      RetryStrategy = "linear_backoff"
)

// Config is the per-device tunable set.
type Config struct {
	MaxRetries               int           `json:"max_retries"`
	InitialRetryDelay        time.Duration `json:"initial_retry_delay"`
	MaxRetryDelay             time.Duration `json:"max_retry_delay"`
	RetryStrategy             RetryStrategy `json:"retry_strategy"`
	ConnectionTimeout          time.Duration `json:"connection_timeout"`
	ReconnectOnFailure         bool          `json:"reconnect_on_failure"`
	HealthCheckInterval        time.Duration `json:"health_check_interval"`
	StabilityCheckInterval     time.Duration `json:"stability_check_interval"`
	MaxConsecutiveFailures     int           `json:"max_consecutive_failures"`
	Priority                   Priority      `json:"priority"`
	MaxConcurrentConnections   int           `json:"max_concurrent_connections"`
}

// DefaultConfig matches the defaults named in spec §3/§6.
func DefaultConfig() Config {
	return Config{
		MaxRetries:               5,
		InitialRetryDelay:        time.Second,
		MaxRetryDelay:            60 * time.Second,
		RetryStrategy:            ExponentialBackoff,
		ConnectionTimeout:        30 * time.Second,
		ReconnectOnFailure:       true,
		HealthCheckInterval:      30 * time.Second,
		StabilityCheckInterval:   10 * time.Second,
		MaxConsecutiveFailures:   3,
		Priority:                 Medium,
		MaxConcurrentConnections: 5,
	}
}

// Metrics accumulates per-device connection history.
type Metrics struct {
	TotalAttempts           int
	SuccessfulConnections   int
	FailedConnections       int
	LastConnected           time.Time
	LastFailure             time.Time
	AverageConnectionTime   time.Duration
	ConnectionUptime        time.Duration
	StabilityScore          float64
	ConsecutiveFailures     int
}

// update applies one connection attempt outcome to the running metrics.
func (m *Metrics) update(success bool, connectionTime time.Duration) {
	m.TotalAttempts++
	if success {
		m.SuccessfulConnections++
		m.ConsecutiveFailures = 0
		m.LastConnected = time.Now()
		totalTime := m.AverageConnectionTime * time.Duration(m.SuccessfulConnections-1)
		m.AverageConnectionTime = (totalTime + connectionTime) / time.Duration(m.SuccessfulConnections)
	} else {
		m.FailedConnections++
		m.ConsecutiveFailures++
		m.LastFailure = time.Now()
	}
	if m.TotalAttempts > 0 {
		m.StabilityScore = float64(m.SuccessfulConnections) / float64(m.TotalAttempts)
	}
}

// Connector is the capability set a collector must expose for the health
// probe and connection attempts; it is satisfied by pkg/blesource's
// Source without creating a package dependency cycle.
type Connector interface {
	Connect(ctx context.Context, address string) error
	Disconnect(address string) error
	ReadCharacteristic(ctx context.Context, address, charUUID string) ([]byte, error)
}

// EventType enumerates the complete set of events the manager emits.
type EventType string

const (
	EventConnectionAttempt    EventType = "connection_attempt"
	EventConnectionSuccess    EventType = "connection_success"
	EventConnectionFailed     EventType = "connection_failed"
	EventConnectionTimeout    EventType = "connection_timeout"
	EventConnectionError      EventType = "connection_error"
	EventHealthCheckSuccess   EventType = "health_check_success"
	EventHealthCheckTimeout   EventType = "health_check_timeout"
	EventHealthCheckFailed    EventType = "health_check_failed"
	EventConnectionStale      EventType = "connection_stale"
	EventDevicePaused         EventType = "device_paused"
	EventDeviceEnabled        EventType = "device_enabled"
	EventDeviceDisabled       EventType = "device_disabled"
	EventStateSaved           EventType = "state_saved"
	EventStateLoaded          EventType = "state_loaded"
	EventStateError           EventType = "state_error"
	EventStabilityReport      EventType = "stability_report"
	EventManagerError         EventType = "manager_error"
	EventConnectionQueued     EventType = "connection_queued"
	EventConnectionDequeued   EventType = "connection_dequeued"
	EventStateVersionMismatch EventType = "state_version_mismatch"
)

// Event is one entry in the manager's event stream.
type Event struct {
	Timestamp time.Time
	Address   string // or "manager"
	Type      EventType
	Data      map[string]any
}

// EventCallback receives emitted events.
type EventCallback func(Event)

// managedConnection is the internal per-device record.
type managedConnection struct {
	address     string
	config      Config
	state       State
	enabled     bool
	retryCount  int
	metrics     Metrics
	lastActivity time.Time
	pausedUntil time.Time
	hasTask     bool
	cancel      context.CancelFunc
}

func (c *managedConnection) calculateRetryDelay() time.Duration {
	var delay time.Duration
	switch c.config.RetryStrategy {
	case ExponentialBackoff:
		delay = c.config.InitialRetryDelay * time.Duration(math.Pow(2, float64(c.retryCount)))
	case LinearBackoff:
		delay = c.config.InitialRetryDelay * time.Duration(1+c.retryCount)
	default:
		delay = c.config.InitialRetryDelay
	}
	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}

func (c *managedConnection) shouldRetry() bool {
	if !c.enabled {
		return false
	}
	if c.state == Paused {
		return false
	}
	if c.retryCount >= c.config.MaxRetries {
		return false
	}
	if c.metrics.ConsecutiveFailures >= c.config.MaxConsecutiveFailures {
		return false
	}
	return true
}

// Manager supervises all managed devices' per-device state machines.
type Manager struct {
	connector Connector
	logger    *logrus.Logger
	statePath string

	mu      sync.Mutex
	devices map[string]*managedConnection

	callbacks []EventCallback

	cancelAll context.CancelFunc
}

// DefaultStatePath returns "<home>/.bluefusion/auto_connect_state.json".
func DefaultStatePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bluefusion", "auto_connect_state.json")
}

// NewManager constructs a Manager, best-effort loading any persisted state.
func NewManager(connector Connector, logger *logrus.Logger, statePath string) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{
		connector: connector,
		logger:    logger,
		statePath: statePath,
		devices:   map[string]*managedConnection{},
	}
	m.loadState()
	return m
}

// RegisterEventCallback subscribes cb to every emitted event.
func (m *Manager) RegisterEventCallback(cb EventCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) emit(address string, typ EventType, data map[string]any) {
	m.mu.Lock()
	cbs := append([]EventCallback(nil), m.callbacks...)
	m.mu.Unlock()
	ev := Event{Timestamp: time.Now(), Address: address, Type: typ, Data: data}
	for _, cb := range cbs {
		cb(ev)
	}
}

// AddManagedDevice registers address under cfg, always starting
// disconnected (last_state from a restored snapshot is informational).
func (m *Manager) AddManagedDevice(address string, cfg Config) {
	m.mu.Lock()
	m.devices[address] = &managedConnection{
		address: address,
		config:  cfg,
		state:   Disconnected,
		enabled: true,
	}
	m.mu.Unlock()
	_ = m.saveState()
}

// RemoveManagedDevice stops and deletes address's managed record.
func (m *Manager) RemoveManagedDevice(address string) {
	m.mu.Lock()
	if c, ok := m.devices[address]; ok && c.cancel != nil {
		c.cancel()
	}
	delete(m.devices, address)
	m.mu.Unlock()
	_ = m.saveState()
}

// EnableDevice re-enables a previously disabled device.
func (m *Manager) EnableDevice(address string) {
	m.setEnabled(address, true)
	m.emit(address, EventDeviceEnabled, nil)
}

// DisableDevice disables retries/health-checks for address without
// removing its configuration.
func (m *Manager) DisableDevice(address string) {
	m.setEnabled(address, false)
	m.emit(address, EventDeviceDisabled, nil)
}

func (m *Manager) setEnabled(address string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.devices[address]; ok {
		c.enabled = enabled
	}
}

// PauseDevice suspends address until now+duration.
func (m *Manager) PauseDevice(address string, duration time.Duration) {
	m.mu.Lock()
	if c, ok := m.devices[address]; ok {
		c.state = Paused
		c.pausedUntil = time.Now().Add(duration)
	}
	m.mu.Unlock()
	m.emit(address, EventDevicePaused, map[string]any{"until": time.Now().Add(duration)})
}

// Start launches priority-ordered admission and the supervisory tasks.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelAll = cancel

	groutine.Go(ctx, "autoconnect-stability-monitor", m.stabilityMonitor)
	groutine.Go(ctx, "autoconnect-state-saver", func(ctx context.Context) { m.saveStatePeriodically(ctx, 5*time.Minute) })

	m.startPriorityConnections(ctx)
}

// Stop cancels every per-device task and supervisory loop, then writes a
// final snapshot.
func (m *Manager) Stop() {
	if m.cancelAll != nil {
		m.cancelAll()
	}
	_ = m.saveState()
}

func (m *Manager) startPriorityConnections(ctx context.Context) {
	m.mu.Lock()
	addrs := make([]string, 0, len(m.devices))
	for addr := range m.devices {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return m.devices[addrs[i]].config.Priority.weight() > m.devices[addrs[j]].config.Priority.weight()
	})

	slots := 0
	if len(addrs) > 0 {
		slots = m.devices[addrs[0]].config.MaxConcurrentConnections
	}
	m.mu.Unlock()

	for i, addr := range addrs {
		if i < slots {
			m.launchDeviceTask(ctx, addr)
		} else {
			m.emit(addr, EventConnectionQueued, map[string]any{"queue_position": i - slots + 1})
		}
	}
}

func (m *Manager) launchDeviceTask(ctx context.Context, address string) {
	m.mu.Lock()
	c, ok := m.devices[address]
	if !ok || c.hasTask {
		m.mu.Unlock()
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.hasTask = true
	m.mu.Unlock()

	groutine.Go(taskCtx, "autoconnect-"+address, func(ctx context.Context) {
		m.connectionManager(ctx, address)
	})
}

// connectionManager is the main per-device state loop.
func (m *Manager) connectionManager(ctx context.Context, address string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.Lock()
		c, ok := m.devices[address]
		if !ok {
			m.mu.Unlock()
			return
		}
		state := c.state
		m.mu.Unlock()

		switch state {
		case Disconnected:
			if c.shouldRetry() {
				m.attemptConnection(ctx, address)
			} else {
				sleep(ctx, c.config.StabilityCheckInterval)
			}
		case Connected:
			m.monitorConnectionHealth(ctx, address)
		case Failed:
			sleep(ctx, c.calculateRetryDelay())
			m.mu.Lock()
			c.state = Disconnected
			m.mu.Unlock()
		case Paused:
			m.mu.Lock()
			deadline := c.pausedUntil
			m.mu.Unlock()
			if time.Now().After(deadline) {
				m.mu.Lock()
				c.state = Disconnected
				m.mu.Unlock()
			} else {
				sleep(ctx, time.Second)
			}
		default:
			sleep(ctx, c.config.StabilityCheckInterval)
		}
	}
}

func (m *Manager) attemptConnection(ctx context.Context, address string) {
	m.mu.Lock()
	c := m.devices[address]
	c.state = Connecting
	c.retryCount++
	timeout := c.config.ConnectionTimeout
	m.mu.Unlock()

	m.emit(address, EventConnectionAttempt, nil)

	start := time.Now()
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := m.connector.Connect(attemptCtx, address)
	elapsed := time.Since(start)

	m.mu.Lock()
	if err == nil {
		c.state = Connected
		c.retryCount = 0
		c.lastActivity = time.Now()
		c.metrics.update(true, elapsed)
		m.mu.Unlock()
		m.emit(address, EventConnectionSuccess, map[string]any{"connection_time": elapsed})
		return
	}

	c.metrics.update(false, elapsed)
	if attemptCtx.Err() != nil {
		c.state = Failed
		m.mu.Unlock()
		m.emit(address, EventConnectionTimeout, map[string]any{"error": err.Error()})
		return
	}
	c.state = Failed
	m.mu.Unlock()
	m.emit(address, EventConnectionFailed, map[string]any{"error": err.Error()})
}

func (m *Manager) monitorConnectionHealth(ctx context.Context, address string) {
	m.mu.Lock()
	c := m.devices[address]
	interval := c.config.HealthCheckInterval
	m.mu.Unlock()

	sleep(ctx, interval)

	m.mu.Lock()
	c, ok := m.devices[address]
	if !ok || c.state != Connected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := m.connector.ReadCharacteristic(readCtx, address, DeviceNameCharacteristicUUID)

	m.mu.Lock()
	if err == nil {
		c.lastActivity = time.Now()
		m.mu.Unlock()
		m.emit(address, EventHealthCheckSuccess, nil)
		return
	}
	c.state = Disconnected
	stale := !c.lastActivity.IsZero() && time.Since(c.lastActivity) > 2*c.config.HealthCheckInterval
	m.mu.Unlock()

	if readCtx.Err() != nil {
		m.emit(address, EventHealthCheckTimeout, map[string]any{"error": err.Error()})
	} else {
		m.emit(address, EventHealthCheckFailed, map[string]any{"error": err.Error()})
	}

	if stale {
		m.emit(address, EventConnectionStale, nil)
	}
}

func (m *Manager) stabilityMonitor(ctx context.Context) {
	for {
		m.mu.Lock()
		interval := 10 * time.Second
		if len(m.devices) > 0 {
			for _, c := range m.devices {
				interval = c.config.StabilityCheckInterval
				break
			}
		}
		m.mu.Unlock()

		sleep(ctx, interval)
		if ctx.Err() != nil {
			return
		}

		type report struct {
			addr string
			data map[string]any
		}
		var reports []report
		m.mu.Lock()
		for addr, c := range m.devices {
			if c.state == Connected && !c.lastActivity.IsZero() {
				c.metrics.ConnectionUptime += interval
			}
			reports = append(reports, report{addr, map[string]any{
				"state":       c.state,
				"metrics":     c.metrics,
				"retry_count": c.retryCount,
				"enabled":     c.enabled,
			}})
		}
		m.mu.Unlock()
		for _, r := range reports {
			m.emit(r.addr, EventStabilityReport, r.data)
		}
	}
}

func (m *Manager) saveStatePeriodically(ctx context.Context, interval time.Duration) {
	for {
		sleep(ctx, interval)
		if ctx.Err() != nil {
			return
		}
		_ = m.saveState()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// --- persistence ---

type persistedConfig struct {
	MaxRetries               int     `json:"max_retries"`
	InitialRetryDelay        float64 `json:"initial_retry_delay"`
	MaxRetryDelay            float64 `json:"max_retry_delay"`
	RetryStrategy            string  `json:"retry_strategy"`
	ConnectionTimeout        float64 `json:"connection_timeout"`
	ReconnectOnFailure       bool    `json:"reconnect_on_failure"`
	HealthCheckInterval      float64 `json:"health_check_interval"`
	StabilityCheckInterval   float64 `json:"stability_check_interval"`
	MaxConsecutiveFailures   int     `json:"max_consecutive_failures"`
	Priority                 string  `json:"priority"`
	MaxConcurrentConnections int     `json:"max_concurrent_connections"`
}

type persistedMetrics struct {
	TotalAttempts         int     `json:"total_attempts"`
	SuccessfulConnections int     `json:"successful_connections"`
	FailedConnections     int     `json:"failed_connections"`
	LastConnected         string  `json:"last_connected,omitempty"`
	LastFailure           string  `json:"last_failure,omitempty"`
	AverageConnectionTime float64 `json:"average_connection_time"`
	ConnectionUptime      float64 `json:"connection_uptime"`
	StabilityScore        float64 `json:"stability_score"`
	ConsecutiveFailures   int     `json:"consecutive_failures"`
}

type persistedDevice struct {
	Config    persistedConfig  `json:"config"`
	Metrics   persistedMetrics `json:"metrics"`
	Enabled   bool             `json:"enabled"`
	LastState string           `json:"last_state"`
}

type persistedSnapshot struct {
	Version   string                     `json:"version"`
	Timestamp string                     `json:"timestamp"`
	Devices   map[string]persistedDevice `json:"devices"`
}

const snapshotVersion = "1.0"

func (m *Manager) saveState() error {
	m.mu.Lock()
	snap := persistedSnapshot{
		Version:   snapshotVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Devices:   map[string]persistedDevice{},
	}
	for addr, c := range m.devices {
		snap.Devices[addr] = persistedDevice{
			Config: persistedConfig{
				MaxRetries:               c.config.MaxRetries,
				InitialRetryDelay:        c.config.InitialRetryDelay.Seconds(),
				MaxRetryDelay:            c.config.MaxRetryDelay.Seconds(),
				RetryStrategy:            string(c.config.RetryStrategy),
				ConnectionTimeout:        c.config.ConnectionTimeout.Seconds(),
				ReconnectOnFailure:       c.config.ReconnectOnFailure,
				HealthCheckInterval:      c.config.HealthCheckInterval.Seconds(),
				StabilityCheckInterval:   c.config.StabilityCheckInterval.Seconds(),
				MaxConsecutiveFailures:   c.config.MaxConsecutiveFailures,
				Priority:                 string(c.config.Priority),
				MaxConcurrentConnections: c.config.MaxConcurrentConnections,
			},
			Metrics: persistedMetrics{
				TotalAttempts:         c.metrics.TotalAttempts,
				SuccessfulConnections: c.metrics.SuccessfulConnections,
				FailedConnections:     c.metrics.FailedConnections,
				AverageConnectionTime: c.metrics.AverageConnectionTime.Seconds(),
				ConnectionUptime:      c.metrics.ConnectionUptime.Seconds(),
				StabilityScore:        c.metrics.StabilityScore,
				ConsecutiveFailures:   c.metrics.ConsecutiveFailures,
			},
			Enabled:   c.enabled,
			LastState: string(c.state),
		}
	}
	path := m.statePath
	m.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		m.emit("manager", EventStateError, map[string]any{"error": err.Error()})
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		m.emit("manager", EventStateError, map[string]any{"error": err.Error()})
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		m.emit("manager", EventStateError, map[string]any{"error": err.Error()})
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		m.emit("manager", EventStateError, map[string]any{"error": err.Error()})
		return err
	}
	m.emit("manager", EventStateSaved, nil)
	return nil
}

func (m *Manager) loadState() {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		return
	}
	var snap persistedSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.emit("manager", EventStateError, map[string]any{"error": err.Error()})
		return
	}
	if snap.Version != snapshotVersion {
		m.emit("manager", EventStateVersionMismatch, map[string]any{"found_version": snap.Version})
		return
	}

	m.mu.Lock()
	for addr, d := range snap.Devices {
		m.devices[addr] = &managedConnection{
			address: addr,
			enabled: d.Enabled,
			state:   Disconnected,
			config: Config{
				MaxRetries:               d.Config.MaxRetries,
				InitialRetryDelay:        time.Duration(d.Config.InitialRetryDelay * float64(time.Second)),
				MaxRetryDelay:            time.Duration(d.Config.MaxRetryDelay * float64(time.Second)),
				RetryStrategy:            RetryStrategy(d.Config.RetryStrategy),
				ConnectionTimeout:        time.Duration(d.Config.ConnectionTimeout * float64(time.Second)),
				ReconnectOnFailure:       d.Config.ReconnectOnFailure,
				HealthCheckInterval:      time.Duration(d.Config.HealthCheckInterval * float64(time.Second)),
				StabilityCheckInterval:   time.Duration(d.Config.StabilityCheckInterval * float64(time.Second)),
				MaxConsecutiveFailures:   d.Config.MaxConsecutiveFailures,
				Priority:                 Priority(d.Config.Priority),
				MaxConcurrentConnections: d.Config.MaxConcurrentConnections,
			},
			metrics: Metrics{
				TotalAttempts:         d.Metrics.TotalAttempts,
				SuccessfulConnections: d.Metrics.SuccessfulConnections,
				FailedConnections:     d.Metrics.FailedConnections,
				AverageConnectionTime: time.Duration(d.Metrics.AverageConnectionTime * float64(time.Second)),
				ConnectionUptime:      time.Duration(d.Metrics.ConnectionUptime * float64(time.Second)),
				StabilityScore:        d.Metrics.StabilityScore,
				ConsecutiveFailures:   d.Metrics.ConsecutiveFailures,
			},
		}
	}
	m.mu.Unlock()
	m.emit("manager", EventStateLoaded, nil)
}

// --- status / analytics ---

// Status is the public view of one managed device.
type Status struct {
	Address    string
	State      State
	Enabled    bool
	RetryCount int
	Metrics    Metrics
	Config     Config
}

// GetConnectionStatus returns the current view for one device.
func (m *Manager) GetConnectionStatus(address string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.devices[address]
	if !ok {
		return Status{}, false
	}
	return Status{Address: c.address, State: c.state, Enabled: c.enabled, RetryCount: c.retryCount, Metrics: c.metrics, Config: c.config}, true
}

// GetAllConnectionsStatus returns every device's current view.
func (m *Manager) GetAllConnectionsStatus() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.devices))
	for _, c := range m.devices {
		out = append(out, Status{Address: c.address, State: c.state, Enabled: c.enabled, RetryCount: c.retryCount, Metrics: c.metrics, Config: c.config})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// DeviceHealth is one device's analytics entry.
type DeviceHealth struct {
	Address         string
	Score           float64
	Status          string // healthy | degraded | unhealthy
	Recommendations []string
}

func calculateDeviceHealth(addr string, m Metrics) DeviceHealth {
	if m.TotalAttempts == 0 {
		return DeviceHealth{Address: addr, Score: 0, Status: "unhealthy", Recommendations: []string{"No connection attempts recorded yet"}}
	}

	successScore := m.StabilityScore * 40

	var timeScore float64
	if m.AverageConnectionTime > 0 {
		secs := m.AverageConnectionTime.Seconds()
		timeScore = math.Max(0, 20-(secs-2)*2)
	} else {
		timeScore = 10
	}

	failurePenalty := math.Max(0, 20-float64(m.ConsecutiveFailures)*5)
	uptimeScore := math.Min(20, m.ConnectionUptime.Seconds()/300)

	score := successScore + timeScore + failurePenalty + uptimeScore

	status := "unhealthy"
	if score >= 80 {
		status = "healthy"
	} else if score >= 50 {
		status = "degraded"
	}

	var recs []string
	if m.ConsecutiveFailures > 0 {
		recs = append(recs, fmt.Sprintf("%d consecutive failures observed", m.ConsecutiveFailures))
	}
	if m.StabilityScore < 0.5 {
		recs = append(recs, "Low stability score; consider reviewing retry strategy")
	}

	return DeviceHealth{Address: addr, Score: score, Status: status, Recommendations: recs}
}

// AnalyticsReport aggregates fleet-wide auto-connect health.
type AnalyticsReport struct {
	ConnectionStates          map[State]int
	PriorityDistribution      map[Priority]int
	RetryStrategyDistribution map[RetryStrategy]int
	TotalAttempts             int
	TotalSuccessful           int
	TotalFailed               int
	AverageStability          float64
	PerDevice                 []DeviceHealth
	HealthyCount              int
	DegradedCount             int
	UnhealthyCount            int
}

// GenerateAnalyticsReport computes the fleet-wide rollup named in
// SPEC_FULL §C.3.
func (m *Manager) GenerateAnalyticsReport() AnalyticsReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := AnalyticsReport{
		ConnectionStates:          map[State]int{},
		PriorityDistribution:      map[Priority]int{},
		RetryStrategyDistribution: map[RetryStrategy]int{},
	}

	var stabilitySum float64
	for addr, c := range m.devices {
		report.ConnectionStates[c.state]++
		report.PriorityDistribution[c.config.Priority]++
		report.RetryStrategyDistribution[c.config.RetryStrategy]++
		report.TotalAttempts += c.metrics.TotalAttempts
		report.TotalSuccessful += c.metrics.SuccessfulConnections
		report.TotalFailed += c.metrics.FailedConnections
		stabilitySum += c.metrics.StabilityScore

		health := calculateDeviceHealth(addr, c.metrics)
		report.PerDevice = append(report.PerDevice, health)
		switch health.Status {
		case "healthy":
			report.HealthyCount++
		case "degraded":
			report.DegradedCount++
		default:
			report.UnhealthyCount++
		}
	}
	if len(m.devices) > 0 {
		report.AverageStability = stabilitySum / float64(len(m.devices))
	}
	sort.Slice(report.PerDevice, func(i, j int) bool { return report.PerDevice[i].Address < report.PerDevice[j].Address })
	return report
}

// GetConnectionSummary returns a short human-readable digest per device.
func (m *Manager) GetConnectionSummary() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.devices))
	for addr, c := range m.devices {
		out[addr] = fmt.Sprintf("%s (%d attempts, %.0f%% success)", c.state, c.metrics.TotalAttempts, c.metrics.StabilityScore*100)
	}
	return out
}
