// Package monitor is the unified orchestrator: it owns a BLE source, the
// serial sniffer, the security/auto-connect/HFP/SCO components, and a
// packet inspector wired to the protocol registry, routing every packet
// through inspection and pattern analysis and exposing a combined status
// view across all of them.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bluefusion/internal/groutine"
	"github.com/srg/bluefusion/pkg/autoconnect"
	"github.com/srg/bluefusion/pkg/blesource"
	"github.com/srg/bluefusion/pkg/config"
	"github.com/srg/bluefusion/pkg/hfp"
	"github.com/srg/bluefusion/pkg/inspector"
	"github.com/srg/bluefusion/pkg/packet"
	"github.com/srg/bluefusion/pkg/pattern"
	"github.com/srg/bluefusion/pkg/protocol"
	"github.com/srg/bluefusion/pkg/sco"
	"github.com/srg/bluefusion/pkg/security"
	"github.com/srg/bluefusion/pkg/sniffer"
)

// BLEDeviceInfo tracks what the monitor has learned about a BLE peer
// from its advertisement stream.
type BLEDeviceInfo struct {
	Address     string
	LocalName   string
	LastSeen    time.Time
	RSSIHistory []RSSISample
}

// RSSISample pairs a timestamp with an observed RSSI reading.
type RSSISample struct {
	At   time.Time
	RSSI int8
}

const maxRSSIHistory = 100

// ClassicDeviceInfo tracks a classic Bluetooth peer registered with the
// monitor. There is no over-the-air classic inquiry scanner in this
// module (see DESIGN.md); devices are registered explicitly via
// AddClassicDevice, mirroring how a real deployment would seed known
// HFP-capable peers (car kits, headsets) rather than discovering them
// fresh on every scan.
type ClassicDeviceInfo struct {
	Address   string
	Name      string
	Profiles  []string
	Paired    bool
	Connected bool
}

// BLEStats tracks BLE collector throughput.
type BLEStats struct {
	PacketsCaptured   int
	DevicesDiscovered int
	LastPacket        time.Time
}

// ClassicStats tracks classic/HFP collector throughput.
type ClassicStats struct {
	PacketsCaptured   int
	DevicesDiscovered int
	HFPConnections    int
	SCOConnections    int
	LastPacket        time.Time
}

// Statistics is the combined BLE+classic counters view.
type Statistics struct {
	BLE     BLEStats
	Classic ClassicStats
}

// Monitor orchestrates every collector and analyzer component behind a
// single lifecycle.
type Monitor struct {
	logger *logrus.Logger
	cfg    config.MonitorConfig

	ble      *blesource.Source // nil if the platform BLE stack failed to open
	sniff    *sniffer.Dongle   // nil if no sniffer is configured/available
	registry *protocol.Registry
	inspect  *inspector.Inspector
	patterns *pattern.Analyzer
	sec      *security.Manager
	auto     *autoconnect.Manager // nil if ble is nil
	scoMon   *sco.Monitor

	packets chan packet.Packet

	mu             sync.RWMutex
	running        bool
	bleDevices     map[string]*BLEDeviceInfo
	classicDevices map[string]*ClassicDeviceInfo
	hfpHandlers    map[string]*hfp.Handler
	connectedBLE   map[string]bool
	stats          Statistics
}

// New builds a Monitor from cfg. Collector initialization failures (no
// BLE adapter, no sniffer attached) are logged and leave the
// corresponding field nil rather than failing construction, matching
// the degrade-gracefully posture of the component this is grounded on.
func New(cfg *config.Config, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	registry := protocol.NewRegistry()
	m := &Monitor{
		logger:         logger,
		cfg:            cfg.Monitor,
		registry:       registry,
		inspect:        inspector.New(registry),
		patterns:       pattern.NewAnalyzer(),
		sec:            security.NewManager(cfg.BondPath),
		scoMon:         sco.NewMonitor(),
		packets:        make(chan packet.Packet, 256),
		bleDevices:     map[string]*BLEDeviceInfo{},
		classicDevices: map[string]*ClassicDeviceInfo{},
		hfpHandlers:    map[string]*hfp.Handler{},
		connectedBLE:   map[string]bool{},
	}

	ble, err := blesource.New(blesource.Options{SecurityManager: m.sec, Logger: logger})
	if err != nil {
		logger.WithError(err).Warn("monitor: BLE adapter unavailable, BLE monitoring disabled")
	} else {
		m.ble = ble
		m.auto = autoconnect.NewManager(ble, logger, autoconnect.DefaultStatePath())
	}

	if cfg.Sniffer.Port != "" {
		dongle := sniffer.New(cfg.SnifferOptions(logger))
		if err := dongle.Initialize(); err != nil {
			logger.WithError(err).Warn("monitor: sniffer dongle unavailable")
		} else {
			m.sniff = dongle
		}
	}

	return m
}

// Start launches every monitoring loop as a named goroutine under ctx.
// It returns immediately; loops run until ctx is cancelled or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()

	m.logger.Info("monitor: starting unified bluetooth monitoring")

	if m.ble != nil {
		groutine.Go(ctx, "monitor-ble-stream", m.streamBLEAdvertisements)
		groutine.Go(ctx, "monitor-ble-packets", m.consumeBLEPackets)
	}
	groutine.Go(ctx, "monitor-classic-scan", m.scanClassicDevices)
	groutine.Go(ctx, "monitor-hfp", m.monitorHFPConnections)

	if m.auto != nil {
		m.auto.Start(ctx)
	}
}

// Stop marks the monitor stopped and tears down the auto-connect
// manager (which flushes its snapshot). The per-loop goroutines exit on
// their own once the caller's ctx is cancelled.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.logger.Info("monitor: stopping unified bluetooth monitoring")
	if m.auto != nil {
		m.auto.Stop()
	}
}

func (m *Monitor) isRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// streamBLEAdvertisements runs the long-lived BLE scan, pushing every
// advertisement onto m.packets. This is the sole Scan caller: a real
// adapter only supports one active scan at a time, so device-table
// refresh (scanBLEDevices in the original) is folded into the same
// stream here instead of issuing a second overlapping scan every 30s.
func (m *Monitor) streamBLEAdvertisements(ctx context.Context) {
	for ctx.Err() == nil {
		if err := m.ble.Scan(ctx, true, m.packets); err != nil {
			m.logger.WithError(err).Warn("monitor: BLE scan error, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// consumeBLEPackets drains m.packets, running each through the
// inspector (C7) and pattern analyzer (C8), and rolls up per-device
// RSSI history and throughput statistics.
func (m *Monitor) consumeBLEPackets(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.packets:
			m.processBLEPacket(p)
		}
	}
}

func (m *Monitor) processBLEPacket(p packet.Packet) {
	result := m.inspect.Inspect(p)
	if len(result.Warnings) > 0 {
		m.logger.WithFields(logrus.Fields{"address": p.Address.String(), "warnings": result.Warnings}).Debug("monitor: inspector warnings")
	}

	if len(p.Payload) > 0 {
		match := m.patterns.Analyze(p.Payload)
		if len(match.Patterns) > 0 {
			m.logger.WithFields(logrus.Fields{"address": p.Address.String(), "patterns": len(match.Patterns)}).Debug("monitor: repeated byte patterns found")
		}
	}

	addr := p.Address.String()
	localName, _ := p.Metadata["local_name"].(string)

	m.mu.Lock()
	dev, ok := m.bleDevices[addr]
	if !ok {
		dev = &BLEDeviceInfo{Address: addr}
		m.bleDevices[addr] = dev
		m.stats.BLE.DevicesDiscovered = len(m.bleDevices)
	}
	dev.LastSeen = p.WallClock
	if localName != "" {
		dev.LocalName = localName
	}
	dev.RSSIHistory = append(dev.RSSIHistory, RSSISample{At: p.WallClock, RSSI: p.RSSI})
	if len(dev.RSSIHistory) > maxRSSIHistory {
		dev.RSSIHistory = dev.RSSIHistory[len(dev.RSSIHistory)-maxRSSIHistory:]
	}
	m.stats.BLE.PacketsCaptured++
	m.stats.BLE.LastPacket = p.WallClock
	m.mu.Unlock()
}

// scanClassicDevices periodically rolls up classic device statistics.
// No classic inquiry scanner exists in this module (no HCI socket
// library is available anywhere in the retrieved pack, and spec.md's
// Non-goals exclude HCI driver work beyond the RTL8723D bring-up case);
// classic peers are registered via AddClassicDevice and this loop only
// keeps the discovered-count statistic current, matching the 60s period
// named for classic scanning.
func (m *Monitor) scanClassicDevices(ctx context.Context) {
	ticker := time.NewTicker(m.classicScanInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.stats.Classic.DevicesDiscovered = len(m.classicDevices)
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) classicScanInterval() time.Duration {
	if m.cfg.ClassicScanInterval > 0 {
		return m.cfg.ClassicScanInterval
	}
	return 60 * time.Second
}

func (m *Monitor) hfpPollInterval() time.Duration {
	if m.cfg.HFPPollInterval > 0 {
		return m.cfg.HFPPollInterval
	}
	return 5 * time.Second
}

// monitorHFPConnections inspects every known HFP handler for stalled
// sessions and logs what the failure analyzer finds.
func (m *Monitor) monitorHFPConnections(ctx context.Context) {
	ticker := time.NewTicker(m.hfpPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			handlers := make(map[string]*hfp.Handler, len(m.hfpHandlers))
			for addr, h := range m.hfpHandlers {
				handlers[addr] = h
			}
			m.mu.RUnlock()

			for addr, h := range handlers {
				if h.State() == hfp.Disconnected {
					continue
				}
				analysis := h.AnalyzeFailure()
				if len(analysis.LikelyIssues) > 0 {
					m.logger.WithFields(logrus.Fields{"address": addr, "issues": analysis.LikelyIssues}).Warn("monitor: HFP issues detected")
				}
			}
		}
	}
}

// AddClassicDevice registers a classic Bluetooth peer. Devices
// advertising the HFP profile get an hfp.Handler allocated immediately
// so the HFP monitor loop can track them from the first AT exchange.
func (m *Monitor) AddClassicDevice(address, name string, profiles []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.classicDevices[address] = &ClassicDeviceInfo{Address: address, Name: name, Profiles: profiles}
	m.stats.Classic.DevicesDiscovered = len(m.classicDevices)

	for _, p := range profiles {
		if p == "HFP" {
			if _, ok := m.hfpHandlers[address]; !ok {
				m.hfpHandlers[address] = hfp.NewHandler(hfp.RoleHF)
			}
			break
		}
	}
}

// ConnectHFPDevice drives the HF-role AT handshake start for address
// and returns a connection id (the address itself — this module has no
// separate classic connection-handle concept). Returns an error if no
// BLE/classic transport is available to carry the AT channel.
func (m *Monitor) ConnectHFPDevice(ctx context.Context, address string) (string, error) {
	if m.ble == nil {
		return "", fmt.Errorf("monitor: no transport available for HFP connect")
	}

	m.logger.WithField("address", address).Info("monitor: attempting HFP connection")
	if err := m.ble.Connect(ctx, address); err != nil {
		return "", fmt.Errorf("hfp connect %s: %w", address, err)
	}

	m.mu.Lock()
	m.connectedBLE[address] = true
	m.stats.Classic.HFPConnections++
	handler, ok := m.hfpHandlers[address]
	if !ok {
		handler = hfp.NewHandler(hfp.RoleHF)
		m.hfpHandlers[address] = handler
	}
	m.mu.Unlock()

	handler.ProcessATCommand("AT+BRSF=191", "", hfp.TX)
	return address, nil
}

// AnalyzeHFPFailure returns the failure analyzer's output for address.
func (m *Monitor) AnalyzeHFPFailure(address string) (hfp.FailureAnalysis, error) {
	m.mu.RLock()
	handler, ok := m.hfpHandlers[address]
	m.mu.RUnlock()
	if !ok {
		return hfp.FailureAnalysis{}, fmt.Errorf("monitor: no HFP handler for %s", address)
	}
	return handler.AnalyzeFailure(), nil
}

// TestStep records the outcome of one stage of TestHFPConnection.
type TestStep struct {
	Step   string
	Status string // starting, success, failed
}

// TestHFPReport is the structured result of TestHFPConnection.
type TestHFPReport struct {
	Address         string
	Timestamp       time.Time
	Success         bool
	Steps           []TestStep
	FailureAnalysis *hfp.FailureAnalysis
	AudioMetrics    *sco.SummaryReport
}

// TestHFPConnection runs the connect -> SCO setup -> 5s audio sample ->
// disconnect flow against address, matching the original's
// test_hfp_connection, and returns a structured per-step report.
func (m *Monitor) TestHFPConnection(ctx context.Context, address string) TestHFPReport {
	report := TestHFPReport{Address: address, Timestamp: time.Now()}

	report.Steps = append(report.Steps, TestStep{Step: "HFP Connect", Status: "starting"})
	connID, err := m.ConnectHFPDevice(ctx, address)
	if err != nil || connID == "" {
		report.Steps[len(report.Steps)-1].Status = "failed"
		return report
	}
	report.Steps[len(report.Steps)-1].Status = "success"

	report.Steps = append(report.Steps, TestStep{Step: "SCO Setup", Status: "starting"})
	m.mu.RLock()
	handler := m.hfpHandlers[address]
	m.mu.RUnlock()
	handler.ProcessATCommand("AT+BCC", "", hfp.TX)

	if handler.State() != hfp.AudioConnecting && handler.State() != hfp.AudioConnected {
		report.Steps[len(report.Steps)-1].Status = "failed"
		analysis, _ := m.AnalyzeHFPFailure(address)
		report.FailureAnalysis = &analysis
		_ = m.ble.Disconnect(address)
		return report
	}
	report.Steps[len(report.Steps)-1].Status = "success"
	report.Success = true

	report.Steps = append(report.Steps, TestStep{Step: "Audio Analysis", Status: "starting"})
	sampleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	<-sampleCtx.Done()
	cancel()
	summary := m.scoMon.GetSummaryReport()
	report.AudioMetrics = &summary
	report.Steps[len(report.Steps)-1].Status = "success"

	m.mu.Lock()
	delete(m.connectedBLE, address)
	m.mu.Unlock()
	_ = m.ble.Disconnect(address)

	return report
}

// CombinedStatus aggregates C4/C3 connection counts, C9 bond count, C10
// managed-device count, and C11/C12 session state into a single view.
type CombinedStatus struct {
	Timestamp          time.Time
	BLEEnabled         bool
	BLEDevices         int
	BLEConnected       int
	SnifferConnected   bool
	BondCount          int
	ManagedDeviceCount int
	HFPSessions        int
	Stats              Statistics
}

// GetCombinedStatus returns the cross-component status dashboard.
func (m *Monitor) GetCombinedStatus() CombinedStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := CombinedStatus{
		Timestamp:        time.Now(),
		BLEEnabled:       m.ble != nil,
		BLEDevices:       len(m.bleDevices),
		BLEConnected:     len(m.connectedBLE),
		SnifferConnected: m.sniff != nil && m.sniff.IsConnected(),
		BondCount:        m.sec.BondCount(),
		HFPSessions:      len(m.hfpHandlers),
		Stats:            m.stats,
	}
	if m.auto != nil {
		status.ManagedDeviceCount = len(m.auto.GetAllConnectionsStatus())
	}
	return status
}

// BLEDeviceList returns every discovered BLE device sorted by address.
func (m *Monitor) BLEDeviceList() []BLEDeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BLEDeviceInfo, 0, len(m.bleDevices))
	for _, d := range m.bleDevices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ClassicDeviceList returns every registered classic device sorted by
// address.
func (m *Monitor) ClassicDeviceList() []ClassicDeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ClassicDeviceInfo, 0, len(m.classicDevices))
	for _, d := range m.classicDevices {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
