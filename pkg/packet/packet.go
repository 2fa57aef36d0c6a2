// Package packet defines the common packet envelope produced by every
// collector (OS BLE source, serial sniffer) and consumed by the inspector,
// pattern analyzer and unified monitor.
package packet

import (
	"fmt"
	"time"

	"github.com/srg/bluefusion/pkg/btaddr"
)

// Source tags which collector emitted the packet.
type Source string

const (
	SourceOSStack Source = "os_stack"
	SourceSniffer Source = "sniffer"
	SourceClassic Source = "classic"
)

// Kind enumerates the packet categories shared across collectors.
type Kind string

const (
	KindAdvertisement     Kind = "advertisement"
	KindScanRequest       Kind = "scan_request"
	KindScanResponse      Kind = "scan_response"
	KindConnectionEvent   Kind = "connection_event"
	KindData              Kind = "data"
	KindGATTRead          Kind = "gatt_read"
	KindGATTWrite         Kind = "gatt_write"
	KindDisconnection     Kind = "disconnection"
	KindServiceDiscovery  Kind = "service_discovery"
)

// MaxPayloadLen is the BLE 4.2 payload ceiling; packets exceeding it are
// still accepted but flagged via Oversized.
const MaxPayloadLen = 251

// Packet is the common envelope carried between collectors and analyzers.
type Packet struct {
	Monotonic time.Duration // elapsed time since collector start
	WallClock time.Time
	Source    Source
	Address   btaddr.Address
	RSSI      int8
	Kind      Kind
	Payload   []byte
	Metadata  map[string]any
}

// New constructs a Packet, stamping WallClock to now if zero.
func New(source Source, addr btaddr.Address, rssi int8, kind Kind, payload []byte) Packet {
	return Packet{
		WallClock: time.Now(),
		Source:    source,
		Address:   addr,
		RSSI:      rssi,
		Kind:      kind,
		Payload:   payload,
		Metadata:  map[string]any{},
	}
}

// Oversized reports whether Payload exceeds the BLE 4.2 251-byte ceiling.
func (p Packet) Oversized() bool {
	return len(p.Payload) > MaxPayloadLen
}

// ID returns the stable inspector identifier: address plus timestamp.
func (p Packet) ID() string {
	return fmt.Sprintf("%s_%d", p.Address.String(), p.WallClock.UnixNano())
}

// Validate checks the invariants from the data model: RSSI must be a
// plausible dBm value and payload length must not silently exceed the
// raw BLE ceiling of 255 bytes carried in a single HCI event.
func (p Packet) Validate() error {
	if p.RSSI > 20 {
		return fmt.Errorf("packet: implausible RSSI %d dBm", p.RSSI)
	}
	if len(p.Payload) > 255 {
		return fmt.Errorf("packet: payload length %d exceeds 255-byte ceiling", len(p.Payload))
	}
	return nil
}
