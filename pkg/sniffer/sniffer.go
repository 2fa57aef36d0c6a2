// Package sniffer implements the passive USB BLE sniffer collector: port
// auto-detection by keyword/VID-PID, a length-prefixed frame reader, and
// the newline-terminated ASCII command protocol.
package sniffer

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/srg/bluefusion/pkg/btaddr"
	"github.com/srg/bluefusion/pkg/packet"
)

// SyncByte is the default frame-start byte; real hardware may use a
// different value, hence it is exposed on Options rather than hardcoded.
const SyncByte = 0xAA

var portKeywords = []string{"sniffer", "ble", "nordic", "ti", "bluetooth"}

type vidPid struct{ vid, pid string }

var knownVIDPID = []vidPid{
	{"0451", "16AA"}, // TI CC2540
	{"1366", "0105"}, // Nordic nRF51
	{"1915", "520F"}, // Nordic nRF52
}

// FindPort auto-detects a connected BLE sniffer by keyword match against
// the port description or a known VID/PID, validating the candidate with
// an exclusive open/close probe before returning it.
func FindPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("sniffer: list ports: %w", err)
	}
	for _, p := range ports {
		if matchesKeyword(p.Name) || matchesVIDPID(p.VID, p.PID) {
			if isPortAvailable(p.Name) {
				return p.Name, nil
			}
		}
	}
	return "", fmt.Errorf("sniffer: no BLE sniffer port found")
}

func matchesKeyword(desc string) bool {
	lower := strings.ToLower(desc)
	for _, kw := range portKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func matchesVIDPID(vid, pid string) bool {
	for _, known := range knownVIDPID {
		if strings.EqualFold(vid, known.vid) && strings.EqualFold(pid, known.pid) {
			return true
		}
	}
	return false
}

func isPortAvailable(name string) bool {
	port, err := serial.Open(name, &serial.Mode{BaudRate: 115200})
	if err != nil {
		return false
	}
	_ = port.Close()
	return true
}

// packetTypeNames maps the sniffer's raw wire type byte to a packet.Kind.
var packetTypeNames = map[byte]packet.Kind{
	0x00: packet.KindAdvertisement,
	0x01: packet.KindScanRequest,
	0x02: packet.KindScanResponse,
	0x03: packet.KindConnectionEvent,
	0x10: packet.KindData,
}

// Options configures the sniffer collector, including the nominally
// hardware-specific framing parameters.
type Options struct {
	Port         string
	BaudRate     int
	SyncByte     byte
	BigEndianLen bool
	Logger       *logrus.Logger
}

// DefaultOptions matches the wire format in spec: 0xAA sync, big-endian
// 2-byte length, 115200 baud.
func DefaultOptions() Options {
	return Options{
		BaudRate:     115200,
		SyncByte:     SyncByte,
		BigEndianLen: true,
		Logger:       logrus.StandardLogger(),
	}
}

// Dongle is the serial sniffer collector. Write failures are recorded but
// never implicitly close the port; an operator must reconnect explicitly.
type Dongle struct {
	opts      Options
	mu        sync.Mutex
	port      serial.Port
	lastError error
	started   time.Time
	discover  map[string]btaddr.Address
}

// New constructs a Dongle. If opts.Port is empty, Initialize auto-detects.
func New(opts Options) *Dongle {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Dongle{opts: opts, discover: map[string]btaddr.Address{}}
}

// Initialize opens the serial connection and sends the INIT command. A
// failure here is recorded in LastError but does not panic.
func (d *Dongle) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	port := d.opts.Port
	if port == "" {
		p, err := FindPort()
		if err != nil {
			d.lastError = err
			return err
		}
		port = p
	}

	conn, err := serial.Open(port, &serial.Mode{BaudRate: d.opts.BaudRate})
	if err != nil {
		d.lastError = fmt.Errorf("sniffer: open %s: %w", port, err)
		return d.lastError
	}
	d.port = conn
	d.lastError = nil
	d.started = time.Now()

	if err := d.sendCommandLocked("INIT"); err != nil {
		d.lastError = err
		return err
	}
	d.opts.Logger.WithField("port", port).Info("sniffer: serial connection established")
	return nil
}

// CheckConnection verifies the underlying serial handle still reports open.
func (d *Dongle) CheckConnection() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil
}

// IsConnected reports whether Initialize has ever succeeded.
func (d *Dongle) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.started.IsZero() && d.port != nil
}

// LastError returns the most recently recorded error, if any.
func (d *Dongle) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}

func (d *Dongle) sendCommandLocked(cmd string) error {
	if d.port == nil {
		return fmt.Errorf("sniffer: not connected")
	}
	_, err := d.port.Write([]byte(cmd + "\n"))
	if err != nil {
		d.lastError = fmt.Errorf("sniffer: send command %q: %w", cmd, err)
		return d.lastError
	}
	return nil
}

// SendCommand writes a newline-terminated ASCII control line. Errors are
// recorded and returned but never close the port.
func (d *Dongle) SendCommand(cmd string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendCommandLocked(cmd)
}

// Start issues MODE + START and begins reading; produced packets are sent
// to out until ctx-equivalent stop is signalled via Stop.
func (d *Dongle) Start(passive bool, out chan<- packet.Packet) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	mode := "MODE ACTIVE"
	if passive {
		mode = "MODE PASSIVE"
	}
	if err := d.SendCommand(mode); err != nil {
		return err
	}
	if err := d.SendCommand("START"); err != nil {
		return err
	}
	go d.readLoop(out)
	return nil
}

// Stop sends STOP; it does not close the port (see LastError semantics).
func (d *Dongle) Stop() error {
	return d.SendCommand("STOP")
}

// SetChannel requests the dongle hop to the given BLE channel (0..39).
func (d *Dongle) SetChannel(ch int) error {
	if ch < 0 || ch > 39 {
		return fmt.Errorf("sniffer: channel %d out of range 0..39", ch)
	}
	return d.SendCommand(fmt.Sprintf("CHANNEL %d", ch))
}

func (d *Dongle) readLoop(out chan<- packet.Packet) {
	for {
		d.mu.Lock()
		port := d.port
		syncByte := d.opts.SyncByte
		bigEndian := d.opts.BigEndianLen
		d.mu.Unlock()
		if port == nil {
			return
		}

		frame, err := readFrame(port, syncByte, bigEndian)
		if err != nil {
			d.mu.Lock()
			d.lastError = err
			d.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		if frame == nil {
			continue
		}

		p, ok := ParsePayload(frame)
		if ok {
			select {
			case out <- p:
			default:
			}
		}
	}
}

// readFrame performs a single sync-byte-then-length read, resynchronizing
// on the next sync byte after any short read.
func readFrame(port serial.Port, sync byte, bigEndian bool) ([]byte, error) {
	one := make([]byte, 1)
	n, err := port.Read(one)
	if err != nil {
		return nil, err
	}
	if n == 0 || one[0] != sync {
		return nil, nil
	}

	lenBuf := make([]byte, 2)
	if n, err := readFull(port, lenBuf); err != nil || n < 2 {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lenBuf)
	if !bigEndian {
		length = binary.LittleEndian.Uint16(lenBuf)
	}

	payload := make([]byte, length)
	if n, err := readFull(port, payload); err != nil || n < int(length) {
		return nil, err
	}
	return payload, nil
}

func readFull(port serial.Port, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := port.Read(buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
	return total, nil
}

// ParsePayload decodes the fixed-prefix sniffer payload into a Packet:
// type(1) | ts_ms(4 BE) | channel(1) | rssi(1 signed) | addr(6) | sdu(var).
func ParsePayload(data []byte) (packet.Packet, bool) {
	if len(data) < 13 {
		return packet.Packet{}, false
	}
	typ := data[0]
	channel := data[5]
	rssi := int8(data[6])

	var addrBytes [6]byte
	copy(addrBytes[:], data[7:13])
	addr := btaddr.New(addrBytes, btaddr.Public)

	kind, known := packetTypeNames[typ]
	if !known {
		kind = packet.Kind(fmt.Sprintf("unknown_%d", typ))
	}

	p := packet.New(packet.SourceSniffer, addr, rssi, kind, append([]byte(nil), data[13:]...))
	p.Metadata["channel"] = int(channel)
	p.Metadata["timestamp_ms"] = binary.BigEndian.Uint32(data[1:5])
	p.Metadata["raw_type"] = typ
	return p, true
}
