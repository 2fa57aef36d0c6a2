// Package inspector performs per-packet deep inspection: hex-dump
// rendering, protocol classification, security-flag heuristics, anomaly
// warnings and a bounded history with rollup statistics.
package inspector

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/bluefusion/pkg/packet"
	"github.com/srg/bluefusion/pkg/protocol"
)

// SecurityFlags mirrors the {encrypted, authenticated, contains_key,
// pairing_request} flag set from spec §3.
type SecurityFlags struct {
	Encrypted      bool
	Authenticated  bool
	ContainsKey    bool
	PairingRequest bool
}

// Result is the immutable inspection output for one packet.
type Result struct {
	PacketID      string
	Timestamp     int64
	Protocol      string
	Fields        map[string]any
	RawHex        string
	ParsedData    map[string]any
	Warnings      []string
	SecurityFlags SecurityFlags
}

const maxHistory = 1000

// Inspector holds the protocol registry and a bounded FIFO history.
type Inspector struct {
	registry *protocol.Registry

	mu      sync.Mutex
	history []Result
}

// New constructs an Inspector dispatching to the given parser registry.
func New(registry *protocol.Registry) *Inspector {
	return &Inspector{registry: registry}
}

// Inspect performs the full inspection pipeline for one packet and appends
// the result to the bounded history.
func (i *Inspector) Inspect(p packet.Packet) Result {
	proto := detectProtocol(p)

	parsed := map[string]any{}
	if proto != "" {
		fields, ok, err := i.registry.Parse(proto, p.Payload)
		if ok {
			if err != nil {
				parsed["error"] = err.Error()
			} else {
				parsed = fields
			}
		}
	}

	result := Result{
		PacketID:      p.ID(),
		Timestamp:     p.WallClock.UnixNano(),
		Protocol:      proto,
		Fields:        extractBasicFields(p),
		RawHex:        HexDump(p.Payload),
		ParsedData:    parsed,
		SecurityFlags: analyzeSecurity(p.Payload),
	}
	result.Warnings = checkAnomalies(p, parsed)

	i.mu.Lock()
	i.history = append(i.history, result)
	if len(i.history) > maxHistory {
		i.history = i.history[len(i.history)-maxHistory:]
	}
	i.mu.Unlock()

	return result
}

// HexDump renders data as a 16-byte-wide hex dump with a printable ASCII
// gutter: "{offset:04x}: {hex bytes, padded} {ascii}".
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var lines []string
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i:end]

		hexParts := make([]string, len(chunk))
		asciiParts := make([]byte, len(chunk))
		for j, b := range chunk {
			hexParts[j] = fmt.Sprintf("%02x", b)
			if b >= 32 && b < 127 {
				asciiParts[j] = b
			} else {
				asciiParts[j] = '.'
			}
		}
		hexStr := strings.Join(hexParts, " ")
		lines = append(lines, fmt.Sprintf("%04x: %-48s %s", i, hexStr, string(asciiParts)))
	}
	return strings.Join(lines, "\n")
}

func detectProtocol(p packet.Packet) string {
	if p.Kind == packet.KindAdvertisement {
		return "ADV"
	}
	data := p.Payload
	if len(data) == 0 {
		return ""
	}

	if len(data) >= 4 {
		cid := binary.LittleEndian.Uint16(data[2:4])
		if cid == 0x0004 {
			return "L2CAP_ATT"
		}
		if cid == 0x0005 {
			length := binary.LittleEndian.Uint16(data[0:2])
			if length > 0 && length < 100 {
				return "L2CAP_SIG"
			}
		}
	}

	first := data[0]
	if (first >= 0x01 && first <= 0x1E) || first == 0x52 || first == 0xD2 {
		return "ATT"
	}
	return "UNKNOWN"
}

func extractBasicFields(p packet.Packet) map[string]any {
	fields := map[string]any{
		"address":     p.Address.String(),
		"rssi":        p.RSSI,
		"packet_type": string(p.Kind),
		"source":      string(p.Source),
		"data_length": len(p.Payload),
	}
	for k, v := range p.Metadata {
		fields[k] = v
	}
	return fields
}

func analyzeSecurity(data []byte) SecurityFlags {
	var flags SecurityFlags
	if len(data) < 2 {
		return flags
	}
	opcode := data[0]
	if opcode == 0x01 || opcode == 0x02 {
		flags.PairingRequest = true
	}
	if len(data) > 16 {
		unique := map[byte]struct{}{}
		for _, b := range data {
			unique[b] = struct{}{}
		}
		if float64(len(unique)) > float64(len(data))*0.7 {
			flags.Encrypted = true
		}
	}
	return flags
}

func checkAnomalies(p packet.Packet, parsed map[string]any) []string {
	var warnings []string
	if len(p.Payload) > packet.MaxPayloadLen {
		warnings = append(warnings, "Packet size exceeds BLE 4.2 maximum")
	}
	if p.RSSI > 0 {
		warnings = append(warnings, fmt.Sprintf("Unusual RSSI value: %d (positive)", p.RSSI))
	} else if p.RSSI < -100 {
		warnings = append(warnings, fmt.Sprintf("Very weak signal: %d dBm", p.RSSI))
	}
	if errStr, ok := parsed["error"]; ok {
		warnings = append(warnings, fmt.Sprintf("Parse error: %v", errStr))
	}
	return warnings
}

// Stats is the rollup returned by Inspector.Stats.
type Stats struct {
	TotalPackets     int
	Protocols        map[string]int
	Encrypted        int
	Authenticated    int
	PairingRequests  int
	WarningsCount    int
}

// Stats computes rollup statistics over the current history snapshot.
func (i *Inspector) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	s := Stats{Protocols: map[string]int{}}
	s.TotalPackets = len(i.history)
	for _, r := range i.history {
		if r.Protocol != "" {
			s.Protocols[r.Protocol]++
		}
		if r.SecurityFlags.Encrypted {
			s.Encrypted++
		}
		if r.SecurityFlags.Authenticated {
			s.Authenticated++
		}
		if r.SecurityFlags.PairingRequest {
			s.PairingRequests++
		}
		s.WarningsCount += len(r.Warnings)
	}
	return s
}

// History returns an immutable snapshot of the current bounded history.
func (i *Inspector) History() []Result {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Result(nil), i.history...)
}
