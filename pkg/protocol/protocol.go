// Package protocol implements the protocol-tagged parser registry and the
// built-in ATT/GATT opcode decoder.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Parser decodes a protocol's wire format into a flat field map.
type Parser interface {
	CanParse(data []byte) bool
	Parse(data []byte) (map[string]any, error)
}

// Registry dispatches by protocol tag ("ATT", "L2CAP_ATT", ...).
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register installs (or last-writer-wins replaces) the parser for tag.
func (r *Registry) Register(tag string, p Parser) {
	r.parsers[tag] = p
}

// Parse looks up tag and parses data, returning ok=false if no parser is
// registered for tag.
func (r *Registry) Parse(tag string, data []byte) (map[string]any, bool, error) {
	p, ok := r.parsers[tag]
	if !ok {
		return nil, false, nil
	}
	fields, err := p.Parse(data)
	return fields, true, err
}

// ATTOpcodes maps ATT/GATT opcodes to their human-readable names.
var ATTOpcodes = map[byte]string{
	0x01: "Error Response",
	0x02: "Exchange MTU Request",
	0x03: "Exchange MTU Response",
	0x04: "Find Information Request",
	0x05: "Find Information Response",
	0x06: "Find By Type Value Request",
	0x07: "Find By Type Value Response",
	0x08: "Read By Type Request",
	0x09: "Read By Type Response",
	0x0A: "Read Request",
	0x0B: "Read Response",
	0x0C: "Read Blob Request",
	0x0D: "Read Blob Response",
	0x0E: "Read Multiple Request",
	0x0F: "Read Multiple Response",
	0x10: "Read By Group Type Request",
	0x11: "Read By Group Type Response",
	0x12: "Write Request",
	0x13: "Write Response",
	0x16: "Prepare Write Request",
	0x17: "Prepare Write Response",
	0x18: "Execute Write Request",
	0x19: "Execute Write Response",
	0x1B: "Handle Value Notification",
	0x1D: "Handle Value Indication",
	0x1E: "Handle Value Confirmation",
	0x52: "Write Command",
	0xD2: "Signed Write Command",
}

// ATTErrorCodes maps ATT error-response codes to their names.
var ATTErrorCodes = map[byte]string{
	0x01: "Invalid Handle",
	0x02: "Read Not Permitted",
	0x03: "Write Not Permitted",
	0x04: "Invalid PDU",
	0x05: "Insufficient Authentication",
	0x06: "Request Not Supported",
	0x07: "Invalid Offset",
	0x08: "Insufficient Authorization",
	0x09: "Prepare Queue Full",
	0x0A: "Attribute Not Found",
	0x0B: "Attribute Not Long",
	0x0C: "Insufficient Encryption Key Size",
	0x0D: "Invalid Attribute Value Length",
	0x0E: "Unlikely Error",
	0x0F: "Insufficient Encryption",
	0x10: "Unsupported Group Type",
	0x11: "Insufficient Resources",
}

// ATTParser decodes the ATT opcode set named in spec §4.6.
type ATTParser struct{}

// CanParse reports whether the first byte is a known ATT opcode.
func (ATTParser) CanParse(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, ok := ATTOpcodes[data[0]]
	return ok
}

// Parse dispatches on opcode, returning a flat field map. All 16-bit
// handles are little-endian.
func (ATTParser) Parse(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("protocol: empty ATT payload")
	}
	opcode := data[0]
	name, known := ATTOpcodes[opcode]
	if !known {
		return nil, fmt.Errorf("protocol: unknown ATT opcode 0x%02X", opcode)
	}

	fields := map[string]any{
		"opcode":      opcode,
		"opcode_name": name,
	}

	switch opcode {
	case 0x01: // Error Response
		if len(data) < 5 {
			return nil, fmt.Errorf("protocol: error response too short")
		}
		errCode := data[4]
		fields["request_opcode"] = data[1]
		fields["handle"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[2:4]))
		fields["error_code"] = errCode
		fields["error_name"] = ATTErrorCodes[errCode]
	case 0x02, 0x03: // Exchange MTU Req/Rsp
		if len(data) < 3 {
			return nil, fmt.Errorf("protocol: MTU pdu too short")
		}
		fields["mtu"] = binary.LittleEndian.Uint16(data[1:3])
	case 0x0A, 0x0C: // Read Request / Read Blob Request
		if len(data) < 3 {
			return nil, fmt.Errorf("protocol: read request too short")
		}
		fields["handle"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[1:3]))
	case 0x0B, 0x0D, 0x1B, 0x1D: // Read Response / Read Blob Response / Notification / Indication
		if len(data) < 1 {
			return nil, fmt.Errorf("protocol: value pdu too short")
		}
		value := data[1:]
		fields["value"] = value
		fields["value_hex"] = fmt.Sprintf("%x", value)
		fields["value_length"] = len(value)
		fields["value_ascii"] = safeASCII(value)
	case 0x12, 0x52, 0xD2: // Write Request / Write Command / Signed Write Command
		if len(data) < 3 {
			return nil, fmt.Errorf("protocol: write request too short")
		}
		fields["handle"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[1:3]))
		value := data[3:]
		fields["value"] = value
		fields["value_hex"] = fmt.Sprintf("%x", value)
	case 0x08, 0x10: // Read By Type / Read By Group Type Request
		if len(data) < 5 {
			return nil, fmt.Errorf("protocol: read-by-type request too short")
		}
		fields["starting_handle"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[1:3]))
		fields["ending_handle"] = fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[3:5]))
	default:
		// Generic hex-payload fallback for opcodes without a dedicated
		// field layout in this decoder.
		fields["raw_hex"] = fmt.Sprintf("%x", data[1:])
	}

	return fields, nil
}

func safeASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b < 127 {
			out[i] = b
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
