// Package firmware drives the RTL8723D bring-up state machine over the H5
// transport: reset, vendor download handshake, firmware/config chunking,
// launch, and baud renegotiation.
package firmware

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/srg/bluefusion/pkg/h5"
)

// HCI opcodes and vendor opcodes used during bring-up.
const (
	opHCIReset           uint16 = 0x0C03
	opHCIReadLocalVer    uint16 = 0x1001
	opVendorDownloadCfg  uint16 = 0xFC20
	opVendorConfigData   uint16 = 0xFC61
	opVendorChangeBaud   uint16 = 0xFC17
	opVendorDisableESCO  uint16 = 0xFC1B
	patchedLMPSubversion uint16 = 0x8723
	maxChunkLen                 = 252
)

var (
	enterDownload = []byte{0x01, 0x00, 0xFC, 0x01, 0x01}
	launchFW      = []byte{0x01, 0x00, 0xFC, 0x01, 0x00}
)

// LoadError reports the bring-up step that failed and why. It satisfies
// the standard error interface and wraps the underlying cause.
type LoadError struct {
	Step   string
	Reason error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("firmware: step %q failed: %v", e.Step, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Reason }

// Header is the 16-byte firmware blob header preceding the patch body.
type Header struct {
	Signature   [8]byte
	Version     uint16
	NumPatches  uint16
	PatchLength uint32
}

// ParseHeader decodes the fixed 16-byte firmware header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < 16 {
		return Header{}, fmt.Errorf("firmware: header too short: %d bytes", len(b))
	}
	var h Header
	copy(h.Signature[:], b[0:8])
	h.Version = binary.LittleEndian.Uint16(b[8:10])
	h.NumPatches = binary.LittleEndian.Uint16(b[10:12])
	h.PatchLength = binary.LittleEndian.Uint32(b[12:16])
	return h, nil
}

// VersionInfo is the decoded HCI_Read_Local_Version_Information response.
type VersionInfo struct {
	HCIVersion     byte
	HCIRevision    uint16
	LMPVersion     byte
	Manufacturer   uint16
	LMPSubversion  uint16
}

// Loader drives the bring-up sequence over a serial port using the H5
// transport framing.
type Loader struct {
	port     serial.Port
	proto    *h5.Protocol
	baudRate int
	logger   *logrus.Logger
}

// Options configures port selection for NewLoader.
type Options struct {
	UARTDevice string
	BaudRate   int
	Logger     *logrus.Logger
}

// DefaultOptions mirrors the RTL8723D bring-up defaults: /dev/ttyS5 at
// 115200 baud. Options has no flow-control setting.
func DefaultOptions() Options {
	return Options{
		UARTDevice: "/dev/ttyS5",
		BaudRate:   115200,
		Logger:     logrus.StandardLogger(),
	}
}

// NewLoader opens the serial port at the configured bring-up rate and
// raises the RTS line; RTS/CTS hardware flow control is not configured,
// so writes do not wait on CTS.
func NewLoader(opts Options) (*Loader, error) {
	mode := &serial.Mode{BaudRate: opts.BaudRate}
	port, err := serial.Open(opts.UARTDevice, mode)
	if err != nil {
		return nil, &LoadError{Step: "open", Reason: err}
	}
	_ = port.SetRTS(true)

	return &Loader{
		port:     port,
		proto:    h5.NewProtocol(),
		baudRate: opts.BaudRate,
		logger:   opts.Logger,
	}, nil
}

// Close releases the underlying serial port.
func (l *Loader) Close() error {
	if l.port == nil {
		return nil
	}
	return l.port.Close()
}

func (l *Loader) sendHCICommand(opcode uint16, params []byte) error {
	body := make([]byte, 3+len(params))
	binary.LittleEndian.PutUint16(body[0:2], opcode)
	body[2] = byte(len(params))
	copy(body[3:], params)

	frame, err := l.proto.CreatePacket(h5.TypeHCICommand, body)
	if err != nil {
		return err
	}
	if _, err := l.port.Write(frame); err != nil {
		return err
	}
	return nil
}

func (l *Loader) readPacket(timeout time.Duration) (h5.Frame, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, 512)
	chunk := make([]byte, 64)

	for time.Now().Before(deadline) {
		n, err := l.port.Read(chunk)
		if err != nil {
			return h5.Frame{}, err
		}
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if frame, consumed, ok := h5.FindFrame(buf); ok {
				f, perr := l.proto.ParsePacket(frame)
				if perr != nil {
					buf = buf[consumed:]
					continue
				}
				return f, nil
			}
		}
	}
	return h5.Frame{}, h5.ErrTransportTimeout
}

// ReadLocalVersion issues HCI_Read_Local_Version_Information and parses the
// response event payload.
func (l *Loader) ReadLocalVersion() (VersionInfo, error) {
	if err := l.sendHCICommand(opHCIReadLocalVer, nil); err != nil {
		return VersionInfo{}, err
	}
	frame, err := l.readPacket(2 * time.Second)
	if err != nil {
		return VersionInfo{}, err
	}
	if len(frame.Payload) < 14 {
		return VersionInfo{}, fmt.Errorf("firmware: short version response: %d bytes", len(frame.Payload))
	}
	p := frame.Payload
	return VersionInfo{
		HCIVersion:    p[6],
		HCIRevision:   binary.LittleEndian.Uint16(p[7:9]),
		LMPVersion:    p[9],
		Manufacturer:  binary.LittleEndian.Uint16(p[10:12]),
		LMPSubversion: binary.LittleEndian.Uint16(p[12:14]),
	}, nil
}

func (l *Loader) reset() error {
	if err := l.sendHCICommand(opHCIReset, nil); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

// LoadFirmware runs the full bring-up sequence against the given firmware
// and config blobs. It is idempotent: if the controller already reports
// the patched LMP subversion, it returns success without sending any
// further vendor traffic.
func (l *Loader) LoadFirmware(fw, config []byte) error {
	if err := l.reset(); err != nil {
		return &LoadError{Step: "reset", Reason: err}
	}

	before, err := l.ReadLocalVersion()
	if err != nil {
		return &LoadError{Step: "read_version", Reason: err}
	}
	if before.LMPSubversion == patchedLMPSubversion {
		l.logger.Info("firmware: controller already patched, skipping download")
		return nil
	}

	if _, err := l.port.Write(mustFrame(l.proto, h5.TypeVendor, enterDownload)); err != nil {
		return &LoadError{Step: "enter_download", Reason: err}
	}
	time.Sleep(100 * time.Millisecond)

	header, err := ParseHeader(fw)
	if err != nil {
		return &LoadError{Step: "parse_header", Reason: err}
	}
	l.logger.WithFields(logrus.Fields{
		"num_patches":  header.NumPatches,
		"patch_length": header.PatchLength,
	}).Info("firmware: streaming patch body")

	body := fw[16:]
	for idx, off := 0, 0; off < len(body); idx, off = idx+1, off+maxChunkLen {
		end := off + maxChunkLen
		if end > len(body) {
			end = len(body)
		}
		chunk := body[off:end]
		params := make([]byte, 0, 1+2+len(chunk))
		params = append(params, byte(idx))
		lenBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(lenBuf, uint16(len(chunk)))
		params = append(params, lenBuf...)
		params = append(params, chunk...)
		if err := l.sendHCICommand(opVendorDownloadCfg, params); err != nil {
			return &LoadError{Step: fmt.Sprintf("download_chunk_%d", idx), Reason: err}
		}
	}

	if len(config) > 0 {
		if err := l.sendHCICommand(opVendorConfigData, config); err != nil {
			return &LoadError{Step: "send_config", Reason: err}
		}
	}

	if _, err := l.port.Write(mustFrame(l.proto, h5.TypeVendor, launchFW)); err != nil {
		return &LoadError{Step: "launch", Reason: err}
	}
	time.Sleep(2 * time.Second)

	if err := l.reset(); err != nil {
		return &LoadError{Step: "post_launch_reset", Reason: err}
	}

	after, err := l.ReadLocalVersion()
	if err != nil {
		return &LoadError{Step: "verify_version", Reason: err}
	}
	if after.LMPSubversion == before.LMPSubversion {
		return &LoadError{Step: "verify_version", Reason: fmt.Errorf("LMP subversion unchanged after launch")}
	}

	return nil
}

// ChangeBaudRate renegotiates the UART baud rate: sends the vendor opcode,
// waits, reconfigures the local port, then verifies with a version read.
func (l *Loader) ChangeBaudRate(newBaud int) error {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint32(params, uint32(newBaud))
	if err := l.sendHCICommand(opVendorChangeBaud, params); err != nil {
		return &LoadError{Step: "change_baud", Reason: err}
	}
	time.Sleep(100 * time.Millisecond)

	if err := l.port.SetMode(&serial.Mode{BaudRate: newBaud}); err != nil {
		return &LoadError{Step: "reconfigure_port", Reason: err}
	}
	l.baudRate = newBaud

	if _, err := l.ReadLocalVersion(); err != nil {
		return &LoadError{Step: "verify_baud", Reason: err}
	}
	return nil
}

// SetupDevice runs LoadFirmware, renegotiates to the high-speed post-patch
// baud rate if one is given (0 leaves the rate unchanged) and not already
// there, disables eSCO-over-HCI routing and sets an all-events event mask.
func (l *Loader) SetupDevice(fw, config []byte, postPatchBaud int) error {
	if err := l.LoadFirmware(fw, config); err != nil {
		return err
	}

	if postPatchBaud != 0 && l.baudRate != postPatchBaud {
		if err := l.ChangeBaudRate(postPatchBaud); err != nil {
			return err
		}
	}

	if err := l.sendHCICommand(opVendorDisableESCO, []byte{0x00, 0x00}); err != nil {
		return &LoadError{Step: "disable_esco", Reason: err}
	}

	mask := bytes.Repeat([]byte{0xFF}, 8)
	if err := l.sendHCICommand(0x0C01, mask); err != nil {
		return &LoadError{Step: "set_event_mask", Reason: err}
	}
	return nil
}

func mustFrame(p *h5.Protocol, typ h5.PacketType, payload []byte) []byte {
	f, _ := p.CreatePacket(typ, payload)
	return f
}
