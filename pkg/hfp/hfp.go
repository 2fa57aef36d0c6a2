// Package hfp implements the Hands-Free Profile AT-command state
// machine: feature negotiation, codec selection, indicator tracking and
// stall diagnosis.
package hfp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// State is an HFP service-level/audio connection state.
type State string

const (
	Disconnected    State = "DISCONNECTED"
	Connecting      State = "CONNECTING"
	SLCConnecting   State = "SLC_CONNECTING"
	Connected       State = "CONNECTED"
	AudioConnecting State = "AUDIO_CONNECTING"
	AudioConnected  State = "AUDIO_CONNECTED"
	Disconnecting   State = "DISCONNECTING"
)

// Role is the local HFP role.
type Role string

const (
	RoleAG Role = "AudioGateway"
	RoleHF Role = "HandsFree"
)

// Direction marks whether a trace entry was sent or received.
type Direction string

const (
	TX Direction = "TX"
	RX Direction = "RX"
)

// HF feature bits (AT+BRSF).
const (
	HFFeatECNR    = 0x001
	HFFeat3Way    = 0x002
	HFFeatCLI     = 0x004
	HFFeatVR      = 0x008
	HFFeatRVol    = 0x010
	HFFeatECS     = 0x020
	HFFeatECC     = 0x040
	HFFeatCodec   = 0x080
	HFFeatHFInd   = 0x100
	HFFeatESCOS4  = 0x200
)

// AG feature bits (+BRSF response).
const (
	AGFeat3Way   = 0x001
	AGFeatECNR   = 0x002
	AGFeatVR     = 0x004
	AGFeatRing   = 0x008
	AGFeatVTag   = 0x010
	AGFeatReject = 0x020
	AGFeatECS    = 0x040
	AGFeatECC    = 0x080
	AGFeatEErr   = 0x100
	AGFeatCodec  = 0x200
)

// Features mirrors the negotiated HF and AG feature bitmasks.
type Features struct {
	// HF
	ECNR                bool
	ThreeWayCalling     bool
	CLIPresentation     bool
	VoiceRecognition    bool
	RemoteVolumeControl bool
	EnhancedCallStatus  bool
	EnhancedCallControl bool
	CodecNegotiation    bool
	HFIndicators        bool
	ESCOS4              bool

	// AG
	AGThreeWayCalling     bool
	AGECNR                bool
	AGVoiceRecognition    bool
	AGInbandRingtone      bool
	AGVoiceTag            bool
	AGRejectCall          bool
	AGEnhancedCallStatus  bool
	AGEnhancedCallControl bool
	AGExtendedError       bool
	AGCodecNegotiation    bool
}

// ATCommand is one traced AT-command exchange.
type ATCommand struct {
	Timestamp time.Time
	Command   string
	Response  string
	Direction Direction
	State     State
}

// Indicator is one entry of the +CIND indicator table.
type Indicator struct {
	Range string
	Value int
}

// CallState mirrors the +CIEV-derived call indicator view.
type CallState struct {
	Active   bool
	Incoming bool
	Outgoing bool
	Number   string
}

const maxTraceLen = 1000

var cindPattern = regexp.MustCompile(`"(\w+)",\(([0-9,-]+)\)`)

// Handler is the per-connection AT-command state machine.
type Handler struct {
	Role            Role
	state           State
	features        Features
	trace           []ATCommand
	supportedCodecs []string
	selectedCodec   string
	indicatorOrder  []string
	indicators      map[string]*Indicator
	callState       CallState
}

// NewHandler constructs a Handler in the DISCONNECTED state, defaulting
// the codec list to CVSD-only until BAC/BCS negotiation says otherwise.
func NewHandler(role Role) *Handler {
	return &Handler{
		Role:            role,
		state:           Disconnected,
		supportedCodecs: []string{"CVSD"},
		selectedCodec:   "CVSD",
		indicators:      map[string]*Indicator{},
	}
}

// State returns the handler's current connection state.
func (h *Handler) State() State { return h.state }

// SelectedCodec returns the negotiated audio codec.
func (h *Handler) SelectedCodec() string { return h.selectedCodec }

// SupportedCodecs returns the AG's advertised codec list.
func (h *Handler) SupportedCodecs() []string {
	return append([]string(nil), h.supportedCodecs...)
}

// Features returns a copy of the negotiated feature set.
func (h *Handler) Features() Features { return h.features }

// CallState returns the current call indicator view.
func (h *Handler) CallState() CallState { return h.callState }

// ProcessATCommand traces command (and, for RX, its response) and
// advances the state machine.
func (h *Handler) ProcessATCommand(command, response string, direction Direction) {
	cmd := ATCommand{
		Timestamp: time.Now(),
		Command:   strings.TrimSpace(command),
		Response:  strings.TrimSpace(response),
		Direction: direction,
		State:     h.state,
	}
	h.trace = append(h.trace, cmd)
	if len(h.trace) > maxTraceLen {
		h.trace = h.trace[len(h.trace)-maxTraceLen:]
	}

	if direction == TX {
		h.handleOutgoing(cmd.Command)
	} else {
		h.handleIncoming(cmd.Command)
	}
}

func (h *Handler) handleOutgoing(command string) {
	switch {
	case strings.HasPrefix(command, "AT+BRSF="):
		if v, err := strconv.Atoi(strings.TrimPrefix(command, "AT+BRSF=")); err == nil {
			h.parseHFFeatures(v)
		}
		h.state = SLCConnecting
	case command == "AT+BAC":
		h.state = SLCConnecting
	case command == "AT+CIND=?":
	case command == "AT+CIND?":
	case command == "AT+CMER":
		h.state = Connected
	case command == "AT+BCC":
		h.state = AudioConnecting
	}
}

func (h *Handler) handleIncoming(command string) {
	switch {
	case strings.HasPrefix(command, "+BRSF:"):
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(command, "+BRSF:"))); err == nil {
			h.parseAGFeatures(v)
		}
	case strings.HasPrefix(command, "+BAC:"):
		h.supportedCodecs = nil
		for _, part := range strings.Split(strings.TrimPrefix(command, "+BAC:"), ",") {
			switch strings.TrimSpace(part) {
			case "1":
				h.supportedCodecs = append(h.supportedCodecs, "CVSD")
			case "2":
				h.supportedCodecs = append(h.supportedCodecs, "mSBC")
			}
		}
	case strings.HasPrefix(command, "+BCS:"):
		if id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(command, "+BCS:"))); err == nil {
			if id == 2 {
				h.selectedCodec = "mSBC"
			} else {
				h.selectedCodec = "CVSD"
			}
			h.state = AudioConnected
		}
	case strings.HasPrefix(command, "+CIND:"):
		h.parseIndicators(command)
	case strings.HasPrefix(command, "+CIEV:"):
		h.handleIndicatorEvent(command)
	}
}

func (h *Handler) parseHFFeatures(features int) {
	h.features.ECNR = features&HFFeatECNR != 0
	h.features.ThreeWayCalling = features&HFFeat3Way != 0
	h.features.CLIPresentation = features&HFFeatCLI != 0
	h.features.VoiceRecognition = features&HFFeatVR != 0
	h.features.RemoteVolumeControl = features&HFFeatRVol != 0
	h.features.EnhancedCallStatus = features&HFFeatECS != 0
	h.features.EnhancedCallControl = features&HFFeatECC != 0
	h.features.CodecNegotiation = features&HFFeatCodec != 0
	h.features.HFIndicators = features&HFFeatHFInd != 0
	h.features.ESCOS4 = features&HFFeatESCOS4 != 0
}

func (h *Handler) parseAGFeatures(features int) {
	h.features.AGThreeWayCalling = features&AGFeat3Way != 0
	h.features.AGECNR = features&AGFeatECNR != 0
	h.features.AGVoiceRecognition = features&AGFeatVR != 0
	h.features.AGInbandRingtone = features&AGFeatRing != 0
	h.features.AGVoiceTag = features&AGFeatVTag != 0
	h.features.AGRejectCall = features&AGFeatReject != 0
	h.features.AGEnhancedCallStatus = features&AGFeatECS != 0
	h.features.AGEnhancedCallControl = features&AGFeatECC != 0
	h.features.AGExtendedError = features&AGFeatEErr != 0
	h.features.AGCodecNegotiation = features&AGFeatCodec != 0
}

func (h *Handler) parseIndicators(cindResponse string) {
	for _, m := range cindPattern.FindAllStringSubmatch(cindResponse, -1) {
		name, rng := m[1], m[2]
		h.indicators[name] = &Indicator{Range: rng, Value: 0}
		h.indicatorOrder = append(h.indicatorOrder, name)
	}
}

func (h *Handler) handleIndicatorEvent(ciev string) {
	parts := strings.SplitN(ciev, ":", 2)
	if len(parts) != 2 {
		return
	}
	indVal := strings.Split(parts[1], ",")
	if len(indVal) != 2 {
		return
	}
	idx, err1 := strconv.Atoi(strings.TrimSpace(indVal[0]))
	value, err2 := strconv.Atoi(strings.TrimSpace(indVal[1]))
	if err1 != nil || err2 != nil || idx < 1 || idx > len(h.indicatorOrder) {
		return
	}
	name := h.indicatorOrder[idx-1]
	h.indicators[name].Value = value

	switch name {
	case "call":
		h.callState.Active = value == 1
	case "callsetup":
		h.callState.Incoming = value == 1
		h.callState.Outgoing = value == 2
	}
}

// Indicators returns a snapshot of the indicator table.
func (h *Handler) Indicators() map[string]Indicator {
	out := make(map[string]Indicator, len(h.indicators))
	for k, v := range h.indicators {
		out[k] = *v
	}
	return out
}

// FailureAnalysis is the output of AnalyzeFailure.
type FailureAnalysis struct {
	LastState           State
	TotalCommands        int
	CodecNegotiated      bool
	SelectedCodec        string
	SupportedCodecs      []string
	LikelyIssues         []string
	CommandFlow          []CommandFlowEntry
}

// CommandFlowEntry is one entry of the last-10 command-flow summary.
type CommandFlowEntry struct {
	Offset    time.Duration
	Command   string
	Direction Direction
	State     State
}

// AnalyzeFailure diagnoses a stalled or failed SLC/audio connection
// attempt from the traced command flow, matching the exact heuristics
// and message format of the reference diagnosis tool (Scenario D).
func (h *Handler) AnalyzeFailure() FailureAnalysis {
	analysis := FailureAnalysis{
		LastState:       h.state,
		TotalCommands:   len(h.trace),
		CodecNegotiated: h.features.CodecNegotiation && h.features.AGCodecNegotiation,
		SelectedCodec:   h.selectedCodec,
		SupportedCodecs: h.SupportedCodecs(),
	}

	switch h.state {
	case SLCConnecting:
		analysis.LikelyIssues = append(analysis.LikelyIssues, "Service Level Connection failed")
		if h.features.CodecNegotiation && !h.hasBCSExchange() {
			analysis.LikelyIssues = append(analysis.LikelyIssues, "Codec negotiation incomplete")
		}
	case AudioConnecting:
		analysis.LikelyIssues = append(analysis.LikelyIssues, "SCO audio connection failed")
		if contains(h.supportedCodecs, "mSBC") && h.selectedCodec == "CVSD" {
			analysis.LikelyIssues = append(analysis.LikelyIssues, "mSBC available but not selected")
		}
	}

	if len(h.trace) > 1 {
		var totalDelay time.Duration
		for i := 1; i < len(h.trace); i++ {
			totalDelay += h.trace[i].Timestamp.Sub(h.trace[i-1].Timestamp)
		}
		avgDelay := totalDelay / time.Duration(len(h.trace)-1)
		if avgDelay > time.Second {
			analysis.LikelyIssues = append(analysis.LikelyIssues,
				fmt.Sprintf("Slow command response (avg: %.2fs)", avgDelay.Seconds()))
		}
	}

	start := 0
	if len(h.trace) > 10 {
		start = len(h.trace) - 10
	}
	base := time.Time{}
	if len(h.trace) > 0 {
		base = h.trace[0].Timestamp
	}
	for _, cmd := range h.trace[start:] {
		analysis.CommandFlow = append(analysis.CommandFlow, CommandFlowEntry{
			Offset:    cmd.Timestamp.Sub(base),
			Command:   cmd.Command,
			Direction: cmd.Direction,
			State:     cmd.State,
		})
	}

	return analysis
}

func (h *Handler) hasBCSExchange() bool {
	for _, cmd := range h.trace {
		if strings.HasPrefix(cmd.Command, "+BCS") {
			return true
		}
	}
	return false
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// StateInfo is the public state snapshot returned by GetStateInfo.
type StateInfo struct {
	State           State
	Role            Role
	HFCodecNeg      bool
	Wideband        bool
	VolumeControl   bool
	AGCodecNeg      bool
	AGInbandRing    bool
	Codec           string
	SupportedCodecs []string
	CallState       CallState
	Indicators      map[string]Indicator
}

// GetStateInfo returns the current protocol and indicator view.
func (h *Handler) GetStateInfo() StateInfo {
	return StateInfo{
		State:           h.state,
		Role:            h.Role,
		HFCodecNeg:      h.features.CodecNegotiation,
		Wideband:        contains(h.supportedCodecs, "mSBC"),
		VolumeControl:   h.features.RemoteVolumeControl,
		AGCodecNeg:      h.features.AGCodecNegotiation,
		AGInbandRing:    h.features.AGInbandRingtone,
		Codec:           h.selectedCodec,
		SupportedCodecs: h.SupportedCodecs(),
		CallState:       h.callState,
		Indicators:      h.Indicators(),
	}
}

// Reset returns the handler to its initial DISCONNECTED state.
func (h *Handler) Reset() {
	h.state = Disconnected
	h.trace = nil
	h.supportedCodecs = []string{"CVSD"}
	h.selectedCodec = "CVSD"
	h.indicatorOrder = nil
	h.indicators = map[string]*Indicator{}
	h.callState = CallState{}
}
