package hfp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutgoingBRSFParsesHFFeatures(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("AT+BRSF=191", "", TX)

	assert.Equal(t, SLCConnecting, h.State())
	f := h.Features()
	assert.True(t, f.ECNR)
	assert.True(t, f.ThreeWayCalling)
	assert.True(t, f.CLIPresentation)
	assert.True(t, f.RemoteVolumeControl)
	assert.False(t, f.HFIndicators)
}

func TestIncomingBRSFParsesAGFeatures(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("+BRSF:143", "", RX)

	f := h.Features()
	assert.True(t, f.AGThreeWayCalling)
	assert.True(t, f.AGECNR)
	assert.True(t, f.AGInbandRingtone)
	assert.False(t, f.AGCodecNegotiation)
}

func TestCMEREntersConnected(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("AT+BRSF=191", "", TX)
	h.ProcessATCommand("AT+CMER", "", TX)
	assert.Equal(t, Connected, h.State())
}

func TestBCCEntersAudioConnecting(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("AT+BCC", "", TX)
	assert.Equal(t, AudioConnecting, h.State())
}

func TestBACParsesSupportedCodecs(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("+BAC:1,2", "", RX)
	assert.ElementsMatch(t, []string{"CVSD", "mSBC"}, h.SupportedCodecs())
}

func TestBCSSelectsWidebandCodec(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("+BCS:2", "", RX)
	assert.Equal(t, "mSBC", h.SelectedCodec())
	assert.Equal(t, AudioConnected, h.State())
}

func TestBCSSelectsCVSDByDefault(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("+BCS:1", "", RX)
	assert.Equal(t, "CVSD", h.SelectedCodec())
}

func TestCINDParsesIndicatorTable(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand(`+CIND: ("call",(0,1)),("callsetup",(0-3)),("service",(0,1))`, "", RX)

	indicators := h.Indicators()
	require.Contains(t, indicators, "call")
	require.Contains(t, indicators, "callsetup")
	require.Contains(t, indicators, "service")
	assert.Equal(t, "0,1", indicators["call"].Range)
}

func TestCIEVUpdatesCallState(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand(`+CIND: ("call",(0,1)),("callsetup",(0-3)),("service",(0,1))`, "", RX)
	h.ProcessATCommand("+CIEV:1,1", "", RX)

	assert.True(t, h.CallState().Active)
}

func TestCIEVCallsetupIncomingOutgoing(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand(`+CIND: ("call",(0,1)),("callsetup",(0-3))`, "", RX)
	h.ProcessATCommand("+CIEV:2,1", "", RX)
	assert.True(t, h.CallState().Incoming)
	assert.False(t, h.CallState().Outgoing)

	h.ProcessATCommand("+CIEV:2,2", "", RX)
	assert.True(t, h.CallState().Outgoing)
}

// Scenario D from spec §8: HFP stall diagnosis during SLC negotiation
// with codec negotiation advertised but never completed.
func TestScenarioD_StalledSLCDiagnosis(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("AT+BRSF=191", "", TX) // advertises codec negotiation (0x80)
	h.ProcessATCommand("+BRSF:655", "", RX)   // AG also advertises 0x200

	analysis := h.AnalyzeFailure()
	assert.Equal(t, SLCConnecting, analysis.LastState)
	assert.True(t, analysis.CodecNegotiated)
	assert.Contains(t, analysis.LikelyIssues, "Service Level Connection failed")
	assert.Contains(t, analysis.LikelyIssues, "Codec negotiation incomplete")
}

func TestAnalyzeFailureAudioConnectingPrefersMSBC(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("+BAC:1,2", "", RX)
	h.ProcessATCommand("AT+BCC", "", TX)

	analysis := h.AnalyzeFailure()
	assert.Equal(t, AudioConnecting, analysis.LastState)
	assert.Contains(t, analysis.LikelyIssues, "SCO audio connection failed")
	assert.Contains(t, analysis.LikelyIssues, "mSBC available but not selected")
}

func TestAnalyzeFailureSlowCommandMessage(t *testing.T) {
	h := NewHandler(RoleHF)
	h.trace = []ATCommand{
		{Timestamp: time.Unix(0, 0), Command: "AT+BRSF=191", Direction: TX, State: Disconnected},
		{Timestamp: time.Unix(2, 0), Command: "+BRSF:143", Direction: RX, State: SLCConnecting},
	}
	h.state = SLCConnecting

	analysis := h.AnalyzeFailure()
	found := false
	for _, issue := range analysis.LikelyIssues {
		if issue == "Slow command response (avg: 2.00s)" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeFailureCommandFlowCapsAtTen(t *testing.T) {
	h := NewHandler(RoleHF)
	for i := 0; i < 15; i++ {
		h.ProcessATCommand("AT+CIND?", "", TX)
	}
	analysis := h.AnalyzeFailure()
	assert.Len(t, analysis.CommandFlow, 10)
}

func TestResetClearsState(t *testing.T) {
	h := NewHandler(RoleHF)
	h.ProcessATCommand("AT+BRSF=191", "", TX)
	h.Reset()

	assert.Equal(t, Disconnected, h.State())
	assert.Equal(t, "CVSD", h.SelectedCodec())
	assert.Empty(t, h.Indicators())
}
