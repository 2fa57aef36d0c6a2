package sco

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMetricsWhenInsufficientHistory(t *testing.T) {
	m := NewMonitor()
	metrics := m.ProcessPacket(PacketInfo{Timestamp: time.Now(), SequenceNumber: 0, Codec: "CVSD"})
	assert.Equal(t, 4.0, metrics.MOSScore)
	assert.Equal(t, "stable", metrics.QualityTrend)
}

func TestCalculateMOSRangeAndRounding(t *testing.T) {
	perfect := calculateMOS(0, 0, 0)
	assert.InDelta(t, 4.41, perfect, 1e-9)

	degraded := calculateMOS(0.2, 300, 10)
	assert.Less(t, degraded, perfect)
	assert.GreaterOrEqual(t, degraded, 1.0)
}

// Invariant 9 from spec §8: MOS score decreases monotonically as packet
// loss increases, holding latency and jitter fixed.
func TestInvariant9_MOSMonotonicWithLoss(t *testing.T) {
	prev := calculateMOS(0.0, 20, 1)
	for _, loss := range []float64{0.01, 0.05, 0.1, 0.2, 0.4} {
		cur := calculateMOS(loss, 20, 1)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestCodecSwitchDetection(t *testing.T) {
	m := NewMonitor()
	m.ProcessPacket(PacketInfo{Timestamp: time.Now(), SequenceNumber: 0, Codec: "CVSD"})
	m.ProcessPacket(PacketInfo{Timestamp: time.Now().Add(time.Millisecond), SequenceNumber: 1, Codec: "mSBC"})
	assert.Equal(t, 1, m.codecSwitches)
}

func TestCalculateCodecEfficiencyPenalizesLossAndLinkQuality(t *testing.T) {
	clean := calculateCodecEfficiency("mSBC", 0, 255)
	lossy := calculateCodecEfficiency("mSBC", 0.2, 255)
	weakLink := calculateCodecEfficiency("mSBC", 0, 100)

	assert.Greater(t, clean, lossy)
	assert.Greater(t, clean, weakLink)
}

func TestEstimatePESQBoundaryScores(t *testing.T) {
	quiet := make([]byte, 320) // all-zero samples -> near-zero variance
	assert.Equal(t, 1.0, estimatePESQ(quiet))

	short := make([]byte, 10)
	assert.Equal(t, 3.0, estimatePESQ(short))
}

func TestDetectEchoLikelihoodShortBufferIsZero(t *testing.T) {
	assert.Equal(t, 0.0, detectEchoLikelihood(make([]byte, 100)))
}

func TestCalculateSNRShortBufferDefault(t *testing.T) {
	assert.Equal(t, 20.0, calculateSNR(make([]byte, 50)))
}

func TestLinearFitDetectsSlope(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5}
	slope, _ := linearFit(rising)
	assert.InDelta(t, 1.0, slope, 1e-9)

	flat := []float64{3, 3, 3, 3}
	slope, _ = linearFit(flat)
	assert.InDelta(t, 0.0, slope, 1e-9)
}

func TestPercentileInterpolates(t *testing.T) {
	xs := []float64{10, 20, 30, 40, 50}
	assert.InDelta(t, 50, percentile(xs, 100), 1e-9)
	assert.InDelta(t, 10, percentile(xs, 0), 1e-9)
}

func TestSuggestSCOParametersPoorConditionsForceCVSD(t *testing.T) {
	m := NewMonitor()
	suggestion := m.SuggestSCOParameters("poor")
	assert.Equal(t, "CVSD", suggestion.Codec)
	assert.True(t, suggestion.Retransmission)
}

func TestSuggestSCOParametersExcellentPrefersMSBC(t *testing.T) {
	m := NewMonitor()
	m.lastCodec = "mSBC"
	suggestion := m.SuggestSCOParameters("excellent")
	assert.Equal(t, "mSBC", suggestion.Codec)
	assert.False(t, suggestion.Retransmission)
}

func TestSuggestSCOParametersNormalConditions(t *testing.T) {
	m := NewMonitor()
	suggestion := m.SuggestSCOParameters("normal")
	assert.Equal(t, "HV3", suggestion.PacketType)
	assert.Equal(t, 15, suggestion.MaxLatencyMS)
}

func TestGetSummaryReportUnavailableWithNoHistory(t *testing.T) {
	m := NewMonitor()
	report := m.GetSummaryReport()
	assert.False(t, report.Available)
}

func TestGetSummaryReportAfterPackets(t *testing.T) {
	m := NewMonitor()
	base := time.Now()
	for i := 0; i < 20; i++ {
		m.ProcessPacket(PacketInfo{
			Timestamp:      base.Add(time.Duration(i) * 7500 * time.Microsecond),
			SequenceNumber: uint32(i),
			Codec:          "mSBC",
			LinkQuality:    220,
			RawData:        make([]byte, 60),
		})
	}
	report := m.GetSummaryReport()
	assert.True(t, report.Available)
	assert.Equal(t, 20, report.TotalPackets)
	assert.Equal(t, "mSBC", report.CurrentCodec)
	assert.NotEmpty(t, report.RecommendedAction)
}

// Scenario F from spec §8: sustained high-anomaly feature vectors push
// the predictive failure probability above 0.5 once the baseline model
// has been trained, producing a non-nil time-to-failure estimate when
// the trend is worsening.
func TestScenarioF_DegradationPrediction(t *testing.T) {
	m := NewMonitor()
	base := time.Now()

	var normalSamples [][20]float64
	for i := 0; i < 40; i++ {
		m.ProcessPacket(PacketInfo{
			Timestamp:      base.Add(time.Duration(i) * 7500 * time.Microsecond),
			SequenceNumber: uint32(i),
			Codec:          "mSBC",
			LinkQuality:    230,
			RawData:        make([]byte, 60),
		})
		normalSamples = append(normalSamples, m.extractFeatures())
	}
	m.TrainAnomalyModel(normalSamples)
	assert.True(t, m.anomaly.trained)

	var lastMetrics Metrics
	for i := 40; i < 80; i++ {
		lastMetrics = m.ProcessPacket(PacketInfo{
			Timestamp:      base.Add(time.Duration(i*50) * time.Millisecond), // badly irregular timing
			SequenceNumber: uint32(i * 3),                                    // implies heavy loss
			Codec:          "mSBC",
			LinkQuality:    40,
			RawData:        make([]byte, 60),
		})
	}

	assert.Greater(t, lastMetrics.FailureProbability, 0.0)
}
