// Package sco analyzes SCO/eSCO audio streams: packet-loss and latency
// statistics, a simplified E-model MOS estimate, lightweight PESQ/SNR/
// echo proxies, codec efficiency, and a predictive quality-trend /
// failure-probability estimator.
package sco

import (
	"math"
	"math/cmplx"
	"sort"
	"time"
)

// Codec frame intervals, in milliseconds.
const (
	intervalCVSD    = 3.75
	intervalMSBC    = 7.5
	intervalLC3SWB  = 10.0
	defaultInterval = 7.5
)

const (
	packetBufferCap = 10000
	latencyBufferCap = 1000
	qualityHistoryCap = 600 // 10 minutes at 1Hz
)

// PacketInfo is one observed SCO packet.
type PacketInfo struct {
	Timestamp      time.Time
	SequenceNumber uint32
	PayloadSize    int
	RSSI           int8
	LinkQuality    int // 0..255
	ErrorRate      float64
	Codec          string // "CVSD", "mSBC", "LC3-SWB"
	RawData        []byte
}

// Metrics is the comprehensive per-packet quality snapshot.
type Metrics struct {
	PacketLossRate float64
	AverageLatency float64
	LatencyP95     float64
	LatencyP99     float64
	Jitter         float64
	JitterVariance float64

	MOSScore        float64
	PESQScore       float64
	SignalToNoise   float64
	EchoLikelihood  float64

	FailureProbability     float64
	QualityTrend           string // "improving", "stable", "degrading"
	EstimatedTimeToFailure *float64

	CodecSwitches    int
	CodecEfficiency  float64
}

type historyEntry struct {
	at      time.Time
	metrics Metrics
}

// Monitor accumulates a bounded packet/quality history and derives
// real-time and trend-based audio quality metrics from it.
type Monitor struct {
	packetBuffer   []PacketInfo
	latencyBuffer  []float64
	qualityHistory []historyEntry

	totalPackets  int
	codecSwitches int
	lastCodec     string

	anomaly anomalyModel
}

// NewMonitor constructs an empty Monitor defaulting to the CVSD codec.
func NewMonitor() *Monitor {
	return &Monitor{lastCodec: "CVSD"}
}

// ProcessPacket appends packet to the bounded history and returns the
// recomputed quality metrics, including the failure prediction once the
// anomaly model has been trained via TrainAnomalyModel.
func (m *Monitor) ProcessPacket(packet PacketInfo) Metrics {
	m.packetBuffer = appendBounded(m.packetBuffer, packet, packetBufferCap)
	m.totalPackets++

	if packet.Codec != m.lastCodec {
		m.codecSwitches++
		m.lastCodec = packet.Codec
	}

	metrics := m.calculateMetrics(packet)

	if m.anomaly.trained {
		prob := m.predictFailure()
		metrics.FailureProbability = prob
		metrics.EstimatedTimeToFailure = m.estimateTimeToFailure()
	}

	m.qualityHistory = appendHistoryBounded(m.qualityHistory, historyEntry{at: time.Now(), metrics: metrics}, qualityHistoryCap)
	return metrics
}

func appendBounded(buf []PacketInfo, p PacketInfo, max int) []PacketInfo {
	buf = append(buf, p)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func appendHistoryBounded(buf []historyEntry, e historyEntry, max int) []historyEntry {
	buf = append(buf, e)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func (m *Monitor) calculateMetrics(current PacketInfo) Metrics {
	if len(m.packetBuffer) < 2 {
		return defaultMetrics()
	}

	first := m.packetBuffer[0]
	expected := int(current.SequenceNumber) - int(first.SequenceNumber)
	actual := len(m.packetBuffer)
	lossRate := 0.0
	if expected > 0 {
		lossRate = math.Max(0, 1-float64(actual)/float64(expected))
	}

	var latencies []float64
	for i := 1; i < len(m.packetBuffer); i++ {
		timeDiffMS := m.packetBuffer[i].Timestamp.Sub(m.packetBuffer[i-1].Timestamp).Seconds() * 1000
		expectedMS := expectedPacketInterval(m.packetBuffer[i].Codec)
		latency := math.Abs(timeDiffMS - expectedMS)
		latencies = append(latencies, latency)
		m.latencyBuffer = appendFloatBounded(m.latencyBuffer, latency, latencyBufferCap)
	}

	avgLatency, p95, p99, jitter, jitterVar := 0.0, 0.0, 0.0, 0.0, 0.0
	if len(latencies) > 0 {
		avgLatency = mean(latencies)
		p95 = percentile(latencies, 95)
		p99 = percentile(latencies, 99)
		jitter = stddev(latencies)
		jitterVar = jitter * jitter
	}

	mos := calculateMOS(lossRate, avgLatency, jitter)

	var pesq, snr, echo float64
	if len(current.RawData) > 0 {
		pesq = estimatePESQ(current.RawData)
		snr = calculateSNR(current.RawData)
		echo = detectEchoLikelihood(current.RawData)
	} else {
		pesq, snr, echo = 3.0, 20.0, 0.0
	}

	efficiency := calculateCodecEfficiency(current.Codec, lossRate, current.LinkQuality)
	trend := m.analyzeQualityTrend()

	return Metrics{
		PacketLossRate:  lossRate,
		AverageLatency:  avgLatency,
		LatencyP95:      p95,
		LatencyP99:      p99,
		Jitter:          jitter,
		JitterVariance:  jitterVar,
		MOSScore:        mos,
		PESQScore:       pesq,
		SignalToNoise:   snr,
		EchoLikelihood:  echo,
		QualityTrend:    trend,
		CodecSwitches:   m.codecSwitches,
		CodecEfficiency: efficiency,
	}
}

func appendFloatBounded(buf []float64, v float64, max int) []float64 {
	buf = append(buf, v)
	if len(buf) > max {
		buf = buf[len(buf)-max:]
	}
	return buf
}

func expectedPacketInterval(codec string) float64 {
	switch codec {
	case "mSBC":
		return intervalMSBC
	case "LC3-SWB":
		return intervalLC3SWB
	default:
		return intervalCVSD
	}
}

// calculateMOS estimates a Mean Opinion Score (1.0-4.5) from loss,
// latency (ms) and jitter (ms) using a simplified ITU-T G.107 E-model.
func calculateMOS(loss, latency, jitter float64) float64 {
	rFactor := 93.2
	if loss > 0 {
		rFactor -= 2.5 * math.Log(1+10*loss)
	}
	if latency > 150 {
		rFactor -= (latency - 150) * 0.02
	}
	rFactor -= jitter * 0.1

	var mos float64
	switch {
	case rFactor < 0:
		mos = 1.0
	case rFactor > 100:
		mos = 4.5
	default:
		mos = 1 + 0.035*rFactor + 0.000007*rFactor*(rFactor-60)*(100-rFactor)
	}
	return round2(mos)
}

// estimatePESQ is a variance-based proxy for a real PESQ computation:
// very quiet buffers score as likely-muted, very loud ones as likely
// clipping, with a linear ramp over the normal range between.
func estimatePESQ(data []byte) float64 {
	if len(data) < 160 {
		return 3.0
	}
	samples := bytesToInt16(data)
	v := varianceInt16(samples)
	switch {
	case v < 100:
		return 1.0
	case v > 10000:
		return 2.0
	default:
		return 2.0 + math.Min(2.5, v/4000)
	}
}

// calculateSNR estimates signal-to-noise ratio in dB using low-frequency
// energy as the signal estimate and high-frequency energy as the noise
// estimate, via a direct discrete Fourier transform.
func calculateSNR(data []byte) float64 {
	if len(data) < 320 {
		return 20.0
	}
	samples := bytesToInt16(data)
	spectrum := dft(samples)

	n := len(spectrum)
	signalPower := meanPowerRange(spectrum, 0, n/4)
	noisePower := meanPowerRange(spectrum, 3*n/4, n)

	if noisePower > 0 {
		snr := 10 * math.Log10(signalPower/noisePower)
		return math.Max(0, math.Min(50, snr))
	}
	return 30.0
}

// detectEchoLikelihood estimates the probability of acoustic echo from
// the ratio between autocorrelation energy at typical echo delays
// (10-50ms at 16kHz) and the peak autocorrelation.
func detectEchoLikelihood(data []byte) float64 {
	if len(data) < 640 {
		return 0.0
	}
	samples := bytesToFloat64(bytesToInt16(data))
	autocorr := autocorrelate(samples)

	half := len(autocorr) / 2
	tail := autocorr[half:]

	lo, hi := 160, 800
	if hi > len(tail) {
		hi = len(tail)
	}
	if lo >= hi {
		return 0.0
	}
	region := tail[lo:hi]

	peak := maxAbs(tail)
	if peak == 0 {
		return 0.0
	}
	echoStrength := maxAbs(region) / peak
	return math.Min(1.0, echoStrength)
}

func calculateCodecEfficiency(codec string, loss float64, linkQuality int) float64 {
	base := 0.8
	if codec == "mSBC" {
		base = 0.9
	}
	efficiency := base * (1 - loss)
	if linkQuality < 200 {
		efficiency *= float64(linkQuality) / 255.0
	}
	return round3(efficiency)
}

// analyzeQualityTrend fits a line through the last 30 MOS scores.
func (m *Monitor) analyzeQualityTrend() string {
	if len(m.qualityHistory) < 10 {
		return "stable"
	}
	recent := lastN(m.qualityHistory, 30)
	scores := make([]float64, len(recent))
	for i, e := range recent {
		scores[i] = e.metrics.MOSScore
	}
	if len(scores) < 2 {
		return "stable"
	}
	slope, _ := linearFit(scores)
	switch {
	case slope > 0.01:
		return "improving"
	case slope < -0.01:
		return "degrading"
	default:
		return "stable"
	}
}

func lastN(h []historyEntry, n int) []historyEntry {
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

func defaultMetrics() Metrics {
	return Metrics{
		MOSScore:        4.0,
		PESQScore:       3.5,
		SignalToNoise:   30.0,
		QualityTrend:    "stable",
		CodecEfficiency: 1.0,
	}
}

// --- anomaly / failure prediction ---
//
// The reference tool trains an IsolationForest (scikit-learn) over
// historical feature vectors; no equivalent ML library is available in
// this module's dependency pack. anomalyModel substitutes a feature-wise
// z-score distance from a baseline mean/stddev (computed once over a
// window of known-normal samples), squashed through a logistic function
// to the same [0,1] failure-probability range.

type anomalyModel struct {
	trained bool
	mean    [20]float64
	std     [20]float64
}

// TrainAnomalyModel establishes the baseline mean/stddev for the
// 20-feature vector from a window of samples known to represent normal
// operation.
func (m *Monitor) TrainAnomalyModel(normalSamples [][20]float64) {
	if len(normalSamples) < 10 {
		return
	}
	var mean, std [20]float64
	for f := 0; f < 20; f++ {
		var sum float64
		for _, s := range normalSamples {
			sum += s[f]
		}
		mean[f] = sum / float64(len(normalSamples))
	}
	for f := 0; f < 20; f++ {
		var sumSq float64
		for _, s := range normalSamples {
			d := s[f] - mean[f]
			sumSq += d * d
		}
		std[f] = math.Sqrt(sumSq / float64(len(normalSamples)))
		if std[f] == 0 {
			std[f] = 1
		}
	}
	m.anomaly = anomalyModel{trained: true, mean: mean, std: std}
}

func (m *Monitor) predictFailure() float64 {
	if !m.anomaly.trained || len(m.qualityHistory) < 10 {
		return 0.0
	}
	features := m.extractFeatures()

	var sumAbsZ float64
	for i := 0; i < 20; i++ {
		z := (features[i] - m.anomaly.mean[i]) / m.anomaly.std[i]
		sumAbsZ += math.Abs(z)
	}
	avgAbsZ := sumAbsZ / 20

	// Logistic squash of the anomaly score, shifted so an average
	// |z| around 2 standard deviations sits near the midpoint.
	probability := 1 / (1 + math.Exp(-(avgAbsZ - 2)))
	return round3(probability)
}

func (m *Monitor) estimateTimeToFailure() *float64 {
	if !m.anomaly.trained || len(m.qualityHistory) < 30 {
		return nil
	}
	recent := lastN(m.qualityHistory, 30)
	var probs []float64
	for _, e := range recent {
		if e.metrics.FailureProbability > 0 {
			probs = append(probs, e.metrics.FailureProbability)
		}
	}
	if len(probs) < 10 {
		return nil
	}
	if maxFloat(probs) < 0.5 {
		return nil
	}

	slope, _ := linearFit(probs)
	if slope <= 0 {
		return nil
	}

	last := probs[len(probs)-1]
	timeToThreshold := (0.8 - last) / slope
	if timeToThreshold < 0 {
		timeToThreshold = 0
	}
	secs := timeToThreshold * 60
	return &secs
}

// extractFeatures builds the 20-dimensional feature vector from the
// last 60 quality-history samples, mirroring the reference tool's
// statistical + trend + delta + codec feature groups.
func (m *Monitor) extractFeatures() [20]float64 {
	var out [20]float64
	recent := lastN(m.qualityHistory, 60)
	if len(recent) == 0 {
		return out
	}

	loss := make([]float64, len(recent))
	lat := make([]float64, len(recent))
	jit := make([]float64, len(recent))
	p99 := make([]float64, len(recent))
	mos := make([]float64, len(recent))
	snr := make([]float64, len(recent))
	echo := make([]float64, len(recent))
	for i, e := range recent {
		loss[i] = e.metrics.PacketLossRate
		lat[i] = e.metrics.AverageLatency
		jit[i] = e.metrics.Jitter
		p99[i] = e.metrics.LatencyP99
		mos[i] = e.metrics.MOSScore
		snr[i] = e.metrics.SignalToNoise
		echo[i] = e.metrics.EchoLikelihood
	}

	out[0] = mean(loss)
	out[1] = stddev(loss)
	out[2] = mean(lat)
	out[3] = stddev(lat)
	out[4] = mean(jit)
	out[5] = maxFloat(p99)
	out[6] = mean(mos)
	out[7] = minFloat(mos)
	out[8] = mean(snr)
	out[9] = mean(echo)

	if len(mos) > 1 {
		slope, _ := linearFit(mos)
		out[10] = slope
	}

	if len(recent) > 10 {
		recentWindow := recent[len(recent)-5:]
		olderWindow := recent[len(recent)-15 : len(recent)-10]
		out[11] = meanMetric(recentWindow, lossOf) - meanMetric(olderWindow, lossOf)
		out[12] = meanMetric(recentWindow, latOf) - meanMetric(olderWindow, latOf)
		out[13] = meanMetric(recentWindow, jitOf) - meanMetric(olderWindow, jitOf)
	}

	out[18] = float64(m.codecSwitches)
	out[19] = recent[len(recent)-1].metrics.CodecEfficiency
	return out
}

func lossOf(e historyEntry) float64 { return e.metrics.PacketLossRate }
func latOf(e historyEntry) float64  { return e.metrics.AverageLatency }
func jitOf(e historyEntry) float64  { return e.metrics.Jitter }

func meanMetric(entries []historyEntry, f func(historyEntry) float64) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += f(e)
	}
	return sum / float64(len(entries))
}

// --- summary report ---

// SummaryReport is the comprehensive quality digest over the most
// recent 5 minutes of history.
type SummaryReport struct {
	Available bool

	TotalPackets       int
	MonitoringDuration time.Duration
	CurrentCodec       string
	CodecSwitches      int

	CurrentMOS float64
	AverageMOS float64
	MinMOS     float64
	Trend      string

	PacketLossRate float64
	AverageLatency float64
	LatencyP95     float64
	Jitter         float64

	AverageSNR      float64
	EchoDetection   float64
	CodecEfficiency float64

	FailureProbability float64
	TimeToFailure      *float64
	RecommendedAction  string
}

// GetSummaryReport rolls up the last ~5 minutes (300 samples) of
// quality history.
func (m *Monitor) GetSummaryReport() SummaryReport {
	if len(m.qualityHistory) == 0 {
		return SummaryReport{Available: false}
	}
	recent := lastN(m.qualityHistory, 300)
	last := recent[len(recent)-1].metrics

	mosScores := make([]float64, len(recent))
	lossRates := make([]float64, len(recent))
	latencies := make([]float64, len(recent))
	p95s := make([]float64, len(recent))
	jitters := make([]float64, len(recent))
	snrs := make([]float64, len(recent))
	echoes := make([]float64, len(recent))
	effs := make([]float64, len(recent))
	for i, e := range recent {
		mosScores[i] = e.metrics.MOSScore
		lossRates[i] = e.metrics.PacketLossRate
		latencies[i] = e.metrics.AverageLatency
		p95s[i] = e.metrics.LatencyP95
		jitters[i] = e.metrics.Jitter
		snrs[i] = e.metrics.SignalToNoise
		echoes[i] = e.metrics.EchoLikelihood
		effs[i] = e.metrics.CodecEfficiency
	}

	return SummaryReport{
		Available:          true,
		TotalPackets:        m.totalPackets,
		MonitoringDuration:  time.Since(m.qualityHistory[0].at),
		CurrentCodec:        m.lastCodec,
		CodecSwitches:       m.codecSwitches,
		CurrentMOS:          last.MOSScore,
		AverageMOS:          mean(mosScores),
		MinMOS:              minFloat(mosScores),
		Trend:               last.QualityTrend,
		PacketLossRate:      mean(lossRates),
		AverageLatency:      mean(latencies),
		LatencyP95:          percentile(p95s, 95),
		Jitter:              mean(jitters),
		AverageSNR:          mean(snrs),
		EchoDetection:       maxFloat(echoes),
		CodecEfficiency:     mean(effs),
		FailureProbability:  last.FailureProbability,
		TimeToFailure:       last.EstimatedTimeToFailure,
		RecommendedAction:   recommendedAction(last),
	}
}

func recommendedAction(metrics Metrics) string {
	switch {
	case metrics.FailureProbability > 0.7:
		return "Immediate intervention required - reconnect recommended"
	case metrics.FailureProbability > 0.5:
		switch {
		case metrics.CodecSwitches > 5:
			return "Force CVSD codec to stabilize connection"
		case metrics.AverageLatency > 50:
			return "Check network congestion or interference"
		default:
			return "Monitor closely - connection degrading"
		}
	case metrics.MOSScore < 3.0:
		switch {
		case metrics.EchoLikelihood > 0.5:
			return "Enable echo cancellation"
		case metrics.SignalToNoise < 15:
			return "Check microphone placement or gain settings"
		default:
			return "Adjust audio settings for better quality"
		}
	default:
		return "Connection stable - continue monitoring"
	}
}

// ParameterSuggestion is the result of SuggestSCOParameters.
type ParameterSuggestion struct {
	Codec           string
	PacketType      string
	MaxLatencyMS    int
	Retransmission  bool
	Reason          []string
}

// SuggestSCOParameters recommends SCO link parameters for the given RF
// conditions ("poor", "excellent", or anything else for "normal"),
// falling back to "poor" handling whenever the last observed packet
// loss rate exceeded 10%.
func (m *Monitor) SuggestSCOParameters(rfConditions string) ParameterSuggestion {
	lastLoss := 0.0
	if len(m.qualityHistory) > 0 {
		lastLoss = m.qualityHistory[len(m.qualityHistory)-1].metrics.PacketLossRate
	}

	switch {
	case rfConditions == "poor" || lastLoss > 0.1:
		return ParameterSuggestion{
			Codec: "CVSD", PacketType: "HV3", MaxLatencyMS: 20, Retransmission: true,
			Reason: []string{"Poor RF conditions detected - using most reliable settings"},
		}
	case rfConditions == "excellent" && m.lastCodec == "mSBC":
		return ParameterSuggestion{
			Codec: "mSBC", PacketType: "2-EV3", MaxLatencyMS: 10, Retransmission: false,
			Reason: []string{"Excellent conditions - optimizing for quality"},
		}
	default:
		packetType := "HV3"
		if m.lastCodec == "mSBC" {
			packetType = "EV3"
		}
		return ParameterSuggestion{
			Codec: m.lastCodec, PacketType: packetType, MaxLatencyMS: 15, Retransmission: true,
			Reason: []string{"Standard settings for typical conditions"},
		}
	}
}

// --- numeric helpers ---

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	rank := (p / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func maxFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// linearFit returns the slope and intercept of the least-squares line
// through ys at x = 0..len(ys)-1.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n < 2 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func bytesToInt16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}

func bytesToFloat64(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

func varianceInt16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	m := sum / float64(len(samples))
	var sumSq float64
	for _, s := range samples {
		d := float64(s) - m
		sumSq += d * d
	}
	return sumSq / float64(len(samples))
}

func meanPowerRange(spectrum []complex128, lo, hi int) float64 {
	if hi > len(spectrum) {
		hi = len(spectrum)
	}
	if lo >= hi {
		return 0
	}
	var sum float64
	for _, c := range spectrum[lo:hi] {
		m := cmplx.Abs(c)
		sum += m * m
	}
	return sum / float64(hi-lo)
}

// dft computes a direct (O(n^2)) discrete Fourier transform, adequate
// for the small sample windows (tens to low hundreds of samples) this
// package analyzes; no FFT library is available in this module's
// dependency pack and these buffer sizes don't warrant one.
func dft(samples []int16) []complex128 {
	n := len(samples)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			sum += complex(float64(samples[t]), 0) * cmplx.Exp(complex(0, angle))
		}
		out[k] = sum
	}
	return out
}

// autocorrelate computes the full (2n-1 length) autocorrelation of x.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	out := make([]float64, 2*n-1)
	for lag := -(n - 1); lag <= n-1; lag++ {
		var sum float64
		for i := 0; i < n; i++ {
			j := i + lag
			if j >= 0 && j < n {
				sum += x[i] * x[j]
			}
		}
		out[lag+n-1] = sum
	}
	return out
}

func maxAbs(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
