package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Scenario B from spec §8.
func TestScenarioB_RepeatingTriplet(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x01, 0x02, 0x03, 0x01, 0x02, 0x03}
	a := &Analyzer{MinLen: 2, MaxLen: 8}
	m := a.Analyze(data)

	found := false
	for _, p := range m.Patterns {
		if p.HexPattern == "010203" && p.Count >= 3 {
			found = true
		}
		assert.GreaterOrEqual(t, p.Count, 2)
	}
	assert.True(t, found)
	assert.GreaterOrEqual(t, m.Coverage, 0.99)
	assert.Less(t, m.Entropy, 0.6)
}

func TestEntropyAllEqual(t *testing.T) {
	data := make([]byte, 100)
	assert.InDelta(t, 0.0, Entropy(data), 1e-9)
}

func TestEntropyUniform(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	assert.InDelta(t, 1.0, Entropy(data), 1e-9)
}

func TestFindByteSequences(t *testing.T) {
	data := []byte{0x00, 0x02, 0x04, 0x06, 0x08, 0xFF}
	seqs := FindByteSequences(data)
	assert.NotEmpty(t, seqs)
	assert.Equal(t, int64(2), seqs[0].Step)
	assert.GreaterOrEqual(t, seqs[0].Length, 3)
}

func TestDetectEncodingASCII(t *testing.T) {
	enc := DetectEncoding([]byte("hello world"))
	assert.Equal(t, "ascii", enc.Kind)
}

func TestDetectEncodingBCD(t *testing.T) {
	enc := DetectEncoding([]byte{0x12, 0x34, 0x56, 0x98})
	assert.Equal(t, "bcd", enc.Kind)
}

func TestFindBitPatterns(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	pats := FindBitPatterns(data)
	assert.NotEmpty(t, pats)
	for _, p := range pats {
		assert.GreaterOrEqual(t, p.Count, 2)
	}
}
