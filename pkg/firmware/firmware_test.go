package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	raw := make([]byte, 16)
	copy(raw[0:8], []byte("Realtech"))
	raw[8], raw[9] = 0x01, 0x00
	raw[10], raw[11] = 0x02, 0x00
	raw[12], raw[13], raw[14], raw[15] = 0x10, 0x00, 0x00, 0x00

	h, err := ParseHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, "Realtech", string(h.Signature[:]))
	assert.Equal(t, uint16(1), h.Version)
	assert.Equal(t, uint16(2), h.NumPatches)
	assert.Equal(t, uint32(0x10), h.PatchLength)
}

func TestParseHeaderTooShort(t *testing.T) {
	_, err := ParseHeader([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestLoadErrorWrapsReason(t *testing.T) {
	inner := assert.AnError
	err := &LoadError{Step: "reset", Reason: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "reset")
}
