package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestATTParserReadRequest(t *testing.T) {
	p := ATTParser{}
	data := []byte{0x0A, 0x02, 0x00}
	require.True(t, p.CanParse(data))

	fields, err := p.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0A), fields["opcode"])
	assert.Equal(t, "Read Request", fields["opcode_name"])
	assert.Equal(t, "0x0002", fields["handle"])
}

func TestATTParserErrorResponse(t *testing.T) {
	p := ATTParser{}
	data := []byte{0x01, 0x0A, 0x02, 0x00, 0x05}
	fields, err := p.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), fields["error_code"])
	assert.Equal(t, "Insufficient Authentication", fields["error_name"])
}

func TestATTParserUnknownOpcode(t *testing.T) {
	p := ATTParser{}
	assert.False(t, p.CanParse([]byte{0xFF}))
	_, err := p.Parse([]byte{0xFF})
	assert.Error(t, err)
}

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry()
	r.Register("ATT", ATTParser{})
	r.Register("ATT", ATTParser{})

	fields, ok, err := r.Parse("ATT", []byte{0x0A, 0x02, 0x00})
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, "Read Request", fields["opcode_name"])
}

func TestRegistryUnregisteredTag(t *testing.T) {
	r := NewRegistry()
	_, ok, err := r.Parse("UNKNOWN", nil)
	assert.False(t, ok)
	assert.NoError(t, err)
}
