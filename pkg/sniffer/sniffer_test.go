package sniffer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluefusion/pkg/packet"
)

func buildPayload(typ byte, channel byte, rssi int8, addr [6]byte, sdu []byte) []byte {
	buf := make([]byte, 13+len(sdu))
	buf[0] = typ
	binary.BigEndian.PutUint32(buf[1:5], 12345)
	buf[5] = channel
	buf[6] = byte(rssi)
	copy(buf[7:13], addr[:])
	copy(buf[13:], sdu)
	return buf
}

func TestParsePayloadAdvertisement(t *testing.T) {
	addr := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0x01}
	data := buildPayload(0x00, 37, -55, addr, []byte{0x02, 0x01, 0x06})

	p, ok := ParsePayload(data)
	require.True(t, ok)
	assert.Equal(t, packet.KindAdvertisement, p.Kind)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", p.Address.String())
	assert.Equal(t, int8(-55), p.RSSI)
	assert.Equal(t, 37, p.Metadata["channel"])
}

func TestParsePayloadUnknownType(t *testing.T) {
	addr := [6]byte{}
	data := buildPayload(0x42, 10, 0, addr, nil)
	p, ok := ParsePayload(data)
	require.True(t, ok)
	assert.Equal(t, packet.Kind("unknown_66"), p.Kind)
}

func TestParsePayloadTooShort(t *testing.T) {
	_, ok := ParsePayload([]byte{0x00, 0x01})
	assert.False(t, ok)
}

func TestMatchesVIDPID(t *testing.T) {
	assert.True(t, matchesVIDPID("1915", "520F"))
	assert.True(t, matchesVIDPID("1915", "520f"))
	assert.False(t, matchesVIDPID("FFFF", "FFFF"))
}

func TestMatchesKeyword(t *testing.T) {
	assert.True(t, matchesKeyword("Nordic BLE Sniffer"))
	assert.False(t, matchesKeyword("USB Serial Device"))
}
