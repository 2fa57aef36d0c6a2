package blesource

import (
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfile(t *testing.T) *ble.Profile {
	t.Helper()
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse("180A"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("2A00")},
					{UUID: ble.MustParse("2A29")},
				},
			},
			{
				UUID:            ble.MustParse("180F"),
				Characteristics: []*ble.Characteristic{{UUID: ble.MustParse("2A19")}},
			},
		},
	}
}

func TestClampRSSIBounds(t *testing.T) {
	assert.Equal(t, int8(127), clampRSSI(200))
	assert.Equal(t, int8(-128), clampRSSI(-200))
	assert.Equal(t, int8(-60), clampRSSI(-60))
}

func TestSecurityErrorPatternMatchesExpectedCauses(t *testing.T) {
	for _, msg := range []string{
		"gatt: authentication required",
		"insufficient encryption",
		"pairing required",
		"not bonded",
		"security level too low",
	} {
		assert.True(t, securityErrorPattern.MatchString(msg), msg)
	}
	assert.False(t, securityErrorPattern.MatchString("context deadline exceeded"))
}

func TestFindCharacteristicLocatesByUUID(t *testing.T) {
	s := &Source{conns: map[string]*connState{
		"AA:BB:CC:DD:EE:FF": {profile: newTestProfile(t)},
	}}

	st, ch, err := s.findCharacteristic("AA:BB:CC:DD:EE:FF", "2A19")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, ch.UUID.Equal(ble.MustParse("2A19")))
}

func TestFindCharacteristicNotConnected(t *testing.T) {
	s := &Source{conns: map[string]*connState{}}
	_, _, err := s.findCharacteristic("AA:BB:CC:DD:EE:FF", "2A19")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestFindCharacteristicNotFound(t *testing.T) {
	s := &Source{conns: map[string]*connState{
		"AA:BB:CC:DD:EE:FF": {profile: newTestProfile(t)},
	}}
	_, _, err := s.findCharacteristic("AA:BB:CC:DD:EE:FF", "FFFF")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceUUIDsSortedOutput(t *testing.T) {
	s := &Source{conns: map[string]*connState{
		"AA:BB:CC:DD:EE:FF": {profile: newTestProfile(t)},
	}}
	uuids, err := s.ServiceUUIDs("AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	require.Len(t, uuids, 2)
	assert.True(t, uuids[0] < uuids[1])
}

func TestServiceUUIDsUnknownAddress(t *testing.T) {
	s := &Source{conns: map[string]*connState{}}
	_, err := s.ServiceUUIDs("AA:BB:CC:DD:EE:FF")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestIsConnectedReflectsConnsMap(t *testing.T) {
	s := &Source{conns: map[string]*connState{
		"AA:BB:CC:DD:EE:FF": {profile: newTestProfile(t)},
	}}
	assert.True(t, s.IsConnected("AA:BB:CC:DD:EE:FF"))
	assert.False(t, s.IsConnected("11:22:33:44:55:66"))
}

func TestDisconnectUnknownAddressIsNoop(t *testing.T) {
	s := &Source{conns: map[string]*connState{}}
	assert.NoError(t, s.Disconnect("AA:BB:CC:DD:EE:FF"))
}

func TestPairWithoutSecurityManagerErrors(t *testing.T) {
	s := &Source{conns: map[string]*connState{}}
	ok, err := s.Pair("AA:BB:CC:DD:EE:FF", "just_works")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoSecurityManager)
}
