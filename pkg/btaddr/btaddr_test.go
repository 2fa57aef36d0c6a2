package btaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	a, err := Parse("AA:BB:CC:DD:EE:01", Public)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", a.String())
	assert.Equal(t, Public, a.Type())
}

func TestParseLowercase(t *testing.T) {
	a, err := Parse("aa:bb:cc:dd:ee:ff", StaticRandom)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", a.String())
	assert.Equal(t, "static-random", a.Type().String())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("AA:BB:CC", Public)
	assert.Error(t, err)

	_, err = Parse("ZZ:BB:CC:DD:EE:FF", Public)
	assert.Error(t, err)
}

func TestIsZero(t *testing.T) {
	var a Address
	assert.True(t, a.IsZero())

	b, _ := Parse("00:00:00:00:00:01", Public)
	assert.False(t, b.IsZero())
}
