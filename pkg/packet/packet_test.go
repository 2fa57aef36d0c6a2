package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/bluefusion/pkg/btaddr"
)

func TestOversized(t *testing.T) {
	addr, _ := btaddr.Parse("AA:BB:CC:DD:EE:01", btaddr.Public)
	p := New(SourceSniffer, addr, -55, KindData, make([]byte, 260))
	assert.True(t, p.Oversized())
	assert.Error(t, p.Validate())
}

func TestValidateRSSI(t *testing.T) {
	addr, _ := btaddr.Parse("AA:BB:CC:DD:EE:01", btaddr.Public)
	p := New(SourceOSStack, addr, 40, KindAdvertisement, nil)
	assert.Error(t, p.Validate())
}

func TestIDStable(t *testing.T) {
	addr, _ := btaddr.Parse("AA:BB:CC:DD:EE:01", btaddr.Public)
	p := New(SourceOSStack, addr, -50, KindAdvertisement, nil)
	assert.Contains(t, p.ID(), "AA:BB:CC:DD:EE:01_")
}
