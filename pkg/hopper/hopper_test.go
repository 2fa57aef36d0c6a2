package hopper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSetter struct {
	mu   sync.Mutex
	seen []int
}

func (f *fakeSetter) SetChannel(ch int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ch)
	return nil
}

func TestDefaultChannelsAreAdvertising(t *testing.T) {
	h := New(&fakeSetter{})
	stats := h.Stats()
	assert.Equal(t, AdvertisingChannels, stats.Channels)
}

func TestSetCustomChannelsFiltersInvalid(t *testing.T) {
	h := New(&fakeSetter{})
	h.SetCustomChannels([]int{5, 50, -1, 10})
	stats := h.Stats()
	assert.ElementsMatch(t, []int{5, 10}, stats.Channels)
}

func TestSetCustomChannelsAllInvalidKeepsPrevious(t *testing.T) {
	h := New(&fakeSetter{})
	h.SetCustomChannels([]int{100, -5})
	stats := h.Stats()
	assert.Equal(t, AdvertisingChannels, stats.Channels)
}

func TestStartHoppingAdvancesIndex(t *testing.T) {
	fs := &fakeSetter{}
	h := New(fs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.StartHopping(ctx, []int{1, 2, 3}, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	h.StopHopping()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.NotEmpty(t, fs.seen)
	stats := h.Stats()
	assert.True(t, stats.TotalHops > 0)
}

func TestSmartHopperAdjustChannelsKeepsAdvertising(t *testing.T) {
	s := NewSmart(&fakeSetter{})
	s.activityWindow = 0 // force immediate rerank
	s.adaptive = true
	s.lastActivityTime = time.Now().Add(-time.Second)

	s.UpdateChannelActivity(5)
	stats := s.Stats()
	assert.Contains(t, stats.Channels, 37)
	assert.Contains(t, stats.Channels, 38)
	assert.Contains(t, stats.Channels, 39)
	assert.Contains(t, stats.Channels, 5)
}
