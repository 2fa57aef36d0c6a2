// Package hopper implements the periodic and activity-adaptive BLE channel
// hopping scheduler used to steer the serial sniffer across the 0..39
// channel space.
package hopper

import (
	"context"
	"sort"
	"sync"
	"time"
)

// AdvertisingChannels are the three BLE discovery channels.
var AdvertisingChannels = []int{37, 38, 39}

// DataChannels are the 37 BLE data channels.
var DataChannels = func() []int {
	ch := make([]int, 37)
	for i := range ch {
		ch[i] = i
	}
	return ch
}()

// Setter is implemented by a collector capable of switching channel.
type Setter interface {
	SetChannel(ch int) error
}

// Stats is the snapshot returned by Hopper.Stats, matching the original's
// get_hop_stats shape.
type Stats struct {
	Enabled          bool
	Channels         []int
	CurrentChannel   int
	HopIntervalMS    float64
	TotalHops        int
	DurationSeconds  float64
	HopsPerSecond    float64
	PacketsPerChannel map[int]int
}

// Hopper drives a Setter through a configured channel list on a fixed
// interval.
type Hopper struct {
	mu                sync.Mutex
	sniffer           Setter
	enabled           bool
	interval          time.Duration
	channels          []int
	index             int
	hops              int
	start             time.Time
	packetsPerChannel map[int]int
	cancel            context.CancelFunc
}

// New constructs a Hopper targeting the given collector.
func New(sniffer Setter) *Hopper {
	h := &Hopper{
		sniffer:           sniffer,
		channels:          append([]int(nil), AdvertisingChannels...),
		interval:          100 * time.Millisecond,
		packetsPerChannel: make(map[int]int),
	}
	return h
}

// StartHopping begins the hop loop; a nil channels slice defaults to the
// advertising channels. Calling it while already enabled is a no-op.
func (h *Hopper) StartHopping(ctx context.Context, channels []int, interval time.Duration) {
	h.mu.Lock()
	if h.enabled {
		h.mu.Unlock()
		return
	}
	if channels == nil {
		channels = AdvertisingChannels
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	h.channels = append([]int(nil), channels...)
	h.interval = interval
	h.enabled = true
	h.start = time.Now()
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	go h.loop(loopCtx)
}

// StopHopping cancels the running hop loop.
func (h *Hopper) StopHopping() {
	h.mu.Lock()
	h.enabled = false
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Hopper) loop(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			if len(h.channels) == 0 {
				h.mu.Unlock()
				continue
			}
			ch := h.channels[h.index]
			h.hops++
			h.index = (h.index + 1) % len(h.channels)
			h.mu.Unlock()

			_ = h.sniffer.SetChannel(ch)
		}
	}
}

// UpdatePacketStats records a packet observed on the given channel.
func (h *Hopper) UpdatePacketStats(channel int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packetsPerChannel[channel]++
}

// Stats returns the current hopping statistics snapshot.
func (h *Hopper) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var duration, hps float64
	if !h.start.IsZero() {
		duration = time.Since(h.start).Seconds()
		if duration > 0 {
			hps = float64(h.hops) / duration
		}
	}

	current := 0
	if len(h.channels) > 0 {
		current = h.channels[h.index]
	}

	counts := make(map[int]int, len(h.packetsPerChannel))
	for k, v := range h.packetsPerChannel {
		counts[k] = v
	}

	return Stats{
		Enabled:           h.enabled,
		Channels:          append([]int(nil), h.channels...),
		CurrentChannel:    current,
		HopIntervalMS:     float64(h.interval) / float64(time.Millisecond),
		TotalHops:         h.hops,
		DurationSeconds:   duration,
		HopsPerSecond:     hps,
		PacketsPerChannel: counts,
	}
}

// SetAdvertisingMode restricts hopping to {37,38,39}.
func (h *Hopper) SetAdvertisingMode() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append([]int(nil), AdvertisingChannels...)
}

// SetDataMode restricts hopping to the 0..36 data channels.
func (h *Hopper) SetDataMode() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = append([]int(nil), DataChannels...)
}

// SetAllChannelsMode hops across the full 0..39 channel space.
func (h *Hopper) SetAllChannelsMode() {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := make([]int, 40)
	for i := range all {
		all[i] = i
	}
	h.channels = all
}

// SetCustomChannels validates channels to 0..39 and silently drops the rest.
func (h *Hopper) SetCustomChannels(channels []int) {
	valid := make([]int, 0, len(channels))
	for _, c := range channels {
		if c >= 0 && c <= 39 {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels = valid
}

// SmartHopper adds activity-adaptive reranking on top of Hopper.
type SmartHopper struct {
	*Hopper

	mu               sync.Mutex
	activity         map[int]int
	adaptive         bool
	activityWindow   time.Duration
	lastActivityTime time.Time
}

// NewSmart constructs a SmartHopper targeting the given collector.
func NewSmart(sniffer Setter) *SmartHopper {
	return &SmartHopper{
		Hopper:           New(sniffer),
		activity:         make(map[int]int),
		activityWindow:   10 * time.Second,
		lastActivityTime: time.Now(),
	}
}

// StartAdaptiveHopping begins hopping with the adaptive reranking enabled.
func (s *SmartHopper) StartAdaptiveHopping(ctx context.Context, baseInterval time.Duration) {
	s.mu.Lock()
	s.adaptive = true
	s.lastActivityTime = time.Now()
	s.mu.Unlock()
	s.StartHopping(ctx, nil, baseInterval)
}

// UpdateChannelActivity records a packet on the given channel and, every
// activityWindow, rebalances the hop list toward the busiest channels.
func (s *SmartHopper) UpdateChannelActivity(channel int) {
	s.mu.Lock()
	s.activity[channel]++
	s.mu.Unlock()
	s.Hopper.UpdatePacketStats(channel)

	s.mu.Lock()
	elapsed := time.Since(s.lastActivityTime)
	adaptive := s.adaptive
	s.mu.Unlock()

	if adaptive && elapsed > s.activityWindow {
		s.adjustChannels()
	}
}

func (s *SmartHopper) adjustChannels() {
	s.mu.Lock()
	if !s.adaptive {
		s.mu.Unlock()
		return
	}
	type kv struct {
		ch    int
		count int
	}
	pairs := make([]kv, 0, len(s.activity))
	for ch, count := range s.activity {
		pairs = append(pairs, kv{ch, count})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].count > pairs[j].count })

	active := make([]int, 0, 10)
	for i := 0; i < len(pairs) && i < 10; i++ {
		if pairs[i].count > 0 {
			active = append(active, pairs[i].ch)
		}
	}
	seen := map[int]bool{}
	for _, c := range active {
		seen[c] = true
	}
	for _, adv := range AdvertisingChannels {
		if !seen[adv] {
			active = append(active, adv)
			seen[adv] = true
		}
	}
	sort.Ints(active)

	s.activity = make(map[int]int)
	s.lastActivityTime = time.Now()
	s.mu.Unlock()

	if len(active) > 0 {
		s.Hopper.mu.Lock()
		s.Hopper.channels = active
		if s.Hopper.index >= len(active) {
			s.Hopper.index = 0
		}
		s.Hopper.mu.Unlock()
	}
}
