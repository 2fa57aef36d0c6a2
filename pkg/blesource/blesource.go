// Package blesource adapts the host's BLE stack (via go-ble/ble) to the
// collector contract used by the rest of this module: advertisement and
// connection-lifecycle events delivered as packet.Packet, with a
// security-gated retry around operations that fail for pairing/bonding
// reasons.
package blesource

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/bluefusion/pkg/btaddr"
	"github.com/srg/bluefusion/pkg/packet"
	"github.com/srg/bluefusion/pkg/security"
)

// DeviceFactory creates the platform ble.Device. Overridable in tests.
//
//nolint:revive // kept as a package var for test mocking, matching the
// collector-factory pattern used throughout this module's device layer.
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

var securityErrorPattern = regexp.MustCompile(`(?i)auth|encrypt|pair|bond|security`)

// connState holds the live client and discovered profile for one
// connected peer.
type connState struct {
	client  ble.Client
	profile *ble.Profile
}

// Source is the BLE capability-set adapter: scanning, connection
// management, GATT operations and pairing, wired to a single shared
// ble.Device.
type Source struct {
	mu             sync.Mutex
	dev            ble.Device
	conns          map[string]*connState
	security       *security.Manager
	logger         *logrus.Logger
	connectTimeout time.Duration
}

// Options configures a Source.
type Options struct {
	SecurityManager *security.Manager
	Logger          *logrus.Logger
	ConnectTimeout  time.Duration
}

// New opens the platform BLE device and returns a ready Source.
func New(opts Options) (*Source, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("open ble device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Source{
		dev:            dev,
		conns:          map[string]*connState{},
		security:       opts.SecurityManager,
		logger:         logger,
		connectTimeout: timeout,
	}, nil
}

// Scan runs BLE discovery until ctx is cancelled, emitting one
// packet.Packet per advertisement seen. allowDuplicates controls
// whether repeat advertisements from the same peer are delivered. An
// advertisement that arrives while out is full is dropped.
func (s *Source) Scan(ctx context.Context, allowDuplicates bool, out chan<- packet.Packet) error {
	handler := func(adv ble.Advertisement) {
		addr, err := btaddr.Parse(adv.Addr().String(), btaddr.Public)
		if err != nil {
			return
		}
		p := packet.New(packet.SourceOSStack, addr, clampRSSI(adv.RSSI()), packet.KindAdvertisement, adv.ManufacturerData())
		p.Metadata["local_name"] = adv.LocalName()
		p.Metadata["connectable"] = adv.Connectable()
		select {
		case out <- p:
		default:
		}
	}

	err := s.dev.Scan(ctx, allowDuplicates, handler)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func clampRSSI(v int) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

// Connect dials address, discovers its GATT profile and retries once
// after pairing if the failure looks security-related.
func (s *Source) Connect(ctx context.Context, address string) error {
	if err := s.connectOnce(ctx, address); err != nil {
		if s.security != nil && securityErrorPattern.MatchString(err.Error()) {
			if _, pairErr := s.security.RequestPairing(address, security.JustWorks); pairErr == nil {
				return s.connectOnce(ctx, address)
			}
		}
		return err
	}
	return nil
}

func (s *Source) connectOnce(ctx context.Context, address string) error {
	connCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return fmt.Errorf("discover profile for %s: %w", address, err)
	}

	s.mu.Lock()
	s.conns[address] = &connState{client: client, profile: profile}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"address": address, "services": len(profile.Services)}).Info("ble device connected")
	return nil
}

// Disconnect tears down address's connection, if any.
func (s *Source) Disconnect(address string) error {
	s.mu.Lock()
	st, ok := s.conns[address]
	delete(s.conns, address)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return st.client.CancelConnection()
}

func (s *Source) findCharacteristic(address, charUUID string) (*connState, *ble.Characteristic, error) {
	s.mu.Lock()
	st, ok := s.conns[address]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", address, ErrNotConnected)
	}

	want := ble.MustParse(charUUID)
	for _, svc := range st.profile.Services {
		for _, ch := range svc.Characteristics {
			if ch.UUID.Equal(want) {
				return st, ch, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("characteristic %s on %s: %w", charUUID, address, ErrNotFound)
}

// ReadCharacteristic reads charUUID's current value from address,
// retrying once after pairing on a security-shaped failure.
func (s *Source) ReadCharacteristic(_ context.Context, address, charUUID string) ([]byte, error) {
	st, ch, err := s.findCharacteristic(address, charUUID)
	if err != nil {
		return nil, err
	}
	data, err := st.client.ReadCharacteristic(ch)
	if err != nil && s.security != nil && securityErrorPattern.MatchString(err.Error()) {
		if _, pairErr := s.security.RequestPairing(address, security.JustWorks); pairErr == nil {
			return st.client.ReadCharacteristic(ch)
		}
	}
	return data, err
}

// WriteCharacteristic writes value to charUUID on address.
func (s *Source) WriteCharacteristic(address, charUUID string, value []byte, noResponse bool) error {
	st, ch, err := s.findCharacteristic(address, charUUID)
	if err != nil {
		return err
	}
	err = st.client.WriteCharacteristic(ch, value, noResponse)
	if err != nil && s.security != nil && securityErrorPattern.MatchString(err.Error()) {
		if _, pairErr := s.security.RequestPairing(address, security.JustWorks); pairErr == nil {
			return st.client.WriteCharacteristic(ch, value, noResponse)
		}
	}
	return err
}

// Subscribe enables notifications for charUUID on address, delivering
// each update to handler.
func (s *Source) Subscribe(address, charUUID string, handler func([]byte)) error {
	st, ch, err := s.findCharacteristic(address, charUUID)
	if err != nil {
		return err
	}
	return st.client.Subscribe(ch, false, handler)
}

// Unsubscribe disables notifications for charUUID on address.
func (s *Source) Unsubscribe(address, charUUID string) error {
	st, ch, err := s.findCharacteristic(address, charUUID)
	if err != nil {
		return err
	}
	return st.client.Unsubscribe(ch, false)
}

// Pair runs explicit pairing against address using the configured
// security manager.
func (s *Source) Pair(address string, method security.PairingMethod) (bool, error) {
	if s.security == nil {
		return false, ErrNoSecurityManager
	}
	return s.security.RequestPairing(address, method)
}

// ServiceUUIDs returns the sorted set of discovered service UUIDs for a
// connected peer, used by callers that want a quick profile summary
// without walking the full ble.Profile.
func (s *Source) ServiceUUIDs(address string) ([]string, error) {
	s.mu.Lock()
	st, ok := s.conns[address]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, ErrNotConnected)
	}
	uuids := make([]string, 0, len(st.profile.Services))
	for _, svc := range st.profile.Services {
		uuids = append(uuids, svc.UUID.String())
	}
	sort.Strings(uuids)
	return uuids, nil
}

// IsConnected reports whether address currently has a live connection.
func (s *Source) IsConnected(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[address]
	return ok
}
