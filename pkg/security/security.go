// Package security implements the persistent bond store, pairing
// orchestration, BLE AES-CCM decryption helper and XOR-cipher analysis
// used to gate and decode encrypted traffic.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/srg/bluefusion/pkg/pattern"
)

// Level is the BLE link security level.
type Level int

const (
	NoSecurity Level = iota
	UnauthenticatedEncryption
	AuthenticatedEncryption
	AuthenticatedLESecureConnections
)

// PairingMethod is the association model used to establish a bond.
type PairingMethod string

const (
	JustWorks         PairingMethod = "just_works"
	PasskeyEntry      PairingMethod = "passkey_entry"
	NumericComparison PairingMethod = "numeric_comparison"
	OutOfBand         PairingMethod = "out_of_band"
)

// Requirements gates an operation on a minimum security level.
type Requirements struct {
	MinSecurityLevel Level
}

// BondInfo holds per-peer keys (never persisted) plus the redacted fields
// that do leave the process.
type BondInfo struct {
	Address       string
	LTK           []byte
	IRK           []byte
	CSRK          []byte
	SecurityLevel Level
	Authenticated bool
	XORKey        []byte
}

type persistedBond struct {
	SecurityLevel int  `json:"security_level"`
	Authenticated bool `json:"authenticated"`
}

// PasskeyCallback prompts the operator for a passkey and returns the
// 6-digit string entered.
type PasskeyCallback func(address, prompt string) (string, error)

// NumericComparisonCallback prompts the operator to confirm a displayed
// code and returns whether they accepted.
type NumericComparisonCallback func(address, code string) (bool, error)

// Manager owns the bond store and drives pairing.
type Manager struct {
	storagePath string

	mu    sync.Mutex
	bonds map[string]*BondInfo

	passkeyCB           PasskeyCallback
	numericComparisonCB NumericComparisonCallback
}

// DefaultBondPath returns "<home>/.bluefusion/bonds.json".
func DefaultBondPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bluefusion", "bonds.json")
}

// NewManager constructs a Manager and best-effort loads any existing bond
// file; a corrupt file is treated as an empty store.
func NewManager(storagePath string) *Manager {
	m := &Manager{storagePath: storagePath, bonds: map[string]*BondInfo{}}
	m.loadBonds()
	return m
}

func (m *Manager) loadBonds() {
	data, err := os.ReadFile(m.storagePath)
	if err != nil {
		return
	}
	var raw map[string]persistedBond
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	for addr, b := range raw {
		m.bonds[addr] = &BondInfo{
			Address:       addr,
			SecurityLevel: Level(b.SecurityLevel),
			Authenticated: b.Authenticated,
		}
	}
}

// saveBonds persists only security_level and authenticated per peer,
// atomically replacing the store file. Keys never leave memory.
func (m *Manager) saveBonds() error {
	redacted := make(map[string]persistedBond, len(m.bonds))
	for addr, b := range m.bonds {
		redacted[addr] = persistedBond{
			SecurityLevel: int(b.SecurityLevel),
			Authenticated: b.Authenticated,
		}
	}
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.storagePath), 0o700); err != nil {
		return err
	}
	tmp := m.storagePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.storagePath)
}

// RegisterPasskeyCallback installs the passkey-entry prompt handler.
func (m *Manager) RegisterPasskeyCallback(cb PasskeyCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passkeyCB = cb
}

// RegisterNumericComparisonCallback installs the numeric-comparison
// confirmation handler.
func (m *Manager) RegisterNumericComparisonCallback(cb NumericComparisonCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numericComparisonCB = cb
}

// RequestPairing dispatches pairing by method; any other method (including
// OutOfBand) returns an error. The passkey-entry policy default is chosen
// by HandleSecurityRequest.
func (m *Manager) RequestPairing(address string, method PairingMethod) (bool, error) {
	switch method {
	case PasskeyEntry:
		return m.performPasskeyPairing(address)
	case NumericComparison:
		m.mu.Lock()
		cb := m.numericComparisonCB
		m.mu.Unlock()
		if cb == nil {
			return false, fmt.Errorf("security: no numeric comparison callback registered")
		}
		ok, err := cb(address, "000000")
		if err != nil || !ok {
			return false, err
		}
		m.setBond(address, AuthenticatedEncryption, true)
		return true, nil
	case JustWorks:
		return true, nil
	default:
		return false, fmt.Errorf("security: unsupported pairing method %q", method)
	}
}

func (m *Manager) performPasskeyPairing(address string) (bool, error) {
	m.mu.Lock()
	cb := m.passkeyCB
	m.mu.Unlock()
	if cb == nil {
		return false, fmt.Errorf("security: no passkey callback registered")
	}
	if _, err := cb(address, "Enter passkey"); err != nil {
		return false, err
	}
	m.setBond(address, AuthenticatedEncryption, true)
	return true, nil
}

func (m *Manager) setBond(address string, level Level, authenticated bool) {
	m.mu.Lock()
	b, ok := m.bonds[address]
	if !ok {
		b = &BondInfo{Address: address}
		m.bonds[address] = b
	}
	b.SecurityLevel = level
	b.Authenticated = authenticated
	m.mu.Unlock()
	_ = m.saveBonds()
}

// CheckSecurityRequirements reports whether the stored bond (if any) meets
// req.MinSecurityLevel. A missing bond only satisfies NoSecurity.
func (m *Manager) CheckSecurityRequirements(address string, req Requirements) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[address]
	if !ok {
		return req.MinSecurityLevel == NoSecurity
	}
	return b.SecurityLevel >= req.MinSecurityLevel
}

// GetBondInfo returns the bond for address, if any.
func (m *Manager) GetBondInfo(address string) (*BondInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[address]
	return b, ok
}

// IsBonded reports whether a bond record exists for address.
func (m *Manager) IsBonded(address string) bool {
	_, ok := m.GetBondInfo(address)
	return ok
}

// BondCount returns the number of bonds currently in the store.
func (m *Manager) BondCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bonds)
}

// RemoveBond deletes and persists the removal of the bond for address.
func (m *Manager) RemoveBond(address string) error {
	m.mu.Lock()
	delete(m.bonds, address)
	m.mu.Unlock()
	return m.saveBonds()
}

// HandleSecurityRequest pairs address if its current level is below req.
func (m *Manager) HandleSecurityRequest(address string, req Requirements) (bool, error) {
	if m.CheckSecurityRequirements(address, req) {
		return true, nil
	}
	return m.RequestPairing(address, m.determinePairingMethod(address))
}

func (m *Manager) determinePairingMethod(string) PairingMethod {
	return PasskeyEntry
}

// SetXORKey records a recovered or known XOR key for address.
func (m *Manager) SetXORKey(address string, key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[address]
	if !ok {
		b = &BondInfo{Address: address}
		m.bonds[address] = b
	}
	b.XORKey = key
}

// BuildNonce constructs the BLE AES-CCM nonce: iv[8] || counter[5 LE],
// with the counter's top bit encoding direction (master->slave = 1).
func BuildNonce(iv [8]byte, counter uint64, masterToSlave bool) [13]byte {
	var nonce [13]byte
	copy(nonce[:8], iv[:])
	for i := 0; i < 5; i++ {
		nonce[8+i] = byte(counter >> (8 * i))
	}
	if masterToSlave {
		nonce[12] |= 0x80
	} else {
		nonce[12] &^= 0x80
	}
	return nonce
}

// DecryptCCM decrypts ciphertext||tag (BLE uses a 4-byte tag) under key
// (16 bytes), nonce (13 bytes) and aad = header||length.
func DecryptCCM(key []byte, nonce [13]byte, aad, ciphertextAndTag []byte, tagLen int) ([]byte, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("security: AES-CCM key must be 16 bytes, got %d", len(key))
	}
	validTagLens := map[int]bool{4: true, 6: true, 8: true, 10: true, 12: true, 14: true, 16: true}
	if !validTagLens[tagLen] {
		return nil, fmt.Errorf("security: invalid CCM tag length %d", tagLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	ccm, err := cipher.NewCCMWithTagSize(block, tagLen)
	if err != nil {
		return nil, err
	}
	return ccm.Open(nil, nonce[:], ciphertextAndTag, aad)
}

// DecryptXOR decrypts data under a repeating-key XOR cipher.
func DecryptXOR(data, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// RecoverXORKey performs known-plaintext key recovery: XORs ciphertext
// against the known plaintext at offset to derive a candidate key of each
// length in {1,2,4,8,16,32}, then validates it by decrypting the full
// buffer and checking the known plaintext reappears.
func RecoverXORKey(ciphertext, knownPlaintext []byte, offset int) ([]byte, bool) {
	for _, keyLen := range []int{1, 2, 4, 8, 16, 32} {
		if offset+len(knownPlaintext) > len(ciphertext) || keyLen > len(knownPlaintext) {
			continue
		}
		candidate := make([]byte, keyLen)
		for i := 0; i < keyLen; i++ {
			candidate[i] = ciphertext[offset+i] ^ knownPlaintext[i%len(knownPlaintext)]
		}
		decrypted := DecryptXOR(ciphertext, candidate)
		if containsSubslice(decrypted, knownPlaintext) {
			return candidate, true
		}
	}
	return nil, false
}

func containsSubslice(haystack, needle []byte) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// EncryptedTrafficAnalysis is the result of AnalyzeEncryptedTraffic.
type EncryptedTrafficAnalysis struct {
	HeaderConsistency bool
	HighEntropy       bool
	LikelyAESCCM      bool
	Recommendations   []string
}

// AnalyzeEncryptedTraffic inspects a batch of packets for AES-CCM
// indicators: consistent low 2 bits of byte 0 across >80% of packets, and
// average payload[7:] entropy (raw Shannon bits, not normalized) above 7.0.
func AnalyzeEncryptedTraffic(packets [][]byte) EncryptedTrafficAnalysis {
	analysis := analyzeForAESCCM(packets)
	if analysis.LikelyAESCCM {
		analysis.Recommendations = append(analysis.Recommendations,
			"Traffic pattern is consistent with AES-CCM encryption; bonding required to decrypt")
	} else if analysis.HighEntropy {
		analysis.Recommendations = append(analysis.Recommendations,
			"High entropy payloads detected but header pattern is inconclusive")
	} else {
		analysis.Recommendations = append(analysis.Recommendations,
			"No strong indicators of link-layer encryption found")
	}
	return analysis
}

func analyzeForAESCCM(packets [][]byte) EncryptedTrafficAnalysis {
	if len(packets) == 0 {
		return EncryptedTrafficAnalysis{}
	}

	consistent := 0
	var entropySum float64
	entropySamples := 0
	for _, pkt := range packets {
		if len(pkt) > 0 {
			lowBits := pkt[0] & 0x03
			if lowBits == 1 || lowBits == 2 || lowBits == 3 {
				consistent++
			}
		}
		if len(pkt) > 7 {
			entropySum += shannonEntropyRaw(pkt[7:])
			entropySamples++
		}
	}

	headerConsistency := float64(consistent)/float64(len(packets)) > 0.8
	highEntropy := entropySamples > 0 && (entropySum/float64(entropySamples)) > 7.0

	return EncryptedTrafficAnalysis{
		HeaderConsistency: headerConsistency,
		HighEntropy:       highEntropy,
		LikelyAESCCM:      headerConsistency && highEntropy,
	}
}

// shannonEntropyRaw returns the unnormalized Shannon entropy (bits/byte),
// distinct from pattern.Entropy's [0,1]-normalized variant.
func shannonEntropyRaw(data []byte) float64 {
	return pattern.Entropy(data) * 8.0
}
