package blesource

import "errors"

var (
	// ErrNotConnected is returned by operations targeting an address with
	// no live connection.
	ErrNotConnected = errors.New("blesource: address not connected")
	// ErrNotFound is returned when a requested characteristic UUID isn't
	// present in the peer's discovered profile.
	ErrNotFound = errors.New("blesource: characteristic not found")
	// ErrNoSecurityManager is returned by Pair when the Source was built
	// without a security.Manager.
	ErrNoSecurityManager = errors.New("blesource: no security manager configured")
)
