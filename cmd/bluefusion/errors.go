package main

import "errors"

// Command-level errors.
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly
	// lost during an operation, as opposed to never having connected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError returns the full message of an error chain for display
// on the terminal; internal wrap prefixes ("firmware: step ...") are kept
// as they are, since they are already descriptive enough on their own.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
