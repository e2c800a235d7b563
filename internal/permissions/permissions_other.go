//go:build !darwin

package permissions

import (
	"errors"
	"runtime"
)

// Other platforms gate the microphone through device access, not a per-app grant
func microphone() Status {
	return Authorized
}

func openMicrophoneSettings() error {
	return errors.New("no microphone settings page on " + runtime.GOOS)
}
