package notification

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnsupported is returned when the platform has no notification command
var ErrUnsupported = errors.New("desktop notifications not supported on this platform")

// Type represents the urgency of a notification
type Type string

const (
	// TypeInfo is an informational notification
	TypeInfo Type = "info"
	// TypeWarning is a warning notification
	TypeWarning Type = "warning"
	// TypeError is an error notification
	TypeError Type = "error"
)

// Notification is one desktop notification
type Notification struct {
	Title   string
	Message string
	Type    Type
}

// Manager sends desktop notifications through the platform's command line tool
type Manager struct {
	appName string
	goos    string
	run     func(name string, args ...string) error
}

// New creates a notification manager for the current platform
func New(appName string) *Manager {
	return &Manager{
		appName: appName,
		goos:    runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// command builds the notification command for goos
func command(goos string, n *Notification) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s",
			appleScriptString(n.Message), appleScriptString(n.Title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd":
		urgency := "normal"
		if n.Type == TypeError {
			urgency = "critical"
		}
		return "notify-send", []string{"--urgency=" + urgency, n.Title, n.Message}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}

// Send sends a notification to the user
func (m *Manager) Send(n *Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	name, args, err := command(m.goos, n)
	if err != nil {
		return err
	}

	if err := m.run(name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (m *Manager) send(t Type, message string) error {
	return m.Send(&Notification{Title: m.appName, Message: message, Type: t})
}

// RecordingStarted reports a take starting on a track
func (m *Manager) RecordingStarted(trackIndex int) error {
	return m.send(TypeInfo, fmt.Sprintf("Recording track %d", trackIndex+1))
}

// RecordingStopped reports the end of the current take and its length
func (m *Manager) RecordingStopped(durationMs uint64) error {
	return m.send(TypeInfo, fmt.Sprintf("Recording stopped (%.1f s)", float64(durationMs)/1000))
}

// RecordingFailed reports a take that could not start or stop
func (m *Manager) RecordingFailed(reason string) error {
	message := "Recording failed"
	if reason != "" {
		message += ": " + reason
	}
	return m.send(TypeError, message)
}

// AudioUnavailable reports that no audio hardware could be opened
func (m *Manager) AudioUnavailable() error {
	return m.send(TypeWarning, "No audio device available. Recording is disabled.")
}

// MicrophonePermissionDenied asks the user to allow microphone access
func (m *Manager) MicrophonePermissionDenied() error {
	return m.send(TypeError, "Microphone access denied. Allow it in system settings.")
}
