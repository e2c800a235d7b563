package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoDevice is returned when no suitable input or output device exists
	ErrNoDevice = errors.New("no audio device available")
	// ErrDeviceConfig is returned when a device cannot be configured as requested
	ErrDeviceConfig = errors.New("invalid device configuration")
	// ErrUnknownBackend is returned by NewBackend for an unrecognised name
	ErrUnknownBackend = errors.New("unknown audio backend")
)

// DefaultDevice selects the system default device
const DefaultDevice = -1

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultInput    bool
	IsDefaultOutput   bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// String returns the config spelling of the latency mode
func (l LatencyMode) String() string {
	switch l {
	case LowLatency:
		return "low"
	case HighStability:
		return "high"
	default:
		return "unknown"
	}
}

// ParseLatency converts "low" or "high" into a LatencyMode
func ParseLatency(s string) (LatencyMode, error) {
	switch strings.ToLower(s) {
	case "low":
		return LowLatency, nil
	case "high", "":
		return HighStability, nil
	default:
		return HighStability, fmt.Errorf("invalid latency %q", s)
	}
}

// StreamConfig describes one hardware stream.
// SampleRate 0 and Channels 0 mean "use the device default".
type StreamConfig struct {
	DeviceID        int
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	Latency         LatencyMode
}

// DefaultStreamConfig returns a config for the default device with the
// device's native rate and channel count
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		DeviceID:        DefaultDevice,
		FramesPerBuffer: 512,
		Latency:         LowLatency,
	}
}

// InputCallback receives one buffer period of interleaved samples.
// It runs on the audio subsystem's real-time thread and must not block.
type InputCallback func(in []float32)

// OutputCallback fills one buffer period of interleaved samples.
// It runs on the audio subsystem's real-time thread and must not block.
type OutputCallback func(out []float32)

// Stream is an opened hardware stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
	// SampleRate is the negotiated rate in Hz
	SampleRate() int
	// Channels is the negotiated channel count
	Channels() int
}

// Backend opens hardware streams. One implementation exists per host audio API;
// the engine only depends on this interface.
type Backend interface {
	// Name identifies the backend in logs and config
	Name() string

	// ListDevices returns every device known to the backend
	ListDevices() ([]Device, error)

	// OpenInputStream opens a capture stream that calls cb every buffer period
	OpenInputStream(config StreamConfig, cb InputCallback) (Stream, error)

	// OpenOutputStream opens a playback stream that calls cb every buffer period
	OpenOutputStream(config StreamConfig, cb OutputCallback) (Stream, error)

	// Close releases the backend
	Close() error
}

// latencyFor picks between a device's low and high latency figures
func latencyFor(mode LatencyMode, low, high time.Duration) time.Duration {
	if mode == LowLatency {
		return low
	}
	return high
}

// NewBackend creates the backend registered under name
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "portaudio", "":
		backend, err := NewPortAudioBackend()
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "miniaudio", "malgo":
		backend, err := NewMiniaudioBackend()
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
