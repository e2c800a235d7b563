package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend using PortAudio
type PortAudioBackend struct {
	mu      sync.Mutex
	streams []*portAudioStream
	closed  bool
}

// NewPortAudioBackend initializes PortAudio and returns a backend
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &PortAudioBackend{}, nil
}

// Name returns "portaudio"
func (b *PortAudioBackend) Name() string { return "portaudio" }

// ListDevices returns a list of available audio devices
func (b *PortAudioBackend) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	// A missing default is not fatal; nothing is marked as default then.
	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	result := make([]Device, 0, len(devices))
	for i, dev := range devices {
		result = append(result, Device{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefaultInput:    defaultInput != nil && dev.Name == defaultInput.Name,
			IsDefaultOutput:   defaultOutput != nil && dev.Name == defaultOutput.Name,
		})
	}

	return result, nil
}

// resolveDevice maps a config device ID onto a PortAudio device
func resolveDevice(id int, input bool) (*portaudio.DeviceInfo, error) {
	if id == DefaultDevice {
		var (
			dev *portaudio.DeviceInfo
			err error
		)
		if input {
			dev, err = portaudio.DefaultInputDevice()
		} else {
			dev, err = portaudio.DefaultOutputDevice()
		}
		if err != nil || dev == nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if id < 0 || id >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID %d", ErrDeviceConfig, id)
	}
	return devices[id], nil
}

// OpenInputStream opens a capture stream on the configured device
func (b *PortAudioBackend) OpenInputStream(config StreamConfig, cb InputCallback) (Stream, error) {
	device, err := resolveDevice(config.DeviceID, true)
	if err != nil {
		return nil, err
	}

	if device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("%w: device '%s' has no input channels", ErrDeviceConfig, device.Name)
	}

	channels := config.Channels
	if channels <= 0 {
		channels = min(device.MaxInputChannels, 2)
	}
	rate := float64(config.SampleRate)
	if rate <= 0 {
		rate = device.DefaultSampleRate
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latencyFor(config.Latency, device.DefaultLowInputLatency, device.DefaultHighInputLatency),
		},
		SampleRate:      rate,
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		cb(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return b.track(stream, int(rate), channels), nil
}

// OpenOutputStream opens a playback stream on the configured device
func (b *PortAudioBackend) OpenOutputStream(config StreamConfig, cb OutputCallback) (Stream, error) {
	device, err := resolveDevice(config.DeviceID, false)
	if err != nil {
		return nil, err
	}

	if device.MaxOutputChannels <= 0 {
		return nil, fmt.Errorf("%w: device '%s' has no output channels", ErrDeviceConfig, device.Name)
	}

	channels := config.Channels
	if channels <= 0 {
		channels = min(device.MaxOutputChannels, 2)
	}
	rate := float64(config.SampleRate)
	if rate <= 0 {
		rate = device.DefaultSampleRate
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latencyFor(config.Latency, device.DefaultLowOutputLatency, device.DefaultHighOutputLatency),
		},
		SampleRate:      rate,
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		cb(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return b.track(stream, int(rate), channels), nil
}

func (b *PortAudioBackend) track(stream *portaudio.Stream, rate, channels int) *portAudioStream {
	s := &portAudioStream{stream: stream, sampleRate: rate, channels: channels}

	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()

	return s
}

// Close closes any stream still open and terminates PortAudio
func (b *PortAudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	for _, s := range b.streams {
		if err := s.Close(); err != nil {
			return err
		}
	}
	b.streams = nil

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}

	b.closed = true
	return nil
}

type portAudioStream struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	sampleRate int
	channels   int
	running    bool
}

func (s *portAudioStream) SampleRate() int { return s.sampleRate }
func (s *portAudioStream) Channels() int   { return s.channels }

func (s *portAudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return fmt.Errorf("stream closed")
	}
	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	s.running = true
	return nil
}

func (s *portAudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || !s.running {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	s.running = false
	return nil
}

func (s *portAudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	if s.running {
		if err := s.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop stream: %w", err)
		}
		s.running = false
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	s.stream = nil
	return nil
}
