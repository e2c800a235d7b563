package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MiniaudioBackend implements Backend using miniaudio through malgo.
// It is the fallback for hosts where PortAudio is not installed.
type MiniaudioBackend struct {
	ctx     *malgo.AllocatedContext
	mu      sync.Mutex
	streams []*miniaudioStream
	closed  bool
}

// NewMiniaudioBackend initializes a miniaudio context
func NewMiniaudioBackend() (*MiniaudioBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio: %w", err)
	}

	return &MiniaudioBackend{ctx: ctx}, nil
}

// Name returns "miniaudio"
func (b *MiniaudioBackend) Name() string { return "miniaudio" }

// ListDevices returns capture devices followed by playback devices.
// IDs index that combined list.
func (b *MiniaudioBackend) ListDevices() ([]Device, error) {
	capture, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	playback, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}

	result := make([]Device, 0, len(capture)+len(playback))
	for _, info := range capture {
		result = append(result, Device{
			ID:               len(result),
			Name:             info.Name(),
			MaxInputChannels: 2,
			IsDefaultInput:   info.IsDefault != 0,
		})
	}
	for _, info := range playback {
		result = append(result, Device{
			ID:                len(result),
			Name:              info.Name(),
			MaxOutputChannels: 2,
			IsDefaultOutput:   info.IsDefault != 0,
		})
	}

	return result, nil
}

// deviceID finds the malgo ID for a combined-list index
func (b *MiniaudioBackend) deviceID(id int, kind malgo.DeviceType) (*malgo.DeviceID, error) {
	if id == DefaultDevice {
		return nil, nil
	}

	capture, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	if kind == malgo.Capture {
		if id < 0 || id >= len(capture) {
			return nil, fmt.Errorf("%w: invalid capture device ID %d", ErrDeviceConfig, id)
		}
		return &capture[id].ID, nil
	}

	playback, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}
	idx := id - len(capture)
	if idx < 0 || idx >= len(playback) {
		return nil, fmt.Errorf("%w: invalid playback device ID %d", ErrDeviceConfig, id)
	}
	return &playback[idx].ID, nil
}

// periodFrames doubles the period for HighStability
func periodFrames(config StreamConfig) uint32 {
	frames := config.FramesPerBuffer
	if frames <= 0 {
		frames = 512
	}
	if config.Latency == HighStability {
		frames *= 2
	}
	return uint32(frames)
}

// OpenInputStream opens a float32 capture device
func (b *MiniaudioBackend) OpenInputStream(config StreamConfig, cb InputCallback) (Stream, error) {
	id, err := b.deviceID(config.DeviceID, malgo.Capture)
	if err != nil {
		return nil, err
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 1
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	if id != nil {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}
	deviceConfig.SampleRate = uint32(max(config.SampleRate, 0))
	deviceConfig.PeriodSizeInFrames = periodFrames(config)

	s := &miniaudioStream{channels: channels}
	s.scratch = make([]float32, int(deviceConfig.PeriodSizeInFrames)*channels)

	onData := func(_, input []byte, frameCount uint32) {
		n := int(frameCount) * channels
		if len(s.scratch) < n {
			s.scratch = make([]float32, n)
		}
		buf := s.scratch[:n]
		for i := range buf {
			buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
		}
		cb(buf)
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	s.device = device
	s.sampleRate = int(device.SampleRate())

	b.track(s)
	return s, nil
}

// OpenOutputStream opens a float32 playback device
func (b *MiniaudioBackend) OpenOutputStream(config StreamConfig, cb OutputCallback) (Stream, error) {
	id, err := b.deviceID(config.DeviceID, malgo.Playback)
	if err != nil {
		return nil, err
	}

	channels := config.Channels
	if channels <= 0 {
		channels = 2
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	if id != nil {
		deviceConfig.Playback.DeviceID = id.Pointer()
	}
	deviceConfig.SampleRate = uint32(max(config.SampleRate, 0))
	deviceConfig.PeriodSizeInFrames = periodFrames(config)

	s := &miniaudioStream{channels: channels}
	s.scratch = make([]float32, int(deviceConfig.PeriodSizeInFrames)*channels)

	onData := func(output, _ []byte, frameCount uint32) {
		n := int(frameCount) * channels
		if len(s.scratch) < n {
			s.scratch = make([]float32, n)
		}
		buf := s.scratch[:n]
		cb(buf)
		for i, v := range buf {
			binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(v))
		}
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	s.device = device
	s.sampleRate = int(device.SampleRate())

	b.track(s)
	return s, nil
}

func (b *MiniaudioBackend) track(s *miniaudioStream) {
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
}

// Close uninitializes every device and frees the context
func (b *MiniaudioBackend) Close() error {
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

	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("failed to uninitialize miniaudio: %w", err)
	}
	b.ctx.Free()

	b.closed = true
	return nil
}

type miniaudioStream struct {
	mu         sync.Mutex
	device     *malgo.Device
	sampleRate int
	channels   int
	// scratch is only touched from the device callback
	scratch []float32
}

func (s *miniaudioStream) SampleRate() int { return s.sampleRate }
func (s *miniaudioStream) Channels() int   { return s.channels }

func (s *miniaudioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return fmt.Errorf("stream closed")
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

func (s *miniaudioStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	return nil
}

func (s *miniaudioStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}
	s.device.Uninit()
	s.device = nil
	return nil
}
