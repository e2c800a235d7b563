package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yok-tottii/muze-audio/internal/audio"
	"github.com/yok-tottii/muze-audio/internal/codec"
	"github.com/yok-tottii/muze-audio/internal/logger"
	"github.com/yok-tottii/muze-audio/internal/recording"
)

var (
	// ErrDevice means no usable input or output hardware was found
	ErrDevice = errors.New("audio device error")
	// ErrStream means a hardware stream could not be built or started
	ErrStream = errors.New("audio stream error")
	// ErrUnavailable is returned by a disabled engine for recording commands
	ErrUnavailable = errors.New("audio engine unavailable")
	// ErrQueueFull is returned when a command is dropped under backpressure
	ErrQueueFull = errors.New("command queue full")
	// ErrClosed is returned after Close or Shutdown
	ErrClosed = errors.New("audio engine closed")
)

// Logger is the subset of *logger.Logger the engine writes to
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// CaptureMode selects how input samples reach the recorder
type CaptureMode int

const (
	// CaptureRing queues samples in a lock-free ring drained by the
	// command goroutine. Nothing is lost unless the ring overflows.
	CaptureRing CaptureMode = iota
	// CaptureDirect writes from the input callback with a try-lock and
	// drops the whole buffer on contention.
	CaptureDirect
)

// String returns the config spelling of the mode
func (m CaptureMode) String() string {
	switch m {
	case CaptureRing:
		return "ring"
	case CaptureDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// ParseCaptureMode converts "ring" or "direct" into a CaptureMode
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch s {
	case "ring", "":
		return CaptureRing, nil
	case "direct":
		return CaptureDirect, nil
	default:
		return CaptureRing, fmt.Errorf("invalid capture mode %q", s)
	}
}

// Config holds engine configuration
type Config struct {
	InputDeviceID    int
	OutputDeviceID   int
	FramesPerBuffer  int
	Latency          audio.LatencyMode
	CommandQueueSize int
	EventQueueSize   int
	Capture          CaptureMode
	// RingSeconds sizes the capture ring in seconds of input
	RingSeconds int
	// DrainInterval is how often the ring is emptied into the recorder
	DrainInterval time.Duration
	// LevelInterval is how often InputLevel events are sent; 0 disables them
	LevelInterval time.Duration
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		InputDeviceID:    audio.DefaultDevice,
		OutputDeviceID:   audio.DefaultDevice,
		FramesPerBuffer:  512,
		Latency:          audio.LowLatency,
		CommandQueueSize: 64,
		EventQueueSize:   64,
		Capture:          CaptureRing,
		RingSeconds:      2,
		DrainInterval:    10 * time.Millisecond,
		LevelInterval:    50 * time.Millisecond,
	}
}

// disabledSampleRate keeps ms conversions meaningful without hardware
const disabledSampleRate = 48000

// Engine owns the input and output streams and the goroutine that
// processes commands. The zero value is not usable; see New and Disabled.
type Engine struct {
	state     *SharedState
	log       Logger
	available bool

	input         audio.Stream
	output        audio.Stream
	inputChannels int
	outputChans   int

	// owned by the command goroutine
	recorder *recording.Recorder
	drainBuf []float32

	capture CaptureMode
	ring    *sampleRing
	// owned by the input callback
	scratch []float32
	dropped atomic.Uint64

	commands chan Command
	events   chan Event

	subMu      sync.Mutex
	subs       []chan Event
	subsClosed bool

	sendMu sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup

	drainInterval time.Duration
	levelInterval time.Duration
	closeOnce     sync.Once
}

// New opens the output and input streams on backend, starts them and
// launches the command goroutine. Failures wrap ErrDevice or ErrStream;
// callers fall back to Disabled.
func New(backend audio.Backend, config Config, log Logger) (*Engine, error) {
	if log == nil {
		log = logger.Discard()
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrDevice)
	}

	defaults := DefaultConfig()
	if config.CommandQueueSize <= 0 {
		config.CommandQueueSize = defaults.CommandQueueSize
	}
	if config.EventQueueSize <= 0 {
		config.EventQueueSize = defaults.EventQueueSize
	}
	if config.RingSeconds <= 0 {
		config.RingSeconds = defaults.RingSeconds
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = defaults.DrainInterval
	}

	e := &Engine{
		log:           log,
		available:     true,
		capture:       config.Capture,
		commands:      make(chan Command, config.CommandQueueSize),
		events:        make(chan Event, config.EventQueueSize),
		done:          make(chan struct{}),
		drainInterval: config.DrainInterval,
		levelInterval: config.LevelInterval,
	}

	output, err := backend.OpenOutputStream(audio.StreamConfig{
		DeviceID:        config.OutputDeviceID,
		FramesPerBuffer: config.FramesPerBuffer,
		Latency:         config.Latency,
	}, e.renderOutput)
	if err != nil {
		return nil, classify("output", err)
	}

	input, err := backend.OpenInputStream(audio.StreamConfig{
		DeviceID:        config.InputDeviceID,
		FramesPerBuffer: config.FramesPerBuffer,
		Latency:         config.Latency,
	}, e.captureInput)
	if err != nil {
		output.Close()
		return nil, classify("input", err)
	}

	e.output, e.input = output, input
	e.outputChans = max(output.Channels(), 1)
	e.inputChannels = max(input.Channels(), 1)
	e.state = NewSharedState(output.SampleRate())
	e.recorder = recording.New(input.SampleRate(), 1)
	e.ring = newSampleRing(input.SampleRate() * config.RingSeconds)

	if err := output.Start(); err != nil {
		e.closeStreams()
		return nil, fmt.Errorf("%w: failed to start output: %v", ErrStream, err)
	}
	if err := input.Start(); err != nil {
		e.closeStreams()
		return nil, fmt.Errorf("%w: failed to start input: %v", ErrStream, err)
	}

	log.Info("Audio engine started on %s: output %d Hz x%d, input %d Hz x%d, capture=%s",
		backend.Name(), output.SampleRate(), e.outputChans, input.SampleRate(), e.inputChannels, e.capture)

	e.wg.Add(1)
	go e.run()

	return e, nil
}

// classify maps backend failures onto the engine taxonomy
func classify(which string, err error) error {
	if errors.Is(err, audio.ErrNoDevice) || errors.Is(err, audio.ErrDeviceConfig) {
		return fmt.Errorf("%w: %s: %v", ErrDevice, which, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrStream, which, err)
}

// Disabled returns an engine without hardware. Transport commands are
// accepted and ignored, recording commands fail with ErrUnavailable.
func Disabled() *Engine {
	done := make(chan struct{})
	close(done)
	return &Engine{
		state: NewSharedState(disabledSampleRate),
		log:   logger.Discard(),
		done:  done,
	}
}

// renderOutput is the output stream callback
func (e *Engine) renderOutput(out []float32) {
	e.state.RenderOutput(out, e.outputChans)
}

// captureInput is the input stream callback
func (e *Engine) captureInput(in []float32) {
	e.state.MeterInput(in)

	if !e.state.IsRecording() {
		return
	}

	mono := in
	if e.inputChannels > 1 {
		e.scratch = downmixInto(e.scratch, in, e.inputChannels)
		mono = e.scratch
	}

	switch e.capture {
	case CaptureDirect:
		written, err := e.recorder.TryWriteSamples(mono)
		if !written && err == nil {
			e.dropped.Add(uint64(len(mono)))
		}
	default:
		e.ring.Push(mono)
	}
}

// run processes commands in order until Shutdown or Close
func (e *Engine) run() {
	defer e.wg.Done()
	defer close(e.done)
	defer e.closeSubscribers()

	drain := time.NewTicker(e.drainInterval)
	defer drain.Stop()

	var levels <-chan time.Time
	if e.levelInterval > 0 {
		ticker := time.NewTicker(e.levelInterval)
		defer ticker.Stop()
		levels = ticker.C
	}

	for {
		select {
		case cmd, ok := <-e.commands:
			if !ok {
				e.shutdown()
				return
			}
			if !e.handle(cmd) {
				return
			}

		case <-drain.C:
			e.drainCapture()

		case <-levels:
			e.emitLevel()
		}
	}
}

// handle executes one command and reports whether the loop continues
func (e *Engine) handle(cmd Command) bool {
	switch c := cmd.(type) {
	case Play:
		e.state.SetPlaying(true)

	case Pause:
		e.state.SetPlaying(false)

	case Stop:
		e.state.SetPlaying(false)
		e.state.SetPlayhead(0)
		if e.recorder.IsActive() {
			e.finishRecording()
		}

	case Seek:
		e.state.SetPlayhead(MsToSamples(c.PositionMs, e.state.SampleRate()))

	case LoadTracks:
		e.state.SetTracks(e.loadTracks(c.Tracks))

	case StartRecording:
		e.startRecording(c)

	case StopRecording:
		e.finishRecording()

	case Shutdown:
		e.shutdown()
		return false

	default:
		e.log.Warn("Ignoring unknown command %T", cmd)
	}

	return true
}

// loadTracks decodes every track off the audio threads. A track that fails
// to decode is logged and left out of the set.
func (e *Engine) loadTracks(infos []TrackInfo) []LoadedTrack {
	rate := e.state.SampleRate()
	tracks := make([]LoadedTrack, 0, len(infos))

	for _, info := range infos {
		samples, err := codec.LoadMono(info.Path, rate)
		if err != nil {
			e.log.Warn("Skipping track %s: %v", info.Path, err)
			continue
		}

		tracks = append(tracks, LoadedTrack{
			Samples:    samples,
			SampleRate: rate,
			Volume:     info.Volume,
			Muted:      info.Muted,
		})
	}

	e.log.Info("Loaded %d of %d tracks", len(tracks), len(infos))
	return tracks
}

func (e *Engine) startRecording(c StartRecording) {
	if err := e.recorder.Start(c.OutputPath); err != nil {
		e.log.Error("Failed to start recording to %s: %v", c.OutputPath, err)
		e.emit(RecordingError{Message: err.Error()})
		return
	}

	// samples left over from a previous take
	e.ring.Discard()
	e.state.startRecording(c.TrackIndex)
	e.log.Info("Recording track %d to %s", c.TrackIndex, c.OutputPath)
	e.emit(RecordingStarted{TrackIndex: c.TrackIndex})
}

// finishRecording stops capture, flushes queued samples and finalizes the file
func (e *Engine) finishRecording() {
	e.state.stopRecording()
	e.drainCapture()

	result, err := e.recorder.Stop()
	if err != nil {
		e.log.Error("Failed to stop recording: %v", err)
		e.emit(RecordingError{Message: err.Error()})
		return
	}

	e.log.Info("Recording finished: %d samples, %d ms", result.SamplesWritten, result.DurationMs)
	e.emit(RecordingStopped{Result: result})
}

// drainCapture moves queued ring samples into the recorder
func (e *Engine) drainCapture() {
	if e.capture != CaptureRing || e.ring.Len() == 0 {
		return
	}

	e.drainBuf = e.ring.Drain(e.drainBuf[:0])
	if !e.recorder.IsActive() {
		return
	}

	if err := e.recorder.WriteSamples(e.drainBuf); err != nil {
		e.log.Error("Failed to write recording: %v", err)
		e.emit(RecordingError{Message: err.Error()})
	}
}

// shutdown force-stops any recording and discards its result
func (e *Engine) shutdown() {
	e.state.SetPlaying(false)

	if e.recorder.IsActive() {
		e.state.stopRecording()
		e.drainCapture()
		if _, err := e.recorder.Stop(); err != nil {
			e.log.Warn("Failed to finalize recording on shutdown: %v", err)
		}
	}

	e.log.Info("Audio engine command loop stopped")
}

// emit sends an event without blocking; a full queue drops it.
// Subscribers get their own copy.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("Event queue full, dropping %s", ev.Type())
	}

	e.subMu.Lock()
	for _, sub := range e.subs {
		select {
		case sub <- ev:
		default:
			e.log.Warn("Subscriber queue full, dropping %s", ev.Type())
		}
	}
	e.subMu.Unlock()
}

// emitLevel queues an InputLevel event only while the queue is under half
// full, leaving room for recording events when nobody is polling
func (e *Engine) emitLevel() {
	if len(e.events) >= cap(e.events)/2 {
		return
	}
	select {
	case e.events <- InputLevel{Level: e.state.InputLevel()}:
	default:
	}
}

// Subscribe returns a channel that receives every recording event
// (started, stopped, error) alongside the polled queue. Level events are
// not delivered. The channel is closed when the command loop exits; a
// subscriber that falls size events behind misses events.
func (e *Engine) Subscribe(size int) <-chan Event {
	ch := make(chan Event, max(size, 1))

	e.subMu.Lock()
	defer e.subMu.Unlock()

	if !e.available || e.subsClosed {
		close(ch)
		return ch
	}
	e.subs = append(e.subs, ch)
	return ch
}

func (e *Engine) closeSubscribers() {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	for _, sub := range e.subs {
		close(sub)
	}
	e.subs = nil
	e.subsClosed = true
}

// Send queues a command without blocking
func (e *Engine) Send(cmd Command) error {
	if !e.available {
		switch cmd.(type) {
		case StartRecording, StopRecording:
			return ErrUnavailable
		}
		return nil
	}

	e.sendMu.RLock()
	defer e.sendMu.RUnlock()

	if e.closed {
		return ErrClosed
	}

	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	select {
	case e.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Play starts playback from the playhead
func (e *Engine) Play() error {
	return e.Send(Play{})
}

// Pause stops playback and keeps the playhead
func (e *Engine) Pause() error {
	return e.Send(Pause{})
}

// Stop stops playback, rewinds and ends any recording
func (e *Engine) Stop() error {
	return e.Send(Stop{})
}

// Seek moves the playhead to positionMs
func (e *Engine) Seek(positionMs uint64) error {
	return e.Send(Seek{PositionMs: positionMs})
}

// LoadTracks replaces the loaded track set
func (e *Engine) LoadTracks(tracks []TrackInfo) error {
	return e.Send(LoadTracks{Tracks: tracks})
}

// StartRecording records the input to outputPath for trackIndex
func (e *Engine) StartRecording(trackIndex int, outputPath string) error {
	return e.Send(StartRecording{TrackIndex: trackIndex, OutputPath: outputPath})
}

// StopRecording finalizes the active recording
func (e *Engine) StopRecording() error {
	return e.Send(StopRecording{})
}

// PollEvent returns the next pending event, if any
func (e *Engine) PollEvent() (Event, bool) {
	select {
	case ev := <-e.events:
		return ev, true
	default:
		return nil, false
	}
}

// Events exposes the event queue for consumers that prefer to block
func (e *Engine) Events() <-chan Event {
	return e.events
}

// State returns the live shared state
func (e *Engine) State() *SharedState {
	return e.state
}

// IsPlaying reports the transport flag
func (e *Engine) IsPlaying() bool {
	return e.state.IsPlaying()
}

// IsRecording reports whether input is being captured
func (e *Engine) IsRecording() bool {
	return e.state.IsRecording()
}

// RecordingTrack returns the track slot being recorded
func (e *Engine) RecordingTrack() (int, bool) {
	return e.state.RecordingTrack()
}

// PositionMs returns the playhead in milliseconds
func (e *Engine) PositionMs() uint64 {
	return e.state.PositionMs()
}

// InputLevel returns the latest input peak
func (e *Engine) InputLevel() float32 {
	return e.state.InputLevel()
}

// SampleRate returns the output sample rate
func (e *Engine) SampleRate() int {
	return e.state.SampleRate()
}

// TrackCount returns the number of loaded tracks
func (e *Engine) TrackCount() int {
	return e.state.TrackCount()
}

// Available reports whether the engine has hardware streams
func (e *Engine) Available() bool {
	return e.available
}

// DroppedSamples returns the number of input samples lost to ring
// overflow or recorder contention
func (e *Engine) DroppedSamples() uint64 {
	n := e.dropped.Load()
	if e.ring != nil {
		n += e.ring.Dropped()
	}
	return n
}

// Close ends the command loop, finalizing any open recording, then
// stops and closes both streams. Queued commands run first.
func (e *Engine) Close() error {
	if !e.available {
		return nil
	}

	e.sendMu.Lock()
	if !e.closed {
		e.closed = true
		close(e.commands)
	}
	e.sendMu.Unlock()

	e.wg.Wait()

	return e.closeStreams()
}

func (e *Engine) closeStreams() error {
	var errs []error
	e.closeOnce.Do(func() {
		for _, s := range []audio.Stream{e.input, e.output} {
			if s == nil {
				continue
			}
			if err := s.Stop(); err != nil {
				errs = append(errs, err)
			}
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
