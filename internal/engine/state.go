package engine

import (
	"math"
	"sync"
	"sync/atomic"
)

// LoadedTrack is a decoded mono track resampled to the output rate.
// Its samples are never modified after the track set is published.
type LoadedTrack struct {
	Samples    []float32
	SampleRate int
	Volume     float32
	Muted      bool
}

// SharedState is the live engine state shared between the control side,
// the command goroutine and the audio callbacks. Every scalar field is
// individually atomic; no two fields are read together atomically.
type SharedState struct {
	playing        atomic.Bool
	recording      atomic.Bool
	recordingTrack atomic.Int64
	// position in the low playheadBits, a seek counter above them
	playhead   atomic.Uint64
	sampleRate atomic.Uint32
	// float32 bits of the latest input peak
	inputLevel atomic.Uint32

	tracksMu sync.RWMutex
	tracks   []LoadedTrack
}

const (
	playheadBits = 48
	playheadMask = 1<<playheadBits - 1
)

// NewSharedState creates a stopped state at the given output rate
func NewSharedState(sampleRate int) *SharedState {
	s := &SharedState{}
	s.sampleRate.Store(uint32(sampleRate))
	s.recordingTrack.Store(-1)
	return s
}

// IsPlaying reports the transport flag
func (s *SharedState) IsPlaying() bool {
	return s.playing.Load()
}

// SetPlaying sets the transport flag
func (s *SharedState) SetPlaying(playing bool) {
	s.playing.Store(playing)
}

// IsRecording reports whether the input callback should capture samples
func (s *SharedState) IsRecording() bool {
	return s.recording.Load()
}

// RecordingTrack returns the track slot being recorded
func (s *SharedState) RecordingTrack() (int, bool) {
	idx := s.recordingTrack.Load()
	if idx < 0 {
		return 0, false
	}
	return int(idx), true
}

func (s *SharedState) startRecording(track int) {
	s.recordingTrack.Store(int64(track))
	s.recording.Store(true)
}

func (s *SharedState) stopRecording() {
	s.recording.Store(false)
	s.recordingTrack.Store(-1)
}

// Playhead returns the read position in output samples
func (s *SharedState) Playhead() uint64 {
	return s.playhead.Load() & playheadMask
}

// SetPlayhead moves the read position. Every call bumps the seek counter so
// a buffer rendered from the old position cannot advance over it, even when
// the new position equals the old one.
func (s *SharedState) SetPlayhead(samples uint64) {
	samples = min(samples, playheadMask)
	for {
		old := s.playhead.Load()
		seeks := old>>playheadBits + 1
		if s.playhead.CompareAndSwap(old, seeks<<playheadBits|samples) {
			return
		}
	}
}

// advancePlayhead moves the playhead on by frames unless it was set since
// seen was loaded
func (s *SharedState) advancePlayhead(seen uint64, frames int) bool {
	next := min(seen&playheadMask+uint64(frames), playheadMask)
	return s.playhead.CompareAndSwap(seen, seen&^playheadMask|next)
}

// PositionMs returns the playhead in milliseconds
func (s *SharedState) PositionMs() uint64 {
	return SamplesToMs(s.Playhead(), s.SampleRate())
}

// SampleRate returns the output rate fixed at stream open
func (s *SharedState) SampleRate() int {
	return int(s.sampleRate.Load())
}

// InputLevel returns the most recent input peak in [0, 1]
func (s *SharedState) InputLevel() float32 {
	return math.Float32frombits(s.inputLevel.Load())
}

func (s *SharedState) setInputLevel(level float32) {
	s.inputLevel.Store(math.Float32bits(level))
}

// SetTracks replaces the whole track set
func (s *SharedState) SetTracks(tracks []LoadedTrack) {
	s.tracksMu.Lock()
	s.tracks = tracks
	s.tracksMu.Unlock()
}

// TrackCount returns the number of loaded tracks
func (s *SharedState) TrackCount() int {
	s.tracksMu.RLock()
	defer s.tracksMu.RUnlock()
	return len(s.tracks)
}

// RenderOutput fills one buffer of interleaved output. Unmuted tracks are
// summed at the playhead, clamped, and copied to every channel, then the
// playhead advances by the frame count. When stopped, or when the track set
// is being replaced, the buffer is silent and the playhead stays put.
func (s *SharedState) RenderOutput(out []float32, channels int) {
	if channels <= 0 {
		channels = 1
	}

	if !s.playing.Load() {
		clear(out)
		return
	}

	if !s.tracksMu.TryRLock() {
		clear(out)
		return
	}
	defer s.tracksMu.RUnlock()

	frames := len(out) / channels
	seen := s.playhead.Load()
	start := seen & playheadMask

	for f := 0; f < frames; f++ {
		idx := start + uint64(f)

		var mixed float32
		for i := range s.tracks {
			track := &s.tracks[i]
			if track.Muted || idx >= uint64(len(track.Samples)) {
				continue
			}
			mixed += track.Samples[idx] * track.Volume
		}
		mixed = clamp(mixed)

		base := f * channels
		for c := 0; c < channels; c++ {
			out[base+c] = mixed
		}
	}
	clear(out[frames*channels:])

	// A seek or stop that landed mid-buffer wins over the advance
	s.advancePlayhead(seen, frames)
}

// MeterInput stores the peak magnitude of in as the input level
func (s *SharedState) MeterInput(in []float32) float32 {
	var peak float32
	for _, v := range in {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	s.setInputLevel(peak)
	return peak
}

// downmixInto folds interleaved input into dst, growing it if needed
func downmixInto(dst, in []float32, channels int) []float32 {
	frames := len(in) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	if channels == 2 {
		for f := 0; f < frames; f++ {
			dst[f] = (in[2*f] + in[2*f+1]) * 0.5
		}
		return dst
	}

	inv := 1 / float32(channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += in[f*channels+c]
		}
		dst[f] = sum * inv
	}
	return dst
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
