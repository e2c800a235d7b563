package edit

import (
	"errors"
	"fmt"

	"github.com/yok-tottii/muze-audio/internal/codec"
)

var (
	// ErrNoTracks is returned by ExportMix when nothing is left to mix
	ErrNoTracks = errors.New("no tracks to export")
	// ErrInvalidRegion is returned for an empty delete region or a splice
	// offset too far past the end of the original
	ErrInvalidRegion = errors.New("invalid region")
)

const (
	// MaxOffsetMs caps every offset; later ones are clamped or rejected
	MaxOffsetMs = 24 * 60 * 60 * 1000
	// MaxPaddingMs is the longest silence Splice inserts after the original
	MaxPaddingMs = 60 * 60 * 1000
)

// MixTrack is one input to ExportMix
type MixTrack struct {
	Path   string  `json:"path"`
	Volume float32 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// sampleIndex converts a millisecond offset to an interleaved sample index
func sampleIndex(ms uint64, sampleRate, channels int) int {
	frames := ms * uint64(sampleRate) / 1000
	return int(frames) * channels
}

// Splice writes originalPath with newPath inserted at startMs, overwriting the
// original samples it covers. A start past the end of the original is padded
// with silence. Returns the duration of the output in milliseconds.
func Splice(originalPath, newPath string, startMs uint64, outputPath string) (uint64, error) {
	if startMs > MaxOffsetMs {
		return 0, fmt.Errorf("%w: start %d ms is past %d ms", ErrInvalidRegion, startMs, uint64(MaxOffsetMs))
	}

	original, err := codec.ReadWAV(originalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read original: %w", err)
	}
	if gap := int64(startMs) - int64(original.DurationMs()); gap > MaxPaddingMs {
		return 0, fmt.Errorf("%w: start %d ms is %d ms past the end of the original", ErrInvalidRegion, startMs, gap)
	}

	recording, err := codec.ReadWAV(newPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read recording: %w", err)
	}

	inserted := conform(recording, original.SampleRate, original.Channels)
	start := sampleIndex(startMs, original.SampleRate, original.Channels)

	out := make([]float32, 0, max(start, len(original.Samples))+len(inserted))
	out = append(out, original.Samples[:min(start, len(original.Samples))]...)
	if start > len(original.Samples) {
		out = append(out, make([]float32, start-len(original.Samples))...)
	}
	out = append(out, inserted...)
	if tail := start + len(inserted); tail < len(original.Samples) {
		out = append(out, original.Samples[tail:]...)
	}

	result := &codec.Buffer{Samples: out, SampleRate: original.SampleRate, Channels: original.Channels}
	if err := codec.WriteWAV(outputPath, result); err != nil {
		return 0, err
	}

	return result.DurationMs(), nil
}

// DeleteRegion writes path without the samples in [startMs, endMs).
// Offsets beyond the end of the file are clamped.
func DeleteRegion(path string, startMs, endMs uint64, outputPath string) (uint64, error) {
	if endMs <= startMs {
		return 0, fmt.Errorf("%w: %d-%d ms", ErrInvalidRegion, startMs, endMs)
	}

	buf, err := codec.ReadWAV(path)
	if err != nil {
		return 0, err
	}

	startMs, endMs = min(startMs, MaxOffsetMs), min(endMs, MaxOffsetMs)
	n := len(buf.Samples)
	start := min(sampleIndex(startMs, buf.SampleRate, buf.Channels), n)
	end := min(sampleIndex(endMs, buf.SampleRate, buf.Channels), n)

	out := make([]float32, 0, n-(end-start))
	out = append(out, buf.Samples[:start]...)
	out = append(out, buf.Samples[end:]...)

	result := &codec.Buffer{Samples: out, SampleRate: buf.SampleRate, Channels: buf.Channels}
	if err := codec.WriteWAV(outputPath, result); err != nil {
		return 0, err
	}

	return result.DurationMs(), nil
}

// ExportMix sums every unmuted track into a mono file at the rate of the
// first track loaded. Returns the mix duration in milliseconds.
func ExportMix(tracks []MixTrack, outputPath string) (uint64, error) {
	var (
		rate  int
		mixed []float32
		count int
	)

	for _, track := range tracks {
		if track.Muted {
			continue
		}

		buf, err := codec.Decode(track.Path)
		if err != nil {
			return 0, fmt.Errorf("failed to load %s: %w", track.Path, err)
		}

		if count == 0 {
			rate = buf.SampleRate
		}
		mono := codec.Resample(codec.Downmix(buf.Samples, buf.Channels), buf.SampleRate, rate)

		if len(mono) > len(mixed) {
			mixed = append(mixed, make([]float32, len(mono)-len(mixed))...)
		}
		for i, s := range mono {
			mixed[i] += s * track.Volume
		}
		count++
	}

	if count == 0 {
		return 0, ErrNoTracks
	}

	for i, s := range mixed {
		mixed[i] = clamp(s)
	}

	result := &codec.Buffer{Samples: mixed, SampleRate: rate, Channels: 1}
	if err := codec.WriteWAV(outputPath, result); err != nil {
		return 0, err
	}

	return result.DurationMs(), nil
}

// conform brings buf to the given rate and channel layout
func conform(buf *codec.Buffer, sampleRate, channels int) []float32 {
	if buf.SampleRate == sampleRate && buf.Channels == channels {
		return buf.Samples
	}

	mono := codec.Resample(codec.Downmix(buf.Samples, buf.Channels), buf.SampleRate, sampleRate)
	if channels == 1 {
		return mono
	}

	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
	return out
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
