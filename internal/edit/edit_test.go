package edit

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/yok-tottii/muze-audio/internal/codec"
)

func writeClip(t *testing.T, dir, name string, rate, channels int, samples []float32) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := codec.WriteWAV(path, &codec.Buffer{Samples: samples, SampleRate: rate, Channels: channels}); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func readClip(t *testing.T, path string) *codec.Buffer {
	t.Helper()

	buf, err := codec.ReadWAV(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return buf
}

func assertSamples(t *testing.T, got, expected []float32) {
	t.Helper()

	if len(got) != len(expected) {
		t.Fatalf("Expected %d samples, got %d (%v)", len(expected), len(got), got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], got[i])
		}
	}
}

func TestSampleIndex(t *testing.T) {
	tests := []struct {
		name     string
		ms       uint64
		rate     int
		channels int
		expected int
	}{
		{"zero", 0, 48000, 1, 0},
		{"one second mono", 1000, 48000, 1, 48000},
		{"one second stereo", 1000, 48000, 2, 96000},
		{"truncates", 1, 1000, 1, 1},
		{"sub-frame truncates", 1, 500, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampleIndex(tt.ms, tt.rate, tt.channels)
			if got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestSpliceOverwrite(t *testing.T) {
	dir := t.TempDir()
	original := writeClip(t, dir, "orig.wav", 1000, 1, []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1})
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.5, 0.5})
	out := filepath.Join(dir, "out.wav")

	duration, err := Splice(original, take, 2, out)
	if err != nil {
		t.Fatalf("Splice failed: %v", err)
	}

	if duration != 6 {
		t.Errorf("Expected 6 ms, got %d", duration)
	}
	assertSamples(t, readClip(t, out).Samples, []float32{0.1, 0.1, 0.5, 0.5, 0.1, 0.1})
}

func TestSpliceExtendsOriginal(t *testing.T) {
	dir := t.TempDir()
	original := writeClip(t, dir, "orig.wav", 1000, 1, []float32{0.1, 0.1, 0.1})
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.5, 0.5, 0.5})
	out := filepath.Join(dir, "out.wav")

	if _, err := Splice(original, take, 2, out); err != nil {
		t.Fatalf("Splice failed: %v", err)
	}

	assertSamples(t, readClip(t, out).Samples, []float32{0.1, 0.1, 0.5, 0.5, 0.5})
}

func TestSplicePadsPastEnd(t *testing.T) {
	dir := t.TempDir()
	original := writeClip(t, dir, "orig.wav", 1000, 1, []float32{0.1, 0.2})
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.9})
	out := filepath.Join(dir, "out.wav")

	duration, err := Splice(original, take, 5, out)
	if err != nil {
		t.Fatalf("Splice failed: %v", err)
	}

	// start sample 5 minus 2 original samples leaves exactly 3 of silence
	assertSamples(t, readClip(t, out).Samples, []float32{0.1, 0.2, 0, 0, 0, 0.9})
	if duration != 6 {
		t.Errorf("Expected 6 ms, got %d", duration)
	}
}

func TestSpliceRejectsFarOffsets(t *testing.T) {
	dir := t.TempDir()
	original := writeClip(t, dir, "orig.wav", 1000, 1, []float32{0.1, 0.2})
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.9})

	tests := []struct {
		name    string
		startMs uint64
	}{
		{"beyond max offset", 1e9},
		{"max uint64", math.MaxUint64},
		{"padding too long", 2 + MaxPaddingMs + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(dir, tt.name+".wav")
			if _, err := Splice(original, take, tt.startMs, out); !errors.Is(err, ErrInvalidRegion) {
				t.Errorf("Expected ErrInvalidRegion, got %v", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Errorf("Expected no output file, got %v", err)
			}
		})
	}

	// The longest allowed gap still works
	if _, err := Splice(original, take, 2+MaxPaddingMs, filepath.Join(dir, "edge.wav")); err != nil {
		t.Errorf("Expected padding of MaxPaddingMs to be accepted, got %v", err)
	}
}

func TestSpliceStereoOriginal(t *testing.T) {
	dir := t.TempDir()
	original := writeClip(t, dir, "orig.wav", 1000, 2, []float32{0.1, 0.2, 0.1, 0.2, 0.1, 0.2})
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.5})
	out := filepath.Join(dir, "out.wav")

	if _, err := Splice(original, take, 1, out); err != nil {
		t.Fatalf("Splice failed: %v", err)
	}

	buf := readClip(t, out)
	if buf.Channels != 2 {
		t.Errorf("Expected output to keep 2 channels, got %d", buf.Channels)
	}
	assertSamples(t, buf.Samples, []float32{0.1, 0.2, 0.5, 0.5, 0.1, 0.2})
}

func TestSpliceMissingInput(t *testing.T) {
	dir := t.TempDir()
	take := writeClip(t, dir, "take.wav", 1000, 1, []float32{0.5})

	if _, err := Splice(filepath.Join(dir, "missing.wav"), take, 0, filepath.Join(dir, "out.wav")); err == nil {
		t.Error("Expected error for missing original")
	}
}

func TestDeleteRegion(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "clip.wav", 1000, 1, []float32{0, 1, 2, 3, 4, 5})
	out := filepath.Join(dir, "out.wav")

	duration, err := DeleteRegion(path, 1, 3, out)
	if err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}

	if duration != 4 {
		t.Errorf("Expected 4 ms, got %d", duration)
	}
	// Values above 1.0 survive because the edit does not clamp
	assertSamples(t, readClip(t, out).Samples, []float32{0, 3, 4, 5})
}

func TestDeleteRegionWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "clip.wav", 48000, 1, make([]float32, 4800))
	out := filepath.Join(dir, "out.wav")

	duration, err := DeleteRegion(path, 0, 100, out)
	if err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}

	if duration != 0 {
		t.Errorf("Expected 0 ms, got %d", duration)
	}
	if n := len(readClip(t, out).Samples); n != 0 {
		t.Errorf("Expected empty output, got %d samples", n)
	}
}

func TestDeleteRegionClampsEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "clip.wav", 1000, 1, []float32{0.1, 0.2, 0.3})
	out := filepath.Join(dir, "out.wav")

	if _, err := DeleteRegion(path, 1, 60000, out); err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}
	assertSamples(t, readClip(t, out).Samples, []float32{0.1})
}

func TestDeleteRegionHugeEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "clip.wav", 1000, 1, []float32{0.1, 0.2, 0.3})
	out := filepath.Join(dir, "out.wav")

	if _, err := DeleteRegion(path, 2, math.MaxUint64, out); err != nil {
		t.Fatalf("DeleteRegion failed: %v", err)
	}
	assertSamples(t, readClip(t, out).Samples, []float32{0.1, 0.2})
}

func TestDeleteRegionInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "clip.wav", 1000, 1, []float32{0.1})

	tests := []struct {
		name  string
		start uint64
		end   uint64
	}{
		{"empty", 5, 5},
		{"reversed", 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeleteRegion(path, tt.start, tt.end, filepath.Join(dir, "out.wav"))
			if !errors.Is(err, ErrInvalidRegion) {
				t.Errorf("Expected ErrInvalidRegion, got %v", err)
			}
		})
	}
}

func TestExportMixAllMuted(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "a.wav", 1000, 1, []float32{0.5})

	tracks := []MixTrack{
		{Path: path, Volume: 1, Muted: true},
		{Path: path, Volume: 1, Muted: true},
	}

	_, err := ExportMix(tracks, filepath.Join(dir, "mix.wav"))
	if !errors.Is(err, ErrNoTracks) {
		t.Fatalf("Expected ErrNoTracks, got %v", err)
	}
	if err.Error() != "no tracks to export" {
		t.Errorf("Expected %q, got %q", "no tracks to export", err.Error())
	}
}

func TestExportMixEmpty(t *testing.T) {
	if _, err := ExportMix(nil, filepath.Join(t.TempDir(), "mix.wav")); !errors.Is(err, ErrNoTracks) {
		t.Errorf("Expected ErrNoTracks, got %v", err)
	}
}

func TestExportMixSingleTrack(t *testing.T) {
	dir := t.TempDir()
	path := writeClip(t, dir, "a.wav", 1000, 1, []float32{0.25, -0.5, 1, -1})
	out := filepath.Join(dir, "mix.wav")

	duration, err := ExportMix([]MixTrack{{Path: path, Volume: 2}}, out)
	if err != nil {
		t.Fatalf("ExportMix failed: %v", err)
	}

	if duration != 4 {
		t.Errorf("Expected 4 ms, got %d", duration)
	}
	assertSamples(t, readClip(t, out).Samples, []float32{0.5, -1, 1, -1})
}

func TestExportMixSumsAndDownmixes(t *testing.T) {
	dir := t.TempDir()
	long := writeClip(t, dir, "long.wav", 1000, 1, []float32{0.25, 0.25, 0.25})
	stereo := writeClip(t, dir, "stereo.wav", 1000, 2, []float32{0.5, 0, 0.5, 0})
	muted := writeClip(t, dir, "muted.wav", 1000, 1, []float32{0.9, 0.9, 0.9})
	out := filepath.Join(dir, "mix.wav")

	tracks := []MixTrack{
		{Path: long, Volume: 1},
		{Path: stereo, Volume: 1},
		{Path: muted, Volume: 1, Muted: true},
	}
	if _, err := ExportMix(tracks, out); err != nil {
		t.Fatalf("ExportMix failed: %v", err)
	}

	buf := readClip(t, out)
	if buf.Channels != 1 {
		t.Errorf("Expected mono mix, got %d channels", buf.Channels)
	}
	if buf.SampleRate != 1000 {
		t.Errorf("Expected rate of first track, got %d", buf.SampleRate)
	}
	assertSamples(t, buf.Samples, []float32{0.5, 0.5, 0.25})
}

func TestExportMixMissingTrack(t *testing.T) {
	dir := t.TempDir()
	tracks := []MixTrack{{Path: filepath.Join(dir, "missing.wav"), Volume: 1}}

	if _, err := ExportMix(tracks, filepath.Join(dir, "mix.wav")); err == nil {
		t.Error("Expected error for missing track")
	}
}
