package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writePCM writes an integer PCM WAV the way other recording tools would
func writePCM(t *testing.T, path string, rate, bits, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, bits, channels, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bits,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write PCM: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
}

func TestWriteAndReadFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "float.wav")
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.25}

	if err := WriteWAV(path, &Buffer{Samples: samples, SampleRate: 48000, Channels: 1}); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	buf, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if buf.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", buf.SampleRate)
	}
	if buf.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", buf.Channels)
	}
	if len(buf.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(buf.Samples))
	}
	for i := range samples {
		if buf.Samples[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], buf.Samples[i])
		}
	}
}

// writeExtensible writes a mono WAVE_FORMAT_EXTENSIBLE file the way DAWs
// export 32-bit float or high-depth PCM
func writeExtensible(t *testing.T, path string, rate, bits int, subtype [16]byte, payload []byte) {
	t.Helper()

	blockAlign := bits / 8
	var fmtChunk bytes.Buffer
	for _, v := range []any{
		uint16(formatExtensible), uint16(1), uint32(rate), uint32(rate * blockAlign),
		uint16(blockAlign), uint16(bits),
		uint16(22), uint16(bits), uint32(4), subtype,
	} {
		binary.Write(&fmtChunk, binary.LittleEndian, v)
	}

	var file bytes.Buffer
	file.WriteString("RIFF")
	binary.Write(&file, binary.LittleEndian, uint32(4+8+fmtChunk.Len()+8+len(payload)))
	file.WriteString("WAVE")
	file.WriteString("fmt ")
	binary.Write(&file, binary.LittleEndian, uint32(fmtChunk.Len()))
	file.Write(fmtChunk.Bytes())
	file.WriteString("data")
	binary.Write(&file, binary.LittleEndian, uint32(len(payload)))
	file.Write(payload)

	if err := os.WriteFile(path, file.Bytes(), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestReadExtensibleFloat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daw_float.wav")
	samples := []float32{0.5, -0.25, 0.75, 0.1}

	var payload bytes.Buffer
	for _, s := range samples {
		binary.Write(&payload, binary.LittleEndian, math.Float32bits(s))
	}
	writeExtensible(t, path, 48000, 32, subtypeIEEEFloat, payload.Bytes())

	buf, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if len(buf.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(buf.Samples))
	}
	for i := range samples {
		if buf.Samples[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], buf.Samples[i])
		}
	}
}

func TestReadExtensiblePCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daw_pcm.wav")
	subtypePCM := subtypeIEEEFloat
	subtypePCM[0] = formatPCM

	var payload bytes.Buffer
	for _, v := range []int16{16384, -32768} {
		binary.Write(&payload, binary.LittleEndian, v)
	}
	writeExtensible(t, path, 44100, 16, subtypePCM, payload.Bytes())

	buf, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	expected := []float32{0.5, -1}
	if len(buf.Samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(buf.Samples))
	}
	for i := range expected {
		if buf.Samples[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], buf.Samples[i])
		}
	}
}

func TestReadPCM16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm16.wav")
	writePCM(t, path, 44100, 16, 2, []int{0, 16384, -32768, 32767})

	buf, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if buf.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", buf.Channels)
	}
	if buf.Frames() != 2 {
		t.Errorf("Expected 2 frames, got %d", buf.Frames())
	}

	expected := []float32{0, 0.5, -1, float32(32767) / float32(32768)}
	for i := range expected {
		if buf.Samples[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], buf.Samples[i])
		}
	}
}

func TestReadPCM24(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcm24.wav")
	writePCM(t, path, 48000, 24, 1, []int{4194304, -8388608})

	buf, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if buf.Samples[0] != 0.5 {
		t.Errorf("Expected 0.5, got %v", buf.Samples[0])
	}
	if buf.Samples[1] != -1 {
		t.Errorf("Expected -1, got %v", buf.Samples[1])
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		data      []int
		bits      int
		unsigned8 bool
		expected  []float32
	}{
		{"unsigned 8-bit", []int{128, 192, 0}, 8, true, []float32{0, 0.5, -1}},
		{"signed 8-bit", []int{0, 64, -128}, 8, false, []float32{0, 0.5, -1}},
		{"16-bit", []int{-16384}, 16, false, []float32{-0.5}},
		{"32-bit int", []int{1 << 30}, 32, false, []float32{0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := normalize(tt.data, tt.bits, false, tt.unsigned8)
			if err != nil {
				t.Fatalf("normalize failed: %v", err)
			}
			for i := range tt.expected {
				if out[i] != tt.expected[i] {
					t.Errorf("Sample %d: expected %v, got %v", i, tt.expected[i], out[i])
				}
			}
		})
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	if _, err := normalize([]int{0}, 64, true, false); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Errorf("Expected ErrUnsupportedBitDepth for 64-bit float, got %v", err)
	}
	if _, err := normalize([]int{0}, 4, false, false); !errors.Is(err, ErrUnsupportedBitDepth) {
		t.Errorf("Expected ErrUnsupportedBitDepth for 4-bit PCM, got %v", err)
	}
}

func TestReadWAVNotWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.wav")
	if err := os.WriteFile(path, []byte("this is not a riff container at all, just text"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := ReadWAV(path); !errors.Is(err, ErrNotWav) {
		t.Errorf("Expected ErrNotWav, got %v", err)
	}
}

func TestReadWAVMissing(t *testing.T) {
	if _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDecodeAIFF(t *testing.T) {
	tests := []struct {
		name     string
		bits     int
		data     []int
		expected []float32
	}{
		{"signed 8-bit", 8, []int{0, 64, -64, -128}, []float32{0, 0.5, -0.5, -1}},
		{"16-bit", 16, []int{0, 16384, -16384, -32768}, []float32{0, 0.5, -0.5, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "take.aiff")
			f, err := os.Create(path)
			if err != nil {
				t.Fatalf("Failed to create %s: %v", path, err)
			}

			enc := aiff.NewEncoder(f, 44100, tt.bits, 2)
			buf := &goaudio.IntBuffer{
				Format:         &goaudio.Format{NumChannels: 2, SampleRate: 44100},
				Data:           tt.data,
				SourceBitDepth: tt.bits,
			}
			if err := enc.Write(buf); err != nil {
				t.Fatalf("Failed to write AIFF: %v", err)
			}
			if err := enc.Close(); err != nil {
				t.Fatalf("Failed to close encoder: %v", err)
			}
			f.Close()

			decoded, err := Decode(path)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.SampleRate != 44100 {
				t.Errorf("Expected sample rate 44100, got %d", decoded.SampleRate)
			}
			if decoded.Channels != 2 {
				t.Errorf("Expected 2 channels, got %d", decoded.Channels)
			}
			if len(decoded.Samples) != len(tt.expected) {
				t.Fatalf("Expected %d samples, got %d", len(tt.expected), len(decoded.Samples))
			}
			for i := range tt.expected {
				if decoded.Samples[i] != tt.expected[i] {
					t.Errorf("Sample %d: expected %v, got %v", i, tt.expected[i], decoded.Samples[i])
				}
			}
		})
	}
}

func TestDecodeAIFFNotAiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.aif")
	if err := os.WriteFile(path, []byte("FORM but not really an aiff container"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := Decode(path); !errors.Is(err, ErrNotAiff) {
		t.Errorf("Expected ErrNotAiff, got %v", err)
	}
}

// testdata/tone.mp3 is a mono 22050 Hz MPEG-2 clip
func TestDecodeMP3(t *testing.T) {
	buf, err := Decode(filepath.Join("testdata", "tone.mp3"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if buf.SampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", buf.SampleRate)
	}
	// go-mp3 always produces stereo
	if buf.Channels != 2 {
		t.Fatalf("Expected 2 channels, got %d", buf.Channels)
	}
	if buf.Frames() == 0 || len(buf.Samples)%2 != 0 {
		t.Fatalf("Expected whole stereo frames, got %d samples", len(buf.Samples))
	}

	var nonZero bool
	for f := 0; f < buf.Frames(); f++ {
		l, r := buf.Samples[2*f], buf.Samples[2*f+1]
		if l != r {
			t.Fatalf("Frame %d: expected mono source duplicated, got %v and %v", f, l, r)
		}
		if l < -1 || l >= 1 {
			t.Fatalf("Frame %d: sample %v outside [-1, 1)", f, l)
		}
		if l != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("Expected audible samples")
	}
}

// testdata/tone.ogg is a mono 44100 Hz Vorbis clip
func TestDecodeVorbis(t *testing.T) {
	buf, err := Decode(filepath.Join("testdata", "tone.ogg"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if buf.SampleRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", buf.SampleRate)
	}
	if buf.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", buf.Channels)
	}
	if len(buf.Samples) == 0 {
		t.Fatal("Expected decoded samples")
	}
}

func TestDecodeCorruptStreams(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"broken.mp3", "broken.ogg"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte("definitely not compressed audio"), 0644); err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}
			if _, err := Decode(path); err == nil {
				t.Error("Expected error for corrupt stream")
			}
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	if _, err := Decode("take1.flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestNewWriterInvalidFormat(t *testing.T) {
	if _, err := NewWriter(nil, 0, 1); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for zero rate, got %v", err)
	}
	if _, err := NewWriter(nil, 48000, 0); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for zero channels, got %v", err)
	}
}

func TestDownmix(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	mono := Downmix(stereo, 2)

	expected := []float32{0.5, 0.5, 0}
	if len(mono) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(mono))
	}
	for i := range expected {
		if mono[i] != expected[i] {
			t.Errorf("Frame %d: expected %v, got %v", i, expected[i], mono[i])
		}
	}

	quad := []float32{1, 1, 0, 0}
	if got := Downmix(quad, 4); len(got) != 1 || got[0] != 0.5 {
		t.Errorf("Expected [0.5] for quad frame, got %v", got)
	}

	in := []float32{0.1, 0.2}
	if got := Downmix(in, 1); len(got) != 2 {
		t.Errorf("Expected mono passthrough, got %v", got)
	}
}

func TestResample(t *testing.T) {
	src := []float32{0, 1, 2, 3}

	up := Resample(src, 2, 4)
	expectedUp := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3}
	if len(up) != len(expectedUp) {
		t.Fatalf("Expected %d samples, got %d", len(expectedUp), len(up))
	}
	for i := range expectedUp {
		if up[i] != expectedUp[i] {
			t.Errorf("Upsampled %d: expected %v, got %v", i, expectedUp[i], up[i])
		}
	}

	down := Resample(src, 4, 2)
	if len(down) != 2 || down[0] != 0 || down[1] != 2 {
		t.Errorf("Expected [0 2], got %v", down)
	}

	same := Resample(src, 48000, 48000)
	if len(same) != len(src) {
		t.Errorf("Expected passthrough at equal rates, got %d samples", len(same))
	}
}

func TestLoadMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	stereo := &Buffer{
		Samples:    []float32{0.5, 0.5, 0.2, 0.4, 0, 0, -0.5, -0.5},
		SampleRate: 24000,
		Channels:   2,
	}
	if err := WriteWAV(path, stereo); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	mono, err := LoadMono(path, 48000)
	if err != nil {
		t.Fatalf("LoadMono failed: %v", err)
	}

	if len(mono) != 8 {
		t.Fatalf("Expected 8 samples after 2x resample, got %d", len(mono))
	}
	if mono[0] != 0.5 {
		t.Errorf("Expected first sample 0.5, got %v", mono[0])
	}

	if _, err := LoadMono(path, 0); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat for zero target rate, got %v", err)
	}
}

func TestDurationMs(t *testing.T) {
	tests := []struct {
		name     string
		samples  uint64
		channels int
		rate     int
		expected uint64
	}{
		{"one second mono", 48000, 1, 48000, 1000},
		{"one second stereo", 96000, 2, 48000, 1000},
		{"truncates", 47999, 1, 48000, 999},
		{"empty", 0, 1, 48000, 0},
		{"zero rate", 100, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DurationMs(tt.samples, tt.channels, tt.rate)
			if got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}
