package codec

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
	// the SubFormat GUID sits after the 16 byte base header, cbSize,
	// valid bits and the channel mask
	subFormatOffset = 24
	// floatBitDepth is the only depth ever written
	floatBitDepth = 32
)

var (
	// ErrNotWav is returned when a file lacks a RIFF/WAVE header
	ErrNotWav = errors.New("not a WAV file")
	// ErrUnsupportedBitDepth is returned for sample widths that cannot be normalized
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	// ErrInvalidFormat is returned for a zero sample rate or channel count
	ErrInvalidFormat = errors.New("invalid sample rate or channel count")

	// KSDATAFORMAT_SUBTYPE_IEEE_FLOAT as stored on disk
	subtypeIEEEFloat = [16]byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}
)

// Buffer is a fully decoded clip of interleaved samples in [-1, 1]
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of frames held by the buffer
func (b *Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// DurationMs returns the buffer length in whole milliseconds
func (b *Buffer) DurationMs() uint64 {
	return DurationMs(uint64(len(b.Samples)), b.Channels, b.SampleRate)
}

// DurationMs converts an interleaved sample count to milliseconds, truncating
func DurationMs(samples uint64, channels, sampleRate int) uint64 {
	if channels <= 0 || sampleRate <= 0 {
		return 0
	}
	frames := samples / uint64(channels)
	return frames * 1000 / uint64(sampleRate)
}

// ReadWAV decodes an entire WAV file. Integer PCM of any supported depth is
// normalized by 2^(bits-1); 32-bit IEEE float is passed through.
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf, err := decodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf, nil
}

func decodeWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotWav
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)
	if channels <= 0 || rate <= 0 {
		return nil, ErrInvalidFormat
	}

	var data []int
	if pcm != nil {
		data = pcm.Data
	}

	isFloat := dec.WavAudioFormat == formatIEEEFloat
	if dec.WavAudioFormat == formatExtensible {
		if isFloat, err = extensibleFloat(r); err != nil {
			return nil, err
		}
	}

	samples, err := normalize(data, int(dec.BitDepth), isFloat, true)
	if err != nil {
		return nil, err
	}

	return &Buffer{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// extensibleFloat reads the SubFormat GUID of a WAVE_FORMAT_EXTENSIBLE fmt
// chunk, which go-audio/wav skips. The read position of r is restored.
func extensibleFloat(r io.ReadSeeker) (bool, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, fmt.Errorf("failed to read fmt chunk: %w", err)
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("failed to read fmt chunk: %w", err)
	}

	parser := riff.New(r)
	if err := parser.ParseHeaders(); err != nil {
		return false, fmt.Errorf("failed to read RIFF header: %w", err)
	}

	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return false, fmt.Errorf("fmt chunk not found: %w", err)
		}
		if chunk.ID != riff.FmtID {
			chunk.Drain()
			continue
		}

		raw := make([]byte, chunk.Size)
		if _, err := io.ReadFull(chunk, raw); err != nil {
			return false, fmt.Errorf("failed to read fmt chunk: %w", err)
		}
		if len(raw) < subFormatOffset+len(subtypeIEEEFloat) {
			return false, fmt.Errorf("%w: truncated extensible fmt chunk", ErrInvalidFormat)
		}
		return [16]byte(raw[subFormatOffset:subFormatOffset+16]) == subtypeIEEEFloat, nil
	}
}

// normalize converts go-audio integer samples to float32.
// unsigned8 is true for WAV, whose 8-bit samples are offset by 128.
func normalize(data []int, bits int, isFloat, unsigned8 bool) ([]float32, error) {
	out := make([]float32, len(data))

	if isFloat {
		if bits != floatBitDepth {
			return nil, fmt.Errorf("%w: %d-bit float", ErrUnsupportedBitDepth, bits)
		}
		for i, v := range data {
			out[i] = math.Float32frombits(uint32(v))
		}
		return out, nil
	}

	if bits < 8 || bits > 32 {
		return nil, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedBitDepth, bits)
	}

	scale := float32(int64(1) << (bits - 1))
	offset := 0
	if bits == 8 && unsigned8 {
		offset = 128
	}
	for i, v := range data {
		out[i] = float32(v-offset) / scale
	}
	return out, nil
}

// WriteWAV writes buf as a 32-bit float WAV, creating parent directories
func WriteWAV(path string, buf *Buffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	w, err := NewWriter(f, buf.SampleRate, buf.Channels)
	if err != nil {
		f.Close()
		return err
	}

	if err := w.Write(buf.Samples); err != nil {
		f.Close()
		return err
	}

	if err := w.Close(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Writer streams float32 samples into a 32-bit float WAV container.
// It does not own the underlying file.
type Writer struct {
	enc      *wav.Encoder
	format   *goaudio.Format
	scratch  []int
	channels int
}

// NewWriter initializes the WAV header on w
func NewWriter(w io.WriteSeeker, sampleRate, channels int) (*Writer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrInvalidFormat
	}

	wr := &Writer{
		enc:      wav.NewEncoder(w, sampleRate, floatBitDepth, channels, formatIEEEFloat),
		format:   &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		scratch:  make([]int, 0, 4096),
		channels: channels,
	}

	// An empty write forces the RIFF and fmt chunks out now so a broken
	// destination fails here instead of on the first real buffer.
	if err := wr.enc.Write(&goaudio.IntBuffer{Format: wr.format, Data: []int{}, SourceBitDepth: floatBitDepth}); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return wr, nil
}

// Write appends interleaved samples
func (w *Writer) Write(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	if cap(w.scratch) < len(samples) {
		w.scratch = make([]int, len(samples))
	}
	data := w.scratch[:len(samples)]
	for i, s := range samples {
		data[i] = int(math.Float32bits(s))
	}

	buf := &goaudio.IntBuffer{Format: w.format, Data: data, SourceBitDepth: floatBitDepth}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

// Close flushes the data chunk and rewrites the header sizes
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}
