package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var (
	// ErrUnsupportedFormat is returned by Decode for unknown file extensions
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrNotAiff is returned when a .aif/.aiff file lacks a FORM/AIFF header
	ErrNotAiff = errors.New("not an AIFF file")
)

// Decode reads a whole audio file, choosing the decoder by extension.
// Recordings are always WAV; the other formats exist for imported backing tracks.
func Decode(path string) (*Buffer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return ReadWAV(path)
	case ".aif", ".aiff":
		return readFile(path, decodeAIFF)
	case ".mp3":
		return readFile(path, decodeMP3)
	case ".ogg", ".oga":
		return readFile(path, decodeVorbis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readFile(path string, decode func(io.ReadSeeker) (*Buffer, error)) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf, nil
}

func decodeAIFF(r io.ReadSeeker) (*Buffer, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrNotAiff
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode PCM data: %w", err)
	}

	channels := int(dec.NumChans)
	rate := dec.SampleRate
	if channels <= 0 || rate <= 0 {
		return nil, ErrInvalidFormat
	}

	var data []int
	if pcm != nil {
		data = pcm.Data
	}

	// AIFF 8-bit samples are signed but go-audio/aiff hands back the raw byte
	if dec.BitDepth == 8 {
		for i, v := range data {
			data[i] = int(int8(uint8(v)))
		}
	}

	samples, err := normalize(data, int(dec.BitDepth), false, false)
	if err != nil {
		return nil, err
	}

	return &Buffer{Samples: samples, SampleRate: rate, Channels: channels}, nil
}

// decodeMP3 reads go-mp3 output, which is always 16-bit little-endian stereo
func decodeMP3(r io.ReadSeeker) (*Buffer, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 stream: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768.0
	}

	return &Buffer{Samples: samples, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

func decodeVorbis(r io.ReadSeeker) (*Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Vorbis stream: %w", err)
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, ErrInvalidFormat
	}

	return &Buffer{Samples: samples, SampleRate: format.SampleRate, Channels: format.Channels}, nil
}
