package recording

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/yok-tottii/muze-audio/internal/codec"
)

var (
	// ErrNotStarted is returned when writing to or stopping an idle recorder
	ErrNotStarted = errors.New("recorder not started")
	// ErrAlreadyStarted is returned by Start while a file is still open
	ErrAlreadyStarted = errors.New("recorder already started")
)

// ErrorKind classifies recorder I/O failures
type ErrorKind int

const (
	// FileError means the output path could not be created or opened
	FileError ErrorKind = iota
	// WavError means the WAV container could not be written
	WavError
)

// String returns the string representation of the kind
func (k ErrorKind) String() string {
	switch k {
	case FileError:
		return "file error"
	case WavError:
		return "wav error"
	default:
		return "unknown error"
	}
}

// Error wraps an I/O failure with its kind
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// State represents the current recorder state
type State int

const (
	// Idle means no file is open
	Idle State = iota
	// Active means a file is open and accepting samples
	Active
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	default:
		return "Unknown"
	}
}

// Result describes a finished recording
type Result struct {
	SamplesWritten uint64 `json:"samples_written"`
	DurationMs     uint64 `json:"duration_ms"`
	// Peak is the highest absolute sample of the take
	Peak float32 `json:"peak"`
}

// Recorder appends float samples to a single WAV file at a time
// and tracks the running peak level
type Recorder struct {
	mu             sync.Mutex
	sampleRate     int
	channels       int
	file           *os.File
	writer         *codec.Writer
	path           string
	samplesWritten uint64
	peak           float32
}

// New creates an idle recorder for the given input format
func New(sampleRate, channels int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Start opens outputPath, creating parent directories as needed,
// and resets the sample count and peak level
func (r *Recorder) Start(outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, r.path)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return &Error{Kind: FileError, Err: err}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return &Error{Kind: FileError, Err: err}
	}

	writer, err := codec.NewWriter(file, r.sampleRate, r.channels)
	if err != nil {
		file.Close()
		os.Remove(outputPath)
		return &Error{Kind: WavError, Err: err}
	}

	r.file = file
	r.writer = writer
	r.path = outputPath
	r.samplesWritten = 0
	r.peak = 0

	return nil
}

// WriteSamples appends samples in order, blocking until the recorder is free
func (r *Recorder) WriteSamples(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.writeLocked(samples)
}

// TryWriteSamples is WriteSamples without waiting: if another goroutine holds
// the recorder the buffer is dropped and written is false.
// It is safe to call from an audio callback.
func (r *Recorder) TryWriteSamples(samples []float32) (written bool, err error) {
	if !r.mu.TryLock() {
		return false, nil
	}
	defer r.mu.Unlock()

	if err := r.writeLocked(samples); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Recorder) writeLocked(samples []float32) error {
	if r.writer == nil {
		return ErrNotStarted
	}

	if err := r.writer.Write(samples); err != nil {
		return &Error{Kind: WavError, Err: err}
	}

	for _, s := range samples {
		if abs := float32(math.Abs(float64(s))); abs > r.peak {
			r.peak = abs
		}
	}
	r.samplesWritten += uint64(len(samples))

	return nil
}

// Stop finalizes the WAV header, closes the file and returns the result
func (r *Recorder) Stop() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer == nil {
		return Result{}, ErrNotStarted
	}

	writer, file := r.writer, r.file
	r.writer, r.file, r.path = nil, nil, ""

	if err := writer.Close(); err != nil {
		file.Close()
		return Result{}, &Error{Kind: WavError, Err: err}
	}
	if err := file.Close(); err != nil {
		return Result{}, &Error{Kind: FileError, Err: err}
	}

	return Result{
		SamplesWritten: r.samplesWritten,
		DurationMs:     codec.DurationMs(r.samplesWritten, r.channels, r.sampleRate),
		Peak:           r.peak,
	}, nil
}

// State returns Active while a file is open
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.writer != nil {
		return Active
	}
	return Idle
}

// IsActive reports whether a file is open
func (r *Recorder) IsActive() bool {
	return r.State() == Active
}

// Path returns the open file path, or "" when idle
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// SamplesWritten returns the sample count since Start
func (r *Recorder) SamplesWritten() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samplesWritten
}

// SampleRate returns the rate recordings are written at
func (r *Recorder) SampleRate() int {
	return r.sampleRate
}
