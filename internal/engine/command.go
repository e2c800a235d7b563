package engine

import "github.com/yok-tottii/muze-audio/internal/recording"

// Command is a control request processed in order by the engine goroutine
type Command interface {
	isCommand()
}

// Play starts the transport
type Play struct{}

// Pause stops the transport and keeps the playhead
type Pause struct{}

// Stop stops the transport, rewinds, and finalizes any active recording
type Stop struct{}

// Seek moves the playhead without changing the transport
type Seek struct {
	PositionMs uint64
}

// LoadTracks decodes and publishes a new track set
type LoadTracks struct {
	Tracks []TrackInfo
}

// StartRecording opens OutputPath and starts capturing for TrackIndex
type StartRecording struct {
	TrackIndex int
	OutputPath string
}

// StopRecording finalizes the active recording
type StopRecording struct{}

// Shutdown force-stops any recording and ends the command loop
type Shutdown struct{}

func (Play) isCommand()           {}
func (Pause) isCommand()          {}
func (Stop) isCommand()           {}
func (Seek) isCommand()           {}
func (LoadTracks) isCommand()     {}
func (StartRecording) isCommand() {}
func (StopRecording) isCommand()  {}
func (Shutdown) isCommand()       {}

// TrackInfo names an audio file to load. Path must be absolute.
type TrackInfo struct {
	Path   string  `json:"path"`
	Volume float32 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// Event is an asynchronous notification from the engine
type Event interface {
	// Type names the event for JSON consumers
	Type() string
}

// RecordingStarted is sent once the output file is open
type RecordingStarted struct {
	TrackIndex int `json:"track_index"`
}

// RecordingStopped carries the result of a finalized recording
type RecordingStopped struct {
	Result recording.Result `json:"result"`
}

// RecordingError reports a failed start, write or stop
type RecordingError struct {
	Message string `json:"message"`
}

// InputLevel is the periodic input peak
type InputLevel struct {
	Level float32 `json:"level"`
}

func (RecordingStarted) Type() string { return "recording_started" }
func (RecordingStopped) Type() string { return "recording_stopped" }
func (RecordingError) Type() string   { return "recording_error" }
func (InputLevel) Type() string       { return "input_level" }
