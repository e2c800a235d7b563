package permissions

// Status represents the state of the microphone permission
type Status int

const (
	// NotDetermined means the user hasn't been asked yet
	NotDetermined Status = 0
	// Restricted means the permission is restricted by parental controls
	Restricted Status = 1
	// Denied means the user has explicitly denied the permission
	Denied Status = 2
	// Authorized means the user has authorized the permission
	Authorized Status = 3
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "NotDetermined"
	case Restricted:
		return "Restricted"
	case Denied:
		return "Denied"
	case Authorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Message returns a human-readable explanation of the status
func (s Status) Message() string {
	switch s {
	case NotDetermined:
		return "Microphone permission not yet requested"
	case Restricted:
		return "Microphone restricted by system policy"
	case Denied:
		return "Microphone access denied"
	case Authorized:
		return "Microphone access granted"
	default:
		return "Unknown permission status"
	}
}

// Blocks reports whether the status stops the input stream from receiving audio.
// NotDetermined does not block: the system asks when the stream opens.
func (s Status) Blocks() bool {
	return s == Restricted || s == Denied
}

// Microphone returns the microphone permission of this process
func Microphone() Status {
	return microphone()
}

// OpenMicrophoneSettings opens the system's microphone privacy settings
func OpenMicrophoneSettings() error {
	return openMicrophoneSettings()
}
