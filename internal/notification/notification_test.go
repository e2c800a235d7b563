package notification

import (
	"errors"
	"strings"
	"testing"
)

// fakeRunner records the last command instead of running it
type fakeRunner struct {
	name string
	args []string
	err  error
}

func (f *fakeRunner) run(name string, args ...string) error {
	f.name = name
	f.args = args
	return f.err
}

func newTestManager(goos string) (*Manager, *fakeRunner) {
	runner := &fakeRunner{}
	m := New("TestApp")
	m.goos = goos
	m.run = runner.run
	return m, runner
}

func TestNew(t *testing.T) {
	m := New("TestApp")

	if m == nil {
		t.Fatal("Expected notification manager to be created")
	}

	if m.appName != "TestApp" {
		t.Errorf("Expected appName to be TestApp, got %s", m.appName)
	}
}

func TestSendDarwin(t *testing.T) {
	m, runner := newTestManager("darwin")

	if err := m.RecordingStarted(0); err != nil {
		t.Fatalf("RecordingStarted failed: %v", err)
	}

	if runner.name != "osascript" {
		t.Errorf("Expected osascript, got %s", runner.name)
	}
	expected := `display notification "Recording track 1" with title "TestApp"`
	if len(runner.args) != 2 || runner.args[1] != expected {
		t.Errorf("Expected script %q, got %v", expected, runner.args)
	}
}

func TestSendLinux(t *testing.T) {
	m, runner := newTestManager("linux")

	if err := m.RecordingFailed("disk full"); err != nil {
		t.Fatalf("RecordingFailed failed: %v", err)
	}

	if runner.name != "notify-send" {
		t.Errorf("Expected notify-send, got %s", runner.name)
	}
	if runner.args[0] != "--urgency=critical" {
		t.Errorf("Expected critical urgency, got %s", runner.args[0])
	}
	if runner.args[2] != "Recording failed: disk full" {
		t.Errorf("Unexpected message %q", runner.args[2])
	}
}

func TestSendUnsupported(t *testing.T) {
	m, runner := newTestManager("plan9")

	err := m.RecordingStopped(1500)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
	if runner.name != "" {
		t.Error("Expected no command to run")
	}
}

func TestRecordingStoppedMessage(t *testing.T) {
	m, runner := newTestManager("linux")

	if err := m.RecordingStopped(1500); err != nil {
		t.Fatalf("RecordingStopped failed: %v", err)
	}
	if runner.args[2] != "Recording stopped (1.5 s)" {
		t.Errorf("Unexpected message %q", runner.args[2])
	}
}

func TestSendCommandError(t *testing.T) {
	m, runner := newTestManager("linux")
	runner.err = errors.New("not found")

	if err := m.AudioUnavailable(); err == nil {
		t.Error("Expected error when the command fails")
	}
}

func TestSendNilNotification(t *testing.T) {
	m, _ := newTestManager("darwin")

	if err := m.Send(nil); err == nil {
		t.Error("Expected error when sending nil notification")
	}
}

func TestAppleScriptQuoting(t *testing.T) {
	m, runner := newTestManager("darwin")

	err := m.Send(&Notification{Title: `Say "hi"`, Message: `C:\take.wav`, Type: TypeInfo})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	script := runner.args[1]
	if !strings.Contains(script, `"Say \"hi\""`) {
		t.Errorf("Expected escaped title, got %s", script)
	}
	if !strings.Contains(script, `"C:\\take.wav"`) {
		t.Errorf("Expected escaped backslash, got %s", script)
	}
}
