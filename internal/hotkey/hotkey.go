package hotkey

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/hotkey"
)

// Action is the transport operation bound to a hotkey
type Action int

const (
	// TogglePlay switches between play and pause
	TogglePlay Action = iota
	// StopTransport stops playback and any recording
	StopTransport
	// ToggleRecord starts or stops recording on the armed track
	ToggleRecord
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case TogglePlay:
		return "TogglePlay"
	case StopTransport:
		return "Stop"
	case ToggleRecord:
		return "ToggleRecord"
	default:
		return "Unknown"
	}
}

// Event represents a hotkey press
type Event struct {
	Action Action
}

// Binding ties one key combination to an action
type Binding struct {
	Action    Action
	Modifiers []hotkey.Modifier
	Key       hotkey.Key
}

// String formats the binding for logs
func (b Binding) String() string {
	return fmt.Sprintf("%s=%s", b.Action, FormatHotkey(b.Modifiers, b.Key))
}

// Manager manages global hotkey registration and events
type Manager struct {
	hks       []*hotkey.Hotkey
	bindings  []Binding
	eventChan chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// New creates a hotkey manager with nothing registered
func New() *Manager {
	return &Manager{
		eventChan: make(chan Event, 10),
		stopChan:  make(chan struct{}),
	}
}

// Register registers every binding with the system. If any registration
// fails the ones already made are undone.
func (m *Manager) Register(bindings []Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hotkeys are already running, call Close() first")
	}
	if len(bindings) == 0 {
		return fmt.Errorf("no hotkeys to register")
	}
	if err := checkDuplicates(bindings); err != nil {
		return err
	}

	// Recreate channels (they may have been closed by a previous Close())
	m.stopChan = make(chan struct{})
	m.eventChan = make(chan Event, 10)

	hks := make([]*hotkey.Hotkey, 0, len(bindings))
	for _, b := range bindings {
		hk := hotkey.New(b.Modifiers, b.Key)
		if err := hk.Register(); err != nil {
			for _, registered := range hks {
				registered.Unregister()
			}
			return fmt.Errorf("failed to register hotkey %s: %w", b, err)
		}
		hks = append(hks, hk)
	}

	m.hks = hks
	m.bindings = append([]Binding(nil), bindings...)
	m.running = true

	for i, hk := range hks {
		m.wg.Add(1)
		go m.listen(hk, bindings[i].Action)
	}

	return nil
}

// checkDuplicates rejects two actions on the same combination
func checkDuplicates(bindings []Binding) error {
	for i := range bindings {
		for j := i + 1; j < len(bindings); j++ {
			a, b := bindings[i], bindings[j]
			if hotkeyMatches(a.Modifiers, a.Key, b.Modifiers, b.Key) {
				return fmt.Errorf("%s and %s share %s", a.Action, b.Action, FormatHotkey(a.Modifiers, a.Key))
			}
		}
	}
	return nil
}

// listen forwards key presses for one hotkey
func (m *Manager) listen(hk *hotkey.Hotkey, action Action) {
	defer m.wg.Done()

	for {
		select {
		case <-hk.Keydown():
			// Drop the press rather than stall the listener
			select {
			case m.eventChan <- Event{Action: action}:
			default:
			}

		case <-m.stopChan:
			return
		}
	}
}

// Events returns the event channel for receiving hotkey events
func (m *Manager) Events() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventChan
}

// Close unregisters all hotkeys and stops listening
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	close(m.stopChan)
	m.wg.Wait()

	// Keep going on failure so the manager can always be registered again
	var errs []error
	for _, hk := range m.hks {
		if err := hk.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	m.hks = nil
	m.bindings = nil

	// Close event channel to notify consumers of shutdown
	close(m.eventChan)
	m.running = false

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to unregister hotkeys: %w", err)
	}
	return nil
}

// IsRunning returns whether the hotkeys are currently registered
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Bindings returns a deep copy of the registered bindings, empty once closed
func (m *Manager) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Binding, len(m.bindings))
	for i, b := range m.bindings {
		out[i] = b
		out[i].Modifiers = append([]hotkey.Modifier(nil), b.Modifiers...)
	}
	return out
}
