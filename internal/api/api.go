package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yok-tottii/muze-audio/internal/audio"
	"github.com/yok-tottii/muze-audio/internal/config"
	"github.com/yok-tottii/muze-audio/internal/edit"
	"github.com/yok-tottii/muze-audio/internal/engine"
	"github.com/yok-tottii/muze-audio/internal/hotkey"
	"github.com/yok-tottii/muze-audio/internal/logger"
	"github.com/yok-tottii/muze-audio/internal/permissions"
)

// Engine is the part of *engine.Engine the API drives
type Engine interface {
	Play() error
	Pause() error
	Stop() error
	Seek(positionMs uint64) error
	LoadTracks(tracks []engine.TrackInfo) error
	StartRecording(trackIndex int, outputPath string) error
	StopRecording() error
	PollEvent() (engine.Event, bool)

	IsPlaying() bool
	IsRecording() bool
	RecordingTrack() (int, bool)
	PositionMs() uint64
	InputLevel() float32
	SampleRate() int
	TrackCount() int
	Available() bool
	DroppedSamples() uint64
}

// Logger is the subset of *logger.Logger the handlers write to
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// maxEventsPerPoll bounds one GET /api/events response
const maxEventsPerPoll = 256

// Handler manages API endpoints
type Handler struct {
	config           *config.Config
	configPath       string
	engine           Engine
	backend          audio.Backend
	newBackend       func(name string) (audio.Backend, error)
	microphone       func() permissions.Status
	openSettings     func() error
	log              Logger
	onHotkeysChanged func() error // Callback to re-register hotkeys in the main app
}

// New creates a new API handler. onHotkeysChanged may be nil.
func New(cfg *config.Config, eng Engine, onHotkeysChanged func() error) *Handler {
	return &Handler{
		config:           cfg,
		configPath:       config.GetConfigPath(),
		engine:           eng,
		newBackend:       audio.NewBackend,
		microphone:       permissions.Microphone,
		openSettings:     permissions.OpenMicrophoneSettings,
		log:              logger.Discard(),
		onHotkeysChanged: onHotkeysChanged,
	}
}

// SetBackend sets the backend used to list devices.
// This is called after the backend is initialized in main.go
func (h *Handler) SetBackend(backend audio.Backend) {
	h.backend = backend
}

// SetLogger replaces the discarding default logger
func (h *Handler) SetLogger(log Logger) {
	if log != nil {
		h.log = log
	}
}

// SetConfigPath changes where PUT /api/settings saves
func (h *Handler) SetConfigPath(path string) {
	h.configPath = path
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/transport/play", h.handlePlay)
	mux.HandleFunc("/api/transport/pause", h.handlePause)
	mux.HandleFunc("/api/transport/stop", h.handleStop)
	mux.HandleFunc("/api/transport/seek", h.handleSeek)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/tracks/load", h.handleLoadTracks)
	mux.HandleFunc("/api/recording/start", h.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", h.handleRecordingStop)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/edit/splice", h.handleSplice)
	mux.HandleFunc("/api/edit/delete-region", h.handleDeleteRegion)
	mux.HandleFunc("/api/edit/export-mix", h.handleExportMix)
	mux.HandleFunc("/api/devices", h.handleDevices)
	mux.HandleFunc("/api/permissions", h.handlePermissions)
	mux.HandleFunc("/api/permissions/open-settings", h.handleOpenSettings)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/hotkey/validate", h.handleHotkeyValidate)
	mux.HandleFunc("/api/hotkey/register", h.handleHotkeyRegister)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeCommandResult reports the outcome of queueing an engine command.
// A full queue drops the command without failing the request.
func writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, engine.ErrQueueFull):
		writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
	case errors.Is(err, engine.ErrUnavailable), errors.Is(err, engine.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handlePlay handles POST /api/transport/play
func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeCommandResult(w, h.engine.Play())
}

// handlePause handles POST /api/transport/pause
func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeCommandResult(w, h.engine.Pause())
}

// handleStop handles POST /api/transport/stop
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeCommandResult(w, h.engine.Stop())
}

// handleSeek handles POST /api/transport/seek
func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		PositionMs *uint64 `json:"position_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.PositionMs == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	writeCommandResult(w, h.engine.Seek(*request.PositionMs))
}

// State is the transport snapshot returned by GET /api/state
type State struct {
	Playing        bool    `json:"playing"`
	Recording      bool    `json:"recording"`
	RecordingTrack *int    `json:"recording_track"`
	PositionMs     uint64  `json:"position_ms"`
	InputLevel     float32 `json:"input_level"`
	SampleRate     int     `json:"sample_rate"`
	TrackCount     int     `json:"track_count"`
	AudioAvailable bool    `json:"audio_available"`
	DroppedSamples uint64  `json:"dropped_samples"`
}

// handleState handles GET /api/state
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	state := State{
		Playing:        h.engine.IsPlaying(),
		Recording:      h.engine.IsRecording(),
		PositionMs:     h.engine.PositionMs(),
		InputLevel:     h.engine.InputLevel(),
		SampleRate:     h.engine.SampleRate(),
		TrackCount:     h.engine.TrackCount(),
		AudioAvailable: h.engine.Available(),
		DroppedSamples: h.engine.DroppedSamples(),
	}
	if track, ok := h.engine.RecordingTrack(); ok {
		state.RecordingTrack = &track
	}

	writeJSON(w, http.StatusOK, state)
}

// TrackLoadInfo is one track of a POST /api/tracks/load request.
// AudioFile is relative to the project unless absolute.
type TrackLoadInfo struct {
	AudioFile *string `json:"audio_file"`
	Volume    float32 `json:"volume"`
	Muted     bool    `json:"muted"`
}

// projectPath resolves a request's project path, falling back to the
// configured projects directory
func (h *Handler) projectPath(path string) (string, error) {
	if path == "" {
		return h.config.GetProjectsPath()
	}
	return config.ExpandPath(path)
}

// resolveTracks drops tracks without a file and makes the rest absolute
func resolveTracks(projectPath string, tracks []TrackLoadInfo) []engine.TrackInfo {
	infos := make([]engine.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		if t.AudioFile == nil || *t.AudioFile == "" {
			continue
		}
		path := *t.AudioFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectPath, path)
		}
		infos = append(infos, engine.TrackInfo{Path: path, Volume: t.Volume, Muted: t.Muted})
	}
	return infos
}

// handleLoadTracks handles POST /api/tracks/load
func (h *Handler) handleLoadTracks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		ProjectPath string          `json:"project_path"`
		Tracks      []TrackLoadInfo `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	projectPath, err := h.projectPath(request.ProjectPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid project path: %v", err), http.StatusBadRequest)
		return
	}

	writeCommandResult(w, h.engine.LoadTracks(resolveTracks(projectPath, request.Tracks)))
}

// RecordingPath names a new take for trackIndex under the project's audio
// directory. The suffix is the first group of a random UUID.
func RecordingPath(projectPath string, trackIndex int) (filename, path string) {
	id := uuid.NewString()
	filename = fmt.Sprintf("track_%d_%s.wav", trackIndex, id[:strings.IndexByte(id, '-')])
	return filename, filepath.Join(projectPath, "audio", filename)
}

// handleRecordingStart handles POST /api/recording/start
func (h *Handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		ProjectPath string `json:"project_path"`
		TrackIndex  int    `json:"track_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.TrackIndex < 0 {
		http.Error(w, "track_index must not be negative", http.StatusBadRequest)
		return
	}

	projectPath, err := h.projectPath(request.ProjectPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid project path: %v", err), http.StatusBadRequest)
		return
	}

	filename, path := RecordingPath(projectPath, request.TrackIndex)

	if err := h.engine.StartRecording(request.TrackIndex, path); err != nil {
		writeCommandResult(w, err)
		return
	}

	h.log.Info("Recording track %d to %s", request.TrackIndex, path)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"filename": filename,
		"path":     path,
	})
}

// handleRecordingStop handles POST /api/recording/stop
func (h *Handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	writeCommandResult(w, h.engine.StopRecording())
}

// EventMessage wraps an engine event for JSON consumers
type EventMessage struct {
	Type string       `json:"type"`
	Data engine.Event `json:"data"`
}

// handleEvents handles GET /api/events
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	events := []EventMessage{}
	for len(events) < maxEventsPerPoll {
		ev, ok := h.engine.PollEvent()
		if !ok {
			break
		}
		events = append(events, EventMessage{Type: ev.Type(), Data: ev})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// writeEditResult reports an offline edit
func (h *Handler) writeEditResult(w http.ResponseWriter, op string, durationMs uint64, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]uint64{"duration_ms": durationMs})
	case errors.Is(err, edit.ErrInvalidRegion), errors.Is(err, edit.ErrNoTracks):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("%s failed: %v", op, err)
		http.Error(w, fmt.Sprintf("%s failed: %v", op, err), http.StatusInternalServerError)
	}
}

// handleSplice handles POST /api/edit/splice
func (h *Handler) handleSplice(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		OriginalPath     string `json:"original_path"`
		NewRecordingPath string `json:"new_recording_path"`
		StartMs          uint64 `json:"start_ms"`
		OutputPath       string `json:"output_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.OriginalPath == "" || request.NewRecordingPath == "" || request.OutputPath == "" {
		http.Error(w, "original_path, new_recording_path and output_path are required", http.StatusBadRequest)
		return
	}

	durationMs, err := edit.Splice(request.OriginalPath, request.NewRecordingPath, request.StartMs, request.OutputPath)
	h.writeEditResult(w, "splice", durationMs, err)
}

// handleDeleteRegion handles POST /api/edit/delete-region
func (h *Handler) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		Path       string `json:"path"`
		StartMs    uint64 `json:"start_ms"`
		EndMs      uint64 `json:"end_ms"`
		OutputPath string `json:"output_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.Path == "" || request.OutputPath == "" {
		http.Error(w, "path and output_path are required", http.StatusBadRequest)
		return
	}

	durationMs, err := edit.DeleteRegion(request.Path, request.StartMs, request.EndMs, request.OutputPath)
	h.writeEditResult(w, "delete region", durationMs, err)
}

// handleExportMix handles POST /api/edit/export-mix
func (h *Handler) handleExportMix(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		Tracks     []edit.MixTrack `json:"tracks"`
		OutputPath string          `json:"output_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.OutputPath == "" {
		http.Error(w, "output_path is required", http.StatusBadRequest)
		return
	}

	durationMs, err := edit.ExportMix(request.Tracks, request.OutputPath)
	h.writeEditResult(w, "export mix", durationMs, err)
}

// Device represents an audio device
type Device struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	InputChannels  int     `json:"input_channels"`
	OutputChannels int     `json:"output_channels"`
	SampleRate     float64 `json:"sample_rate"`
	IsDefaultIn    bool    `json:"is_default_input"`
	IsDefaultOut   bool    `json:"is_default_output"`
}

// systemDefault is listed when no backend can enumerate devices
var systemDefault = []Device{
	{ID: audio.DefaultDevice, Name: "System default", IsDefaultIn: true, IsDefaultOut: true},
}

// convertAudioDevices converts audio.Device slice to api.Device slice
func convertAudioDevices(audioDevices []audio.Device) []Device {
	devices := make([]Device, 0, len(audioDevices))
	for _, dev := range audioDevices {
		devices = append(devices, Device{
			ID:             dev.ID,
			Name:           dev.Name,
			InputChannels:  dev.MaxInputChannels,
			OutputChannels: dev.MaxOutputChannels,
			SampleRate:     dev.DefaultSampleRate,
			IsDefaultIn:    dev.IsDefaultInput,
			IsDefaultOut:   dev.IsDefaultOutput,
		})
	}
	return devices
}

// handleDevices handles GET /api/devices
func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	var devices []Device

	if h.backend != nil {
		audioDevices, err := h.backend.ListDevices()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to list audio devices: %v", err), http.StatusInternalServerError)
			return
		}
		devices = convertAudioDevices(audioDevices)
	} else {
		// No running backend; open one just to list devices so they can be
		// chosen before the engine works
		devices = systemDefault
		cfg := h.config.Clone()
		if tmp, err := h.newBackend(cfg.AudioBackend); err != nil {
			h.log.Warn("Failed to open %s backend for device listing: %v", cfg.AudioBackend, err)
		} else {
			defer tmp.Close()
			if audioDevices, err := tmp.ListDevices(); err == nil {
				devices = convertAudioDevices(audioDevices)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
	})
}

// Permission represents a system permission status
type Permission struct {
	Granted bool   `json:"granted"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handlePermissions handles GET /api/permissions
func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status := h.microphone()
	writeJSON(w, http.StatusOK, map[string]Permission{
		"microphone": {
			Granted: status == permissions.Authorized,
			Status:  status.String(),
			Message: status.Message(),
		},
	})
}

// handleOpenSettings handles POST /api/permissions/open-settings
func (h *Handler) handleOpenSettings(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.openSettings(); err != nil {
		h.log.Warn("Failed to open microphone settings: %v", err)
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSettings handles GET and PUT /api/settings
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getSettings(w, r)
	case http.MethodPut:
		h.putSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// getSettings returns the current configuration
func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Clone())
}

// putSettings updates the configuration and saves it
func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.config.Update(updates); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if _, ok := updates["hotkeys"]; ok {
		if status, ok := h.reloadHotkeys(); !ok {
			writeJSON(w, http.StatusOK, status)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

// reloadHotkeys re-registers hotkeys after a saved change. On failure it
// returns the partial-success body to send instead.
func (h *Handler) reloadHotkeys() (map[string]string, bool) {
	if h.onHotkeysChanged == nil {
		return nil, true
	}
	if err := h.onHotkeysChanged(); err != nil {
		h.log.Warn("Failed to reload hotkeys: %v", err)
		return map[string]string{
			"status":  "partial",
			"message": fmt.Sprintf("Hotkeys saved but reload failed: %v. Please restart the application.", err),
		}, false
	}
	return nil, true
}

// handleHotkeyValidate handles POST /api/hotkey/validate
func (h *Handler) handleHotkeyValidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request config.HotkeyConfig
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	binding, err := hotkey.FromConfig(hotkey.TogglePlay, request)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conflictNames := []string{}
	for _, c := range hotkey.CheckConflicts(binding.Modifiers, binding.Key) {
		conflictNames = append(conflictNames, c.Name)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"display":   hotkey.FormatHotkey(binding.Modifiers, binding.Key),
		"conflicts": conflictNames,
	})
}

// handleHotkeyRegister handles POST /api/hotkey/register, replacing the
// binding of one action
func (h *Handler) handleHotkeyRegister(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		Action string              `json:"action"` // "toggle_play", "stop" or "record"
		Hotkey config.HotkeyConfig `json:"hotkey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if request.Hotkey.Key == "" {
		http.Error(w, "Key cannot be empty", http.StatusBadRequest)
		return
	}
	hk := request.Hotkey
	if !hk.Ctrl && !hk.Shift && !hk.Alt && !hk.Cmd {
		http.Error(w, "At least one modifier key (Ctrl/Shift/Alt/Cmd) is required", http.StatusBadRequest)
		return
	}

	hotkeys := h.config.Clone().Hotkeys
	switch request.Action {
	case "toggle_play":
		hotkeys.TogglePlay = hk
	case "stop":
		hotkeys.Stop = hk
	case "record":
		hotkeys.Record = hk
	default:
		http.Error(w, fmt.Sprintf("Unknown action %q", request.Action), http.StatusBadRequest)
		return
	}

	if _, err := hotkey.BindingsFromConfig(hotkeys); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.config.Update(map[string]interface{}{"hotkeys": hotkeysUpdate(hotkeys)}); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.config.Save(h.configPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save config: %v", err), http.StatusInternalServerError)
		return
	}

	if status, ok := h.reloadHotkeys(); !ok {
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Hotkey registered and applied successfully",
	})
}

// hotkeysUpdate renders hotkeys in the shape Config.Update accepts
func hotkeysUpdate(c config.HotkeysConfig) map[string]interface{} {
	one := func(hk config.HotkeyConfig) map[string]interface{} {
		return map[string]interface{}{
			"ctrl": hk.Ctrl, "shift": hk.Shift, "alt": hk.Alt, "cmd": hk.Cmd, "key": hk.Key,
		}
	}
	return map[string]interface{}{
		"enabled":     c.Enabled,
		"toggle_play": one(c.TogglePlay),
		"stop":        one(c.Stop),
		"record":      one(c.Record),
	}
}
