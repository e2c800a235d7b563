package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yok-tottii/muze-audio/internal/api"
	"github.com/yok-tottii/muze-audio/internal/audio"
	"github.com/yok-tottii/muze-audio/internal/config"
	"github.com/yok-tottii/muze-audio/internal/engine"
	"github.com/yok-tottii/muze-audio/internal/hotkey"
	"github.com/yok-tottii/muze-audio/internal/logger"
	"github.com/yok-tottii/muze-audio/internal/notification"
	"github.com/yok-tottii/muze-audio/internal/permissions"
	"github.com/yok-tottii/muze-audio/internal/server"
	"golang.design/x/hotkey/mainthread"
)

const version = "0.1.0"

// App holds all application state
type App struct {
	logger     *logger.Logger
	config     *config.Config
	backend    audio.Backend
	engine     *engine.Engine
	httpServer *server.Server
	apiHandler *api.Handler
	notifier   *notification.Manager

	hotkeyMu  sync.Mutex
	hotkeyMgr *hotkey.Manager
}

func main() {
	// Global hotkeys need the OS main thread on macOS
	mainthread.Init(run)
}

func run() {
	app := &App{}

	var err error
	app.logger, err = logger.New(logger.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer app.logger.Close()

	app.logger.Info("muze-audio v%s starting", version)

	configPath := config.GetConfigPath()
	app.config, err = config.Load(configPath)
	if err != nil {
		app.logger.Error("Failed to load config: %v", err)
		app.config = config.DefaultConfig()
	} else if err := app.config.Validate(); err != nil {
		app.logger.Warn("Invalid config, using defaults: %v", err)
		app.config = config.DefaultConfig()
	}
	app.logger.Info("Loaded config from %s", configPath)

	if level, err := logger.ParseLevel(app.config.LogLevel); err == nil {
		app.logger.SetLevel(level)
	}

	app.notifier = notification.New("muze-audio")

	app.startEngine()
	defer app.shutdown()
	go app.watchRecordingEvents(app.engine.Subscribe(16))

	app.httpServer = server.New(server.Config{
		Port:            app.config.ServerPort,
		ReadTimeout:     server.DefaultConfig().ReadTimeout,
		WriteTimeout:    server.DefaultConfig().WriteTimeout,
		ShutdownTimeout: server.DefaultConfig().ShutdownTimeout,
		Logger:          app.logger,
	})
	app.apiHandler = api.New(app.config, app.engine, app.ReloadHotkeys)
	app.apiHandler.SetLogger(app.logger)
	app.apiHandler.SetConfigPath(configPath)
	if app.backend != nil {
		app.apiHandler.SetBackend(app.backend)
	}
	app.apiHandler.RegisterRoutes(app.httpServer.GetMux())

	if err := app.httpServer.Start(); err != nil {
		app.logger.Error("Failed to start HTTP server: %v", err)
		return
	}

	if app.config.Clone().Hotkeys.Enabled {
		if err := app.ReloadHotkeys(); err != nil {
			app.logger.Warn("Hotkeys disabled: %v", err)
		}
	}

	fmt.Println("==========================================================")
	fmt.Printf("muze-audio v%s\n", version)
	fmt.Printf("Control API: %s\n", app.httpServer.URL())
	if app.engine.Available() {
		fmt.Printf("Audio: %s @ %d Hz\n", app.backend.Name(), app.engine.SampleRate())
	} else {
		fmt.Println("Audio: unavailable, recording disabled")
	}
	for _, b := range app.currentBindings() {
		fmt.Printf("Hotkey: %s\n", b)
	}
	fmt.Println("Quit: Ctrl+C")
	fmt.Println("==========================================================")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	app.logger.Info("Received shutdown signal")
}

// engineConfig maps the saved settings onto the engine
func engineConfig(cfg *config.Config, log *logger.Logger) engine.Config {
	c := cfg.Clone()
	ec := engine.DefaultConfig()

	ec.InputDeviceID = c.InputDeviceID
	ec.OutputDeviceID = c.OutputDeviceID
	if c.FramesPerBuffer > 0 {
		ec.FramesPerBuffer = c.FramesPerBuffer
	}
	if c.CommandQueueSize > 0 {
		ec.CommandQueueSize = c.CommandQueueSize
	}
	if c.EventQueueSize > 0 {
		ec.EventQueueSize = c.EventQueueSize
	}
	ec.LevelInterval = time.Duration(c.LevelIntervalMs) * time.Millisecond

	if latency, err := audio.ParseLatency(c.Latency); err != nil {
		log.Warn("%v, using %s", err, ec.Latency)
	} else {
		ec.Latency = latency
	}
	if mode, err := engine.ParseCaptureMode(c.CaptureMode); err != nil {
		log.Warn("%v, using %s", err, ec.Capture)
	} else {
		ec.Capture = mode
	}

	return ec
}

// startEngine opens the configured backend. Without working hardware the
// app keeps running with a disabled engine so edits and settings still work.
func (a *App) startEngine() {
	backendName := a.config.Clone().AudioBackend

	if mic := permissions.Microphone(); mic.Blocks() {
		a.logger.Warn("%s, recordings will be silent", mic.Message())
		a.notify(a.notifier.MicrophonePermissionDenied)
	}

	backend, err := audio.NewBackend(backendName)
	if err != nil {
		a.logger.Error("Failed to initialize %s backend: %v", backendName, err)
		a.engine = engine.Disabled()
		a.notify(a.notifier.AudioUnavailable)
		return
	}

	eng, err := engine.New(backend, engineConfig(a.config, a.logger), a.logger)
	if err != nil {
		if errors.Is(err, engine.ErrDevice) {
			a.logger.Warn("No usable audio device: %v", err)
		} else {
			a.logger.Error("Failed to start audio streams: %v", err)
		}
		backend.Close()
		a.engine = engine.Disabled()
		a.notify(a.notifier.AudioUnavailable)
		return
	}

	a.backend = backend
	a.engine = eng
	a.logger.Info("Audio engine running on %s at %d Hz (capture %s)",
		backend.Name(), eng.SampleRate(), a.config.Clone().CaptureMode)
}

// shutdown stops everything in reverse order of startup
func (a *App) shutdown() {
	a.logger.Info("Shutting down")

	a.hotkeyMu.Lock()
	if a.hotkeyMgr != nil {
		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Error("Failed to unregister hotkeys: %v", err)
		}
	}
	a.hotkeyMu.Unlock()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(); err != nil {
			a.logger.Error("Failed to stop HTTP server: %v", err)
		}
	}

	// Finalizes any open recording before the streams close
	if err := a.engine.Close(); err != nil {
		a.logger.Error("Failed to close audio engine: %v", err)
	}

	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Error("Failed to close audio backend: %v", err)
		}
	}

	a.logger.Info("Shutdown complete")
}

// ReloadHotkeys registers the configured hotkeys, replacing any already
// registered. If the new set cannot be registered the old one is restored.
func (a *App) ReloadHotkeys() error {
	a.hotkeyMu.Lock()
	defer a.hotkeyMu.Unlock()

	hotkeys := a.config.Clone().Hotkeys

	var previous []hotkey.Binding
	if a.hotkeyMgr != nil {
		previous = a.hotkeyMgr.Bindings()
		if err := a.hotkeyMgr.Close(); err != nil {
			a.logger.Error("Failed to unregister old hotkeys: %v", err)
			return fmt.Errorf("failed to unregister old hotkeys: %w", err)
		}
	} else {
		a.hotkeyMgr = hotkey.New()
	}

	if !hotkeys.Enabled {
		a.logger.Info("Hotkeys disabled")
		return nil
	}

	bindings, err := hotkey.BindingsFromConfig(hotkeys)
	if err != nil {
		return a.restoreHotkeys(previous, err)
	}

	for _, b := range bindings {
		if conflicts := hotkey.CheckConflicts(b.Modifiers, b.Key); len(conflicts) > 0 {
			a.logger.Warn("Hotkey %s overlaps %s", b, conflicts[0].Name)
		}
	}

	if err := a.hotkeyMgr.Register(bindings); err != nil {
		return a.restoreHotkeys(previous, err)
	}

	go a.hotkeyEventLoop(a.hotkeyMgr.Events())
	a.logger.Info("Registered %d hotkeys", len(bindings))
	return nil
}

// restoreHotkeys re-registers the previous bindings after a failed reload
func (a *App) restoreHotkeys(previous []hotkey.Binding, cause error) error {
	a.logger.Error("Failed to register hotkeys: %v", cause)
	if len(previous) == 0 {
		return cause
	}

	if err := a.hotkeyMgr.Register(previous); err != nil {
		a.logger.Error("Failed to restore previous hotkeys: %v", err)
		return fmt.Errorf("failed to register hotkeys: %w, rollback error: %v", cause, err)
	}
	go a.hotkeyEventLoop(a.hotkeyMgr.Events())
	a.logger.Warn("Restored previous hotkeys")
	return cause
}

func (a *App) currentBindings() []hotkey.Binding {
	a.hotkeyMu.Lock()
	defer a.hotkeyMu.Unlock()
	if a.hotkeyMgr == nil {
		return nil
	}
	return a.hotkeyMgr.Bindings()
}

// hotkeyEventLoop turns key presses into engine commands until the
// manager closes the channel
func (a *App) hotkeyEventLoop(events <-chan hotkey.Event) {
	for event := range events {
		a.logger.Debug("Hotkey %s pressed", event.Action)

		var err error
		switch event.Action {
		case hotkey.TogglePlay:
			if a.engine.IsPlaying() {
				err = a.engine.Pause()
			} else {
				err = a.engine.Play()
			}
		case hotkey.StopTransport:
			if a.engine.IsRecording() {
				err = a.engine.StopRecording()
			}
			if stopErr := a.engine.Stop(); err == nil {
				err = stopErr
			}
		case hotkey.ToggleRecord:
			err = a.toggleRecording()
		}

		if err != nil {
			a.logger.Warn("Hotkey %s failed: %v", event.Action, err)
		}
	}
}

// toggleRecording records onto track 0 of the default project directory.
// Notifications follow the engine's events, not the queued command.
func (a *App) toggleRecording() error {
	if a.engine.IsRecording() {
		return a.engine.StopRecording()
	}

	projectPath, err := a.config.GetProjectsPath()
	if err != nil {
		return err
	}

	_, path := api.RecordingPath(projectPath, 0)
	a.logger.Info("Recording track 0 to %s", path)
	if err := a.engine.StartRecording(0, path); err != nil {
		a.notify(func() error { return a.notifier.RecordingFailed(err.Error()) })
		return err
	}
	return nil
}

// recordingNotifier is the part of *notification.Manager driven by engine events
type recordingNotifier interface {
	RecordingStarted(trackIndex int) error
	RecordingStopped(durationMs uint64) error
	RecordingFailed(reason string) error
}

// notifyRecordingEvent sends the notification for a recording event.
// Other events are ignored.
func notifyRecordingEvent(n recordingNotifier, ev engine.Event) error {
	switch e := ev.(type) {
	case engine.RecordingStarted:
		return n.RecordingStarted(e.TrackIndex)
	case engine.RecordingStopped:
		return n.RecordingStopped(e.Result.DurationMs)
	case engine.RecordingError:
		return n.RecordingFailed(e.Message)
	}
	return nil
}

// watchRecordingEvents notifies about every take the engine confirms,
// whether it was started by a hotkey or over the API. It returns when the
// engine closes the channel.
func (a *App) watchRecordingEvents(events <-chan engine.Event) {
	for ev := range events {
		a.notify(func() error { return notifyRecordingEvent(a.notifier, ev) })
	}
}

// notify sends a desktop notification if they are enabled. Failures are
// logged at debug level.
func (a *App) notify(send func() error) {
	if !a.config.Clone().Notifications {
		return
	}
	if err := send(); err != nil {
		a.logger.Debug("Notification not sent: %v", err)
	}
}
