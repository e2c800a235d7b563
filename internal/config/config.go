package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config holds application configuration
type Config struct {
	AudioBackend     string        `json:"audio_backend"` // "portaudio" or "miniaudio"
	InputDeviceID    int           `json:"input_device_id"`
	OutputDeviceID   int           `json:"output_device_id"`
	Latency          string        `json:"latency"` // "low" or "high"
	FramesPerBuffer  int           `json:"frames_per_buffer"`
	CommandQueueSize int           `json:"command_queue_size"`
	EventQueueSize   int           `json:"event_queue_size"`
	CaptureMode      string        `json:"capture_mode"` // "ring" or "direct"
	LevelIntervalMs  int           `json:"level_interval_ms"`
	ProjectsPath     string        `json:"projects_path"`
	ServerPort       int           `json:"server_port"`
	LogLevel         string        `json:"log_level"`
	Notifications    bool          `json:"notifications"` // desktop notifications for recording events
	Hotkeys          HotkeysConfig `json:"hotkeys"`
	mu               sync.RWMutex
}

// HotkeyConfig holds one hotkey combination
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Cmd   bool   `json:"cmd"`
	Key   string `json:"key"` // e.g., "Space"
}

// HotkeysConfig holds the transport hotkeys
type HotkeysConfig struct {
	Enabled    bool         `json:"enabled"`
	TogglePlay HotkeyConfig `json:"toggle_play"`
	Stop       HotkeyConfig `json:"stop"`
	Record     HotkeyConfig `json:"record"`
}

var (
	validBackends     = []string{"portaudio", "miniaudio"}
	validLatencies    = []string{"low", "high"}
	validCaptureModes = []string{"ring", "direct"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AudioBackend:     "portaudio",
		InputDeviceID:    -1, // -1 means use system default device
		OutputDeviceID:   -1,
		Latency:          "low",
		FramesPerBuffer:  512,
		CommandQueueSize: 64,
		EventQueueSize:   64,
		CaptureMode:      "ring",
		LevelIntervalMs:  50,
		ProjectsPath:     "~/Music/muze-audio",
		ServerPort:       8765,
		LogLevel:         "info",
		Notifications:    true,
		Hotkeys: HotkeysConfig{
			Enabled:    true,
			TogglePlay: HotkeyConfig{Ctrl: true, Alt: true, Key: "Space"},
			Stop:       HotkeyConfig{Ctrl: true, Alt: true, Key: "S"},
			Record:     HotkeyConfig{Ctrl: true, Alt: true, Key: "R"},
		},
	}
}

// Load loads configuration from the specified path
func Load(path string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so fields missing from older files keep sane values
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Save saves configuration to the specified path
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "muze-audio", "config.json")
}

// Update applies a partial update decoded from JSON. Numbers arrive as float64.
// Changes to the audio stream fields take effect on the next start.
func (c *Config) Update(updates map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range updates {
		switch key {
		case "audio_backend":
			if v, ok := value.(string); ok {
				if !oneOf(v, validBackends) {
					return fmt.Errorf("invalid audio_backend: %s", v)
				}
				c.AudioBackend = v
			}
		case "input_device_id":
			if v, ok := value.(float64); ok {
				c.InputDeviceID = int(v)
			}
		case "output_device_id":
			if v, ok := value.(float64); ok {
				c.OutputDeviceID = int(v)
			}
		case "latency":
			if v, ok := value.(string); ok {
				if !oneOf(v, validLatencies) {
					return fmt.Errorf("invalid latency: %s", v)
				}
				c.Latency = v
			}
		case "frames_per_buffer":
			if v, ok := value.(float64); ok {
				c.FramesPerBuffer = int(v)
			}
		case "capture_mode":
			if v, ok := value.(string); ok {
				if !oneOf(v, validCaptureModes) {
					return fmt.Errorf("invalid capture_mode: %s", v)
				}
				c.CaptureMode = v
			}
		case "level_interval_ms":
			if v, ok := value.(float64); ok {
				c.LevelIntervalMs = int(v)
			}
		case "projects_path":
			if v, ok := value.(string); ok {
				c.ProjectsPath = v
			}
		case "log_level":
			if v, ok := value.(string); ok {
				if !oneOf(strings.ToLower(v), validLogLevels) {
					return fmt.Errorf("invalid log_level: %s", v)
				}
				c.LogLevel = strings.ToLower(v)
			}
		case "notifications":
			if v, ok := value.(bool); ok {
				c.Notifications = v
			}
		case "hotkeys":
			if v, ok := value.(map[string]interface{}); ok {
				if enabled, ok := v["enabled"].(bool); ok {
					c.Hotkeys.Enabled = enabled
				}
				updateHotkey(&c.Hotkeys.TogglePlay, v["toggle_play"])
				updateHotkey(&c.Hotkeys.Stop, v["stop"])
				updateHotkey(&c.Hotkeys.Record, v["record"])
			}
		}
	}

	return nil
}

func updateHotkey(hk *HotkeyConfig, value interface{}) {
	v, ok := value.(map[string]interface{})
	if !ok {
		return
	}
	if ctrl, ok := v["ctrl"].(bool); ok {
		hk.Ctrl = ctrl
	}
	if shift, ok := v["shift"].(bool); ok {
		hk.Shift = shift
	}
	if alt, ok := v["alt"].(bool); ok {
		hk.Alt = alt
	}
	if cmd, ok := v["cmd"].(bool); ok {
		hk.Cmd = cmd
	}
	if key, ok := v["key"].(string); ok {
		hk.Key = key
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		AudioBackend:     c.AudioBackend,
		InputDeviceID:    c.InputDeviceID,
		OutputDeviceID:   c.OutputDeviceID,
		Latency:          c.Latency,
		FramesPerBuffer:  c.FramesPerBuffer,
		CommandQueueSize: c.CommandQueueSize,
		EventQueueSize:   c.EventQueueSize,
		CaptureMode:      c.CaptureMode,
		LevelIntervalMs:  c.LevelIntervalMs,
		ProjectsPath:     c.ProjectsPath,
		ServerPort:       c.ServerPort,
		LogLevel:         c.LogLevel,
		Notifications:    c.Notifications,
		Hotkeys:          c.Hotkeys,
	}
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// GetProjectsPath returns the expanded projects directory
func (c *Config) GetProjectsPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ExpandPath(c.ProjectsPath)
}

// Validate validates all configuration fields
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !oneOf(c.AudioBackend, validBackends) {
		return fmt.Errorf("invalid audio_backend: %s (must be 'portaudio' or 'miniaudio')", c.AudioBackend)
	}

	if !oneOf(c.Latency, validLatencies) {
		return fmt.Errorf("invalid latency: %s (must be 'low' or 'high')", c.Latency)
	}

	if !oneOf(c.CaptureMode, validCaptureModes) {
		return fmt.Errorf("invalid capture_mode: %s (must be 'ring' or 'direct')", c.CaptureMode)
	}

	if c.FramesPerBuffer < 32 || c.FramesPerBuffer > 8192 {
		return fmt.Errorf("invalid frames_per_buffer: %d (must be between 32 and 8192)", c.FramesPerBuffer)
	}

	if c.CommandQueueSize <= 0 || c.EventQueueSize <= 0 {
		return fmt.Errorf("queue sizes must be positive (command %d, event %d)", c.CommandQueueSize, c.EventQueueSize)
	}

	if c.LevelIntervalMs < 0 {
		return fmt.Errorf("invalid level_interval_ms: %d", c.LevelIntervalMs)
	}

	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}

	if !oneOf(c.LogLevel, validLogLevels) {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	return nil
}
