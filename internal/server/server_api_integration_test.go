package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/yok-tottii/muze-audio/internal/api"
	"github.com/yok-tottii/muze-audio/internal/config"
	"github.com/yok-tottii/muze-audio/internal/engine"
)

// startAPIServer wires an API handler onto a server running on a random port.
// Routes are registered on GetMux before Start.
func startAPIServer(t *testing.T, eng api.Engine) (*Server, *config.Config) {
	t.Helper()

	serverConfig := DefaultConfig()
	serverConfig.Port = 0 // Use random port
	server := New(serverConfig)

	appConfig := config.DefaultConfig()
	apiHandler := api.New(appConfig, eng, nil)
	apiHandler.SetConfigPath(filepath.Join(t.TempDir(), "config.json"))
	apiHandler.RegisterRoutes(server.GetMux())

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return server, appConfig
}

func TestServerAPIIntegration(t *testing.T) {
	server, appConfig := startAPIServer(t, engine.Disabled())

	url := server.URL() + "/api/settings"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to make request to API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var response config.Config
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Errorf("Failed to decode settings response: %v", err)
	}

	// Test PUT endpoint
	bodyBytes, _ := json.Marshal(map[string]interface{}{"log_level": "debug"})
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(bodyBytes))
	if err != nil {
		t.Fatalf("Failed to create PUT request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to execute PUT request: %v", err)
	}
	defer resp2.Body.Close()

	if resp2.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp2.StatusCode)
	}
	if appConfig.Clone().LogLevel != "debug" {
		t.Errorf("Expected LogLevel 'debug', got '%s'", appConfig.Clone().LogLevel)
	}
}

func TestDisabledEngineOverHTTP(t *testing.T) {
	server, _ := startAPIServer(t, engine.Disabled())

	resp, err := http.Get(server.URL() + "/api/state")
	if err != nil {
		t.Fatalf("Failed to get state: %v", err)
	}
	defer resp.Body.Close()

	var state api.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}

	if state.AudioAvailable {
		t.Error("Expected audio to be unavailable")
	}
	if state.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", state.SampleRate)
	}

	// Transport is accepted and ignored
	playResp, err := http.Post(server.URL()+"/api/transport/play", "application/json", nil)
	if err != nil {
		t.Fatalf("Failed to post play: %v", err)
	}
	playResp.Body.Close()
	if playResp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", playResp.StatusCode)
	}

	// Recording needs hardware
	body, _ := json.Marshal(map[string]interface{}{"project_path": t.TempDir(), "track_index": 0})
	recResp, err := http.Post(server.URL()+"/api/recording/start", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to post recording start: %v", err)
	}
	recResp.Body.Close()
	if recResp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", recResp.StatusCode)
	}
}

func TestAPIRoutesGetCORSHeaders(t *testing.T) {
	server, _ := startAPIServer(t, engine.Disabled())

	req, _ := http.NewRequest(http.MethodGet, server.URL()+"/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to get state: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected origin to be echoed, got %q", got)
	}
}
