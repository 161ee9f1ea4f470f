package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfigYAML = `active_config: studio
audio:
  backend: simulated
configs:
  default:
    recording:
      directory: /tmp/recordings
      format: wav
      progress_interval: 100ms
    playback:
      simulated_duration: 1s
  studio:
    recording:
      format: flac
      metering_enabled: false
    server:
      port: "9090"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audiobridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadWithProfile_ActiveConfig(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Expected config to load, got: %v", err)
	}

	if cfg.Profile != "studio" {
		t.Errorf("Expected profile 'studio', got %s", cfg.Profile)
	}
	if cfg.Audio.Backend != "simulated" {
		t.Errorf("Expected global backend 'simulated', got %s", cfg.Audio.Backend)
	}
	// Inherited from the default profile
	if cfg.Recording.Directory != "/tmp/recordings" {
		t.Errorf("Expected directory '/tmp/recordings', got %s", cfg.Recording.Directory)
	}
	if cfg.Recording.ProgressInterval != 100*time.Millisecond {
		t.Errorf("Expected progress interval 100ms, got %s", cfg.Recording.ProgressInterval)
	}
	if cfg.Playback.SimulatedDuration != time.Second {
		t.Errorf("Expected simulated duration 1s, got %s", cfg.Playback.SimulatedDuration)
	}
	// Overridden by studio
	if cfg.Recording.Format != "flac" {
		t.Errorf("Expected format 'flac', got %s", cfg.Recording.Format)
	}
	if cfg.Recording.Metering() {
		t.Errorf("Expected metering disabled by studio profile")
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	// Built-in default
	if cfg.Server.EventBuffer != 64 {
		t.Errorf("Expected event buffer 64, got %d", cfg.Server.EventBuffer)
	}
}

func TestLoadWithProfile_ExplicitProfile(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	cfg, err := LoadWithProfile(path, "default")
	if err != nil {
		t.Fatalf("Expected config to load, got: %v", err)
	}

	if cfg.Recording.Format != "wav" {
		t.Errorf("Expected format 'wav', got %s", cfg.Recording.Format)
	}
	if !cfg.Recording.Metering() {
		t.Errorf("Expected metering enabled by default")
	}
}

func TestLoadWithProfile_MissingProfile(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	_, err := LoadWithProfile(path, "nope")
	if err == nil {
		t.Fatal("Expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}
}

func TestLoadWithProfile_NoFile(t *testing.T) {
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error for empty config path")
	}
}

func TestLoadWithProfile_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad backend", "configs:\n  default:\n    audio:\n      backend: coreaudio\n"},
		{"bad format", "configs:\n  default:\n    recording:\n      format: mp3\n"},
		{"interval too short", "configs:\n  default:\n    recording:\n      progress_interval: 1ms\n"},
		{"bad port", "configs:\n  default:\n    server:\n      port: http\n"},
		{"empty configs", "active_config: default\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := LoadWithProfile(path, ""); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), "")
	if err != nil {
		t.Fatalf("Expected defaults, got error: %v", err)
	}
	if cfg.Audio.Backend != "auto" {
		t.Errorf("Expected backend 'auto', got %s", cfg.Audio.Backend)
	}
	if cfg.Recording.ProgressInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms progress interval, got %s", cfg.Recording.ProgressInterval)
	}
}

func TestMergeConfigs_KeepsBaseWhenUnset(t *testing.T) {
	base := Default()
	profile := &Config{Recording: RecordingConfig{Format: "ogg"}}

	result := mergeConfigs(base, profile)

	if result.Recording.Format != "ogg" {
		t.Errorf("Expected format 'ogg', got %s", result.Recording.Format)
	}
	if result.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", result.Audio.SampleRate)
	}
	if !result.Recording.Metering() {
		t.Errorf("Expected metering to stay enabled")
	}

	// Players slice must not alias the base
	result.Playback.Players[0] = "changed"
	if base.Playback.Players[0] == "changed" {
		t.Errorf("mergeConfigs aliased the base players slice")
	}
}

func TestDefault_IsCopy(t *testing.T) {
	a := Default()
	a.Playback.Players[0] = "changed"
	*a.Recording.MeteringEnabled = false

	b := Default()
	if b.Playback.Players[0] == "changed" {
		t.Errorf("Default returned a shared players slice")
	}
	if !b.Recording.Metering() {
		t.Errorf("Default returned a shared metering flag")
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	if err := UpdateActiveConfig(path, "default"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	cfg, err := LoadWithProfile(path, "")
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cfg.Profile != "default" {
		t.Errorf("Expected active profile 'default', got %s", cfg.Profile)
	}

	if err := UpdateActiveConfig(path, "missing"); err == nil {
		t.Errorf("Expected error when activating an unknown profile")
	}
}

func TestListProfiles(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	names, err := ListProfiles(path)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("Expected 2 profiles, got %v", names)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/rec"); got != filepath.Join(home, "rec") {
		t.Errorf("Expected %s, got %s", filepath.Join(home, "rec"), got)
	}
	if got := expandPath("/abs/rec"); got != "/abs/rec" {
		t.Errorf("Expected absolute path unchanged, got %s", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	changes := make(chan *Config, 4)
	if err := Watch(path, "", func(cfg *Config) { changes <- cfg }); err != nil {
		t.Fatalf("Expected watch to start, got: %v", err)
	}

	updated := strings.Replace(testConfigYAML, `port: "9090"`, `port: "9191"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Server.Port == "9191" {
				return
			}
		case <-deadline:
			t.Fatal("Expected reloaded config with port 9191")
		}
	}
}

func TestWatch_MissingFile(t *testing.T) {
	if err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), "", func(*Config) {}); err == nil {
		t.Error("Expected error for missing config file")
	}
}
