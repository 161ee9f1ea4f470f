package audio

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire  BackendType = "pipewire"
	BackendTypeSimulated BackendType = "simulated"
	BackendTypeAuto      BackendType = "auto"
)

var lookPath = exec.LookPath

// NewEngine creates an engine using the backend selected by configuration
func NewEngine(cfg *config.Config, emitter Emitter) (Engine, error) {
	switch backendType := determineBackend(cfg); backendType {
	case BackendTypePipeWire:
		return NewPipeWireEngine(cfg, emitter), nil
	case BackendTypeSimulated:
		return NewSimulatedEngine(cfg, emitter), nil
	default:
		return nil, fmt.Errorf("unknown audio backend: %s", backendType)
	}
}

// ResolveBackend reports the backend NewEngine would create for cfg
func ResolveBackend(cfg *config.Config) BackendType {
	return determineBackend(cfg)
}

// determineBackend determines which backend to use based on configuration
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "pipewire":
		return BackendTypePipeWire
	case "simulated":
		return BackendTypeSimulated
	case "", "auto":
		if pipeWireAvailable() {
			return BackendTypePipeWire
		}
		return BackendTypeSimulated
	default:
		return BackendType(cfg.Audio.Backend)
	}
}

func pipeWireAvailable() bool {
	_, err := lookPath("pw-record")
	return err == nil
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	backends := []BackendType{}

	if pipeWireAvailable() {
		backends = append(backends, BackendTypePipeWire)
	}

	// Always available
	backends = append(backends, BackendTypeSimulated)

	return backends
}
