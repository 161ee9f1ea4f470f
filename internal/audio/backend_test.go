package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

func TestDetermineBackend(t *testing.T) {
	tests := []struct {
		name      string
		backend   string
		available []string
		want      BackendType
	}{
		{"explicit pipewire", "pipewire", nil, BackendTypePipeWire},
		{"explicit simulated", "Simulated", []string{"pw-record"}, BackendTypeSimulated},
		{"auto with pw-record", "auto", []string{"pw-record"}, BackendTypePipeWire},
		{"auto without pw-record", "auto", nil, BackendTypeSimulated},
		{"empty falls back to auto", "", nil, BackendTypeSimulated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubLookPath(t, tt.available...)
			cfg := config.Default()
			cfg.Audio.Backend = tt.backend

			assert.Equal(t, tt.want, determineBackend(cfg))
		})
	}
}

func TestNewEngine(t *testing.T) {
	stubLookPath(t)
	cfg := config.Default()

	cfg.Audio.Backend = "simulated"
	engine, err := NewEngine(cfg, &recordingEmitter{})
	require.NoError(t, err)
	assert.Equal(t, BackendTypeSimulated, engine.GetType())

	cfg.Audio.Backend = "pipewire"
	engine, err = NewEngine(cfg, &recordingEmitter{})
	require.NoError(t, err)
	assert.Equal(t, BackendTypePipeWire, engine.GetType())

	cfg.Audio.Backend = "coreaudio"
	_, err = NewEngine(cfg, &recordingEmitter{})
	assert.Error(t, err)
}

func TestGetAvailableBackends(t *testing.T) {
	stubLookPath(t)
	assert.Equal(t, []BackendType{BackendTypeSimulated}, GetAvailableBackends())

	stubLookPath(t, "pw-record")
	assert.Equal(t, []BackendType{BackendTypePipeWire, BackendTypeSimulated}, GetAvailableBackends())
}
