package recorder

import (
	"time"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

func simulatedConfig() *config.Config {
	cfg := config.Default()
	cfg.Recording.ProgressInterval = 10 * time.Millisecond
	cfg.Playback.SimulatedDuration = 20 * time.Millisecond
	return cfg
}
