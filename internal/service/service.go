package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/events"
	"github.com/audiolibrelab/audiobridge/internal/play"
	"github.com/audiolibrelab/audiobridge/internal/recorder"
)

// RecordingStatus represents the current recording state
type RecordingStatus string

const (
	StatusStandby   RecordingStatus = "STANDBY"
	StatusRecording RecordingStatus = "RECORDING"
)

// RecordingSession contains information about the current recording session
type RecordingSession struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	StartTime time.Time `json:"start_time"`
}

// Status is a snapshot of the service state
type Status struct {
	Status    RecordingStatus   `json:"status"`
	Session   *RecordingSession `json:"session,omitempty"`
	Backend   audio.BackendType `json:"backend"`
	Profile   string            `json:"profile"`
	LastToken play.Token        `json:"last_token"`
	LastError string            `json:"last_error,omitempty"`
}

// configurable engines accept settings at runtime
type configurable interface {
	Configure(cfg *config.Config)
}

// logWriterSetter engines forward child process output
type logWriterSetter interface {
	SetLogWriter(w io.Writer)
}

// AudioService wires the event bus, the engine and both command surfaces
type AudioService struct {
	bus      *events.Bus
	engine   audio.Engine
	player   *play.Player
	recorder *recorder.Recorder

	cfgMutex sync.RWMutex
	cfg      *config.Config

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service using the backend selected by cfg. Output of
// external audio tools goes to logWriter; nil discards it.
func New(cfg *config.Config, logWriter io.Writer) (*AudioService, error) {
	bus := events.NewBusWithQueue(cfg.Server.EventBuffer)
	engine, err := audio.NewEngine(cfg, bus)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio engine: %w", err)
	}
	if lw, ok := engine.(logWriterSetter); ok && logWriter != nil {
		lw.SetLogWriter(logWriter)
	}
	return NewWithEngine(cfg, bus, engine), nil
}

// NewWithEngine creates a service around an existing bus and engine
func NewWithEngine(cfg *config.Config, bus *events.Bus, engine audio.Engine) *AudioService {
	s := &AudioService{
		bus:      bus,
		engine:   engine,
		player:   play.New(engine, bus),
		recorder: recorder.New(engine, bus),
		cfg:      cfg,
	}
	s.SetHooks(recorder.Hooks{})

	slog.Debug("Audio service created", "backend", engine.GetType(), "profile", cfg.Profile)
	return s
}

// Run delivers engine events until ctx is cancelled or the service is closed
func (s *AudioService) Run(ctx context.Context) error {
	return s.bus.Run(ctx)
}

func (s *AudioService) Bus() *events.Bus {
	return s.bus
}

func (s *AudioService) Player() *play.Player {
	return s.player
}

func (s *AudioService) Recorder() *recorder.Recorder {
	return s.recorder
}

func (s *AudioService) Backend() audio.BackendType {
	return s.engine.GetType()
}

// SetHooks installs application hooks. Errors are recorded as the last
// error before hooks.OnError runs.
func (s *AudioService) SetHooks(hooks recorder.Hooks) {
	wrapped := hooks
	wrapped.OnError = func(f events.Failure) {
		s.setLastError(f.Message)
		if hooks.OnError != nil {
			hooks.OnError(f)
		}
	}
	wrapped.OnFinished = func(f events.Finished) {
		if f.Status == events.StatusError {
			s.setLastError(fmt.Sprintf("recording %s finished with errors", f.Path))
		}
		if hooks.OnFinished != nil {
			hooks.OnFinished(f)
		}
	}
	s.recorder.SetHooks(wrapped)
}

// Record starts a new recording at path
func (s *AudioService) Record(path string) (*recorder.Session, error) {
	slog.Debug("Service.Record called", "path", path)
	s.clearLastError()

	session, err := s.recorder.PrepareRecordingAtPath(path)
	if err != nil {
		return nil, err
	}
	s.recorder.StartRecording()
	return session, nil
}

// Status returns the current recording status and session info
func (s *AudioService) Status() Status {
	st := Status{
		Status:    StatusStandby,
		Backend:   s.engine.GetType(),
		Profile:   s.Config().Profile,
		LastToken: s.player.LastToken(),
		LastError: s.GetLastError(),
	}

	if session := s.recorder.Manager().Current(); session != nil {
		st.Status = StatusRecording
		st.Session = &RecordingSession{
			ID:        session.ID,
			Path:      session.Path,
			StartTime: session.StartTime,
		}
	}
	return st
}

// Config returns the current configuration
func (s *AudioService) Config() *config.Config {
	s.cfgMutex.RLock()
	defer s.cfgMutex.RUnlock()
	return s.cfg
}

// ApplyConfig hands new settings to the engine. A backend change needs a
// restart and is only logged.
func (s *AudioService) ApplyConfig(cfg *config.Config) {
	s.cfgMutex.Lock()
	previous := s.cfg
	s.cfg = cfg
	s.cfgMutex.Unlock()

	if previous != nil && previous.Audio.Backend != cfg.Audio.Backend {
		slog.Warn("Audio backend change takes effect after restart",
			"current", previous.Audio.Backend, "configured", cfg.Audio.Backend)
	}

	if c, ok := s.engine.(configurable); ok {
		c.Configure(cfg)
		slog.Info("Configuration applied", "profile", cfg.Profile)
	}
}

// Close ends any active session and releases the engine. The bus closes
// first so engine goroutines blocked posting to a full queue can exit.
func (s *AudioService) Close() error {
	s.bus.Close()

	if s.recorder.Manager().Active() {
		s.recorder.StopRecording()
	}
	s.player.Stop()

	if err := s.engine.Close(); err != nil {
		return fmt.Errorf("failed to close audio engine: %w", err)
	}
	return nil
}

// GetLastError returns the last error message (thread-safe)
func (s *AudioService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *AudioService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

func (s *AudioService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
