package recorder

import (
	"errors"
	"log/slog"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/events"
)

// Recorder is the recording command surface. Commands never return engine
// failures; those reach the application through OnError.
type Recorder struct {
	engine  audio.Engine
	bus     Bus
	manager *Manager
}

// New creates a recorder forwarding to engine and subscribing through bus
func New(engine audio.Engine, bus Bus) *Recorder {
	return &Recorder{
		engine:  engine,
		bus:     bus,
		manager: NewManager(engine, bus),
	}
}

// Manager returns the session lifecycle manager
func (r *Recorder) Manager() *Manager {
	return r.manager
}

// SetHooks replaces the application hooks
func (r *Recorder) SetHooks(hooks Hooks) {
	r.manager.SetHooks(hooks)
}

// PrepareRecordingAtPath starts a session recording to path
func (r *Recorder) PrepareRecordingAtPath(path string) (*Session, error) {
	return r.manager.Begin(path)
}

// StartRecording starts or resumes the prepared recording
func (r *Recorder) StartRecording() {
	r.forward("start recording", r.engine.StartRecording)
}

// PauseRecording pauses the recording
func (r *Recorder) PauseRecording() {
	r.forward("pause recording", r.engine.PauseRecording)
}

// StopRecording stops the recording and ends the session
func (r *Recorder) StopRecording() {
	r.manager.Stop()
}

// DeleteRecording removes the last recording
func (r *Recorder) DeleteRecording() {
	r.forward("delete recording", r.engine.DeleteRecording)
}

// PlayRecording plays back the last recording
func (r *Recorder) PlayRecording() {
	r.forward("play recording", r.engine.PlayRecording)
}

// StopPlaying stops playback of the last recording
func (r *Recorder) StopPlaying() {
	r.forward("stop playing", r.engine.StopPlaying)
}

// forward runs an engine command. A failure during an active session is
// dispatched as recordingError; unsupported commands and failures while
// idle are only logged.
func (r *Recorder) forward(name string, command func() error) {
	err := command()
	if err == nil {
		return
	}

	if errors.Is(err, audio.ErrUnsupported) {
		slog.Warn("Recorder command not supported by backend", "command", name, "backend", r.engine.GetType())
		return
	}

	slog.Error("Recorder command failed", "command", name, "error", err)
	if r.manager.Active() {
		r.bus.Emit(events.KindRecordingError, events.Failure{
			Message: name + ": " + err.Error(),
			Code:    events.CodeNativeCommandFailure,
		})
	}
}
