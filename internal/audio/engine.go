package audio

import (
	"errors"

	"github.com/audiolibrelab/audiobridge/internal/events"
)

var (
	// ErrNativeCommand wraps any failure reported by an engine command
	ErrNativeCommand = errors.New("native command failure")
	// ErrUnsupported is returned for commands a backend cannot perform
	ErrUnsupported = errors.New("command not supported by backend")
)

// Emitter receives the asynchronous events an engine raises.
// *events.Bus satisfies it.
type Emitter interface {
	Post(kind events.Kind, payload any)
}

// Engine is the native audio engine the facade forwards commands to.
// Commands return as soon as the engine has accepted them; outcomes such as
// progress, completion and failure arrive later through the Emitter.
type Engine interface {
	// Playback
	Play(path string, token int64) error
	PlayWithURL(url string, token int64) error
	Pause() error
	Stop() error

	// Recording
	PrepareRecordingAtPath(path string) error
	StartRecording() error
	PauseRecording() error
	StopRecording() error
	DeleteRecording() error
	PlayRecording() error
	StopPlaying() error

	GetType() BackendType

	// Close stops any running recording or playback
	Close() error
}
