// Package audiotest provides an in-memory audio.Engine for tests.
package audiotest

import (
	"sync"

	"github.com/audiolibrelab/audiobridge/internal/audio"
)

// Call is one command received by Engine
type Call struct {
	Name  string
	Arg   string
	Token int64
}

// Engine records every command and returns the error configured for it.
// It never raises events on its own; tests emit them on the bus.
type Engine struct {
	mu     sync.Mutex
	calls  []Call
	errs   map[string]error
	closed bool
}

var _ audio.Engine = (*Engine)(nil)

// NewEngine creates an engine that accepts every command
func NewEngine() *Engine {
	return &Engine{errs: make(map[string]error)}
}

// Fail makes command return err from now on; nil clears it
func (e *Engine) Fail(command string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.errs, command)
		return
	}
	e.errs[command] = err
}

// Calls returns the commands received so far
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Count returns how many times command was received
func (e *Engine) Count(command string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Name == command {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) record(c Call) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, c)
	return e.errs[c.Name]
}

func (e *Engine) Play(path string, token int64) error {
	return e.record(Call{Name: "Play", Arg: path, Token: token})
}

func (e *Engine) PlayWithURL(url string, token int64) error {
	return e.record(Call{Name: "PlayWithURL", Arg: url, Token: token})
}

func (e *Engine) Pause() error { return e.record(Call{Name: "Pause"}) }
func (e *Engine) Stop() error { return e.record(Call{Name: "Stop"}) }

func (e *Engine) PrepareRecordingAtPath(path string) error {
	return e.record(Call{Name: "PrepareRecordingAtPath", Arg: path})
}

func (e *Engine) StartRecording() error { return e.record(Call{Name: "StartRecording"}) }
func (e *Engine) PauseRecording() error { return e.record(Call{Name: "PauseRecording"}) }
func (e *Engine) StopRecording() error { return e.record(Call{Name: "StopRecording"}) }
func (e *Engine) DeleteRecording() error { return e.record(Call{Name: "DeleteRecording"}) }
func (e *Engine) PlayRecording() error { return e.record(Call{Name: "PlayRecording"}) }
func (e *Engine) StopPlaying() error { return e.record(Call{Name: "StopPlaying"}) }

func (e *Engine) GetType() audio.BackendType {
	return audio.BackendTypeSimulated
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
