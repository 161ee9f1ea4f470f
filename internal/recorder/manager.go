// Package recorder owns the lifecycle of one recording session: it
// subscribes to the engine's recording events when the session begins,
// routes them to the application hooks and releases every subscription
// exactly once when the session ends.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/events"
)

// ErrAlreadyActive is returned by Begin while another session is active
var ErrAlreadyActive = errors.New("recording session already active")

// Hooks are the application callbacks for recording events. A nil hook
// drops its event.
type Hooks struct {
	OnProgress  func(events.Progress)
	OnPeakPower func(events.PeakPower)
	OnFinished  func(events.Finished)
	OnError     func(events.Failure)
}

// Session is one recording from Begin until End
type Session struct {
	ID        string
	Path      string
	StartTime time.Time
}

// Bus is the part of the event bus the manager subscribes through
type Bus interface {
	AddListener(kind events.Kind, listener events.Listener) *events.Subscription
	Emit(kind events.Kind, payload any)
}

// Manager tracks at most one active session. State goes Idle -> Active on
// Begin and back to Idle on End, which a terminal event or Stop triggers.
type Manager struct {
	engine audio.Engine
	bus    Bus

	mu      sync.Mutex
	hooks   Hooks
	current *Session
	// Subscriptions held for current; empty when idle
	subs []*events.Subscription
}

// NewManager creates an idle manager
func NewManager(engine audio.Engine, bus Bus) *Manager {
	return &Manager{engine: engine, bus: bus}
}

// SetHooks replaces the application hooks; the last call wins
func (m *Manager) SetHooks(hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = hooks
}

// Active reports whether a session is in progress
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// Current returns a copy of the active session, or nil when idle
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Subscriptions returns how many bus subscriptions the manager holds
func (m *Manager) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Begin prepares the engine at path and subscribes to every recording event
// kind. A failed prepare is reported through OnError, which ends the session.
func (m *Manager) Begin(path string) (*Session, error) {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("begin %s: %w", path, ErrAlreadyActive)
	}

	session := &Session{
		ID:        uuid.NewString(),
		Path:      path,
		StartTime: time.Now(),
	}
	m.current = session
	m.mu.Unlock()

	prepareErr := m.engine.PrepareRecordingAtPath(path)

	subs := make([]*events.Subscription, 0, len(events.RecordingKinds))
	for _, kind := range events.RecordingKinds {
		kind := kind
		subs = append(subs, m.bus.AddListener(kind, func(payload any) {
			m.dispatch(session, kind, payload)
		}))
	}

	m.mu.Lock()
	ended := m.current != session
	if !ended {
		m.subs = subs
	}
	m.mu.Unlock()

	// End ran while the listeners were being registered
	if ended {
		for _, sub := range subs {
			sub.Remove()
		}
		s := *session
		return &s, nil
	}

	slog.Info("Recording session started", "session", session.ID, "path", path)

	if prepareErr != nil {
		slog.Error("Prepare recording failed", "path", path, "error", prepareErr)
		m.bus.Emit(events.KindRecordingError, events.Failure{
			Message: prepareErr.Error(),
			Code:    events.CodeNativeCommandFailure,
		})
	}

	s := *session
	return &s, nil
}

// Dispatch routes one event to the hook of the active session. Events
// reaching an idle manager are dropped.
func (m *Manager) Dispatch(kind events.Kind, payload any) {
	m.mu.Lock()
	session := m.current
	m.mu.Unlock()

	if session == nil {
		slog.Debug("Dropping event for idle recorder", "kind", kind)
		return
	}
	m.dispatch(session, kind, payload)
}

// dispatch delivers an event on behalf of session. Terminal kinds end that
// session even if the hook panics; events for a session that is no longer
// current are dropped.
func (m *Manager) dispatch(session *Session, kind events.Kind, payload any) {
	m.mu.Lock()
	current := m.current == session
	hooks := m.hooks
	m.mu.Unlock()

	if !current {
		slog.Debug("Dropping event for ended session", "kind", kind, "session", session.ID)
		return
	}

	if kind.IsTerminal() {
		defer m.endSession(session)
	}

	m.invoke(hooks, kind, payload)
}

// invoke calls the hook for kind, isolating panics
func (m *Manager) invoke(hooks Hooks, kind events.Kind, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recording hook panicked", "kind", kind, "panic", r)
		}
	}()

	var ok bool
	switch kind {
	case events.KindRecordingProgress:
		var p events.Progress
		if p, ok = payload.(events.Progress); ok && hooks.OnProgress != nil {
			hooks.OnProgress(p)
		}
	case events.KindAudioPeakPower:
		var p events.PeakPower
		if p, ok = payload.(events.PeakPower); ok && hooks.OnPeakPower != nil {
			hooks.OnPeakPower(p)
		}
	case events.KindRecordingFinished:
		var f events.Finished
		if f, ok = payload.(events.Finished); ok && hooks.OnFinished != nil {
			hooks.OnFinished(f)
		}
	case events.KindRecordingError:
		var f events.Failure
		if f, ok = payload.(events.Failure); ok && hooks.OnError != nil {
			hooks.OnError(f)
		}
	default:
		slog.Warn("Unexpected recording event", "kind", kind)
		return
	}

	if !ok {
		slog.Warn("Unexpected recording payload", "kind", kind, "type", fmt.Sprintf("%T", payload))
	}
}

// End releases the active session's subscriptions. It is safe to call any
// number of times; only the first call after Begin removes anything.
func (m *Manager) End() {
	m.mu.Lock()
	session := m.current
	m.mu.Unlock()

	if session != nil {
		m.endSession(session)
	}
}

// endSession tears down session if it is still the current one
func (m *Manager) endSession(session *Session) {
	m.mu.Lock()
	if m.current != session {
		m.mu.Unlock()
		return
	}
	subs := m.subs
	m.current, m.subs = nil, nil
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Remove()
	}
	slog.Info("Recording session ended", "session", session.ID, "path", session.Path, "released", len(subs))
}

// Stop asks the engine to stop recording and ends the session. When idle
// it only forwards the command. An engine failure during an active session
// is reported through OnError.
func (m *Manager) Stop() {
	err := m.engine.StopRecording()

	if !m.Active() {
		if err != nil {
			slog.Debug("Stop recording while idle", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("Stop recording failed", "error", err)
		m.bus.Emit(events.KindRecordingError, events.Failure{
			Message: err.Error(),
			Code:    events.CodeNativeCommandFailure,
		})
		return
	}

	m.End()
}
