// Package play is the playback command surface: it mints play tokens and
// exposes the engine's playerFinished event as "finish" listeners.
package play

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/events"
)

// Token correlates a Play call with the playerFinished event it produces
type Token = int64

// EventFinish is the only playback listener kind
const EventFinish = "finish"

// ErrUnsupportedEventKind is returned by AddListener for kinds other than finish
var ErrUnsupportedEventKind = errors.New("unsupported playback event kind")

// Bus is the part of the event bus the player needs
type Bus interface {
	AddListener(kind events.Kind, listener events.Listener) *events.Subscription
	Emit(kind events.Kind, payload any)
}

type Player struct {
	engine audio.Engine
	bus    Bus

	mu           sync.Mutex
	lastToken    Token
	subscription *events.Subscription
}

func New(engine audio.Engine, bus Bus) *Player {
	return &Player{engine: engine, bus: bus}
}

// Play starts a local file and returns its token
func (p *Player) Play(path string) Token {
	token := p.nextToken()
	p.report(token, p.engine.Play(path, token))
	return token
}

// PlayWithURL starts a remote source and returns its token
func (p *Player) PlayWithURL(url string) Token {
	token := p.nextToken()
	p.report(token, p.engine.PlayWithURL(url, token))
	return token
}

// LastToken returns the most recently minted token, 0 before the first play
func (p *Player) LastToken() Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastToken
}

func (p *Player) nextToken() Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastToken++
	return p.lastToken
}

// report turns a failed start into playerFinished with status ERROR
func (p *Player) report(token Token, err error) {
	if err == nil {
		return
	}
	slog.Error("Playback failed to start", "token", token, "error", err)
	p.bus.Emit(events.KindPlayerFinished, events.PlayerFinished{
		Token:   token,
		Status:  events.StatusError,
		Message: err.Error(),
	})
}

// Pause pauses or resumes the current track
func (p *Player) Pause() {
	if err := p.engine.Pause(); err != nil {
		slog.Warn("Pause failed", "backend", p.engine.GetType(), "error", err)
	}
}

// Stop stops the current track and releases the held finish subscription
func (p *Player) Stop() {
	if err := p.engine.Stop(); err != nil {
		slog.Warn("Stop failed", "error", err)
	}

	p.mu.Lock()
	sub := p.subscription
	p.subscription = nil
	p.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
}

// AddListener registers listener for kind. Only "finish" is supported; the
// player holds on to the newest finish subscription and releases it on Stop.
func (p *Player) AddListener(kind string, listener func(events.PlayerFinished)) (*events.Subscription, error) {
	if kind != EventFinish {
		return nil, fmt.Errorf("add listener %q: %w", kind, ErrUnsupportedEventKind)
	}

	sub := p.bus.AddListener(events.KindPlayerFinished, func(payload any) {
		finished, ok := payload.(events.PlayerFinished)
		if !ok {
			slog.Warn("Unexpected playback payload", "type", fmt.Sprintf("%T", payload))
			return
		}
		listener(finished)
	})

	p.mu.Lock()
	p.subscription = sub
	p.mu.Unlock()

	return sub, nil
}
