package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/events"
)

// Metering floor reported when the input is silent, in dBFS
const silenceFloor = -160.0

type recordState int

const (
	recordIdle recordState = iota
	recordPrepared
	recordRecording
	recordPaused
)

func (s recordState) String() string {
	switch s {
	case recordPrepared:
		return "prepared"
	case recordRecording:
		return "recording"
	case recordPaused:
		return "paused"
	default:
		return "idle"
	}
}

// SimulatedEngine behaves like a native engine without touching audio
// hardware. Recording produces progress and peak-power ticks; playback
// finishes after a fixed duration.
type SimulatedEngine struct {
	emitter Emitter

	mu           sync.Mutex
	interval     time.Duration
	playDuration time.Duration
	metering     bool

	// Recording state
	state      recordState
	recordPath string
	elapsed    time.Duration
	tickerStop chan struct{}
	tickerDone chan struct{}

	// Playback state
	playToken     int64
	playTimer     *time.Timer
	playRemaining time.Duration
	playStarted   time.Time
	playingRecord bool
}

// NewSimulatedEngine creates a simulated engine posting to emitter
func NewSimulatedEngine(cfg *config.Config, emitter Emitter) *SimulatedEngine {
	e := &SimulatedEngine{emitter: emitter}
	e.Configure(cfg)
	return e
}

// Configure applies timing settings; it takes effect on the next recording
// or playback
func (e *SimulatedEngine) Configure(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.interval = cfg.Recording.ProgressInterval
	if e.interval <= 0 {
		e.interval = 250 * time.Millisecond
	}
	e.playDuration = cfg.Playback.SimulatedDuration
	e.metering = cfg.Recording.Metering()
}

// GetType returns the backend type
func (e *SimulatedEngine) GetType() BackendType {
	return BackendTypeSimulated
}

// Play pretends to play path, posting playerFinished once the configured
// duration has elapsed. A track already playing is replaced.
func (e *SimulatedEngine) Play(path string, token int64) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrNativeCommand)
	}
	return e.startPlayback(token)
}

// PlayWithURL behaves like Play for a remote URL
func (e *SimulatedEngine) PlayWithURL(url string, token int64) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrNativeCommand)
	}
	return e.startPlayback(token)
}

func (e *SimulatedEngine) startPlayback(token int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopPlaybackLocked()
	e.playToken = token
	e.armPlaybackLocked(e.playDuration)

	slog.Debug("Simulated playback started", "token", token, "duration", e.playDuration)
	return nil
}

func (e *SimulatedEngine) armPlaybackLocked(d time.Duration) {
	token := e.playToken
	e.playRemaining = d
	e.playStarted = time.Now()
	e.playTimer = time.AfterFunc(d, func() {
		e.mu.Lock()
		current := e.playToken == token && e.playTimer != nil
		if current {
			e.playTimer = nil
			e.playToken = 0
		}
		e.mu.Unlock()

		if current {
			e.emitter.Post(events.KindPlayerFinished, events.PlayerFinished{Token: token, Status: events.StatusOK})
		}
	})
}

func (e *SimulatedEngine) stopPlaybackLocked() {
	if e.playTimer != nil {
		e.playTimer.Stop()
		e.playTimer = nil
	}
}

// Pause suspends the current track; a second Pause resumes it
func (e *SimulatedEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playToken == 0 {
		return fmt.Errorf("%w: nothing is playing", ErrNativeCommand)
	}

	if e.playTimer != nil {
		e.playTimer.Stop()
		e.playTimer = nil
		e.playRemaining -= time.Since(e.playStarted)
		if e.playRemaining < 0 {
			e.playRemaining = 0
		}
		slog.Debug("Simulated playback paused", "token", e.playToken, "remaining", e.playRemaining)
		return nil
	}

	e.armPlaybackLocked(e.playRemaining)
	slog.Debug("Simulated playback resumed", "token", e.playToken)
	return nil
}

// Stop ends playback without raising playerFinished
func (e *SimulatedEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopPlaybackLocked()
	e.playToken = 0
	return nil
}

// PrepareRecordingAtPath readies a recording at path
func (e *SimulatedEngine) PrepareRecordingAtPath(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if path == "" {
		return fmt.Errorf("%w: empty recording path", ErrNativeCommand)
	}
	if e.state == recordRecording || e.state == recordPaused {
		return fmt.Errorf("%w: recording already in progress", ErrNativeCommand)
	}

	e.recordPath = path
	e.elapsed = 0
	e.state = recordPrepared

	slog.Debug("Simulated recording prepared", "path", path)
	return nil
}

// StartRecording starts (or resumes) the prepared recording
func (e *SimulatedEngine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != recordPrepared && e.state != recordPaused {
		return fmt.Errorf("%w: can only start recording when prepared or paused, current: %s", ErrNativeCommand, e.state)
	}

	e.state = recordRecording
	e.tickerStop = make(chan struct{})
	e.tickerDone = make(chan struct{})
	go e.tick(e.interval, e.metering, e.tickerStop, e.tickerDone)

	slog.Debug("Simulated recording started", "path", e.recordPath)
	return nil
}

// tick posts progress until stop is closed
func (e *SimulatedEngine) tick(interval time.Duration, metering bool, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			e.elapsed += interval
			elapsed := e.elapsed
			e.mu.Unlock()

			progress := events.Progress{CurrentTime: elapsed.Seconds()}
			if metering {
				level := simulatedLevel(elapsed)
				progress.CurrentMetering = &level
				e.emitter.Post(events.KindAudioPeakPower, events.PeakPower{Value: level})
			}
			e.emitter.Post(events.KindRecordingProgress, progress)
		}
	}
}

// simulatedLevel produces a slowly varying level between -40 and -6 dBFS
func simulatedLevel(elapsed time.Duration) float64 {
	level := -23 + 17*math.Sin(elapsed.Seconds())
	return math.Max(silenceFloor, math.Min(0, level))
}

// stopTickerLocked stops the progress goroutine. The lock is released while
// waiting so an in-flight tick can finish.
func (e *SimulatedEngine) stopTickerLocked() {
	if e.tickerStop == nil {
		return
	}
	stop, done := e.tickerStop, e.tickerDone
	e.tickerStop, e.tickerDone = nil, nil

	close(stop)
	e.mu.Unlock()
	<-done
	e.mu.Lock()
}

// PauseRecording suspends progress ticks
func (e *SimulatedEngine) PauseRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != recordRecording {
		return fmt.Errorf("%w: no recording in progress", ErrNativeCommand)
	}

	e.stopTickerLocked()
	e.state = recordPaused
	return nil
}

// StopRecording finishes the recording and posts recordingFinished
func (e *SimulatedEngine) StopRecording() error {
	e.mu.Lock()
	if e.state == recordIdle {
		e.mu.Unlock()
		return fmt.Errorf("%w: no recording in progress", ErrNativeCommand)
	}

	e.stopTickerLocked()
	path, elapsed := e.recordPath, e.elapsed
	e.state = recordIdle
	e.mu.Unlock()

	e.emitter.Post(events.KindRecordingFinished, events.Finished{Status: events.StatusOK, Path: path})
	slog.Debug("Simulated recording stopped", "path", path, "elapsed", elapsed)
	return nil
}

// DeleteRecording forgets the last recording
func (e *SimulatedEngine) DeleteRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == recordRecording || e.state == recordPaused {
		return fmt.Errorf("%w: cannot delete while recording", ErrNativeCommand)
	}
	if e.recordPath == "" {
		return fmt.Errorf("%w: no recording to delete", ErrNativeCommand)
	}

	slog.Debug("Simulated recording deleted", "path", e.recordPath)
	e.recordPath = ""
	e.elapsed = 0
	e.state = recordIdle
	return nil
}

// PlayRecording plays back the last recording
func (e *SimulatedEngine) PlayRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recordPath == "" {
		return fmt.Errorf("%w: no recording to play", ErrNativeCommand)
	}
	e.playingRecord = true
	return nil
}

// StopPlaying stops playback of the last recording
func (e *SimulatedEngine) StopPlaying() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.playingRecord = false
	return nil
}

// Close stops all activity without raising events
func (e *SimulatedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTickerLocked()
	e.stopPlaybackLocked()
	e.playToken = 0
	e.playingRecord = false
	e.state = recordIdle
	return nil
}
