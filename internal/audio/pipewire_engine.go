package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/events"
)

const processStopTimeout = 5 * time.Second

// PipeWireEngine drives the PipeWire command line tools: pw-record for
// capture and the first available player for playback
type PipeWireEngine struct {
	emitter   Emitter
	logWriter io.Writer

	mu         sync.Mutex
	sampleRate int
	interval   time.Duration
	players    []string

	// Recording state
	recordPath string
	recorder   *process
	started    time.Time
	tickerStop chan struct{}

	// Playback state
	player    *process
	playToken int64
	replay    *process
}

// NewPipeWireEngine creates a PipeWire engine posting to emitter
func NewPipeWireEngine(cfg *config.Config, emitter Emitter) *PipeWireEngine {
	e := &PipeWireEngine{
		emitter:   emitter,
		logWriter: io.Discard,
	}
	e.Configure(cfg)
	return e
}

// SetLogWriter receives the output of child processes
func (e *PipeWireEngine) SetLogWriter(w io.Writer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	e.logWriter = w
}

// Configure applies settings used by the next command
func (e *PipeWireEngine) Configure(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleRate = cfg.Audio.SampleRate
	e.interval = cfg.Recording.ProgressInterval
	if e.interval <= 0 {
		e.interval = 250 * time.Millisecond
	}
	e.players = append([]string(nil), cfg.Playback.Players...)
}

// GetType returns the backend type
func (e *PipeWireEngine) GetType() BackendType {
	return BackendTypePipeWire
}

// Play plays a local file; playerFinished carries token when it ends
func (e *PipeWireEngine) Play(path string, token int64) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: audio file not found: %s", ErrNativeCommand, path)
	}

	e.mu.Lock()
	players := e.players
	e.mu.Unlock()

	return e.startPlayer(players, path, token)
}

// PlayWithURL streams a remote source
func (e *PipeWireEngine) PlayWithURL(url string, token int64) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrNativeCommand)
	}
	return e.startPlayer(urlPlayers, url, token)
}

func (e *PipeWireEngine) startPlayer(preferred []string, source string, token int64) error {
	player, err := findPlayer(preferred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}
	args, err := playerArgs(player, source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}

	// Only one track plays at a time
	if err := e.Stop(); err != nil {
		slog.Debug("Failed to stop previous track", "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := startProcess(args, e.logWriter, func(exitErr error, stopped bool) {
		e.mu.Lock()
		if e.playToken == token {
			e.player = nil
			e.playToken = 0
		}
		e.mu.Unlock()

		switch {
		case stopped:
			slog.Debug("Playback stopped", "token", token)
		case exitErr != nil:
			e.emitter.Post(events.KindPlayerFinished, events.PlayerFinished{
				Token: token, Status: events.StatusError, Message: exitErr.Error(),
			})
		default:
			e.emitter.Post(events.KindPlayerFinished, events.PlayerFinished{Token: token, Status: events.StatusOK})
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}

	e.player = p
	e.playToken = token
	slog.Info("Playback started", "player", player, "source", source, "token", token)
	return nil
}

// Pause is not available for command line players
func (e *PipeWireEngine) Pause() error {
	return fmt.Errorf("pause playback: %w", ErrUnsupported)
}

// Stop interrupts the current track without raising playerFinished
func (e *PipeWireEngine) Stop() error {
	e.mu.Lock()
	p := e.player
	e.player = nil
	e.playToken = 0
	e.mu.Unlock()

	if err := p.interrupt(processStopTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}
	return nil
}

// PrepareRecordingAtPath checks the tools and creates the target directory
func (e *PipeWireEngine) PrepareRecordingAtPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty recording path", ErrNativeCommand)
	}
	if _, err := lookPath("pw-record"); err != nil {
		return fmt.Errorf("%w: pw-record not found: %v", ErrNativeCommand, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recorder != nil {
		return fmt.Errorf("%w: recording already in progress", ErrNativeCommand)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: failed to create output directory: %v", ErrNativeCommand, err)
	}

	e.recordPath = path
	slog.Info("PipeWire recording prepared", "path", path)
	return nil
}

// StartRecording launches pw-record on the prepared path
func (e *PipeWireEngine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recordPath == "" {
		return fmt.Errorf("%w: no recording prepared, call PrepareRecordingAtPath first", ErrNativeCommand)
	}
	if e.recorder != nil {
		return fmt.Errorf("%w: recording already in progress", ErrNativeCommand)
	}

	// pw-record refuses to append
	os.Remove(e.recordPath)

	path := e.recordPath
	p, err := startProcess(recordArgs(path, e.sampleRate), e.logWriter, func(exitErr error, stopped bool) {
		e.finishRecording(path, exitErr, stopped)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}

	e.recorder = p
	e.started = time.Now()
	e.tickerStop = make(chan struct{})
	go e.progressWorker(e.started, e.interval, e.tickerStop)

	slog.Info("PipeWire recording started", "path", path)
	return nil
}

// progressWorker posts elapsed recording time until stop is closed
func (e *PipeWireEngine) progressWorker(started time.Time, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.emitter.Post(events.KindRecordingProgress, events.Progress{CurrentTime: time.Since(started).Seconds()})
		}
	}
}

// finishRecording runs when pw-record exits
func (e *PipeWireEngine) finishRecording(path string, exitErr error, stopped bool) {
	e.mu.Lock()
	e.recorder = nil
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
	e.mu.Unlock()

	if !stopped {
		msg := "pw-record exited unexpectedly"
		if exitErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, exitErr)
		}
		e.emitter.Post(events.KindRecordingError, events.Failure{Message: msg, Code: events.CodeProcessExit})
		return
	}

	if err := validateOutputFile(path); err != nil {
		e.emitter.Post(events.KindRecordingFinished, events.Finished{Status: events.StatusError, Path: path})
		slog.Error("Recording output invalid", "path", path, "error", err)
		return
	}

	e.emitter.Post(events.KindRecordingFinished, events.Finished{Status: events.StatusOK, Path: path})
	slog.Info("PipeWire recording completed", "path", path)
}

// validateOutputFile checks that the recording produced data
func validateOutputFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("output file is empty")
	}
	return nil
}

// PauseRecording is not available for pw-record
func (e *PipeWireEngine) PauseRecording() error {
	return fmt.Errorf("pause recording: %w", ErrUnsupported)
}

// StopRecording interrupts pw-record and returns; recordingFinished follows
// its exit
func (e *PipeWireEngine) StopRecording() error {
	e.mu.Lock()
	p := e.recorder
	e.mu.Unlock()

	if p == nil {
		return fmt.Errorf("%w: no recording in progress", ErrNativeCommand)
	}

	slog.Debug("Stopping PipeWire recording...")
	if err := p.interrupt(processStopTimeout); err != nil {
		return fmt.Errorf("%w: failed to stop pw-record: %v", ErrNativeCommand, err)
	}
	return nil
}

// DeleteRecording removes the last recorded file
func (e *PipeWireEngine) DeleteRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recorder != nil {
		return fmt.Errorf("%w: cannot delete while recording", ErrNativeCommand)
	}
	if e.recordPath == "" {
		return fmt.Errorf("%w: no recording to delete", ErrNativeCommand)
	}

	if err := os.Remove(e.recordPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}

	slog.Info("Recording deleted", "path", e.recordPath)
	e.recordPath = ""
	return nil
}

// PlayRecording plays the last recorded file
func (e *PipeWireEngine) PlayRecording() error {
	e.mu.Lock()
	path, players := e.recordPath, e.players
	e.mu.Unlock()

	if path == "" {
		return fmt.Errorf("%w: no recording to play", ErrNativeCommand)
	}
	if err := e.StopPlaying(); err != nil {
		slog.Debug("Failed to stop previous replay", "error", err)
	}

	player, err := findPlayer(players)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}
	args, err := playerArgs(player, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var p *process
	p, err = startProcess(args, e.logWriter, func(error, bool) {
		e.mu.Lock()
		if e.replay == p {
			e.replay = nil
		}
		e.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}
	e.replay = p
	return nil
}

// StopPlaying stops playback of the last recording
func (e *PipeWireEngine) StopPlaying() error {
	e.mu.Lock()
	p := e.replay
	e.replay = nil
	e.mu.Unlock()

	if err := p.interrupt(processStopTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrNativeCommand, err)
	}
	return nil
}

// Close stops every child process and waits for them to exit
func (e *PipeWireEngine) Close() error {
	e.mu.Lock()
	running := []*process{e.recorder, e.player, e.replay}
	e.player, e.playToken, e.replay = nil, 0, nil
	e.mu.Unlock()

	var errs []error
	for _, p := range running {
		if err := p.stop(processStopTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	slog.Debug("PipeWire engine closed")
	return errors.Join(errs...)
}
