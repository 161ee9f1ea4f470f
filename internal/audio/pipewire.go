package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// urlPlayers can stream http(s) sources
var urlPlayers = []string{"ffplay", "mpv", "vlc"}

// findPlayer returns the first player in preference order present on PATH
func findPlayer(preferred []string) (string, error) {
	for _, player := range preferred {
		if _, err := lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(preferred, ", "))
}

// playerArgs builds the command line that plays source with player
func playerArgs(player, source string) ([]string, error) {
	switch player {
	case "pw-play":
		return []string{"pw-play", source}, nil
	case "vlc":
		return []string{"vlc", "--intf", "dummy", "--play-and-exit", source}, nil
	case "mpv":
		return []string{"mpv", "--no-video", source}, nil
	case "ffplay":
		return []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", source}, nil
	case "aplay":
		// aplay only understands WAV
		if !strings.HasSuffix(strings.ToLower(source), ".wav") {
			return nil, fmt.Errorf("aplay requires WAV format: %s", source)
		}
		return []string{"aplay", source}, nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

// recordArgs builds the pw-record command line
func recordArgs(path string, sampleRate int) []string {
	args := []string{"pw-record"}
	if sampleRate > 0 {
		args = append(args, "--rate", fmt.Sprintf("%d", sampleRate))
	}
	return append(args, path)
}

// process is a child audio tool whose exit is reported once
type process struct {
	name     string
	cmd      *exec.Cmd
	stopping atomic.Bool
	done     chan struct{}
	err      error
}

// startProcess launches args and calls onExit from a background goroutine
// when the process ends. stopped reports whether the exit was requested.
func startProcess(args []string, logWriter io.Writer, onExit func(err error, stopped bool)) (*process, error) {
	cmd := exec.Command(args[0], args[1:]...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdout = logWriter

	slog.Debug("Starting audio process", "command", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", args[0], err)
	}

	p := &process{name: args[0], cmd: cmd, done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readOutput(stderr, logWriter, p.name)
	}()

	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		close(p.done)
		if onExit != nil {
			onExit(p.err, p.stopping.Load())
		}
	}()

	return p, nil
}

// readOutput copies a pipe line by line to the log writer
func readOutput(pipe io.ReadCloser, logWriter io.Writer, label string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(logWriter, line)
		slog.Debug("Audio process output", "process", label, "line", line)
	}
	pipe.Close()
}

// interrupt asks the process to exit and returns without waiting. A
// process still running after timeout is killed; onExit reports the outcome.
func (p *process) interrupt(timeout time.Duration) error {
	if p == nil {
		return nil
	}
	if err := p.signal(); err != nil {
		return err
	}

	go func() {
		select {
		case <-p.done:
		case <-time.After(timeout):
			slog.Debug("Audio process did not exit in time, killing", "process", p.name)
			p.cmd.Process.Kill()
		}
	}()
	return nil
}

// signal marks the exit as requested and sends an interrupt, falling back
// to kill
func (p *process) signal() error {
	p.stopping.Store(true)

	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to interrupt audio process, killing", "process", p.name, "error", err)
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return fmt.Errorf("failed to stop %s: %w", p.name, killErr)
		}
	}
	return nil
}

// stop interrupts the process and waits for it, killing it after timeout
func (p *process) stop(timeout time.Duration) error {
	if p == nil {
		return nil
	}
	if err := p.signal(); err != nil {
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		slog.Debug("Audio process did not exit in time, killing", "process", p.name)
		p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("%s did not exit within %s", p.name, timeout)
	}
}
