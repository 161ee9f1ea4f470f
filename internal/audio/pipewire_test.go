package audio

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/audiobridge/internal/config"
)

// stubLookPath makes only the named tools visible for the duration of the test
func stubLookPath(t *testing.T, available ...string) {
	t.Helper()
	original := lookPath
	t.Cleanup(func() { lookPath = original })

	lookPath = func(name string) (string, error) {
		for _, tool := range available {
			if tool == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func TestFindPlayer_PreferenceOrder(t *testing.T) {
	stubLookPath(t, "mpv", "aplay")

	player, err := findPlayer([]string{"pw-play", "ffplay", "mpv", "aplay"})
	require.NoError(t, err)
	assert.Equal(t, "mpv", player)
}

func TestFindPlayer_NoneAvailable(t *testing.T) {
	stubLookPath(t)

	_, err := findPlayer([]string{"pw-play", "ffplay"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio player found")
	assert.Contains(t, err.Error(), "pw-play, ffplay")
}

func TestPlayerArgs(t *testing.T) {
	tests := []struct {
		player string
		source string
		want   []string
	}{
		{"pw-play", "/tmp/a.wav", []string{"pw-play", "/tmp/a.wav"}},
		{"mpv", "https://example.com/a.mp3", []string{"mpv", "--no-video", "https://example.com/a.mp3"}},
		{"ffplay", "/tmp/a.flac", []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "/tmp/a.flac"}},
		{"aplay", "/tmp/A.WAV", []string{"aplay", "/tmp/A.WAV"}},
	}

	for _, tt := range tests {
		t.Run(tt.player, func(t *testing.T) {
			got, err := playerArgs(tt.player, tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlayerArgs_Rejects(t *testing.T) {
	_, err := playerArgs("aplay", "/tmp/a.flac")
	assert.Error(t, err, "aplay should reject non-WAV files")

	_, err = playerArgs("winamp", "/tmp/a.wav")
	assert.Error(t, err)
}

func TestRecordArgs(t *testing.T) {
	assert.Equal(t, []string{"pw-record", "--rate", "48000", "/tmp/a.wav"}, recordArgs("/tmp/a.wav", 48000))
	assert.Equal(t, []string{"pw-record", "/tmp/a.wav"}, recordArgs("/tmp/a.wav", 0))
}

func TestValidateOutputFile(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, validateOutputFile(filepath.Join(dir, "missing.wav")))

	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.Error(t, validateOutputFile(empty))

	full := filepath.Join(dir, "full.wav")
	require.NoError(t, os.WriteFile(full, []byte("RIFF"), 0644))
	assert.NoError(t, validateOutputFile(full))
}

func TestPipeWireEngine_PrepareRequiresPwRecord(t *testing.T) {
	stubLookPath(t)
	engine := NewPipeWireEngine(config.Default(), &recordingEmitter{})

	err := engine.PrepareRecordingAtPath(filepath.Join(t.TempDir(), "a.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNativeCommand)
}

func TestPipeWireEngine_PrepareCreatesDirectory(t *testing.T) {
	stubLookPath(t, "pw-record")
	engine := NewPipeWireEngine(config.Default(), &recordingEmitter{})

	path := filepath.Join(t.TempDir(), "nested", "take1.wav")
	require.NoError(t, engine.PrepareRecordingAtPath(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestPipeWireEngine_CommandsWithoutState(t *testing.T) {
	stubLookPath(t)
	engine := NewPipeWireEngine(config.Default(), &recordingEmitter{})

	assert.ErrorIs(t, engine.StartRecording(), ErrNativeCommand)
	assert.ErrorIs(t, engine.StopRecording(), ErrNativeCommand)
	assert.ErrorIs(t, engine.DeleteRecording(), ErrNativeCommand)
	assert.ErrorIs(t, engine.PlayRecording(), ErrNativeCommand)
	assert.ErrorIs(t, engine.PauseRecording(), ErrUnsupported)
	assert.ErrorIs(t, engine.Pause(), ErrUnsupported)
	assert.ErrorIs(t, engine.Play("/definitely/not/here.wav", 1), ErrNativeCommand)
	assert.ErrorIs(t, engine.PlayWithURL("https://example.com/a.mp3", 1), ErrNativeCommand)

	// Nothing running: these are no-ops
	assert.NoError(t, engine.Stop())
	assert.NoError(t, engine.StopPlaying())
	assert.NoError(t, engine.Close())
}

func TestProcess_InterruptReturnsWithoutWaiting(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	type exit struct {
		err     error
		stopped bool
	}
	exited := make(chan exit, 1)
	p, err := startProcess([]string{"sleep", "30"}, io.Discard, func(err error, stopped bool) {
		exited <- exit{err, stopped}
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.interrupt(processStopTimeout))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case e := <-exited:
		assert.True(t, e.stopped, "exit should be reported as requested")
	case <-time.After(3 * time.Second):
		t.Fatal("process exit was never reported")
	}

	// Interrupting an exited process is a no-op
	assert.NoError(t, p.interrupt(processStopTimeout))
	assert.NoError(t, p.stop(processStopTimeout))
}
