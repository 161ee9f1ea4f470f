package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/audio/audiotest"
	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/events"
	"github.com/audiolibrelab/audiobridge/internal/recorder"
)

func newTestService(t *testing.T) (*AudioService, *audiotest.Engine) {
	t.Helper()
	engine := audiotest.NewEngine()
	svc := NewWithEngine(config.Default(), events.NewBus(), engine)
	t.Cleanup(func() { svc.Close() })
	return svc, engine
}

func TestService_StatusFollowsSession(t *testing.T) {
	svc, _ := newTestService(t)

	st := svc.Status()
	assert.Equal(t, StatusStandby, st.Status)
	assert.Nil(t, st.Session)
	assert.Equal(t, audio.BackendTypeSimulated, st.Backend)
	assert.Equal(t, config.DefaultProfile, st.Profile)

	session, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	st = svc.Status()
	assert.Equal(t, StatusRecording, st.Status)
	require.NotNil(t, st.Session)
	assert.Equal(t, session.ID, st.Session.ID)
	assert.Equal(t, "/tmp/a.wav", st.Session.Path)

	svc.Bus().Emit(events.KindRecordingFinished, events.Finished{Status: events.StatusOK, Path: "/tmp/a.wav"})
	assert.Equal(t, StatusStandby, svc.Status().Status)
}

func TestService_RecordForwardsPrepareAndStart(t *testing.T) {
	svc, engine := newTestService(t)

	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	assert.Equal(t, 1, engine.Count("PrepareRecordingAtPath"))
	assert.Equal(t, 1, engine.Count("StartRecording"))

	_, err = svc.Record("/tmp/b.wav")
	assert.ErrorIs(t, err, recorder.ErrAlreadyActive)
	assert.Equal(t, 1, engine.Count("StartRecording"))
}

func TestService_LastErrorFromOnError(t *testing.T) {
	svc, engine := newTestService(t)
	engine.Fail("StartRecording", errors.New("no input device"))

	var hooked []events.Failure
	svc.SetHooks(recorder.Hooks{
		OnError: func(f events.Failure) { hooked = append(hooked, f) },
	})

	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	require.Len(t, hooked, 1)
	assert.Contains(t, svc.GetLastError(), "no input device")
	assert.Equal(t, svc.GetLastError(), svc.Status().LastError)
	assert.Equal(t, StatusStandby, svc.Status().Status)

	// A new recording clears the previous error
	engine.Fail("StartRecording", nil)
	_, err = svc.Record("/tmp/b.wav")
	require.NoError(t, err)
	assert.Empty(t, svc.GetLastError())
}

func TestService_FinishedWithErrorRecordsLastError(t *testing.T) {
	svc, _ := newTestService(t)

	var finished []events.Finished
	svc.SetHooks(recorder.Hooks{
		OnFinished: func(f events.Finished) { finished = append(finished, f) },
	})

	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)
	svc.Bus().Emit(events.KindRecordingFinished, events.Finished{Status: events.StatusError, Path: "/tmp/a.wav"})

	assert.Len(t, finished, 1)
	assert.Contains(t, svc.GetLastError(), "/tmp/a.wav")
}

func TestService_LastTokenInStatus(t *testing.T) {
	svc, _ := newTestService(t)

	svc.Player().Play("/tmp/a.wav")
	svc.Player().Play("/tmp/b.wav")

	assert.Equal(t, int64(2), svc.Status().LastToken)
}

func TestService_ApplyConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.ProgressInterval = time.Hour

	bus := events.NewBus()
	engine := audio.NewSimulatedEngine(cfg, bus)
	svc := NewWithEngine(cfg, bus, engine)
	defer svc.Close()

	var ticks int
	svc.SetHooks(recorder.Hooks{
		OnProgress: func(events.Progress) { ticks++ },
	})

	updated := config.Default()
	updated.Profile = "fast"
	updated.Recording.ProgressInterval = 10 * time.Millisecond
	svc.ApplyConfig(updated)
	assert.Equal(t, "fast", svc.Config().Profile)

	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		svc.Bus().Drain()
		return ticks >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestService_RunDeliversPostedEvents(t *testing.T) {
	svc, _ := newTestService(t)

	got := make(chan events.Progress, 1)
	svc.SetHooks(recorder.Hooks{
		OnProgress: func(p events.Progress) { got <- p },
	})
	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	svc.Bus().Post(events.KindRecordingProgress, events.Progress{CurrentTime: 1.5})

	select {
	case p := <-got:
		assert.Equal(t, 1.5, p.CurrentTime)
	case <-time.After(time.Second):
		t.Fatal("progress not delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestService_CloseStopsActiveSession(t *testing.T) {
	engine := audiotest.NewEngine()
	svc := NewWithEngine(config.Default(), events.NewBus(), engine)

	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.Equal(t, 1, engine.Count("StopRecording"))
	assert.True(t, engine.Closed())
	assert.Equal(t, StatusStandby, svc.Status().Status)
}

func TestService_CloseWithFullQueue(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.ProgressInterval = 10 * time.Millisecond
	bus := events.NewBusWithQueue(4)
	svc := NewWithEngine(cfg, bus, audio.NewSimulatedEngine(cfg, bus))

	// No Run loop: ticks fill the queue and the next Post blocks
	_, err := svc.Record("/tmp/a.wav")
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- svc.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while the event queue was full")
	}
	assert.Equal(t, StatusStandby, svc.Status().Status)
}

func TestNew_SimulatedBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "simulated"

	svc, err := New(cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, audio.BackendTypeSimulated, svc.Backend())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Backend = "coreaudio"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
