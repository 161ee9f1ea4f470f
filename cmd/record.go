package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/audiolibrelab/audiobridge/internal/events"
	"github.com/audiolibrelab/audiobridge/internal/recorder"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var recordDuration time.Duration

var recordCmd = &cobra.Command{
	Use:   "record [path]",
	Short: "Record audio to a file",
	Long: `Record audio to the given path. A bare file name is placed in the
configured recording directory. Recording runs until Ctrl+C or until
--duration has elapsed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveRecordingPath(args[0])
		slog.Info("Record command started", "path", path)

		svc, err := service.New(cfg, toolOutput())
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		outcome := newSessionOutcome()
		svc.SetHooks(recorder.Hooks{
			OnProgress: func(p events.Progress) {
				if p.CurrentMetering != nil {
					slog.Info("Recording", "elapsed", fmt.Sprintf("%.1fs", p.CurrentTime), "level_db", fmt.Sprintf("%.1f", *p.CurrentMetering))
					return
				}
				slog.Info("Recording", "elapsed", fmt.Sprintf("%.1fs", p.CurrentTime))
			},
			OnPeakPower: func(p events.PeakPower) {
				slog.Debug("Peak power", "db", p.Value)
			},
			OnFinished: func(f events.Finished) {
				slog.Info("Recording finished", "status", f.Status, "path", f.Path)
				if f.Status != events.StatusOK {
					outcome.report(fmt.Errorf("recording %s finished with status %s", f.Path, f.Status))
					return
				}
				outcome.report(nil)
			},
			OnError: func(f events.Failure) {
				outcome.report(fmt.Errorf("recording failed: %s", f.Message))
			},
		})

		runCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})

		if _, err := svc.Record(path); err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - Press Ctrl+C to stop", "backend", svc.Backend())

		var timeout <-chan time.Time
		if recordDuration > 0 {
			timer := time.NewTimer(recordDuration)
			defer timer.Stop()
			timeout = timer.C
		}

		var failure error
		select {
		case failure = <-outcome.done():
		case <-ctx.Done():
			slog.Info("Stopping recording...")
		case <-timeout:
			slog.Info("Duration reached, stopping recording...", "duration", recordDuration)
		}

		svc.Recorder().StopRecording()
		cancel()
		if err := g.Wait(); err != nil {
			return err
		}

		// A stop failure is reported synchronously through OnError
		if failure == nil {
			select {
			case failure = <-outcome.done():
			default:
			}
		}
		if failure != nil {
			return failure
		}
		fmt.Printf("Recording saved: %s\n", path)
		return nil
	},
}

// sessionOutcome carries the first end-of-session result from the hooks,
// which run on the bus goroutine, to the command
type sessionOutcome struct {
	once sync.Once
	ch   chan error
}

func newSessionOutcome() *sessionOutcome {
	return &sessionOutcome{ch: make(chan error, 1)}
}

// report records err; only the first report counts
func (o *sessionOutcome) report(err error) {
	o.once.Do(func() { o.ch <- err })
}

func (o *sessionOutcome) done() <-chan error {
	return o.ch
}

// poll returns a reported error without blocking
func (o *sessionOutcome) poll() error {
	select {
	case err := <-o.ch:
		return err
	default:
		return nil
	}
}

// resolveRecordingPath places bare names in the configured directory
func resolveRecordingPath(arg string) string {
	if filepath.IsAbs(arg) || filepath.Dir(arg) != "." {
		return arg
	}
	if filepath.Ext(arg) == "" {
		arg += "." + cfg.Recording.Format
	}
	return filepath.Join(cfg.Recording.Directory, arg)
}

func init() {
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "stop automatically after this duration (0 = until Ctrl+C)")
}
