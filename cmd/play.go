package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/audiobridge/internal/events"
	"github.com/audiolibrelab/audiobridge/internal/play"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var playCmd = &cobra.Command{
	Use:   "play [path-or-url]",
	Short: "Play a local file or a remote URL",
	Long: `Play a local audio file, or stream an http(s) URL, and wait until
playback finishes. Ctrl+C stops playback.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		svc, err := service.New(cfg, toolOutput())
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})

		finished := make(chan events.PlayerFinished, 1)
		player := svc.Player()
		if _, err := player.AddListener(play.EventFinish, func(f events.PlayerFinished) {
			select {
			case finished <- f:
			default:
			}
		}); err != nil {
			return err
		}

		var token play.Token
		if isURL(source) {
			token = player.PlayWithURL(source)
		} else {
			token = player.Play(source)
		}
		fmt.Printf("Playing: %s\n", source)
		slog.Debug("Playback requested", "token", token, "backend", svc.Backend())

		var result error
	wait:
		for {
			select {
			case f := <-finished:
				if f.Token != token {
					continue
				}
				if f.Status == events.StatusError {
					result = fmt.Errorf("playback failed: %s", f.Message)
				} else {
					fmt.Println("Playback completed")
				}
				break wait
			case <-ctx.Done():
				slog.Info("Stopping playback...")
				break wait
			}
		}

		player.Stop()
		stop()
		if err := g.Wait(); err != nil {
			return err
		}
		return result
	},
}

func isURL(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
