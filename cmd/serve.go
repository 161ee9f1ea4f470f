package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/server"
	"github.com/audiolibrelab/audiobridge/internal/service"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the audiobridge web server. Playback and recording are driven with
JSON POST requests under /api, and every engine event is streamed on the
/ws/events websocket.

The config file is watched; timing changes apply without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		svc, err := service.New(cfg, toolOutput())
		if err != nil {
			return err
		}
		defer svc.Close()

		if _, err := os.Stat(cfgFile); err == nil {
			if err := config.Watch(cfgFile, profile, svc.ApplyConfig); err != nil {
				slog.Warn("Config hot reload disabled", "error", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(svc, cfgFile, port)
		slog.Info("audiobridge web server starting", "port", port, "config", cfgFile, "backend", svc.Backend())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (default from config)")
}
