package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/audiolibrelab/audiobridge/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	backend      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "audiobridge",
	Short: "Playback and recording front end for native audio engines",
	Long: `audiobridge forwards playback and recording commands to a native audio
engine (PipeWire tools or a simulated engine) and reports the engine's
progress, peak power, completion and errors as events.

Use 'audiobridge serve' to control it over HTTP and follow events on a
websocket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		if cfgFile == "" {
			cfgFile = os.ExpandEnv("$HOME/.config/audiobridge.yaml")
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if backend != "" {
			cfg.Audio.Backend = backend
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid --backend: %w", err)
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/audiobridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "audio backend: auto, simulated or pipewire (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=audio tool output, 3=max tracing")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(backendsCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))

	// Set environment variables for maximum tracing (level 3)
	if level >= 3 {
		os.Setenv("PIPEWIRE_DEBUG", "3")
	}
}

// toolOutput is where output of external audio tools goes
func toolOutput() io.Writer {
	if verboseLevel >= 2 {
		return os.Stderr
	}
	return nil
}
