package cmd

import (
	"fmt"

	"github.com/audiolibrelab/audiobridge/internal/audio"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the audio backends available on this system",
	RunE: func(cmd *cobra.Command, args []string) error {
		selected := audio.ResolveBackend(cfg)
		for _, b := range audio.GetAvailableBackends() {
			marker := " "
			if b == selected {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, b)
		}
		return nil
	},
}
