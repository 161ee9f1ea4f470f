package cmd

import (
	"fmt"
	"sort"

	"github.com/audiolibrelab/audiobridge/internal/config"

	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage audiobridge configuration profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Printf("# profile: %s\n", cfg.Profile)
		fmt.Print(string(out))
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the profiles defined in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := config.ListProfiles(cfgFile)
		if err != nil {
			return err
		}
		sort.Strings(profiles)
		for _, name := range profiles {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configSelectCmd = &cobra.Command{
	Use:   "select [profile]",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Fail before touching the file if the profile does not resolve
		if _, err := config.LoadWithProfile(cfgFile, args[0]); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile: %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configSelectCmd)
}
