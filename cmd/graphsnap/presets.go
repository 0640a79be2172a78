package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/v0xg/graphsnap/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in presets and configured targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Presets:")
			for _, p := range config.Presets() {
				fmt.Printf("  %-12s %s\n", p.Name, p.Description)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(cfg.Targets) == 0 {
				return nil
			}
			fmt.Println("Targets:")
			for _, name := range cfg.TargetNames() {
				t, err := cfg.Target(name)
				if err != nil {
					return err
				}
				fmt.Printf("  %-12s %s %s → %s\n", name, t.URL, t.Selector, t.Output)
			}
			return nil
		},
	}
}
