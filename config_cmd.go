package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/habistat/habistat-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the effective configuration after all override layers
(defaults, config file, environment, CLI flags) have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return config.RenderEffective(resolvedCfg, os.Stdout)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path := configPathInUse()

			if err := config.WriteDefault(path); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", path)

			return nil
		},
	}
}
