package main

import (
	"fmt"
	"os"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write a starting configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(config.Generate())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("%s already exists", out)
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}
			successColor.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
