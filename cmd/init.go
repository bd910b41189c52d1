package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/argh/config"
)

func newInitCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a default configuration file if it doesn't exist",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(*cobra.Command, []string) error {
			if path == "" {
				path = config.DefaultConfigFile
				if a.configFile != "" {
					path = a.configFile
				}
			}

			err := config.CreateDefaultConfig(path)
			if errors.Is(err, config.ErrConfigExists) {
				fmt.Fprintf(a.out, "Configuration already exists at %s, leaving it untouched\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created default configuration at %s\n", path)
			fmt.Fprintf(a.out, "GitHub token can be provided via the %s or GITHUB_TOKEN environment variable\n", config.EnvGithubToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Where to write the file (default ./"+config.DefaultConfigFile+")")
	return cmd
}
