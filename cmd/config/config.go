// Package config provides the config command for printing effective settings.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// Command creates and returns the config command
func Command(app *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := conf.Dump(app.Settings)
			if err != nil {
				return err
			}
			if used := conf.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", used)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
