// Package clips provides the clips command for inspecting recorded clips.
package clips

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// Command creates and returns the clips command
func Command(app *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Inspect recorded clips",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clips, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := clips.NewDirStorage(app.Settings.Clips.Dir)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()

			catalog := clips.NewCatalog(storage, app.Settings.Clips.AnnotatedSuffix, app.Log("clips"))
			list, err := catalog.List(cmd.Context())
			if err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("CREATED", "FILE", "ANNOTATED")
			for _, c := range list {
				name := c.Stem
				if c.Original != nil {
					name = c.Original.Name
				}
				annotated := ""
				if c.Annotated != nil {
					annotated = "yes"
				}
				t.Row(c.CreatedAt().In(time.Local).Format(time.DateTime), name, annotated)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	})
	return cmd
}
