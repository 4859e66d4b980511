// Package db provides commands for the recognition database.
package db

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/recognition"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// Command creates and returns the db command
func Command(app *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect or reset the recognition database",
	}
	cmd.AddCommand(infoCommand(app), clearCommand(app), exportCommand(app))
	return cmd
}

func infoCommand(app *runtime.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the number of stored embeddings per person",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := recognition.Open(app.Settings.Recognition, app.Log("recognition"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			counts, err := store.CountEmbeddings(cmd.Context())
			if err != nil {
				return err
			}

			total := 0
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("PERSON", "ID", "EMBEDDINGS")
			for _, c := range recognition.SortedCounts(counts) {
				t.Row(c.Attribute, c.ID, strconv.Itoa(c.Count))
				total += c.Count
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, t.String())
			fmt.Fprintf(out, "%d people, %d embeddings\n", len(counts), total)
			return nil
		},
	}
}

func clearCommand(app *runtime.Context) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every known person and embedding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to clear the recognition database without --yes")
			}
			store, err := recognition.Open(app.Settings.Recognition, app.Log("recognition"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ClearAllTables(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Recognition database cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm deletion")
	return cmd
}

func exportCommand(app *runtime.Context) *cobra.Command {
	var target conf.RecognitionSettings
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the recognition database into another database",
		Long: `Copy every known person and embedding from the configured recognition
database into a target database, for example when moving from SQLite to MySQL.
People are matched by name, so the export can be repeated safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target.Driver == app.Settings.Recognition.Driver &&
				target.Path == app.Settings.Recognition.Path &&
				target.DSN == app.Settings.Recognition.DSN {
				return errors.New("target database is the configured database")
			}

			src, err := recognition.Open(app.Settings.Recognition, app.Log("recognition"))
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			dst, err := recognition.Open(target, app.Log("recognition"))
			if err != nil {
				return err
			}
			defer func() { _ = dst.Close() }()

			stats, err := recognition.Migrate(cmd.Context(), src, dst, app.Log("export"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d people (%d new), %d embeddings copied in %s\n",
				stats.Objects, stats.Created, stats.Embeddings, stats.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&target.Driver, "driver", "mysql", "Target driver (sqlite or mysql)")
	cmd.Flags().StringVar(&target.DSN, "dsn", "", "Target MySQL data source name")
	cmd.Flags().StringVar(&target.Path, "path", "", "Target SQLite database file")
	return cmd
}
