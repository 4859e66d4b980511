// Package enroll provides the enroll command, which adds one person's face
// from a single-person clip to the recognition database.
package enroll

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/annotation"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/recognition"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// Command creates and returns the enroll command
func Command(app *runtime.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <clip> <person>",
		Short: "Enroll the single face in a clip under a person's name",
		Long:  "Run face analysis on a clip that shows exactly one person and store the face embeddings under the given name, creating the person if needed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := app.Settings

			storage, err := clips.NewDirStorage(settings.Clips.Dir)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()
			catalog := clips.NewCatalog(storage, settings.Clips.AnnotatedSuffix, app.Log("clips"))

			store, err := recognition.Open(settings.Recognition, app.Log("recognition"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine := analysis.NewClient(settings.Analysis, app.Log("analysis"))
			defer engine.Close()

			res, err := annotation.Enroll(cmd.Context(), catalog, engine, store, args[0], args[1])
			if err != nil {
				return err
			}
			app.Log("enroll").Info("clip enrolled",
				logger.String("clip", args[0]),
				logger.String("object_id", res.ObjectID),
				logger.Int("added", res.Added))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d embeddings\n", args[1], res.Added)
			return nil
		},
	}
}
