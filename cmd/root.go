// Package cmd assembles the facetrack command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DeGirum/face-recognition/cmd/clips"
	configcmd "github.com/DeGirum/face-recognition/cmd/config"
	"github.com/DeGirum/face-recognition/cmd/db"
	"github.com/DeGirum/face-recognition/cmd/enroll"
	"github.com/DeGirum/face-recognition/cmd/serve"
	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/runtime"
)

// RootCommand creates and returns the root command
func RootCommand(app *runtime.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "facetrack",
		Short:         "Face tracking clip annotation and notification server",
		Version:       fmt.Sprintf("%s (built %s)", app.GetVersion(), app.GetBuildDate()),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize(app, configFile)
		},
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(app),
		clips.Command(app),
		db.Command(app),
		enroll.Command(app),
		configcmd.Command(app),
	)
	return rootCmd
}

// initialize loads settings and starts the central logger before any
// subcommand runs.
func initialize(app *runtime.Context, configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	if viper.GetBool("debug") {
		settings.Main.Log.DefaultLevel = "debug"
		if settings.Main.Log.Console != nil {
			settings.Main.Log.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Main.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app.Settings = settings
	app.Logger = central
	if used := conf.ConfigFileUsed(); used != "" {
		app.Log("main").Debug("configuration loaded", logger.String("file", used))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: search ., ~/.config/facetrack, /etc/facetrack)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
