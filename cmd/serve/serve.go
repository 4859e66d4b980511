// Package serve provides the serve command: the HTTP server, pipelines,
// notification fan-out and the optional MQTT source.
package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/DeGirum/face-recognition/internal/analysis"
	"github.com/DeGirum/face-recognition/internal/annotation"
	"github.com/DeGirum/face-recognition/internal/api"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/media"
	"github.com/DeGirum/face-recognition/internal/mqtt"
	"github.com/DeGirum/face-recognition/internal/notification"
	"github.com/DeGirum/face-recognition/internal/observability"
	"github.com/DeGirum/face-recognition/internal/pipeline"
	"github.com/DeGirum/face-recognition/internal/recognition"
	"github.com/DeGirum/face-recognition/internal/runtime"
	"github.com/DeGirum/face-recognition/internal/telemetry"
)

const pipelineStopTimeout = 10 * time.Second

// Command creates and returns the serve command
func Command(app *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server and analysis pipelines",
		Long:  "Start the configured analysis pipelines and serve the health endpoint, notifications, clips and the annotation UI.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), app)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", "", "Listen address")
	cmd.Flags().IntP("port", "p", 0, "Listen port")
	cmd.Flags().String("clips", "", "Directory holding recorded clips")

	for key, flag := range map[string]string{
		"webserver.host": "host",
		"webserver.port": "port",
		"clips.dir":      "clips",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, app *runtime.Context) error {
	settings := app.Settings
	log := app.Log("serve")

	flush, err := telemetry.Init(settings.Sentry, app.GetVersion(), app.Log("telemetry"))
	if err != nil {
		log.Warn("error telemetry disabled", logger.Error(err))
	}
	defer flush()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	storage, err := clips.NewDirStorage(settings.Clips.Dir)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()
	catalog := clips.NewCatalog(storage, settings.Clips.AnnotatedSuffix, app.Log("clips"))
	mediaServer := media.NewServer(catalog, settings.Clips.CacheTTL, m.Media, app.Log("media"))
	catalog.OnInvalidate(mediaServer.Invalidate)

	store, err := recognition.Open(settings.Recognition, app.Log("recognition"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine := analysis.NewClient(settings.Analysis, app.Log("analysis"))
	defer engine.Close()

	hub, err := newBroadcaster(settings, m, app)
	if err != nil {
		return err
	}
	defer hub.Close()

	g, gctx := errgroup.WithContext(ctx)

	registry := pipeline.NewRegistry(m.Pipeline, app.Log("pipeline"))
	startPipelines(gctx, settings.Pipelines, registry, app)

	sessions := annotation.NewManager(&annotation.Deps{
		Catalog:     catalog,
		Engine:      engine,
		Known:       annotation.NewKnownObjects(store),
		Timeout:     settings.Annotation.Timeout,
		BaseContext: gctx,
		Metrics:     m.Annotation,
		Logger:      app.Log("annotation"),
	}, settings.Annotation.SessionTTL)

	server, err := api.New(api.ConfigFromSettings(settings),
		api.WithLogger(app.Log("api")),
		api.WithHealth(registry),
		api.WithEvents(hub),
		api.WithMedia(mediaServer),
		api.WithClips(catalog),
		api.WithSessions(sessions),
		api.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	g.Go(func() error { return server.Run(gctx) })

	if settings.MQTT.Enabled {
		sub, err := mqtt.NewSubscriber(mqtt.ConfigFromSettings(settings.MQTT), hub, m.MQTT, app.Log("mqtt"))
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := sub.Start(gctx); err != nil {
				log.Error("MQTT source unavailable", logger.Error(err))
				return nil
			}
			<-gctx.Done()
			sub.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), pipelineStopTimeout)
		defer cancel()
		return registry.StopAll(stopCtx)
	})

	log.Info("facetrack started",
		logger.String("version", app.GetVersion()),
		logger.String("address", settings.WebServer.Address()),
		logger.Int("pipelines", registry.Len()))

	err = g.Wait()
	log.Info("facetrack stopped")
	return err
}

func newBroadcaster(settings *conf.Settings, m *observability.Metrics, app *runtime.Context) (*notification.Broadcaster, error) {
	var forwarders []notification.Forwarder
	if len(settings.Notification.Shoutrrr) > 0 {
		f, err := notification.NewShoutrrrForwarder(settings.Notification.Shoutrrr, settings.Notification.Timeout)
		if err != nil {
			return nil, err
		}
		forwarders = append(forwarders, f)
	}
	return notification.NewBroadcaster(notification.Config{
		Forwarders: forwarders,
		Metrics:    m.Notification,
		Logger:     app.Log("notification"),
	}), nil
}

// startPipelines launches every configured pipeline. One that fails to start
// stays registered so health reports it as down.
func startPipelines(ctx context.Context, pipelines []conf.PipelineSettings, registry *pipeline.Registry, app *runtime.Context) {
	log := app.Log("pipeline")
	for _, p := range pipelines {
		if _, err := registry.Start(ctx, p.Name, pipeline.NewProcess(p, log)); err != nil {
			log.Error("failed to start pipeline", logger.String("name", p.Name), logger.Error(err))
			registry.Register(pipeline.Entry{Name: p.Name})
		}
	}
}
