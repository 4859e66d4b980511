package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with code that builds settings without viper (tests, CLI helpers).
const (
	DefaultAnnotatedSuffix = "_annotated"
	DefaultRelayPort       = 8888
	DefaultFrameMarker     = "frame"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("main.name", "facetrack")
	viper.SetDefault("main.log.defaultlevel", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.fileoutput.enabled", false)
	viper.SetDefault("main.log.fileoutput.path", "logs/facetrack.log")
	viper.SetDefault("main.log.fileoutput.level", "debug")

	viper.SetDefault("webserver.host", "0.0.0.0")
	viper.SetDefault("webserver.port", 8080)
	viper.SetDefault("webserver.notifyratelimit", 20.0)

	viper.SetDefault("clips.dir", "clips")
	viper.SetDefault("clips.annotatedsuffix", DefaultAnnotatedSuffix)
	viper.SetDefault("clips.cachettl", 2*time.Minute)

	viper.SetDefault("annotation.timeout", 10*time.Minute)
	viper.SetDefault("annotation.sessionttl", 2*time.Hour)

	viper.SetDefault("analysis.url", "http://localhost:8765")
	viper.SetDefault("analysis.timeout", 10*time.Minute)

	viper.SetDefault("recognition.driver", "sqlite")
	viper.SetDefault("recognition.path", "data/recognition.db")
	viper.SetDefault("recognition.dsn", "")
	viper.SetDefault("recognition.dsnfile", "")

	viper.SetDefault("pipelines", []map[string]any{})

	viper.SetDefault("livestream.path", "face-tracking")
	viper.SetDefault("livestream.relayport", DefaultRelayPort)

	viper.SetDefault("notification.shoutrrr", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "facetrack/events")
	viper.SetDefault("mqtt.clientid", "facetrack")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.passwordfile", "")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("metrics.enabled", true)
}
