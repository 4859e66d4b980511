// Package conf loads facetrack settings from YAML, environment variables and flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
)

// Settings is the root configuration structure.
type Settings struct {
	Main         MainSettings         `yaml:"main"`
	WebServer    WebServerSettings    `yaml:"webserver"`
	Clips        ClipsSettings        `yaml:"clips"`
	Annotation   AnnotationSettings   `yaml:"annotation"`
	Analysis     AnalysisSettings     `yaml:"analysis"`
	Recognition  RecognitionSettings  `yaml:"recognition"`
	Pipelines    []PipelineSettings   `yaml:"pipelines"`
	LiveStream   LiveStreamSettings   `yaml:"livestream"`
	Notification NotificationSettings `yaml:"notification"`
	MQTT         MQTTSettings         `yaml:"mqtt"`
	Sentry       SentrySettings       `yaml:"sentry"`
	Metrics      MetricsSettings      `yaml:"metrics"`
}

// MainSettings holds process-wide settings.
type MainSettings struct {
	Name string               `yaml:"name"`
	Log  logger.LoggingConfig `yaml:"log"`
}

// WebServerSettings configures the HTTP listener.
type WebServerSettings struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	NotifyRateLimit float64 `yaml:"notifyratelimit"` // requests per second per client on /notify, 0 disables
}

// Address returns host:port for the listener.
func (w WebServerSettings) Address() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// ClipsSettings configures clip storage.
type ClipsSettings struct {
	Dir             string        `yaml:"dir"`
	AnnotatedSuffix string        `yaml:"annotatedsuffix"`
	CacheTTL        time.Duration `yaml:"cachettl"` // how long fetched clip bytes stay in memory
}

// AnnotationSettings configures annotation sessions.
type AnnotationSettings struct {
	Timeout    time.Duration `yaml:"timeout"`    // upper bound for one face analysis call
	SessionTTL time.Duration `yaml:"sessionttl"` // idle time after which a session is discarded
}

// AnalysisSettings locates the face analysis engine.
type AnalysisSettings struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RecognitionSettings configures the recognition database.
type RecognitionSettings struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	Path   string `yaml:"path"`   // sqlite database file
	DSN     string `yaml:"dsn"`     // mysql data source name
	DSNFile string `yaml:"dsnfile"` // file holding the DSN, takes precedence over dsn
}

// PipelineSettings describes one analysis pipeline process.
type PipelineSettings struct {
	Name        string        `yaml:"name"`
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	FrameMarker string        `yaml:"framemarker"` // stdout line emitted once per processed frame
	Timeout     time.Duration `yaml:"timeout"`     // no frame within this window means not running
}

// LiveStreamSettings locates the RTSP-to-web relay.
type LiveStreamSettings struct {
	Path      string `yaml:"path"`
	RelayPort int    `yaml:"relayport"`
}

// NotificationSettings configures notification forwarding.
type NotificationSettings struct {
	Shoutrrr []string      `yaml:"shoutrrr"` // service URLs receiving every published event
	Timeout  time.Duration `yaml:"timeout"`
}

// MQTTSettings configures the optional MQTT event source.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"passwordfile"` // file holding the password, takes precedence over password
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MetricsSettings toggles the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the configuration file (explicit path, or config.yaml from the
// default search paths), applies defaults and environment overrides, and validates.
func Load(configFile string) (*Settings, error) {
	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(configFile string) error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// defaults and environment only
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "facetrack"))
	}
	return append(paths, "/etc/facetrack")
}

// ConfigFileUsed returns the path of the loaded config file, empty when running on defaults.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Dump renders settings as YAML with secrets masked.
func Dump(s *Settings) ([]byte, error) {
	masked := *s
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = "********"
	}
	if masked.Recognition.DSN != "" {
		masked.Recognition.DSN = "********"
	}
	if len(masked.Notification.Shoutrrr) > 0 {
		urls := make([]string, len(masked.Notification.Shoutrrr))
		for i := range urls {
			urls[i] = "********"
		}
		masked.Notification.Shoutrrr = urls
	}
	return yaml.Marshal(&masked)
}
