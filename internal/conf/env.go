package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"webserver.host", "FACETRACK_HOST", nil},
		{"webserver.port", "FACETRACK_PORT", validateEnvPort},
		{"clips.dir", "FACETRACK_CLIPS_DIR", nil},
		{"analysis.url", "FACETRACK_ANALYSIS_URL", validateEnvURL},
		{"analysis.timeout", "FACETRACK_ANALYSIS_TIMEOUT", validateEnvDuration},
		{"annotation.timeout", "FACETRACK_ANNOTATION_TIMEOUT", validateEnvDuration},
		{"recognition.driver", "FACETRACK_RECOGNITION_DRIVER", validateEnvDriver},
		{"recognition.path", "FACETRACK_RECOGNITION_PATH", nil},
		{"recognition.dsn", "FACETRACK_RECOGNITION_DSN", nil},
		{"livestream.path", "FACETRACK_LIVESTREAM_PATH", nil},
		{"mqtt.enabled", "FACETRACK_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "FACETRACK_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "FACETRACK_MQTT_PASSWORD", nil},
		{"sentry.enabled", "FACETRACK_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "FACETRACK_SENTRY_DSN", nil},
		{"main.log.defaultlevel", "FACETRACK_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars binds environment variables and reports every invalid value at once.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	return err
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateEnvDuration(value string) error {
	_, err := time.ParseDuration(value)
	return err
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch value {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("must be sqlite or mysql")
	}
}

func validateEnvLogLevel(value string) error {
	switch value {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level")
	}
}
