package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError collects every configuration problem found in one pass.
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	add := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	add(validateWebServerSettings(&settings.WebServer))
	add(validateClipsSettings(&settings.Clips))
	add(validateAnalysisSettings(&settings.Analysis))
	add(validateRecognitionSettings(&settings.Recognition))
	for i := range settings.Pipelines {
		add(validatePipelineSettings(i, &settings.Pipelines[i]))
	}
	add(validateMQTTSettings(&settings.MQTT))
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		add(fmt.Errorf("sentry.dsn is required when sentry is enabled"))
	}
	if settings.Annotation.Timeout <= 0 {
		add(fmt.Errorf("annotation.timeout must be positive"))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *WebServerSettings) error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("webserver.port %d out of range", s.Port)
	}
	if s.NotifyRateLimit < 0 {
		return fmt.Errorf("webserver.notifyratelimit must not be negative")
	}
	return nil
}

func validateClipsSettings(s *ClipsSettings) error {
	if s.Dir == "" {
		return fmt.Errorf("clips.dir is required")
	}
	if s.AnnotatedSuffix == "" || strings.ContainsAny(s.AnnotatedSuffix, `/\.`) {
		return fmt.Errorf("clips.annotatedsuffix %q must be a non-empty name fragment", s.AnnotatedSuffix)
	}
	return nil
}

func validateAnalysisSettings(s *AnalysisSettings) error {
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("analysis.url %q must be an absolute URL", s.URL)
	}
	return nil
}

func validateRecognitionSettings(s *RecognitionSettings) error {
	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			return fmt.Errorf("recognition.path is required for sqlite")
		}
	case "mysql":
		if s.DSN == "" {
			return fmt.Errorf("recognition.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("recognition.driver %q not supported", s.Driver)
	}
	return nil
}

func validatePipelineSettings(i int, s *PipelineSettings) error {
	if s.Command == "" {
		return fmt.Errorf("pipelines[%d].command is required", i)
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("pipeline-%d", i)
	}
	if s.FrameMarker == "" {
		s.FrameMarker = DefaultFrameMarker
	}
	if s.Timeout < 0 {
		return fmt.Errorf("pipelines[%d].timeout must not be negative", i)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	if s.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if s.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when mqtt is enabled")
	}
	return nil
}
