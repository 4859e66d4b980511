package conf

import (
	"os"

	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/secrets"
)

// resolveSecrets replaces credential fields with the contents of their
// *file counterparts and expands ${VAR} references. It runs before the
// central logger exists, so warnings go to stderr.
func resolveSecrets(s *Settings) error {
	log := logger.NewSlogLogger(os.Stderr, logger.LogLevelWarn).Module("conf")

	var err error
	if s.MQTT.Password, err = secrets.Resolve(s.MQTT.PasswordFile, s.MQTT.Password, log); err != nil {
		return err
	}
	if s.Recognition.DSN, err = secrets.Resolve(s.Recognition.DSNFile, s.Recognition.DSN, log); err != nil {
		return err
	}
	if s.Sentry.DSN, err = secrets.Expand(s.Sentry.DSN); err != nil {
		return err
	}
	for i, url := range s.Notification.Shoutrrr {
		if s.Notification.Shoutrrr[i], err = secrets.Expand(url); err != nil {
			return err
		}
	}
	return nil
}
