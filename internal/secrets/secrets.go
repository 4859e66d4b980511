// Package secrets resolves credentials from environment references and
// mounted secret files (Docker/Kubernetes secrets). Secret values are never
// logged or included in errors.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/DeGirum/face-recognition/internal/errors"
	"github.com/DeGirum/face-recognition/internal/logger"
)

const (
	componentName = "secrets"

	// secrets are tokens and passwords, not large files
	maxSecretFileSize = 64 * 1024

	// group/other bits that should never be set on a secret file
	insecurePermBits = 0o077
)

// Expand resolves ${VAR} and ${VAR:-default} references in s. A reference
// without a default to an unset or empty variable is an error.
func Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable by
// group or other are accepted with a warning.
func ReadFile(path string, log logger.Logger) (string, error) {
	if path == "" {
		return "", fileError("secret file path is empty", path)
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fileError("secret file not found", clean)
		}
		return "", errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", fileError("secret path is not a regular file", clean)
	}
	if info.Size() > maxSecretFileSize {
		return "", fileError("secret file too large", clean)
	}
	if perm := info.Mode().Perm(); perm&insecurePermBits != 0 && log != nil {
		log.Warn("secret file is readable by group or other",
			logger.String("path", clean),
			logger.String("perm", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", clean).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError("secret file is empty", clean)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string, log logger.Logger) (string, error) {
	if filePath != "" {
		return ReadFile(filePath, log)
	}
	return Expand(value)
}

func fileError(msg, path string) error {
	return errors.Newf("%s: %s", msg, path).
		Component(componentName).
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
