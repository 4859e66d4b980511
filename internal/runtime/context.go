// Package runtime carries process state shared by every command: build
// metadata, the loaded settings and the central logger.
package runtime

import (
	"github.com/DeGirum/face-recognition/internal/conf"
	"github.com/DeGirum/face-recognition/internal/logger"
)

// UnknownValue is reported for build metadata that was not injected.
const UnknownValue = "unknown"

// Context is populated before any subcommand runs.
type Context struct {
	// Version holds the Git version tag from build
	Version string
	// BuildDate is the time when the binary was built
	BuildDate string

	Settings *conf.Settings
	Logger   *logger.CentralLogger
}

// NewContext creates a context holding build metadata; settings and logger
// are attached once configuration has been loaded.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the build version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Log returns a module logger, or a no-op logger before initialization.
func (c *Context) Log(module string) logger.Logger {
	if c == nil || c.Logger == nil {
		return logger.NewNop().Module(module)
	}
	return c.Logger.Module(module)
}

// Close flushes and closes the logger.
func (c *Context) Close() error {
	if c == nil || c.Logger == nil {
		return nil
	}
	return c.Logger.Close()
}
