package control

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config describes the control socket.
type Config struct {
	// Disabled turns the control socket off.
	Disabled bool `conf:"disabled"`

	// Endpoint is the full path to the unix socket, or the name of the
	// windows named pipe.
	Endpoint string `conf:"endpoint"`
}

// EndpointOrDefault returns the configured endpoint, or the default one
// for the current OS.
func (c Config) EndpointOrDefault() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}

	if runtime.GOOS == "windows" {
		return `\\.\pipe\agenthost`
	}

	return filepath.Join(os.TempDir(), "agenthost.sock")
}
