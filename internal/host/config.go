package host

import (
	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/watcher"
)

type Config struct {
	// Supervisor configures the worker process.
	Supervisor supervisor.Config `conf:"supervisor"`

	// Watch configures hot reload in development mode. The root
	// defaults to the worker's source directory.
	Watch watcher.Config `conf:"watch"`
}

// watchConfig returns the watcher config with the root filled in.
func (c Config) watchConfig() watcher.Config {
	cfg := c.Watch
	if cfg.Root == "" {
		cfg.Root = c.Supervisor.Entry.Source
	}
	return cfg
}
