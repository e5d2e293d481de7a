package config

import (
	"maps"
	"os"
	"path/filepath"

	"github.com/lambda-feedback/agenthost/internal/agent"
	"github.com/lambda-feedback/agenthost/internal/control"
	"github.com/lambda-feedback/agenthost/internal/host"
	"github.com/lambda-feedback/agenthost/internal/server"
	"github.com/lambda-feedback/agenthost/util/conf"
)

// EnvPrefix is the prefix of all environment variables read as config.
const EnvPrefix = "AGENTHOST_"

type StoreConfig struct {
	// Path is the file the host persists its state in.
	Path string `conf:"path"`
}

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Host configures the supervised worker and hot reload
	Host host.Config `conf:"host"`

	// Http configures the server windows connect to
	Http server.HttpConfig `conf:"http"`

	// Auth configures access to the http routes
	Auth host.AuthConfig `conf:"auth"`

	// Control configures the control socket
	Control control.Config `conf:"control"`

	// Agent configures the worker runtime
	Agent agent.Config `conf:"agent"`

	// Store configures the persisted host state
	Store StoreConfig `conf:"store"`
}

var DefaultConfig = mergeAll(
	conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	},
	conf.MergeDefaults("host", conf.DefaultConfig{
		"supervisor.mode":         "production",
		"supervisor.stop.timeout": "5s",
	}),
	conf.MergeDefaults("http", conf.DefaultConfig{
		"host": "localhost",
		"port": 8080,
		"h2c":  false,
	}),
	conf.MergeDefaults("store", conf.DefaultConfig{
		"path": filepath.Join(dataDir(), "host.json"),
	}),
	conf.MergeDefaults("agent", conf.DefaultConfig{
		"memo":             filepath.Join(dataDir(), "memo.json"),
		"browser.headless": true,
	}),
)

func mergeAll(defaults ...conf.DefaultConfig) conf.DefaultConfig {
	merged := conf.DefaultConfig{}
	for _, d := range defaults {
		maps.Copy(merged, d)
	}
	return merged
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "agenthost")
	}

	return filepath.Join(os.TempDir(), "agenthost")
}
