package config_test

import (
	"testing"
	"time"

	"github.com/lambda-feedback/agenthost/config"
	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: "AGENTHOST_TEST_",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, supervisor.Production, cfg.Host.Supervisor.Mode)
	assert.Equal(t, 5*time.Second, cfg.Host.Supervisor.Stop.Timeout)
	assert.Equal(t, "localhost", cfg.Http.Host)
	assert.Equal(t, 8080, cfg.Http.Port)
	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Agent.Memo)
	assert.True(t, cfg.Agent.Browser.Headless)
}

func TestConfig_Env(t *testing.T) {
	t.Setenv("AGENTHOST_TEST_HOST__SUPERVISOR__MODE", "development")
	t.Setenv("AGENTHOST_TEST_HOST__SUPERVISOR__ENTRY__SOURCE", "/src/agent")
	t.Setenv("AGENTHOST_TEST_HOST__WATCH__DEBOUNCE", "250ms")
	t.Setenv("AGENTHOST_TEST_AUTH__KEY", "secret")

	cfg, err := conf.Parse[config.Config](conf.ParseOptions{
		Defaults:  config.DefaultConfig,
		EnvPrefix: "AGENTHOST_TEST_",
	})
	require.NoError(t, err)

	assert.Equal(t, supervisor.Development, cfg.Host.Supervisor.Mode)
	assert.Equal(t, "/src/agent", cfg.Host.Supervisor.Entry.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.Host.Watch.Debounce)
	assert.Equal(t, "secret", cfg.Auth.Key)
}
