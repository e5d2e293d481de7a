package agent

import (
	"fmt"

	"github.com/lambda-feedback/agenthost/internal/command"
	"github.com/lambda-feedback/agenthost/internal/executor"
	"github.com/lambda-feedback/agenthost/internal/store"
	"go.uber.org/zap"
)

type Config struct {
	// Root is the directory file and shell commands operate in.
	Root string `conf:"root"`

	// Memo is the path of the persisted key-value store.
	Memo string `conf:"memo"`

	// Browser configures the browser commands.
	Browser executor.BrowserConfig `conf:"browser"`
}

// Executors holds the executors served by the worker.
type Executors struct {
	Registry *command.Registry
	Browser  *executor.Browser
}

// NewExecutors registers the file, shell, browser and memo executors.
func NewExecutors(config Config, log *zap.Logger) (*Executors, error) {
	browser, err := executor.NewBrowser(config.Browser, executor.LaunchRod(config.Browser), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	registry := command.NewRegistry()

	executors := map[string]command.Executor{
		"file":    executor.NewFile(config.Root, log),
		"shell":   executor.NewShell(config.Root, log),
		"browser": browser,
		"memo":    executor.NewMemo(store.Open(config.Memo, log)),
	}

	for tag, e := range executors {
		if err := registry.Register(tag, e); err != nil {
			return nil, err
		}
	}

	return &Executors{
		Registry: registry,
		Browser:  browser,
	}, nil
}

// Close releases the resources held by the executors.
func (e *Executors) Close() {
	e.Browser.Shutdown()
}
