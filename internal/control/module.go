package control

import "go.uber.org/fx"

// Module serves the control socket, unless it is disabled.
func Module(config Config) fx.Option {
	if config.Disabled {
		return fx.Options()
	}

	return fx.Module(
		"control",
		fx.Supply(config),
		fx.Provide(NewLifecycleServer),
		fx.Invoke(func(*Server) {}),
	)
}
