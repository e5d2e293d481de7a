package host

import "go.uber.org/fx"

// Module provides the host and its http routes.
func Module(config Config, auth AuthConfig) fx.Option {
	return fx.Module(
		"host",

		// provide host config
		fx.Supply(config),
		fx.Supply(auth),

		// provide host
		fx.Provide(NewLifecycleHost),

		// provide handlers
		fx.Provide(NewWindowHandler),
		fx.Provide(NewStatusHandler),

		// provide routes
		fx.Provide(NewWindowRoute),
		fx.Provide(NewStatusRoute),
		fx.Provide(NewHealthRoute),
	)
}
