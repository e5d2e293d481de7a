package control

import (
	"context"

	"github.com/lambda-feedback/agenthost/internal/host"
	"go.uber.org/zap"
)

// Namespace is the rpc namespace the control api is registered under.
const Namespace = "host"

// Controller is the part of the host exposed over the control socket.
type Controller interface {
	Restart(ctx context.Context) (host.Status, error)
	Status() host.Status
}

// API is served as host_restart and host_status.
type API struct {
	controller Controller
	log        *zap.Logger
}

func NewAPI(controller Controller, log *zap.Logger) *API {
	return &API{controller: controller, log: log}
}

// Restart replaces the running worker with a fresh generation.
func (a *API) Restart(ctx context.Context) (host.Status, error) {
	a.log.Info("restart requested")

	status, err := a.controller.Restart(ctx)
	if err != nil {
		a.log.Warn("restart failed", zap.Error(err))
	}

	return status, err
}

func (a *API) Status() host.Status {
	return a.controller.Status()
}
