package host

import (
	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/store"
	"go.uber.org/zap"
)

const (
	lastGenerationKey = "host.lastGeneration"
	restartsKey       = "host.restarts"
)

// wirings attaches in order, and detaches in reverse order.
type wirings []supervisor.Wiring

func (w wirings) Attach(gen *supervisor.Generation) error {
	for i, wiring := range w {
		if err := wiring.Attach(gen); err != nil {
			for j := i - 1; j >= 0; j-- {
				w[j].Detach(gen)
			}
			return err
		}
	}
	return nil
}

func (w wirings) Detach(gen *supervisor.Generation) {
	for i := len(w) - 1; i >= 0; i-- {
		w[i].Detach(gen)
	}
}

// bookkeeping records every generation in the store.
type bookkeeping struct {
	store *store.Store
	log   *zap.Logger
}

func (b *bookkeeping) Attach(gen *supervisor.Generation) error {
	if err := b.store.Update(lastGenerationKey, gen.ID.String()); err != nil {
		b.log.Warn("failed to record generation", zap.Error(err))
	}

	if gen.Seq > 1 {
		var restarts int
		if _, err := b.store.Decode(restartsKey, &restarts); err != nil {
			b.log.Warn("failed to read restart count", zap.Error(err))
		}

		if err := b.store.Update(restartsKey, restarts+1); err != nil {
			b.log.Warn("failed to record restart", zap.Error(err))
		}
	}

	return nil
}

func (b *bookkeeping) Detach(*supervisor.Generation) {}
