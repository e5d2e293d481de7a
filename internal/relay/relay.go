package relay

import (
	"errors"
	"sync"

	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/window"
	"go.uber.org/zap"
)

var ErrAlreadyAttached = errors.New("relay already attached to a generation")

// Relay wires a window to whichever worker generation is current. It is
// installed as the wiring of a supervisor.
type Relay struct {
	win window.Window

	lock sync.Mutex
	bus  *Bus

	log *zap.Logger
}

var _ supervisor.Wiring = (*Relay)(nil)

func New(win window.Window, log *zap.Logger) *Relay {
	return &Relay{
		win: win,
		log: log.Named("relay"),
	}
}

// Attach binds a fresh bus to the generation.
func (r *Relay) Attach(gen *supervisor.Generation) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.bus != nil {
		return ErrAlreadyAttached
	}

	r.bus = newBus(r.win, gen, r.log)

	r.log.Debug("attached", zap.Int("generation", gen.Seq))

	return nil
}

// Detach closes the bus of the generation. Nothing is forwarded to or
// from the generation once Detach returns.
func (r *Relay) Detach(gen *supervisor.Generation) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.bus == nil || r.bus.Generation() != gen {
		return
	}

	r.bus.Close()
	r.bus = nil

	r.log.Debug("detached", zap.Int("generation", gen.Seq))
}

// Current returns the generation the relay is attached to, or nil.
func (r *Relay) Current() *supervisor.Generation {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.bus == nil {
		return nil
	}

	return r.bus.Generation()
}
