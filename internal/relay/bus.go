package relay

import (
	"sync"

	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/window"
	"github.com/lambda-feedback/agenthost/models"
	"go.uber.org/zap"
)

// Bus forwards messages between one window and the worker of one
// generation. It is never rebound: a new generation gets a new bus.
type Bus struct {
	gen *supervisor.Generation
	win window.Window

	// lock is held while forwarding, and exclusively while closing
	lock   sync.RWMutex
	closed bool

	unsubscribe func()
	quit        chan struct{}
	done        chan struct{}

	log *zap.Logger
}

func newBus(win window.Window, gen *supervisor.Generation, log *zap.Logger) *Bus {
	b := &Bus{
		gen:  gen,
		win:  win,
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log: log.With(
			zap.Int("generation", gen.Seq),
			zap.String("window", win.ID()),
		),
	}

	b.unsubscribe = win.OnMessage(b.toWorker)

	go b.pump()

	return b
}

// Generation returns the generation the bus is bound to.
func (b *Bus) Generation() *supervisor.Generation {
	return b.gen
}

// Close removes the window subscription and stops the pump. Once Close
// returns, the bus forwards nothing in either direction.
func (b *Bus) Close() {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		return
	}
	b.closed = true
	b.lock.Unlock()

	b.unsubscribe()

	close(b.quit)
	<-b.done

	b.log.Debug("bus closed")
}

// toWorker forwards a message posted by the window to the worker.
func (b *Bus) toWorker(msg models.Message) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.closed {
		return
	}

	if !b.gen.Worker.Alive() {
		b.log.Warn("dropping message, worker is not alive", zap.String("kind", msg.Kind()))
		return
	}

	if err := b.gen.Worker.Write(msg); err != nil {
		b.log.Warn("dropping message for worker", zap.String("kind", msg.Kind()), zap.Error(err))
	}
}

// pump drains the worker's message stream into the window.
func (b *Bus) pump() {
	defer close(b.done)

	messages := b.gen.Worker.Messages()

	for {
		select {
		case <-b.quit:
			return
		case msg, ok := <-messages:
			if !ok {
				b.log.Debug("worker message stream closed")
				return
			}

			b.toWindow(msg)
		}
	}
}

// toWindow forwards a message emitted by the worker to the window.
func (b *Bus) toWindow(msg models.Message) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.closed {
		return
	}

	if b.win.IsDestroyed() {
		b.log.Debug("dropping message, window is destroyed", zap.String("kind", msg.Kind()))
		return
	}

	if err := b.win.Send(msg); err != nil {
		b.log.Warn("dropping message for window", zap.String("kind", msg.Kind()), zap.Error(err))
	}
}
