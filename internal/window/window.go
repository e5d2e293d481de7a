package window

import (
	"errors"
	"sync"

	"github.com/lambda-feedback/agenthost/models"
)

var ErrWindowDestroyed = errors.New("window destroyed")

// Window is the user-facing endpoint of the host. Messages posted by the
// UI are delivered to the OnMessage handlers, messages sent with Send are
// delivered to the UI.
type Window interface {
	// ID uniquely identifies the window.
	ID() string

	// Send delivers a message to the UI. Returns ErrWindowDestroyed if the
	// window content is gone.
	Send(msg models.Message) error

	// IsDestroyed reports whether the window content is gone.
	IsDestroyed() bool

	// OnMessage registers a handler for messages posted by the UI. Handlers
	// are invoked sequentially, in the order the messages were posted.
	OnMessage(fn func(models.Message)) (unsubscribe func())

	// OnClosed registers a handler that is invoked once the window closes.
	OnClosed(fn func()) (unsubscribe func())

	// Close closes the window. Closing a closed window is a no-op.
	Close()
}

// emitter is a set of handlers that can be removed individually.
type emitter[T any] struct {
	lock     sync.Mutex
	next     int
	handlers map[int]func(T)
}

func (e *emitter[T]) subscribe(fn func(T)) func() {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[int]func(T))
	}

	id := e.next
	e.next++
	e.handlers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.lock.Lock()
			defer e.lock.Unlock()

			delete(e.handlers, id)
		})
	}
}

// emit invokes all handlers with v and returns how many were invoked.
func (e *emitter[T]) emit(v T) int {
	e.lock.Lock()
	handlers := make([]func(T), 0, len(e.handlers))
	for id := 0; id < e.next; id++ {
		if fn, ok := e.handlers[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	e.lock.Unlock()

	for _, fn := range handlers {
		fn(v)
	}

	return len(handlers)
}

// lifecycle tracks the destroyed and closed state shared by all windows.
type lifecycle struct {
	inbound emitter[models.Message]
	closed  emitter[struct{}]

	lock      sync.Mutex
	destroyed bool
	closeOnce sync.Once
}

func (l *lifecycle) OnMessage(fn func(models.Message)) func() {
	return l.inbound.subscribe(fn)
}

func (l *lifecycle) OnClosed(fn func()) func() {
	return l.closed.subscribe(func(struct{}) { fn() })
}

func (l *lifecycle) IsDestroyed() bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	return l.destroyed
}

func (l *lifecycle) destroy() {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.destroyed = true
}

// close destroys the window and fires the closed handlers once. Reports
// whether this call closed the window.
func (l *lifecycle) close() bool {
	closed := false

	l.closeOnce.Do(func() {
		l.destroy()
		l.closed.emit(struct{}{})
		closed = true
	})

	return closed
}
