package window

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lambda-feedback/agenthost/models"
	"go.uber.org/zap"
)

// Local is an in-process window. The UI side is driven through Post,
// Received and Close.
type Local struct {
	lifecycle

	id string

	// postLock keeps posted messages in order
	postLock sync.Mutex

	outLock  sync.Mutex
	outbox   []models.Message
	received chan struct{}

	log *zap.Logger
}

var _ Window = (*Local)(nil)

func NewLocal(log *zap.Logger) *Local {
	id := uuid.NewString()

	return &Local{
		id:       id,
		received: make(chan struct{}, 1),
		log:      log.Named("window").With(zap.String("window", id)),
	}
}

func (w *Local) ID() string {
	return w.id
}

// Post delivers a message from the UI to the message handlers. Without
// handlers the message is dropped. Reports whether it was handled.
func (w *Local) Post(msg models.Message) bool {
	w.postLock.Lock()
	defer w.postLock.Unlock()

	if w.IsDestroyed() {
		w.log.Debug("dropping message posted to destroyed window")
		return false
	}

	if w.inbound.emit(msg) == 0 {
		w.log.Debug("dropping message, no handler attached")
		return false
	}

	return true
}

func (w *Local) Send(msg models.Message) error {
	if w.IsDestroyed() {
		return ErrWindowDestroyed
	}

	w.outLock.Lock()
	w.outbox = append(w.outbox, msg)
	w.outLock.Unlock()

	select {
	case w.received <- struct{}{}:
	default:
	}

	return nil
}

// Received returns a copy of all messages delivered to the UI so far.
func (w *Local) Received() []models.Message {
	w.outLock.Lock()
	defer w.outLock.Unlock()

	return append([]models.Message(nil), w.outbox...)
}

// Notify returns a channel that is signalled after a message was
// delivered to the UI.
func (w *Local) Notify() <-chan struct{} {
	return w.received
}

// DestroyContent tears down the window content without closing the
// window. Sends fail afterwards, but the closed handlers do not fire.
func (w *Local) DestroyContent() {
	w.destroy()
}

// Close closes the window and fires the closed handlers.
func (w *Local) Close() {
	if w.close() {
		w.log.Debug("window closed")
	}
}
