package window

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lambda-feedback/agenthost/models"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Socket is a window whose UI is connected over a websocket. Every text
// frame carries exactly one message.
type Socket struct {
	lifecycle

	id   string
	conn *websocket.Conn

	writeLock sync.Mutex

	log *zap.Logger
}

var _ Window = (*Socket)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Upgrade upgrades the HTTP request to a websocket and wraps it in a
// window. The caller must call Serve to process inbound frames.
func Upgrade(w http.ResponseWriter, r *http.Request, log *zap.Logger) (*Socket, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	return NewSocket(conn, log), nil
}

func NewSocket(conn *websocket.Conn, log *zap.Logger) *Socket {
	id := uuid.NewString()

	return &Socket{
		id:   id,
		conn: conn,
		log:  log.Named("window").With(zap.String("window", id)),
	}
}

func (s *Socket) ID() string {
	return s.id
}

// Serve reads frames until the connection fails or the context is
// cancelled. The window is closed when Serve returns.
func (s *Socket) Serve(ctx context.Context) error {
	defer s.Close()

	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to read frame: %w", err)
		}

		if typ != websocket.TextMessage {
			s.log.Debug("ignoring non-text frame", zap.Int("type", typ))
			continue
		}

		msg := models.Message(data)
		if !msg.Valid() {
			s.log.Warn("dropping invalid message from window")
			continue
		}

		if s.inbound.emit(msg) == 0 {
			s.log.Debug("dropping message, no handler attached")
		}
	}
}

func (s *Socket) Send(msg models.Message) error {
	if s.IsDestroyed() {
		return ErrWindowDestroyed
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// Reject sends a close frame carrying the reason and closes the window.
func (s *Socket) Reject(reason error) {
	s.writeLock.Lock()
	payload := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason.Error())
	err := s.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeTimeout))
	s.writeLock.Unlock()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.log.Debug("failed to send close frame", zap.Error(err))
	}

	s.Close()
}

// Close closes the connection and fires the closed handlers.
func (s *Socket) Close() {
	if s.close() {
		s.conn.Close()
		s.log.Debug("window closed")
	}
}
