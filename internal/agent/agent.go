// Package agent is the worker side of the host: it reads messages from
// the host, runs the commands they carry and writes the results back.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lambda-feedback/agenthost/internal/command"
	"github.com/lambda-feedback/agenthost/models"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Command) (any, error)
}

type Agent struct {
	dispatcher Dispatcher

	in  io.Reader
	out io.Writer

	writeLock sync.Mutex
	inflight  sync.WaitGroup

	log *zap.Logger
}

func New(dispatcher Dispatcher, in io.Reader, out io.Writer, log *zap.Logger) *Agent {
	return &Agent{
		dispatcher: dispatcher,
		in:         in,
		out:        out,
		log:        log.Named("agent"),
	}
}

// Run processes messages until the input ends or ctx is cancelled.
// Commands run concurrently; their results are written as they finish.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan models.Message)
	readErr := make(chan error, 1)

	go func() {
		defer close(messages)

		decoder := json.NewDecoder(a.in)
		for {
			var msg models.Message
			if err := decoder.Decode(&msg); err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- fmt.Errorf("failed to read message: %w", err)
				}
				return
			}

			select {
			case messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer a.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				a.log.Debug("input closed")
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}

			a.handle(ctx, msg)
		}
	}
}

func (a *Agent) handle(ctx context.Context, msg models.Message) {
	switch kind := msg.Kind(); kind {
	case models.KindCommand:
		a.inflight.Add(1)
		go func() {
			defer a.inflight.Done()
			a.execute(ctx, msg.Body())
		}()

	case models.KindPing:
		reply := []byte(`{"kind":"pong"}`)
		if body := msg.Body(); body != nil {
			reply, _ = sjson.SetRawBytes(reply, "body", body)
		}
		a.write(reply)

	default:
		a.log.Debug("ignoring message", zap.String("kind", kind))
	}
}

// execute runs a command and writes its result.
func (a *Agent) execute(ctx context.Context, body json.RawMessage) {
	reply := []byte(`{"kind":"result","body":{}}`)

	// echo whatever identifies the command, even if it is invalid
	for _, key := range []string{"id", "tag", "cmd"} {
		if value := gjson.GetBytes(body, key); value.Exists() {
			reply, _ = sjson.SetRawBytes(reply, "body."+key, []byte(value.Raw))
		}
	}

	cmd, err := command.Parse(body)
	if err != nil {
		a.log.Warn("invalid command", zap.Error(err))
		a.write(fail(reply, err))
		return
	}

	log := a.log.With(
		zap.String("id", cmd.ID),
		zap.String("tag", cmd.Tag),
		zap.String("cmd", cmd.Cmd),
	)

	log.Debug("executing command")

	result, err := a.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		log.Warn("command failed", zap.Error(err))
		a.write(fail(reply, err))
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		a.write(fail(reply, fmt.Errorf("failed to encode result: %w", err)))
		return
	}

	reply, err = sjson.SetRawBytes(reply, "body.result", raw)
	if err != nil {
		a.write(fail(reply, err))
		return
	}

	log.Debug("command succeeded")

	a.write(reply)
}

func fail(reply []byte, err error) []byte {
	reply, _ = sjson.SetBytes(reply, "body.error", err.Error())
	return reply
}

func (a *Agent) write(msg []byte) {
	a.writeLock.Lock()
	defer a.writeLock.Unlock()

	if _, err := a.out.Write(append(msg, '\n')); err != nil {
		a.log.Error("failed to write message", zap.Error(err))
	}
}
