package control

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"runtime"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lambda-feedback/agenthost/internal/host"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server serves the control api on a local ipc endpoint.
type Server struct {
	endpoint string
	rpc      *rpc.Server
	listener net.Listener
	done     chan struct{}
	log      *zap.Logger
}

type ServerParams struct {
	fx.In

	Config Config
	Host   *host.Host
	Log    *zap.Logger
}

func NewServer(config Config, controller Controller, log *zap.Logger) (*Server, error) {
	log = log.Named("control")

	server := rpc.NewServer()
	if err := server.RegisterName(Namespace, NewAPI(controller, log)); err != nil {
		return nil, fmt.Errorf("failed to register control api: %w", err)
	}

	return &Server{
		endpoint: config.EndpointOrDefault(),
		rpc:      server,
		done:     make(chan struct{}),
		log:      log,
	}, nil
}

func NewLifecycleServer(params ServerParams, lc fx.Lifecycle) (*Server, error) {
	server, err := NewServer(params.Config, params.Host, params.Log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop()
		},
	})

	return server, nil
}

// Endpoint returns the socket path or pipe name.
func (s *Server) Endpoint() string {
	return s.endpoint
}

// Start listens on the endpoint and serves connections in the background.
func (s *Server) Start() error {
	listener, err := listen(s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.endpoint, err)
	}

	s.listener = listener

	s.log.Info("control socket listening", zap.String("endpoint", s.endpoint))

	go func() {
		defer close(s.done)
		// returns once the listener is closed
		_ = s.rpc.ServeListener(listener)
	}()

	return nil
}

// Stop closes the listener and all open connections.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}

	err := s.listener.Close()

	s.rpc.Stop()

	<-s.done

	if runtime.GOOS != "windows" {
		if rmErr := os.Remove(s.endpoint); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.log.Debug("failed to remove socket", zap.Error(rmErr))
		}
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func listen(endpoint string) (net.Listener, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("named pipes are not supported")
	}

	// a stale socket from a previous run blocks the listener
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return net.Listen("unix", endpoint)
}
