package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/relay"
	"github.com/lambda-feedback/agenthost/internal/store"
	"github.com/lambda-feedback/agenthost/internal/watcher"
	"github.com/lambda-feedback/agenthost/internal/window"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrWindowBusy = errors.New("a window is already open")
	ErrNoWindow   = errors.New("no window open")
)

// Status is a snapshot of the host.
type Status struct {
	Mode       supervisor.Mode   `json:"mode"`
	Window     string            `json:"window,omitempty"`
	Restarts   int               `json:"restarts"`
	Supervisor supervisor.Status `json:"supervisor"`
}

type WatcherFactoryFn func(watcher.Config, func(), *zap.Logger) (watcher.Watcher, error)

// Host owns the window and the worker that serves it. At most one window
// is open at a time.
type Host struct {
	ctx    context.Context
	config Config
	store  *store.Store

	createWatcher WatcherFactoryFn
	createWorker  supervisor.WorkerFactoryFn

	lock    sync.Mutex
	session *session

	log *zap.Logger
}

type HostParams struct {
	fx.In

	// Context bounds the lifetime of all workers
	Context context.Context

	// Config is the host config
	Config Config

	// Store is the persisted key-value store
	Store *store.Store

	// Log is the logger to use for the host
	Log *zap.Logger
}

type Params struct {
	Context context.Context
	Config  Config
	Store   *store.Store

	// WatcherFactory creates the hot reload watcher. Optional.
	WatcherFactory WatcherFactoryFn

	// WorkerFactory creates the workers. Optional.
	WorkerFactory supervisor.WorkerFactoryFn

	Log *zap.Logger
}

func New(params Params) *Host {
	if params.Context == nil {
		params.Context = context.Background()
	}

	if params.WatcherFactory == nil {
		params.WatcherFactory = watcher.New
	}

	return &Host{
		ctx:           params.Context,
		config:        params.Config,
		store:         params.Store,
		createWatcher: params.WatcherFactory,
		createWorker:  params.WorkerFactory,
		log:           params.Log.Named("host"),
	}
}

func NewLifecycleHost(params HostParams, lc fx.Lifecycle) *Host {
	h := New(Params{
		Context: params.Context,
		Config:  params.Config,
		Store:   params.Store,
		Log:     params.Log,
	})

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return h.Shutdown(ctx)
		},
	})

	return h
}

// OpenWindow starts a worker for win and relays messages between them
// until the window closes. If the worker cannot be spawned, the window is
// closed and the spawn failure is returned.
func (h *Host) OpenWindow(ctx context.Context, win window.Window) error {
	s, err := h.openSession(ctx, win)
	if err != nil {
		return err
	}

	// the window may have closed before the binding was in place
	if win.IsDestroyed() {
		s.log.Debug("window closed while opening")
		return s.Stop(ctx)
	}

	return nil
}

func (h *Host) openSession(ctx context.Context, win window.Window) (*session, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.session != nil {
		return nil, ErrWindowBusy
	}

	log := h.log.With(zap.String("window", win.ID()))

	s := &session{
		win:   win,
		relay: relay.New(win, h.log),
		log:   log,
	}

	wiring := wirings{s.relay}
	if h.store != nil {
		wiring = append(wiring, &bookkeeping{store: h.store, log: log})
	}

	s.supervisor = supervisor.New(supervisor.Params{
		Context:       h.ctx,
		Config:        h.config.Supervisor,
		Wiring:        wiring,
		WorkerFactory: h.createWorker,
		Log:           h.log,
	})

	if _, err := s.supervisor.Start(ctx); err != nil {
		log.Error("failed to start worker", zap.Error(err))
		sentry.CaptureException(err)
		rejectWindow(win, err)
		return nil, fmt.Errorf("failed to open window: %w", err)
	}

	if h.config.Supervisor.Mode == supervisor.Development {
		s.watcher = h.startWatcher(s, log)
	}

	s.onStopped = func() { h.release(s) }
	s.unbind = window.Bind(win, s, h.log)

	h.session = s

	log.Info("window opened")

	return s, nil
}

// Restart replaces the worker of the open window.
func (h *Host) Restart(ctx context.Context) (Status, error) {
	s := h.current()
	if s == nil {
		return h.Status(), ErrNoWindow
	}

	if _, err := s.supervisor.Restart(ctx); err != nil {
		return h.Status(), err
	}

	return h.Status(), nil
}

func (h *Host) Status() Status {
	status := Status{
		Mode:       h.config.Supervisor.Mode,
		Supervisor: supervisor.Status{State: supervisor.StateIdle.String()},
	}

	if h.store != nil {
		if _, err := h.store.Decode(restartsKey, &status.Restarts); err != nil {
			h.log.Warn("failed to read restart count", zap.Error(err))
		}
	}

	if s := h.current(); s != nil {
		status.Window = s.win.ID()
		status.Supervisor = s.supervisor.Status()
	}

	return status
}

// Shutdown closes the open window, if any, and stops its worker.
func (h *Host) Shutdown(ctx context.Context) error {
	s := h.current()
	if s == nil {
		return nil
	}

	h.log.Info("shutting down")

	err := s.Stop(ctx)

	s.win.Close()

	return err
}

func (h *Host) current() *session {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.session
}

// release forgets the session, so another window can be opened.
func (h *Host) release(s *session) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.session == s {
		h.session = nil
	}
}

func (h *Host) startWatcher(s *session, log *zap.Logger) watcher.Watcher {
	restart := func() {
		if _, err := s.supervisor.Restart(h.ctx); err != nil {
			if errors.Is(err, supervisor.ErrSupervisorStopped) {
				return
			}
			log.Error("hot reload failed", zap.Error(err))
		}
	}

	w, err := h.createWatcher(h.config.watchConfig(), restart, h.log)
	if errors.Is(err, watcher.ErrHotReloadUnavailable) {
		log.Warn("hot reload unavailable")
		return nil
	} else if err != nil {
		log.Error("failed to create watcher", zap.Error(err))
		return nil
	}

	if err := w.Start(); err != nil {
		log.Error("failed to start watcher", zap.Error(err))
		_ = w.Stop()
		return nil
	}

	return w
}

// session ties a window to its supervisor.
type session struct {
	win        window.Window
	relay      *relay.Relay
	supervisor *supervisor.ProcessSupervisor
	watcher    watcher.Watcher

	unbind    func()
	onStopped func()

	stopOnce sync.Once
	stopErr  error

	log *zap.Logger
}

// Stop stops the watcher first, so no restart races the teardown, and
// then the supervisor.
func (s *session) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.unbind != nil {
			s.unbind()
		}

		if s.watcher != nil {
			s.stopErr = multierr.Append(s.stopErr, s.watcher.Stop())
		}

		s.stopErr = multierr.Append(s.stopErr, s.supervisor.Stop(ctx))

		if s.onStopped != nil {
			s.onStopped()
		}

		s.log.Info("window session ended")
	})

	return s.stopErr
}

// rejectWindow closes a window that could not be served.
func rejectWindow(win window.Window, reason error) {
	if r, ok := win.(interface{ Reject(error) }); ok {
		r.Reject(reason)
		return
	}

	win.Close()
}
