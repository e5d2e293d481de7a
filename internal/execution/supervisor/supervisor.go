package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lambda-feedback/agenthost/internal/execution/worker"
	"github.com/lambda-feedback/agenthost/util"
	"go.uber.org/zap"
)

type Supervisor interface {
	// Start boots the first worker generation. If a generation is
	// already current, it is returned as is.
	Start(ctx context.Context) (*Generation, error)

	// Restart detaches and terminates the current generation, if any,
	// and boots the next one.
	Restart(ctx context.Context) (*Generation, error)

	// Stop detaches and terminates the current generation. The
	// supervisor cannot be started again afterwards.
	Stop(ctx context.Context) error

	// Current returns the current generation, or nil.
	Current() *Generation

	// State returns the lifecycle state of the supervisor.
	State() State

	// Status returns a snapshot of the supervisor.
	Status() Status
}

// Wiring is bound to every generation while it is current. Detach is
// always called before the generation's worker is terminated.
type Wiring interface {
	Attach(*Generation) error
	Detach(*Generation)
}

type WorkerFactoryFn func(*zap.Logger) worker.Worker

type Params struct {
	// Context bounds the lifetime of all workers. Workers are killed
	// once it is cancelled.
	Context context.Context

	// Config is the config used to set up the supervisor and its workers.
	Config Config

	// Wiring is attached to each generation. Optional.
	Wiring Wiring

	// WorkerFactory is a factory function to create a new worker. This
	// is called whenever the supervisor boots a generation.
	WorkerFactory WorkerFactoryFn

	// Log is the logger to use for the supervisor
	Log *zap.Logger
}

type ProcessSupervisor struct {
	ctx context.Context

	// lock serializes all lifecycle transitions
	lock    sync.Mutex
	state   State
	current *Generation
	seq     int

	config       Config
	wiring       Wiring
	createWorker WorkerFactoryFn

	log *zap.Logger
}

var _ Supervisor = (*ProcessSupervisor)(nil)

func New(params Params) *ProcessSupervisor {
	if params.WorkerFactory == nil {
		params.WorkerFactory = defaultWorkerFactory
	}

	if params.Context == nil {
		params.Context = context.Background()
	}

	if params.Wiring == nil {
		params.Wiring = noopWiring{}
	}

	return &ProcessSupervisor{
		ctx:          params.Context,
		state:        StateIdle,
		config:       params.Config,
		wiring:       params.Wiring,
		createWorker: params.WorkerFactory,
		log:          params.Log.Named("supervisor"),
	}
}

func (s *ProcessSupervisor) Start(ctx context.Context) (*Generation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == StateStopped {
		return nil, ErrSupervisorStopped
	}

	if s.current != nil {
		return s.current, nil
	}

	return s.boot(ctx)
}

func (s *ProcessSupervisor) Restart(ctx context.Context) (*Generation, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == StateStopped {
		return nil, ErrSupervisorStopped
	}

	s.log.Info("restarting worker", zap.Int("generation", s.seq))

	s.state = StateRestarting

	s.retire(ctx)

	return s.boot(ctx)
}

func (s *ProcessSupervisor) Stop(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state == StateStopped {
		return nil
	}

	s.log.Debug("stopping")

	s.retire(ctx)

	s.state = StateStopped

	s.log.Info("stopped")

	return nil
}

func (s *ProcessSupervisor) Current() *Generation {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.current
}

func (s *ProcessSupervisor) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *ProcessSupervisor) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()

	status := Status{
		State:      s.state.String(),
		Generation: s.seq,
	}

	if gen := s.current; gen != nil {
		status.ID = gen.ID.String()
		status.Pid = gen.Worker.Pid()
		status.Alive = gen.Worker.Alive()
		status.StartedAt = gen.StartedAt
	}

	return status
}

// boot spawns the next generation and attaches the wiring. Must be
// called with the lock held and no current generation.
func (s *ProcessSupervisor) boot(ctx context.Context) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		s.state = StateIdle
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}

	s.state = StateStarting

	// the mode is evaluated on every boot
	config, err := resolveEntry(s.config.Mode, s.config.Entry)
	if err != nil {
		s.state = StateIdle
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}

	gen := &Generation{
		ID:  uuid.New(),
		Seq: s.seq + 1,
	}

	config.Env["AGENTHOST_GENERATION"] = strconv.Itoa(gen.Seq)
	config.Env["AGENTHOST_GENERATION_ID"] = gen.ID.String()

	log := s.log.With(
		zap.Int("generation", gen.Seq),
		zap.Stringer("id", gen.ID),
	)

	w := s.createWorker(log)

	// the worker lives as long as the supervisor's context, not
	// as long as the context of the call that spawned it
	if err := w.Start(s.ctx, config); err != nil {
		s.state = StateIdle
		log.Error("failed to spawn worker", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}

	gen.Worker = w
	gen.StartedAt = time.Now()

	if err := s.wiring.Attach(gen); err != nil {
		log.Error("failed to wire worker", zap.Error(err))
		s.terminate(ctx, gen)
		s.state = StateIdle
		return nil, fmt.Errorf("failed to wire worker: %w", err)
	}

	s.seq = gen.Seq
	s.current = gen
	s.state = StateRunning

	log.Info("worker started", zap.Int("pid", w.Pid()))

	return gen, nil
}

// retire detaches and terminates the current generation, if any. Must be
// called with the lock held.
func (s *ProcessSupervisor) retire(ctx context.Context) {
	gen := s.current
	if gen == nil {
		return
	}

	s.current = nil

	// remove all listeners before the worker goes away
	s.wiring.Detach(gen)

	s.terminate(ctx, gen)
}

func (s *ProcessSupervisor) terminate(ctx context.Context, gen *Generation) {
	pid := gen.Worker.Pid()
	log := s.log.With(zap.Int("generation", gen.Seq), zap.Int("pid", pid))

	// the worker must be gone before the next generation starts,
	// even if the caller gives up waiting
	evt, err := gen.Worker.Stop(context.WithoutCancel(ctx), s.config.Stop)
	if err != nil {
		log.Error("failed to stop worker",
			zap.Error(err),
			zap.Bool("alive", util.IsProcessAlive(pid)),
		)
		return
	}

	log.Debug("worker stopped",
		zap.Intp("code", evt.Code),
		zap.Intp("signal", evt.Signal),
	)
}

func defaultWorkerFactory(log *zap.Logger) worker.Worker {
	return worker.NewProcessWorker(log)
}

type noopWiring struct{}

func (noopWiring) Attach(*Generation) error { return nil }
func (noopWiring) Detach(*Generation)       {}
