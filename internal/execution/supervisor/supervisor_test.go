package supervisor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/execution/worker"
	"github.com/lambda-feedback/agenthost/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingWiring records attach and detach calls, and whether the
// worker was still alive when it was detached.
type recordingWiring struct {
	mu         sync.Mutex
	events     []string
	aliveAtEnd []bool
	attachErr  error
}

func (w *recordingWiring) Attach(gen *supervisor.Generation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, fmt.Sprintf("attach:%d", gen.Seq))

	return w.attachErr
}

func (w *recordingWiring) Detach(gen *supervisor.Generation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(w.events, fmt.Sprintf("detach:%d", gen.Seq))
	w.aliveAtEnd = append(w.aliveAtEnd, gen.Worker.Alive())
}

func (w *recordingWiring) Events() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.events...)
}

func catConfig() supervisor.Config {
	return supervisor.Config{
		Mode:  supervisor.Production,
		Entry: supervisor.EntryConfig{Cmd: "cat"},
		Stop:  supervisor.StopConfig{Timeout: 2 * time.Second},
	}
}

func createSupervisor(t *testing.T, config supervisor.Config) (*supervisor.ProcessSupervisor, *recordingWiring) {
	wiring := &recordingWiring{}

	s := supervisor.New(supervisor.Params{
		Context: context.Background(),
		Config:  config,
		Wiring:  wiring,
		Log:     zap.NewNop(),
	})

	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})

	return s, wiring
}

func TestSupervisor_Start_SpawnsWorker(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gen.Seq)
	assert.True(t, gen.Worker.Alive())
	assert.True(t, util.IsProcessAlive(gen.Worker.Pid()))
	assert.Equal(t, supervisor.StateRunning, s.State())
	assert.Same(t, gen, s.Current())
	assert.Equal(t, []string{"attach:1"}, wiring.Events())
}

func TestSupervisor_Start_Twice_ReturnsCurrent(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	first, err := s.Start(context.Background())
	require.NoError(t, err)

	second, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, []string{"attach:1"}, wiring.Events())
}

func TestSupervisor_Start_SpawnFailure(t *testing.T) {
	config := catConfig()
	config.Entry.Cmd = "/does/not/exist"

	s, wiring := createSupervisor(t, config)

	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrSpawnFailure)

	assert.Nil(t, s.Current())
	assert.Equal(t, supervisor.StateIdle, s.State())
	assert.Empty(t, wiring.Events())
}

func TestSupervisor_Start_UnsupportedMode(t *testing.T) {
	config := catConfig()
	config.Mode = "staging"

	s, _ := createSupervisor(t, config)

	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrSpawnFailure)
	assert.ErrorIs(t, err, supervisor.ErrUnsupportedMode)
}

func TestSupervisor_Start_AttachFailure_StopsWorker(t *testing.T) {
	var spawned worker.Worker

	wiring := &recordingWiring{attachErr: assert.AnError}

	s := supervisor.New(supervisor.Params{
		Config: catConfig(),
		Wiring: wiring,
		WorkerFactory: func(log *zap.Logger) worker.Worker {
			spawned = worker.NewProcessWorker(log)
			return spawned
		},
		Log: zap.NewNop(),
	})

	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	require.NotNil(t, spawned)
	assert.False(t, spawned.Alive())
	assert.False(t, util.IsProcessAlive(spawned.Pid()))
	assert.Nil(t, s.Current())
}

func TestSupervisor_Start_PassesGenerationEnv(t *testing.T) {
	config := supervisor.Config{
		Mode: supervisor.Production,
		Entry: supervisor.EntryConfig{
			Cmd:  "sh",
			Args: []string{"-c", `echo "{\"seq\":$AGENTHOST_GENERATION,\"mode\":\"$AGENTHOST_MODE\"}"; cat`},
		},
		Stop: supervisor.StopConfig{Timeout: 2 * time.Second},
	}

	s, _ := createSupervisor(t, config)

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	select {
	case msg := <-gen.Worker.Messages():
		assert.JSONEq(t, `{"seq":1,"mode":"production"}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker output")
	}
}

func TestSupervisor_Restart_ExactlyOneWorkerAlive(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	first, err := s.Start(context.Background())
	require.NoError(t, err)

	var previous []int
	previous = append(previous, first.Worker.Pid())

	for i := 2; i <= 5; i++ {
		gen, err := s.Restart(context.Background())
		require.NoError(t, err)

		assert.Equal(t, i, gen.Seq)
		assert.True(t, gen.Worker.Alive())
		assert.True(t, util.IsProcessAlive(gen.Worker.Pid()))

		for _, pid := range previous {
			assert.False(t, util.IsProcessAlive(pid), "previous worker %d still alive", pid)
		}

		previous = append(previous, gen.Worker.Pid())
	}

	assert.Equal(t, []string{
		"attach:1",
		"detach:1", "attach:2",
		"detach:2", "attach:3",
		"detach:3", "attach:4",
		"detach:4", "attach:5",
	}, wiring.Events())
}

func TestSupervisor_Restart_DetachesBeforeTermination(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Restart(context.Background())
	require.NoError(t, err)

	wiring.mu.Lock()
	defer wiring.mu.Unlock()

	assert.Equal(t, []bool{true}, wiring.aliveAtEnd)
}

func TestSupervisor_Restart_BeforeStart_Boots(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	gen, err := s.Restart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gen.Seq)
	assert.Equal(t, []string{"attach:1"}, wiring.Events())
}

// failingWorker fails to start while fail is set.
type failingWorker struct {
	*worker.ProcessWorker
	fail bool
}

func (w *failingWorker) Start(ctx context.Context, config worker.StartConfig) error {
	if w.fail {
		return assert.AnError
	}

	return w.ProcessWorker.Start(ctx, config)
}

func TestSupervisor_Restart_RecoversAfterSpawnFailure(t *testing.T) {
	fail := false

	s := supervisor.New(supervisor.Params{
		Config: catConfig(),
		WorkerFactory: func(log *zap.Logger) worker.Worker {
			return &failingWorker{ProcessWorker: worker.NewProcessWorker(log), fail: fail}
		},
		Log: zap.NewNop(),
	})

	defer s.Stop(context.Background())

	first, err := s.Start(context.Background())
	require.NoError(t, err)

	fail = true

	_, err = s.Restart(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrSpawnFailure)

	// the old generation is gone, and there is no current one
	assert.False(t, util.IsProcessAlive(first.Worker.Pid()))
	assert.Nil(t, s.Current())
	assert.Equal(t, supervisor.StateIdle, s.State())

	fail = false

	gen, err := s.Restart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, gen.Seq)
	assert.True(t, gen.Worker.Alive())
}

func TestSupervisor_Stop_TerminatesWorker(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	pid := gen.Worker.Pid()

	err = s.Stop(context.Background())
	require.NoError(t, err)

	assert.False(t, gen.Worker.Alive())
	assert.False(t, util.IsProcessAlive(pid))
	assert.Nil(t, s.Current())
	assert.Equal(t, supervisor.StateStopped, s.State())
	assert.Equal(t, []string{"attach:1", "detach:1"}, wiring.Events())
}

func TestSupervisor_Stop_IsTerminal(t *testing.T) {
	s, _ := createSupervisor(t, catConfig())

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	_, err = s.Start(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrSupervisorStopped)

	_, err = s.Restart(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrSupervisorStopped)
}

func TestSupervisor_Stop_BeforeStart(t *testing.T) {
	s, wiring := createSupervisor(t, catConfig())

	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, supervisor.StateStopped, s.State())
	assert.Empty(t, wiring.Events())
}

func TestSupervisor_ContextCancelled_KillsWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := supervisor.New(supervisor.Params{
		Context: ctx,
		Config:  catConfig(),
		Log:     zap.NewNop(),
	})

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	cancel()

	_, err = gen.Worker.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)

	assert.False(t, util.IsProcessAlive(gen.Worker.Pid()))
}

func TestSupervisor_Status(t *testing.T) {
	s, _ := createSupervisor(t, catConfig())

	assert.Equal(t, supervisor.Status{State: "idle"}, s.Status())

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 1, status.Generation)
	assert.Equal(t, gen.ID.String(), status.ID)
	assert.Equal(t, gen.Worker.Pid(), status.Pid)
	assert.True(t, status.Alive)
}
