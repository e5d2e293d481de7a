package worker_test

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/lambda-feedback/agenthost/internal/execution/worker"
	"github.com/lambda-feedback/agenthost/models"
	"github.com/lambda-feedback/agenthost/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func startWorker(t *testing.T, config worker.StartConfig) *worker.ProcessWorker {
	w := worker.NewProcessWorker(zap.NewNop())

	err := w.Start(context.Background(), config)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = w.Stop(context.Background(), worker.StopConfig{Timeout: time.Second})
	})

	return w
}

func receive(t *testing.T, w worker.Worker) models.Message {
	select {
	case msg, ok := <-w.Messages():
		require.True(t, ok, "message stream closed")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// innerKind returns the kind of the message nested under "in".
func innerKind(msg models.Message) string {
	return gjson.GetBytes(msg, "in.kind").String()
}

func TestWorker_Start_IsAlive(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	pid := w.Pid()
	require.NotZero(t, pid, "pid should be set after Start")

	assert.True(t, w.Alive())
	assert.True(t, util.IsProcessAlive(pid))
}

func TestWorker_Start_FailsIfStarted(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	err := w.Start(context.Background(), worker.StartConfig{Cmd: "cat"})
	assert.ErrorIs(t, err, worker.ErrWorkerAlreadyStarted)
}

func TestWorker_Start_ReturnsErrorIfInvalidCommand(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	err := w.Start(context.Background(), worker.StartConfig{Cmd: "/does/not/exist"})
	assert.Error(t, err)
	assert.False(t, w.Alive())
}

func TestWorker_Start_FailsIfContextCancelled(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Start(ctx, worker.StartConfig{Cmd: "cat"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_KilledIfContextCancelled(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	err := w.Start(ctx, worker.StartConfig{Cmd: "sleep", Args: []string{"10"}})
	require.NoError(t, err)

	cancel()

	evt, err := w.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)

	require.NotNil(t, evt.Signal)
	assert.Equal(t, syscall.SIGKILL, syscall.Signal(*evt.Signal))
	assert.False(t, w.Alive())
}

func TestWorker_Write_EchoesInOrder(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	inputs := []models.Message{
		models.Message(`{"kind":"a","body":1}`),
		models.Message(`{"kind":"b","body":2}`),
		models.Message(`"plain string"`),
	}

	for _, msg := range inputs {
		require.NoError(t, w.Write(msg))
	}

	for _, expected := range inputs {
		assert.JSONEq(t, string(expected), string(receive(t, w)))
	}
}

func TestWorker_Write_CompactsMultilineMessages(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	require.NoError(t, w.Write(models.Message("{\n  \"kind\": \"pretty\",\n  \"body\": [1, 2]\n}")))

	msg := receive(t, w)
	assert.Equal(t, "pretty", msg.Kind())
	assert.JSONEq(t, `[1,2]`, string(msg.Body()))
}

func TestWorker_Messages_SkipsNonJsonLines(t *testing.T) {
	w := startWorker(t, worker.StartConfig{
		Cmd:  "sh",
		Args: []string{"-c", `echo "debug: booting"; while read -r line; do echo "not json either"; echo "{\"in\":$line}"; done`},
	})

	require.NoError(t, w.Write(models.Message(`{"kind":"a"}`)))
	require.NoError(t, w.Write(models.Message(`{"kind":"b"}`)))

	assert.Equal(t, "a", innerKind(receive(t, w)))
	assert.Equal(t, "b", innerKind(receive(t, w)))
	assert.True(t, w.Alive())
}

func TestWorker_Write_RejectsInvalidJson(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	err := w.Write(models.Message(`{"broken"`))
	assert.ErrorIs(t, err, models.ErrInvalidMessage)
}

func TestWorker_Write_NotStarted(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	err := w.Write(models.Message(`{}`))
	assert.ErrorIs(t, err, worker.ErrWorkerNotStarted)
}

func TestWorker_Write_AfterTerminate(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	require.NoError(t, w.Terminate())

	err := w.Write(models.Message(`{}`))
	assert.ErrorIs(t, err, worker.ErrWorkerNotAlive)
}

func TestWorker_Messages_ClosedAfterExit(t *testing.T) {
	w := startWorker(t, worker.StartConfig{
		Cmd:  "sh",
		Args: []string{"-c", `echo '{"kind":"hello"}'`},
	})

	assert.Equal(t, "hello", receive(t, w).Kind())

	select {
	case _, ok := <-w.Messages():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("message stream was not closed")
	}
}

func TestWorker_CapturesStderr(t *testing.T) {
	w := startWorker(t, worker.StartConfig{
		Cmd:  "sh",
		Args: []string{"-c", ">&2 echo \"error\""},
	})

	evt, err := w.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, *evt.Code)
	assert.Equal(t, "error\n", evt.Stderr)
}

func TestWorker_Wait_ReturnsExitEvent(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "echo"})

	evt, err := w.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, *evt.Code)
	assert.Nil(t, evt.Signal)

	// waiting again returns the same event
	again, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, evt, again)
}

func TestWorker_Wait_NotStarted(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	_, err := w.Wait(context.Background())
	assert.ErrorIs(t, err, worker.ErrWorkerNotStarted)
}

func TestWorker_Wait_ReturnsErrorIfContextCancelled(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "cat"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorker_WaitFor_ReturnsErrorIfTimeout(t *testing.T) {
	w := startWorker(t, worker.StartConfig{
		Cmd:  "sleep",
		Args: []string{"1"},
	})

	_, err := w.WaitFor(context.Background(), 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorker_Stop_TerminatesProcess(t *testing.T) {
	w := startWorker(t, worker.StartConfig{Cmd: "sleep", Args: []string{"10"}})

	pid := w.Pid()

	evt, err := w.Stop(context.Background(), worker.StopConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	// the process should have been terminated w/ a sigterm
	require.NotNil(t, evt.Signal)
	assert.Equal(t, syscall.SIGTERM, syscall.Signal(*evt.Signal))
	assert.Nil(t, evt.Code)

	assert.False(t, w.Alive())
	assert.False(t, util.IsProcessAlive(pid))
}

func TestWorker_Stop_EscalatesToKill(t *testing.T) {
	w := startWorker(t, worker.StartConfig{
		Cmd:  "sh",
		Args: []string{"-c", `trap "" TERM; sleep 10`},
	})

	// give the shell a moment to install the trap
	time.Sleep(200 * time.Millisecond)

	evt, err := w.Stop(context.Background(), worker.StopConfig{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	require.NotNil(t, evt.Signal)
	assert.Equal(t, syscall.SIGKILL, syscall.Signal(*evt.Signal))
}

func TestWorker_Stop_NotStarted(t *testing.T) {
	w := worker.NewProcessWorker(zap.NewNop())

	_, err := w.Stop(context.Background(), worker.StopConfig{})
	assert.ErrorIs(t, err, worker.ErrWorkerNotStarted)
}
