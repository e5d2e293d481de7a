package relay_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lambda-feedback/agenthost/internal/execution/supervisor"
	"github.com/lambda-feedback/agenthost/internal/relay"
	"github.com/lambda-feedback/agenthost/internal/window"
	"github.com/lambda-feedback/agenthost/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// taggingWorker answers every line read from stdin with a message that
// carries the generation and the original line.
const taggingWorker = `while read -r line; do echo "{\"gen\":$AGENTHOST_GENERATION,\"in\":$line}"; done`

// chattyWorker emits a message tagged with its generation every few
// milliseconds.
const chattyWorker = `i=0; while true; do i=$((i+1)); echo "{\"gen\":$AGENTHOST_GENERATION,\"i\":$i}"; sleep 0.005; done`

func setup(t *testing.T, script string) (*window.Local, *relay.Relay, *supervisor.ProcessSupervisor) {
	log := zap.NewNop()

	win := window.NewLocal(log)
	r := relay.New(win, log)

	s := supervisor.New(supervisor.Params{
		Config: supervisor.Config{
			Mode: supervisor.Production,
			Entry: supervisor.EntryConfig{
				Cmd:  "sh",
				Args: []string{"-c", script},
			},
			Stop: supervisor.StopConfig{Timeout: 2 * time.Second},
		},
		Wiring: r,
		Log:    log,
	})

	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})

	return win, r, s
}

func waitReceived(t *testing.T, win *window.Local, n int) []models.Message {
	require.Eventually(t, func() bool {
		return len(win.Received()) >= n
	}, 5*time.Second, 5*time.Millisecond, "expected %d messages", n)

	return win.Received()
}

func TestRelay_ForwardsInOrderExactlyOnce(t *testing.T) {
	win, _, s := setup(t, taggingWorker)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	const count = 50

	for i := 0; i < count; i++ {
		require.True(t, win.Post(models.Message(fmt.Sprintf(`{"kind":"seq","body":%d}`, i))))
	}

	received := waitReceived(t, win, count)

	// give stray duplicates a chance to show up
	time.Sleep(100 * time.Millisecond)
	received = win.Received()

	require.Len(t, received, count)

	for i, msg := range received {
		assert.Equal(t, int64(1), gjson.GetBytes(msg, "gen").Int())
		assert.Equal(t, int64(i), gjson.GetBytes(msg, "in.body").Int())
	}
}

func TestRelay_PassesUnknownKindsThrough(t *testing.T) {
	win, _, s := setup(t, "cat")

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	inputs := []string{
		`{"kind":"made-up","body":{"nested":[1,2,3]}}`,
		`{"no":"kind"}`,
		`[1,2,3]`,
	}

	for _, input := range inputs {
		win.Post(models.Message(input))
	}

	received := waitReceived(t, win, len(inputs))

	for i, input := range inputs {
		assert.JSONEq(t, input, string(received[i]))
	}
}

func TestRelay_NoLeakageAcrossGenerations(t *testing.T) {
	win, r, s := setup(t, chattyWorker)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	waitReceived(t, win, 5)

	gen, err := s.Restart(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, gen.Seq)
	assert.Same(t, gen, r.Current())

	boundary := len(win.Received())

	waitReceived(t, win, boundary+5)

	received := win.Received()

	// nothing from the first generation after the restart completed
	for _, msg := range received[boundary:] {
		assert.Equal(t, int64(2), gjson.GetBytes(msg, "gen").Int())
	}

	// and the generations never interleave
	switched := false
	for _, msg := range received {
		switch gjson.GetBytes(msg, "gen").Int() {
		case 1:
			assert.False(t, switched, "message from generation 1 after generation 2")
		case 2:
			switched = true
		}
	}
}

func TestRelay_InboundReachesCurrentGenerationOnly(t *testing.T) {
	win, _, s := setup(t, taggingWorker)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	_, err = s.Restart(context.Background())
	require.NoError(t, err)

	win.Post(models.Message(`{"kind":"after-restart"}`))

	received := waitReceived(t, win, 1)

	time.Sleep(100 * time.Millisecond)
	require.Len(t, win.Received(), 1)

	assert.Equal(t, int64(2), gjson.GetBytes(received[0], "gen").Int())
	assert.Equal(t, "after-restart", gjson.GetBytes(received[0], "in.kind").String())
}

func TestRelay_DropsWhenWindowDestroyed(t *testing.T) {
	win, _, s := setup(t, chattyWorker)

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	waitReceived(t, win, 1)

	win.DestroyContent()

	count := len(win.Received())

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, count, len(win.Received()))
	assert.True(t, gen.Worker.Alive())
}

func TestRelay_DropsWhenWorkerDead(t *testing.T) {
	win, _, s := setup(t, "cat")

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, gen.Worker.Kill())

	_, err = gen.Worker.WaitFor(context.Background(), 5*time.Second)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		win.Post(models.Message(`{"kind":"lost"}`))
	})

	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, win.Received())
}

func TestRelay_DetachedAfterStop(t *testing.T) {
	win, r, s := setup(t, taggingWorker)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop(context.Background()))

	assert.Nil(t, r.Current())

	// no handler left on the window
	assert.False(t, win.Post(models.Message(`{}`)))
}

func TestRelay_Attach_Twice(t *testing.T) {
	win, r, s := setup(t, "cat")

	gen, err := s.Start(context.Background())
	require.NoError(t, err)

	err = r.Attach(gen)
	assert.ErrorIs(t, err, relay.ErrAlreadyAttached)

	// exactly one subscription on the window
	win.Post(models.Message(`{"kind":"once"}`))

	waitReceived(t, win, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, win.Received(), 1)
}

func TestRelay_PostBeforeStart_IsNeverDelivered(t *testing.T) {
	win, _, s := setup(t, taggingWorker)

	// nothing is subscribed yet, so the message is dropped, not queued
	assert.False(t, win.Post(models.Message(`{"kind":"early"}`)))

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	win.Post(models.Message(`{"kind":"late"}`))

	received := waitReceived(t, win, 1)
	time.Sleep(100 * time.Millisecond)

	require.Len(t, win.Received(), 1)
	assert.Equal(t, "late", gjson.GetBytes(received[0], "in.kind").String())
}

func TestRelay_StrayOutputDoesNotStopDelivery(t *testing.T) {
	win, _, s := setup(t, `echo "debug: booting"; `+taggingWorker)

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	win.Post(models.Message(`{"kind":"first"}`))
	win.Post(models.Message(`{"kind":"second"}`))

	received := waitReceived(t, win, 2)

	assert.Equal(t, "first", gjson.GetBytes(received[0], "in.kind").String())
	assert.Equal(t, "second", gjson.GetBytes(received[1], "in.kind").String())
}
