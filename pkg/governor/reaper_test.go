package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

func TestReaperForcesFailureAfterDeadline(t *testing.T) {
	proc := newFakeProcessor()
	proc.release = make(chan struct{}) // never released: simulates a vanished child
	defer close(proc.release)

	logger := logging.New(logging.DefaultConfig())
	g := New(Config{
		MaxConcurrentTasks:    4,
		PreviousTasksCapacity: 10,
		DeadmanTimeout:        50 * time.Millisecond,
	}, "1:aaaaa", proc, logger)
	require.NoError(t, g.RegisterClass("NothingEtl"))
	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	procID, err := g.Submit(message.TaskSubmit{ModelClass: "NothingEtl"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e, ok := g.Get(procID)
		return ok && e.Finished != nil
	}, 2*time.Second, 10*time.Millisecond)

	e, ok := g.Get(procID)
	require.True(t, ok)
	assert.True(t, e.Result.Failed())
}

func TestReaperDisabledByDefault(t *testing.T) {
	proc := newFakeProcessor()
	proc.release = make(chan struct{})
	defer close(proc.release)

	logger := logging.New(logging.DefaultConfig())
	g := New(Config{MaxConcurrentTasks: 4, PreviousTasksCapacity: 10}, "1:aaaaa", proc, logger)
	require.NoError(t, g.RegisterClass("NothingEtl"))
	require.NoError(t, g.Start(context.Background()))
	defer g.Stop()

	procID, err := g.Submit(message.TaskSubmit{ModelClass: "NothingEtl"})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	e, ok := g.Get(procID)
	require.True(t, ok)
	assert.Nil(t, e.Finished, "with DeadmanTimeout unset, an unreaped task must stay in-flight forever")
}
