package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

func TestProcessTableCompleteMovesToRing(t *testing.T) {
	pt := newProcessTable(2)
	pt.insert(Entry{ProcID: "p1", Submit: message.TaskSubmit{ModelClass: "X"}})
	assert.Equal(t, 1, pt.len())

	entry, ok := pt.complete("p1", message.Result{ReturnValue: 1})
	require.True(t, ok)
	assert.Equal(t, "p1", entry.ProcID)
	assert.Equal(t, 0, pt.len())
	assert.Len(t, pt.previousTasks(), 1)
}

func TestProcessTableCompleteUnknownIDReturnsFalse(t *testing.T) {
	pt := newProcessTable(2)
	_, ok := pt.complete("missing", message.Result{})
	assert.False(t, ok)
}

func TestProcessTableRingBufferWraps(t *testing.T) {
	pt := newProcessTable(2)
	for i, id := range []string{"a", "b", "c"} {
		pt.insert(Entry{ProcID: id, Submit: message.TaskSubmit{ModelClass: "X"}})
		_, ok := pt.complete(id, message.Result{ReturnValue: i})
		require.True(t, ok)
	}
	prev := pt.previousTasks()
	require.Len(t, prev, 2)
	assert.Equal(t, "b", prev[0].ProcID)
	assert.Equal(t, "c", prev[1].ProcID)
}
