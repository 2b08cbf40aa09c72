package governor

import (
	"sync"
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// Entry is one row of the process table (spec §3): inserted when the
// governor spawns a child, mutated only by the governor, moved to the
// previous-tasks ring on completion or failure.
type Entry struct {
	ProcID   string
	Submit   message.TaskSubmit
	Started  time.Time
	Finished *time.Time
	Result   *message.Result
}

// processTable owns the in-flight map plus the bounded previous-tasks
// ring buffer. The source leaves previous_tasks unbounded (§9 Open
// Question); a long-running node would grow it forever, so this
// implementation caps it at previousCap, overwriting oldest-first.
type processTable struct {
	mu sync.RWMutex

	inFlight map[string]*Entry

	previousCap int
	previous    []Entry
	writeIdx    int
	filled      int
}

func newProcessTable(previousCap int) *processTable {
	if previousCap <= 0 {
		previousCap = 1000
	}
	return &processTable{
		inFlight:    make(map[string]*Entry),
		previousCap: previousCap,
		previous:    make([]Entry, previousCap),
	}
}

// insert records a freshly-spawned child. Never overwrites an existing
// procID (I1: at most one running child per proc_id).
func (t *processTable) insert(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.inFlight[e.ProcID]; exists {
		return
	}
	t.inFlight[e.ProcID] = &e
}

func (t *processTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.inFlight)
}

func (t *processTable) get(procID string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.inFlight[procID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// complete moves procID from in-flight to previous_tasks with the given
// result. Returns the completed entry and whether procID was known (I2:
// an unknown task id is the caller's problem to log and drop, not this
// method's).
func (t *processTable) complete(procID string, result message.Result) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.inFlight[procID]
	if !ok {
		return Entry{}, false
	}
	delete(t.inFlight, procID)

	now := time.Now()
	e.Finished = &now
	e.Result = &result

	t.previous[t.writeIdx] = *e
	t.writeIdx = (t.writeIdx + 1) % t.previousCap
	if t.filled < t.previousCap {
		t.filled++
	}

	return *e, true
}

// previousTasks returns a snapshot of completed tasks, most recent last.
func (t *processTable) previousTasks() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, t.filled)
	if t.filled < t.previousCap {
		out = append(out, t.previous[:t.filled]...)
		return out
	}
	out = append(out, t.previous[t.writeIdx:]...)
	out = append(out, t.previous[:t.writeIdx]...)
	return out
}

// snapshotInFlight returns a copy of all currently-running entries, for
// read-only consumers like the HTTP adapter and the dead-man watchdog.
func (t *processTable) snapshotInFlight() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.inFlight))
	for _, e := range t.inFlight {
		out = append(out, *e)
	}
	return out
}
