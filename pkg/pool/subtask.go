// Package pool implements C3: the sub-task pool a Broker-backed
// Isolated Processor installs on a partitioned model, fanning sub-tasks
// out to peer nodes over the broker and gathering their results.
package pool

import (
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// Spec is one sub-task definition, before a subtask_id is assigned
// (spec §3, "Sub-task").
type Spec struct {
	Method          string
	MethodKwargs    map[string]any
	ResolverContext map[string]any
}

// Completion is one yielded result from Run's output channel. Ordinal
// is the sub-task's position in the original Spec slice; the order
// Completions arrive on the channel is arrival order on the reply
// queue, not submission order (spec §4.3, "Ordering").
type Completion struct {
	SubtaskID string
	Ordinal   int
	Result    message.Result
}

// inFlightEntry tracks one published-but-not-yet-accounted-for sub-task.
type inFlightEntry struct {
	spec      Spec
	ordinal   int
	attempts  int
	startTime time.Time
}

// deadline is the point past which an unanswered sub-task is forced to
// re-publish rather than waiting indefinitely for a reply that a
// silently-dropped broker delivery will never produce (spec §9, third
// Open Question).
func (e *inFlightEntry) deadline(inactivityTimeout time.Duration) time.Time {
	return e.startTime.Add(inactivityTimeout * time.Duration(e.attempts+2))
}
