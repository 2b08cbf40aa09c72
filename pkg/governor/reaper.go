package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// reaperTick is how often the watchdog scans the process table. Kept
// well below any realistic DeadmanTimeout so the forced TaskResult
// lands close to the configured deadline.
const reaperTick = time.Second

// runReaper resolves the §9 Open Question on child death without a
// TaskResult. It is only started when Config.DeadmanTimeout > 0 — the
// default of 0 preserves the source's "never reaped" behavior exactly.
// An entry whose Started predates the timeout with no Finished is
// logged and synthesized into a failed TaskResult so it cannot stay
// in-flight forever.
func (g *Governor) runReaper(ctx context.Context) error {
	ticker := time.NewTicker(reaperTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.reapOnce()
		}
	}
}

func (g *Governor) reapOnce() {
	deadline := time.Now().Add(-g.cfg.DeadmanTimeout)
	for _, e := range g.table.snapshotInFlight() {
		if e.Started.After(deadline) {
			continue
		}
		g.logger.Warnf("task_id=%s started at %s with no result after deadman_timeout=%s, forcing failure", e.ProcID, e.Started, g.cfg.DeadmanTimeout)

		result := message.Result{
			Exception: fmt.Sprintf("child process vanished without reporting a result within %s", g.cfg.DeadmanTimeout),
		}
		select {
		case g.inbox <- message.NewResult(message.TaskResult{TaskID: e.ProcID, Result: result}):
		default:
			// Inbox is effectively unbounded; this path only triggers
			// under extreme backpressure. Retry next tick rather than
			// blocking the watchdog goroutine.
			g.logger.Errorf("reaper could not enqueue forced result for task_id=%s, inbox full", e.ProcID)
		}
	}
}
