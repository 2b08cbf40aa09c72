// Package governor implements C5 (the main loop), C6 (the admission
// façade), the process table, and the previous-tasks ring buffer
// described in spec §3 and §4.1. It is the one package every producer
// (HTTP adapter, sidecars, isolated processors) talks to.
package governor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/aye-aye-dev/fossa-node/pkg/audit"
	"github.com/aye-aye-dev/fossa-node/pkg/errs"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// inboxCapacity approximates the source's unbounded inbox. A Go channel
// needs a fixed capacity; a buffer this size absorbs any realistic
// admission burst while keeping Submit a non-blocking send under normal
// load. If it ever fills, Submit blocking is the correct backpressure,
// not a bug — see §5's admission race discussion.
const inboxCapacity = 65536

// Processor runs one task to completion and returns its result. It
// corresponds to C2: the Isolated Processor contract. Run is expected
// to enforce its own isolation boundary (goroutine + recover, or a
// real child process, depending on the variant) and must never panic
// across this call.
type Processor interface {
	Run(ctx context.Context, procID string, submit message.TaskSubmit) message.Result
}

// CompletionHandler is invoked once a task finishes, replacing the
// source's callback-in-message with tag-based dispatch (spec §9,
// "Re-architectures required"). Each Source registers its own handler;
// local submitters that don't need one can leave it unregistered.
type CompletionHandler func(result message.TaskResult, original message.TaskSubmit)

// Sidecar is a long-running auxiliary started alongside the main loop
// (C4's contract as seen from the governor's side). Run should block
// until ctx is cancelled or it hits an unrecoverable error.
type Sidecar interface {
	Name() string
	Run(ctx context.Context, g *Governor) error
}

// MetricsSink receives the loop's capacity scoreboard and process table
// size on every tick. *metrics.Metrics satisfies this without the
// governor importing the metrics package directly.
type MetricsSink interface {
	SetCapacity(free int64)
	SetRunningTasks(n int)
}

// Config tunes the governor's resource model.
type Config struct {
	MaxConcurrentTasks    int
	PreviousTasksCapacity int
	// DeadmanTimeout enables the optional dead-child watchdog (§9 Open
	// Question). Zero disables it, matching the source's "no reaper"
	// behavior exactly.
	DeadmanTimeout time.Duration
}

// Governor is the single-consumer control loop plus its admission
// façade (C6).
type Governor struct {
	cfg       Config
	nodeID    string
	inbox     chan message.Envelope
	table     *processTable
	whitelist *whitelist
	capacity  *capacityCounter
	processor Processor
	logger    *logging.FieldLogger
	metrics   MetricsSink
	audit     audit.Sink

	handlersMu sync.RWMutex
	handlers   map[message.Source]CompletionHandler

	sidecars []Sidecar

	procCounter atomic.Uint64
	started     atomic.Bool
	cancel      context.CancelFunc
	eg          *errgroup.Group
}

// New builds a Governor. The processor is the Isolated Processor
// variant (Local, Broker-backed or Subprocess) this node runs tasks
// through.
func New(cfg Config, nodeID string, processor Processor, logger *logging.Logger) *Governor {
	return &Governor{
		cfg:       cfg,
		nodeID:    nodeID,
		inbox:     make(chan message.Envelope, inboxCapacity),
		table:     newProcessTable(cfg.PreviousTasksCapacity),
		whitelist: newWhitelist(),
		capacity:  newCapacityCounter(),
		processor: processor,
		logger:    logger.WithComponent("governor"),
		handlers:  make(map[message.Source]CompletionHandler),
	}
}

// AttachMetrics wires a MetricsSink the loop reports its capacity
// scoreboard and process table size to on every tick. Optional: a nil
// sink (the default) means the loop simply skips reporting.
func (g *Governor) AttachMetrics(sink MetricsSink) {
	g.metrics = sink
}

// AttachAudit wires an EXTERNAL_LOGGERS sink (spec §6): every admission
// and completion is recorded, best-effort, without blocking the loop.
// Optional: a nil sink (the default) skips recording entirely.
func (g *Governor) AttachAudit(sink audit.Sink) {
	g.audit = sink
}

func (g *Governor) recordAudit(event audit.Event) {
	if g.audit == nil {
		return
	}
	go func() {
		if err := g.audit.Record(context.Background(), event); err != nil {
			g.logger.Errorf("audit record failed for task_id=%s kind=%s: %v", event.ProcID, event.Kind, err)
		}
	}()
}

// RegisterClass adds modelClass to the whitelist. Fails on a write-once
// boot-time collision (spec §3, "Accepted classes").
func (g *Governor) RegisterClass(modelClass string) error {
	return g.whitelist.register(modelClass)
}

// RegisterCompletionHandler binds a handler to a Source tag. Sidecars
// call this at the start of their Run; the HTTP adapter registers its
// handler for message.DefaultSource when it is built. A Source with no
// registered handler gets no completion callback.
func (g *Governor) RegisterCompletionHandler(source message.Source, handler CompletionHandler) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers[source] = handler
}

// HasCapacity reads the shared scoreboard (C6). True iff the most
// recent loop tick observed an empty inbox and free slots.
func (g *Governor) HasCapacity() bool {
	return g.capacity.positive()
}

// Capacity returns the last published free-slot count, for status
// reporting (/node_info).
func (g *Governor) Capacity() int64 {
	return g.capacity.read()
}

// NodeID returns this governor's stable identity string.
func (g *Governor) NodeID() string {
	return g.nodeID
}

// MaxConcurrentTasks returns the configured concurrency budget.
func (g *Governor) MaxConcurrentTasks() int {
	return g.cfg.MaxConcurrentTasks
}

// Submit enqueues a task (C6). It validates the whitelist synchronously
// and fails with *errs.InvalidTaskSpec without touching capacity —
// callers must read HasCapacity first; the race between the two is
// accepted by design (spec §5). A TaskID is assigned if the caller left
// one unset (the local-submission path); sidecar-injected submissions
// arrive with their own composite TaskID already set.
func (g *Governor) Submit(task message.TaskSubmit) (string, error) {
	if !g.whitelist.accepts(task.ModelClass) {
		return "", &errs.InvalidTaskSpec{ModelClass: task.ModelClass}
	}
	if task.TaskID == "" {
		task.TaskID = g.nextProcID()
	}
	if task.Source == "" {
		task.Source = message.DefaultSource
	}
	g.inbox <- message.NewSubmit(task)
	return task.TaskID, nil
}

func (g *Governor) nextProcID() string {
	n := g.procCounter.Add(1)
	return fmt.Sprintf("%s:%d", g.nodeID, n)
}

// AttachSidecar registers a sidecar to start alongside the loop. Fails
// once the governor has already started.
func (g *Governor) AttachSidecar(s Sidecar) error {
	if g.started.Load() {
		return &errs.AlreadyStarted{}
	}
	g.sidecars = append(g.sidecars, s)
	return nil
}

// Start launches the loop, every attached sidecar, and the optional
// dead-man watchdog, each under its own errgroup goroutine. A second
// call fails (spec §4.1, "idempotent-forbidden").
func (g *Governor) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return &errs.AlreadyStarted{}
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	g.eg = eg

	eg.Go(func() error { return g.loop(egCtx) })

	for _, s := range g.sidecars {
		sc := s
		eg.Go(func() error { return sc.Run(egCtx, g) })
	}

	if g.cfg.DeadmanTimeout > 0 {
		eg.Go(func() error { return g.runReaper(egCtx) })
	}

	return nil
}

// Stop posts Terminate, cancels the context the sidecars and watchdog
// run under, and waits for the loop, sidecars, and watchdog to exit. It
// returns the first error any of them returned other than the
// cancellation itself (errgroup keeps only the first error).
func (g *Governor) Stop() error {
	var errAgg error
	g.inbox <- message.NewTerminate()
	if g.cancel != nil {
		g.cancel()
	}
	if g.eg != nil {
		if err := g.eg.Wait(); err != nil && err != context.Canceled {
			errAgg = multierr.Append(errAgg, err)
		}
	}
	return errAgg
}

// loop implements §4.1's main-loop algorithm.
func (g *Governor) loop(ctx context.Context) error {
	for {
		inboxEmpty := len(g.inbox) == 0
		free := g.cfg.MaxConcurrentTasks - g.table.len()

		if inboxEmpty && free > 0 {
			g.capacity.set(free)
		} else {
			g.capacity.set(0)
		}
		if g.metrics != nil {
			g.metrics.SetCapacity(g.capacity.read())
			g.metrics.SetRunningTasks(g.table.len())
		}

		var env message.Envelope
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env = <-g.inbox:
		}

		switch env.Kind {
		case message.KindTaskSubmit:
			g.handleSubmit(ctx, *env.Submit)
		case message.KindTaskResult:
			g.handleResult(*env.Result)
		case message.KindTerminate:
			g.logger.Info("terminate received, loop exiting")
			return nil
		default:
			g.logger.Errorf("dropping envelope with unknown kind %v", env.Kind)
		}
	}
}

func (g *Governor) handleSubmit(ctx context.Context, submit message.TaskSubmit) {
	// Defense-in-depth re-check (I4): a whitelist miss here means a
	// message reached the inbox without going through Submit's
	// validation, which is a bug upstream, not a reason to crash the loop.
	if !g.whitelist.accepts(submit.ModelClass) {
		g.logger.Errorf("dropping TaskSubmit for unregistered class %q (task_id=%s): bypassed submit-time validation", submit.ModelClass, submit.TaskID)
		return
	}

	procID := submit.TaskID
	if procID == "" {
		procID = g.nextProcID()
		submit.TaskID = procID
	}

	g.table.insert(Entry{ProcID: procID, Submit: submit, Started: time.Now()})
	g.logger.Debugf("admitted task_id=%s model_class=%s", procID, submit.ModelClass)
	g.recordAudit(audit.Event{ProcID: procID, ModelClass: submit.ModelClass, Kind: audit.KindAdmitted, OccurredAt: time.Now()})

	go func() {
		result := g.processor.Run(ctx, procID, submit)
		select {
		case g.inbox <- message.NewResult(message.TaskResult{TaskID: procID, Result: result}):
		case <-ctx.Done():
		}
	}()
}

func (g *Governor) handleResult(result message.TaskResult) {
	entry, ok := g.table.complete(result.TaskID, result.Result)
	if !ok {
		// I2: unknown task_id is logged and dropped, never fatal.
		g.logger.Errorf("TaskResult for unknown task_id %s dropped", result.TaskID)
		return
	}
	kind := audit.KindComplete
	detail := ""
	if result.Result.Failed() {
		kind = audit.KindFailed
		detail = result.Result.Exception
	}
	g.recordAudit(audit.Event{ProcID: entry.ProcID, ModelClass: entry.Submit.ModelClass, Kind: kind, Detail: detail, OccurredAt: time.Now()})

	g.invokeCompletionHandler(entry, result)
}

func (g *Governor) invokeCompletionHandler(entry Entry, result message.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Errorf("completion handler for task_id %s panicked: %v", entry.ProcID, r)
		}
	}()

	g.handlersMu.RLock()
	handler, ok := g.handlers[entry.Submit.Source]
	g.handlersMu.RUnlock()
	if !ok {
		return
	}
	handler(result, entry.Submit)
}

// Get returns a snapshot of one task's entry, in-flight or completed.
func (g *Governor) Get(procID string) (Entry, bool) {
	if e, ok := g.table.get(procID); ok {
		return e, true
	}
	for _, e := range g.table.previousTasks() {
		if e.ProcID == procID {
			return e, true
		}
	}
	return Entry{}, false
}

// RunningTasks returns a snapshot of in-flight entries.
func (g *Governor) RunningTasks() []Entry {
	return g.table.snapshotInFlight()
}

// PreviousTasks returns a snapshot of the completed-tasks ring buffer.
func (g *Governor) PreviousTasks() []Entry {
	return g.table.previousTasks()
}
