package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/broker"
	"github.com/aye-aye-dev/fossa-node/pkg/identity"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// Config tunes one pool's retry and inactivity behavior (spec §4.3).
type Config struct {
	TaskQueue         string
	Retries           int           // default 1: up to two total attempts per sub-task.
	InactivityTimeout time.Duration // default 3s.
	LogRateLimit      time.Duration // default 60s: "log periodically" on a sustained inactivity tick.
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig(taskQueue string) Config {
	return Config{
		TaskQueue:         taskQueue,
		Retries:           1,
		InactivityTimeout: 3 * time.Second,
		LogRateLimit:      60 * time.Second,
	}
}

// RetryObserver receives one tick per sub-task re-publish, normal or
// forced. *metrics.Metrics satisfies this without the pool importing
// the metrics package directly.
type RetryObserver interface {
	ObserveSubtaskRetry()
}

// Pool fans a batch of sub-tasks out to the shared task queue and
// gathers completions from its own dedicated reply queue.
type Pool struct {
	cfg     Config
	client  *broker.Client
	logger  *logging.FieldLogger
	poolID  string
	metrics RetryObserver
}

// New allocates a pool id (spec §4.3 step 1: "random 5-letter tag").
func New(cfg Config, client *broker.Client, logger *logging.Logger) (*Pool, error) {
	poolID, err := identity.RandomTag()
	if err != nil {
		return nil, fmt.Errorf("pool: allocating pool id: %w", err)
	}
	return &Pool{
		cfg:    cfg,
		client: client,
		logger: logger.WithComponent("pool." + poolID),
		poolID: poolID,
	}, nil
}

// AttachMetrics wires a RetryObserver that counts every re-publish.
// Optional: a nil observer (the default) just skips the count.
func (p *Pool) AttachMetrics(observer RetryObserver) {
	p.metrics = observer
}

// Run publishes every spec in order (step 2), then drives the reply
// consumption loop (steps 3-6) in a background goroutine, returning a
// channel that yields one Completion per spec after retries are
// exhausted one way or the other. The channel closes once every
// sub-task has been accounted for.
func (p *Pool) Run(ctx context.Context, specs []Spec) (<-chan Completion, error) {
	replyQueue, err := p.client.DeclareReplyQueue()
	if err != nil {
		return nil, fmt.Errorf("pool: declaring reply queue: %w", err)
	}

	state := &runState{
		mu:       sync.Mutex{},
		inFlight: make(map[string]*inFlightEntry, len(specs)),
	}

	for ordinal, spec := range specs {
		subtaskID := broker.EncodeSubtaskID(p.poolID, ordinal)
		state.inFlight[subtaskID] = &inFlightEntry{spec: spec, ordinal: ordinal, attempts: 1, startTime: time.Now()}
		if err := p.publish(ctx, replyQueue, subtaskID, spec); err != nil {
			return nil, fmt.Errorf("pool: publishing subtask %s: %w", subtaskID, err)
		}
	}

	out := make(chan Completion, len(specs))
	go p.consumeLoop(ctx, replyQueue, state, out)
	return out, nil
}

type runState struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightEntry
}

func (p *Pool) publish(ctx context.Context, replyQueue, subtaskID string, spec Spec) error {
	wire := broker.SubtaskPublish{
		Method:          spec.Method,
		MethodKwargs:    spec.MethodKwargs,
		ResolverContext: spec.ResolverContext,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.cfg.TaskQueue, body, subtaskID, replyQueue)
}

// consumeLoop implements spec §4.3 steps 3-6.
func (p *Pool) consumeLoop(ctx context.Context, replyQueue string, state *runState, out chan<- Completion) {
	defer close(out)

	deliveries, err := p.client.Consume(replyQueue, "pool."+p.poolID)
	if err != nil {
		p.logger.Errorf("consume on reply queue %s failed: %v", replyQueue, err)
		return
	}

	ticker := time.NewTicker(p.cfg.InactivityTimeout)
	defer ticker.Stop()
	lastLog := time.Time{}

	for {
		if p.remaining(state) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := delivery.Ack(false); err != nil {
				p.logger.Errorf("ack failed: %v", err)
			}
			p.handleDelivery(ctx, replyQueue, state, delivery.CorrelationId, delivery.Body, out)

		case <-ticker.C:
			p.forceExpiredRepublishes(ctx, replyQueue, state, out)
			if p.remaining(state) > 0 {
				if time.Since(lastLog) >= p.cfg.LogRateLimit {
					p.logger.Warnf("%d subtask(s) still in flight after inactivity tick", p.remaining(state))
					lastLog = time.Now()
				}
			}
		}
	}
}

func (p *Pool) remaining(state *runState) int {
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.inFlight)
}

func (p *Pool) handleDelivery(ctx context.Context, replyQueue string, state *runState, subtaskID string, body []byte, out chan<- Completion) {
	var wire broker.CompletionWire
	if err := json.Unmarshal(body, &wire); err != nil {
		p.logger.Errorf("decode completion for subtask_id=%s: %v", subtaskID, err)
		return
	}

	state.mu.Lock()
	entry, known := state.inFlight[subtaskID]
	state.mu.Unlock()
	if !known {
		// A stale reply for an unknown subtask_id: a late retry
		// winner after a retry already resolved it, or a duplicate
		// under at-least-once delivery. Logged and ignored (spec §4.3,
		// "Edge cases").
		p.logger.Debugf("ignoring stale completion for unknown subtask_id=%s", subtaskID)
		return
	}

	result := message.Result{
		ReturnValue: wire.ResultSpec.Result.ReturnValue,
		Exception:   wire.ResultSpec.Result.Exception,
		Traceback:   wire.ResultSpec.Result.Traceback,
	}

	if wire.Kind == broker.CompletionComplete {
		p.remove(state, subtaskID)
		out <- Completion{SubtaskID: subtaskID, Ordinal: entry.ordinal, Result: result}
		return
	}

	// Failed: apply the retry rule.
	state.mu.Lock()
	entry.attempts++
	attempts := entry.attempts
	state.mu.Unlock()

	if decide(attempts, p.cfg.Retries) == retryRepublish {
		if p.metrics != nil {
			p.metrics.ObserveSubtaskRetry()
		}
		if err := p.publish(ctx, replyQueue, subtaskID, entry.spec); err != nil {
			p.logger.Errorf("re-publishing subtask_id=%s: %v", subtaskID, err)
		}
		return
	}

	p.remove(state, subtaskID)
	out <- Completion{SubtaskID: subtaskID, Ordinal: entry.ordinal, Result: result}
}

func (p *Pool) remove(state *runState, subtaskID string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.inFlight, subtaskID)
}

// forceExpiredRepublishes resolves the third Open Question: a
// sub-task whose deadline has passed without any reply (Failed or
// Complete) is force-republished once, counted against the normal
// retry budget, so a silently-dropped delivery cannot hang the pool.
func (p *Pool) forceExpiredRepublishes(ctx context.Context, replyQueue string, state *runState, out chan<- Completion) {
	now := time.Now()

	state.mu.Lock()
	var expired []string
	for subtaskID, entry := range state.inFlight {
		if now.After(entry.deadline(p.cfg.InactivityTimeout)) {
			expired = append(expired, subtaskID)
		}
	}
	state.mu.Unlock()

	for _, subtaskID := range expired {
		state.mu.Lock()
		entry, known := state.inFlight[subtaskID]
		if !known {
			state.mu.Unlock()
			continue
		}
		entry.attempts++
		attempts := entry.attempts
		entry.startTime = now
		spec := entry.spec
		state.mu.Unlock()

		if decide(attempts, p.cfg.Retries) == retryExhausted {
			p.remove(state, subtaskID)
			p.logger.Errorf("subtask_id=%s exceeded retry budget waiting past its deadline", subtaskID)
			out <- Completion{
				SubtaskID: subtaskID,
				Ordinal:   entry.ordinal,
				Result:    message.Result{Exception: "subtask missed its reply deadline and exhausted its retry budget"},
			}
			continue
		}

		p.logger.Warnf("subtask_id=%s missed its deadline with no reply, forcing re-publish", subtaskID)
		if p.metrics != nil {
			p.metrics.ObserveSubtaskRetry()
		}
		if err := p.publish(ctx, replyQueue, subtaskID, spec); err != nil {
			p.logger.Errorf("forced re-publish of subtask_id=%s failed: %v", subtaskID, err)
		}
	}
}
