package processor

import (
	"context"
	"fmt"

	"github.com/aye-aye-dev/fossa-node/pkg/broker"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
	"github.com/aye-aye-dev/fossa-node/pkg/pool"
)

// BrokerBacked is the Isolated Processor variant for partitioned
// models: it installs a Pool (C3) and drives a model through
// PartitionedModel instead of calling Invoke directly (spec §4.2,
// "Broker-backed variant").
type BrokerBacked struct {
	registry *Registry
	resolver Resolver
	client   *broker.Client
	poolCfg  pool.Config
	logger   *logging.Logger
	metrics  pool.RetryObserver
}

// NewBrokerBacked builds a BrokerBacked processor. poolCfg configures
// the per-task Pool's retry/inactivity policy; client is shared across
// tasks, one connection per process (spec §5, "Broker connections are
// not shared across processes").
func NewBrokerBacked(registry *Registry, resolver Resolver, client *broker.Client, poolCfg pool.Config, logger *logging.Logger) *BrokerBacked {
	return &BrokerBacked{registry: registry, resolver: resolver, client: client, poolCfg: poolCfg, logger: logger}
}

// AttachMetrics wires a RetryObserver onto every Pool this processor
// subsequently creates for a fan-out task.
func (b *BrokerBacked) AttachMetrics(observer pool.RetryObserver) {
	b.metrics = observer
}

// Run satisfies governor.Processor.
func (b *BrokerBacked) Run(ctx context.Context, procID string, submit message.TaskSubmit) message.Result {
	fieldLogger := b.logger.WithComponent("processor.broker_backed")
	return runIsolated(ctx, procID, submit, b.registry, b.resolver, fieldLogger, b.fanOut)
}

func (b *BrokerBacked) fanOut(ctx context.Context, model Model, resolverContext map[string]any) (any, error) {
	partitioned, ok := model.(PartitionedModel)
	if !ok {
		return nil, fmt.Errorf("model %T does not implement PartitionedModel", model)
	}

	specs, err := partitioned.Partition(ctx, resolverContext)
	if err != nil {
		return nil, fmt.Errorf("partitioning: %w", err)
	}

	p, err := pool.New(b.poolCfg, b.client, b.logger)
	if err != nil {
		return nil, err
	}
	if b.metrics != nil {
		p.AttachMetrics(b.metrics)
	}

	completions, err := p.Run(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("starting pool: %w", err)
	}

	gathered := make([]pool.Completion, 0, len(specs))
	for c := range completions {
		if c.Result.Failed() {
			return nil, &partialFailureError{subtaskID: c.SubtaskID, exception: c.Result.Exception}
		}
		gathered = append(gathered, c)
	}

	return partitioned.Combine(ctx, gathered)
}

// partialFailureError is the structured error a fan-out raises when
// any sub-task ultimately fails (spec §4.3's "still failing, surfaced
// to the parent task as a failed completion message" plus scenario 3's
// "results.payload.failure_origin_task_id").
type partialFailureError struct {
	subtaskID string
	exception string
}

func (e *partialFailureError) Error() string {
	return fmt.Sprintf("subtask %s failed: %s", e.subtaskID, e.exception)
}

// resultFromFanOutError turns a fan-out error into a message.Result,
// attaching the originating sub-task id in Payload when available.
func resultFromFanOutError(err error) message.Result {
	if pf, ok := err.(*partialFailureError); ok {
		return message.Result{
			Exception: pf.exception,
			Payload: map[string]any{
				"failure_origin_task_id": pf.subtaskID,
				"exception_class_name":   exceptionClassName(pf.exception),
			},
		}
	}
	return message.Result{Exception: err.Error()}
}

// exceptionClassName extracts the leading "ClassName:" token user code
// is expected to format its exceptions with, falling back to a generic
// label when none is present.
func exceptionClassName(exception string) string {
	for i, r := range exception {
		if r == ':' {
			return exception[:i]
		}
	}
	return "Error"
}
