package processor

import (
	"context"
	"fmt"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// partitionFn is how Local's shared isolation helper gets to a
// partitioned fan-out without depending on BrokerBacked directly; the
// Local variant always passes nil, matching "Local variant... for
// partitioned models it pins max_concurrent_tasks = 1 to avoid nested
// fan-out" — it never fans out itself.
type partitionFn func(ctx context.Context, model Model, resolverContext map[string]any) (any, error)

// Local is the Isolated Processor variant that runs a model entirely
// in-process of its isolation boundary (spec §4.2, "Local variant").
// "Fresh child process" in the source becomes a dedicated goroutine
// with a recover boundary here: the governor's inbox is the only
// shared state the task ever touches, same as a real child process
// would only share a queue handle.
type Local struct {
	registry *Registry
	resolver Resolver
	logger   *logging.FieldLogger
}

// NewLocal builds a Local processor over registry, with an optional
// resolver for resolver_context scopes.
func NewLocal(registry *Registry, resolver Resolver, logger *logging.Logger) *Local {
	return &Local{registry: registry, resolver: resolver, logger: logger.WithComponent("processor.local")}
}

// Run satisfies governor.Processor.
func (l *Local) Run(ctx context.Context, procID string, submit message.TaskSubmit) message.Result {
	return runIsolated(ctx, procID, submit, l.registry, l.resolver, l.logger, nil)
}

// runIsolated is the shared body of both variants: construct the
// model, enter the resolver scope, invoke the method, and turn a
// panic or error into a TaskResult-shaped message.Result instead of
// letting it escape — matching "any raised error -> exception
// (stringified) + traceback" (spec §4.2).
func runIsolated(ctx context.Context, procID string, submit message.TaskSubmit, registry *Registry, resolver Resolver, logger *logging.FieldLogger, fanOut partitionFn) (result message.Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("task_id=%s model_class=%s panicked: %v", procID, submit.ModelClass, r)
			result = message.Result{Exception: fmt.Sprintf("panic: %v", r)}
		}
	}()

	model, err := registry.New(submit.ModelClass)
	if err != nil {
		return message.Result{Exception: err.Error()}
	}

	scope, err := Enter(ctx, resolver, submit.ResolverContext)
	if err != nil {
		return message.Result{Exception: fmt.Sprintf("entering resolver scope: %v", err)}
	}
	defer scope.Close()

	if fanOut != nil {
		value, err := fanOut(ctx, model, submit.ResolverContext)
		if err != nil {
			return resultFromFanOutError(err)
		}
		return message.Result{ReturnValue: value}
	}

	value, err := model.Invoke(ctx, submit.Method, submit.MethodKwargs, submit.ResolverContext)
	if err != nil {
		return message.Result{Exception: err.Error()}
	}
	return message.Result{ReturnValue: value}
}
