package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aye-aye-dev/fossa-node/pkg/governor"
	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

// capacityPollInterval is how often the sidecar re-checks the
// governor's advisory capacity counter while waiting for a free slot.
const capacityPollInterval = 200 * time.Millisecond

// emptyQueueBackoff matches spec §4.4 step 3's "on an empty poll,
// sleep 5s and retry".
const emptyQueueBackoff = 5 * time.Second

// SidecarConfig names one MESSAGE_BROKER_MANAGERS entry (spec §6).
type SidecarConfig struct {
	Name      string
	BrokerURL string
	TaskQueue string
}

// Sidecar implements C4: bridging a broker task queue into the local
// governor's inbox and routing completions back to the originator via
// reply-queue publish.
type Sidecar struct {
	cfg    SidecarConfig
	client *Client
	logger *logging.FieldLogger
}

// NewSidecar builds a Sidecar from its config. The connection is
// opened lazily, on first use inside Run.
func NewSidecar(cfg SidecarConfig, logger *logging.Logger) *Sidecar {
	return &Sidecar{
		cfg:    cfg,
		client: NewClient(cfg.BrokerURL, logger),
		logger: logger.WithComponent("sidecar." + cfg.Name),
	}
}

// sourceTag is this sidecar's message.Source, used both to tag
// submissions it injects and to register its completion handler.
func (s *Sidecar) sourceTag() message.Source {
	return message.Source("sidecar:" + s.cfg.Name)
}

// Name satisfies governor.Sidecar.
func (s *Sidecar) Name() string { return s.cfg.Name }

// Run satisfies governor.Sidecar: registers the completion handler,
// then drives the inbound loop under the client's reconnect state
// machine until ctx is cancelled.
func (s *Sidecar) Run(ctx context.Context, g *governor.Governor) error {
	g.RegisterCompletionHandler(s.sourceTag(), s.publishResult)

	if err := s.client.DeclareTaskQueue(s.cfg.TaskQueue); err != nil {
		return err
	}

	return s.client.RunWithReconnect(ctx, func(ctx context.Context) error {
		return s.inboundLoop(ctx, g)
	})
}

// inboundLoop implements spec §4.4's numbered steps 1-4. A single
// iteration's error return bubbles up to RunWithReconnect, which
// reconnects after its backoff — this is the re-architected version of
// the source's reconnect-restart exception handler.
func (s *Sidecar) inboundLoop(ctx context.Context, g *governor.Governor) error {
	for {
		if err := s.waitForCapacity(ctx, g); err != nil {
			return err
		}

		delivery, ok, err := s.client.Get(s.cfg.TaskQueue, false)
		if err != nil {
			return err
		}
		if !ok {
			if err := sleepOrDone(ctx, emptyQueueBackoff); err != nil {
				return err
			}
			continue
		}

		// Ack before admission: a crash between here and Submit loses
		// the message (spec §4.4's "Received -> Acked -> Submitted"
		// state machine) in exchange for never blocking the channel.
		if err := delivery.Ack(false); err != nil {
			s.logger.Errorf("ack failed: %v", err)
		}

		var wire TaskSubmitWire
		if err := json.Unmarshal(delivery.Body, &wire); err != nil {
			s.logger.Errorf("decode task message: %v", err)
			continue
		}

		submit := message.TaskSubmit{
			TaskID:          EncodeSidecarTaskID(delivery.CorrelationId, delivery.ReplyTo),
			ModelClass:      wire.ModelClass,
			Method:          wire.Method,
			MethodKwargs:    wire.MethodKwargs,
			ResolverContext: wire.ResolverContext,
			Source:          s.sourceTag(),
		}
		if _, err := g.Submit(submit); err != nil {
			s.logger.Errorf("submit rejected for task_id=%s: %v", submit.TaskID, err)
		}
	}
}

func (s *Sidecar) waitForCapacity(ctx context.Context, g *governor.Governor) error {
	for !g.HasCapacity() {
		if err := sleepOrDone(ctx, capacityPollInterval); err != nil {
			return err
		}
	}
	return nil
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// publishResult is the completion callback registered under this
// sidecar's source tag (spec §4.4, "Completion callback"): split the
// composite id, publish the final result on the reply queue named by
// replyTo with correlation_id = correlationID.
func (s *Sidecar) publishResult(result message.TaskResult, original message.TaskSubmit) {
	correlationID, replyTo, err := DecodeSidecarTaskID(result.TaskID)
	if err != nil {
		s.logger.Errorf("cannot publish result, bad composite task id: %v", err)
		return
	}

	wire := CompletionWire{}
	if result.Result.Failed() {
		wire.Kind = CompletionFailed
	} else {
		wire.Kind = CompletionComplete
	}
	wire.TaskSpec.Method = original.Method
	wire.ResultSpec.Result = ResultSpecWire{
		ReturnValue: result.Result.ReturnValue,
		Exception:   result.Result.Exception,
		Traceback:   result.Result.Traceback,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		s.logger.Errorf("marshal completion for task_id=%s: %v", result.TaskID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Publish(ctx, replyTo, body, correlationID, ""); err != nil {
		s.logger.Errorf("publish completion for task_id=%s: %v", result.TaskID, err)
	}
}
