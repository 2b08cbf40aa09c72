// Package broker implements C4 (the broker sidecar) and the AMQP wire
// protocol its reconnect loop, and the sub-task pool, speak (spec §6).
package broker

import (
	"fmt"
	"strings"
)

const sidecarIDSeparator = "::"

// EncodeSidecarTaskID builds the composite task id a sidecar assigns to
// a submission it injects into the local governor's inbox, so the
// completion handler it registers can recover both halves without the
// governor knowing anything about reply queues (spec §4.4, §6).
func EncodeSidecarTaskID(correlationID, replyTo string) string {
	return correlationID + sidecarIDSeparator + replyTo
}

// DecodeSidecarTaskID splits a composite sidecar task id back into its
// correlation id and reply-to queue name. Round-trips with
// EncodeSidecarTaskID (spec §8, "Composite id round-trip").
func DecodeSidecarTaskID(taskID string) (correlationID, replyTo string, err error) {
	parts := strings.SplitN(taskID, sidecarIDSeparator, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("broker: task id %q is not a composite sidecar id", taskID)
	}
	return parts[0], parts[1], nil
}

// EncodeSubtaskID builds a "<poolId>:<ordinal>" sub-task id (spec §3).
func EncodeSubtaskID(poolID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", poolID, ordinal)
}

// DecodeSubtaskID splits a sub-task id back into pool id and ordinal.
func DecodeSubtaskID(subtaskID string) (poolID string, ordinal int, err error) {
	idx := strings.LastIndex(subtaskID, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("broker: subtask id %q missing ':' separator", subtaskID)
	}
	poolID = subtaskID[:idx]
	if _, err := fmt.Sscanf(subtaskID[idx+1:], "%d", &ordinal); err != nil {
		return "", 0, fmt.Errorf("broker: subtask id %q has a non-numeric ordinal: %w", subtaskID, err)
	}
	return poolID, ordinal, nil
}

// SubtaskPublish is the JSON body published to the shared task queue
// for each sub-task (spec §6, "Broker wire protocol (task queue)").
type SubtaskPublish struct {
	ModelClass               string         `json:"model_class"`
	Method                   string         `json:"method"`
	MethodKwargs             map[string]any `json:"method_kwargs,omitempty"`
	ResolverContext          map[string]any `json:"resolver_context,omitempty"`
	ModelConstructionKwargs  map[string]any `json:"model_construction_kwargs,omitempty"`
	PartitionInitialiseKwargs map[string]any `json:"partition_initialise_kwargs,omitempty"`
}

// CompletionKind discriminates a reply-queue message.
type CompletionKind string

const (
	CompletionComplete CompletionKind = "complete"
	CompletionFailed   CompletionKind = "failed"
)

// TaskSpecWire is the echoed task spec carried in a completion message.
type TaskSpecWire struct {
	Method string `json:"method"`
}

// ResultSpecWire carries either a successful return value or an
// exception/traceback pair.
type ResultSpecWire struct {
	ReturnValue any    `json:"return_value,omitempty"`
	Exception   string `json:"exception,omitempty"`
	Traceback   string `json:"traceback,omitempty"`
}

// CompletionWire is the JSON body delivered on a pool's reply queue
// (spec §6, "Broker wire protocol (reply queue)"); CorrelationID
// travels in the AMQP message property, not the JSON body.
type CompletionWire struct {
	Kind       CompletionKind `json:"kind"`
	TaskSpec   TaskSpecWire   `json:"task_spec"`
	ResultSpec struct {
		Result ResultSpecWire `json:"result"`
	} `json:"result_spec"`
}

// TaskSubmitWire is the JSON body a task producer publishes to the
// shared task queue for the sidecar to pick up. It reuses
// SubtaskPublish's shape — the sidecar protocol and the pool protocol
// publish structurally identical envelopes to the same kind of queue.
type TaskSubmitWire = SubtaskPublish
