// Package errs classifies the error taxonomy described in spec.md §7:
// admission errors are synchronous and never retried, task and broker
// failures are asynchronous and carry a retry disposition.
package errs

import (
	"fmt"
	"time"
)

// Kind distinguishes the four error categories the governor must treat differently.
type Kind int

const (
	// Unknown covers anything not otherwise classified.
	Unknown Kind = iota
	// Admission is a synchronous refusal: unknown class, no capacity. Never retried.
	Admission
	// TaskFailure is a user-code exception surfaced as TaskResult.exception. Never retried by the governor.
	TaskFailure
	// SubtaskFailure is a failed sub-task completion inside a Pool. Retried up to the pool's policy.
	SubtaskFailure
	// BrokerFailure is a sidecar transport error. Retried by the sidecar's reconnect loop.
	BrokerFailure
)

func (k Kind) String() string {
	switch k {
	case Admission:
		return "AdmissionError"
	case TaskFailure:
		return "TaskFailure"
	case SubtaskFailure:
		return "SubtaskFailure"
	case BrokerFailure:
		return "BrokerFailure"
	default:
		return "Unknown"
	}
}

// Classified wraps an error with its classification and whether the caller
// should retry the operation that produced it.
type Classified struct {
	Err       error
	Kind      Kind
	Retryable bool
	Component string
	Timestamp time.Time
}

func (c *Classified) Error() string {
	return fmt.Sprintf("[%s:%s] %v", c.Component, c.Kind, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

// IsRetryable reports whether the producing operation should be retried.
func (c *Classified) IsRetryable() bool { return c.Retryable }

// New wraps err with a classification. err == nil returns nil.
func New(err error, component string, kind Kind, retryable bool) *Classified {
	if err == nil {
		return nil
	}
	return &Classified{
		Err:       err,
		Kind:      kind,
		Retryable: retryable,
		Component: component,
		Timestamp: time.Now(),
	}
}

// InvalidTaskSpec is the admission error returned by Submit when
// model_class is not in the whitelist (spec.md §4.1).
type InvalidTaskSpec struct {
	ModelClass string
}

func (e *InvalidTaskSpec) Error() string {
	return fmt.Sprintf("model_class %q is not in the accepted whitelist", e.ModelClass)
}

// NoCapacity is the admission error an HTTP adapter maps to 503.
type NoCapacity struct{}

func (e *NoCapacity) Error() string { return "node has no free capacity" }

// DuplicateClass is returned by RegisterClass for an already-registered name.
type DuplicateClass struct {
	ModelClass string
}

func (e *DuplicateClass) Error() string {
	return fmt.Sprintf("model_class %q is already registered", e.ModelClass)
}

// AlreadyStarted is returned by a second call to Governor.Start.
type AlreadyStarted struct{}

func (e *AlreadyStarted) Error() string { return "governor is already started" }
