// Package models provides the three fixture model classes spec §8's
// concrete scenarios name: NothingEtl, PartialFailure, and
// SecondTimeLucky. They exist to exercise the governor, the pool's
// retry rule, and partitioned fan-out end to end; a real deployment
// registers its own classes the same way main does here.
package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/aye-aye-dev/fossa-node/pkg/pool"
	"github.com/aye-aye-dev/fossa-node/pkg/processor"
)

const partitionCount = 4

// NothingEtl is the no-op class used by scenario 1, "happy path".
type NothingEtl struct{}

// NewNothingEtl is a processor.Factory for NothingEtl.
func NewNothingEtl() processor.Model { return &NothingEtl{} }

func (m *NothingEtl) Invoke(ctx context.Context, method string, kwargs, resolverContext map[string]any) (any, error) {
	return map[string]any{"status": "ok"}, nil
}

// PartialFailure is scenario 3's class: four sub-tasks, ordinal 0
// always raises a division-by-zero-shaped error.
type PartialFailure struct{}

// NewPartialFailure is a processor.Factory for PartialFailure.
func NewPartialFailure() processor.Model { return &PartialFailure{} }

func (m *PartialFailure) Invoke(ctx context.Context, method string, kwargs, resolverContext map[string]any) (any, error) {
	if method != "process_partition" {
		return nil, fmt.Errorf("PartialFailure: unknown method %q", method)
	}
	ordinal := ordinalFrom(kwargs)
	if ordinal == 0 {
		return nil, fmt.Errorf("ZeroDivisionError: division by zero in partition 0")
	}
	return map[string]any{"ordinal": ordinal}, nil
}

func (m *PartialFailure) Partition(ctx context.Context, resolverContext map[string]any) ([]pool.Spec, error) {
	return partitionSpecs(resolverContext), nil
}

func (m *PartialFailure) Combine(ctx context.Context, completions []pool.Completion) (any, error) {
	return map[string]any{"partitions": len(completions)}, nil
}

// secondTimeLuckyAttempts tracks per-ordinal attempt counts across the
// fresh Model instances each attempt constructs. A real cluster would
// carry this in kwargs or external state; here it is package-level,
// deliberately test-only, scoped to one process's fixture runs.
var (
	secondTimeLuckyMu       sync.Mutex
	secondTimeLuckyAttempts = map[int]int{}
)

// SecondTimeLucky is scenario 4's class: every sub-task fails its
// first attempt and succeeds on the second, exercising the pool's
// default retries=1 policy.
type SecondTimeLucky struct{}

// NewSecondTimeLucky is a processor.Factory for SecondTimeLucky.
func NewSecondTimeLucky() processor.Model { return &SecondTimeLucky{} }

func (m *SecondTimeLucky) Invoke(ctx context.Context, method string, kwargs, resolverContext map[string]any) (any, error) {
	if method != "process_partition" {
		return nil, fmt.Errorf("SecondTimeLucky: unknown method %q", method)
	}
	ordinal := ordinalFrom(kwargs)

	secondTimeLuckyMu.Lock()
	secondTimeLuckyAttempts[ordinal]++
	attempt := secondTimeLuckyAttempts[ordinal]
	secondTimeLuckyMu.Unlock()

	if attempt == 1 {
		return nil, fmt.Errorf("transient failure on first attempt for partition %d", ordinal)
	}
	return map[string]any{"ordinal": ordinal}, nil
}

func (m *SecondTimeLucky) Partition(ctx context.Context, resolverContext map[string]any) ([]pool.Spec, error) {
	return partitionSpecs(resolverContext), nil
}

func (m *SecondTimeLucky) Combine(ctx context.Context, completions []pool.Completion) (any, error) {
	return map[string]any{"partitions": len(completions)}, nil
}

func partitionSpecs(resolverContext map[string]any) []pool.Spec {
	specs := make([]pool.Spec, partitionCount)
	for i := range specs {
		specs[i] = pool.Spec{
			Method:          "process_partition",
			MethodKwargs:    map[string]any{"ordinal": i},
			ResolverContext: resolverContext,
		}
	}
	return specs
}

// ordinalFrom reads the "ordinal" kwarg, tolerating both the int a
// direct in-process call passes and the float64 encoding/json leaves
// behind after a broker round-trip.
func ordinalFrom(kwargs map[string]any) int {
	switch v := kwargs["ordinal"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return -1
	}
}
