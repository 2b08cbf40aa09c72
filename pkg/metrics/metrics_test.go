package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDoesNotPanicOnMultipleInstances(t *testing.T) {
	require.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandlerExposesObservedCounters(t *testing.T) {
	m := New()
	m.ObserveAdmitted()
	m.ObserveCompletion(false)
	m.ObserveCompletion(true)
	m.SetCapacity(3)
	m.SetRunningTasks(2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "fossa_governor_tasks_admitted_total 1"))
	assert.True(t, strings.Contains(body, "fossa_governor_tasks_succeeded_total 1"))
	assert.True(t, strings.Contains(body, "fossa_governor_tasks_failed_total 1"))
	assert.True(t, strings.Contains(body, "fossa_governor_capacity 3"))
	assert.True(t, strings.Contains(body, "fossa_governor_running_tasks 2"))
}

func TestObserveSubtaskRetryIncrementsCounter(t *testing.T) {
	m := New()
	m.ObserveSubtaskRetry()
	m.ObserveSubtaskRetry()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "fossa_pool_subtask_retries_total 2"))
}
