package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecideDefaultRetriesAllowsOneRetry(t *testing.T) {
	assert.Equal(t, retryRepublish, decide(1, 1))
	assert.Equal(t, retryRepublish, decide(2, 1))
	assert.Equal(t, retryExhausted, decide(3, 1))
}

func TestDecideZeroRetriesExhaustsImmediately(t *testing.T) {
	assert.Equal(t, retryExhausted, decide(2, 0))
	assert.Equal(t, retryRepublish, decide(1, 0))
}

func TestInFlightEntryDeadlineGrowsWithAttempts(t *testing.T) {
	start := time.Now()
	e := &inFlightEntry{startTime: start, attempts: 1}
	d1 := e.deadline(time.Second)

	e.attempts = 2
	d2 := e.deadline(time.Second)

	assert.True(t, d2.After(d1), "deadline should push further out as attempts grow")
}
