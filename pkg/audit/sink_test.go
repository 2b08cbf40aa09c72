package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	recorded  []Event
	recordErr error
	closeErr  error
	closed    bool
}

func (f *fakeSink) Record(ctx context.Context, event Event) error {
	f.recorded = append(f.recorded, event)
	return f.recordErr
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.closeErr
}

func TestMultiRecordFansOutToEverySink(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{}
	m := NewMulti(a, b)

	event := Event{ProcID: "1:aaaaa", ModelClass: "NothingEtl", Kind: KindAdmitted, OccurredAt: time.Now()}
	require.NoError(t, m.Record(context.Background(), event))

	assert.Len(t, a.recorded, 1)
	assert.Len(t, b.recorded, 1)
	assert.Equal(t, event.ProcID, a.recorded[0].ProcID)
}

func TestMultiRecordContinuesPastOneSinkFailing(t *testing.T) {
	failing := &fakeSink{recordErr: errors.New("disk full")}
	ok := &fakeSink{}
	m := NewMulti(failing, ok)

	err := m.Record(context.Background(), Event{ProcID: "1:bbbbb", Kind: KindComplete})
	assert.Error(t, err)
	assert.Len(t, ok.recorded, 1, "a failing sink must not block the rest")
}

func TestMultiCloseClosesEverySinkEvenWhenOneErrors(t *testing.T) {
	failing := &fakeSink{closeErr: errors.New("already closed")}
	ok := &fakeSink{}
	m := NewMulti(failing, ok)

	err := m.Close()
	assert.Error(t, err)
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}

func TestMultiWithNoSinksIsANoop(t *testing.T) {
	m := NewMulti()
	assert.NoError(t, m.Record(context.Background(), Event{Kind: KindFailed}))
	assert.NoError(t, m.Close())
}
