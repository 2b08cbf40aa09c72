package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarTaskIDRoundTrips(t *testing.T) {
	taskID := EncodeSidecarTaskID("corr-123", "amq.gen-reply-queue")
	corr, replyTo, err := DecodeSidecarTaskID(taskID)
	require.NoError(t, err)
	assert.Equal(t, "corr-123", corr)
	assert.Equal(t, "amq.gen-reply-queue", replyTo)
}

func TestDecodeSidecarTaskIDRejectsMalformed(t *testing.T) {
	_, _, err := DecodeSidecarTaskID("no-separator-here")
	assert.Error(t, err)
}

func TestSubtaskIDRoundTrips(t *testing.T) {
	id := EncodeSubtaskID("abcde", 7)
	assert.Equal(t, "abcde:7", id)

	poolID, ordinal, err := DecodeSubtaskID(id)
	require.NoError(t, err)
	assert.Equal(t, "abcde", poolID)
	assert.Equal(t, 7, ordinal)
}

func TestDecodeSubtaskIDRejectsNonNumericOrdinal(t *testing.T) {
	_, _, err := DecodeSubtaskID("abcde:not-a-number")
	assert.Error(t, err)
}
