package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
	"github.com/aye-aye-dev/fossa-node/pkg/message"
)

func TestSubprocessRunDecodesChildResult(t *testing.T) {
	// A stub script standing in for a real fossa-child binary, used
	// only to exercise the stdout-decode path.
	s := NewSubprocess("testdata/echo_result.sh", logging.New(logging.DefaultConfig()))
	result := s.Run(context.Background(), "1:aaaaa", message.TaskSubmit{ModelClass: "NothingEtl"})
	require.False(t, result.Failed())
	assert.Equal(t, "done", result.ReturnValue)
}

func TestSubprocessRunSurfacesMissingBinaryAsFailure(t *testing.T) {
	s := NewSubprocess("testdata/does-not-exist", logging.New(logging.DefaultConfig()))
	result := s.Run(context.Background(), "1:bbbbb", message.TaskSubmit{ModelClass: "NothingEtl"})
	assert.True(t, result.Failed())
}
