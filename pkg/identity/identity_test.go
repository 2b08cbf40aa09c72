package identity

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nodeIDPattern = regexp.MustCompile(`^[0-9]+:[a-z]{5}$`)

func TestNewAssignsStableIDAndDefaultsConcurrency(t *testing.T) {
	node, err := New(0)
	require.NoError(t, err)
	assert.Regexp(t, nodeIDPattern, node.NodeID)
	assert.Equal(t, DefaultMaxConcurrentTasks(), node.MaxConcurrentTasks)
}

func TestNewHonorsExplicitConcurrency(t *testing.T) {
	node, err := New(7)
	require.NoError(t, err)
	assert.Equal(t, 7, node.MaxConcurrentTasks)
}

func TestRandomTagIsFiveLowercaseLetters(t *testing.T) {
	tag, err := RandomTag()
	require.NoError(t, err)
	assert.Regexp(t, `^[a-z]{5}$`, tag)
}

func TestRandomTagVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tag, err := RandomTag()
		require.NoError(t, err)
		seen[tag] = true
	}
	assert.Greater(t, len(seen), 1, "expected at least some variation across 50 draws")
}
