package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aye-aye-dev/fossa-node/pkg/errs"
)

func TestWhitelistRejectsDuplicateRegistration(t *testing.T) {
	w := newWhitelist()
	require.NoError(t, w.register("NothingEtl"))
	err := w.register("NothingEtl")
	require.Error(t, err)
	assert.ErrorAs(t, err, new(*errs.DuplicateClass))
}

func TestWhitelistAcceptsOnlyRegistered(t *testing.T) {
	w := newWhitelist()
	assert.False(t, w.accepts("NothingEtl"))
	require.NoError(t, w.register("NothingEtl"))
	assert.True(t, w.accepts("NothingEtl"))
}
