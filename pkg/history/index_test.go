package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertThenSearchFindsMatchingException(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(Document{
		ProcID:     "1:aaaaa",
		ModelClass: "PartialFailure",
		Exception:  "ZeroDivisionError: division by zero in partition 0",
		Finished:   time.Now(),
	}))
	require.NoError(t, idx.Upsert(Document{
		ProcID:     "1:bbbbb",
		ModelClass: "NothingEtl",
		Exception:  "",
		Finished:   time.Now(),
	}))

	ids, err := idx.Search("ZeroDivisionError", 10)
	require.NoError(t, err)
	assert.Contains(t, ids, "1:aaaaa")
	assert.NotContains(t, ids, "1:bbbbb")
}

func TestDeleteRemovesDocumentFromSearch(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(Document{ProcID: "1:ccccc", Exception: "boom"}))
	require.NoError(t, idx.Delete("1:ccccc"))

	ids, err := idx.Search("boom", 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, "1:ccccc")
}

func TestSearchDefaultsLimitWhenNonPositive(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Upsert(Document{ProcID: "1:ddddd", Exception: "timeout waiting for broker"}))

	ids, err := idx.Search("timeout", 0)
	require.NoError(t, err)
	assert.Contains(t, ids, "1:ddddd")
}
