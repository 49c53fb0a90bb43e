package inventory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/t2bot/s3-folder-export/common"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/test/test_internals"
)

func TestScanFollowsContinuationTokens(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.PageSize = 3
	expected := int64(0)
	for i := 0; i < 10; i++ {
		content := make([]byte, 100+i)
		store.Put(fmt.Sprintf("folder/file-%02d", i), content)
		expected += int64(len(content))
	}
	store.Put("other/ignored", make([]byte, 5))

	inv, err := NewScanner(store).Scan(rcontext.Initial(), "folder/")
	require.NoError(t, err)

	assert.Equal(t, 10, inv.Count)
	assert.Len(t, inv.Objects, inv.Count)
	assert.Equal(t, expected, inv.TotalBytes)
	assert.Equal(t, 4, store.ListCalls())

	sum := int64(0)
	for _, o := range inv.Objects {
		sum += o.Size
	}
	assert.Equal(t, inv.TotalBytes, sum)
}

func TestAggregateSize(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.Put("a/one", make([]byte, 1024))
	store.Put("a/two", make([]byte, 2048))

	human, count, total, err := NewScanner(store).AggregateSize(rcontext.Initial(), "a/")
	require.NoError(t, err)
	assert.Equal(t, "3.00 KB", human)
	assert.Equal(t, 2, count)
	assert.Equal(t, int64(3072), total)
}

func TestScanEmptyPrefix(t *testing.T) {
	store := test_internals.NewMemoryStore()

	inv, err := NewScanner(store).Scan(rcontext.Initial(), "nothing/")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Count)
	assert.Equal(t, "0.00 B", inv.HumanSize())
}

func TestScanListingFailure(t *testing.T) {
	store := test_internals.NewMemoryStore()
	store.PageSize = 1
	store.Put("a/one", []byte("1"))
	store.Put("a/two", []byte("2"))
	cause := errors.New("connection reset")
	store.ListHook = func(token string) error {
		if token != "" {
			return cause
		}
		return nil
	}

	_, err := NewScanner(store).Scan(rcontext.Initial(), "a/")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.ErrorIs(t, err, cause)
}
