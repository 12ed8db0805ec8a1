package presence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledCacheIsInert(t *testing.T) {
	for _, cache := range []*Cache{nil, NewCache(nil)} {
		require.NoError(t, cache.Set(context.Background(), 1, true, time.Now()))

		_, _, err := cache.Get(context.Background(), 1)
		require.ErrorIs(t, err, ErrNotCached)
	}
}
