package idem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysClaims(t *testing.T) {
	store := Noop{}

	claimed, fresh, err := store.Claim(context.Background(), "alice:tok-1", "m-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "m-1", claimed)

	// A second claim with the same key is still fresh: nothing is stored.
	claimed, fresh, err = store.Claim(context.Background(), "alice:tok-1", "m-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "m-2", claimed)
}
