package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/papergrade/core/internal/pkg/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingKeyReturnsEmpty(t *testing.T) {
	c, _ := redistest.New(t)
	v, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestSetExpires(t *testing.T) {
	c, mr := redistest.New(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	v, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}
