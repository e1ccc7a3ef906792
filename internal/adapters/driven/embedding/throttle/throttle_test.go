package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/greds/internal/adapters/driven/embedding/hashing"
)

func TestEmbed_Delegates(t *testing.T) {
	inner := hashing.NewEmbeddingService(8)
	s := New(inner, 1000)

	v, err := s.Embed(context.Background(), "tortoises")
	require.NoError(t, err)
	want, err := inner.Embed(context.Background(), "tortoises")
	require.NoError(t, err)
	assert.Equal(t, want, v)

	assert.Equal(t, 8, s.Dimensions())
	assert.Equal(t, hashing.DefaultModel, s.ModelName())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestEmbed_WaitsForToken(t *testing.T) {
	s := New(hashing.NewEmbeddingService(8), 20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.EmbedBatch(ctx, []string{"a", "b"})
		require.NoError(t, err)
	}
	// Burst of one: the second and third calls each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestEmbed_CancelledWhileWaiting(t *testing.T) {
	s := New(hashing.NewEmbeddingService(8), 0.1)
	_, err := s.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = s.Embed(ctx, "second")
	assert.Error(t, err)
}
