package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunkConfig() ChunkConfig {
	return ChunkConfig{
		MinItemsForChunking: 10,
		TargetItemsPerChunk: 10,
		OverlapPercent:      20.0,
	}
}

func TestShouldUseChunking(t *testing.T) {
	cfg := testChunkConfig()
	assert.False(t, ShouldUseChunking(0, cfg))
	assert.False(t, ShouldUseChunking(9, cfg))
	assert.True(t, ShouldUseChunking(10, cfg))
	assert.True(t, ShouldUseChunking(35, cfg))
}

func TestGenerateChunks(t *testing.T) {
	cfg := testChunkConfig()

	t.Run("Should return a single full-height chunk below the floor", func(t *testing.T) {
		chunks := GenerateChunks(5, cfg)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0.0, chunks[0].YStartPercent)
		assert.Equal(t, 100.0, chunks[0].YEndPercent)
		assert.Equal(t, "top", chunks[0].Section)
	})

	t.Run("Should scale the chunk count with the estimated item count", func(t *testing.T) {
		assert.Len(t, GenerateChunks(10, cfg), 2) // floor always splits in two
		assert.Len(t, GenerateChunks(20, cfg), 2)
		assert.Len(t, GenerateChunks(35, cfg), 4)
		assert.Len(t, GenerateChunks(50, cfg), 5)
	})

	t.Run("Should cover the full image height", func(t *testing.T) {
		chunks := GenerateChunks(35, cfg)
		require.Len(t, chunks, 4)
		assert.Equal(t, 0.0, chunks[0].YStartPercent)
		assert.Equal(t, 100.0, chunks[len(chunks)-1].YEndPercent)
	})

	t.Run("Should overlap adjacent chunks", func(t *testing.T) {
		chunks := GenerateChunks(35, cfg)
		for i := 1; i < len(chunks); i++ {
			assert.Less(t, chunks[i].YStartPercent, chunks[i-1].YEndPercent,
				"chunk %d should start inside chunk %d", i, i-1)
		}
	})

	t.Run("Should extend each chunk by the overlap fraction of its span", func(t *testing.T) {
		chunks := GenerateChunks(20, cfg) // 2 chunks, base span 50, overlap 10
		require.Len(t, chunks, 2)
		assert.InDelta(t, 60.0, chunks[0].YEndPercent, 0.001)
		assert.InDelta(t, 50.0, chunks[1].YStartPercent, 0.001)
	})

	t.Run("Should label sections top, middle, bottom", func(t *testing.T) {
		chunks := GenerateChunks(35, cfg)
		require.Len(t, chunks, 4)
		assert.Equal(t, "top", chunks[0].Section)
		assert.Equal(t, "middle", chunks[1].Section)
		assert.Equal(t, "middle", chunks[2].Section)
		assert.Equal(t, "bottom", chunks[3].Section)
	})

	t.Run("Should give every chunk a unique ID and an item range hint", func(t *testing.T) {
		chunks := GenerateChunks(35, cfg)
		seen := map[string]bool{}
		for _, chunk := range chunks {
			assert.NotEmpty(t, chunk.ID)
			assert.False(t, seen[chunk.ID])
			seen[chunk.ID] = true
			assert.Contains(t, chunk.ExpectedItemRange, "items")
		}
	})
}

func TestDefaultChunkConfig(t *testing.T) {
	// Without LoadConfig the config globals are zero; the fallbacks must hold
	cfg := DefaultChunkConfig()
	assert.Positive(t, cfg.MinItemsForChunking)
	assert.Positive(t, cfg.TargetItemsPerChunk)
	assert.Positive(t, cfg.OverlapPercent)
}
