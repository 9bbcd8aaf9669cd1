// chunks.go - Vertical image chunk planning for long receipts

package pipeline

import (
	"fmt"
	"math"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/google/uuid"
)

// ImageChunk describes a vertical slice of the receipt image that is
// submitted to the recognizer independently. Consumed by the extraction
// call and discarded after merge.
type ImageChunk struct {
	ID                string  `json:"id"`
	Section           string  `json:"section"` // top, middle, bottom
	YStartPercent     float64 `json:"y_start_percent"`
	YEndPercent       float64 `json:"y_end_percent"`
	ExpectedItemRange string  `json:"expected_item_range"`
}

// ChunkConfig controls the size-based chunking policy: receipts estimated at
// MinItemsForChunking items or more are split into chunks of roughly
// TargetItemsPerChunk items each, with adjacent chunks overlapping by
// OverlapPercent of a chunk's span so boundary items land whole in at least
// one chunk.
type ChunkConfig struct {
	MinItemsForChunking int
	TargetItemsPerChunk int
	OverlapPercent      float64
}

// DefaultChunkConfig reads the chunking policy from configs, with safe
// fallbacks when LoadConfig hasn't run (e.g. in tests)
func DefaultChunkConfig() ChunkConfig {
	cfg := ChunkConfig{
		MinItemsForChunking: configs.CHUNKING_MIN_ITEMS,
		TargetItemsPerChunk: configs.CHUNK_TARGET_ITEMS,
		OverlapPercent:      configs.CHUNK_OVERLAP_PERCENT,
	}
	if cfg.MinItemsForChunking <= 0 {
		cfg.MinItemsForChunking = 10
	}
	if cfg.TargetItemsPerChunk <= 0 {
		cfg.TargetItemsPerChunk = 10
	}
	if cfg.OverlapPercent <= 0 {
		cfg.OverlapPercent = 20.0
	}
	return cfg
}

// ShouldUseChunking reports whether the estimated item count warrants
// splitting the image into chunks
func ShouldUseChunking(estimatedItemCount int, cfg ChunkConfig) bool {
	return estimatedItemCount >= cfg.MinItemsForChunking
}

// GenerateChunks plans the vertical slices for a receipt. Below the chunking
// floor it returns a single full-height chunk. Otherwise the chunk count
// scales with the estimated item count (~TargetItemsPerChunk items each),
// each chunk extends past its base span by the overlap fraction, the first
// chunk starts at 0 and the last ends at 100.
func GenerateChunks(estimatedItemCount int, cfg ChunkConfig) []ImageChunk {
	if !ShouldUseChunking(estimatedItemCount, cfg) {
		return []ImageChunk{fullHeightChunk(estimatedItemCount)}
	}

	count := int(math.Ceil(float64(estimatedItemCount) / float64(cfg.TargetItemsPerChunk)))
	if count < 2 {
		count = 2
	}

	baseSpan := 100.0 / float64(count)
	overlap := baseSpan * cfg.OverlapPercent / 100.0

	chunks := make([]ImageChunk, 0, count)
	for i := 0; i < count; i++ {
		yStart := float64(i) * baseSpan
		yEnd := yStart + baseSpan + overlap
		if i == count-1 {
			yEnd = 100
		}
		if yEnd > 100 {
			yEnd = 100
		}

		chunks = append(chunks, ImageChunk{
			ID:                uuid.New().String(),
			Section:           sectionName(i, count),
			YStartPercent:     yStart,
			YEndPercent:       yEnd,
			ExpectedItemRange: expectedItemRange(yStart, yEnd, estimatedItemCount),
		})
	}

	return chunks
}

func fullHeightChunk(estimatedItemCount int) ImageChunk {
	rangeText := "all items"
	if estimatedItemCount > 0 {
		rangeText = fmt.Sprintf("approximately items 1-%d", estimatedItemCount)
	}
	return ImageChunk{
		ID:                uuid.New().String(),
		Section:           "top",
		YStartPercent:     0,
		YEndPercent:       100,
		ExpectedItemRange: rangeText,
	}
}

func sectionName(index, count int) string {
	switch {
	case index == 0:
		return "top"
	case index == count-1:
		return "bottom"
	default:
		return "middle"
	}
}

// expectedItemRange maps the chunk's y-range onto the estimated item
// sequence. Purely a prompt bias - the merger never trusts it.
func expectedItemRange(yStart, yEnd float64, estimatedItemCount int) string {
	first := int(yStart/100.0*float64(estimatedItemCount)) + 1
	last := int(math.Ceil(yEnd / 100.0 * float64(estimatedItemCount)))
	if last > estimatedItemCount {
		last = estimatedItemCount
	}
	if first > last {
		first = last
	}
	return fmt.Sprintf("approximately items %d-%d", first, last)
}
