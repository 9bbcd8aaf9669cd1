// merge.go - Chunk result merging, deduplication, and gap-fill reconciliation

package pipeline

import (
	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// ChunkResult pairs a planned chunk with the items the recognizer returned
// for it. A failed chunk carries an empty item list.
type ChunkResult struct {
	Chunk ImageChunk
	Items []*ReceiptItem
}

// MergeChunkResults combines per-chunk item lists into one receipt.
//
// Overlapping chunk regions intentionally produce duplicates; the first
// occurrence of each dedup key wins and later ones are dropped. Chunk-local
// line numbers start near 1 in every chunk, so after dedup the list is
// re-sorted by that (hint-only) ordering and renumbered 1..N - the renumbering
// is the authoritative sequence.
func MergeChunkResults(results []ChunkResult, estimatedTotal int, reqCtx *common.RequestContext) []*ReceiptItem {
	merged := make([]*ReceiptItem, 0, estimatedTotal)
	seen := make(map[string]bool)
	dropped := 0

	for _, result := range results {
		for _, item := range result.Items {
			key := item.DedupKey()
			if seen[key] {
				dropped++
				reqCtx.LogInfo("Dropping duplicate from chunk %s (%s): %q", result.Chunk.ID, result.Chunk.Section, item.Name)
				continue
			}
			seen[key] = true
			merged = append(merged, item)
		}
	}

	if dropped > 0 {
		reqCtx.LogInfo("Merged %d chunks: %d unique items, %d overlap duplicates removed", len(results), len(merged), dropped)
	}

	renumberSequentially(merged)
	return merged
}

// InsertMissedItems reconciles items recovered by the verification pass into
// the receipt. Same normalize-by-sort-and-renumber operation as the merger;
// the verification items carry the line numbers the recognizer estimated for
// the gaps, so sorting slots them into place.
func InsertMissedItems(originalItems, missedItems []*ReceiptItem, reqCtx *common.RequestContext) []*ReceiptItem {
	if len(missedItems) == 0 {
		return originalItems
	}

	reqCtx.LogInfo("Reconciling %d recovered item(s) into %d existing items", len(missedItems), len(originalItems))

	combined := make([]*ReceiptItem, 0, len(originalItems)+len(missedItems))
	combined = append(combined, originalItems...)
	combined = append(combined, missedItems...)

	renumberSequentially(combined)
	return combined
}

// renumberSequentially sorts by line number and rewrites line numbers as a
// dense 1..N sequence. Must only ever run on the fully merged list - per-chunk
// renumbering would race with the merge ordering.
func renumberSequentially(items []*ReceiptItem) {
	sortByLineNumber(items)
	for i, item := range items {
		line := i + 1
		item.LineNumber = &line
	}
}
