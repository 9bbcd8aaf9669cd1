package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWithItems(section string, items ...*ReceiptItem) ChunkResult {
	return ChunkResult{
		Chunk: ImageChunk{ID: section, Section: section},
		Items: items,
	}
}

// assertDenseNumbering checks that line numbers are exactly 1..N in order
func assertDenseNumbering(t *testing.T, items []*ReceiptItem) {
	t.Helper()
	for i, item := range items {
		require.NotNil(t, item.LineNumber, "item %d has no line number", i)
		assert.Equal(t, i+1, *item.LineNumber)
	}
}

func TestMergeChunkResults(t *testing.T) {
	t.Run("Should drop overlap duplicates, first occurrence wins", func(t *testing.T) {
		shared := testItem("OVERLAP ITEM", 3.49, 9)
		shared.SourceText = "OVERLAP ITEM 3.49"
		dupe := testItem("OVERLAP ITEM", 3.49, 1)
		dupe.SourceText = "overlap item 3.49"
		dupe.Quantity = "from-second-chunk"

		results := []ChunkResult{
			chunkWithItems("top", testItem("a", 1.0, 1), shared),
			chunkWithItems("bottom", dupe, testItem("b", 2.0, 2)),
		}

		merged := MergeChunkResults(results, 4, nil)
		require.Len(t, merged, 3)

		for _, item := range merged {
			assert.NotEqual(t, "from-second-chunk", item.Quantity)
		}
	})

	t.Run("Should renumber the merged list densely", func(t *testing.T) {
		results := []ChunkResult{
			chunkWithItems("top", testItem("a", 1.0, 2), testItem("b", 1.0, 9)),
			chunkWithItems("bottom", testItem("c", 2.0, 1)),
		}
		merged := MergeChunkResults(results, 3, nil)
		require.Len(t, merged, 3)
		assertDenseNumbering(t, merged)
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		items := []*ReceiptItem{
			testItem("a", 1.0, 1),
			testItem("b", 2.0, 2),
			testItem("c", 3.0, 3),
		}
		once := MergeChunkResults([]ChunkResult{chunkWithItems("top", items...)}, 3, nil)
		twice := MergeChunkResults([]ChunkResult{chunkWithItems("top", once...)}, 3, nil)

		require.Len(t, twice, len(once))
		for i := range once {
			assert.Equal(t, once[i].Name, twice[i].Name)
			assert.Equal(t, *once[i].LineNumber, *twice[i].LineNumber)
		}
	})

	t.Run("Should dedup by name and price when source text is absent", func(t *testing.T) {
		results := []ChunkResult{
			chunkWithItems("top", testItem("Milk", 4.29, 5)),
			chunkWithItems("bottom", testItem("milk", 4.29, 1), testItem("milk", 3.99, 2)),
		}
		merged := MergeChunkResults(results, 3, nil)
		assert.Len(t, merged, 2) // same name at a different price is a distinct item
	})

	t.Run("Should survive a long receipt split across three chunks", func(t *testing.T) {
		// 35 items across 3 chunks with boundary items repeated in two chunks
		var top, middle, bottom []*ReceiptItem
		makeItem := func(n int) *ReceiptItem {
			item := testItem(fmt.Sprintf("ITEM %02d", n), float64(n)+0.99, n)
			item.SourceText = fmt.Sprintf("ITEM %02d %.2f", n, float64(n)+0.99)
			return item
		}
		for n := 1; n <= 13; n++ {
			top = append(top, makeItem(n))
		}
		for n := 12; n <= 25; n++ { // 12-13 overlap top
			middle = append(middle, makeItem(n))
		}
		for n := 24; n <= 35; n++ { // 24-25 overlap middle
			bottom = append(bottom, makeItem(n))
		}

		merged := MergeChunkResults([]ChunkResult{
			chunkWithItems("top", top...),
			chunkWithItems("middle", middle...),
			chunkWithItems("bottom", bottom...),
		}, 35, nil)

		require.Len(t, merged, 35)
		assertDenseNumbering(t, merged)
	})

	t.Run("Should handle empty chunk results", func(t *testing.T) {
		merged := MergeChunkResults([]ChunkResult{
			chunkWithItems("top"),
			chunkWithItems("bottom", testItem("only", 1.0, 1)),
		}, 1, nil)
		require.Len(t, merged, 1)
		assert.Equal(t, "only", merged[0].Name)
	})
}

func TestInsertMissedItems(t *testing.T) {
	t.Run("Should be a no-op with nothing recovered", func(t *testing.T) {
		original := []*ReceiptItem{testItem("a", 1.0, 1)}
		assert.Equal(t, original, InsertMissedItems(original, nil, nil))
	})

	t.Run("Should slot a recovered item by its estimated line number", func(t *testing.T) {
		// Verification returns line numbers in the original gapped numbering,
		// so insertion happens before the final renumber
		original := []*ReceiptItem{
			testItem("a", 1.00, 1),
			testItem("b", 4.00, 2),
			testItem("d", 4.25, 4),
		}
		missed := []*ReceiptItem{testItem("c", 4.10, 3)}

		combined := InsertMissedItems(original, missed, nil)
		require.Len(t, combined, 4)
		assertDenseNumbering(t, combined)
		assert.Equal(t, "c", combined[2].Name)
	})

	t.Run("Should push recovered items without line numbers to the end", func(t *testing.T) {
		original := []*ReceiptItem{testItem("a", 1.0, 1), testItem("b", 2.0, 2)}
		missed := []*ReceiptItem{{Name: "ghost", Price: 3.0}}

		combined := InsertMissedItems(original, missed, nil)
		require.Len(t, combined, 3)
		assertDenseNumbering(t, combined)
		assert.Equal(t, "ghost", combined[2].Name)
	})
}
