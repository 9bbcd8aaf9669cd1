package pipeline

import (
	"testing"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLineNumberGaps(t *testing.T) {
	t.Run("Should find no gaps in a consecutive sequence", func(t *testing.T) {
		items := []*ReceiptItem{
			testItem("a", 1.00, 1),
			testItem("b", 2.00, 2),
			testItem("c", 3.00, 3),
			testItem("d", 4.00, 4),
		}
		assert.Empty(t, FindLineNumberGaps(items, nil))
	})

	t.Run("Should flag a single missing line with bracketing context", func(t *testing.T) {
		items := []*ReceiptItem{
			testItemPos("a", 1.50, 1, 5),
			testItemPos("b", 4.00, 2, 30),
			testItemPos("d", 4.25, 4, 70),
			testItemPos("e", 2.00, 5, 95),
		}
		gaps := FindLineNumberGaps(items, nil)
		require.Len(t, gaps, 1)
		assert.Equal(t, 3, gaps[0].MissingLine)
		assert.Equal(t, "b", gaps[0].BeforeItem)
		assert.Equal(t, "d", gaps[0].AfterItem)
		assert.Equal(t, 4.00, gaps[0].BeforePrice)
		assert.Equal(t, 4.25, gaps[0].AfterPrice)
		assert.Equal(t, configs.GAP_CONFIDENCE_HIGH, gaps[0].Confidence)
		assert.Contains(t, gaps[0].PositionHint, "30%")
		assert.Contains(t, gaps[0].PositionHint, "70%")
	})

	t.Run("Should report one gap per jumping pair, at previous plus one", func(t *testing.T) {
		items := []*ReceiptItem{
			testItem("a", 1.00, 1),
			testItem("b", 1.10, 4), // lines 2 and 3 both missing
			testItem("c", 1.20, 7),
		}
		gaps := FindLineNumberGaps(items, nil)
		require.Len(t, gaps, 2)
		assert.Equal(t, 2, gaps[0].MissingLine)
		assert.Equal(t, 5, gaps[1].MissingLine)
	})

	t.Run("Should need at least two numbered items", func(t *testing.T) {
		assert.Empty(t, FindLineNumberGaps(nil, nil))
		assert.Empty(t, FindLineNumberGaps([]*ReceiptItem{testItem("a", 1.0, 5)}, nil))

		unnumbered := []*ReceiptItem{
			{Name: "x", Price: 1.0},
			{Name: "y", Price: 2.0},
		}
		assert.Empty(t, FindLineNumberGaps(unnumbered, nil))
	})

	t.Run("Should use a question mark hint when positions are missing", func(t *testing.T) {
		items := []*ReceiptItem{
			testItem("a", 1.00, 1),
			testItem("b", 1.10, 3),
		}
		gaps := FindLineNumberGaps(items, nil)
		require.Len(t, gaps, 1)
		assert.Contains(t, gaps[0].PositionHint, "?%")
	})
}

func TestGapConfidence(t *testing.T) {
	t.Run("Should score small price deltas high", func(t *testing.T) {
		assert.Equal(t, configs.GAP_CONFIDENCE_HIGH, gapConfidence(4.00, 5.00)) // delta 1.00
		assert.Equal(t, configs.GAP_CONFIDENCE_HIGH, gapConfidence(5.00, 4.00)) // absolute value
		assert.Equal(t, configs.GAP_CONFIDENCE_HIGH, gapConfidence(3.00, 3.00)) // identical prices
	})

	t.Run("Should score mid-range deltas medium", func(t *testing.T) {
		assert.Equal(t, configs.GAP_CONFIDENCE_MEDIUM, gapConfidence(1.00, 4.00)) // delta 3.00
		assert.Equal(t, configs.GAP_CONFIDENCE_MEDIUM, gapConfidence(0.00, 2.00)) // boundary 2.00
		assert.Equal(t, configs.GAP_CONFIDENCE_MEDIUM, gapConfidence(0.00, 5.00)) // boundary 5.00
	})

	t.Run("Should score large deltas low", func(t *testing.T) {
		assert.Equal(t, configs.GAP_CONFIDENCE_LOW, gapConfidence(1.00, 7.00)) // delta 6.00
		assert.Equal(t, configs.GAP_CONFIDENCE_LOW, gapConfidence(0.00, 5.01)) // just past boundary
	})
}

func TestCountHighConfidenceGaps(t *testing.T) {
	gaps := []Gap{
		{Confidence: configs.GAP_CONFIDENCE_HIGH},
		{Confidence: configs.GAP_CONFIDENCE_MEDIUM},
		{Confidence: configs.GAP_CONFIDENCE_HIGH},
		{Confidence: configs.GAP_CONFIDENCE_LOW},
	}
	assert.Equal(t, 2, CountHighConfidenceGaps(gaps))
	assert.Equal(t, 0, CountHighConfidenceGaps(nil))
}
