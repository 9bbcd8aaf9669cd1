// calibrate.go - Anchor-based position calibration

package pipeline

import (
	"sort"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// Anchor is a control point the recognizer is confident about in both
// sequence and vertical placement. Derived from flagged items, never persisted.
type Anchor struct {
	LineNumber      int     `json:"line_number"`
	PositionPercent float64 `json:"position_percent"`
}

// CollectAnchors gathers anchors from items carrying an anchor flag and a
// recognizer-estimated position, sorted ascending by line number.
func CollectAnchors(items []*ReceiptItem) []Anchor {
	anchors := make([]Anchor, 0, 3)
	for _, item := range items {
		if item.HasAnchorFlag() && item.LineNumber != nil && item.PositionPercent != nil {
			anchors = append(anchors, Anchor{
				LineNumber:      *item.LineNumber,
				PositionPercent: *item.PositionPercent,
			})
		}
	}

	sort.Slice(anchors, func(i, j int) bool {
		return anchors[i].LineNumber < anchors[j].LineNumber
	})

	return anchors
}

// CalibratePositions assigns every item a position_percent in [0,100].
//
// Items are sorted ascending by line number. With 2+ anchors, each item's
// position is linearly interpolated between the two anchors bracketing its
// line number (clamped to the nearest anchor outside the anchor range). With
// fewer than 2 anchors there is nothing to interpolate against, so items are
// placed evenly down the page: item i of n gets i/(n-1)*100, or 50 for a
// single item.
//
// Items with no line number cannot be calibrated; they keep whatever position
// they came with and are logged as a correctness concern. The returned slice
// is the same items, sorted.
func CalibratePositions(items []*ReceiptItem, reqCtx *common.RequestContext) []*ReceiptItem {
	if len(items) == 0 {
		return items
	}

	sortByLineNumber(items)

	numbered := make([]*ReceiptItem, 0, len(items))
	for _, item := range items {
		if item.LineNumber == nil {
			reqCtx.LogWarning("Item %q has no line number, skipping calibration", item.Name)
			continue
		}
		numbered = append(numbered, item)
	}

	anchors := CollectAnchors(numbered)

	if len(anchors) < 2 {
		// Underdetermined - fall back to pure linear placement
		reqCtx.LogInfo("Only %d anchor(s), using linear position fallback for %d items", len(anchors), len(numbered))
		applyLinearFallback(numbered)
		return items
	}

	for _, item := range numbered {
		pos := interpolatePosition(*item.LineNumber, anchors)
		pos = clampPercent(pos)
		item.PositionPercent = &pos
	}

	return items
}

// applyLinearFallback spreads items evenly over the full image height
func applyLinearFallback(items []*ReceiptItem) {
	n := len(items)
	for i, item := range items {
		var pos float64
		if n == 1 {
			pos = 50
		} else {
			pos = float64(i) / float64(n-1) * 100
		}
		item.PositionPercent = &pos
	}
}

// interpolatePosition finds the two anchors bracketing the line number and
// interpolates linearly between them. Outside the anchor range the position
// clamps to the nearest anchor. Anchors must be sorted by line number.
func interpolatePosition(lineNumber int, anchors []Anchor) float64 {
	first := anchors[0]
	last := anchors[len(anchors)-1]

	if lineNumber <= first.LineNumber {
		return first.PositionPercent
	}
	if lineNumber >= last.LineNumber {
		return last.PositionPercent
	}

	for i := 0; i < len(anchors)-1; i++ {
		lower := anchors[i]
		upper := anchors[i+1]

		if lineNumber >= lower.LineNumber && lineNumber <= upper.LineNumber {
			// Guard: duplicate anchor line numbers would divide by zero
			if upper.LineNumber == lower.LineNumber {
				return lower.PositionPercent
			}
			ratio := float64(lineNumber-lower.LineNumber) / float64(upper.LineNumber-lower.LineNumber)
			return lower.PositionPercent + ratio*(upper.PositionPercent-lower.PositionPercent)
		}
	}

	return last.PositionPercent
}

// sortByLineNumber sorts items ascending by line number, keeping items
// without one at the end in their original relative order.
func sortByLineNumber(items []*ReceiptItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].LineNumber, items[j].LineNumber
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a < *b
	})
}
