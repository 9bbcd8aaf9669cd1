// gaps.go - Line-number gap detection with price-delta confidence scoring

package pipeline

import (
	"fmt"
	"math"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// Price-delta thresholds for gap confidence. A large jump between the
// bracketing items usually means a section break (subtotal, department
// header) rather than a missed grocery item; receipt-typical small deltas
// are consistent with a genuinely missing line.
const (
	GapPriceDeltaMedium = 2.00 // below this -> high confidence
	GapPriceDeltaLow    = 5.00 // above this -> low confidence
)

// Gap marks a break in the expected sequential line numbering. Transient
// analysis artifact - it drives the verification decision and is never
// persisted.
type Gap struct {
	MissingLine  int     `json:"missing_line"`
	BeforeItem   string  `json:"before_item"`
	AfterItem    string  `json:"after_item"`
	BeforePrice  float64 `json:"before_price"`
	AfterPrice   float64 `json:"after_price"`
	PositionHint string  `json:"position_hint"`
	Confidence   string  `json:"confidence"` // high, medium, low
}

// FindLineNumberGaps scans the ordered line-number sequence for missing
// integers. Needs at least 2 numbered items; each adjacent pair with a jump
// larger than 1 yields one gap at previous+1.
func FindLineNumberGaps(items []*ReceiptItem, reqCtx *common.RequestContext) []Gap {
	numbered := make([]*ReceiptItem, 0, len(items))
	for _, item := range items {
		if item.LineNumber != nil {
			numbered = append(numbered, item)
		}
	}

	if len(numbered) < 2 {
		return []Gap{}
	}

	sortByLineNumber(numbered)

	gaps := []Gap{}
	for i := 1; i < len(numbered); i++ {
		prev := numbered[i-1]
		cur := numbered[i]

		if *cur.LineNumber <= *prev.LineNumber+1 {
			continue
		}

		gap := Gap{
			MissingLine:  *prev.LineNumber + 1,
			BeforeItem:   prev.Name,
			AfterItem:    cur.Name,
			BeforePrice:  prev.Price,
			AfterPrice:   cur.Price,
			PositionHint: buildPositionHint(prev, cur),
			Confidence:   gapConfidence(prev.Price, cur.Price),
		}
		gaps = append(gaps, gap)

		reqCtx.LogInfo("Gap at line %d between %q and %q (Δ$%.2f, confidence=%s)",
			gap.MissingLine, gap.BeforeItem, gap.AfterItem,
			math.Abs(gap.AfterPrice-gap.BeforePrice), gap.Confidence)
	}

	return gaps
}

// CountHighConfidenceGaps returns the number of gaps worth a verification
// call. Medium/low gaps are surfaced but never force a second network trip.
func CountHighConfidenceGaps(gaps []Gap) int {
	count := 0
	for _, gap := range gaps {
		if gap.Confidence == configs.GAP_CONFIDENCE_HIGH {
			count++
		}
	}
	return count
}

// gapConfidence assigns confidence purely from the absolute price difference
// between the bracketing items
func gapConfidence(beforePrice, afterPrice float64) string {
	delta := math.Abs(afterPrice - beforePrice)

	switch {
	case delta > GapPriceDeltaLow:
		return configs.GAP_CONFIDENCE_LOW
	case delta >= GapPriceDeltaMedium:
		return configs.GAP_CONFIDENCE_MEDIUM
	default:
		return configs.GAP_CONFIDENCE_HIGH
	}
}

// buildPositionHint describes where on the image the missing line should sit,
// for use in the verification prompt
func buildPositionHint(before, after *ReceiptItem) string {
	return fmt.Sprintf("between %s and %s of receipt height",
		formatPosition(before.PositionPercent), formatPosition(after.PositionPercent))
}

func formatPosition(pos *float64) string {
	if pos == nil {
		return "?%"
	}
	return fmt.Sprintf("%.0f%%", *pos)
}
