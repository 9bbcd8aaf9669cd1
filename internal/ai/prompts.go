// prompts.go - Prompt builders for receipt item extraction and verification

package ai

import (
	"fmt"
	"strings"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// GetReceiptExtractionPrompt builds the prompt for the initial extraction
// pass. section/expectedRange come from the chunk planner and bias the model
// toward the right part of the receipt; learning examples are previously
// corrected extractions for this shop.
func GetReceiptExtractionPrompt(section, expectedRange string, examples []common.LearningExample) string {
	var sb strings.Builder

	sb.WriteString(`You are reading a photographed grocery receipt. Extract every purchased item line you can see, top to bottom.

For each item return:
- "name": the product name, cleaned up (required)
- "price": the line total as a number, no currency symbol (required)
- "quantity": quantity text if printed (e.g. "2", "0.74 lb"), otherwise omit
- "line_number": the 1-based position of the line counting from the first item you can see
- "position_percent": vertical position of the line on this image, 0 (top) to 100 (bottom)
- "source_text": the raw text of the receipt line exactly as printed
- "is_first_item": true only for the very first item line visible
- "is_last_item": true only for the very last item line visible
- "is_anchor_mid": true for one item near the middle whose position you are very confident about

Only set position_percent when you are confident about the placement. Skip subtotals, tax lines, totals, coupons, and store headers - items only.
`)

	if section != "" && expectedRange != "" {
		sb.WriteString(fmt.Sprintf("\nThis image is the %s section of the receipt. Expect %s in this slice. Number lines from 1 within this slice.\n", section, expectedRange))
	}

	if len(examples) > 0 {
		sb.WriteString("\nPreviously corrected extractions from this store - follow the same naming:\n")
		for _, ex := range examples {
			sb.WriteString(fmt.Sprintf("- raw %q -> name %q, price %.2f\n", ex.SourceText, ex.CorrectName, ex.CorrectPrice))
		}
	}

	sb.WriteString(`
Also return "quality_warnings": a list of short notes about anything that hurt readability (blur, glare, folds, cut-off edges). Empty list if none.

Respond with JSON only: {"items": [...], "quality_warnings": [...]}`)

	return sb.String()
}

// GetVerificationPrompt builds the prompt for the second pass that hunts for
// items the first pass skipped. Each hint describes a suspected gap: the
// missing line number, the items bracketing it, and where on the image to
// look.
func GetVerificationPrompt(gapHints []string, currentItemCount int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`A first pass over this grocery receipt found %d items, but the line numbering suggests some lines were skipped. Look ONLY for the missing items described below - do not re-list items already found.

Suspected missing lines:
`, currentItemCount))

	for _, hint := range gapHints {
		sb.WriteString("- " + hint + "\n")
	}

	sb.WriteString(`
For each missing item you can actually see, return the same fields as a normal extraction (name, price, quantity, line_number, position_percent, source_text). Use the suspected line number for line_number. If a suspected gap is not a real item (e.g. a section header or subtotal), simply omit it.

Respond with JSON only: {"items": [...], "quality_warnings": [...]}`)

	return sb.String()
}
