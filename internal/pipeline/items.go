// items.go - Receipt item model and defensive parsing of raw recognizer output

package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// ReceiptItem represents a single line of a receipt.
// LineNumber and PositionPercent are the recognizer's estimates; both are
// rewritten by the pipeline (renumbering and calibration). After the pipeline
// completes, line numbers are a dense 1..N sequence and every position is in
// [0,100].
type ReceiptItem struct {
	Name            string   `json:"name" bson:"name"`
	Price           float64  `json:"price" bson:"price"`
	Quantity        string   `json:"quantity,omitempty" bson:"quantity,omitempty"`
	LineNumber      *int     `json:"line_number" bson:"line_number"`
	PositionPercent *float64 `json:"position_percent" bson:"position_percent"`
	SourceText      string   `json:"source_text,omitempty" bson:"source_text,omitempty"`
	IsFirstItem     bool     `json:"is_first_item" bson:"is_first_item"`
	IsLastItem      bool     `json:"is_last_item" bson:"is_last_item"`
	IsAnchorMid     bool     `json:"is_anchor_mid" bson:"is_anchor_mid"`
	OCRLineID       *int     `json:"ocr_line_id,omitempty" bson:"ocr_line_id,omitempty"`
}

// DedupKey returns the deduplication key for merging chunk results.
// SourceText (case-insensitive) is the primary key; items without it fall
// back to a name+price composite.
func (item *ReceiptItem) DedupKey() string {
	if strings.TrimSpace(item.SourceText) != "" {
		return strings.ToLower(strings.TrimSpace(item.SourceText))
	}
	return fmt.Sprintf("%s|%.2f", strings.ToLower(strings.TrimSpace(item.Name)), item.Price)
}

// HasAnchorFlag reports whether the recognizer marked this item as a
// high-confidence control point.
func (item *ReceiptItem) HasAnchorFlag() bool {
	return item.IsFirstItem || item.IsLastItem || item.IsAnchorMid
}

// ParseRawItems converts the recognizer's loosely-typed JSON items into
// ReceiptItems. The vision model's output is never trusted: every field is
// coerced defensively, and items missing a usable name or price are dropped
// with a warning. Absent line numbers or positions stay nil - those items
// simply don't participate in gap detection or anchor collection.
func ParseRawItems(rawItems []map[string]interface{}, reqCtx *common.RequestContext) []*ReceiptItem {
	items := make([]*ReceiptItem, 0, len(rawItems))

	for i, raw := range rawItems {
		name := strings.TrimSpace(coerceString(raw["name"]))
		price, priceOK := coerceFloat(raw["price"])

		if name == "" {
			reqCtx.LogWarning("Dropping raw item %d: missing name", i)
			continue
		}
		if !priceOK || price < 0 {
			reqCtx.LogWarning("Dropping raw item %d (%q): missing or invalid price", i, name)
			continue
		}

		item := &ReceiptItem{
			Name:        name,
			Price:       roundMoney(price),
			Quantity:    strings.TrimSpace(coerceString(raw["quantity"])),
			SourceText:  strings.TrimSpace(coerceString(raw["source_text"])),
			IsFirstItem: coerceBool(raw["is_first_item"]),
			IsLastItem:  coerceBool(raw["is_last_item"]),
			IsAnchorMid: coerceBool(raw["is_anchor_mid"]),
		}

		if line, ok := coerceInt(raw["line_number"]); ok && line > 0 {
			item.LineNumber = &line
		}
		if pos, ok := coerceFloat(raw["position_percent"]); ok {
			pos = clampPercent(pos)
			item.PositionPercent = &pos
		}
		if ocrLine, ok := coerceInt(raw["ocr_line_id"]); ok {
			item.OCRLineID = &ocrLine
		}

		items = append(items, item)
	}

	return items
}

// roundMoney rounds to two-decimal monetary precision
func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// clampPercent clamps a position to the valid 0-100 range
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// --- Coercion helpers for the untyped recognizer boundary ---

func coerceString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		// The model occasionally returns prices as text ("$4.25", "1,299.00")
		cleaned := strings.TrimSpace(v)
		cleaned = strings.TrimPrefix(cleaned, "$")
		cleaned = strings.ReplaceAll(cleaned, ",", "")
		if cleaned == "" {
			return 0, false
		}
		if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceBool(val interface{}) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && parsed
	case float64:
		return v != 0
	default:
		return false
	}
}
