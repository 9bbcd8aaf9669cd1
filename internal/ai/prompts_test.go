package ai

import (
	"testing"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestGetReceiptExtractionPrompt(t *testing.T) {
	t.Run("Should include the chunk section bias", func(t *testing.T) {
		prompt := GetReceiptExtractionPrompt("middle", "approximately items 11-22", nil)
		assert.Contains(t, prompt, "middle section")
		assert.Contains(t, prompt, "approximately items 11-22")
	})

	t.Run("Should include learning examples when present", func(t *testing.T) {
		examples := []common.LearningExample{
			{SourceText: "MLK 2% GL 4.29", CorrectName: "Milk 2% Gallon", CorrectPrice: 4.29},
		}
		prompt := GetReceiptExtractionPrompt("top", "all items", examples)
		assert.Contains(t, prompt, "MLK 2% GL 4.29")
		assert.Contains(t, prompt, "Milk 2% Gallon")
	})

	t.Run("Should always ask for anchors and quality warnings", func(t *testing.T) {
		prompt := GetReceiptExtractionPrompt("", "", nil)
		assert.Contains(t, prompt, "is_first_item")
		assert.Contains(t, prompt, "is_last_item")
		assert.Contains(t, prompt, "is_anchor_mid")
		assert.Contains(t, prompt, "quality_warnings")
	})
}

func TestGetVerificationPrompt(t *testing.T) {
	hints := []string{`line 3: between "B" ($4.00) and "D" ($4.25), between 30% and 70% of receipt height`}
	prompt := GetVerificationPrompt(hints, 12)

	assert.Contains(t, prompt, "12 items")
	assert.Contains(t, prompt, hints[0])
	assert.Contains(t, prompt, "do not re-list")
}
