// analytics.go - Capture-rate estimation and quality reporting

package pipeline

import (
	"math"
	"sort"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// Coefficient-of-variation thresholds for classifying how evenly items are
// spaced down the page
const (
	cvUniformMax   = 0.3
	cvIrregularMin = 0.8
)

// PositionMetrics summarizes how well the calibrated positions cover the page
type PositionMetrics struct {
	AnchorCount     int     `json:"anchor_count" bson:"anchor_count"`
	AverageSpacing  float64 `json:"average_spacing" bson:"average_spacing"`
	Distribution    string  `json:"distribution" bson:"distribution"` // uniform, clustered, irregular
	PositionedItems int     `json:"positioned_items" bson:"positioned_items"`
}

// CaptureMetrics estimates how much of the true receipt made it into the list
type CaptureMetrics struct {
	InitialItemCount      int     `json:"initial_item_count" bson:"initial_item_count"`
	VerificationRecovered int     `json:"verification_recovered" bson:"verification_recovered"`
	FinalItemCount        int     `json:"final_item_count" bson:"final_item_count"`
	EstimatedCaptureRate  float64 `json:"estimated_capture_rate" bson:"estimated_capture_rate"` // percent
	GapCount              int     `json:"gap_count" bson:"gap_count"`
	HighConfidenceGaps    int     `json:"high_confidence_gaps" bson:"high_confidence_gaps"`
}

// QualityIndicators carries recognizer warnings and a coarse length class
type QualityIndicators struct {
	WarningCount   int      `json:"warning_count" bson:"warning_count"`
	Warnings       []string `json:"warnings" bson:"warnings"`
	LengthCategory string   `json:"length_category" bson:"length_category"` // short, medium, long, very_long
}

// PerformanceMetrics carries token/cost/latency counters for the scan
type PerformanceMetrics struct {
	InputTokens int     `json:"input_tokens" bson:"input_tokens"`
	OutputToken int     `json:"output_tokens" bson:"output_tokens"`
	TotalTokens int     `json:"total_tokens" bson:"total_tokens"`
	CostUSD     float64 `json:"cost_usd" bson:"cost_usd"`
	CostTHB     float64 `json:"cost_thb" bson:"cost_thb"`
	DurationMs  int64   `json:"duration_ms" bson:"duration_ms"`
	ChunksUsed  int     `json:"chunks_used" bson:"chunks_used"`
	Incomplete  bool    `json:"incomplete" bson:"incomplete"`
}

// ReceiptAnalytics is the per-scan quality report. Computed fresh on every
// run, owned by the caller for logging and tuning - never load-bearing for
// correctness.
type ReceiptAnalytics struct {
	Position    PositionMetrics    `json:"position" bson:"position"`
	Capture     CaptureMetrics     `json:"capture" bson:"capture"`
	Quality     QualityIndicators  `json:"quality" bson:"quality"`
	Performance PerformanceMetrics `json:"performance" bson:"performance"`
	GeneratedAt time.Time          `json:"generated_at" bson:"generated_at"`
}

// AnalyticsMetadata is everything the scorer needs beyond the final item list
type AnalyticsMetadata struct {
	InitialItemCount      int
	VerificationRecovered int
	Gaps                  []Gap
	Warnings              []string
	Tokens                common.TokenUsage
	DurationMs            int64
	ChunksUsed            int
	Incomplete            bool
}

// GenerateReceiptAnalytics synthesizes the quality report for a completed
// extraction
func GenerateReceiptAnalytics(items []*ReceiptItem, meta AnalyticsMetadata) *ReceiptAnalytics {
	positions := collectPositions(items)
	avgSpacing, distribution := classifyPositionSpread(positions)
	highGaps := CountHighConfidenceGaps(meta.Gaps)

	warnings := meta.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	return &ReceiptAnalytics{
		Position: PositionMetrics{
			AnchorCount:     len(CollectAnchors(items)),
			AverageSpacing:  avgSpacing,
			Distribution:    distribution,
			PositionedItems: len(positions),
		},
		Capture: CaptureMetrics{
			InitialItemCount:      meta.InitialItemCount,
			VerificationRecovered: meta.VerificationRecovered,
			FinalItemCount:        len(items),
			EstimatedCaptureRate:  estimateCaptureRate(len(items), meta.VerificationRecovered, len(meta.Gaps), highGaps),
			GapCount:              len(meta.Gaps),
			HighConfidenceGaps:    highGaps,
		},
		Quality: QualityIndicators{
			WarningCount:   len(warnings),
			Warnings:       warnings,
			LengthCategory: lengthCategory(len(items)),
		},
		Performance: PerformanceMetrics{
			InputTokens: meta.Tokens.InputTokens,
			OutputToken: meta.Tokens.OutputTokens,
			TotalTokens: meta.Tokens.TotalTokens,
			CostUSD:     meta.Tokens.CostUSD,
			CostTHB:     meta.Tokens.CostTHB,
			DurationMs:  meta.DurationMs,
			ChunksUsed:  meta.ChunksUsed,
			Incomplete:  meta.Incomplete,
		},
		GeneratedAt: time.Now(),
	}
}

// estimateCaptureRate returns the estimated percentage of true receipt items
// present in the final list.
//
// If verification recovered items, roughly half of the remaining
// lower-confidence gaps are assumed to be undetected misses too. If nothing
// was recovered but high-confidence gaps remain unresolved, each counts as a
// likely miss. A clean run scores 100; minor non-actionable gaps cap it at 98.
// Heuristic, not ground truth - only its monotonicity matters.
func estimateCaptureRate(finalCount, verificationRecovered, gapCount, highConfidenceGaps int) float64 {
	if finalCount == 0 {
		return 0
	}

	var rate float64
	switch {
	case verificationRecovered > 0:
		assumedMisses := 0.5 * float64(gapCount-highConfidenceGaps)
		if assumedMisses < 0 {
			assumedMisses = 0
		}
		rate = float64(finalCount) / (float64(finalCount+verificationRecovered) + assumedMisses) * 100

	case highConfidenceGaps > 0:
		rate = float64(finalCount) / float64(finalCount+highConfidenceGaps) * 100

	case gapCount > 0:
		rate = 98

	default:
		rate = 100
	}

	return math.Round(rate*10) / 10
}

// classifyPositionSpread computes the mean inter-item spacing and classifies
// the distribution by the coefficient of variation of that spacing. With no
// positions at all there is nothing to reason about (irregular); with 1-2
// positioned items there is too little data to call it anything but uniform.
func classifyPositionSpread(positions []float64) (avgSpacing float64, distribution string) {
	if len(positions) == 0 {
		return 0, "irregular"
	}
	if len(positions) < 3 {
		return 0, "uniform"
	}

	sorted := make([]float64, len(positions))
	copy(sorted, positions)
	sort.Float64s(sorted)

	spacings := make([]float64, 0, len(sorted)-1)
	var sum float64
	for i := 1; i < len(sorted); i++ {
		spacing := sorted[i] - sorted[i-1]
		spacings = append(spacings, spacing)
		sum += spacing
	}

	mean := sum / float64(len(spacings))
	if mean == 0 {
		// Every item at the same position - degenerate
		return 0, "irregular"
	}

	var variance float64
	for _, spacing := range spacings {
		diff := spacing - mean
		variance += diff * diff
	}
	variance /= float64(len(spacings))

	cv := math.Sqrt(variance) / mean

	switch {
	case cv < cvUniformMax:
		distribution = "uniform"
	case cv > cvIrregularMin:
		distribution = "irregular"
	default:
		distribution = "clustered"
	}

	return mean, distribution
}

func collectPositions(items []*ReceiptItem) []float64 {
	positions := make([]float64, 0, len(items))
	for _, item := range items {
		if item.PositionPercent != nil {
			positions = append(positions, *item.PositionPercent)
		}
	}
	return positions
}

func lengthCategory(itemCount int) string {
	switch {
	case itemCount < 10:
		return "short"
	case itemCount < 25:
		return "medium"
	case itemCount < 40:
		return "long"
	default:
		return "very_long"
	}
}
