// extractor.go - Receipt scan orchestration: chunk fan-out, merge,
// calibration, gap verification, and analytics

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/bosocmputer/receipt_scan_gemini/internal/ai"
	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/bosocmputer/receipt_scan_gemini/internal/processor"
)

// Options controls a single scan request
type Options struct {
	EnableChunking     bool // force chunking regardless of the estimated count
	EnableOCR          bool // force image preprocessing before extraction
	EstimatedItemCount int  // caller's guess at receipt length, drives chunk planning
}

// Result is what the pipeline hands back to the caller
type Result struct {
	Items           []*ReceiptItem    `json:"items"`
	Analytics       *ReceiptAnalytics `json:"analytics"`
	QualityWarnings []string          `json:"quality_warnings"`
}

// Extractor runs the full receipt reconstruction pipeline around a vision
// provider
type Extractor struct {
	provider       ai.VisionProvider
	verifyProvider ai.VisionProvider
	chunkCfg       ChunkConfig
}

// NewExtractor wires the pipeline. verifyProvider handles the second-pass gap
// verification (possibly a different model/pricing); pass nil to reuse the
// main provider.
func NewExtractor(provider, verifyProvider ai.VisionProvider, chunkCfg ChunkConfig) *Extractor {
	if verifyProvider == nil {
		verifyProvider = provider
	}
	return &Extractor{
		provider:       provider,
		verifyProvider: verifyProvider,
		chunkCfg:       chunkCfg,
	}
}

// chunkOutcome is one chunk call's result, collected at the fan-in barrier
type chunkOutcome struct {
	items    []*ReceiptItem
	warnings []string
	tokens   *common.TokenUsage
	err      error
}

// Extract runs the whole pipeline for one receipt image.
//
// Chunk extraction calls fan out concurrently (they have no data dependency);
// the merge is the synchronization barrier. A chunk that fails is retried
// once and then degraded to an empty result - the scan only fails when every
// chunk does. If the caller's deadline expires mid-scan, the best-effort
// merged result is returned with the analytics flagged incomplete.
func (e *Extractor) Extract(ctx context.Context, imageData []byte, mimeType string, examples []common.LearningExample, opts Options, reqCtx *common.RequestContext) (*Result, error) {
	start := time.Now()
	warnings := []string{}

	// Step 1: Preprocess the image for recognition accuracy
	if configs.ENABLE_IMAGE_PREPROCESSING || opts.EnableOCR {
		reqCtx.StartStep("preprocess_image")
		processed, processedMime, err := processor.PreprocessImage(imageData, mimeType)
		if err != nil {
			// Preprocessing is best-effort; fall back to the original photo
			reqCtx.LogWarning("Image preprocessing failed, using original: %v", err)
			reqCtx.EndStep("skipped", nil, nil)
		} else {
			imageData, mimeType = processed, processedMime
			reqCtx.EndStep("success", nil, nil)
		}
	}

	// Step 2: Plan the vertical chunks
	reqCtx.StartStep("plan_chunks")
	chunks := e.planChunks(opts)
	reqCtx.LogInfo("Planned %d chunk(s) for estimated %d items", len(chunks), opts.EstimatedItemCount)
	reqCtx.EndStep("success", nil, nil)

	// Step 3: Fan out one extraction call per chunk, join at the barrier.
	// Each call produces an independent item list, so no locking is needed -
	// outcomes land in their own slot.
	reqCtx.StartStep("chunk_extraction")
	outcomes := make([]chunkOutcome, len(chunks))
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			outcomes[idx] = e.extractChunk(ctx, imageData, mimeType, chunks[idx], len(chunks) > 1, examples, reqCtx)
		}(i)
	}
	wg.Wait()

	chunkResults := make([]ChunkResult, 0, len(chunks))
	failedChunks := 0
	for i, outcome := range outcomes {
		reqCtx.AddTokens(outcome.tokens)
		warnings = append(warnings, outcome.warnings...)
		if outcome.err != nil {
			failedChunks++
			warnings = append(warnings, fmt.Sprintf("chunk %d (%s) extraction failed, treated as empty", i+1, chunks[i].Section))
		}
		chunkResults = append(chunkResults, ChunkResult{Chunk: chunks[i], Items: outcome.items})
	}

	if failedChunks == len(chunks) {
		reqCtx.EndStep("failed", nil, fmt.Errorf("all %d chunk extractions failed", len(chunks)))
		return nil, fmt.Errorf("extraction failed: all %d chunk extractions failed", len(chunks))
	}
	reqCtx.EndStep("success", nil, nil)

	// Step 4: Merge and deduplicate the overlap regions. A single-chunk scan
	// skips the merge so the recognizer's own line numbering - gaps included -
	// survives into gap detection.
	var items []*ReceiptItem
	if len(chunks) > 1 {
		reqCtx.StartStep("merge_chunks")
		items = MergeChunkResults(chunkResults, opts.EstimatedItemCount, reqCtx)
		reqCtx.EndStep("success", nil, nil)
	} else {
		items = chunkResults[0].Items
		sortByLineNumber(items)
	}
	initialCount := len(items)

	// Step 5: Calibrate positions from the recognizer's anchors
	reqCtx.StartStep("calibrate")
	items = CalibratePositions(items, reqCtx)
	reqCtx.EndStep("success", nil, nil)

	// Step 6: Detect line-number gaps
	reqCtx.StartStep("detect_gaps")
	gaps := FindLineNumberGaps(items, reqCtx)
	highGaps := CountHighConfidenceGaps(gaps)
	reqCtx.LogInfo("Found %d gap(s), %d high-confidence", len(gaps), highGaps)
	reqCtx.EndStep("success", nil, nil)

	// Step 7: High-confidence gaps trigger one sequential verification pass.
	// It depends on the gap detector's output, so it cannot overlap the
	// chunk calls - and it is skipped entirely once the deadline is gone.
	recovered := 0
	if highGaps > 0 && ctx.Err() == nil {
		reqCtx.StartStep("verification_pass")
		missed, verifyWarnings := e.runVerification(ctx, imageData, mimeType, items, gaps, reqCtx)
		warnings = append(warnings, verifyWarnings...)
		if len(missed) > 0 {
			items = InsertMissedItems(items, missed, reqCtx)
			recovered = len(missed)
			items = CalibratePositions(items, reqCtx)
			gaps = FindLineNumberGaps(items, reqCtx)
		}
		reqCtx.EndStep("success", nil, nil)
	}

	// Final normalization: whatever path the items took, line numbers leave
	// the pipeline as a dense 1..N sequence
	renumberSequentially(items)

	incomplete := ctx.Err() != nil
	if incomplete {
		warnings = append(warnings, "scan deadline exceeded; results may be incomplete")
		reqCtx.LogWarning("Deadline exceeded, returning best-effort partial receipt")
	}

	// Step 8: Score the run
	reqCtx.StartStep("analytics")
	analytics := GenerateReceiptAnalytics(items, AnalyticsMetadata{
		InitialItemCount:      initialCount,
		VerificationRecovered: recovered,
		Gaps:                  gaps,
		Warnings:              warnings,
		Tokens:                tokensOf(reqCtx),
		DurationMs:            time.Since(start).Milliseconds(),
		ChunksUsed:            len(chunks),
		Incomplete:            incomplete,
	})
	reqCtx.EndStep("success", nil, nil)

	return &Result{
		Items:           items,
		Analytics:       analytics,
		QualityWarnings: warnings,
	}, nil
}

// planChunks decides the chunk layout for this scan. Forced chunking treats
// the receipt as at least floor-sized so a real split happens.
func (e *Extractor) planChunks(opts Options) []ImageChunk {
	estimated := opts.EstimatedItemCount
	if opts.EnableChunking && estimated < e.chunkCfg.MinItemsForChunking {
		estimated = e.chunkCfg.MinItemsForChunking
	}
	return GenerateChunks(estimated, e.chunkCfg)
}

// extractChunk runs one chunk's extraction call, retrying once before
// degrading to an empty result
func (e *Extractor) extractChunk(ctx context.Context, imageData []byte, mimeType string, chunk ImageChunk, sliced bool, examples []common.LearningExample, reqCtx *common.RequestContext) chunkOutcome {
	chunkImage := imageData
	chunkMime := mimeType

	if sliced {
		cropped, croppedMime, err := processor.CropVerticalSlice(imageData, mimeType, chunk.YStartPercent, chunk.YEndPercent)
		if err != nil {
			// A failed crop still leaves the full image usable; the prompt's
			// section hint keeps the model focused
			reqCtx.LogWarning("Chunk %s crop failed (%v), sending full image", chunk.Section, err)
		} else {
			chunkImage, chunkMime = cropped, croppedMime
		}
	}

	req := &ai.ExtractionRequest{
		Image:    chunkImage,
		MimeType: chunkMime,
		Prompt:   ai.GetReceiptExtractionPrompt(chunk.Section, chunk.ExpectedItemRange, examples),
	}

	resp, err := e.provider.ExtractItems(ctx, req, reqCtx)
	if err != nil && ctx.Err() == nil {
		reqCtx.LogWarning("Chunk %s failed (%v), retrying once", chunk.Section, err)
		resp, err = e.provider.ExtractItems(ctx, req, reqCtx)
	}
	if err != nil {
		reqCtx.LogError("Chunk %s extraction failed: %v", chunk.Section, err)
		return chunkOutcome{err: err}
	}

	return chunkOutcome{
		items:    ParseRawItems(resp.Items, reqCtx),
		warnings: resp.QualityWarnings,
		tokens:   resp.Tokens,
	}
}

// runVerification issues the second-pass call for high-confidence gaps and
// returns the recovered items. Items the model re-lists that are already in
// the receipt are filtered out by dedup key.
func (e *Extractor) runVerification(ctx context.Context, imageData []byte, mimeType string, items []*ReceiptItem, gaps []Gap, reqCtx *common.RequestContext) ([]*ReceiptItem, []string) {
	warnings := []string{}

	hints := make([]string, 0, len(gaps))
	for _, gap := range gaps {
		if gap.Confidence != configs.GAP_CONFIDENCE_HIGH {
			continue
		}
		hints = append(hints, fmt.Sprintf("line %d: between %q ($%.2f) and %q ($%.2f), %s",
			gap.MissingLine, gap.BeforeItem, gap.BeforePrice, gap.AfterItem, gap.AfterPrice, gap.PositionHint))
	}

	vctx, cancel := context.WithTimeout(ctx, verifyTimeout())
	defer cancel()

	req := &ai.ExtractionRequest{
		Image:    imageData,
		MimeType: mimeType,
		Prompt:   ai.GetVerificationPrompt(hints, len(items)),
	}

	resp, err := e.verifyProvider.ExtractItems(vctx, req, reqCtx)
	if err != nil {
		reqCtx.LogWarning("Verification pass failed: %v", err)
		return nil, append(warnings, "verification pass failed; suspected gaps left unresolved")
	}
	reqCtx.AddTokens(resp.Tokens)
	warnings = append(warnings, resp.QualityWarnings...)

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.DedupKey()] = true
	}

	missed := []*ReceiptItem{}
	for _, item := range ParseRawItems(resp.Items, reqCtx) {
		if seen[item.DedupKey()] {
			reqCtx.LogInfo("Verification re-listed existing item %q, ignoring", item.Name)
			continue
		}
		missed = append(missed, item)
	}

	reqCtx.LogInfo("Verification recovered %d item(s)", len(missed))
	return missed, warnings
}

func verifyTimeout() time.Duration {
	if configs.VERIFY_TIMEOUT > 0 {
		return time.Duration(configs.VERIFY_TIMEOUT) * time.Second
	}
	return 45 * time.Second
}

func tokensOf(reqCtx *common.RequestContext) common.TokenUsage {
	if reqCtx == nil {
		return common.TokenUsage{}
	}
	return reqCtx.TotalTokens
}
