// handlers.go - HTTP handlers for receipt scanning and retrieval

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/bosocmputer/receipt_scan_gemini/internal/ai"
	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/bosocmputer/receipt_scan_gemini/internal/pipeline"
	"github.com/bosocmputer/receipt_scan_gemini/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ScanRequest is the JSON body variant: scan an image already hosted
// somewhere (e.g. blob storage) instead of a multipart upload
type ScanRequest struct {
	ShopID             string `json:"shopid"`
	ImageURL           string `json:"imageurl"`
	EstimatedItemCount int    `json:"estimated_item_count"`
	EnableChunking     bool   `json:"enable_chunking"`
	EnableOCR          bool   `json:"enable_ocr"`
}

// LearningExampleRequest adds a corrected extraction for a shop
type LearningExampleRequest struct {
	ShopID       string  `json:"shopid" binding:"required"`
	SourceText   string  `json:"source_text" binding:"required"`
	CorrectName  string  `json:"correct_name" binding:"required"`
	CorrectPrice float64 `json:"correct_price"`
}

// ScanReceiptHandler handles POST requests to /api/v1/scan-receipt.
// Accepts either a multipart upload (field "image") or a JSON body with an
// image URL, runs the reconstruction pipeline, and persists the result.
func ScanReceiptHandler(c *gin.Context) {
	var imageData []byte
	var mimeType string
	var shopID string
	var opts pipeline.Options

	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req ScanRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
			return
		}
		if req.ImageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imageurl is required"})
			return
		}

		shopID = req.ShopID
		opts = pipeline.Options{
			EnableChunking:     req.EnableChunking,
			EnableOCR:          req.EnableOCR,
			EstimatedItemCount: req.EstimatedItemCount,
		}

		data, mime, err := downloadImage(req.ImageURL)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to download image", "details": err.Error()})
			return
		}
		imageData, mimeType = data, mime
	} else {
		data, mime, err := readUploadedImage(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image upload", "details": err.Error()})
			return
		}
		imageData, mimeType = data, mime

		shopID = c.PostForm("shopid")
		opts = pipeline.Options{
			EnableChunking:     c.PostForm("enable_chunking") == "true",
			EnableOCR:          c.PostForm("enable_ocr") == "true",
			EstimatedItemCount: atoiOrZero(c.PostForm("estimated_item_count")),
		}
	}

	reqCtx := common.NewRequestContext(shopID)

	// Learning examples are a prompt nicety; a cache/DB hiccup must not
	// block the scan
	examples, err := storage.GetOrLoadLearningExamples(shopID)
	if err != nil {
		reqCtx.LogWarning("Could not load learning examples: %v", err)
		examples = nil
	}

	extractor := buildExtractor()

	ctx, cancel := context.WithTimeout(c.Request.Context(), extractionTimeout())
	defer cancel()

	result, err := extractor.Extract(ctx, imageData, mimeType, examples, opts, reqCtx)
	if err != nil {
		reqCtx.LogError("Scan failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "extraction failed",
			"details":    err.Error(),
			"request_id": reqCtx.RequestID,
		})
		return
	}

	receiptID := uuid.New().String()
	receipt := storage.StoredReceipt{
		ReceiptID:       receiptID,
		ShopID:          shopID,
		RequestID:       reqCtx.RequestID,
		Items:           result.Items,
		Analytics:       result.Analytics,
		QualityWarnings: result.QualityWarnings,
		CreatedAt:       time.Now(),
	}

	reqCtx.StartStep("save_receipt")
	if err := storage.SaveReceipt(receipt); err != nil {
		// The reconstructed receipt is still useful to the caller even if
		// persistence hiccuped
		reqCtx.EndStep("failed", nil, err)
		result.QualityWarnings = append(result.QualityWarnings, "receipt could not be saved")
	} else {
		reqCtx.EndStep("success", nil, nil)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"receipt_id":       receiptID,
		"request_id":       reqCtx.RequestID,
		"items":            result.Items,
		"analytics":        result.Analytics,
		"quality_warnings": result.QualityWarnings,
		"summary":          reqCtx.GetSummary(),
	})
}

// GetReceiptHandler handles GET /api/v1/receipts/:id?shopid=...
func GetReceiptHandler(c *gin.Context) {
	shopID := c.Query("shopid")
	receiptID := c.Param("id")

	receipt, err := storage.GetReceipt(shopID, receiptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

// ListReceiptsHandler handles GET /api/v1/receipts?shopid=...&limit=20
func ListReceiptsHandler(c *gin.Context) {
	shopID := c.Query("shopid")
	limit := int64(atoiOrZero(c.Query("limit")))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	receipts, err := storage.ListReceipts(shopID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipts": receipts, "count": len(receipts)})
}

// AddLearningExampleHandler handles POST /api/v1/learning-examples
func AddLearningExampleHandler(c *gin.Context) {
	var req LearningExampleRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	example := common.LearningExample{
		SourceText:   req.SourceText,
		CorrectName:  req.CorrectName,
		CorrectPrice: req.CorrectPrice,
	}

	if err := storage.SaveLearningExample(req.ShopID, example); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// New corrections should reach the next scan immediately
	storage.InvalidateExampleCache(req.ShopID)

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// buildExtractor wires the pipeline from configuration. Providers are cheap
// to construct; the Gemini client itself is created per call.
func buildExtractor() *pipeline.Extractor {
	provider, err := ai.NewVisionProvider(ai.VisionProviderConfig{
		Provider:     "gemini",
		GeminiAPIKey: configs.GEMINI_API_KEY,
		GeminiModel:  configs.MODEL_NAME,
	})
	if err != nil {
		// Config is validated at startup; reaching here means GEMINI_API_KEY
		// vanished mid-flight
		panic(fmt.Sprintf("vision provider misconfigured: %v", err))
	}

	verify := ai.NewGeminiVerifyProvider(configs.GEMINI_API_KEY, configs.VERIFY_MODEL_NAME)
	return pipeline.NewExtractor(provider, verify, pipeline.DefaultChunkConfig())
}

// readUploadedImage saves the multipart upload to UPLOAD_DIR and returns its
// bytes and mime type
func readUploadedImage(c *gin.Context) ([]byte, string, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, "", fmt.Errorf("missing image file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	localPath := filepath.Join(configs.UPLOAD_DIR, uuid.New().String()+ext)
	if err := c.SaveUploadedFile(fileHeader, localPath); err != nil {
		return nil, "", fmt.Errorf("failed to save upload: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}

	return data, mimeTypeFromExt(ext), nil
}

// downloadImage fetches an image from a URL (e.g. blob storage reference)
func downloadImage(imageURL string) ([]byte, string, error) {
	resp, err := http.Get(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeTypeFromExt(strings.ToLower(filepath.Ext(imageURL)))
	}
	return data, mimeType, nil
}

func mimeTypeFromExt(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func extractionTimeout() time.Duration {
	if configs.EXTRACTION_TIMEOUT > 0 {
		return time.Duration(configs.EXTRACTION_TIMEOUT) * time.Second
	}
	return 90 * time.Second
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	if parsed, err := strconv.Atoi(s); err == nil {
		return parsed
	}
	return 0
}
