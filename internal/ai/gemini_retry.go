// gemini_retry.go - Retry logic and error handling for Gemini API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for Gemini API calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// VisionError represents a categorized vision API error
type VisionError struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *VisionError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *VisionError) Unwrap() error {
	return e.OriginalError
}

// categorizeVisionError analyzes an error and determines the retry strategy
func categorizeVisionError(err error) *VisionError {
	if err == nil {
		return nil
	}

	visionErr := &VisionError{
		OriginalError: err,
		Category:      "unknown",
		Message:       err.Error(),
		Retryable:     false,
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		visionErr.StatusCode = apiErr.Code

		switch apiErr.Code {
		case 400:
			visionErr.Category = "bad_request"
			visionErr.Message = "Invalid request format or parameters"
		case 401:
			visionErr.Category = "unauthorized"
			visionErr.Message = "Invalid API key or authentication failed"
		case 403:
			visionErr.Category = "forbidden"
			visionErr.Message = "API key lacks required permissions"
		case 404:
			visionErr.Category = "not_found"
			visionErr.Message = "Model not found or invalid endpoint"
		case 413:
			visionErr.Category = "payload_too_large"
			visionErr.Message = "Request size exceeds limit (reduce image size)"
		case 429:
			visionErr.Category = "rate_limit"
			visionErr.Message = "Rate limit exceeded - too many requests"
			visionErr.Retryable = true
		case 500, 502, 503, 504:
			visionErr.Category = "server_error"
			visionErr.Message = fmt.Sprintf("Gemini server error (%d)", apiErr.Code)
			visionErr.Retryable = true
		default:
			visionErr.Category = "unknown_api_error"
			visionErr.Message = fmt.Sprintf("API error: %s", apiErr.Message)
			visionErr.Retryable = apiErr.Code >= 500
		}

		return visionErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		visionErr.Category = "timeout"
		visionErr.Message = "Request timeout - processing took too long"
		visionErr.Retryable = true
		return visionErr
	}

	if errors.Is(err, context.Canceled) {
		visionErr.Category = "canceled"
		visionErr.Message = "Request was canceled"
		return visionErr
	}

	// Fall back to message patterns
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "quota"):
		visionErr.Category = "quota_exceeded"
		visionErr.Message = "API quota exceeded - daily or monthly limit reached"
	case strings.Contains(errMsg, "timeout"), strings.Contains(errMsg, "deadline"):
		visionErr.Category = "timeout"
		visionErr.Message = "Request timeout"
		visionErr.Retryable = true
	case strings.Contains(errMsg, "connection"), strings.Contains(errMsg, "network"):
		visionErr.Category = "network_error"
		visionErr.Message = "Network connection error"
		visionErr.Retryable = true
	}

	return visionErr
}

// callGeminiWithRetry executes a Gemini API call with retry logic
func callGeminiWithRetry(
	ctx context.Context,
	model *genai.GenerativeModel,
	reqCtx *common.RequestContext,
	config RetryConfig,
	parts ...genai.Part,
) (*genai.GenerateContentResponse, error) {

	var lastVisionErr *VisionError

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			reqCtx.LogInfo("Retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		resp, err := model.GenerateContent(ctx, parts...)
		if err == nil {
			if attempt > 1 {
				reqCtx.LogInfo("✅ Retry succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastVisionErr = categorizeVisionError(err)
		reqCtx.LogError("API call failed (attempt %d/%d): %s", attempt, config.MaxAttempts, lastVisionErr.Error())

		if !lastVisionErr.Retryable {
			reqCtx.LogError("Non-retryable error detected, aborting")
			return nil, lastVisionErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)

		// Rate limit gets extra headroom before the next attempt
		if lastVisionErr.Category == "rate_limit" {
			delay = delay * 2
			reqCtx.LogWarning("Rate limit hit, waiting %v before retry", delay)
		} else {
			reqCtx.LogInfo("Waiting %v before retry", delay)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	reqCtx.LogError("❌ All %d attempts failed, last error: %s", config.MaxAttempts, lastVisionErr.Error())
	return nil, fmt.Errorf("gemini API call failed after %d attempts: %w", config.MaxAttempts, lastVisionErr)
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
