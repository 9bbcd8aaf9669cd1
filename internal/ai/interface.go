// interface.go - Vision provider interface for supporting multiple AI providers

package ai

import (
	"context"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
)

// ExtractionRequest is one call to the vision extraction service: an image
// (or vertical slice of one) plus the prompt biasing the extraction
type ExtractionRequest struct {
	Image    []byte
	MimeType string
	Prompt   string
}

// ExtractionResponse is the recognizer's raw answer. Items are kept as
// loosely-typed maps on purpose - the model's JSON is not trusted, and the
// pipeline's boundary parser does the validation and coercion.
type ExtractionResponse struct {
	Items           []map[string]interface{} `json:"items"`
	QualityWarnings []string                 `json:"quality_warnings,omitempty"`
	Tokens          *common.TokenUsage       `json:"-"`
}

// VisionProvider defines the interface that all vision extraction providers
// must implement. This keeps the recognizer swappable (Gemini today, others
// later) behind the same contract.
type VisionProvider interface {
	// ExtractItems sends the image and prompt to the model and returns raw
	// item guesses. Implementations must honor ctx cancellation.
	ExtractItems(ctx context.Context, req *ExtractionRequest, reqCtx *common.RequestContext) (*ExtractionResponse, error)

	// GetProviderName returns the name of the provider (e.g. "gemini")
	GetProviderName() string
}

// VisionProviderConfig contains configuration for vision providers
type VisionProviderConfig struct {
	// Provider name: currently only "gemini"
	Provider string

	// Gemini configuration
	GeminiAPIKey string
	GeminiModel  string
}
