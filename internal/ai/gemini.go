// gemini.go - Gemini vision provider: schema, API call, and response parsing

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/bosocmputer/receipt_scan_gemini/internal/ratelimit"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements VisionProvider against the Gemini API
type GeminiProvider struct {
	apiKey    string
	modelName string
	retryCfg  RetryConfig

	// costCalculator maps token counts to cost for this provider's phase
	// (extraction vs verification pricing differ)
	costCalculator func(inputTokens, outputTokens int) common.TokenUsage
}

// NewGeminiProvider creates a Gemini provider with extraction-phase pricing
func NewGeminiProvider(apiKey, modelName string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:         apiKey,
		modelName:      modelName,
		retryCfg:       DefaultRetryConfig,
		costCalculator: common.CalculateExtractionTokenCost,
	}
}

// NewGeminiVerifyProvider creates a Gemini provider with verification-phase pricing
func NewGeminiVerifyProvider(apiKey, modelName string) *GeminiProvider {
	provider := NewGeminiProvider(apiKey, modelName)
	provider.costCalculator = common.CalculateVerifyTokenCost
	return provider
}

// GetProviderName returns the name of the provider
func (p *GeminiProvider) GetProviderName() string {
	return "gemini"
}

// ExtractItems sends the image slice and prompt to Gemini and parses the raw
// item list out of the JSON response
func (p *GeminiProvider) ExtractItems(ctx context.Context, req *ExtractionRequest, reqCtx *common.RequestContext) (*ExtractionResponse, error) {
	// Respect the global Gemini rate limit before spending a request
	if err := ratelimit.WaitForRateLimit(ctx); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.modelName)

	// Explicit MaxOutputTokens prevents silent truncation on long receipts
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(int32(8192)),
	}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = createReceiptItemsSchema()

	reqCtx.LogInfo("📖 Gemini model: %s | image: %d bytes (%s)", p.modelName, len(req.Image), req.MimeType)

	parts := []genai.Part{
		genai.Text(req.Prompt),
		genai.Blob{MIMEType: req.MimeType, Data: req.Image},
	}

	resp, err := callGeminiWithRetry(ctx, model, reqCtx, p.retryCfg, parts...)
	if err != nil {
		return nil, err
	}

	rawJSON, err := extractResponseText(resp)
	if err != nil {
		return nil, err
	}

	result := &ExtractionResponse{}
	if err := json.Unmarshal([]byte(rawJSON), result); err != nil {
		// Gemini occasionally emits literal control characters inside JSON
		// strings; repair and retry the parse once
		repaired := fixJSONEscaping(rawJSON)
		if err2 := json.Unmarshal([]byte(repaired), result); err2 != nil {
			return nil, fmt.Errorf("failed to parse Gemini response as JSON: %w", err)
		}
		reqCtx.LogWarning("Gemini response needed JSON escape repair")
	}

	if resp.UsageMetadata != nil {
		tokens := p.costCalculator(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
		result.Tokens = &tokens
	}

	reqCtx.LogInfo("Gemini returned %d raw item(s), %d quality warning(s)", len(result.Items), len(result.QualityWarnings))
	return result, nil
}

// createReceiptItemsSchema defines the structured-output schema for one
// extraction call. name and price are the only required item fields; the
// rest are the recognizer's best-effort estimates.
func createReceiptItemsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":             {Type: genai.TypeString},
						"price":            {Type: genai.TypeNumber},
						"quantity":         {Type: genai.TypeString},
						"line_number":      {Type: genai.TypeInteger},
						"position_percent": {Type: genai.TypeNumber},
						"source_text":      {Type: genai.TypeString},
						"is_first_item":    {Type: genai.TypeBoolean},
						"is_last_item":     {Type: genai.TypeBoolean},
						"is_anchor_mid":    {Type: genai.TypeBoolean},
					},
					Required: []string{"name", "price"},
				},
			},
			"quality_warnings": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"items"},
	}
}

// extractResponseText concatenates the text parts of the first candidate
func extractResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in Gemini response")
	}
	return sb.String(), nil
}

// fixJSONEscaping escapes literal newlines, tabs, and control characters that
// Gemini sometimes emits inside JSON string values, which break Go's parser
func fixJSONEscaping(jsonStr string) string {
	var sb strings.Builder
	inString := false
	escaped := false

	for _, ch := range jsonStr {
		if escaped {
			sb.WriteRune(ch)
			escaped = false
			continue
		}

		switch {
		case inString && ch == '\\':
			sb.WriteRune(ch)
			escaped = true
		case ch == '"':
			inString = !inString
			sb.WriteRune(ch)
		case inString && ch == '\n':
			sb.WriteString("\\n")
		case inString && ch == '\r':
			sb.WriteString("\\r")
		case inString && ch == '\t':
			sb.WriteString("\\t")
		case inString && ch < 0x20:
			sb.WriteString(fmt.Sprintf("\\u%04x", ch))
		default:
			sb.WriteRune(ch)
		}
	}

	return sb.String()
}

func ptr[T any](v T) *T {
	return &v
}
