// factory.go - Vision provider factory

package ai

import (
	"fmt"
	"strings"
)

// NewVisionProvider creates a vision provider based on configuration.
// Gemini is the only shipped provider; the factory exists so a second
// recognizer can be added without touching the pipeline.
func NewVisionProvider(config VisionProviderConfig) (VisionProvider, error) {
	switch strings.ToLower(config.Provider) {
	case "", "gemini":
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiProvider(config.GeminiAPIKey, config.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unknown vision provider: %s", config.Provider)
	}
}
