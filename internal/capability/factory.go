package capability

import (
	"fmt"

	"github.com/bosocmputer/statementpipeline/configs"
)

// NewOCRReader builds the OCRReader named by cfg.Provider.
func NewOCRReader(cfg configs.OCRConfig) (OCRReader, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiOCRReader(GeminiConfig{APIKey: cfg.APIKey, Model: "gemini-2.5-flash"}), nil
	case "mistral":
		return NewMistralOCRReader(MistralConfig{APIKey: cfg.APIKey, Model: "mistral-ocr-latest"}), nil
	default:
		return nil, fmt.Errorf("capability: unknown OCR provider %q", cfg.Provider)
	}
}

// NewTextCompleter builds the TextCompleter named by cfg.Provider.
func NewTextCompleter(cfg configs.LLMConfig) (TextCompleter, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiCompleter(GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model}), nil
	case "mistral":
		return NewMistralCompleter(MistralConfig{APIKey: cfg.APIKey, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("capability: unknown LLM provider %q", cfg.Provider)
	}
}
