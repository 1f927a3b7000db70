// Package capability defines the OCRReader and TextCompleter interfaces the
// core pipeline depends on, plus their shared error taxonomy, retry policy,
// and rate limiting. Concrete providers (Gemini, Mistral) live alongside.
package capability

import (
	"context"

	"github.com/bosocmputer/statementpipeline/internal/common"
)

// OCRReader extracts plain text from a single rendered page image.
type OCRReader interface {
	// Extract returns the page's text. On exhausted retries it returns an
	// empty string and a non-nil *Error rather than propagating a bare
	// error, so batch callers can substitute an empty page and continue.
	Extract(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error)

	// Ready reports whether the provider is reachable and configured.
	Ready(ctx context.Context) bool

	Name() string
}

// ExtractBatch runs r.Extract over every image in order, substituting an
// empty string for any page that fails so later stages see a stable page
// count (spec contract for C3).
func ExtractBatch(ctx context.Context, r OCRReader, imagePaths []string, reqCtx *common.RequestContext) ([]string, common.TokenUsage) {
	texts := make([]string, len(imagePaths))
	var total common.TokenUsage
	for i, path := range imagePaths {
		text, tokens, err := r.Extract(ctx, path, reqCtx)
		if err != nil {
			reqCtx.LogWarning("ocr failed for page %d, substituting empty text: %v", i+1, err)
			texts[i] = ""
			continue
		}
		texts[i] = text
		if tokens != nil {
			total.InputTokens += tokens.InputTokens
			total.OutputTokens += tokens.OutputTokens
			total.TotalTokens += tokens.TotalTokens
			total.CostUSD += tokens.CostUSD
		}
	}
	return texts, total
}

// CompletionOptions configures one TextCompleter call.
type CompletionOptions struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	ImageRef    string // optional data-URL or file path for vision mode
}

// CompletionResult is the uniform, never-throwing result of a completion
// call: ok=false with a classified Error carries model-side or transport
// failures without an exception.
type CompletionResult struct {
	OK      bool
	Content string
	Tokens  common.TokenUsage
	Err     *Error
}

// TextCompleter runs one prompt-based LLM call, optionally with an attached
// image, returning a uniform envelope rather than throwing.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions, reqCtx *common.RequestContext) CompletionResult
	Name() string
}
