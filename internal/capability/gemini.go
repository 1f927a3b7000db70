package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bosocmputer/statementpipeline/internal/common"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	geminiInputPricePerMillion  = 0.10
	geminiOutputPricePerMillion = 0.40
)

var geminiRateLimiter = NewRateLimiter(12, 5*time.Second)

// GeminiConfig configures both the Gemini OCR reader and text completer.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiOCRReader extracts page text via a Gemini vision call.
type GeminiOCRReader struct {
	cfg GeminiConfig
}

// NewGeminiOCRReader constructs an OCRReader backed by Gemini vision.
func NewGeminiOCRReader(cfg GeminiConfig) *GeminiOCRReader {
	return &GeminiOCRReader{cfg: cfg}
}

func (g *GeminiOCRReader) Name() string { return "gemini" }

func (g *GeminiOCRReader) Ready(ctx context.Context) bool {
	return g.cfg.APIKey != ""
}

type ocrSchema struct {
	RawText string `json:"raw_text"`
}

func (g *GeminiOCRReader) Extract(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	if err := geminiRateLimiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return "", nil, fmt.Errorf("gemini ocr: read image: %w", err)
	}

	result, retryErr := WithRetry(ctx, DefaultRetryConfig, func(attempt int) (ocrSchema, error) {
		client, err := genai.NewClient(ctx, option.WithAPIKey(g.cfg.APIKey))
		if err != nil {
			return ocrSchema{}, err
		}
		defer client.Close()

		model := client.GenerativeModel(g.cfg.Model)
		model.ResponseMIMEType = "application/json"
		model.SetTemperature(0.1)

		resp, err := model.GenerateContent(ctx,
			genai.Text("Transcribe all visible text from this document page verbatim. Return JSON {\"raw_text\": \"...\"}."),
			genai.ImageData("png", imageBytes),
		)
		if err != nil {
			return ocrSchema{}, err
		}

		text := extractResponseText(resp)
		repaired := repairJSONEscaping(text)
		var parsed ocrSchema
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return ocrSchema{}, fmt.Errorf("gemini ocr: parse response: %w", err)
		}
		return parsed, nil
	})
	if retryErr != nil {
		return "", nil, retryErr
	}

	tokens := common.CalculateTokenCost(0, 0, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	return result.RawText, &tokens, nil
}

// GeminiCompleter runs one prompt-based LLM call via Gemini, optionally with
// an attached image for vision-assisted completion.
type GeminiCompleter struct {
	cfg GeminiConfig
}

// NewGeminiCompleter constructs a TextCompleter backed by Gemini.
func NewGeminiCompleter(cfg GeminiConfig) *GeminiCompleter {
	return &GeminiCompleter{cfg: cfg}
}

func (g *GeminiCompleter) Name() string { return "gemini" }

func (g *GeminiCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions, reqCtx *common.RequestContext) CompletionResult {
	if err := geminiRateLimiter.Wait(ctx); err != nil {
		return CompletionResult{OK: false, Err: Classify(err)}
	}

	type completion struct {
		text         string
		promptTokens int
		outputTokens int
	}

	result, retryErr := WithRetry(ctx, DefaultRetryConfig, func(attempt int) (completion, error) {
		client, err := genai.NewClient(ctx, option.WithAPIKey(g.cfg.APIKey))
		if err != nil {
			return completion{}, err
		}
		defer client.Close()

		model := client.GenerativeModel(g.cfg.Model)
		temp := float32(opts.Temperature)
		model.SetTemperature(temp)
		if opts.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(opts.MaxTokens))
		}
		if opts.JSONMode {
			model.ResponseMIMEType = "application/json"
		}

		parts := []genai.Part{genai.Text(prompt)}
		if opts.ImageRef != "" {
			if imageBytes, readErr := os.ReadFile(opts.ImageRef); readErr == nil {
				parts = append(parts, genai.ImageData("png", imageBytes))
			}
		}

		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			return completion{}, err
		}

		c := completion{text: extractResponseText(resp)}
		if resp.UsageMetadata != nil {
			c.promptTokens = int(resp.UsageMetadata.PromptTokenCount)
			c.outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		return c, nil
	})

	if retryErr != nil {
		return CompletionResult{OK: false, Err: retryErr}
	}

	tokens := common.CalculateTokenCost(result.promptTokens, result.outputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
	return CompletionResult{OK: true, Content: result.text, Tokens: tokens}
}

func extractResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}
