package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bosocmputer/statementpipeline/internal/common"
)

const (
	mistralOCRURL        = "https://api.mistral.ai/v1/ocr"
	mistralChatURL       = "https://api.mistral.ai/v1/chat/completions"
	mistralInputPrice    = 0.0
	mistralOutputPrice   = 0.0
)

// MistralConfig configures the Mistral-backed capabilities.
type MistralConfig struct {
	APIKey string
	Model  string
}

// MistralOCRReader extracts page text via Mistral's dedicated OCR endpoint.
type MistralOCRReader struct {
	cfg    MistralConfig
	client *http.Client
}

func NewMistralOCRReader(cfg MistralConfig) *MistralOCRReader {
	return &MistralOCRReader{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

func (m *MistralOCRReader) Name() string { return "mistral" }

func (m *MistralOCRReader) Ready(ctx context.Context) bool { return m.cfg.APIKey != "" }

type mistralOCRDocument struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralOCRRequest struct {
	Model    string              `json:"model"`
	Document mistralOCRDocument  `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

func (m *MistralOCRReader) Extract(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return "", nil, fmt.Errorf("mistral ocr: read image: %w", err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imageData)

	reqBody := mistralOCRRequest{
		Model:    m.cfg.Model,
		Document: mistralOCRDocument{Type: "image_url", ImageURL: dataURL},
	}

	result, retryErr := WithRetry(ctx, DefaultRetryConfig, func(attempt int) (mistralOCRResponse, error) {
		return m.call(ctx, mistralOCRURL, reqBody)
	})
	if retryErr != nil {
		return "", nil, retryErr
	}

	var text strings.Builder
	for _, page := range result.Pages {
		text.WriteString(page.Markdown)
		text.WriteString("\n")
	}
	tokens := common.CalculateTokenCost(0, 0, mistralInputPrice, mistralOutputPrice)
	return text.String(), &tokens, nil
}

func (m *MistralOCRReader) call(ctx context.Context, url string, body interface{}) (mistralOCRResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return mistralOCRResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return mistralOCRResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return mistralOCRResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return mistralOCRResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return mistralOCRResponse{}, &httpStatusError{code: resp.StatusCode, body: string(respBody)}
	}

	var parsed mistralOCRResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return mistralOCRResponse{}, err
	}
	return parsed, nil
}

// MistralCompleter runs prompt-based completions against Mistral's chat API.
type MistralCompleter struct {
	cfg    MistralConfig
	client *http.Client
}

func NewMistralCompleter(cfg MistralConfig) *MistralCompleter {
	return &MistralCompleter{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

func (m *MistralCompleter) Name() string { return "mistral" }

type mistralChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralChatRequest struct {
	Model       string                `json:"model"`
	Messages    []mistralChatMessage  `json:"messages"`
	Temperature float64               `json:"temperature"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

type mistralChatChoice struct {
	Message mistralChatMessage `json:"message"`
}

type mistralUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type mistralChatResponse struct {
	Choices []mistralChatChoice `json:"choices"`
	Usage   mistralUsage        `json:"usage"`
}

func (m *MistralCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions, reqCtx *common.RequestContext) CompletionResult {
	reqBody := mistralChatRequest{
		Model:       m.cfg.Model,
		Messages:    []mistralChatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	result, retryErr := WithRetry(ctx, DefaultRetryConfig, func(attempt int) (mistralChatResponse, error) {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return mistralChatResponse{}, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, mistralChatURL, bytes.NewReader(payload))
		if err != nil {
			return mistralChatResponse{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

		resp, err := m.client.Do(req)
		if err != nil {
			return mistralChatResponse{}, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mistralChatResponse{}, err
		}
		if resp.StatusCode != http.StatusOK {
			return mistralChatResponse{}, &httpStatusError{code: resp.StatusCode, body: string(respBody)}
		}

		var parsed mistralChatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return mistralChatResponse{}, err
		}
		return parsed, nil
	})
	if retryErr != nil {
		return CompletionResult{OK: false, Err: retryErr}
	}

	content := ""
	if len(result.Choices) > 0 {
		content = result.Choices[0].Message.Content
	}
	tokens := common.CalculateTokenCost(result.Usage.PromptTokens, result.Usage.CompletionTokens, mistralInputPrice, mistralOutputPrice)
	return CompletionResult{OK: true, Content: content, Tokens: tokens}
}

// httpStatusError carries a non-2xx HTTP response through to Classify,
// which maps it onto the shared error Category by status code.
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}
