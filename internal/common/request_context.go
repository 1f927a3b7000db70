// request_context.go - Per-run tracking and logging
package common

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// RequestContext tracks one pipeline run's step timing, token usage, and
// produces the ordered ProcessingLog entries the Store persists.
type RequestContext struct {
	RequestID           string
	JobID               string
	StartTime           time.Time
	Steps               []StepLog
	TotalTokens         TokenUsage
	CurrentStep         string
	CurrentStepStart    time.Time
	CurrentSubSteps     []SubStepLog
	CurrentSubStep      string
	CurrentSubStepStart time.Time
}

// StepLog is one ProcessingLog row: step name, status, duration, and
// whatever free-form metadata (tokens, model id, error) the step produced.
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"` // started, completed, failed
	Tokens    *TokenUsage  `json:"tokens,omitempty"`
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog is a detailed sub-operation within a step, kept on the parent
// StepLog rather than recorded as a step of its own.
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// TokenUsage tracks LLM token consumption and its estimated cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

var stepDescriptions = map[string]string{
	"pdf_rasterize": "rasterize pages",
	"ocr":           "extract text (OCR)",
	"cleanup":       "clean OCR text",
	"extract":       "extract structured data",
	"normalize":     "normalize and validate",
	"persist":       "persist results",
}

// NewRequestContext starts tracking one pipeline run for the given job.
func NewRequestContext(jobID string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] starting pipeline run | job=%s | at=%s", reqID, jobID, now.Format("15:04:05"))

	return &RequestContext{
		RequestID:   reqID,
		JobID:       jobID,
		StartTime:   now,
		Steps:       []StepLog{},
		TotalTokens: TokenUsage{},
	}
}

// StartStep begins tracking a pipeline stage.
func (rc *RequestContext) StartStep(stepName string) {
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()

	desc := stepDescriptions[stepName]
	if desc == "" {
		desc = stepName
	}
	log.Printf("[%s] -> %s", rc.RequestID, desc)
}

// EndStep completes the current stage and appends its ProcessingLog entry.
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
		SubSteps:  rc.CurrentSubSteps,
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] FAILED %s (%.2fs): %v", rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		msg := fmt.Sprintf("[%s] done %s (%.2fs)", rc.RequestID, rc.CurrentStep, float64(duration)/1000)
		if tokens != nil {
			rc.TotalTokens.InputTokens += tokens.InputTokens
			rc.TotalTokens.OutputTokens += tokens.OutputTokens
			rc.TotalTokens.TotalTokens += tokens.TotalTokens
			rc.TotalTokens.CostUSD += tokens.CostUSD
			msg += fmt.Sprintf(" | tokens in=%d out=%d total=%d cost=$%.4f",
				tokens.InputTokens, tokens.OutputTokens, tokens.TotalTokens, tokens.CostUSD)
		}
		if len(rc.CurrentSubSteps) > 0 {
			msg += fmt.Sprintf(" | sub-steps=%d", len(rc.CurrentSubSteps))
		}
		log.Print(msg)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = []SubStepLog{}
}

// CalculateTokenCost computes USD cost from token counts at the given
// per-million-token prices.
func CalculateTokenCost(inputTokens, outputTokens int, inputPricePerMillion, outputPricePerMillion float64) TokenUsage {
	inputCost := float64(inputTokens) * inputPricePerMillion / 1_000_000
	outputCost := float64(outputTokens) * outputPricePerMillion / 1_000_000
	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      inputCost + outputCost,
	}
}

// GetSummary returns a final summary of the entire pipeline run.
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}

	summary := map[string]interface{}{
		"request_id":         rc.RequestID,
		"job_id":              rc.JobID,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  rc.TotalTokens.InputTokens,
			"output_tokens": rc.TotalTokens.OutputTokens,
			"total_tokens":  rc.TotalTokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", rc.TotalTokens.CostUSD),
		},
	}

	log.Printf("[%s] pipeline summary: %.2fs, %d steps, %s tokens, $%.4f",
		rc.RequestID, float64(totalDuration)/1000, len(rc.Steps),
		formatNumber(rc.TotalTokens.TotalTokens), rc.TotalTokens.CostUSD)

	return summary
}

// StartSubStep begins tracking a detailed sub-operation within the current step.
func (rc *RequestContext) StartSubStep(subStepName string) {
	rc.CurrentSubStep = subStepName
	rc.CurrentSubStepStart = time.Now()
	log.Printf("[%s]    .. %s", rc.RequestID, subStepName)
}

// EndSubStep completes the current sub-step.
func (rc *RequestContext) EndSubStep(details string) {
	if rc.CurrentSubStep == "" {
		return
	}
	duration := time.Since(rc.CurrentSubStepStart).Milliseconds()
	rc.CurrentSubSteps = append(rc.CurrentSubSteps, SubStepLog{
		Name:      rc.CurrentSubStep,
		StartTime: rc.CurrentSubStepStart,
		Duration:  duration,
		Details:   details,
	})
	if details != "" {
		details = " | " + details
	}
	log.Printf("[%s]    ok %.2fs%s", rc.RequestID, float64(duration)/1000, details)
	rc.CurrentSubStep = ""
}

func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	log.Printf("[%s] %s", rc.RequestID, fmt.Sprintf(format, args...))
}

func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	log.Printf("[%s] WARN %s", rc.RequestID, fmt.Sprintf(format, args...))
}

func (rc *RequestContext) LogError(format string, args ...interface{}) {
	log.Printf("[%s] ERROR %s", rc.RequestID, fmt.Sprintf(format, args...))
}

// GetPartialSummary summarizes completed steps, used when a run is
// interrupted before reaching done.
func (rc *RequestContext) GetPartialSummary() map[string]interface{} {
	completedSteps := []string{}
	for _, step := range rc.Steps {
		if step.Status == "completed" {
			completedSteps = append(completedSteps, step.Name)
		}
	}
	return map[string]interface{}{
		"completed_steps": completedSteps,
		"total_steps":     len(rc.Steps),
		"current_step":    rc.CurrentStep,
	}
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n%1000000)/1000, n%1000)
}
