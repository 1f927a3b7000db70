package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/bosocmputer/statementpipeline/internal/capability"
	"github.com/bosocmputer/statementpipeline/internal/common"
)

// ExpectedShape is what a stage's output should look like.
type ExpectedShape string

const (
	ShapeText ExpectedShape = "text"
	ShapeJSON ExpectedShape = "json"
)

// StageDescriptor is one unit of work for the runner: how to build the
// prompt, an optional attached image, and what shape the output should
// take.
type StageDescriptor struct {
	Name           string
	BuildPrompt    func() string
	ImageRef       string
	ExpectedShape  ExpectedShape
	Options        capability.CompletionOptions
}

// StageResult is the uniform, never-throwing outcome of running one stage.
type StageResult struct {
	Data     map[string]interface{}
	Text     string
	Success  bool
	Error    string
	Tokens   common.TokenUsage
	Duration time.Duration
}

// Runner executes stage descriptors against a TextCompleter.
type Runner struct {
	completer capability.TextCompleter
}

// NewRunner constructs a Runner bound to completer.
func NewRunner(completer capability.TextCompleter) *Runner {
	return &Runner{completer: completer}
}

// Run builds the stage's prompt, calls the completer, and shapes the
// result. Failures never panic or return a bare error — they populate
// Success=false and Error, leaving the orchestrator to decide what happens
// next.
func (r *Runner) Run(ctx context.Context, stage StageDescriptor, reqCtx *common.RequestContext) StageResult {
	start := time.Now()
	prompt := stage.BuildPrompt()

	opts := stage.Options
	opts.ImageRef = stage.ImageRef
	if stage.ExpectedShape == ShapeJSON {
		opts.JSONMode = true
	}

	completion := r.completer.Complete(ctx, prompt, opts, reqCtx)
	duration := time.Since(start)

	if !completion.OK {
		msg := "completion failed"
		if completion.Err != nil {
			msg = completion.Err.Error()
		}
		return StageResult{Success: false, Error: msg, Duration: duration}
	}

	if stage.ExpectedShape == ShapeText {
		return StageResult{Success: true, Text: completion.Content, Tokens: completion.Tokens, Duration: duration}
	}

	data, ok := ParseJSONObject(completion.Content)
	if !ok {
		return StageResult{Success: false, Error: "no balanced JSON object found in completion", Tokens: completion.Tokens, Duration: duration}
	}
	return StageResult{Success: true, Data: data, Tokens: completion.Tokens, Duration: duration}
}

var jsonStringLiteral = regexp.MustCompile(`"([^"]*(?:\\.[^"]*)*)"`)

// ParseJSONObject repairs common LLM JSON-escaping mistakes, then runs the
// balanced-brace extractor before unmarshaling. Repair runs first: it
// escapes literal control characters inside string values, which
// json.Unmarshal would otherwise reject.
func ParseJSONObject(raw string) (map[string]interface{}, bool) {
	repaired := repairJSONEscaping(raw)

	candidate, ok := ExtractBalancedJSON(repaired)
	if !ok {
		return nil, false
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil, false
	}
	return data, true
}

func repairJSONEscaping(raw string) string {
	return jsonStringLiteral.ReplaceAllStringFunc(raw, func(match string) string {
		inner := match[1 : len(match)-1]
		fixed := make([]byte, 0, len(inner))
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '\n':
				fixed = append(fixed, '\\', 'n')
			case '\r':
				fixed = append(fixed, '\\', 'r')
			case '\t':
				fixed = append(fixed, '\\', 't')
			default:
				fixed = append(fixed, inner[i])
			}
		}
		return `"` + string(fixed) + `"`
	})
}
