package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/statementpipeline/internal/capability"
	"github.com/bosocmputer/statementpipeline/internal/common"
)

type fakeCompleter struct {
	result capability.CompletionResult
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, opts capability.CompletionOptions, reqCtx *common.RequestContext) capability.CompletionResult {
	return f.result
}

func (f *fakeCompleter) Name() string { return "fake" }

func newTestRequestContext() *common.RequestContext {
	return common.NewRequestContext("job-1")
}

func TestRunnerTextShapeReturnsVerbatim(t *testing.T) {
	completer := &fakeCompleter{result: capability.CompletionResult{OK: true, Content: "hello world"}}
	r := NewRunner(completer)

	stage := StageDescriptor{
		Name:          "cleanup",
		BuildPrompt:   func() string { return "clean this" },
		ExpectedShape: ShapeText,
	}

	res := r.Run(context.Background(), stage, newTestRequestContext())
	assert.True(t, res.Success)
	assert.Equal(t, "hello world", res.Text)
}

func TestRunnerJSONShapeParsesObject(t *testing.T) {
	completer := &fakeCompleter{result: capability.CompletionResult{OK: true, Content: "Sure:\n```json\n{\"account\": {\"value\": \"123\"}}\n```"}}
	r := NewRunner(completer)

	stage := StageDescriptor{
		Name:          "extract",
		BuildPrompt:   func() string { return "extract this" },
		ExpectedShape: ShapeJSON,
	}

	res := r.Run(context.Background(), stage, newTestRequestContext())
	assert.True(t, res.Success)
	assert.NotNil(t, res.Data)
	assert.Equal(t, "123", res.Data["account"].(map[string]interface{})["value"])
}

func TestRunnerJSONShapeRepairsLiteralNewlines(t *testing.T) {
	raw := "{\"note\": \"line one\nline two\"}"
	completer := &fakeCompleter{result: capability.CompletionResult{OK: true, Content: raw}}
	r := NewRunner(completer)

	stage := StageDescriptor{
		Name:          "extract",
		BuildPrompt:   func() string { return "x" },
		ExpectedShape: ShapeJSON,
	}

	res := r.Run(context.Background(), stage, newTestRequestContext())
	assert.True(t, res.Success)
	assert.Equal(t, "line one\nline two", res.Data["note"])
}

func TestRunnerFailsGracefullyOnCompletionError(t *testing.T) {
	completer := &fakeCompleter{result: capability.CompletionResult{OK: false, Err: &capability.Error{Message: "rate limited"}}}
	r := NewRunner(completer)

	stage := StageDescriptor{
		Name:          "extract",
		BuildPrompt:   func() string { return "x" },
		ExpectedShape: ShapeJSON,
	}

	res := r.Run(context.Background(), stage, newTestRequestContext())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rate limited")
}

func TestRunnerFailsGracefullyOnUnparsableJSON(t *testing.T) {
	completer := &fakeCompleter{result: capability.CompletionResult{OK: true, Content: "no json here"}}
	r := NewRunner(completer)

	stage := StageDescriptor{
		Name:          "extract",
		BuildPrompt:   func() string { return "x" },
		ExpectedShape: ShapeJSON,
	}

	res := r.Run(context.Background(), stage, newTestRequestContext())
	assert.False(t, res.Success)
}

func TestParseJSONObjectDirect(t *testing.T) {
	data, ok := ParseJSONObject(`{"a": 1}`)
	assert.True(t, ok)
	assert.Equal(t, float64(1), data["a"])
}
