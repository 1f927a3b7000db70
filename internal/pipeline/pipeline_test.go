package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/statementpipeline/internal/capability"
	"github.com/bosocmputer/statementpipeline/internal/common"
	"github.com/bosocmputer/statementpipeline/internal/confidence"
	"github.com/bosocmputer/statementpipeline/internal/normalize"
)

func TestJoinPagesUsesSentinel(t *testing.T) {
	joined := joinPages([]string{"page one", "page two"})
	assert.Equal(t, "page one"+PageBreakSentinel+"page two", joined)
}

func TestHasAnyGroupTrue(t *testing.T) {
	data := map[string]interface{}{"account": map[string]interface{}{}}
	assert.True(t, hasAnyGroup(data, extractionGroups))
}

func TestHasAnyGroupFalse(t *testing.T) {
	data := map[string]interface{}{"unrelated": 1}
	assert.False(t, hasAnyGroup(data, extractionGroups))
}

func TestCountTransactions(t *testing.T) {
	data := map[string]interface{}{"transactions": []interface{}{1, 2, 3}}
	assert.Equal(t, 3, countTransactions(data))
}

func TestCountTransactionsMissing(t *testing.T) {
	assert.Equal(t, 0, countTransactions(map[string]interface{}{}))
}

func TestFieldTypeForInfersFromPath(t *testing.T) {
	assert.Equal(t, "date", string(fieldTypeFor("period.start_date")))
	assert.Equal(t, "number", string(fieldTypeFor("balances.closing_balance")))
	assert.Equal(t, "account_number", string(fieldTypeFor("account.account_number")))
	assert.Equal(t, "currency", string(fieldTypeFor("bank.currency")))
	assert.Equal(t, "generic", string(fieldTypeFor("bank.name")))
}

func TestScoreFieldsWalksNestedFieldObjects(t *testing.T) {
	tree := map[string]interface{}{
		"period": map[string]interface{}{
			"start_date": map[string]interface{}{"value": "2025-01-01", "confidence": 0.9},
		},
	}
	results := scoreFields(tree, "", confidence.DefaultWeights)
	r, ok := results["period.start_date"]
	assert.True(t, ok)
	assert.True(t, r.HasModel)
}

type fakeOCR struct{ text string }

func (f *fakeOCR) Extract(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (string, *common.TokenUsage, error) {
	return f.text, &common.TokenUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}, nil
}
func (f *fakeOCR) Ready(ctx context.Context) bool { return true }
func (f *fakeOCR) Name() string                   { return "fake-ocr" }

type scriptedCompleter struct {
	responses []string
	calls     int
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, opts capability.CompletionOptions, reqCtx *common.RequestContext) capability.CompletionResult {
	idx := s.calls
	s.calls++
	if idx >= len(s.responses) {
		return capability.CompletionResult{OK: false, Err: &capability.Error{Message: "no more scripted responses"}}
	}
	return capability.CompletionResult{OK: true, Content: s.responses[idx]}
}
func (s *scriptedCompleter) Name() string { return "fake-completer" }

func TestRunExtractFailsWhenNoRecognizedGroupPresent(t *testing.T) {
	o := NewOrchestrator(&fakeOCR{text: "x"}, &scriptedCompleter{
		responses: []string{`{"unrelated": true}`},
	}, normalize.DefaultOptions, confidence.DefaultWeights, 150)
	reqCtx := common.NewRequestContext("job-1")

	_, _, err := o.runExtract(context.Background(), "plain cleaned text", reqCtx)
	assert.Error(t, err)
}

func TestRunCleanupFailsOnEmptyText(t *testing.T) {
	o := NewOrchestrator(&fakeOCR{text: "x"}, &scriptedCompleter{
		responses: []string{""},
	}, normalize.DefaultOptions, confidence.DefaultWeights, 150)
	reqCtx := common.NewRequestContext("job-1")

	_, _, err := o.runCleanup(context.Background(), "raw", reqCtx)
	assert.Error(t, err)
}

func TestAllEmptyTrueWhenEveryPageBlank(t *testing.T) {
	assert.True(t, allEmpty([]string{"", "  ", ""}))
}

func TestAllEmptyFalseWhenOnePageHasText(t *testing.T) {
	assert.False(t, allEmpty([]string{"", "some text", ""}))
}

func TestRunOCRFailsWhenEveryPageIsEmpty(t *testing.T) {
	o := NewOrchestrator(&fakeOCR{text: ""}, &scriptedCompleter{}, normalize.DefaultOptions, confidence.DefaultWeights, 150)
	reqCtx := common.NewRequestContext("job-1")

	texts, _, err := o.runOCR(context.Background(), []string{"page1.png", "page2.png"}, reqCtx)
	assert.Error(t, err)
	assert.Nil(t, texts)
}

func TestPostnormAppliesDetectedCurrencyToAmountFields(t *testing.T) {
	o := NewOrchestrator(&fakeOCR{text: "x"}, &scriptedCompleter{}, normalize.DefaultOptions, confidence.DefaultWeights, 150)
	data := map[string]interface{}{
		"bank": map[string]interface{}{
			"currency": map[string]interface{}{"value": "EUR", "confidence": 1.0},
		},
		"balances": map[string]interface{}{
			"opening_balance": map[string]interface{}{"value": "1000.00", "confidence": 0.9},
		},
	}

	finalData, _, _ := o.postnorm(data)

	balances := finalData["balances"].(map[string]interface{})
	opening := balances["opening_balance"].(map[string]interface{})
	assert.Equal(t, "EUR", opening["currency"])
}

func TestRunNormalizeDefaultsValidationWhenMissing(t *testing.T) {
	o := NewOrchestrator(&fakeOCR{text: "x"}, &scriptedCompleter{
		responses: []string{`{"normalized_data": {"account": {}}}`},
	}, normalize.DefaultOptions, confidence.DefaultWeights, 150)
	reqCtx := common.NewRequestContext("job-1")

	_, validation, _, err := o.runNormalize(context.Background(), map[string]interface{}{"account": map[string]interface{}{}}, reqCtx)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, validation["overall_confidence"])
}
