// Package pipeline drives one statement through rasterize -> ocr -> cleanup
// -> extract -> normalize -> postnorm -> done. The orchestrator is pure with
// respect to persistence: it returns a result envelope and leaves writing it
// to the job controller.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosocmputer/statementpipeline/internal/agent"
	"github.com/bosocmputer/statementpipeline/internal/capability"
	"github.com/bosocmputer/statementpipeline/internal/common"
	"github.com/bosocmputer/statementpipeline/internal/confidence"
	"github.com/bosocmputer/statementpipeline/internal/normalize"
	"github.com/bosocmputer/statementpipeline/internal/prompt"
	"github.com/bosocmputer/statementpipeline/internal/rasterize"
)

// PageBreakSentinel joins per-page OCR text before cleanup, so the cleanup
// agent can see the page boundaries without the orchestrator tracking them
// separately.
const PageBreakSentinel = "\n\n--- PAGE BREAK ---\n\n"

// Result is the pipeline's pure output: the normalized tree, validation
// results, and the per-field confidence scores layered on top, plus whatever
// token/timing accounting accumulated along the way.
type Result struct {
	Success           bool
	Error             string
	NormalizedData    map[string]interface{}
	ValidationResults map[string]interface{}
	Confidences       map[string]confidence.Result
	OverallConfidence float64
	PageCount         int
	TransactionCount  int
	Tokens            common.TokenUsage
	Duration          time.Duration
}

// Orchestrator wires together one OCR reader and one text completer to run
// the five-stage pipeline for a single job.
type Orchestrator struct {
	rasterizer  *rasterize.Rasterizer
	ocr         capability.OCRReader
	runner      *agent.Runner
	normalizeOpts normalize.Options
	confWeights confidence.Weights
	dpi         int
}

// NewOrchestrator constructs an Orchestrator from its capabilities.
func NewOrchestrator(ocr capability.OCRReader, completer capability.TextCompleter, normalizeOpts normalize.Options, confWeights confidence.Weights, dpi int) *Orchestrator {
	return &Orchestrator{
		rasterizer:    rasterize.New(),
		ocr:           ocr,
		runner:        agent.NewRunner(completer),
		normalizeOpts: normalizeOpts,
		confWeights:   confWeights,
		dpi:           dpi,
	}
}

// Run executes the full pipeline for one PDF and returns the result
// envelope. It never panics: every stage failure is captured in
// Result.Error with Result.Success = false.
func (o *Orchestrator) Run(ctx context.Context, pdfPath string, workDir string, reqCtx *common.RequestContext) Result {
	start := time.Now()

	imagePaths, err := o.rasterize(pdfPath, workDir, reqCtx)
	if err != nil {
		return fail(err, time.Since(start))
	}
	defer rasterize.Cleanup(imagePaths)

	ocrTexts, ocrTokens, err := o.runOCR(ctx, imagePaths, reqCtx)
	if err != nil {
		return fail(err, time.Since(start))
	}

	joined := joinPages(ocrTexts)

	cleaned, cleanupTokens, err := o.runCleanup(ctx, joined, reqCtx)
	if err != nil {
		return fail(err, time.Since(start))
	}

	extracted, extractTokens, err := o.runExtract(ctx, cleaned, reqCtx)
	if err != nil {
		return fail(err, time.Since(start))
	}

	normalizedData, validation, normalizeTokens, err := o.runNormalize(ctx, extracted, reqCtx)
	if err != nil {
		return fail(err, time.Since(start))
	}

	finalData, confidences, overall := o.postnorm(normalizedData)

	total := sumTokens(ocrTokens, cleanupTokens, extractTokens, normalizeTokens)

	return Result{
		Success:           true,
		NormalizedData:    finalData,
		ValidationResults: validation,
		Confidences:       confidences,
		OverallConfidence: overall,
		PageCount:         len(imagePaths),
		TransactionCount:  countTransactions(finalData),
		Tokens:            total,
		Duration:          time.Since(start),
	}
}

func (o *Orchestrator) rasterize(pdfPath, workDir string, reqCtx *common.RequestContext) ([]string, error) {
	reqCtx.StartStep("pdf_rasterize")

	// Read metadata without a full render first: a PDF that reports zero
	// pages, or can't be read at all, fails here before pdftoppm ever runs.
	meta, err := o.rasterizer.GetMetadata(pdfPath)
	if err != nil {
		wrapped := fmt.Errorf("rasterize: read metadata: %w", err)
		reqCtx.EndStep("failed", nil, wrapped)
		return nil, wrapped
	}
	if meta.PageCount == 0 {
		err := fmt.Errorf("rasterize: pdf reports zero pages")
		reqCtx.EndStep("failed", nil, err)
		return nil, err
	}

	paths, err := o.rasterizer.Rasterize(pdfPath, rasterize.Options{DPI: o.dpi, OutputDir: filepath.Join(workDir, "pages")})
	if err != nil {
		wrapped := fmt.Errorf("rasterize: %w", err)
		reqCtx.EndStep("failed", nil, wrapped)
		return nil, wrapped
	}
	if len(paths) == 0 {
		err := fmt.Errorf("rasterize: produced zero pages")
		reqCtx.EndStep("failed", nil, err)
		return nil, err
	}
	reqCtx.EndStep("completed", nil, nil)
	return paths, nil
}

func (o *Orchestrator) runOCR(ctx context.Context, imagePaths []string, reqCtx *common.RequestContext) ([]string, common.TokenUsage, error) {
	reqCtx.StartStep("ocr")
	texts, tokens := capability.ExtractBatch(ctx, o.ocr, imagePaths, reqCtx)
	if allEmpty(texts) {
		err := fmt.Errorf("ocr: all %d page(s) returned empty text", len(texts))
		reqCtx.EndStep("failed", &tokens, err)
		return nil, tokens, err
	}
	reqCtx.EndStep("completed", &tokens, nil)
	return texts, tokens, nil
}

// allEmpty reports whether every page's OCR text is blank, the boundary
// case that must fail the ocr stage outright rather than limp into cleanup.
func allEmpty(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

func joinPages(texts []string) string {
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += PageBreakSentinel
		}
		joined += t
	}
	return joined
}

func (o *Orchestrator) runCleanup(ctx context.Context, joined string, reqCtx *common.RequestContext) (string, common.TokenUsage, error) {
	reqCtx.StartStep("cleanup")
	stage := agent.StageDescriptor{
		Name:          "cleanup",
		BuildPrompt:   func() string { return prompt.Cleanup(joined) },
		ExpectedShape: agent.ShapeText,
	}
	res := o.runner.Run(ctx, stage, reqCtx)
	if !res.Success || res.Text == "" {
		err := fmt.Errorf("cleanup: %s", nonEmpty(res.Error, "produced empty text"))
		reqCtx.EndStep("failed", &res.Tokens, err)
		return "", res.Tokens, err
	}
	reqCtx.EndStep("completed", &res.Tokens, nil)
	return res.Text, res.Tokens, nil
}

var extractionGroups = []string{"account", "period", "bank", "balances", "transactions"}

func (o *Orchestrator) runExtract(ctx context.Context, cleaned string, reqCtx *common.RequestContext) (map[string]interface{}, common.TokenUsage, error) {
	reqCtx.StartStep("extract")
	stage := agent.StageDescriptor{
		Name:          "extract",
		BuildPrompt:   func() string { return prompt.Extraction(cleaned) },
		ExpectedShape: agent.ShapeJSON,
	}
	res := o.runner.Run(ctx, stage, reqCtx)
	if !res.Success {
		err := fmt.Errorf("extract: %s", res.Error)
		reqCtx.EndStep("failed", &res.Tokens, err)
		return nil, res.Tokens, err
	}
	if !hasAnyGroup(res.Data, extractionGroups) {
		err := fmt.Errorf("extract: result contains none of %v", extractionGroups)
		reqCtx.EndStep("failed", &res.Tokens, err)
		return nil, res.Tokens, err
	}
	reqCtx.EndStep("completed", &res.Tokens, nil)
	return res.Data, res.Tokens, nil
}

func hasAnyGroup(data map[string]interface{}, groups []string) bool {
	for _, g := range groups {
		if _, ok := data[g]; ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) runNormalize(ctx context.Context, extracted map[string]interface{}, reqCtx *common.RequestContext) (map[string]interface{}, map[string]interface{}, common.TokenUsage, error) {
	reqCtx.StartStep("normalize")

	extractedJSON := jsonString(extracted)
	stage := agent.StageDescriptor{
		Name:          "normalize",
		BuildPrompt:   func() string { return prompt.Normalization(extractedJSON) },
		ExpectedShape: agent.ShapeJSON,
	}
	res := o.runner.Run(ctx, stage, reqCtx)
	if !res.Success {
		err := fmt.Errorf("normalize: %s", res.Error)
		reqCtx.EndStep("failed", &res.Tokens, err)
		return nil, nil, res.Tokens, err
	}

	normalizedData, _ := res.Data["normalized_data"].(map[string]interface{})
	if normalizedData == nil {
		normalizedData = extracted
	}
	validation, _ := res.Data["validation_results"].(map[string]interface{})
	if validation == nil {
		validation = map[string]interface{}{"overall_confidence": 0.0, "issues": []interface{}{}}
	}

	reqCtx.EndStep("completed", &res.Tokens, nil)
	return normalizedData, validation, res.Tokens, nil
}

func jsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// postnorm applies the Normalizer over the model's normalized_data to
// guarantee canonical dates/amounts/PII masking even where the model missed
// something, then scores confidence per field and overall.
func (o *Orchestrator) postnorm(normalizedData map[string]interface{}) (map[string]interface{}, map[string]confidence.Result, float64) {
	opts := o.normalizeOpts
	opts.DefaultCurrency = normalize.DetectCurrency(normalizedData, jsonString(normalizedData))

	walked := normalize.WalkTree(normalizedData, "", opts)
	finalData, _ := walked.(map[string]interface{})
	if finalData == nil {
		finalData = normalizedData
	}

	confidences := scoreFields(finalData, "", o.confWeights)
	overall := confidence.Overall(confidences, nil)
	return finalData, confidences, overall
}

func scoreFields(node interface{}, path string, w confidence.Weights) map[string]confidence.Result {
	results := map[string]confidence.Result{}
	switch v := node.(type) {
	case map[string]interface{}:
		if normalize.IsFieldObject(v) {
			value := fmt.Sprintf("%v", v["value"])
			modelConf := -1.0
			if c, ok := v["confidence"].(float64); ok {
				modelConf = c
			}
			results[path] = confidence.Score(fieldTypeFor(path), value, modelConf, true, true, w)
			return results
		}
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			for p, r := range scoreFields(child, childPath, w) {
				results[p] = r
			}
		}
	case []interface{}:
		for i, child := range v {
			childPath := fmt.Sprintf("%s[%d]", path, i)
			for p, r := range scoreFields(child, childPath, w) {
				results[p] = r
			}
		}
	}
	return results
}

func fieldTypeFor(path string) confidence.FieldType {
	switch {
	case containsAny(path, "date"):
		return confidence.TypeDate
	case containsAny(path, "debit", "credit", "balance", "amount"):
		return confidence.TypeNumber
	case containsAny(path, "email"):
		return confidence.TypeEmail
	case containsAny(path, "account_number"):
		return confidence.TypeAccountNumber
	case containsAny(path, "currency"):
		return confidence.TypeCurrency
	default:
		return confidence.TypeGeneric
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOfFold(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOfFold(s, sub string) int {
	ls, lsub := toLower(s), toLower(sub)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return i
		}
	}
	return -1
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func countTransactions(data map[string]interface{}) int {
	txs, ok := data["transactions"].([]interface{})
	if !ok {
		return 0
	}
	return len(txs)
}

func sumTokens(usages ...common.TokenUsage) common.TokenUsage {
	var total common.TokenUsage
	for _, u := range usages {
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.TotalTokens += u.TotalTokens
		total.CostUSD += u.CostUSD
	}
	return total
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func fail(err error, d time.Duration) Result {
	return Result{Success: false, Error: err.Error(), Duration: d}
}

// CleanupWorkDir removes the per-job temp directory used for rasterized
// pages. The job controller calls it after Run, whatever the outcome, when
// temp-file cleanup is enabled.
func CleanupWorkDir(workDir string) {
	_ = os.RemoveAll(workDir)
}
