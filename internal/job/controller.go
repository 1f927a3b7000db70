// Package job implements the JobController: intake, dedup, background
// scheduling, state persistence, and export for one statement's lifecycle.
package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bosocmputer/statementpipeline/configs"
	"github.com/bosocmputer/statementpipeline/internal/blobstore"
	"github.com/bosocmputer/statementpipeline/internal/capability"
	"github.com/bosocmputer/statementpipeline/internal/common"
	"github.com/bosocmputer/statementpipeline/internal/confidence"
	"github.com/bosocmputer/statementpipeline/internal/normalize"
	"github.com/bosocmputer/statementpipeline/internal/pipeline"
	"github.com/bosocmputer/statementpipeline/internal/store"
)

// ErrInvalidUpload wraps every rejection Submit makes before a job is ever
// created (bad extension, oversized, empty). The HTTP layer maps it to 400;
// any other error out of Submit is an internal failure and maps to 500.
var ErrInvalidUpload = errors.New("job: invalid upload")

// Controller accepts uploads, deduplicates by content hash, drives the
// pipeline in the background, and answers status/query/export requests.
type Controller struct {
	cfg   *configs.Config
	store *store.Store
	blobs *blobstore.Store
	pool  *pool

	orchestrator *pipeline.Orchestrator
	tempDir      string
}

// New wires a Controller from config, selecting the OCR/LLM capability pair
// via the same factory-function idiom the teacher uses to choose providers.
func New(cfg *configs.Config, st *store.Store, blobs *blobstore.Store) (*Controller, error) {
	ocrReader, err := capability.NewOCRReader(cfg.OCR)
	if err != nil {
		return nil, fmt.Errorf("job: build ocr reader: %w", err)
	}
	completer, err := capability.NewTextCompleter(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("job: build text completer: %w", err)
	}

	normalizeOpts := normalize.Options{
		PIIMaskChar: cfg.PIIMaskChar,
		PIIShowLast: cfg.PIIShowLast,
	}
	confWeights := confidence.Weights{
		TypeValidity: confidence.DefaultWeights.TypeValidity,
		NameValidity: confidence.DefaultWeights.NameValidity,
		Context:      confidence.DefaultWeights.Context,
		Heuristic:    cfg.HeuristicWeight,
		Model:        cfg.ModelWeight,
		Threshold:    cfg.ConfidenceThreshold,
	}

	orchestrator := pipeline.NewOrchestrator(ocrReader, completer, normalizeOpts, confWeights, cfg.PDFDPI)

	c := &Controller{
		cfg:          cfg,
		store:        st,
		blobs:        blobs,
		orchestrator: orchestrator,
		tempDir:      filepath.Join(cfg.UploadDir, "tmp"),
	}
	c.pool = newPool(cfg.WorkerCount, c.runJob)
	return c, nil
}

// Shutdown drains the worker pool, waiting for in-flight jobs to finish.
func (c *Controller) Shutdown() {
	c.pool.shutdown()
}

// SubmitResult is what Submit returns to the HTTP layer immediately.
type SubmitResult struct {
	JobID     string
	Duplicate bool
	State     store.JobState
}

// Submit validates, deduplicates, persists, and schedules one upload.
// Duplicate content (by SHA-256) returns the original job's id unchanged
// instead of creating a new row or re-running the pipeline.
func (c *Controller) Submit(ctx context.Context, filename string, content []byte) (SubmitResult, error) {
	if err := c.validate(filename, content); err != nil {
		return SubmitResult{}, err
	}

	putResult, err := c.blobs.Put(content, filename, blobstore.PutOptions{CheckDuplicate: true})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("job: store blob: %w", err)
	}

	if existing, err := c.store.FindByHash(ctx, putResult.Hash); err != nil {
		return SubmitResult{}, fmt.Errorf("job: lookup by hash: %w", err)
	} else if existing != nil {
		return SubmitResult{JobID: existing.ID, Duplicate: true, State: existing.State}, nil
	}

	id := uuid.New().String()
	newJob, err := c.store.CreateJob(ctx, id, filename, putResult.Path, putResult.Hash, int64(len(content)))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("job: create job: %w", err)
	}

	c.pool.enqueue(newJob.ID)
	return SubmitResult{JobID: newJob.ID, Duplicate: false, State: newJob.State}, nil
}

func (c *Controller) validate(filename string, content []byte) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !containsExt(c.cfg.AllowedExt, ext) {
		return fmt.Errorf("%w: extension %q not allowed", ErrInvalidUpload, ext)
	}
	if int64(len(content)) > c.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: upload exceeds max size of %d bytes", ErrInvalidUpload, c.cfg.MaxUploadBytes)
	}
	if len(content) == 0 {
		return fmt.Errorf("%w: empty upload", ErrInvalidUpload)
	}
	return nil
}

func containsExt(allowed []string, ext string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// runJob is the background half of one submission: mark Processing, run the
// pipeline, write the result under a single transaction.
func (c *Controller) runJob(jobID string) {
	ctx := context.Background()

	if err := c.store.MarkProcessing(ctx, jobID); err != nil {
		return
	}

	record, err := c.store.Get(ctx, jobID)
	if err != nil || record == nil {
		c.failJob(ctx, jobID, fmt.Errorf("job: reload after mark processing: %w", err), nil, 0)
		return
	}

	reqCtx := common.NewRequestContext(jobID)
	workDir := filepath.Join(c.tempDir, jobID)
	defer func() {
		if c.cfg.CleanupTempFiles {
			pipeline.CleanupWorkDir(workDir)
		}
	}()

	result := c.orchestrator.Run(ctx, record.Job.BlobPath, workDir, reqCtx)
	logs := toLogEntries(reqCtx)

	if !result.Success {
		c.failJob(ctx, jobID, fmt.Errorf("%s", result.Error), logs, result.Duration.Milliseconds())
		return
	}

	customer, bank, transactions := splitExtractionTree(result.NormalizedData)

	err = c.store.Complete(ctx, jobID, store.CompletionInput{
		Customer:         customer,
		Bank:             bank,
		Transactions:     transactions,
		Logs:             logs,
		PageCount:        result.PageCount,
		TransactionCount: result.TransactionCount,
		OverallConf:      result.OverallConfidence,
		DurationMS:       result.Duration.Milliseconds(),
		InputTokens:      result.Tokens.InputTokens,
		OutputTokens:     result.Tokens.OutputTokens,
		TotalTokens:      result.Tokens.TotalTokens,
		CostUSD:          result.Tokens.CostUSD,
	})
	if err != nil {
		c.failJob(ctx, jobID, fmt.Errorf("job: persist completed job: %w", err), logs, result.Duration.Milliseconds())
	}
}

func (c *Controller) failJob(ctx context.Context, jobID string, err error, logs []store.ProcessingLogEntry, durationMS int64) {
	_ = c.store.Fail(ctx, jobID, err.Error(), logs, durationMS)
}

func toLogEntries(reqCtx *common.RequestContext) []store.ProcessingLogEntry {
	entries := make([]store.ProcessingLogEntry, 0, len(reqCtx.Steps))
	for i, step := range reqCtx.Steps {
		meta := map[string]interface{}{}
		if step.Tokens != nil {
			meta["tokens"] = step.Tokens
		}
		if step.Error != "" {
			meta["error"] = step.Error
		}
		entries = append(entries, store.ProcessingLogEntry{
			Step:       step.Name,
			Status:     step.Status,
			StartedAt:  step.StartTime,
			DurationMS: step.Duration,
			Metadata:   meta,
			Seq:        i,
		})
	}
	return entries
}

// Status returns the lightweight state view of a job.
func (c *Controller) Status(ctx context.Context, id string) (*store.Job, error) {
	return c.store.Status(ctx, id)
}

// Get returns the full persisted record.
func (c *Controller) Get(ctx context.Context, id string) (*store.Record, error) {
	return c.store.Get(ctx, id)
}

// List returns a page of jobs.
func (c *Controller) List(ctx context.Context, skip, limit int) ([]store.Job, int, error) {
	return c.store.List(ctx, skip, limit)
}

// Delete removes a job's rows and its blob.
func (c *Controller) Delete(ctx context.Context, id string) error {
	record, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("job: %s not found", id)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	return c.blobs.Delete(record.Job.BlobPath)
}

// SweepStale runs the crash-recovery pass: Processing rows older than
// threshold are marked Failed("interrupted").
func (c *Controller) SweepStale(ctx context.Context, threshold time.Duration) (int, error) {
	return c.store.SweepStaleProcessing(ctx, threshold)
}
