package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStateConstantsMatchLifecycle(t *testing.T) {
	sequence := []JobState{StatePending, StateProcessing, StateCompleted}
	assert.Equal(t, JobState("Pending"), sequence[0])
	assert.Equal(t, JobState("Processing"), sequence[1])
	assert.Equal(t, JobState("Completed"), sequence[2])
}

func TestCompletionInputCarriesAggregates(t *testing.T) {
	in := CompletionInput{
		PageCount:        2,
		TransactionCount: 3,
		OverallConf:      0.91,
		DurationMS:       1500,
	}
	assert.Equal(t, 2, in.PageCount)
	assert.Equal(t, 3, in.TransactionCount)
	assert.InDelta(t, 0.91, in.OverallConf, 1e-9)
}

func TestProcessingLogEntryOrdering(t *testing.T) {
	now := time.Now()
	logs := []ProcessingLogEntry{
		{Step: "pdf_rasterize", Status: "completed", StartedAt: now, Seq: 0},
		{Step: "ocr", Status: "completed", StartedAt: now.Add(time.Second), Seq: 1},
	}
	assert.Less(t, logs[0].Seq, logs[1].Seq)
}
