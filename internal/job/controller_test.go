package job

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bosocmputer/statementpipeline/configs"
	"github.com/bosocmputer/statementpipeline/internal/common"
)

func testController() *Controller {
	return &Controller{cfg: &configs.Config{
		AllowedExt:     []string{".pdf"},
		MaxUploadBytes: 1024,
	}}
}

func TestValidateRejectsWrongExtension(t *testing.T) {
	c := testController()
	err := c.validate("statement.docx", []byte("x"))
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUpload))
}

func TestValidateRejectsOversizedUpload(t *testing.T) {
	c := testController()
	big := make([]byte, 2048)
	err := c.validate("statement.pdf", big)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUpload))
}

func TestValidateRejectsEmptyUpload(t *testing.T) {
	c := testController()
	err := c.validate("statement.pdf", []byte{})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidUpload))
}

func TestValidateAcceptsWellFormedUpload(t *testing.T) {
	c := testController()
	err := c.validate("statement.PDF", []byte("%PDF-1.4"))
	assert.NoError(t, err)
}

func TestContainsExtCaseInsensitive(t *testing.T) {
	assert.True(t, containsExt([]string{".pdf"}, ".PDF"))
	assert.False(t, containsExt([]string{".pdf"}, ".docx"))
}

func TestToLogEntriesPreservesOrderAndErrors(t *testing.T) {
	reqCtx := common.NewRequestContext("job-1")
	reqCtx.StartStep("pdf_rasterize")
	reqCtx.EndStep("completed", nil, nil)
	reqCtx.StartStep("ocr")
	reqCtx.EndStep("failed", nil, assert.AnError)

	entries := toLogEntries(reqCtx)
	assert.Len(t, entries, 2)
	assert.Equal(t, "pdf_rasterize", entries[0].Step)
	assert.Equal(t, 0, entries[0].Seq)
	assert.Equal(t, "ocr", entries[1].Step)
	assert.Equal(t, "failed", entries[1].Status)
	assert.NotEmpty(t, entries[1].Metadata["error"])
}
