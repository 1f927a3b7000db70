// Package rasterize turns a PDF into ordered page images and exposes its
// metadata without a full render.
package rasterize

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Metadata is the subset of PDF document properties exposed without
// rendering any page.
type Metadata struct {
	PageCount int
	Title     string
	Author    string
	Creator   string
	Producer  string
	Created   time.Time
	Modified  time.Time
}

// Options controls how PDF pages are rendered to images.
type Options struct {
	DPI       int
	OutputDir string
}

// Rasterizer converts PDFs to page images. Metadata comes from pdfcpu (pure
// Go, no rendering); when pdfcpu reports zero pages, the page count is read
// through github.com/ledongthuc/pdf instead. Rendering itself is done by the
// external pdftoppm tool, since neither library renders raster pages.
type Rasterizer struct{}

// New creates a Rasterizer.
func New() *Rasterizer {
	return &Rasterizer{}
}

// GetMetadata reads page count and document properties without rendering.
func (r *Rasterizer) GetMetadata(path string) (Metadata, error) {
	info, err := api.PDFInfo(path, nil, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("rasterize: read pdf info: %w", err)
	}

	meta := Metadata{
		PageCount: info.PageCount,
		Title:     info.Title,
		Author:    info.Author,
		Creator:   info.Creator,
		Producer:  info.Producer,
	}
	if info.CreationDate != "" {
		if t, err := time.Parse("2006-01-02T15:04:05Z07:00", info.CreationDate); err == nil {
			meta.Created = t
		}
	}
	if info.ModDate != "" {
		if t, err := time.Parse("2006-01-02T15:04:05Z07:00", info.ModDate); err == nil {
			meta.Modified = t
		}
	}

	if meta.PageCount == 0 {
		if n, err := pageCountFallback(path); err == nil {
			meta.PageCount = n
		}
	}
	return meta, nil
}

// pageCountFallback cross-checks the page count via the text layer when
// pdfcpu's own metadata read comes back empty.
func pageCountFallback(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return r.NumPage(), nil
}

// Rasterize renders every page of the PDF at path to a PNG at opts.DPI,
// returning the ordered output paths. Rendering is atomic: any page failure
// fails the whole call, and partial output is removed.
func (r *Rasterizer) Rasterize(path string, opts Options) ([]string, error) {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("rasterize: create output dir: %w", err)
	}

	outPattern := filepath.Join(opts.OutputDir, "page")
	cmd := exec.Command("pdftoppm", "-png", "-r", strconv.Itoa(opts.DPI), path, outPattern)
	if out, err := cmd.CombinedOutput(); err != nil {
		if partial, _ := filepath.Glob(outPattern + "-*.png"); len(partial) > 0 {
			cleanup(partial)
		}
		return nil, fmt.Errorf("rasterize: pdftoppm failed: %w (%s)", err, string(out))
	}

	matches, err := filepath.Glob(outPattern + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("rasterize: glob pages: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("rasterize: no pages produced")
	}

	pages := sortNumerically(matches)
	for _, p := range pages {
		if err := normalizeImage(p); err != nil {
			cleanup(pages)
			return nil, fmt.Errorf("rasterize: normalize page %s: %w", p, err)
		}
	}
	return pages, nil
}

// normalizeImage re-encodes the rendered page through imaging so format and
// orientation are consistent regardless of what pdftoppm produced.
func normalizeImage(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}

// Cleanup removes the rendered page images, called by the orchestrator once
// a pipeline run has finished if the cleanup option is enabled.
func Cleanup(paths []string) {
	cleanup(paths)
}

func cleanup(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

func sortNumerically(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}
