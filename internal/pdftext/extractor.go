package pdftext

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"paperboy/internal/logging"
)

// Extractor pulls text content out of downloaded PDFs using pdfcpu.
//
// pdfcpu has no direct text extraction API, so pages are extracted as
// content files into a scratch directory and read back in page order.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor constructs an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{logger: logger.With(logging.String(logging.FieldComponent, "pdftext.extractor"))}
}

// Extract returns the concatenated text of every page in the PDF.
func (e *Extractor) Extract(pdfPath string) (string, error) {
	pdfCtx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return "", fmt.Errorf("read pdf %s: %w", pdfPath, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return "", fmt.Errorf("pdf %s has no pages", pdfPath)
	}

	outDir, err := os.MkdirTemp("", "paperboy-extract-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(pdfPath, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract content from %s: %w", pdfPath, err)
	}

	var builder strings.Builder
	pagesRead := 0
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		content, err := os.ReadFile(filepath.Join(outDir, fmt.Sprintf("Content_page_%d.txt", pageNum)))
		if err != nil {
			content, err = os.ReadFile(filepath.Join(outDir, fmt.Sprintf("Content_page_%d", pageNum)))
		}
		if err != nil {
			continue
		}
		if pagesRead > 0 {
			builder.WriteString("\n\n")
		}
		builder.Write(content)
		pagesRead++
	}
	if pagesRead == 0 {
		return "", fmt.Errorf("no extractable text in %s", pdfPath)
	}

	e.logger.Debug("extracted pdf text",
		logging.String("pdf", pdfPath),
		logging.Int("pages", pagesRead),
		logging.Int("chars", builder.Len()))
	return builder.String(), nil
}
