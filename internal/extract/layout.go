package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// LayoutBackend reads the PDF's embedded text layer. It is fast and free but
// produces nothing for scanned, image-only documents.
type LayoutBackend struct{}

func NewLayoutBackend() *LayoutBackend {
	return &LayoutBackend{}
}

func (b *LayoutBackend) Name() string { return "layout" }

func (b *LayoutBackend) Extract(ctx context.Context, pdfData []byte) (Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfData), int64(len(pdfData)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	var textBuilder strings.Builder
	totalPages := reader.NumPage()

	for pageIndex := 1; pageIndex <= totalPages; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			textBuilder.WriteString(strings.Join(words, " "))
			textBuilder.WriteString("\n")
		}
	}

	pageCount, err := api.PageCount(bytes.NewReader(pdfData), model.NewDefaultConfiguration())
	if err != nil {
		// The text reader already gave us a page count.
		pageCount = totalPages
	}

	return Result{Text: textBuilder.String(), PageCount: pageCount}, nil
}

var _ Backend = (*LayoutBackend)(nil)
