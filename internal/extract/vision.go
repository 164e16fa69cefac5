package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"google.golang.org/genai"
)

// visionConfidence is the percentage reported for successful OCR runs. The
// model does not report a per-document confidence, so this is a fixed trust
// level for vision-derived text.
const visionConfidence = 90

const ocrSystemPrompt = "You are an expert OCR (Optical Character Recognition) system.\n" +
	"Your task is to extract all text from the attached document with high accuracy.\n\n" +
	"Instructions:\n" +
	"1. Read all text visible in the document, page by page.\n" +
	"2. Maintain the original formatting and layout as much as possible.\n" +
	"3. Include headers, footers, and any text in margins.\n" +
	"4. Preserve numbers, dates, and special characters.\n" +
	"5. If text is unclear or partially visible, indicate with [unclear] or [partial].\n" +
	"6. Return the extracted text in a clean, readable format. Return ONLY the extracted text.\n"

// VisionBackend sends the PDF to a vision model for OCR. It works on scanned
// documents but is slow and bills per call.
type VisionBackend struct {
	modelName string
}

func NewVisionBackend(modelName string) *VisionBackend {
	return &VisionBackend{modelName: modelName}
}

func (b *VisionBackend) Name() string { return "vision" }

func (b *VisionBackend) Extract(ctx context.Context, pdfData []byte) (Result, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: ocrSystemPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "application/pdf",
						Data:     pdfData,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, b.modelName, contents, nil)
	if err != nil {
		return Result{}, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Result{}, fmt.Errorf("empty response from vision model")
	}

	pageCount, err := api.PageCount(bytes.NewReader(pdfData), model.NewDefaultConfiguration())
	if err != nil {
		pageCount = 0
	}

	return Result{Text: text, PageCount: pageCount, Confidence: visionConfidence}, nil
}

var _ Backend = (*VisionBackend)(nil)
