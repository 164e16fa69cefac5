package domain

import (
	"time"
)

// ExtractionSource identifies which backend produced a piece of extracted data.
type ExtractionSource string

const (
	// SourceLayout is deterministic extraction from the PDF's text layer.
	SourceLayout ExtractionSource = "layout"
	// SourceVision is OCR via a vision model over rendered pages.
	SourceVision ExtractionSource = "vision"
	// SourceLLM marks data produced by the language-model parsing stage.
	SourceLLM ExtractionSource = "llm"
)

// Document represents one uploaded statement PDF and its extraction state.
// The two completion flags double as the document's processing state: a
// document with TextProcessingCompleted=false is either freshly uploaded or
// mid-extraction; errors are recorded in the error fields, never as a
// separate status.
type Document struct {
	ID               string
	UserID           string
	StatementID      string
	OriginalFilename string
	StoredFilename   string
	FileLocator      string
	FileSize         int64
	UploadDate       time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Layout-based extraction result.
	LayoutText      *string
	LayoutWordCount int
	LayoutPages     int
	LayoutSuccess   bool

	// Vision-based extraction result. Confidence is a 0-100 percentage.
	VisionText       *string
	VisionWordCount  int
	VisionPages      int
	VisionSuccess    bool
	VisionConfidence int

	TextProcessingCompleted bool
	TextProcessingError     *string
}

// BestText returns the preferred extracted text for downstream parsing:
// vision text when present and non-empty, else layout text. The second
// return value names the source; ok is false when neither backend produced
// usable text.
func (d *Document) BestText() (text string, source ExtractionSource, ok bool) {
	if d.VisionSuccess && d.VisionText != nil && *d.VisionText != "" {
		return *d.VisionText, SourceVision, true
	}
	if d.LayoutSuccess && d.LayoutText != nil && *d.LayoutText != "" {
		return *d.LayoutText, SourceLayout, true
	}
	return "", "", false
}
