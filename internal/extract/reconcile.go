package extract

import (
	"strings"

	"github.com/avolkov/statements/internal/domain"
)

// Apply persists both extraction results verbatim onto the document and
// marks text processing completed. Neither result "wins": both are retained
// and the parsing stage chooses between them later. When both backends
// failed the aggregate error concatenates both messages; completion is still
// set, since extraction failure is terminal rather than retried.
func Apply(doc *domain.Document, layout, vision Result) {
	doc.LayoutSuccess = layout.Success
	doc.LayoutText = textOrNil(layout)
	doc.LayoutWordCount = layout.WordCount
	doc.LayoutPages = layout.PageCount

	doc.VisionSuccess = vision.Success
	doc.VisionText = textOrNil(vision)
	doc.VisionWordCount = vision.WordCount
	doc.VisionPages = vision.PageCount
	doc.VisionConfidence = vision.Confidence

	doc.TextProcessingCompleted = true
	if !layout.Success && !vision.Success {
		msg := "layout: " + layout.Error + "; vision: " + vision.Error
		doc.TextProcessingError = &msg
	} else {
		doc.TextProcessingError = nil
	}
}

func textOrNil(r Result) *string {
	if !r.Success {
		return nil
	}
	t := r.Text
	return &t
}

// LayoutResult reconstructs the layout extraction result from a document's
// persisted fields.
func LayoutResult(doc *domain.Document) Result {
	r := Result{
		Success:   doc.LayoutSuccess,
		WordCount: doc.LayoutWordCount,
		PageCount: doc.LayoutPages,
	}
	if doc.LayoutText != nil {
		r.Text = *doc.LayoutText
	}
	return r
}

// VisionResult reconstructs the vision extraction result from a document's
// persisted fields.
func VisionResult(doc *domain.Document) Result {
	r := Result{
		Success:    doc.VisionSuccess,
		WordCount:  doc.VisionWordCount,
		PageCount:  doc.VisionPages,
		Confidence: doc.VisionConfidence,
	}
	if doc.VisionText != nil {
		r.Text = *doc.VisionText
	}
	return r
}

// Comparison is the structural diff between the two persisted extraction
// results, exposed for manual inspection.
type Comparison struct {
	LayoutPresent bool `json:"layout_present"`
	VisionPresent bool `json:"vision_present"`
	// WordCountDelta is vision minus layout.
	WordCountDelta   int `json:"word_count_delta"`
	VisionConfidence int `json:"vision_confidence"`
	// SimilarityScore is the Jaccard index over lowercased word sets,
	// only computed when both backends produced text.
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

// Compare computes the comparison from a document's persisted extraction
// fields.
func Compare(doc *domain.Document) Comparison {
	cmp := Comparison{
		LayoutPresent:    doc.LayoutSuccess && doc.LayoutText != nil && *doc.LayoutText != "",
		VisionPresent:    doc.VisionSuccess && doc.VisionText != nil && *doc.VisionText != "",
		WordCountDelta:   doc.VisionWordCount - doc.LayoutWordCount,
		VisionConfidence: doc.VisionConfidence,
	}

	if cmp.LayoutPresent && cmp.VisionPresent {
		score := jaccard(*doc.LayoutText, *doc.VisionText)
		cmp.SimilarityScore = &score
	}
	return cmp
}

func jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	overlap := 0
	for w := range setA {
		if setB[w] {
			overlap++
		}
	}
	union := len(setA) + len(setB) - overlap
	if union == 0 {
		return 0
	}
	return float64(overlap) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
