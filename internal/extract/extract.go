// Package extract runs the two text-extraction backends over uploaded PDFs
// and reconciles their results onto the document record.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Result is the uniform outcome of one extraction backend. Confidence is a
// 0-100 percentage and only set by the vision backend.
type Result struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
	PageCount  int    `json:"pages"`
	Confidence int    `json:"confidence,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Backend extracts text from raw PDF bytes.
type Backend interface {
	Name() string
	Extract(ctx context.Context, pdfData []byte) (Result, error)
}

// Adapter runs both backends with isolation: a failure or panic in one
// backend never prevents the other from running, and is captured into
// Result.Error instead of propagated.
type Adapter struct {
	layout  Backend
	vision  Backend
	timeout time.Duration
	log     zerolog.Logger
}

func NewAdapter(layout, vision Backend, timeout time.Duration, log zerolog.Logger) *Adapter {
	return &Adapter{layout: layout, vision: vision, timeout: timeout, log: log}
}

// ExtractBoth attempts both backends sequentially and returns both results.
func (a *Adapter) ExtractBoth(ctx context.Context, pdfData []byte) (layout, vision Result) {
	layout = a.run(ctx, a.layout, pdfData)
	vision = a.run(ctx, a.vision, pdfData)
	return layout, vision
}

func (a *Adapter) run(ctx context.Context, backend Backend, pdfData []byte) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			a.log.Error().Str("backend", backend.Name()).Interface("panic", p).Msg("Extraction backend panicked")
			res = Result{Success: false, Error: fmt.Sprintf("%s extraction panicked: %v", backend.Name(), p)}
		}
	}()

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := backend.Extract(callCtx, pdfData)
	if err != nil {
		a.log.Warn().Str("backend", backend.Name()).Err(err).Msg("Extraction backend failed")
		return Result{Success: false, Error: err.Error()}
	}

	result.Success = true
	result.WordCount = len(strings.Fields(result.Text))
	result.Error = ""

	a.log.Info().
		Str("backend", backend.Name()).
		Int("pages", result.PageCount).
		Int("word_count", result.WordCount).
		Dur("duration", time.Since(started)).
		Msg("Extraction backend succeeded")

	return result
}
