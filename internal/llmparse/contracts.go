// Package llmparse turns extracted statement text into normalized
// transaction records by prompting a language model and parsing whatever
// it returns.
package llmparse

import "context"

// Completer is the language-model call contract. Implementations make no
// structured-output guarantee; callers must parse free text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
