package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents one normalized transaction parsed from a statement.
// Amount is signed: negative for debits, positive for credits. The sign is
// normalized against TransactionType at parse time, so persisted rows always
// satisfy the sign/type invariant.
type Transaction struct {
	ID              string
	StatementID     string
	TransactionDate *time.Time // statements sometimes omit the date
	Description     string
	Amount          decimal.Decimal
	TransactionType string
	Balance         *decimal.Decimal
	ReferenceNumber *string
	Category        string

	ExtractionSource ExtractionSource
	// ConfidenceScore is in [0,1] and only meaningful for SourceLLM rows.
	ConfidenceScore float64
	// RawResponse keeps the model's unprocessed output for auditing.
	RawResponse *string

	ProcessingCompleted bool
	ProcessingError     *string

	CreatedAt time.Time
}

// DebitTypes and CreditTypes drive amount-sign normalization: a type listed
// in DebitTypes forces amount <= 0, one in CreditTypes forces amount >= 0.
// Types in neither set keep the model-reported sign.
var (
	DebitTypes  = map[string]bool{"debit": true, "withdrawal": true, "payment": true, "purchase": true, "fee": true}
	CreditTypes = map[string]bool{"credit": true, "deposit": true, "refund": true}
)
