package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategorySummary is the per-category slice of a statement summary.
type CategorySummary struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// DateRange is the span of non-null transaction dates in a statement.
type DateRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// Summary holds statement-level aggregates computed from persisted
// transactions. TotalDebits is the sum of absolute debit amounts, so
// NetAmount = TotalCredits - TotalDebits.
type Summary struct {
	StatementID       string                     `json:"statement_id"`
	TotalTransactions int                        `json:"total_transactions"`
	TotalCredits      decimal.Decimal            `json:"total_credits"`
	TotalDebits       decimal.Decimal            `json:"total_debits"`
	NetAmount         decimal.Decimal            `json:"net_amount"`
	Categories        map[string]CategorySummary `json:"categories"`
	DateRange         *DateRange                 `json:"date_range"`
}
