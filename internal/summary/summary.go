// Package summary aggregates a statement's parsed transactions into totals.
package summary

import (
	"github.com/avolkov/statements/internal/domain"
)

// Compute builds the aggregate view of a statement. Only rows that completed
// processing contribute; failed placeholder rows are skipped. The result is a
// pure function of its input, so recomputing is always safe.
func Compute(statementID string, txs []*domain.Transaction) *domain.Summary {
	s := &domain.Summary{
		StatementID: statementID,
		Categories:  make(map[string]domain.CategorySummary),
	}

	for _, tx := range txs {
		if !tx.ProcessingCompleted {
			continue
		}
		s.TotalTransactions++

		if tx.Amount.IsPositive() {
			s.TotalCredits = s.TotalCredits.Add(tx.Amount)
		} else {
			s.TotalDebits = s.TotalDebits.Add(tx.Amount.Abs())
		}

		cat := tx.Category
		if cat == "" {
			cat = "other"
		}
		entry := s.Categories[cat]
		entry.Count++
		entry.Amount = entry.Amount.Add(tx.Amount)
		s.Categories[cat] = entry

		if tx.TransactionDate != nil {
			d := *tx.TransactionDate
			if s.DateRange == nil {
				s.DateRange = &domain.DateRange{Earliest: d, Latest: d}
			} else {
				if d.Before(s.DateRange.Earliest) {
					s.DateRange.Earliest = d
				}
				if d.After(s.DateRange.Latest) {
					s.DateRange.Latest = d
				}
			}
		}
	}

	s.NetAmount = s.TotalCredits.Sub(s.TotalDebits)
	return s
}
