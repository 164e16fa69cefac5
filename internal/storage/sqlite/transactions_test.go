package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/statements/internal/domain"
)

func newTx(id, statementID, amount string) *domain.Transaction {
	return &domain.Transaction{
		ID:                  id,
		StatementID:         statementID,
		Description:         "TEST MERCHANT",
		Amount:              decimal.RequireFromString(amount),
		TransactionType:     "debit",
		Category:            "other",
		ExtractionSource:    domain.SourceLLM,
		ConfidenceScore:     0.9,
		ProcessingCompleted: true,
		CreatedAt:           time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransactionRepository_ReplaceAndList(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	balance := decimal.RequireFromString("1500.25")
	ref := "CHK-42"
	raw := `{"transactions": []}`

	full := newTx("tx-1", "stmt-1", "-45.67")
	full.TransactionDate = &date
	full.Balance = &balance
	full.ReferenceNumber = &ref
	full.RawResponse = &raw

	if err := repo.ReplaceForStatement(ctx, "stmt-1", []*domain.Transaction{full, newTx("tx-2", "stmt-1", "100")}); err != nil {
		t.Fatalf("ReplaceForStatement failed: %v", err)
	}

	txs, err := repo.ListByStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("ListByStatement failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}

	// Dated row sorts first; the undated one has a NULL date.
	got := txs[0]
	if got.ID != "tx-1" {
		// SQLite sorts NULL dates first.
		got = txs[1]
	}
	if !got.Amount.Equal(decimal.RequireFromString("-45.67")) {
		t.Errorf("amount = %s", got.Amount)
	}
	if got.Balance == nil || !got.Balance.Equal(balance) {
		t.Errorf("balance = %v", got.Balance)
	}
	if got.ReferenceNumber == nil || *got.ReferenceNumber != ref {
		t.Errorf("reference = %v", got.ReferenceNumber)
	}
	if got.RawResponse == nil || *got.RawResponse != raw {
		t.Errorf("raw response = %v", got.RawResponse)
	}
	if got.TransactionDate == nil || !got.TransactionDate.Equal(date) {
		t.Errorf("date = %v", got.TransactionDate)
	}
	if got.ExtractionSource != domain.SourceLLM {
		t.Errorf("source = %q", got.ExtractionSource)
	}
}

func TestTransactionRepository_ReplaceDiscardsOldRows(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	first := []*domain.Transaction{
		newTx("old-1", "stmt-1", "-10"),
		newTx("old-2", "stmt-1", "-20"),
		newTx("old-3", "stmt-1", "-30"),
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", first); err != nil {
		t.Fatalf("first replace failed: %v", err)
	}

	second := []*domain.Transaction{newTx("new-1", "stmt-1", "99")}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", second); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}

	txs, err := repo.ListByStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("ListByStatement failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "new-1" {
		t.Errorf("got %d rows, want only new-1", len(txs))
	}
}

func TestTransactionRepository_ReplaceScopedToStatement(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	if err := repo.ReplaceForStatement(ctx, "stmt-a", []*domain.Transaction{newTx("a-1", "stmt-a", "-1")}); err != nil {
		t.Fatalf("replace stmt-a failed: %v", err)
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-b", []*domain.Transaction{newTx("b-1", "stmt-b", "-2")}); err != nil {
		t.Fatalf("replace stmt-b failed: %v", err)
	}

	a, err := repo.ListByStatement(ctx, "stmt-a")
	if err != nil {
		t.Fatalf("list stmt-a failed: %v", err)
	}
	if len(a) != 1 {
		t.Errorf("stmt-a has %d rows, want 1 (other statements untouched)", len(a))
	}
}

func TestTransactionRepository_ReplaceWithEmptySet(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	if err := repo.ReplaceForStatement(ctx, "stmt-1", []*domain.Transaction{newTx("tx-1", "stmt-1", "-5")}); err != nil {
		t.Fatalf("seed replace failed: %v", err)
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", nil); err != nil {
		t.Fatalf("empty replace failed: %v", err)
	}

	txs, err := repo.ListByStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("ListByStatement failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("got %d rows, want 0", len(txs))
	}
}

func TestTransactionRepository_GetByID(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	seed := []*domain.Transaction{
		newTx("tx-1", "stmt-1", "-45.67"),
		newTx("tx-2", "stmt-1", "100"),
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", seed); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, err := repo.GetByID(ctx, "tx-2")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != "tx-2" || !got.Amount.Equal(decimal.RequireFromString("100")) {
		t.Errorf("got %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing ID error = %v, want ErrNotFound", err)
	}
}

func TestTransactionRepository_Delete(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	seed := []*domain.Transaction{
		newTx("tx-1", "stmt-1", "-1"),
		newTx("tx-2", "stmt-1", "-2"),
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", seed); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	if err := repo.Delete(ctx, "tx-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	txs, err := repo.ListByStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("ListByStatement failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "tx-2" {
		t.Errorf("got %d rows, want only tx-2", len(txs))
	}

	if err := repo.Delete(ctx, "tx-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestTransactionRepository_DeleteForStatement(t *testing.T) {
	repo := NewTransactionRepository(testStorage(t))
	ctx := context.Background()

	seed := []*domain.Transaction{
		newTx("tx-1", "stmt-1", "-1"),
		newTx("tx-2", "stmt-1", "-2"),
	}
	if err := repo.ReplaceForStatement(ctx, "stmt-1", seed); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	deleted, err := repo.DeleteForStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("DeleteForStatement failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	deleted, err = repo.DeleteForStatement(ctx, "stmt-1")
	if err != nil {
		t.Fatalf("second DeleteForStatement failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second delete = %d, want 0", deleted)
	}
}
