package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avolkov/statements/internal/domain"
)

// TransactionRepository is the SQLite-backed transaction store. Amounts are
// stored as decimal strings to avoid float drift.
type TransactionRepository struct {
	storage *Storage
}

func NewTransactionRepository(storage *Storage) *TransactionRepository {
	return &TransactionRepository{storage: storage}
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.storage.DB.QueryRowContext(ctx, `
		SELECT id, statement_id, transaction_date, description, amount,
		       transaction_type, balance, reference_number, category,
		       extraction_source, confidence_score, raw_response,
		       processing_completed, processing_error, created_at
		FROM transactions
		WHERE id = ?
	`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (r *TransactionRepository) ListByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	rows, err := r.storage.DB.QueryContext(ctx, `
		SELECT id, statement_id, transaction_date, description, amount,
		       transaction_type, balance, reference_number, category,
		       extraction_source, confidence_score, raw_response,
		       processing_completed, processing_error, created_at
		FROM transactions
		WHERE statement_id = ?
		ORDER BY transaction_date, created_at
	`, statementID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ReplaceForStatement removes all of the statement's rows and inserts the
// new set within a single SQL transaction, so a failure leaves the previous
// rows untouched.
func (r *TransactionRepository) ReplaceForStatement(ctx context.Context, statementID string, txs []*domain.Transaction) error {
	dbTx, err := r.storage.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM transactions WHERE statement_id = ?`, statementID); err != nil {
		return fmt.Errorf("clear transactions for %s: %w", statementID, err)
	}

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, statement_id, transaction_date, description, amount,
			transaction_type, balance, reference_number, category,
			extraction_source, confidence_score, raw_response,
			processing_completed, processing_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		createdAt := tx.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			tx.ID, tx.StatementID, nullTime(tx.TransactionDate), tx.Description,
			tx.Amount.String(), tx.TransactionType, nullDecimal(tx.Balance),
			nullString(tx.ReferenceNumber), tx.Category,
			string(tx.ExtractionSource), tx.ConfidenceScore, nullString(tx.RawResponse),
			tx.ProcessingCompleted, nullString(tx.ProcessingError), createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

func (r *TransactionRepository) DeleteForStatement(ctx context.Context, statementID string) (int64, error) {
	res, err := r.storage.DB.ExecContext(ctx, `DELETE FROM transactions WHERE statement_id = ?`, statementID)
	if err != nil {
		return 0, fmt.Errorf("delete transactions for %s: %w", statementID, err)
	}
	return res.RowsAffected()
}

func (r *TransactionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.storage.DB.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx        domain.Transaction
		txDate    sql.NullTime
		amount    string
		balance   sql.NullString
		reference sql.NullString
		source    string
		raw       sql.NullString
		procErr   sql.NullString
	)

	err := row.Scan(
		&tx.ID, &tx.StatementID, &txDate, &tx.Description, &amount,
		&tx.TransactionType, &balance, &reference, &tx.Category,
		&source, &tx.ConfidenceScore, &raw,
		&tx.ProcessingCompleted, &procErr, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	if balance.Valid {
		b, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, fmt.Errorf("balance %q: %w", balance.String, err)
		}
		tx.Balance = &b
	}
	if txDate.Valid {
		t := txDate.Time
		tx.TransactionDate = &t
	}
	tx.ReferenceNumber = fromNullString(reference)
	tx.ExtractionSource = domain.ExtractionSource(source)
	tx.RawResponse = fromNullString(raw)
	tx.ProcessingError = fromNullString(procErr)
	return &tx, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
