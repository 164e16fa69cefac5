package storage

import (
	"context"

	"github.com/avolkov/statements/internal/domain"
)

// DocumentRepository is the persistence contract for Document records.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ListByUser returns a user's documents, optionally filtered by
	// statement. An empty statementID means no filter.
	ListByUser(ctx context.Context, userID, statementID string) ([]*domain.Document, error)
	ListByStatement(ctx context.Context, statementID string) ([]*domain.Document, error)
	// MarkProcessingStarted resets the completion flag for the duration of
	// an extraction run.
	MarkProcessingStarted(ctx context.Context, id string) error
	// UpdateExtraction persists both backends' results and the aggregate
	// completion flag and error.
	UpdateExtraction(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, id string) error
}

// TransactionRepository is the persistence contract for Transaction records.
type TransactionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error)
	// ReplaceForStatement atomically removes all of the statement's rows and
	// inserts the new set. If it returns an error the previous rows are
	// retained unchanged.
	ReplaceForStatement(ctx context.Context, statementID string, txs []*domain.Transaction) error
	// DeleteForStatement removes all rows for the statement and reports how
	// many were deleted.
	DeleteForStatement(ctx context.Context, statementID string) (int64, error)
	Delete(ctx context.Context, id string) error
}
