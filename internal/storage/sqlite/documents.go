package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avolkov/statements/internal/domain"
)

// DocumentRepository is the SQLite-backed document store.
type DocumentRepository struct {
	storage *Storage
}

func NewDocumentRepository(storage *Storage) *DocumentRepository {
	return &DocumentRepository{storage: storage}
}

const documentColumns = `
	id, user_id, statement_id, original_filename, stored_filename,
	file_locator, file_size, upload_date,
	layout_text, layout_word_count, layout_pages, layout_success,
	vision_text, vision_word_count, vision_pages, vision_success, vision_confidence,
	text_processing_completed, text_processing_error,
	created_at, updated_at`

func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (
			id, user_id, statement_id, original_filename, stored_filename,
			file_locator, file_size, upload_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.storage.DB.ExecContext(ctx, query,
		doc.ID, doc.UserID, doc.StatementID, doc.OriginalFilename,
		doc.StoredFilename, doc.FileLocator, doc.FileSize, doc.UploadDate,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.storage.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID, statementID string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = ?`
	args := []any{userID}
	if statementID != "" {
		query += ` AND statement_id = ?`
		args = append(args, statementID)
	}
	query += ` ORDER BY upload_date DESC`

	return r.queryDocuments(ctx, query, args...)
}

func (r *DocumentRepository) ListByStatement(ctx context.Context, statementID string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE statement_id = ? ORDER BY upload_date`
	return r.queryDocuments(ctx, query, statementID)
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := r.storage.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// MarkProcessingStarted resets the completion flag so a re-run is visible as
// in-flight until both backends have been attempted again.
func (r *DocumentRepository) MarkProcessingStarted(ctx context.Context, id string) error {
	res, err := r.storage.DB.ExecContext(ctx, `
		UPDATE documents
		SET text_processing_completed = 0,
		    text_processing_error = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("mark processing started %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) UpdateExtraction(ctx context.Context, doc *domain.Document) error {
	res, err := r.storage.DB.ExecContext(ctx, `
		UPDATE documents
		SET layout_text = ?, layout_word_count = ?, layout_pages = ?, layout_success = ?,
		    vision_text = ?, vision_word_count = ?, vision_pages = ?, vision_success = ?,
		    vision_confidence = ?,
		    text_processing_completed = ?, text_processing_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`,
		nullString(doc.LayoutText), doc.LayoutWordCount, doc.LayoutPages, doc.LayoutSuccess,
		nullString(doc.VisionText), doc.VisionWordCount, doc.VisionPages, doc.VisionSuccess,
		doc.VisionConfidence,
		doc.TextProcessingCompleted, nullString(doc.TextProcessingError),
		doc.ID,
	)
	if err != nil {
		return fmt.Errorf("update extraction %s: %w", doc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.storage.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc        domain.Document
		layoutText sql.NullString
		visionText sql.NullString
		procErr    sql.NullString
	)

	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.StatementID, &doc.OriginalFilename, &doc.StoredFilename,
		&doc.FileLocator, &doc.FileSize, &doc.UploadDate,
		&layoutText, &doc.LayoutWordCount, &doc.LayoutPages, &doc.LayoutSuccess,
		&visionText, &doc.VisionWordCount, &doc.VisionPages, &doc.VisionSuccess, &doc.VisionConfidence,
		&doc.TextProcessingCompleted, &procErr,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.LayoutText = fromNullString(layoutText)
	doc.VisionText = fromNullString(visionText)
	doc.TextProcessingError = fromNullString(procErr)
	return &doc, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
