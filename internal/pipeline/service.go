// Package pipeline orchestrates the statement processing flow: upload,
// dual text extraction, transaction parsing and the read-side queries.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avolkov/statements/internal/domain"
	"github.com/avolkov/statements/internal/extract"
	"github.com/avolkov/statements/internal/filestore"
	"github.com/avolkov/statements/internal/jobs"
	"github.com/avolkov/statements/internal/llmparse"
	"github.com/avolkov/statements/internal/storage"
	"github.com/avolkov/statements/internal/summary"
)

// Service wires the processing stages together. All collaborators are
// injected so tests can substitute fakes.
type Service struct {
	docs      storage.DocumentRepository
	txs       storage.TransactionRepository
	files     filestore.Store
	extractor *extract.Adapter
	parser    *llmparse.Parser
	publisher jobs.Publisher
	maxBytes  int64
	log       zerolog.Logger

	// inFlight guards against concurrent parse runs for the same statement.
	mu       sync.Mutex
	inFlight map[string]bool
}

func NewService(
	docs storage.DocumentRepository,
	txs storage.TransactionRepository,
	files filestore.Store,
	extractor *extract.Adapter,
	parser *llmparse.Parser,
	publisher jobs.Publisher,
	maxBytes int64,
	log zerolog.Logger,
) *Service {
	return &Service{
		docs:      docs,
		txs:       txs,
		files:     files,
		extractor: extractor,
		parser:    parser,
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
		inFlight:  make(map[string]bool),
	}
}

// Upload validates and stores an uploaded statement PDF, records the
// document and enqueues text extraction. StatementID groups documents; an
// empty statementID starts a new statement.
func (s *Service) Upload(ctx context.Context, userID, statementID, filename string, data []byte) (*domain.Document, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("only PDF files are supported, got %q", filepath.Ext(filename))
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	if statementID == "" {
		statementID = uuid.NewString()
	}

	docID := uuid.NewString()
	storedName := fmt.Sprintf("%s/%s%s", statementID, docID, filepath.Ext(filename))

	locator, err := s.files.Store(ctx, storedName, data)
	if err != nil {
		return nil, fmt.Errorf("storing file: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:               docID,
		UserID:           userID,
		StatementID:      statementID,
		OriginalFilename: filepath.Base(filename),
		StoredFilename:   storedName,
		FileLocator:      locator,
		FileSize:         int64(len(data)),
		UploadDate:       now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.docs.Insert(ctx, doc); err != nil {
		// Best effort cleanup of the orphaned file.
		_ = s.files.Delete(ctx, locator)
		return nil, fmt.Errorf("recording document: %w", err)
	}

	if err := s.publisher.Publish(ctx, &jobs.Task{
		Type:        jobs.TaskTypeExtractText,
		DocumentID:  doc.ID,
		StatementID: statementID,
	}); err != nil {
		s.log.Error().Err(err).Str("document_id", doc.ID).Msg("Failed to enqueue extraction task")
		return nil, fmt.Errorf("enqueueing extraction: %w", err)
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("statement_id", statementID).
		Int64("bytes", doc.FileSize).
		Msg("Document uploaded")

	return doc, nil
}

// HandleTask dispatches queue tasks to the matching processing stage. It is
// registered as the queue consumer's handler.
func (s *Service) HandleTask(ctx context.Context, task *jobs.Task) error {
	switch task.Type {
	case jobs.TaskTypeExtractText:
		return s.runExtraction(ctx, task.DocumentID)
	case jobs.TaskTypeParseTransactions:
		return s.runTransactionParse(ctx, task.StatementID)
	default:
		return fmt.Errorf("unknown task type %q", task.Type)
	}
}

// TriggerExtraction re-enqueues text extraction for a document. Existing
// extraction results are overwritten once the new run completes.
func (s *Service) TriggerExtraction(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, &jobs.Task{
		Type:        jobs.TaskTypeExtractText,
		DocumentID:  doc.ID,
		StatementID: doc.StatementID,
	})
}

// TriggerTransactionParse enqueues transaction parsing for a statement.
// Every document in the statement must have finished text processing first.
func (s *Service) TriggerTransactionParse(ctx context.Context, statementID string) error {
	docs, err := s.docs.ListByStatement(ctx, statementID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return domain.ErrNotFound
	}
	for _, doc := range docs {
		if !doc.TextProcessingCompleted {
			return fmt.Errorf("document %s has not finished text extraction", doc.ID)
		}
	}
	return s.publisher.Publish(ctx, &jobs.Task{
		Type:        jobs.TaskTypeParseTransactions,
		StatementID: statementID,
	})
}

// runExtraction runs both extraction backends over the stored PDF, persists
// the results and chains transaction parsing when every document in the
// statement has its text.
func (s *Service) runExtraction(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", documentID, err)
	}

	if err := s.docs.MarkProcessingStarted(ctx, documentID); err != nil {
		return fmt.Errorf("marking processing started: %w", err)
	}

	pdfData, err := s.files.Read(ctx, doc.FileLocator)
	if err != nil {
		msg := fmt.Sprintf("reading stored file: %v", err)
		doc.TextProcessingCompleted = true
		doc.TextProcessingError = &msg
		if uerr := s.docs.UpdateExtraction(ctx, doc); uerr != nil {
			return fmt.Errorf("persisting file read failure: %w", uerr)
		}
		return nil
	}

	layout, vision := s.extractor.ExtractBoth(ctx, pdfData)
	extract.Apply(doc, layout, vision)

	if err := s.docs.UpdateExtraction(ctx, doc); err != nil {
		return fmt.Errorf("persisting extraction results: %w", err)
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Bool("layout_success", doc.LayoutSuccess).
		Bool("vision_success", doc.VisionSuccess).
		Msg("Text extraction completed")

	ready, err := s.statementReady(ctx, doc.StatementID)
	if err != nil {
		return err
	}
	if ready {
		if err := s.publisher.Publish(ctx, &jobs.Task{
			Type:        jobs.TaskTypeParseTransactions,
			StatementID: doc.StatementID,
		}); err != nil {
			s.log.Error().Err(err).Str("statement_id", doc.StatementID).Msg("Failed to chain parse task")
		}
	}

	return nil
}

func (s *Service) statementReady(ctx context.Context, statementID string) (bool, error) {
	docs, err := s.docs.ListByStatement(ctx, statementID)
	if err != nil {
		return false, fmt.Errorf("listing statement documents: %w", err)
	}
	for _, d := range docs {
		if !d.TextProcessingCompleted {
			return false, nil
		}
	}
	return len(docs) > 0, nil
}

// runTransactionParse parses every document in the statement and atomically
// replaces the statement's transactions. A concurrent run for the same
// statement is dropped.
func (s *Service) runTransactionParse(ctx context.Context, statementID string) error {
	s.mu.Lock()
	if s.inFlight[statementID] {
		s.mu.Unlock()
		s.log.Warn().Str("statement_id", statementID).Msg("Parse already in flight, dropping")
		return nil
	}
	s.inFlight[statementID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, statementID)
		s.mu.Unlock()
	}()

	docs, err := s.docs.ListByStatement(ctx, statementID)
	if err != nil {
		return fmt.Errorf("listing statement documents: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("statement %s: %w", statementID, domain.ErrNotFound)
	}

	var all []*domain.Transaction
	for _, doc := range docs {
		outcome := s.parser.ParseDocument(ctx, doc)
		if outcome.Err != "" {
			s.log.Error().
				Str("document_id", doc.ID).
				Str("error", outcome.Err).
				Msg("Transaction parsing failed for document")
			all = append(all, llmparse.FailedPlaceholder(statementID, outcome.Err, outcome.RawResponse))
			continue
		}
		all = append(all, outcome.Transactions...)
	}

	if err := s.txs.ReplaceForStatement(ctx, statementID, all); err != nil {
		return fmt.Errorf("storing transactions: %w", err)
	}

	s.log.Info().
		Str("statement_id", statementID).
		Int("transactions", len(all)).
		Msg("Transaction parsing completed")

	return nil
}

// GetDocument returns a single document record.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, documentID)
}

// ListDocuments returns documents for a user, optionally scoped to one statement.
func (s *Service) ListDocuments(ctx context.Context, userID, statementID string) ([]*domain.Document, error) {
	return s.docs.ListByUser(ctx, userID, statementID)
}

// DocumentText bundles a document's extraction results for the text endpoint.
type DocumentText struct {
	DocumentID string              `json:"document_id"`
	Layout     extract.Result      `json:"layout"`
	Vision     extract.Result      `json:"vision"`
	Comparison *extract.Comparison `json:"comparison,omitempty"`
	Completed  bool                `json:"text_processing_completed"`
	Error      *string             `json:"text_processing_error,omitempty"`
}

// GetDocumentText returns both extraction results and their comparison.
func (s *Service) GetDocumentText(ctx context.Context, documentID string) (*DocumentText, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	dt := &DocumentText{
		DocumentID: doc.ID,
		Layout:     extract.LayoutResult(doc),
		Vision:     extract.VisionResult(doc),
		Completed:  doc.TextProcessingCompleted,
		Error:      doc.TextProcessingError,
	}
	if doc.TextProcessingCompleted {
		cmp := extract.Compare(doc)
		dt.Comparison = &cmp
	}
	return dt, nil
}

// GetTransactions returns the statement's parsed transactions.
func (s *Service) GetTransactions(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	return s.txs.ListByStatement(ctx, statementID)
}

// GetTransaction returns a single transaction by ID.
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.txs.GetByID(ctx, transactionID)
}

// DeleteTransaction removes a single transaction by ID.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID string) error {
	return s.txs.Delete(ctx, transactionID)
}

// GetSummary computes the statement's aggregate view from its stored
// transactions.
func (s *Service) GetSummary(ctx context.Context, statementID string) (*domain.Summary, error) {
	txs, err := s.txs.ListByStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	return summary.Compute(statementID, txs), nil
}

// DeleteTransactions removes all of a statement's transactions and returns
// how many were deleted.
func (s *Service) DeleteTransactions(ctx context.Context, statementID string) (int64, error) {
	return s.txs.DeleteForStatement(ctx, statementID)
}

// DeleteDocument removes a document record together with its stored file and,
// when it is the statement's last document, the statement's transactions.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.files.Delete(ctx, doc.FileLocator); err != nil {
		s.log.Warn().Err(err).Str("document_id", documentID).Msg("Failed to delete stored file")
	}

	if err := s.docs.Delete(ctx, documentID); err != nil {
		return err
	}

	remaining, err := s.docs.ListByStatement(ctx, doc.StatementID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if _, err := s.txs.DeleteForStatement(ctx, doc.StatementID); err != nil {
			return err
		}
	}
	return nil
}
