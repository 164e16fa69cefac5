package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/avolkov/statements/internal/api/middleware"
	"github.com/avolkov/statements/internal/domain"
	"github.com/avolkov/statements/internal/jobs"
	"github.com/avolkov/statements/internal/pipeline"
)

// maxMultipartMemory bounds how much of an upload is held in memory before
// spooling to disk.
const maxMultipartMemory = 32 << 20

// DocumentsHandler handles document-related endpoints.
type DocumentsHandler struct {
	svc *pipeline.Service
	log zerolog.Logger
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(svc *pipeline.Service, log zerolog.Logger) *DocumentsHandler {
	return &DocumentsHandler{svc: svc, log: log}
}

// Upload handles POST /api/documents. It accepts a multipart form with a
// "pdf_file" part ("file" also works) plus optional "user_id" and
// "statement_id" fields.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("pdf_file")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "A 'pdf_file' part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	userID := r.FormValue("user_id")
	if userID == "" {
		userID = "default"
	}
	statementID := r.FormValue("statement_id")

	doc, err := h.svc.Upload(ctx, userID, statementID, header.Filename, data)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", header.Filename).Msg("Upload rejected")
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, documentView(doc))
}

// List handles GET /api/documents with optional user_id and statement_id
// query filters.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	userID := query.Get("user_id")
	if userID == "" {
		userID = "default"
	}

	docs, err := h.svc.ListDocuments(ctx, userID, query.Get("statement_id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list documents")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	views := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView(d))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": views,
		"count":     len(views),
	})
}

// Get handles GET /api/documents/{id}.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request, documentID string) {
	doc, err := h.svc.GetDocument(r.Context(), documentID)
	if err != nil {
		h.writeLookupError(w, err, documentID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, documentView(doc))
}

// Delete handles DELETE /api/documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request, documentID string) {
	if err := h.svc.DeleteDocument(r.Context(), documentID); err != nil {
		h.writeLookupError(w, err, documentID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"document_id": documentID,
		"status":      "deleted",
	})
}

// GetText handles GET /api/documents/{id}/text. It returns both extraction
// results and their comparison.
func (h *DocumentsHandler) GetText(w http.ResponseWriter, r *http.Request, documentID string) {
	text, err := h.svc.GetDocumentText(r.Context(), documentID)
	if err != nil {
		h.writeLookupError(w, err, documentID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, text)
}

// TriggerExtraction handles POST /api/documents/{id}/extract-text. It
// re-enqueues text extraction; previous results are overwritten when the
// new run completes.
func (h *DocumentsHandler) TriggerExtraction(w http.ResponseWriter, r *http.Request, documentID string) {
	if err := h.svc.TriggerExtraction(r.Context(), documentID); err != nil {
		h.writeLookupError(w, err, documentID)
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"document_id": documentID,
		"status":      "extraction_queued",
	})
}

func (h *DocumentsHandler) writeLookupError(w http.ResponseWriter, err error, documentID string) {
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Document not found")
		return
	}
	h.log.Error().Err(err).Str("document_id", documentID).Msg("Document operation failed")
	middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// documentView shapes a document for API responses. Extracted text bodies are
// deliberately omitted; the text endpoint serves those.
func documentView(d *domain.Document) map[string]interface{} {
	view := map[string]interface{}{
		"id":                        d.ID,
		"user_id":                   d.UserID,
		"statement_id":              d.StatementID,
		"original_filename":         d.OriginalFilename,
		"file_size":                 d.FileSize,
		"upload_date":               d.UploadDate.Format(time.RFC3339),
		"layout_success":            d.LayoutSuccess,
		"layout_word_count":         d.LayoutWordCount,
		"vision_success":            d.VisionSuccess,
		"vision_word_count":         d.VisionWordCount,
		"vision_confidence":         d.VisionConfidence,
		"text_processing_completed": d.TextProcessingCompleted,
	}
	if d.TextProcessingError != nil {
		view["text_processing_error"] = *d.TextProcessingError
	}
	return view
}

// StatementsHandler handles statement-scoped endpoints.
type StatementsHandler struct {
	svc *pipeline.Service
	log zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(svc *pipeline.Service, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{svc: svc, log: log}
}

// ExtractTransactions handles POST /api/statements/{id}/extract-transactions.
func (h *StatementsHandler) ExtractTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	if err := h.svc.TriggerTransactionParse(r.Context(), statementID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Statement not found")
			return
		}
		h.log.Warn().Err(err).Str("statement_id", statementID).Msg("Transaction parse rejected")
		middleware.WriteError(w, http.StatusConflict, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"statement_id": statementID,
		"status":       "parsing_queued",
	})
}

// ListTransactions handles GET /api/statements/{id}/transactions.
func (h *StatementsHandler) ListTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	txs, err := h.svc.GetTransactions(r.Context(), statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	views := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		views = append(views, transactionView(tx))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": statementID,
		"transactions": views,
		"count":        len(views),
	})
}

// DeleteTransactions handles DELETE /api/statements/{id}/transactions.
func (h *StatementsHandler) DeleteTransactions(w http.ResponseWriter, r *http.Request, statementID string) {
	deleted, err := h.svc.DeleteTransactions(r.Context(), statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to delete transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id": statementID,
		"deleted":      deleted,
	})
}

// Summary handles GET /api/statements/{id}/summary.
func (h *StatementsHandler) Summary(w http.ResponseWriter, r *http.Request, statementID string) {
	summary, err := h.svc.GetSummary(r.Context(), statementID)
	if err != nil {
		h.log.Error().Err(err).Str("statement_id", statementID).Msg("Failed to compute summary")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute summary")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

func transactionView(tx *domain.Transaction) map[string]interface{} {
	view := map[string]interface{}{
		"id":                   tx.ID,
		"statement_id":         tx.StatementID,
		"description":          tx.Description,
		"amount":               tx.Amount,
		"transaction_type":     tx.TransactionType,
		"category":             tx.Category,
		"extraction_source":    string(tx.ExtractionSource),
		"confidence_score":     tx.ConfidenceScore,
		"processing_completed": tx.ProcessingCompleted,
		"created_at":           tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.TransactionDate != nil {
		view["transaction_date"] = tx.TransactionDate.Format("2006-01-02")
	}
	if tx.Balance != nil {
		view["balance"] = *tx.Balance
	}
	if tx.ReferenceNumber != nil {
		view["reference_number"] = *tx.ReferenceNumber
	}
	if tx.ProcessingError != nil {
		view["processing_error"] = *tx.ProcessingError
	}
	return view
}

// TransactionsHandler handles single-transaction endpoints.
type TransactionsHandler struct {
	svc *pipeline.Service
	log zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc *pipeline.Service, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc, log: log}
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request, transactionID string) {
	tx, err := h.svc.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeLookupError(w, err, transactionID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, transactionView(tx))
}

// Delete handles DELETE /api/transactions/{id}.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request, transactionID string) {
	if err := h.svc.DeleteTransaction(r.Context(), transactionID); err != nil {
		h.writeLookupError(w, err, transactionID)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"transaction_id": transactionID,
		"status":         "deleted",
	})
}

func (h *TransactionsHandler) writeLookupError(w http.ResponseWriter, err error, transactionID string) {
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Transaction operation failed")
	middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// TasksHandler handles task status endpoints.
type TasksHandler struct {
	store jobs.TaskStore
	log   zerolog.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(store jobs.TaskStore, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{store: store, log: log}
}

// Get handles GET /api/tasks/{id}.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Task not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, task)
}

// List handles GET /api/tasks.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.TaskFilter{
		DocumentID:  query.Get("document_id"),
		StatementID: query.Get("statement_id"),
		Status:      jobs.TaskStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	tasks, err := h.store.ListTasks(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tasks")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": tasks,
		"count": len(tasks),
	})
}
