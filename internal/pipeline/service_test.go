package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avolkov/statements/internal/domain"
	"github.com/avolkov/statements/internal/extract"
	"github.com/avolkov/statements/internal/jobs"
	"github.com/avolkov/statements/internal/llmparse"
	"github.com/avolkov/statements/internal/logger"
)

// fakeDocRepo is an in-memory document repository.
type fakeDocRepo struct {
	mu   sync.Mutex
	docs map[string]*domain.Document
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{docs: make(map[string]*domain.Document)}
}

func (r *fakeDocRepo) Insert(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocRepo) ListByUser(ctx context.Context, userID, statementID string) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Document
	for _, doc := range r.docs {
		if doc.UserID != userID {
			continue
		}
		if statementID != "" && doc.StatementID != statementID {
			continue
		}
		cp := *doc
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeDocRepo) ListByStatement(ctx context.Context, statementID string) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Document
	for _, doc := range r.docs {
		if doc.StatementID == statementID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDocRepo) MarkProcessingStarted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.TextProcessingCompleted = false
	doc.TextProcessingError = nil
	return nil
}

func (r *fakeDocRepo) UpdateExtraction(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *fakeDocRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

// fakeTxRepo is an in-memory transaction repository.
type fakeTxRepo struct {
	mu           sync.Mutex
	byStatement  map[string][]*domain.Transaction
	replaceCalls int
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byStatement: make(map[string][]*domain.Transaction)}
}

func (r *fakeTxRepo) ListByStatement(ctx context.Context, statementID string) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Transaction(nil), r.byStatement[statementID]...), nil
}

func (r *fakeTxRepo) ReplaceForStatement(ctx context.Context, statementID string, txs []*domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCalls++
	r.byStatement[statementID] = append([]*domain.Transaction(nil), txs...)
	return nil
}

func (r *fakeTxRepo) DeleteForStatement(ctx context.Context, statementID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.byStatement[statementID]))
	delete(r.byStatement, statementID)
	return n, nil
}

func (r *fakeTxRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, txs := range r.byStatement {
		for _, tx := range txs {
			if tx.ID == id {
				return tx, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeTxRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for stmtID, txs := range r.byStatement {
		for i, tx := range txs {
			if tx.ID == id {
				r.byStatement[stmtID] = append(txs[:i:i], txs[i+1:]...)
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

// fakeFileStore keeps files in a map.
type fakeFileStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	readErr error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[string][]byte)}
}

func (s *fakeFileStore) Store(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	return name, nil
}

func (s *fakeFileStore) Read(ctx context.Context, locator string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	data, ok := s.files[locator]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (s *fakeFileStore) Delete(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, locator)
	return nil
}

// fakePublisher records published tasks.
type fakePublisher struct {
	mu    sync.Mutex
	tasks []*jobs.Task
}

func (p *fakePublisher) Publish(ctx context.Context, task *jobs.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []*jobs.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*jobs.Task(nil), p.tasks...)
}

// scriptedBackend implements extract.Backend.
type scriptedBackend struct {
	name string
	text string
	err  error
}

func (b *scriptedBackend) Name() string { return b.name }

func (b *scriptedBackend) Extract(ctx context.Context, pdfData []byte) (extract.Result, error) {
	if b.err != nil {
		return extract.Result{}, b.err
	}
	return extract.Result{Text: b.text, PageCount: 1, Confidence: 90}, nil
}

// scriptedCompleter implements llmparse.Completer.
type scriptedCompleter struct {
	response string
	err      error
	block    chan struct{}
	calls    int
	mu       sync.Mutex
}

func (c *scriptedCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.block != nil {
		<-c.block
	}
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

type serviceFixture struct {
	svc       *Service
	docs      *fakeDocRepo
	txs       *fakeTxRepo
	files     *fakeFileStore
	publisher *fakePublisher
	completer *scriptedCompleter
	layout    *scriptedBackend
	vision    *scriptedBackend
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		docs:      newFakeDocRepo(),
		txs:       newFakeTxRepo(),
		files:     newFakeFileStore(),
		publisher: &fakePublisher{},
		completer: &scriptedCompleter{response: `{"transactions": [
			{"transaction_date": "2024-01-15", "description": "WALMART", "amount": -45.67, "transaction_type": "debit", "category": "groceries"}
		], "confidence": 0.9}`},
		layout: &scriptedBackend{name: "layout", text: "layout extracted text"},
		vision: &scriptedBackend{name: "vision", text: "vision extracted text"},
	}

	log := logger.NewWithWriter(&strings.Builder{})
	adapter := extract.NewAdapter(f.layout, f.vision, time.Second, log)
	parser := llmparse.NewParser(f.completer, time.Second, log)
	f.svc = NewService(f.docs, f.txs, f.files, adapter, parser, f.publisher, 1024*1024, log)
	return f
}

func TestUpload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "alice", "", "statement.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if doc.ID == "" || doc.StatementID == "" {
		t.Errorf("doc = %+v, want generated IDs", doc)
	}

	stored, err := f.docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("document not recorded: %v", err)
	}
	if stored.UserID != "alice" {
		t.Errorf("user = %q", stored.UserID)
	}

	published := f.publisher.published()
	if len(published) != 1 {
		t.Fatalf("published %d tasks, want 1", len(published))
	}
	if published[0].Type != jobs.TaskTypeExtractText || published[0].DocumentID != doc.ID {
		t.Errorf("task = %+v", published[0])
	}
}

func TestUpload_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"wrong extension", "statement.docx", []byte("data")},
		{"no extension", "statement", []byte("data")},
		{"empty file", "statement.pdf", nil},
		{"oversized", "statement.pdf", make([]byte, 2*1024*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Upload(ctx, "alice", "", tt.filename, tt.data); err == nil {
				t.Error("expected rejection")
			}
		})
	}

	if len(f.publisher.published()) != 0 {
		t.Error("rejected uploads must not enqueue tasks")
	}
}

func TestUpload_GroupsIntoExistingStatement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.svc.Upload(ctx, "alice", "", "one.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	second, err := f.svc.Upload(ctx, "alice", first.StatementID, "two.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if second.StatementID != first.StatementID {
		t.Errorf("statement ids differ: %q vs %q", first.StatementID, second.StatementID)
	}
}

func uploadAndExtract(t *testing.T, f *serviceFixture) *domain.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "alice", "", "statement.pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	err = f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeExtractText, DocumentID: doc.ID, StatementID: doc.StatementID})
	if err != nil {
		t.Fatalf("extract task failed: %v", err)
	}

	got, err := f.docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return got
}

func TestExtractionTask(t *testing.T) {
	f := newFixture()

	doc := uploadAndExtract(t, f)

	if !doc.TextProcessingCompleted {
		t.Error("extraction should mark completion")
	}
	if doc.LayoutText == nil || *doc.LayoutText != "layout extracted text" {
		t.Errorf("layout text = %v", doc.LayoutText)
	}
	if doc.VisionText == nil || *doc.VisionText != "vision extracted text" {
		t.Errorf("vision text = %v", doc.VisionText)
	}
	if doc.VisionConfidence != 90 {
		t.Errorf("vision confidence = %d", doc.VisionConfidence)
	}

	// Upload's extract task plus the chained parse task.
	published := f.publisher.published()
	if len(published) != 2 {
		t.Fatalf("published %d tasks, want 2", len(published))
	}
	if published[1].Type != jobs.TaskTypeParseTransactions || published[1].StatementID != doc.StatementID {
		t.Errorf("chained task = %+v", published[1])
	}
}

func TestExtractionTask_BothBackendsFail(t *testing.T) {
	f := newFixture()
	f.layout.err = errors.New("no text layer")
	f.vision.err = errors.New("model unavailable")

	doc := uploadAndExtract(t, f)

	if !doc.TextProcessingCompleted {
		t.Error("completion must be set even when both backends fail")
	}
	if doc.TextProcessingError == nil {
		t.Fatal("aggregate error should be recorded")
	}
	if !strings.Contains(*doc.TextProcessingError, "no text layer") ||
		!strings.Contains(*doc.TextProcessingError, "model unavailable") {
		t.Errorf("error = %q", *doc.TextProcessingError)
	}
}

func TestExtractionTask_UnreadableFile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "alice", "", "statement.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	f.files.readErr = errors.New("bucket unavailable")

	err = f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeExtractText, DocumentID: doc.ID, StatementID: doc.StatementID})
	if err != nil {
		t.Fatalf("extract task failed: %v", err)
	}

	got, err := f.docs.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.TextProcessingCompleted {
		t.Error("completion must be set")
	}
	if got.TextProcessingError == nil {
		t.Error("file read failure should be recorded")
	}
}

func TestParseTask(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)

	err := f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID})
	if err != nil {
		t.Fatalf("parse task failed: %v", err)
	}

	txs, err := f.svc.GetTransactions(ctx, doc.StatementID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	if txs[0].Description != "WALMART" {
		t.Errorf("description = %q", txs[0].Description)
	}
	if !txs[0].ProcessingCompleted {
		t.Error("transaction should be completed")
	}
}

func TestParseTask_ModelFailureLeavesPlaceholder(t *testing.T) {
	f := newFixture()
	f.completer.err = errors.New("model down")
	ctx := context.Background()

	doc := uploadAndExtract(t, f)

	err := f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID})
	if err != nil {
		t.Fatalf("parse task failed: %v", err)
	}

	txs, err := f.svc.GetTransactions(ctx, doc.StatementID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d rows, want 1 placeholder", len(txs))
	}
	if txs[0].ProcessingCompleted {
		t.Error("placeholder must not be completed")
	}
	if txs[0].ProcessingError == nil {
		t.Error("placeholder must carry the error")
	}
}

func TestParseTask_ReplacesPreviousRun(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)
	task := &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID}

	if err := f.svc.HandleTask(ctx, task); err != nil {
		t.Fatalf("first parse failed: %v", err)
	}

	f.completer.response = `{"transactions": [
		{"description": "NEW A", "amount": -1, "transaction_type": "debit"},
		{"description": "NEW B", "amount": -2, "transaction_type": "debit"}
	]}`
	if err := f.svc.HandleTask(ctx, task); err != nil {
		t.Fatalf("second parse failed: %v", err)
	}

	txs, err := f.svc.GetTransactions(ctx, doc.StatementID)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want the 2 from the re-run only", len(txs))
	}
	for _, tx := range txs {
		if tx.Description == "WALMART" {
			t.Error("previous run's rows should be gone")
		}
	}
}

func TestTriggerTransactionParse_RequiresCompletedText(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "alice", "", "statement.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// Extraction has not run yet.
	if err := f.svc.TriggerTransactionParse(ctx, doc.StatementID); err == nil {
		t.Error("expected rejection while text extraction is pending")
	}

	if err := f.svc.TriggerTransactionParse(ctx, "missing-stmt"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestParseTask_ConcurrentRunDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)

	f.completer.block = make(chan struct{})
	task := &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.svc.HandleTask(ctx, task)
	}()

	// Wait until the first run is inside the model call.
	deadline := time.After(2 * time.Second)
	for {
		f.completer.mu.Lock()
		started := f.completer.calls > 0
		f.completer.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first parse run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Second run for the same statement must be dropped, not queued.
	if err := f.svc.HandleTask(ctx, task); err != nil {
		t.Fatalf("concurrent parse returned error: %v", err)
	}

	close(f.completer.block)
	wg.Wait()

	if f.txs.replaceCalls != 1 {
		t.Errorf("replace calls = %d, want 1", f.txs.replaceCalls)
	}
}

func TestDeleteDocument_CascadesWhenLast(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)
	if err := f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := f.svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}

	if _, err := f.docs.GetByID(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("document err = %v, want ErrNotFound", err)
	}
	if len(f.files.files) != 0 {
		t.Error("stored file should be removed")
	}
	txs, _ := f.svc.GetTransactions(ctx, doc.StatementID)
	if len(txs) != 0 {
		t.Error("statement transactions should be removed with the last document")
	}
}

func TestGetSummary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)
	if err := f.svc.HandleTask(ctx, &jobs.Task{Type: jobs.TaskTypeParseTransactions, StatementID: doc.StatementID}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	s, err := f.svc.GetSummary(ctx, doc.StatementID)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if s.TotalTransactions != 1 {
		t.Errorf("total = %d, want 1", s.TotalTransactions)
	}
	if s.Categories["groceries"].Count != 1 {
		t.Errorf("categories = %+v", s.Categories)
	}
}

func TestGetDocumentText(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	doc := uploadAndExtract(t, f)

	text, err := f.svc.GetDocumentText(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocumentText failed: %v", err)
	}
	if text.Layout.Text != "layout extracted text" || text.Vision.Text != "vision extracted text" {
		t.Errorf("texts = %q / %q", text.Layout.Text, text.Vision.Text)
	}
	if text.Comparison == nil {
		t.Fatal("comparison should be present after completion")
	}
	if !text.Comparison.LayoutPresent || !text.Comparison.VisionPresent {
		t.Errorf("comparison = %+v", text.Comparison)
	}
}
