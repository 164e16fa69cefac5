// Command ingest processes a single statement PDF end to end, synchronously:
// upload, dual text extraction and transaction parsing, then prints the
// resulting summary. Useful for local runs without the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/avolkov/statements/internal/config"
	"github.com/avolkov/statements/internal/extract"
	"github.com/avolkov/statements/internal/filestore"
	"github.com/avolkov/statements/internal/jobs"
	"github.com/avolkov/statements/internal/llmparse"
	"github.com/avolkov/statements/internal/logger"
	"github.com/avolkov/statements/internal/pipeline"
	"github.com/avolkov/statements/internal/storage/sqlite"
)

// syncPublisher runs tasks inline instead of queueing them, so the whole
// pipeline completes before the command exits.
type syncPublisher struct {
	handler jobs.TaskHandler
}

func (p *syncPublisher) Publish(ctx context.Context, task *jobs.Task) error {
	return p.handler(ctx, task)
}

func (p *syncPublisher) Close() error { return nil }

func main() {
	log := logger.New()

	filePath := flag.String("file", "", "Path to the statement PDF")
	userID := flag.String("user", "default", "User ID to record the document under")
	statementID := flag.String("statement", "", "Statement ID to group documents (empty starts a new statement)")
	flag.Parse()

	if *filePath == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read input file")
	}

	store, err := sqlite.NewConnection(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("Failed to open database")
	}
	defer store.Close()

	files, err := filestore.NewLocalStore(cfg.Files.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Files.UploadDir).Msg("Failed to create file store")
	}

	extractor := extract.NewAdapter(
		extract.NewLayoutBackend(),
		extract.NewVisionBackend(cfg.Extract.OCRModel),
		cfg.Extract.Timeout,
		log,
	)
	parser := llmparse.NewParser(llmparse.NewGeminiCompleter(cfg.Parse.Model), cfg.Parse.Timeout, log)

	publisher := &syncPublisher{}
	svc := pipeline.NewService(
		sqlite.NewDocumentRepository(store),
		sqlite.NewTransactionRepository(store),
		files,
		extractor,
		parser,
		publisher,
		cfg.Files.MaxUploadBytes,
		log,
	)
	publisher.handler = svc.HandleTask

	log.Info().Str("file", *filePath).Msg("Starting ingestion")

	doc, err := svc.Upload(ctx, *userID, *statementID, *filePath, data)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	summary, err := svc.GetSummary(ctx, doc.StatementID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute summary")
	}

	fmt.Printf("Statement %s: %d transactions, credits %s, debits %s, net %s\n",
		summary.StatementID,
		summary.TotalTransactions,
		summary.TotalCredits.StringFixed(2),
		summary.TotalDebits.StringFixed(2),
		summary.NetAmount.StringFixed(2),
	)
}
