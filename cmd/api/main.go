package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avolkov/statements/internal/api/handlers"
	"github.com/avolkov/statements/internal/api/middleware"
	"github.com/avolkov/statements/internal/config"
	"github.com/avolkov/statements/internal/extract"
	"github.com/avolkov/statements/internal/filestore"
	"github.com/avolkov/statements/internal/jobs/inmemory"
	"github.com/avolkov/statements/internal/llmparse"
	"github.com/avolkov/statements/internal/logger"
	"github.com/avolkov/statements/internal/pipeline"
	"github.com/avolkov/statements/internal/storage/sqlite"
)

func main() {
	log := logger.New()
	cfg := config.Load()

	ctx := context.Background()

	// Storage
	store, err := sqlite.NewConnection(cfg.DB.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DB.Path).Msg("Failed to open database")
	}
	defer store.Close()

	docRepo := sqlite.NewDocumentRepository(store)
	txRepo := sqlite.NewTransactionRepository(store)

	// File store: GCS when a bucket is configured, local disk otherwise.
	var files filestore.Store
	if cfg.Files.GCSBucket != "" {
		gcs, err := filestore.NewGCSStore(ctx, cfg.Files.GCSBucket)
		if err != nil {
			log.Fatal().Err(err).Str("bucket", cfg.Files.GCSBucket).Msg("Failed to create GCS store")
		}
		defer gcs.Close()
		files = gcs
		log.Info().Str("bucket", cfg.Files.GCSBucket).Msg("Using GCS file store")
	} else {
		local, err := filestore.NewLocalStore(cfg.Files.UploadDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.Files.UploadDir).Msg("Failed to create local file store")
		}
		files = local
		log.Info().Str("dir", cfg.Files.UploadDir).Msg("Using local file store")
	}

	// Processing stages
	extractor := extract.NewAdapter(
		extract.NewLayoutBackend(),
		extract.NewVisionBackend(cfg.Extract.OCRModel),
		cfg.Extract.Timeout,
		log,
	)
	parser := llmparse.NewParser(llmparse.NewGeminiCompleter(cfg.Parse.Model), cfg.Parse.Timeout, log)

	// Task queue
	taskStore := inmemory.NewStore()
	taskQueue := inmemory.NewQueue(cfg.Queue.BufferSize, cfg.Queue.WorkerCount, taskStore)

	svc := pipeline.NewService(docRepo, txRepo, files, extractor, parser, taskQueue, cfg.Files.MaxUploadBytes, log)

	// Start workers
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := taskQueue.Start(workerCtx, svc.HandleTask); err != nil {
		log.Fatal().Err(err).Msg("Failed to start task workers")
	}
	log.Info().Int("workers", cfg.Queue.WorkerCount).Msg("Task workers started")

	// Handlers
	documentsHandler := handlers.NewDocumentsHandler(svc, log)
	statementsHandler := handlers.NewStatementsHandler(svc, log)
	transactionsHandler := handlers.NewTransactionsHandler(svc, log)
	tasksHandler := handlers.NewTasksHandler(taskStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			documentsHandler.Upload(w, r)
		case http.MethodGet:
			documentsHandler.List(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/documents/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
		documentID, action, _ := strings.Cut(rest, "/")
		if documentID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Document ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			documentsHandler.Get(w, r, documentID)
		case action == "" && r.Method == http.MethodDelete:
			documentsHandler.Delete(w, r, documentID)
		case action == "text" && r.Method == http.MethodGet:
			documentsHandler.GetText(w, r, documentID)
		case action == "extract-text" && r.Method == http.MethodPost:
			documentsHandler.TriggerExtraction(w, r, documentID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/statements/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/statements/")
		statementID, action, _ := strings.Cut(rest, "/")
		if statementID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Statement ID is required")
			return
		}

		switch {
		case action == "extract-transactions" && r.Method == http.MethodPost:
			statementsHandler.ExtractTransactions(w, r, statementID)
		case action == "transactions" && r.Method == http.MethodGet:
			statementsHandler.ListTransactions(w, r, statementID)
		case action == "transactions" && r.Method == http.MethodDelete:
			statementsHandler.DeleteTransactions(w, r, statementID)
		case (action == "summary" || action == "transactions/summary") && r.Method == http.MethodGet:
			statementsHandler.Summary(w, r, statementID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		transactionID := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		if transactionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Transaction ID is required")
			return
		}

		switch r.Method {
		case http.MethodGet:
			transactionsHandler.Get(w, r, transactionID)
		case http.MethodDelete:
			transactionsHandler.Delete(w, r, transactionID)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			tasksHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/tasks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
			if taskID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
				return
			}
			tasksHandler.Get(w, r, taskID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop queue and wait for in-flight tasks
	if err := taskQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping task queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
