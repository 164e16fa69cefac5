package sqlite

func (s *Storage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		statement_id TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		stored_filename TEXT NOT NULL,
		file_locator TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		upload_date DATETIME NOT NULL,
		layout_text TEXT,
		layout_word_count INTEGER NOT NULL DEFAULT 0,
		layout_pages INTEGER NOT NULL DEFAULT 0,
		layout_success INTEGER NOT NULL DEFAULT 0,
		vision_text TEXT,
		vision_word_count INTEGER NOT NULL DEFAULT 0,
		vision_pages INTEGER NOT NULL DEFAULT 0,
		vision_success INTEGER NOT NULL DEFAULT 0,
		vision_confidence INTEGER NOT NULL DEFAULT 0,
		text_processing_completed INTEGER NOT NULL DEFAULT 0,
		text_processing_error TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_statement_id ON documents(statement_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		statement_id TEXT NOT NULL,
		transaction_date DATETIME,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		transaction_type TEXT NOT NULL,
		balance TEXT,
		reference_number TEXT,
		category TEXT NOT NULL,
		extraction_source TEXT NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		raw_response TEXT,
		processing_completed INTEGER NOT NULL DEFAULT 0,
		processing_error TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_statement_id ON transactions(statement_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);
	`

	_, err := s.DB.Exec(query)
	return err
}
