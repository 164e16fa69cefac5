package llmparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avolkov/statements/internal/domain"
)

// baselineConfidence reflects unmeasured trust in LLM output when the model
// does not report its own score. Deterministic extraction would score 1.0.
const baselineConfidence = 0.7

// dateFormats is the ordered list of date layouts the parser accepts. Extend
// the list to support new formats; the parsing loop never changes.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// Parser converts one document's extracted text into transaction records.
type Parser struct {
	completer Completer
	rules     []CategoryRule
	timeout   time.Duration
	log       zerolog.Logger
}

func NewParser(completer Completer, timeout time.Duration, log zerolog.Logger) *Parser {
	return &Parser{
		completer: completer,
		rules:     DefaultCategoryRules,
		timeout:   timeout,
		log:       log,
	}
}

// Outcome is the result of one parse run. Err is set on total failure
// (model call failed or its response was not interpretable at all); callers
// persist it as a processing error rather than raising.
type Outcome struct {
	Transactions []*domain.Transaction
	RawResponse  string
	Err          string
}

// ParseDocument selects the document's best extracted text, calls the model
// once, and normalizes its response. It never returns an error: failures are
// carried in Outcome.Err.
func (p *Parser) ParseDocument(ctx context.Context, doc *domain.Document) Outcome {
	text, _, ok := doc.BestText()
	if !ok {
		return Outcome{Err: domain.ErrNoTextAvailable.Error()}
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.completer.Complete(callCtx, systemPrompt, buildUserPrompt(text))
	if err != nil {
		p.log.Error().Err(err).Str("document_id", doc.ID).Msg("Model call failed")
		return Outcome{Err: fmt.Sprintf("model call failed: %v", err)}
	}

	items, batchConfidence, err := decodePayload(cleanModelResponse(raw))
	if err != nil {
		p.log.Error().Err(err).Str("document_id", doc.ID).Msg("Model response not interpretable")
		return Outcome{RawResponse: raw, Err: fmt.Sprintf("invalid JSON response from model: %v", err)}
	}

	txs := make([]*domain.Transaction, 0, len(items))
	for i, item := range items {
		tx, err := p.buildTransaction(doc.StatementID, item, batchConfidence, raw)
		if err != nil {
			p.log.Warn().Err(err).Int("index", i).Str("statement_id", doc.StatementID).Msg("Failed to process transaction item")
			txs = append(txs, failedTransaction(doc.StatementID, fmt.Sprintf("failed to process transaction %d: %v", i, err), raw))
			continue
		}
		txs = append(txs, tx)
	}

	return Outcome{Transactions: txs, RawResponse: raw}
}

// decodePayload accepts either {"transactions": [...], "confidence": n} or
// a bare top-level array.
func decodePayload(clean string) ([]map[string]any, float64, error) {
	var parsed any
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, 0, err
	}

	confidence := baselineConfidence
	var rawItems []any

	switch v := parsed.(type) {
	case map[string]any:
		if c, ok := v["confidence"].(float64); ok && c >= 0 && c <= 1 {
			confidence = c
		}
		list, ok := v["transactions"].([]any)
		if !ok {
			return nil, 0, fmt.Errorf("missing 'transactions' list in model output")
		}
		rawItems = list
	case []any:
		rawItems = v
	default:
		return nil, 0, fmt.Errorf("model output is %T, want object or array", parsed)
	}

	items := make([]map[string]any, 0, len(rawItems))
	for i, raw := range rawItems {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("element %d is %T, want object", i, raw)
		}
		items = append(items, obj)
	}
	return items, confidence, nil
}

func (p *Parser) buildTransaction(statementID string, item map[string]any, batchConfidence float64, raw string) (*domain.Transaction, error) {
	description := cleanText(getString(item, "description"), 500)
	if description == "" {
		return nil, fmt.Errorf("missing description")
	}

	amount, err := parseAmount(item["amount"])
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if amount == nil {
		return nil, fmt.Errorf("missing amount")
	}

	txType := normalizeType(getString(item, "transaction_type"))
	normalized := normalizeSign(*amount, txType)

	txDate := parseDate(getString(item, "transaction_date"))
	if txDate == nil && getString(item, "transaction_date") != "" {
		p.log.Warn().
			Str("statement_id", statementID).
			Str("date", getString(item, "transaction_date")).
			Msg("Unparseable transaction date, storing null")
	}

	balance, err := parseAmount(item["balance"])
	if err != nil {
		// A bad running balance is not worth rejecting the item over.
		balance = nil
	}

	confidence := batchConfidence
	if c, ok := item["confidence"].(float64); ok && c >= 0 && c <= 1 {
		confidence = c
	}

	var reference *string
	if ref := cleanText(getString(item, "reference_number"), 255); ref != "" {
		reference = &ref
	}

	rawCopy := raw
	return &domain.Transaction{
		ID:                  uuid.NewString(),
		StatementID:         statementID,
		TransactionDate:     txDate,
		Description:         description,
		Amount:              normalized,
		TransactionType:     txType,
		Balance:             balance,
		ReferenceNumber:     reference,
		Category:            assignCategory(getString(item, "category"), description, p.rules),
		ExtractionSource:    domain.SourceLLM,
		ConfidenceScore:     confidence,
		RawResponse:         &rawCopy,
		ProcessingCompleted: true,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// failedTransaction is the placeholder row recording an item- or run-level
// processing failure.
func failedTransaction(statementID, errMsg, raw string) *domain.Transaction {
	var rawPtr *string
	if raw != "" {
		rawCopy := raw
		rawPtr = &rawCopy
	}
	return &domain.Transaction{
		ID:                  uuid.NewString(),
		StatementID:         statementID,
		Description:         errMsg,
		Amount:              decimal.Zero,
		TransactionType:     "unknown",
		Category:            FallbackCategory,
		ExtractionSource:    domain.SourceLLM,
		RawResponse:         rawPtr,
		ProcessingCompleted: false,
		ProcessingError:     &errMsg,
		CreatedAt:           time.Now().UTC(),
	}
}

// FailedPlaceholder exposes the placeholder row for run-level failures.
func FailedPlaceholder(statementID, errMsg, raw string) *domain.Transaction {
	return failedTransaction(statementID, errMsg, raw)
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// cleanText trims whitespace and truncates to maxLen bytes without
// splitting a multi-byte rune.
func cleanText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// parseAmount accepts JSON numbers and strings with currency noise
// ("$1,234.56"). Returns nil for absent values.
func parseAmount(v any) (*decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		d := decimal.NewFromFloat(val)
		return &d, nil
	case string:
		cleaned := strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "").Replace(val)
		if cleaned == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("unparseable amount %q", val)
		}
		return &d, nil
	default:
		return nil, fmt.Errorf("amount is %T, want number or string", v)
	}
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// normalizeType lowercases the model's label. Unrecognized labels pass
// through so sign normalization can still match the common ones.
func normalizeType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return "unknown"
	}
	return t
}

// normalizeSign forces the amount sign to agree with the transaction type:
// debit-like types yield amount <= 0, credit-like types yield amount >= 0.
func normalizeSign(amount decimal.Decimal, txType string) decimal.Decimal {
	switch {
	case domain.DebitTypes[txType] && amount.IsPositive():
		return amount.Neg()
	case domain.CreditTypes[txType] && amount.IsNegative():
		return amount.Neg()
	}
	return amount
}
