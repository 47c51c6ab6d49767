package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository using PostgreSQL.
// Status history and metadata live in JSONB columns; history entries are
// only ever appended with the || operator, never rewritten.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new PostgreSQL transaction repository.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, reference, user_id, type, amount, fee, total_amount,
		previous_balance, new_balance, status, status_history, provider, provider_response,
		tried_providers, retry_count, max_retries, funds_reserved, metadata, created_at, updated_at`

// Create inserts a new ledger entry. A reference collision surfaces as
// ports.ErrDuplicateKey so the caller can regenerate and try again.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	historyJSON, err := json.Marshal(t.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshaling status history: %w", err)
	}
	metadataJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (id, reference, user_id, type, amount, fee, total_amount,
			previous_balance, new_balance, status, status_history, provider, provider_response,
			tried_providers, retry_count, max_retries, funds_reserved, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = tx.Exec(ctx, query,
		t.ID, t.Reference, t.UserID, t.Type, t.Amount, t.Fee, t.TotalAmount,
		t.PreviousBalance, t.NewBalance, t.Status, historyJSON, t.Provider,
		[]byte(t.ProviderResponse), t.TriedProviders, t.RetryCount, t.MaxRetries,
		t.FundsReserved, metadataJSON, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return mapConstraintError(fmt.Errorf("inserting transaction: %w", err))
	}
	return nil
}

// GetByID retrieves a transaction by ID. Returns nil if not found.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return r.scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByReference retrieves a transaction by its reference. Returns nil if
// not found.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return r.scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// UpdateStatusCAS applies a status transition guarded by the current status.
// The WHERE clause carries the expected statuses, so two racing transitions
// (retry vs refund, duplicate webhooks) can never both take effect.
func (r *TransactionRepo) UpdateStatusCAS(ctx context.Context, tx pgx.Tx, upd ports.TransactionStatusUpdate) (bool, error) {
	entry := domain.StatusChange{Status: upd.To, Note: upd.Note, At: time.Now().UTC()}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshaling history entry: %w", err)
	}

	sets := []string{"status = $1", "status_history = status_history || $2::jsonb", "updated_at = NOW()"}
	args := []any{upd.To, entryJSON}
	idx := 3

	if upd.PreviousBalance != nil {
		sets = append(sets, fmt.Sprintf("previous_balance = $%d", idx))
		args = append(args, *upd.PreviousBalance)
		idx++
	}
	if upd.NewBalance != nil {
		sets = append(sets, fmt.Sprintf("new_balance = $%d", idx))
		args = append(args, *upd.NewBalance)
		idx++
	}
	if upd.Provider != nil {
		sets = append(sets, fmt.Sprintf("provider = $%d", idx))
		args = append(args, *upd.Provider)
		idx++
	}
	if upd.ProviderResponse != nil {
		sets = append(sets, fmt.Sprintf("provider_response = $%d", idx))
		args = append(args, upd.ProviderResponse)
		idx++
	}
	if upd.FundsReserved != nil {
		sets = append(sets, fmt.Sprintf("funds_reserved = $%d", idx))
		args = append(args, *upd.FundsReserved)
		idx++
	}
	if upd.IncrementRetry {
		sets = append(sets, "retry_count = retry_count + 1")
	}

	from := make([]string, len(upd.From))
	for i, s := range upd.From {
		from[i] = string(s)
	}
	where := fmt.Sprintf("id = $%d AND status = ANY($%d)", idx, idx+1)
	args = append(args, upd.ID, from)
	if upd.RequireFundsReserved {
		where += " AND funds_reserved = TRUE"
	}

	query := "UPDATE transactions SET " + strings.Join(sets, ", ") + " WHERE " + where

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating transaction status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordAttempt logs one failed provider attempt: a processing-stage
// history note plus the provider name in tried_providers. The status
// itself is untouched, so the orchestrator can move on to the next
// candidate.
func (r *TransactionRepo) RecordAttempt(ctx context.Context, id uuid.UUID, provider string, note string) error {
	entry := domain.StatusChange{Status: domain.StatusProcessing, Note: note, At: time.Now().UTC()}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling history entry: %w", err)
	}

	query := `
		UPDATE transactions
		SET status_history = status_history || $1::jsonb,
		    tried_providers = array_append(tried_providers, $2),
		    updated_at = NOW()
		WHERE id = $3`

	if _, err := r.pool.Exec(ctx, query, entryJSON, provider, id); err != nil {
		return fmt.Errorf("recording provider attempt: %w", err)
	}
	return nil
}

// List retrieves a page of a user's transactions, newest first, with
// optional status, type and time-range filters.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	where := []string{"user_id = $1"}
	args := []any{params.UserID}
	idx := 2

	if params.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, *params.Status)
		idx++
	}
	if params.Type != nil {
		where = append(where, fmt.Sprintf("type = $%d", idx))
		args = append(args, *params.Type)
		idx++
	}
	if params.From != nil {
		where = append(where, fmt.Sprintf("created_at >= to_timestamp($%d)", idx))
		args = append(args, *params.From)
		idx++
	}
	if params.To != nil {
		where = append(where, fmt.Sprintf("created_at <= to_timestamp($%d)", idx))
		args = append(args, *params.To)
		idx++
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM transactions WHERE " + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	query := fmt.Sprintf(
		"SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		transactionColumns, whereClause, idx, idx+1,
	)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := r.scanTransactionRow(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating transactions: %w", err)
	}
	return txns, total, nil
}

// GetStats aggregates per-user figures in a single statement.
func (r *TransactionRepo) GetStats(ctx context.Context, userID uuid.UUID) (*ports.TransactionStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'successful'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'refunded'),
		       COALESCE(SUM(amount) FILTER (WHERE type = 'fund_wallet' AND status = 'successful'), 0),
		       COALESCE(SUM(total_amount) FILTER (WHERE type <> 'fund_wallet' AND status = 'successful' AND metadata->>'refund_for' IS NULL), 0)
		FROM transactions
		WHERE user_id = $1`

	var stats ports.TransactionStats
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.TotalTransactions, &stats.Successful, &stats.Failed,
		&stats.Refunded, &stats.TotalFunded, &stats.TotalSpent,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating transaction stats: %w", err)
	}
	return &stats, nil
}

func (r *TransactionRepo) scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t, err := scanTransactionFrom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TransactionRepo) scanTransactionRow(rows pgx.Rows) (*domain.Transaction, error) {
	return scanTransactionFrom(rows)
}

func scanTransactionFrom(row pgx.Row) (*domain.Transaction, error) {
	var (
		t            domain.Transaction
		historyJSON  []byte
		responseJSON []byte
		metadataJSON []byte
	)
	err := row.Scan(
		&t.ID, &t.Reference, &t.UserID, &t.Type, &t.Amount, &t.Fee, &t.TotalAmount,
		&t.PreviousBalance, &t.NewBalance, &t.Status, &historyJSON, &t.Provider,
		&responseJSON, &t.TriedProviders, &t.RetryCount, &t.MaxRetries,
		&t.FundsReserved, &metadataJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &t.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshaling status history: %w", err)
		}
	}
	if len(responseJSON) > 0 {
		t.ProviderResponse = json.RawMessage(responseJSON)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return &t, nil
}
