package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet // keyed by user ID
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; ok {
		return false, nil
	}
	clone := *w
	r.wallets[w.UserID] = &clone
	return true, nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	clone := *w
	return &clone, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	// Row locking is approximated by the transactor's serialization.
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, upd ports.WalletBalanceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID != upd.WalletID {
			continue
		}
		w.Balance = upd.Balance
		w.TotalFunded += upd.FundedDelta
		w.TotalSpent += upd.SpentDelta
		w.TotalWithdrawn += upd.WithdrawnDelta
		at := upd.At
		w.LastTransaction = &at
		w.UpdatedAt = at
		return nil
	}
	return fmt.Errorf("wallet %s not found", upd.WalletID)
}

func (r *inMemoryWalletRepo) SetLock(ctx context.Context, userID uuid.UUID, locked bool, reason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok || w.Locked == locked {
		return false, nil
	}
	now := time.Now().UTC()
	w.Locked = locked
	w.LockReason = reason
	if locked {
		w.LockedAt = &now
	} else {
		w.UnlockedAt = &now
	}
	return true, nil
}

func (r *inMemoryWalletRepo) SetPin(ctx context.Context, userID uuid.UUID, pinHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return false, nil
	}
	w.PinHash = &pinHash
	return true, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
	byReference  map[string]uuid.UUID
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		byReference:  make(map[string]uuid.UUID),
	}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byReference[t.Reference]; ok {
		return fmt.Errorf("reference %s: %w", t.Reference, ports.ErrDuplicateKey)
	}
	clone := cloneTransaction(t)
	r.transactions[t.ID] = clone
	r.byReference[t.Reference] = t.ID
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byReference[reference]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(r.transactions[id]), nil
}

func (r *inMemoryTransactionRepo) UpdateStatusCAS(ctx context.Context, tx pgx.Tx, upd ports.TransactionStatusUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[upd.ID]
	if !ok {
		return false, nil
	}

	matched := false
	for _, from := range upd.From {
		if t.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	if upd.RequireFundsReserved && !t.FundsReserved {
		return false, nil
	}

	now := time.Now().UTC()
	t.Status = upd.To
	t.StatusHistory = append(t.StatusHistory, domain.StatusChange{Status: upd.To, Note: upd.Note, At: now})
	t.UpdatedAt = now
	if upd.PreviousBalance != nil {
		t.PreviousBalance = *upd.PreviousBalance
	}
	if upd.NewBalance != nil {
		t.NewBalance = *upd.NewBalance
	}
	if upd.Provider != nil {
		t.Provider = upd.Provider
	}
	if upd.ProviderResponse != nil {
		t.ProviderResponse = append([]byte(nil), upd.ProviderResponse...)
	}
	if upd.FundsReserved != nil {
		t.FundsReserved = *upd.FundsReserved
	}
	if upd.IncrementRetry {
		t.RetryCount++
	}
	return true, nil
}

func (r *inMemoryTransactionRepo) RecordAttempt(ctx context.Context, id uuid.UUID, provider string, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s not found", id)
	}
	t.StatusHistory = append(t.StatusHistory, domain.StatusChange{
		Status: domain.StatusProcessing,
		Note:   note,
		At:     time.Now().UTC(),
	})
	t.TriedProviders = append(t.TriedProviders, provider)
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.UserID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.From != nil && t.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && t.CreatedAt.Unix() > *params.To {
			continue
		}
		result = append(result, *cloneTransaction(t))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetStats(ctx context.Context, userID uuid.UUID) (*ports.TransactionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &ports.TransactionStats{}
	for _, t := range r.transactions {
		if t.UserID != userID {
			continue
		}
		stats.TotalTransactions++
		switch t.Status {
		case domain.StatusSuccessful:
			stats.Successful++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusRefunded:
			stats.Refunded++
		}
		if t.Status == domain.StatusSuccessful {
			if t.Type == domain.TypeFundWallet {
				stats.TotalFunded += t.Amount
			} else if t.Metadata.RefundFor == "" {
				// Refund entries return money; they are not spend.
				stats.TotalSpent += t.TotalAmount
			}
		}
	}
	return stats, nil
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	clone := *t
	clone.StatusHistory = append([]domain.StatusChange(nil), t.StatusHistory...)
	clone.TriedProviders = append([]string(nil), t.TriedProviders...)
	clone.ProviderResponse = append([]byte(nil), t.ProviderResponse...)
	return &clone
}

// --- In-Memory Provider Repo ---

type inMemoryProviderRepo struct {
	mu        sync.RWMutex
	providers map[string]*domain.Provider
}

func newInMemoryProviderRepo() *inMemoryProviderRepo {
	return &inMemoryProviderRepo{providers: make(map[string]*domain.Provider)}
}

func (r *inMemoryProviderRepo) Upsert(ctx context.Context, p *domain.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.providers[p.Name]; ok {
		existing.SupportedServices = p.SupportedServices
		existing.Status = p.Status
		existing.Priority = p.Priority
		existing.MaintenanceStart = p.MaintenanceStart
		existing.MaintenanceEnd = p.MaintenanceEnd
		existing.UpdatedAt = p.UpdatedAt
		return nil
	}
	clone := *p
	r.providers[p.Name] = &clone
	return nil
}

func (r *inMemoryProviderRepo) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (r *inMemoryProviderRepo) ListByService(ctx context.Context, service domain.TransactionType) ([]domain.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Provider
	for _, p := range r.providers {
		if p.Supports(service) {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].SuccessRate > result[j].SuccessRate
	})
	return result, nil
}

func (r *inMemoryProviderRepo) RecordOutcome(ctx context.Context, name string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return fmt.Errorf("provider %s not found", name)
	}
	if success {
		p.SuccessfulRequests++
	} else {
		p.FailedRequests++
	}
	p.TotalRequests++
	p.SuccessRate = float64(p.SuccessfulRequests) / float64(p.TotalRequests)
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes all database transactions with one mutex,
// standing in for the per-wallet row locks the real store takes.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: &t.mu}, nil
}

// memTx holds the transactor lock until Commit or Rollback, whichever
// comes first.
type memTx struct {
	release *sync.Mutex
	done    bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if !t.done {
		t.done = true
		t.release.Unlock()
	}
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.done = true
		t.release.Unlock()
	}
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
