package ports

import (
	"context"
	"errors"
	"time"

	"vtupay/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateKey is returned by repositories when an insert violates a
// uniqueness constraint (user id, transaction reference, provider name).
var ErrDuplicateKey = errors.New("duplicate key")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside transaction blocks so the row lock
// taken by GetByUserIDForUpdate serializes concurrent mutations per wallet.
type WalletRepository interface {
	// Create inserts a wallet. Returns false with no error when a wallet
	// for the user already exists (creation is idempotent).
	Create(ctx context.Context, w *domain.Wallet) (bool, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, upd WalletBalanceUpdate) error
	// SetLock flips the lock flag. Returns false when the wallet was
	// already in the requested state (or does not exist).
	SetLock(ctx context.Context, userID uuid.UUID, locked bool, reason *string) (bool, error)
	// SetPin stores a transaction PIN hash. Returns false when the
	// wallet does not exist.
	SetPin(ctx context.Context, userID uuid.UUID, pinHash string) (bool, error)
}

// WalletBalanceUpdate carries one atomic balance mutation plus the
// lifetime-counter deltas it implies.
type WalletBalanceUpdate struct {
	WalletID       uuid.UUID
	Balance        int64 // new absolute balance
	FundedDelta    int64
	SpentDelta     int64
	WithdrawnDelta int64
	At             time.Time // stamped as last_transaction
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	// Create inserts a new entry. Returns ErrDuplicateKey when the
	// reference already exists.
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	// UpdateStatusCAS applies a status transition as a compare-and-set on
	// the current status, appending the matching history entry. Returns
	// false when the row was not in any of the expected From statuses.
	UpdateStatusCAS(ctx context.Context, tx pgx.Tx, upd TransactionStatusUpdate) (bool, error)
	// RecordAttempt appends a history note for a failed provider attempt
	// and adds the provider to tried_providers without changing status.
	RecordAttempt(ctx context.Context, id uuid.UUID, provider string, note string) error
	// Reporting queries
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, userID uuid.UUID) (*TransactionStats, error)
}

// TransactionStatusUpdate describes one CAS transition. Optional fields
// are written only when non-nil.
type TransactionStatusUpdate struct {
	ID   uuid.UUID
	From []domain.TransactionStatus
	To   domain.TransactionStatus
	Note string

	PreviousBalance  *int64
	NewBalance       *int64
	Provider         *string
	ProviderResponse []byte
	FundsReserved    *bool
	IncrementRetry   bool

	// RequireFundsReserved adds a funds_reserved guard to the CAS so a
	// reversal can never run against an unreserved transaction.
	RequireFundsReserved bool
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   uuid.UUID
	Status   *domain.TransactionStatus
	Type     *domain.TransactionType
	From     *int64 // Unix timestamp
	To       *int64 // Unix timestamp
	Page     int
	PageSize int
}

// TransactionStats holds aggregated per-user figures.
type TransactionStats struct {
	TotalTransactions int64
	Successful        int64
	Failed            int64
	Refunded          int64
	TotalFunded       int64 // Sum of successful fund_wallet amounts
	TotalSpent        int64 // Sum of successful debit totals
}

// ProviderRepository defines persistence operations for provider records.
type ProviderRepository interface {
	Upsert(ctx context.Context, p *domain.Provider) error
	GetByName(ctx context.Context, name string) (*domain.Provider, error)
	ListByService(ctx context.Context, service domain.TransactionType) ([]domain.Provider, error)
	// RecordOutcome atomically bumps the request counters and recomputes
	// success_rate in a single statement.
	RecordOutcome(ctx context.Context, name string, success bool) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
