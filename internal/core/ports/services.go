package ports

import (
	"context"
	"encoding/json"
	"time"

	"vtupay/internal/core/domain"

	"github.com/google/uuid"
)

// ProviderResult is what an adapter reports back after a fulfillment call.
type ProviderResult struct {
	Success           bool
	ProviderReference string
	Message           string
	RawResponse       json.RawMessage
}

// ProviderAdapter is the single polymorphic contract every external
// settlement provider implements. Fulfill must honor ctx cancellation:
// the orchestrator calls it under a bounded timeout and treats expiry
// as a failed attempt.
type ProviderAdapter interface {
	Name() string
	Fulfill(ctx context.Context, txn *domain.Transaction) (*ProviderResult, error)
}

// ProviderRegistry selects and ranks providers for a service type.
type ProviderRegistry interface {
	// Select returns eligible providers ordered by priority then success
	// rate, with preferred (if eligible) moved to the front. Returns
	// ErrProviderUnavailable when no candidate remains.
	Select(ctx context.Context, service domain.TransactionType, preferred string) ([]domain.Provider, error)
	// RecordOutcome is best-effort: failures are logged and swallowed so
	// they never break the caller's critical path.
	RecordOutcome(ctx context.Context, provider string, success bool)
}

// WalletService is the only component permitted to mutate balances.
type WalletService interface {
	CreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Credit(ctx context.Context, req BalanceChangeRequest) (*domain.Wallet, *domain.Transaction, error)
	Debit(ctx context.Context, req BalanceChangeRequest) (*domain.Wallet, *domain.Transaction, error)
	Lock(ctx context.Context, userID uuid.UUID, reason string) error
	Unlock(ctx context.Context, userID uuid.UUID) error
	// SetPin hashes and stores the wallet's transaction PIN.
	SetPin(ctx context.Context, userID uuid.UUID, pin string) error
	// VerifyPin checks a PIN against the stored hash. Debit-side
	// operations call it before any money moves.
	VerifyPin(ctx context.Context, userID uuid.UUID, pin string) error
}

// BalanceChangeRequest holds validated input for a direct credit/debit.
type BalanceChangeRequest struct {
	UserID      uuid.UUID
	Amount      int64
	Reference   string // generated when empty
	Type        domain.TransactionType
	Description string
	Metadata    domain.Metadata
}

// LedgerService maintains the durable transaction record and its
// status-history; it is the idempotency substrate for the system.
type LedgerService interface {
	Create(ctx context.Context, spec CreateTransactionSpec) (*domain.Transaction, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.TransactionStatus, note string) (*domain.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	Stats(ctx context.Context, userID uuid.UUID) (*TransactionStats, error)
}

// CreateTransactionSpec holds input for a new pending ledger entry.
type CreateTransactionSpec struct {
	UserID    uuid.UUID
	Type      domain.TransactionType
	Amount    int64
	Fee       int64
	Reference string // optional; assigned when empty
	Metadata  domain.Metadata
}

// SettlementService coordinates reservation, external fulfillment and
// reversal for debit-based transactions.
type SettlementService interface {
	Settle(ctx context.Context, reference string, preferredProvider string) (*domain.Transaction, error)
	Retry(ctx context.Context, reference string) (*domain.Transaction, error)
}

// ReconcilerService applies asynchronous gateway confirmations to pending
// ledger state with at-most-once balance effect per reference.
type ReconcilerService interface {
	ReconcilePaymentSuccess(ctx context.Context, reference string, confirmedAmount int64) error
	ReconcilePaymentFailure(ctx context.Context, reference string) error
	ReconcileTransferSuccess(ctx context.Context, reference string) error
	ReconcileTransferFailure(ctx context.Context, reference string) error
}

// TransferService moves money between two wallets atomically.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// TransferRequest holds validated input for a peer transfer.
type TransferRequest struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Amount      int64
	Description string
}

// TransferResult carries the three ledger rows of a completed transfer.
type TransferResult struct {
	SenderWallet *domain.Wallet
	Debit        *domain.Transaction
	FeeEntry     *domain.Transaction
	Credit       *domain.Transaction
}

// PinService hashes and verifies transaction PINs (Argon2id).
type PinService interface {
	Hash(pin string) (string, error)
	Verify(pin string, hash string) (bool, error)
}

// TokenService handles JWT operations for the auth boundary.
type TokenService interface {
	Generate(userID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (uuid.UUID, error)
}

// SignatureService verifies HMAC-SHA256 webhook signatures over the raw
// payload body. Verification happens at the HTTP boundary; an invalid
// signature never reaches the reconciler.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// ReconcileCache is the Redis fast-path dedupe for webhook redelivery.
// It is advisory only: the Postgres status CAS remains the authority.
type ReconcileCache interface {
	Seen(ctx context.Context, reference string) (bool, error)
	Mark(ctx context.Context, reference string, ttl time.Duration) error
}
