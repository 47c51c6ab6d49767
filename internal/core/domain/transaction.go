package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType identifies the service a ledger entry settles.
type TransactionType string

const (
	TypeFundWallet      TransactionType = "fund_wallet"
	TypeWalletTransfer  TransactionType = "wallet_transfer"
	TypeWithdrawal      TransactionType = "withdrawal"
	TypeDataRecharge    TransactionType = "data_recharge"
	TypeAirtimeRecharge TransactionType = "airtime_recharge"
	TypeAirtimeSwap     TransactionType = "airtime_swap"
	TypeSMEData         TransactionType = "sme_data"
	TypeRechargePin     TransactionType = "recharge_pin"
	TypeElectricity     TransactionType = "electricity"
	TypeCableTV         TransactionType = "cable_tv"
	TypeEducationPin    TransactionType = "education_pin"
	TypeRRRPayment      TransactionType = "rrr_payment"
)

// AllTransactionTypes lists every valid transaction type.
var AllTransactionTypes = []TransactionType{
	TypeFundWallet, TypeWalletTransfer, TypeWithdrawal,
	TypeDataRecharge, TypeAirtimeRecharge, TypeAirtimeSwap,
	TypeSMEData, TypeRechargePin, TypeElectricity,
	TypeCableTV, TypeEducationPin, TypeRRRPayment,
}

// IsValid reports whether t is a member of the closed type set.
func (t TransactionType) IsValid() bool {
	for _, known := range AllTransactionTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransactionStatus is the lifecycle state of a ledger entry.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusSuccessful TransactionStatus = "successful"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
	StatusRefunded   TransactionStatus = "refunded"
)

// allowedTransitions encodes the ledger state machine.
// failed is quasi-terminal: it may move to refunded (reversal) or back to
// processing (manual retry). The two paths are mutually exclusive because
// transitions are applied as compare-and-set on the current status.
var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusSuccessful, StatusFailed},
	StatusFailed:     {StatusRefunded, StatusProcessing},
}

// CanTransition reports whether a status move is permitted by the state machine.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition can occur.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusCancelled || s == StatusRefunded
}

// StatusChange is one append-only entry in a transaction's status history.
type StatusChange struct {
	Status TransactionStatus `json:"status"`
	Note   string            `json:"note"`
	At     time.Time         `json:"at"`
}

// Transaction is a ledger entry. The reference is immutable once assigned
// and serves as the idempotency key for all external confirmations.
type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	Reference        string            `json:"reference"`
	UserID           uuid.UUID         `json:"user_id"`
	Type             TransactionType   `json:"type"`
	Amount           int64             `json:"amount"`
	Fee              int64             `json:"fee"`
	TotalAmount      int64             `json:"total_amount"`
	PreviousBalance  int64             `json:"previous_balance"`
	NewBalance       int64             `json:"new_balance"`
	Status           TransactionStatus `json:"status"`
	StatusHistory    []StatusChange    `json:"status_history"`
	Provider         *string           `json:"provider,omitempty"`
	ProviderResponse json.RawMessage   `json:"provider_response,omitempty"`
	TriedProviders   []string          `json:"tried_providers,omitempty"`
	RetryCount       int               `json:"retry_count"`
	MaxRetries       int               `json:"max_retries"`
	FundsReserved    bool              `json:"funds_reserved"`
	Metadata         Metadata          `json:"metadata"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasTried reports whether a provider was already attempted.
func (t *Transaction) HasTried(provider string) bool {
	for _, name := range t.TriedProviders {
		if name == provider {
			return true
		}
	}
	return false
}

// CanRetry reports whether a manual retry is still permitted.
// Only failed transactions with reserved funds and remaining retry
// budget qualify; a refunded transaction is permanently unretryable.
func (t *Transaction) CanRetry() bool {
	return t.Status == StatusFailed && t.FundsReserved && t.RetryCount < t.MaxRetries
}

const referencePrefix = "TXN"

// NewReference generates a globally unique transaction reference.
// Format: TXN-<unix millis>-<8 char random suffix>. Uniqueness is enforced
// by the store's constraint; on collision the caller regenerates.
func NewReference() string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("%s-%d-%s", referencePrefix, time.Now().UnixMilli(), suffix)
}
