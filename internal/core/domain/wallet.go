package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's balance in the smallest currency unit (kobo).
// Balance is mutated exclusively through the wallet store's atomic
// credit/debit operations and must never be observed below zero.
type Wallet struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Balance         int64      `json:"balance"`
	Locked          bool       `json:"locked"`
	LockReason      *string    `json:"lock_reason,omitempty"`
	LockedAt        *time.Time `json:"locked_at,omitempty"`
	UnlockedAt      *time.Time `json:"unlocked_at,omitempty"`
	TotalFunded     int64      `json:"total_funded"`
	TotalSpent      int64      `json:"total_spent"`
	TotalWithdrawn  int64      `json:"total_withdrawn"`
	PinHash         *string    `json:"-"`
	LastTransaction *time.Time `json:"last_transaction,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewWallet creates a zero-balance wallet for a user.
func NewWallet(userID uuid.UUID) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanDebit reports whether a debit of amount is permitted.
func (w *Wallet) CanDebit(amount int64) bool {
	return !w.Locked && w.Balance >= amount
}

// HasPin reports whether a transaction PIN has been set.
func (w *Wallet) HasPin() bool {
	return w.PinHash != nil && *w.PinHash != ""
}
