package postgres

import (
	"context"
	"errors"
	"fmt"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository using PostgreSQL.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, balance, locked, lock_reason, locked_at, unlocked_at,
		total_funded, total_spent, total_withdrawn, pin_hash, last_transaction, created_at, updated_at`

// Create inserts a wallet. The user_id conflict target makes creation
// idempotent: the second call for the same user is a no-op returning false.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) (bool, error) {
	query := `
		INSERT INTO wallets (id, user_id, balance, locked, total_funded, total_spent, total_withdrawn, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		w.ID, w.UserID, w.Balance, w.Locked,
		w.TotalFunded, w.TotalSpent, w.TotalWithdrawn,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting wallet: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByUserID retrieves a wallet by user ID. Returns nil if not found.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return r.scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// GetByUserIDForUpdate retrieves a wallet with a row-level lock. Must run
// inside a transaction; the lock is held until commit or rollback, which
// serializes all concurrent mutations of the same wallet.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`
	return r.scanWallet(tx.QueryRow(ctx, query, userID))
}

// UpdateBalance writes the new absolute balance together with the lifetime
// counter deltas and the last_transaction stamp in one statement.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, upd ports.WalletBalanceUpdate) error {
	query := `
		UPDATE wallets
		SET balance = $1,
		    total_funded = total_funded + $2,
		    total_spent = total_spent + $3,
		    total_withdrawn = total_withdrawn + $4,
		    last_transaction = $5,
		    updated_at = NOW()
		WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		upd.Balance, upd.FundedDelta, upd.SpentDelta, upd.WithdrawnDelta,
		upd.At, upd.WalletID,
	)
	if err != nil {
		return fmt.Errorf("updating wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s not found for balance update", upd.WalletID)
	}
	return nil
}

// SetLock flips the lock flag. The predicate on the current flag makes the
// operation idempotent: locking a locked wallet affects no rows.
func (r *WalletRepo) SetLock(ctx context.Context, userID uuid.UUID, locked bool, reason *string) (bool, error) {
	var query string
	if locked {
		query = `
			UPDATE wallets
			SET locked = TRUE, lock_reason = $1, locked_at = NOW(), updated_at = NOW()
			WHERE user_id = $2 AND locked = FALSE`
	} else {
		query = `
			UPDATE wallets
			SET locked = FALSE, lock_reason = $1, unlocked_at = NOW(), updated_at = NOW()
			WHERE user_id = $2 AND locked = TRUE`
	}

	tag, err := r.pool.Exec(ctx, query, reason, userID)
	if err != nil {
		return false, fmt.Errorf("setting wallet lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetPin stores the transaction PIN hash.
func (r *WalletRepo) SetPin(ctx context.Context, userID uuid.UUID, pinHash string) (bool, error) {
	query := `UPDATE wallets SET pin_hash = $1, updated_at = NOW() WHERE user_id = $2`

	tag, err := r.pool.Exec(ctx, query, pinHash, userID)
	if err != nil {
		return false, fmt.Errorf("setting wallet pin: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *WalletRepo) scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.Balance, &w.Locked, &w.LockReason,
		&w.LockedAt, &w.UnlockedAt,
		&w.TotalFunded, &w.TotalSpent, &w.TotalWithdrawn,
		&w.PinHash, &w.LastTransaction, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning wallet: %w", err)
	}
	return &w, nil
}
