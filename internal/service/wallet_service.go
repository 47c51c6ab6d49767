package service

import (
	"context"
	"errors"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// referenceAttempts bounds regeneration when a generated reference collides.
const referenceAttempts = 3

// WalletService implements ports.WalletService. It is the only component
// that mutates balances: every credit and debit runs in one database
// transaction holding the wallet's row lock, and writes the matching
// ledger entry before committing.
type WalletService struct {
	walletRepo ports.WalletRepository
	txnRepo    ports.TransactionRepository
	transactor ports.DBTransactor
	pins       ports.PinService
	log        zerolog.Logger
}

// NewWalletService creates a new wallet service.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txnRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	pins ports.PinService,
	log zerolog.Logger,
) *WalletService {
	return &WalletService{
		walletRepo: walletRepo,
		txnRepo:    txnRepo,
		transactor: transactor,
		pins:       pins,
		log:        log,
	}
}

// CreateWallet provisions a zero-balance wallet. Calling it again for the
// same user returns the existing wallet unchanged.
func (s *WalletService) CreateWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w := domain.NewWallet(userID)

	created, err := s.walletRepo.Create(ctx, w)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !created {
		existing, err := s.walletRepo.GetByUserID(ctx, userID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		return existing, nil
	}

	s.log.Info().Str("user_id", userID.String()).Str("wallet_id", w.ID.String()).Msg("wallet created")
	return w, nil
}

// GetWallet retrieves a user's wallet.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// Credit adds funds to a wallet and records a successful ledger entry in
// the same database transaction. Credits land even on a locked wallet so
// refunds are never blocked.
func (s *WalletService) Credit(ctx context.Context, req ports.BalanceChangeRequest) (*domain.Wallet, *domain.Transaction, error) {
	if err := validateBalanceChange(req); err != nil {
		return nil, nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	w, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if w == nil {
		return nil, nil, apperror.ErrWalletNotFound()
	}

	now := time.Now().UTC()
	newBalance := w.Balance + req.Amount

	txn := completedEntry(req, w.Balance, newBalance, now)
	if err := createWithReference(ctx, s.txnRepo, dbTx, txn, req.Reference); err != nil {
		return nil, nil, err
	}

	upd := ports.WalletBalanceUpdate{WalletID: w.ID, Balance: newBalance, At: now}
	if req.Type == domain.TypeFundWallet {
		upd.FundedDelta = req.Amount
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, upd); err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	w.Balance = newBalance
	w.LastTransaction = &now
	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("reference", txn.Reference).
		Int64("amount", req.Amount).
		Msg("wallet credited")
	return w, txn, nil
}

// Debit removes funds from a wallet and records a successful ledger entry
// in the same database transaction. A locked wallet rejects all debits.
func (s *WalletService) Debit(ctx context.Context, req ports.BalanceChangeRequest) (*domain.Wallet, *domain.Transaction, error) {
	if err := validateBalanceChange(req); err != nil {
		return nil, nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	w, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, req.UserID)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if w == nil {
		return nil, nil, apperror.ErrWalletNotFound()
	}
	if w.Locked {
		return nil, nil, apperror.ErrWalletLocked()
	}
	if w.Balance < req.Amount {
		return nil, nil, apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()
	newBalance := w.Balance - req.Amount

	txn := completedEntry(req, w.Balance, newBalance, now)
	if err := createWithReference(ctx, s.txnRepo, dbTx, txn, req.Reference); err != nil {
		return nil, nil, err
	}

	upd := ports.WalletBalanceUpdate{WalletID: w.ID, Balance: newBalance, At: now}
	if req.Type == domain.TypeWithdrawal {
		upd.WithdrawnDelta = req.Amount
	} else {
		upd.SpentDelta = req.Amount
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, upd); err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	w.Balance = newBalance
	w.LastTransaction = &now
	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("reference", txn.Reference).
		Int64("amount", req.Amount).
		Msg("wallet debited")
	return w, txn, nil
}

// Lock freezes a wallet against debits.
func (s *WalletService) Lock(ctx context.Context, userID uuid.UUID, reason string) error {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}

	changed, err := s.walletRepo.SetLock(ctx, userID, true, &reason)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !changed {
		return apperror.ErrAlreadyLocked()
	}

	s.log.Warn().Str("user_id", userID.String()).Str("reason", reason).Msg("wallet locked")
	return nil
}

// Unlock lifts a wallet freeze.
func (s *WalletService) Unlock(ctx context.Context, userID uuid.UUID) error {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}

	changed, err := s.walletRepo.SetLock(ctx, userID, false, nil)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !changed {
		return apperror.ErrNotLocked()
	}

	s.log.Info().Str("user_id", userID.String()).Msg("wallet unlocked")
	return nil
}

// SetPin hashes and stores the wallet's transaction PIN.
func (s *WalletService) SetPin(ctx context.Context, userID uuid.UUID, pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return apperror.Validation("pin must be 4 to 6 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return apperror.Validation("pin must be 4 to 6 digits")
		}
	}

	hash, err := s.pins.Hash(pin)
	if err != nil {
		return apperror.InternalError(err)
	}

	updated, err := s.walletRepo.SetPin(ctx, userID, hash)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !updated {
		return apperror.ErrWalletNotFound()
	}

	s.log.Info().Str("user_id", userID.String()).Msg("transaction pin set")
	return nil
}

// VerifyPin checks a PIN against the wallet's stored hash.
func (s *WalletService) VerifyPin(ctx context.Context, userID uuid.UUID, pin string) error {
	w, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}
	if !w.HasPin() {
		return apperror.Validation("transaction pin not set")
	}

	ok, err := s.pins.Verify(pin, *w.PinHash)
	if err != nil {
		return apperror.InternalError(err)
	}
	if !ok {
		return apperror.ErrInvalidPin()
	}
	return nil
}

func validateBalanceChange(req ports.BalanceChangeRequest) error {
	if req.Amount <= 0 {
		return apperror.ErrInvalidAmount()
	}
	if !req.Type.IsValid() {
		return apperror.ErrInvalidTransactionType()
	}
	return nil
}

// completedEntry builds a ledger row for a direct balance change that
// settles immediately, with the full pending-to-successful history.
func completedEntry(req ports.BalanceChangeRequest, prev, next int64, now time.Time) *domain.Transaction {
	note := req.Description
	if note == "" {
		note = "completed"
	}
	return &domain.Transaction{
		ID:              uuid.New(),
		Reference:       req.Reference,
		UserID:          req.UserID,
		Type:            req.Type,
		Amount:          req.Amount,
		TotalAmount:     req.Amount,
		PreviousBalance: prev,
		NewBalance:      next,
		Status:          domain.StatusSuccessful,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Note: "transaction created", At: now},
			{Status: domain.StatusSuccessful, Note: note, At: now},
		},
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// createWithReference inserts a ledger row, regenerating the reference on
// collision when it was not supplied by the caller. A caller-supplied
// reference that collides is a hard conflict.
func createWithReference(ctx context.Context, repo ports.TransactionRepository, dbTx pgx.Tx, txn *domain.Transaction, supplied string) error {
	if supplied != "" {
		txn.Reference = supplied
		if err := repo.Create(ctx, dbTx, txn); err != nil {
			if errors.Is(err, ports.ErrDuplicateKey) {
				return apperror.ErrDuplicateReference()
			}
			return apperror.InternalError(err)
		}
		return nil
	}

	for attempt := 0; attempt < referenceAttempts; attempt++ {
		txn.Reference = domain.NewReference()
		err := repo.Create(ctx, dbTx, txn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ports.ErrDuplicateKey) {
			return apperror.InternalError(err)
		}
	}
	return apperror.ErrDuplicateReference()
}
