package service

import (
	"context"
	"fmt"
	"time"

	"vtupay/config"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SettlementService implements ports.SettlementService. Settlement runs in
// two phases: reservation (one database transaction that debits the wallet
// under its row lock and moves the entry to processing) and fulfillment
// (provider calls outside any database transaction, so a slow provider
// never holds a row lock). When fulfillment exhausts every candidate the
// reservation is reversed in the same call: the wallet is credited back
// and an independent refund entry records the return, so the failure is
// never observable with the user's money still held.
type SettlementService struct {
	walletRepo ports.WalletRepository
	txnRepo    ports.TransactionRepository
	transactor ports.DBTransactor
	registry   ports.ProviderRegistry
	adapters   map[string]ports.ProviderAdapter
	cfg        config.SettlementConfig
	log        zerolog.Logger
}

// NewSettlementService creates a new settlement orchestrator. adapters
// maps provider names to their outbound adapters.
func NewSettlementService(
	walletRepo ports.WalletRepository,
	txnRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	registry ports.ProviderRegistry,
	adapters map[string]ports.ProviderAdapter,
	cfg config.SettlementConfig,
	log zerolog.Logger,
) *SettlementService {
	return &SettlementService{
		walletRepo: walletRepo,
		txnRepo:    txnRepo,
		transactor: transactor,
		registry:   registry,
		adapters:   adapters,
		cfg:        cfg,
		log:        log,
	}
}

// settleable reports whether a transaction type is fulfilled by an
// external provider. Funding and peer transfers settle internally.
func settleable(t domain.TransactionType) bool {
	return t != domain.TypeFundWallet && t != domain.TypeWalletTransfer
}

// Settle reserves funds for a pending transaction and drives it through
// provider fulfillment.
func (s *SettlementService) Settle(ctx context.Context, reference string, preferredProvider string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	if !settleable(txn.Type) {
		return nil, apperror.Validation("transaction type does not settle through a provider")
	}
	if txn.Status != domain.StatusPending {
		return nil, apperror.ErrAlreadyProcessed()
	}

	if err := s.reserve(ctx, txn); err != nil {
		return nil, err
	}

	return s.fulfill(ctx, txn.ID, preferredProvider)
}

// Retry re-runs fulfillment for a failed transaction whose funds are
// still reserved, which only happens when a reversal could not complete.
// The retry itself is a CAS back to processing, so a concurrent refund
// and a concurrent retry can never both win.
func (s *SettlementService) Retry(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	if txn.Status == domain.StatusRefunded {
		return nil, apperror.ErrAlreadyRefunded()
	}
	if txn.Status != domain.StatusFailed || !txn.FundsReserved {
		return nil, apperror.ErrAlreadyProcessed()
	}
	if txn.RetryCount >= txn.MaxRetries {
		return nil, apperror.ErrMaxRetriesExceeded()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:                   txn.ID,
		From:                 []domain.TransactionStatus{domain.StatusFailed},
		To:                   domain.StatusProcessing,
		Note:                 fmt.Sprintf("manual retry %d of %d", txn.RetryCount+1, txn.MaxRetries),
		IncrementRetry:       true,
		RequireFundsReserved: true,
	})
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !applied {
		return nil, apperror.ErrAlreadyProcessed()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("reference", reference).Int("attempt", txn.RetryCount+1).Msg("settlement retry started")
	return s.fulfill(ctx, txn.ID, "")
}

// reserve debits the wallet and moves the entry to processing in one
// database transaction. A short-circuit failure (locked wallet, thin
// balance) marks the entry failed without reserving anything, which also
// makes it unretryable.
func (s *SettlementService) reserve(ctx context.Context, txn *domain.Transaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	w, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, txn.UserID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}

	if w.Locked {
		return s.failUnreserved(ctx, dbTx, txn, "wallet locked", apperror.ErrWalletLocked())
	}
	if w.Balance < txn.TotalAmount {
		return s.failUnreserved(ctx, dbTx, txn, "insufficient balance", apperror.ErrInsufficientBalance())
	}

	now := time.Now().UTC()
	newBalance := w.Balance - txn.TotalAmount
	reserved := true

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:              txn.ID,
		From:            []domain.TransactionStatus{domain.StatusPending},
		To:              domain.StatusProcessing,
		Note:            "funds reserved",
		PreviousBalance: &w.Balance,
		NewBalance:      &newBalance,
		FundsReserved:   &reserved,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if !applied {
		return apperror.ErrAlreadyProcessed()
	}

	upd := ports.WalletBalanceUpdate{WalletID: w.ID, Balance: newBalance, At: now}
	if txn.Type == domain.TypeWithdrawal {
		upd.WithdrawnDelta = txn.TotalAmount
	} else {
		upd.SpentDelta = txn.TotalAmount
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, upd); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Int64("total_amount", txn.TotalAmount).
		Int64("new_balance", newBalance).
		Msg("funds reserved")
	return nil
}

// failUnreserved marks a pending entry failed without touching the wallet,
// commits, and surfaces the caller-facing error.
func (s *SettlementService) failUnreserved(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, note string, cause error) error {
	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:   txn.ID,
		From: []domain.TransactionStatus{domain.StatusPending},
		To:   domain.StatusFailed,
		Note: note,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if !applied {
		return apperror.ErrAlreadyProcessed()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}
	return cause
}

// fulfill walks the ranked provider list until one accepts. Provider calls
// run outside any database transaction under a bounded per-attempt timeout.
func (s *SettlementService) fulfill(ctx context.Context, txnID uuid.UUID, preferred string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByID(ctx, txnID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}

	providers, err := s.registry.Select(ctx, txn.Type, preferred)
	if err != nil {
		if failErr := s.markFailed(ctx, txn, "no eligible provider"); failErr != nil {
			return nil, failErr
		}
		return s.finishFailed(ctx, txn.ID)
	}

	for _, p := range providers {
		if txn.HasTried(p.Name) {
			continue
		}
		adapter, ok := s.adapters[p.Name]
		if !ok {
			s.log.Warn().Str("provider", p.Name).Msg("provider registered without adapter, skipping")
			continue
		}

		result, err := s.attempt(ctx, adapter, txn)
		if err != nil {
			s.registry.RecordOutcome(ctx, p.Name, false)
			note := fmt.Sprintf("provider %s error: %v", p.Name, err)
			if recErr := s.txnRepo.RecordAttempt(ctx, txn.ID, p.Name, note); recErr != nil {
				s.log.Error().Err(recErr).Str("reference", txn.Reference).Msg("failed to record attempt")
			}
			txn.TriedProviders = append(txn.TriedProviders, p.Name)
			continue
		}

		if !result.Success {
			s.registry.RecordOutcome(ctx, p.Name, false)
			note := fmt.Sprintf("provider %s rejected: %s", p.Name, result.Message)
			if recErr := s.txnRepo.RecordAttempt(ctx, txn.ID, p.Name, note); recErr != nil {
				s.log.Error().Err(recErr).Str("reference", txn.Reference).Msg("failed to record attempt")
			}
			txn.TriedProviders = append(txn.TriedProviders, p.Name)
			continue
		}

		s.registry.RecordOutcome(ctx, p.Name, true)
		if txn.Type == domain.TypeWithdrawal {
			return s.markAccepted(ctx, txn, p.Name, result)
		}
		return s.markSuccessful(ctx, txn, p.Name, result)
	}

	if err := s.markFailed(ctx, txn, "all providers exhausted"); err != nil {
		return nil, err
	}
	return s.finishFailed(ctx, txn.ID)
}

// attempt calls one provider under the configured timeout.
func (s *SettlementService) attempt(ctx context.Context, adapter ports.ProviderAdapter, txn *domain.Transaction) (*ports.ProviderResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	return adapter.Fulfill(attemptCtx, txn)
}

func (s *SettlementService) markSuccessful(ctx context.Context, txn *domain.Transaction, provider string, result *ports.ProviderResult) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:               txn.ID,
		From:             []domain.TransactionStatus{domain.StatusProcessing},
		To:               domain.StatusSuccessful,
		Note:             fmt.Sprintf("fulfilled by %s", provider),
		Provider:         &provider,
		ProviderResponse: result.RawResponse,
	})
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !applied {
		return nil, apperror.ErrAlreadyProcessed()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("provider", provider).
		Msg("settlement successful")

	updated, err := s.txnRepo.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return updated, nil
}

// markAccepted records provider acceptance of a withdrawal without
// finishing it. A bank transfer is only final when the gateway confirms
// delivery, so the entry stays processing until the transfer webhook
// arrives and the reconciler settles it either way.
func (s *SettlementService) markAccepted(ctx context.Context, txn *domain.Transaction, provider string, result *ports.ProviderResult) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:               txn.ID,
		From:             []domain.TransactionStatus{domain.StatusProcessing},
		To:               domain.StatusProcessing,
		Note:             fmt.Sprintf("accepted by %s, awaiting transfer confirmation", provider),
		Provider:         &provider,
		ProviderResponse: result.RawResponse,
	})
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !applied {
		return nil, apperror.ErrAlreadyProcessed()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("provider", provider).
		Msg("withdrawal accepted, awaiting gateway confirmation")

	updated, err := s.txnRepo.GetByID(ctx, txn.ID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return updated, nil
}

// markFailed moves a processing entry to failed, funds still reserved.
func (s *SettlementService) markFailed(ctx context.Context, txn *domain.Transaction, note string) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:   txn.ID,
		From: []domain.TransactionStatus{domain.StatusProcessing},
		To:   domain.StatusFailed,
		Note: note,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if !applied {
		return apperror.ErrAlreadyProcessed()
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Warn().Str("reference", txn.Reference).Str("note", note).Msg("settlement failed")
	return nil
}

// finishFailed reverses the reservation as soon as fulfillment is
// exhausted, so the failure and the returned funds are observable
// together. Nothing is reversed for a short-circuit failure that never
// reserved anything.
func (s *SettlementService) finishFailed(ctx context.Context, txnID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByID(ctx, txnID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}

	if txn.FundsReserved && txn.Status == domain.StatusFailed {
		if err := s.reverse(ctx, txn); err != nil {
			return nil, err
		}
		reversed, err := s.txnRepo.GetByID(ctx, txnID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		return reversed, nil
	}

	return txn, nil
}

// reverse credits the reserved funds back, moves failed to refunded and
// writes the independent refund entry documenting the return. The CAS
// carries the funds_reserved guard, so a reversal can apply at most once
// per transaction, and the refund entry is created only when it does.
func (s *SettlementService) reverse(ctx context.Context, txn *domain.Transaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	w, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, txn.UserID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if w == nil {
		return apperror.ErrWalletNotFound()
	}

	unreserved := false
	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:                   txn.ID,
		From:                 []domain.TransactionStatus{domain.StatusFailed},
		To:                   domain.StatusRefunded,
		Note:                 fmt.Sprintf("reserved funds of %d returned", txn.TotalAmount),
		FundsReserved:        &unreserved,
		RequireFundsReserved: true,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if !applied {
		// Lost the race to a concurrent retry or reversal
		return nil
	}

	now := time.Now().UTC()
	refund := refundEntry(txn, w.Balance, now)
	if err := createWithReference(ctx, s.txnRepo, dbTx, refund, ""); err != nil {
		return err
	}

	upd := ports.WalletBalanceUpdate{WalletID: w.ID, Balance: w.Balance + txn.TotalAmount, At: now}
	if txn.Type == domain.TypeWithdrawal {
		upd.WithdrawnDelta = -txn.TotalAmount
	} else {
		upd.SpentDelta = -txn.TotalAmount
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, upd); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("refund_reference", refund.Reference).
		Int64("amount", txn.TotalAmount).
		Msg("reservation reversed")
	return nil
}

// refundEntry builds the independent ledger row that returns a failed
// debit. The original entry keeps its failed history; the credit is
// auditable on its own row, tied back through metadata.
func refundEntry(orig *domain.Transaction, balance int64, now time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:              uuid.New(),
		UserID:          orig.UserID,
		Type:            orig.Type,
		Amount:          orig.TotalAmount,
		TotalAmount:     orig.TotalAmount,
		PreviousBalance: balance,
		NewBalance:      balance + orig.TotalAmount,
		Status:          domain.StatusSuccessful,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Note: "transaction created", At: now},
			{Status: domain.StatusSuccessful, Note: fmt.Sprintf("refund for %s", orig.Reference), At: now},
		},
		Metadata:  domain.Metadata{RefundFor: orig.Reference},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
