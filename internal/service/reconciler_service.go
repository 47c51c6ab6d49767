package service

import (
	"context"
	"fmt"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/rs/zerolog"
)

// reconcileCacheTTL covers the redelivery window of every gateway in use.
const reconcileCacheTTL = 24 * time.Hour

// ReconcilerService implements ports.ReconcilerService. It applies
// asynchronous gateway confirmations with at-most-once balance effect per
// reference: the Redis dedupe cache short-circuits obvious redeliveries,
// and the status CAS in Postgres guarantees correctness even when the
// cache lies.
type ReconcilerService struct {
	walletRepo ports.WalletRepository
	txnRepo    ports.TransactionRepository
	transactor ports.DBTransactor
	cache      ports.ReconcileCache
	log        zerolog.Logger
}

// NewReconcilerService creates a new webhook reconciler.
func NewReconcilerService(
	walletRepo ports.WalletRepository,
	txnRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	cache ports.ReconcileCache,
	log zerolog.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		walletRepo: walletRepo,
		txnRepo:    txnRepo,
		transactor: transactor,
		cache:      cache,
		log:        log,
	}
}

// ReconcilePaymentSuccess credits a wallet for a confirmed funding
// payment. Redeliveries and replays are no-ops. When the gateway confirms
// an amount different from the one requested, the confirmed amount wins
// and the discrepancy is recorded in the entry's history.
func (s *ReconcilerService) ReconcilePaymentSuccess(ctx context.Context, reference string, confirmedAmount int64) error {
	if s.seen(ctx, reference) {
		return nil
	}

	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if txn == nil {
		// Unknown references are acknowledged, not rejected: the event
		// may be unrelated or delayed, and a 4xx only makes the gateway
		// redeliver it forever.
		s.log.Warn().Str("reference", reference).Msg("payment confirmation for unknown reference ignored")
		return nil
	}
	if txn.Type != domain.TypeFundWallet {
		return apperror.Validation("reference does not belong to a funding transaction")
	}
	if txn.Status.IsTerminal() {
		s.mark(ctx, reference)
		return nil
	}

	note := "payment confirmed by gateway"
	if confirmedAmount != txn.Amount {
		note = fmt.Sprintf("payment confirmed by gateway, amount mismatch: requested %d, confirmed %d", txn.Amount, confirmedAmount)
		s.log.Warn().
			Str("reference", reference).
			Int64("requested", txn.Amount).
			Int64("confirmed", confirmedAmount).
			Msg("webhook amount mismatch")
	}

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

	// The state machine has no pending -> successful edge, so a fresh
	// confirmation passes through processing inside the same transaction.
	if txn.Status == domain.StatusPending {
		if _, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
			ID:   txn.ID,
			From: []domain.TransactionStatus{domain.StatusPending},
			To:   domain.StatusProcessing,
			Note: "gateway confirmation received",
		}); err != nil {
			return apperror.InternalError(err)
		}
	}

	newBalance := w.Balance + confirmedAmount
	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:              txn.ID,
		From:            []domain.TransactionStatus{domain.StatusProcessing},
		To:              domain.StatusSuccessful,
		Note:            note,
		PreviousBalance: &w.Balance,
		NewBalance:      &newBalance,
	})
	if err != nil {
		return apperror.InternalError(err)
	}
	if !applied {
		// A concurrent delivery won the CAS; its commit carries the credit.
		return nil
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, ports.WalletBalanceUpdate{
		WalletID:    w.ID,
		Balance:     newBalance,
		FundedDelta: confirmedAmount,
		At:          time.Now().UTC(),
	}); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.mark(ctx, reference)
	s.log.Info().
		Str("reference", reference).
		Int64("amount", confirmedAmount).
		Int64("new_balance", newBalance).
		Msg("funding payment reconciled")
	return nil
}

// ReconcilePaymentFailure marks a pending funding payment failed. No
// balance was ever touched, so there is nothing to reverse.
func (s *ReconcilerService) ReconcilePaymentFailure(ctx context.Context, reference string) error {
	if s.seen(ctx, reference) {
		return nil
	}

	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if txn == nil {
		s.log.Warn().Str("reference", reference).Msg("payment failure for unknown reference ignored")
		return nil
	}
	if txn.Type != domain.TypeFundWallet {
		return apperror.Validation("reference does not belong to a funding transaction")
	}
	if txn.Status.IsTerminal() || txn.Status == domain.StatusFailed {
		s.mark(ctx, reference)
		return nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	if _, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:   txn.ID,
		From: []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		To:   domain.StatusFailed,
		Note: "payment failed at gateway",
	}); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.mark(ctx, reference)
	s.log.Info().Str("reference", reference).Msg("funding failure reconciled")
	return nil
}

// ReconcileTransferFailure reverses a withdrawal the bank gateway
// reported as failed: the entry moves through failed to refunded and the
// reserved funds return to the wallet, all in one database transaction.
func (s *ReconcilerService) ReconcileTransferFailure(ctx context.Context, reference string) error {
	if s.seen(ctx, reference) {
		return nil
	}

	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if txn == nil {
		s.log.Warn().Str("reference", reference).Msg("transfer failure for unknown reference ignored")
		return nil
	}
	if txn.Type != domain.TypeWithdrawal {
		return apperror.Validation("reference does not belong to a withdrawal")
	}
	if txn.Status == domain.StatusRefunded || txn.Status == domain.StatusCancelled {
		s.mark(ctx, reference)
		return nil
	}

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

	// A withdrawal that never reserved funds just fails in place.
	if txn.Status == domain.StatusPending {
		if _, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
			ID:   txn.ID,
			From: []domain.TransactionStatus{domain.StatusPending},
			To:   domain.StatusFailed,
			Note: "transfer failed at gateway",
		}); err != nil {
			return apperror.InternalError(err)
		}
		if err := dbTx.Commit(ctx); err != nil {
			return apperror.InternalError(err)
		}
		s.mark(ctx, reference)
		return nil
	}

	if txn.Status == domain.StatusProcessing {
		if _, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
			ID:   txn.ID,
			From: []domain.TransactionStatus{domain.StatusProcessing},
			To:   domain.StatusFailed,
			Note: "transfer failed at gateway",
		}); err != nil {
			return apperror.InternalError(err)
		}
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
		// Nothing was reserved, or a concurrent delivery already refunded.
		if err := dbTx.Commit(ctx); err != nil {
			return apperror.InternalError(err)
		}
		s.mark(ctx, reference)
		return nil
	}

	now := time.Now().UTC()
	refund := refundEntry(txn, w.Balance, now)
	if err := createWithReference(ctx, s.txnRepo, dbTx, refund, ""); err != nil {
		return err
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, ports.WalletBalanceUpdate{
		WalletID:       w.ID,
		Balance:        w.Balance + txn.TotalAmount,
		WithdrawnDelta: -txn.TotalAmount,
		At:             now,
	}); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.mark(ctx, reference)
	s.log.Info().
		Str("reference", reference).
		Str("refund_reference", refund.Reference).
		Int64("amount", txn.TotalAmount).
		Msg("failed withdrawal reversed")
	return nil
}

// ReconcileTransferSuccess settles a withdrawal the bank gateway
// confirmed. Withdrawals stay in processing after a provider accepts
// them; this confirmation is what moves them to successful.
func (s *ReconcilerService) ReconcileTransferSuccess(ctx context.Context, reference string) error {
	if s.seen(ctx, reference) {
		return nil
	}

	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.InternalError(err)
	}
	if txn == nil {
		s.log.Warn().Str("reference", reference).Msg("transfer confirmation for unknown reference ignored")
		return nil
	}
	if txn.Type != domain.TypeWithdrawal {
		return apperror.Validation("reference does not belong to a withdrawal")
	}
	if txn.Status.IsTerminal() {
		s.mark(ctx, reference)
		return nil
	}
	if txn.Status == domain.StatusPending {
		// The withdrawal has not reached a provider yet. Leave the cache
		// unmarked so a redelivery after settlement can still confirm.
		s.log.Warn().Str("reference", reference).Msg("transfer confirmation arrived before settlement, ignored")
		return nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	if _, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:   txn.ID,
		From: []domain.TransactionStatus{domain.StatusProcessing},
		To:   domain.StatusSuccessful,
		Note: "transfer confirmed by gateway",
	}); err != nil {
		return apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(err)
	}

	s.mark(ctx, reference)
	s.log.Info().Str("reference", reference).Msg("withdrawal confirmed")
	return nil
}

// seen consults the dedupe cache. Cache errors degrade to a database
// round trip, never to a dropped webhook.
func (s *ReconcilerService) seen(ctx context.Context, reference string) bool {
	seen, err := s.cache.Seen(ctx, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("reconcile cache unavailable")
		return false
	}
	if seen {
		s.log.Debug().Str("reference", reference).Msg("webhook redelivery ignored")
	}
	return seen
}

func (s *ReconcilerService) mark(ctx context.Context, reference string) {
	if err := s.cache.Mark(ctx, reference, reconcileCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("failed to mark reconcile cache")
	}
}
