package service

import (
	"context"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerService implements ports.LedgerService. The ledger is append-only
// in spirit: entries are created pending and only ever move along the
// status state machine, with every move recorded in status_history.
type LedgerService struct {
	txnRepo    ports.TransactionRepository
	transactor ports.DBTransactor
	maxRetries int
	log        zerolog.Logger
}

// NewLedgerService creates a new ledger service. maxRetries caps manual
// retries on entries it creates.
func NewLedgerService(
	txnRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	maxRetries int,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		txnRepo:    txnRepo,
		transactor: transactor,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Create records a new pending ledger entry. No balance is touched here:
// reservation happens when the settlement orchestrator picks the entry up.
func (s *LedgerService) Create(ctx context.Context, spec ports.CreateTransactionSpec) (*domain.Transaction, error) {
	if spec.Amount <= 0 || spec.Fee < 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !spec.Type.IsValid() {
		return nil, apperror.ErrInvalidTransactionType()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		Reference:   spec.Reference,
		UserID:      spec.UserID,
		Type:        spec.Type,
		Amount:      spec.Amount,
		Fee:         spec.Fee,
		TotalAmount: spec.Amount + spec.Fee,
		Status:      domain.StatusPending,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Note: "transaction created", At: now},
		},
		MaxRetries: s.maxRetries,
		Metadata:   spec.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	if err := createWithReference(ctx, s.txnRepo, dbTx, txn, spec.Reference); err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("type", string(txn.Type)).
		Int64("total_amount", txn.TotalAmount).
		Msg("ledger entry created")
	return txn, nil
}

// Transition moves an entry to a new status, enforcing the state machine.
// The move is a compare-and-set on the entry's current status, so two
// racing transitions can never both apply.
func (s *LedgerService) Transition(ctx context.Context, id uuid.UUID, to domain.TransactionStatus, note string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	if !domain.CanTransition(txn.Status, to) {
		return nil, apperror.ErrInvalidTransition(string(txn.Status), string(to))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	applied, err := s.txnRepo.UpdateStatusCAS(ctx, dbTx, ports.TransactionStatusUpdate{
		ID:   id,
		From: []domain.TransactionStatus{txn.Status},
		To:   to,
		Note: note,
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

	updated, err := s.txnRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return updated, nil
}

// FindByReference retrieves an entry by its reference.
func (s *LedgerService) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, err := s.txnRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if txn == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	return txn, nil
}

// List retrieves a filtered page of a user's entries, newest first.
func (s *LedgerService) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	txns, total, err := s.txnRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

// Stats aggregates a user's lifetime transaction figures.
func (s *LedgerService) Stats(ctx context.Context, userID uuid.UUID) (*ports.TransactionStats, error) {
	stats, err := s.txnRepo.GetStats(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return stats, nil
}
