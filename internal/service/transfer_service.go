package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// TransferService implements ports.TransferService. A transfer commits
// three ledger rows and two balance updates in one database transaction:
// the sender's gross debit, the sender's fee breakdown, and the
// recipient's credit. Both wallet row locks are taken in a fixed order so
// two opposing transfers cannot deadlock.
type TransferService struct {
	walletRepo ports.WalletRepository
	txnRepo    ports.TransactionRepository
	transactor ports.DBTransactor
	feePolicy  domain.FeePolicy
	log        zerolog.Logger
}

// NewTransferService creates a new peer transfer service.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txnRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	feePolicy domain.FeePolicy,
	log zerolog.Logger,
) *TransferService {
	return &TransferService{
		walletRepo: walletRepo,
		txnRepo:    txnRepo,
		transactor: transactor,
		feePolicy:  feePolicy,
		log:        log,
	}
}

// Transfer moves amount from sender to recipient, charging the sender the
// configured fee on top.
func (s *TransferService) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.SenderID == req.RecipientID {
		return nil, apperror.ErrInvalidRecipient()
	}

	fee := s.feePolicy.FeeFor(req.Amount)
	total := req.Amount + fee

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	sender, recipient, err := s.lockBoth(ctx, dbTx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, err
	}
	if sender.Locked || recipient.Locked {
		return nil, apperror.ErrWalletLocked()
	}
	if sender.Balance < total {
		return nil, apperror.ErrInsufficientBalance()
	}

	now := time.Now().UTC()
	details := &domain.TransferDetails{SenderUserID: req.SenderID, RecipientUserID: req.RecipientID}

	note := req.Description
	if note == "" {
		note = "wallet transfer"
	}

	// The debit row's reference links the whole movement.
	linked := domain.NewReference()
	debit := transferEntry(req.SenderID, req.Amount, fee, now)
	debit.PreviousBalance = sender.Balance
	debit.NewBalance = sender.Balance - total
	debit.StatusHistory[1].Note = note
	debit.Metadata = domain.Metadata{Transfer: details, LinkedReference: linked}
	if err := createWithReference(ctx, s.txnRepo, dbTx, debit, linked); err != nil {
		return nil, err
	}

	feeEntry := transferEntry(req.SenderID, fee, 0, now)
	feeEntry.PreviousBalance = sender.Balance - req.Amount
	feeEntry.NewBalance = sender.Balance - total
	feeEntry.StatusHistory[1].Note = "transfer fee"
	feeEntry.Metadata = domain.Metadata{Transfer: details, LinkedReference: linked}
	if err := createWithReference(ctx, s.txnRepo, dbTx, feeEntry, ""); err != nil {
		return nil, err
	}

	credit := transferEntry(req.RecipientID, req.Amount, 0, now)
	credit.PreviousBalance = recipient.Balance
	credit.NewBalance = recipient.Balance + req.Amount
	credit.StatusHistory[1].Note = fmt.Sprintf("received from %s", shortID(req.SenderID))
	credit.Metadata = domain.Metadata{Transfer: details, LinkedReference: linked}
	if err := createWithReference(ctx, s.txnRepo, dbTx, credit, ""); err != nil {
		return nil, err
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, ports.WalletBalanceUpdate{
		WalletID:   sender.ID,
		Balance:    sender.Balance - total,
		SpentDelta: total,
		At:         now,
	}); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, ports.WalletBalanceUpdate{
		WalletID:    recipient.ID,
		Balance:     recipient.Balance + req.Amount,
		FundedDelta: req.Amount,
		At:          now,
	}); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	sender.Balance -= total
	s.log.Info().
		Str("sender", req.SenderID.String()).
		Str("recipient", req.RecipientID.String()).
		Str("reference", linked).
		Int64("amount", req.Amount).
		Int64("fee", fee).
		Msg("transfer completed")

	return &ports.TransferResult{
		SenderWallet: sender,
		Debit:        debit,
		FeeEntry:     feeEntry,
		Credit:       credit,
	}, nil
}

// lockBoth takes both wallet row locks in UUID order.
func (s *TransferService) lockBoth(ctx context.Context, dbTx pgx.Tx, senderID, recipientID uuid.UUID) (sender, recipient *domain.Wallet, err error) {
	first, second := senderID, recipientID
	if bytes.Compare(recipientID[:], senderID[:]) < 0 {
		first, second = recipientID, senderID
	}

	w1, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, first)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	w2, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, second)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}

	for _, w := range []*domain.Wallet{w1, w2} {
		if w == nil {
			continue
		}
		if w.UserID == senderID {
			sender = w
		} else {
			recipient = w
		}
	}
	if sender == nil {
		return nil, nil, apperror.ErrWalletNotFound()
	}
	if recipient == nil {
		return nil, nil, apperror.ErrInvalidRecipient()
	}
	return sender, recipient, nil
}

// transferEntry builds one completed wallet_transfer row.
func transferEntry(userID uuid.UUID, amount, fee int64, now time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        domain.TypeWalletTransfer,
		Amount:      amount,
		Fee:         fee,
		TotalAmount: amount + fee,
		Status:      domain.StatusSuccessful,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Note: "transaction created", At: now},
			{Status: domain.StatusSuccessful, Note: "", At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
