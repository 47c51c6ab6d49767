package service

import (
	"context"
	"testing"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type transferTestDeps struct {
	svc        *TransferService
	walletRepo *mocks.MockWalletRepository
	txnRepo    *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupTransferService(t *testing.T) *transferTestDeps {
	ctrl := gomock.NewController(t)
	d := &transferTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txnRepo:    mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewTransferService(
		d.walletRepo, d.txnRepo, d.transactor,
		domain.FeePolicy{Rate: 0.02, Minimum: 10},
		zerolog.Nop(),
	)
	return d
}

func TestTransferService_Transfer(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 100000}
	recipientWallet := &domain.Wallet{ID: uuid.New(), UserID: recipientID, Balance: 3000}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return recipientWallet, nil
		}).Times(2)

	var rows []*domain.Transaction
	d.txnRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			rows = append(rows, txn)
			return nil
		}).Times(3)

	var balanceUpdates []ports.WalletBalanceUpdate
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, upd ports.WalletBalanceUpdate) error {
			balanceUpdates = append(balanceUpdates, upd)
			return nil
		}).Times(2)

	// 20000 at 2% = 400 fee
	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      20000,
		Description: "rent split",
	})
	require.NoError(t, err)

	require.Len(t, rows, 3)
	debit, feeEntry, credit := rows[0], rows[1], rows[2]

	// Sender gross row
	assert.Equal(t, senderID, debit.UserID)
	assert.Equal(t, int64(20000), debit.Amount)
	assert.Equal(t, int64(400), debit.Fee)
	assert.Equal(t, int64(20400), debit.TotalAmount)
	assert.Equal(t, int64(100000), debit.PreviousBalance)
	assert.Equal(t, int64(79600), debit.NewBalance)

	// Fee breakdown row
	assert.Equal(t, senderID, feeEntry.UserID)
	assert.Equal(t, int64(400), feeEntry.TotalAmount)
	assert.Equal(t, int64(80000), feeEntry.PreviousBalance)
	assert.Equal(t, int64(79600), feeEntry.NewBalance)

	// Recipient credit row
	assert.Equal(t, recipientID, credit.UserID)
	assert.Equal(t, int64(20000), credit.TotalAmount)
	assert.Equal(t, int64(3000), credit.PreviousBalance)
	assert.Equal(t, int64(23000), credit.NewBalance)

	// Every row satisfies |new - prev| == total_amount
	for _, row := range rows {
		diff := row.NewBalance - row.PreviousBalance
		if diff < 0 {
			diff = -diff
		}
		assert.Equal(t, row.TotalAmount, diff)
		assert.Equal(t, domain.StatusSuccessful, row.Status)
	}

	// All three rows share the linking reference
	assert.Equal(t, debit.Reference, debit.Metadata.LinkedReference)
	assert.Equal(t, debit.Reference, feeEntry.Metadata.LinkedReference)
	assert.Equal(t, debit.Reference, credit.Metadata.LinkedReference)
	assert.NotEqual(t, debit.Reference, feeEntry.Reference)
	assert.NotEqual(t, debit.Reference, credit.Reference)

	require.Len(t, balanceUpdates, 2)
	assert.Equal(t, int64(79600), balanceUpdates[0].Balance)
	assert.Equal(t, int64(20400), balanceUpdates[0].SpentDelta)
	assert.Equal(t, int64(23000), balanceUpdates[1].Balance)
	assert.Equal(t, int64(20000), balanceUpdates[1].FundedDelta)

	assert.Equal(t, int64(79600), result.SenderWallet.Balance)
}

func TestTransferService_Transfer_MinimumFeeApplies(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 1000}
	recipientWallet := &domain.Wallet{ID: uuid.New(), UserID: recipientID, Balance: 0}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return recipientWallet, nil
		}).Times(2)
	d.txnRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(3)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, gomock.Any()).Return(nil).Times(2)

	// 100 at 2% = 2, below the floor of 10
	result, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Debit.Fee)
	assert.Equal(t, int64(110), result.Debit.TotalAmount)
}

func TestTransferService_Transfer_SelfTransferRejected(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderID:    id,
		RecipientID: id,
		Amount:      1000,
	})
	assertAppError(t, err, "TRF_001")
}

func TestTransferService_Transfer_InsufficientForAmountPlusFee(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	// Covers the amount but not amount + fee
	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 20000}
	recipientWallet := &domain.Wallet{ID: uuid.New(), UserID: recipientID, Balance: 0}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return recipientWallet, nil
		}).Times(2)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      20000,
	})
	assertAppError(t, err, "WAL_003")
}

func TestTransferService_Transfer_LockedSenderRejected(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 100000, Locked: true}
	recipientWallet := &domain.Wallet{ID: uuid.New(), UserID: recipientID, Balance: 0}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return recipientWallet, nil
		}).Times(2)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      1000,
	})
	assertAppError(t, err, "WAL_002")
}

func TestTransferService_Transfer_LockedRecipientRejected(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 100000}
	recipientWallet := &domain.Wallet{ID: uuid.New(), UserID: recipientID, Balance: 0, Locked: true}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return recipientWallet, nil
		}).Times(2)

	// Money must not land in a locked wallet
	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      1000,
	})
	assertAppError(t, err, "WAL_002")
}

func TestTransferService_Transfer_MissingRecipientWallet(t *testing.T) {
	d := setupTransferService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	senderID := uuid.New()
	recipientID := uuid.New()
	tx := &mockTx{}

	senderWallet := &domain.Wallet{ID: uuid.New(), UserID: senderID, Balance: 100000}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByUserIDForUpdate(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
			if userID == senderID {
				return senderWallet, nil
			}
			return nil, nil
		}).Times(2)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      1000,
	})
	assertAppError(t, err, "TRF_001")
}
