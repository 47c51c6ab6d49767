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

type ledgerTestDeps struct {
	svc        *LedgerService
	txnRepo    *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		txnRepo:    mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.txnRepo, d.transactor, 3, zerolog.Nop())
	return d
}

func TestLedgerService_Create(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	var created *domain.Transaction
	d.txnRepo.EXPECT().Create(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			created = txn
			return nil
		})

	txn, err := d.svc.Create(ctx, ports.CreateTransactionSpec{
		UserID: userID,
		Type:   domain.TypeElectricity,
		Amount: 150000,
		Fee:    1000,
		Metadata: domain.Metadata{
			Electricity: &domain.ElectricityDetails{Disco: "ikeja", MeterNumber: "45027613378", MeterType: "prepaid"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.Equal(t, int64(151000), txn.TotalAmount)
	assert.Equal(t, 3, txn.MaxRetries)
	require.Len(t, created.StatusHistory, 1)
	assert.Equal(t, domain.StatusPending, created.StatusHistory[0].Status)
	assert.NotEmpty(t, created.Reference)
}

func TestLedgerService_Create_RegeneratesReferenceOnCollision(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	var first, second string
	gomock.InOrder(
		d.txnRepo.EXPECT().Create(ctx, tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
				first = txn.Reference
				return ports.ErrDuplicateKey
			}),
		d.txnRepo.EXPECT().Create(ctx, tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
				second = txn.Reference
				return nil
			}),
	)

	txn, err := d.svc.Create(ctx, ports.CreateTransactionSpec{
		UserID: uuid.New(),
		Type:   domain.TypeAirtimeRecharge,
		Amount: 5000,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, txn.Reference)
}

func TestLedgerService_Create_InvalidType(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Create(context.Background(), ports.CreateTransactionSpec{
		UserID: uuid.New(),
		Type:   domain.TransactionType("crypto_swap"),
		Amount: 5000,
	})
	assertAppError(t, err, "TXN_008")
}

func TestLedgerService_Transition(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	tx := &mockTx{}
	pending := &domain.Transaction{ID: id, Status: domain.StatusPending}
	processing := &domain.Transaction{ID: id, Status: domain.StatusProcessing}

	d.txnRepo.EXPECT().GetByID(ctx, id).Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txnRepo.EXPECT().UpdateStatusCAS(ctx, tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ pgx.Tx, upd ports.TransactionStatusUpdate) (bool, error) {
			assert.Equal(t, []domain.TransactionStatus{domain.StatusPending}, upd.From)
			assert.Equal(t, domain.StatusProcessing, upd.To)
			return true, nil
		})
	d.txnRepo.EXPECT().GetByID(ctx, id).Return(processing, nil)

	txn, err := d.svc.Transition(ctx, id, domain.StatusProcessing, "picked up")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)
}

func TestLedgerService_Transition_InvalidEdge(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.txnRepo.EXPECT().GetByID(ctx, id).
		Return(&domain.Transaction{ID: id, Status: domain.StatusSuccessful}, nil)

	_, err := d.svc.Transition(ctx, id, domain.StatusFailed, "no going back")
	assertAppError(t, err, "TXN_002")
}

func TestLedgerService_Transition_LostRace(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	tx := &mockTx{}

	d.txnRepo.EXPECT().GetByID(ctx, id).
		Return(&domain.Transaction{ID: id, Status: domain.StatusFailed}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txnRepo.EXPECT().UpdateStatusCAS(ctx, tx, gomock.Any()).Return(false, nil)

	_, err := d.svc.Transition(ctx, id, domain.StatusRefunded, "reversal")
	assertAppError(t, err, "TXN_003")
}

func TestLedgerService_FindByReference_NotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txnRepo.EXPECT().GetByReference(ctx, "TXN-NOPE").Return(nil, nil)

	_, err := d.svc.FindByReference(ctx, "TXN-NOPE")
	assertAppError(t, err, "TXN_001")
}

func TestLedgerService_Stats(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	d.txnRepo.EXPECT().GetStats(ctx, userID).
		Return(&ports.TransactionStats{TotalTransactions: 4, Successful: 3, TotalSpent: 90000}, nil)

	stats, err := d.svc.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalTransactions)
	assert.Equal(t, int64(90000), stats.TotalSpent)
}
