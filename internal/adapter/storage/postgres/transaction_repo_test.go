package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(userID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Transaction{
		ID:          uuid.New(),
		Reference:   domain.NewReference(),
		UserID:      userID,
		Type:        domain.TypeAirtimeRecharge,
		Amount:      10000,
		Fee:         0,
		TotalAmount: 10000,
		Status:      domain.StatusPending,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Note: "transaction created", At: now},
		},
		MaxRetries: 3,
		Metadata: domain.Metadata{
			Airtime: &domain.AirtimeDetails{Network: "mtn", PhoneNumber: "08031234567"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func transactionTestColumns() []string {
	return []string{
		"id", "reference", "user_id", "type", "amount", "fee", "total_amount",
		"previous_balance", "new_balance", "status", "status_history", "provider",
		"provider_response", "tried_providers", "retry_count", "max_retries",
		"funds_reserved", "metadata", "created_at", "updated_at",
	}
}

func transactionRow(t *testing.T, txn *domain.Transaction) *pgxmock.Rows {
	t.Helper()
	historyJSON, err := json.Marshal(txn.StatusHistory)
	require.NoError(t, err)
	metadataJSON, err := json.Marshal(txn.Metadata)
	require.NoError(t, err)

	return pgxmock.NewRows(transactionTestColumns()).AddRow(
		txn.ID, txn.Reference, txn.UserID, txn.Type, txn.Amount, txn.Fee, txn.TotalAmount,
		txn.PreviousBalance, txn.NewBalance, txn.Status, historyJSON, txn.Provider,
		[]byte(txn.ProviderResponse), txn.TriedProviders, txn.RetryCount, txn.MaxRetries,
		txn.FundsReserved, metadataJSON, txn.CreatedAt, txn.UpdatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.Reference, txn.UserID, txn.Type, txn.Amount, txn.Fee,
			txn.TotalAmount, txn.PreviousBalance, txn.NewBalance, txn.Status,
			pgxmock.AnyArg(), txn.Provider, pgxmock.AnyArg(), txn.TriedProviders,
			txn.RetryCount, txn.MaxRetries, txn.FundsReserved, pgxmock.AnyArg(),
			txn.CreatedAt, txn.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)

	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.Reference, txn.UserID, txn.Type, txn.Amount, txn.Fee,
			txn.TotalAmount, txn.PreviousBalance, txn.NewBalance, txn.Status,
			pgxmock.AnyArg(), txn.Provider, pgxmock.AnyArg(), txn.TriedProviders,
			txn.RetryCount, txn.MaxRetries, txn.FundsReserved, pgxmock.AnyArg(),
			txn.CreatedAt, txn.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_reference_key"})
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.True(t, errors.Is(err, ports.ErrDuplicateKey))

	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE reference").
		WithArgs(txn.Reference).
		WillReturnRows(transactionRow(t, txn))

	result, err := repo.GetByReference(context.Background(), txn.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, domain.StatusPending, result.Status)
	require.Len(t, result.StatusHistory, 1)
	assert.Equal(t, "transaction created", result.StatusHistory[0].Note)
	require.NotNil(t, result.Metadata.Airtime)
	assert.Equal(t, "mtn", result.Metadata.Airtime.Network)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE reference").
		WithArgs("TXN-MISSING").
		WillReturnRows(pgxmock.NewRows(transactionTestColumns()))

	result, err := repo.GetByReference(context.Background(), "TXN-MISSING")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatusCAS_Applied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.StatusProcessing, pgxmock.AnyArg(), id, []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.UpdateStatusCAS(context.Background(), tx, ports.TransactionStatusUpdate{
		ID:   id,
		From: []domain.TransactionStatus{domain.StatusPending},
		To:   domain.StatusProcessing,
		Note: "settlement started",
	})
	assert.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, tx.Commit(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatusCAS_StatusMoved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	// Row already left the expected status, CAS affects nothing
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.StatusRefunded, pgxmock.AnyArg(), pgxmock.AnyArg(), id, []string{"failed"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	reserved := false
	applied, err := repo.UpdateStatusCAS(context.Background(), tx, ports.TransactionStatusUpdate{
		ID:                   id,
		From:                 []domain.TransactionStatus{domain.StatusFailed},
		To:                   domain.StatusRefunded,
		Note:                 "funds reversed",
		FundsReserved:        &reserved,
		RequireFundsReserved: true,
	})
	assert.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_RecordAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE transactions").
		WithArgs(pgxmock.AnyArg(), "vtpass", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.RecordAttempt(context.Background(), id, "vtpass", "provider vtpass rejected: insufficient float")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())
	status := domain.StatusPending

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
		WithArgs(txn.UserID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE user_id = \\$1 AND status = \\$2 ORDER BY created_at DESC").
		WithArgs(txn.UserID, status, 20, 0).
		WillReturnRows(transactionRow(t, txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		UserID: txn.UserID,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.Reference, txns[0].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	userID := uuid.New()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{
			"count", "successful", "failed", "refunded", "total_funded", "total_spent",
		}).AddRow(int64(10), int64(7), int64(2), int64(1), int64(500000), int64(320000)))

	stats, err := repo.GetStats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalTransactions)
	assert.Equal(t, int64(7), stats.Successful)
	assert.Equal(t, int64(500000), stats.TotalFunded)
	assert.Equal(t, int64(320000), stats.TotalSpent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
