package sqldb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/contract-ledger/ledger"
	"github.com/warp/contract-ledger/store/sqldb"
)

var partiesColumns = []string{
	"job_id", "description", "price_cents", "paid", "payment_date", "job_version",
	"contract_id", "terms", "status",
	"client_id", "client_first_name", "client_last_name", "client_profession",
	"client_balance_cents", "client_type", "client_version",
	"contractor_id", "contractor_first_name", "contractor_last_name", "contractor_profession",
	"contractor_balance_cents", "contractor_type", "contractor_version",
}

// newMockPayments returns a payment engine whose store talks to sqlmock.
// Job 1 costs 50.00 on contract 10 between client 1 (v3) and contractor 2 (v7).
func newMockPayments(t *testing.T) (*ledger.Payments, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqldb.New(sqlx.NewDb(db, "sqlite3"))
	payments := ledger.NewPayments(store, func() string { return "01HZX5Q9J8M2W7N4K3C1B0A9ZZ" })
	payments.Now = func() time.Time { return time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC) }

	mock.ExpectQuery("FROM jobs j").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(partiesColumns).AddRow(
			int64(1), "Sample job", int64(5000), false, nil, int64(0),
			int64(10), "terms", "in_progress",
			int64(1), "Tayo", "Babatunde", "Software Client", int64(10000), "client", int64(3),
			int64(2), "Omotayo", "Obafemi", "Software Engineer", int64(10000), "contractor", int64(7),
		))
	return payments, mock
}

var client = ledger.Profile{ID: 1, Type: ledger.ProfileClient, Balance: decimal.NewFromInt(100)}

func TestPayJob_GuardMissIsConflictAndRollsBack(t *testing.T) {
	payments, mock := newMockPayments(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").
		WithArgs(int64(-5000), int64(1), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The contractor row moved between the read and the write.
	mock.ExpectExec("UPDATE profiles").
		WithArgs(int64(5000), int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := payments.PayJob(context.Background(), client, 1, decimal.NewFromInt(50))

	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.Equal(t, ledger.KindConflict, ledger.KindOf(err))
	assert.True(t, ledger.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayJob_DriverErrorIsStorageFailure(t *testing.T) {
	payments, mock := newMockPayments(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := payments.PayJob(context.Background(), client, 1, decimal.NewFromInt(50))

	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	assert.False(t, ledger.IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayJob_CommitFailureIsStorageFailure(t *testing.T) {
	payments, mock := newMockPayments(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE profiles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transfers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	_, err := payments.PayJob(context.Background(), client, 1, decimal.NewFromInt(50))

	assert.ErrorIs(t, err, ledger.ErrStorageFailure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPayJob_CommitsAllWrites(t *testing.T) {
	payments, mock := newMockPayments(t)
	paidAt := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE profiles").WithArgs(int64(-5000), int64(1), int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE profiles").WithArgs(int64(5000), int64(2), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs").WithArgs(true, paidAt, int64(1), int64(0), false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transfers").
		WithArgs("01HZX5Q9J8M2W7N4K3C1B0A9ZZ", int64(1), int64(1), int64(2), int64(5000), paidAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tr, err := payments.PayJob(context.Background(), client, 1, decimal.NewFromInt(50))

	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.ContractorID)
	assert.True(t, tr.Amount.Equal(decimal.NewFromInt(50)))
	require.NoError(t, mock.ExpectationsWereMet())
}
