package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubesec-bank/webbank/internal/models"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var (
	lowID  = uuid.MustParse("00000000-0000-4000-8000-000000000001")
	highID = uuid.MustParse("ffffffff-0000-4000-8000-000000000002")
)

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func expectLock(mock sqlmock.Sqlmock, id uuid.UUID, balance string) {
	mock.ExpectQuery(q(`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(balance))
}

func expectAdjust(mock sqlmock.Sqlmock, id uuid.UUID, delta decimal.Decimal) {
	mock.ExpectExec(q(`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`)).
		WithArgs(delta, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectInsertTransaction(mock sqlmock.Sqlmock, from, to interface{}, amount decimal.Decimal, typ models.TransactionType) {
	mock.ExpectExec(q(`INSERT INTO transactions`)).
		WithArgs(sqlmock.AnyArg(), from, to, amount, typ, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestDeposit_CreditsAndRecords(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("50.00")

	mock.ExpectBegin()
	expectAdjust(mock, lowID, amount)
	expectInsertTransaction(mock, nil, lowID, amount, models.TransactionTypeDeposit)
	mock.ExpectCommit()

	txn, err := repo.Deposit(context.Background(), lowID, amount)
	require.NoError(t, err)

	assert.Equal(t, models.TransactionTypeDeposit, txn.Type)
	assert.False(t, txn.FromAccountID.Valid)
	assert.Equal(t, lowID, txn.ToAccountID.UUID)
	assert.True(t, amount.Equal(txn.Amount))
	assert.Equal(t, fixedNow, txn.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_UnknownAccountRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE accounts SET balance = balance + $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Deposit(context.Background(), lowID, dec("10"))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_BalanceOverflowIsDomainError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(`UPDATE accounts SET balance = balance + $1`)).
		WillReturnError(&pq.Error{Code: "22003", Message: "numeric field overflow"})
	mock.ExpectRollback()

	_, err := repo.Deposit(context.Background(), lowID, dec("9999999999999.99"))
	assert.ErrorIs(t, err, models.ErrBalanceLimitExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw_InsufficientFundsLeavesBalance(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectLock(mock, lowID, "100.00")
	mock.ExpectRollback()

	_, err := repo.Withdraw(context.Background(), lowID, dec("150.00"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	// No UPDATE or INSERT was expected, so sqlmock would have failed on either.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw_ExactBalance(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("100.00")

	mock.ExpectBegin()
	expectLock(mock, lowID, "100.00")
	expectAdjust(mock, lowID, amount.Neg())
	expectInsertTransaction(mock, lowID, nil, amount, models.TransactionTypeWithdrawal)
	mock.ExpectCommit()

	txn, err := repo.Withdraw(context.Background(), lowID, amount)
	require.NoError(t, err)
	assert.Equal(t, lowID, txn.FromAccountID.UUID)
	assert.False(t, txn.ToAccountID.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_LocksInAscendingIDOrder(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("30.00")

	// Source has the higher id, so the destination row must be locked first.
	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WithArgs("2000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(lowID.String()))
	expectLock(mock, lowID, "5.00")
	expectLock(mock, highID, "150.00")
	expectAdjust(mock, highID, amount.Neg())
	expectAdjust(mock, lowID, amount)
	expectInsertTransaction(mock, highID, lowID, amount, models.TransactionTypeTransfer)
	mock.ExpectCommit()

	txn, err := repo.Transfer(context.Background(), highID, "2000000000", amount)
	require.NoError(t, err)

	assert.Equal(t, models.TransactionTypeTransfer, txn.Type)
	assert.Equal(t, highID, txn.FromAccountID.UUID)
	assert.Equal(t, lowID, txn.ToAccountID.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_SameLockOrderInReverseDirection(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("1")

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WithArgs("9000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(highID.String()))
	expectLock(mock, lowID, "10.00")
	expectLock(mock, highID, "0.00")
	expectAdjust(mock, lowID, amount.Neg())
	expectAdjust(mock, highID, amount)
	expectInsertTransaction(mock, lowID, highID, amount, models.TransactionTypeTransfer)
	mock.ExpectCommit()

	_, err := repo.Transfer(context.Background(), lowID, "9000000000", amount)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_RecipientNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WithArgs("0000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Transfer(context.Background(), lowID, "0000000000", dec("1"))
	assert.ErrorIs(t, err, models.ErrRecipientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_SameAccountAppendsNothing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WithArgs("1000000000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(lowID.String()))
	mock.ExpectRollback()

	_, err := repo.Transfer(context.Background(), lowID, "1000000000", dec("1"))
	assert.ErrorIs(t, err, models.ErrSameAccount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(highID.String()))
	expectLock(mock, lowID, "20.00")
	expectLock(mock, highID, "0.00")
	mock.ExpectRollback()

	_, err := repo.Transfer(context.Background(), lowID, "9000000000", dec("20.01"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_FailureAfterDebitRollsBackEverything(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("30.00")
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(highID.String()))
	expectLock(mock, lowID, "100.00")
	expectLock(mock, highID, "0.00")
	expectAdjust(mock, lowID, amount.Neg())
	mock.ExpectExec(q(`UPDATE accounts SET balance = balance + $1`)).
		WithArgs(amount, highID).
		WillReturnError(boom)
	mock.ExpectRollback()

	txn, err := repo.Transfer(context.Background(), lowID, "9000000000", amount)
	assert.Nil(t, txn)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_RecordInsertFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	amount := dec("30.00")

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM accounts WHERE account_number = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(highID.String()))
	expectLock(mock, lowID, "100.00")
	expectLock(mock, highID, "0.00")
	expectAdjust(mock, lowID, amount.Neg())
	expectAdjust(mock, highID, amount)
	mock.ExpectExec(q(`INSERT INTO transactions`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.Transfer(context.Background(), lowID, "9000000000", amount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureIsWrapped(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := repo.Deposit(context.Background(), lowID, dec("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions_AppliesLimit(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"id", "from_account_id", "to_account_id", "amount", "transaction_type", "created_at"}).
		AddRow(uuid.New().String(), nil, lowID.String(), "50.00", "DEPOSIT", fixedNow).
		AddRow(uuid.New().String(), lowID.String(), highID.String(), "30.00", "TRANSFER", fixedNow.Add(-time.Hour))
	mock.ExpectQuery(q(`WHERE from_account_id = $1 OR to_account_id = $1 ORDER BY created_at DESC LIMIT $2`)).
		WithArgs(lowID, 10).
		WillReturnRows(rows)

	txns, err := repo.ListTransactions(context.Background(), lowID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.False(t, txns[0].FromAccountID.Valid)
	assert.Equal(t, models.TransactionTypeTransfer, txns[1].Type)
	assert.Equal(t, highID, txns[1].ToAccountID.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}
