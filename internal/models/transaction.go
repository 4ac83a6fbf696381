package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount is the largest value a NUMERIC(15,2) balance or amount column holds.
var MaxAmount = decimal.RequireFromString("9999999999999.99")

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeLoan       TransactionType = "LOAN"
)

// Transaction is an append-only ledger entry. Deposits and loan
// disbursements carry no source; withdrawals carry no destination.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	FromAccountID uuid.NullUUID   `json:"from_account_id"`
	ToAccountID   uuid.NullUUID   `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amount"`
}

// TransactionEvent is published to NATS after a money movement commits.
type TransactionEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	FromAccountID uuid.NullUUID   `json:"from_account_id"`
	ToAccountID   uuid.NullUUID   `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewTransactionEvent builds the event for a committed transaction.
func NewTransactionEvent(txn *Transaction) TransactionEvent {
	return TransactionEvent{
		TransactionID: txn.ID,
		FromAccountID: txn.FromAccountID,
		ToAccountID:   txn.ToAccountID,
		Amount:        txn.Amount,
		Type:          txn.Type,
		Timestamp:     txn.CreatedAt,
	}
}

func accountRef(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}

// NewDeposit returns a DEPOSIT record crediting accountID.
func NewDeposit(accountID uuid.UUID, amount decimal.Decimal, at time.Time) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		ToAccountID: accountRef(accountID),
		Amount:      amount,
		Type:        TransactionTypeDeposit,
		CreatedAt:   at,
	}
}

// NewWithdrawal returns a WITHDRAWAL record debiting accountID.
func NewWithdrawal(accountID uuid.UUID, amount decimal.Decimal, at time.Time) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		FromAccountID: accountRef(accountID),
		Amount:        amount,
		Type:          TransactionTypeWithdrawal,
		CreatedAt:     at,
	}
}

// NewTransfer returns a TRANSFER record linking both accounts.
func NewTransfer(fromID, toID uuid.UUID, amount decimal.Decimal, at time.Time) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		FromAccountID: accountRef(fromID),
		ToAccountID:   accountRef(toID),
		Amount:        amount,
		Type:          TransactionTypeTransfer,
		CreatedAt:     at,
	}
}

// NewLoanDisbursement returns a LOAN record crediting accountID.
func NewLoanDisbursement(accountID uuid.UUID, amount decimal.Decimal, at time.Time) *Transaction {
	return &Transaction{
		ID:          uuid.New(),
		ToAccountID: accountRef(accountID),
		Amount:      amount,
		Type:        TransactionTypeLoan,
		CreatedAt:   at,
	}
}
