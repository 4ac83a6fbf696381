package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/webbank/internal/models"
)

// Deposit credits amount to the account and appends a DEPOSIT record.
func (r *PostgresRepository) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	txn := models.NewDeposit(accountID, amount, r.now())

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := adjustBalance(ctx, tx, accountID, amount); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Withdraw debits amount from the account after checking the balance under
// an exclusive row lock.
func (r *PostgresRepository) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	txn := models.NewWithdrawal(accountID, amount, r.now())

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		balances, err := lockAccounts(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if balances[accountID].LessThan(amount) {
			return models.ErrInsufficientFunds
		}

		if err := adjustBalance(ctx, tx, accountID, amount.Neg()); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Transfer moves amount from one account to the account with the given
// public number. Both rows are locked in ascending id order so concurrent
// transfers in opposite directions cannot deadlock.
func (r *PostgresRepository) Transfer(ctx context.Context, fromAccountID uuid.UUID, toAccountNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	var txn *models.Transaction

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var toAccountID uuid.UUID
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM accounts WHERE account_number = $1`, toAccountNumber,
		).Scan(&toAccountID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrRecipientNotFound
		}
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}

		if toAccountID == fromAccountID {
			return models.ErrSameAccount
		}

		balances, err := lockAccounts(ctx, tx, fromAccountID, toAccountID)
		if err != nil {
			return err
		}
		if balances[fromAccountID].LessThan(amount) {
			return models.ErrInsufficientFunds
		}

		if err := adjustBalance(ctx, tx, fromAccountID, amount.Neg()); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, toAccountID, amount); err != nil {
			return err
		}

		txn = models.NewTransfer(fromAccountID, toAccountID, amount, r.now())
		return insertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// lockAccounts takes FOR UPDATE locks on the given accounts in ascending id
// order and returns their balances as read under the lock.
func lockAccounts(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	ordered = slices.Compact(ordered)

	balances := make(map[uuid.UUID]decimal.Decimal, len(ordered))
	for _, id := range ordered {
		var balance decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id,
		).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		balances[id] = balance
	}
	return balances, nil
}

// adjustBalance adds delta (which may be negative) to the account balance.
func adjustBalance(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, delta decimal.Decimal) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`,
		delta, accountID,
	)
	if isNumericOverflow(err) {
		return models.ErrBalanceLimitExceeded
	}
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, from_account_id, to_account_id, amount, transaction_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.ExecContext(ctx, query,
		txn.ID,
		txn.FromAccountID,
		txn.ToAccountID,
		txn.Amount,
		txn.Type,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns the account's ledger entries, newest first. A
// non-positive limit returns every entry.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, from_account_id, to_account_id, amount, transaction_type, created_at
		FROM transactions
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC`

	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(
			&txn.ID,
			&txn.FromAccountID,
			&txn.ToAccountID,
			&txn.Amount,
			&txn.Type,
			&txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}
