package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kubesec-bank/webbank/internal/models"
)

const loanColumns = `l.id, l.account_id, l.loan_type, l.amount, l.status, l.requested_at, l.decided_at`

// CreateLoan records a PENDING loan application. The account row is locked
// for the duration of the eligibility checks so concurrent applications on
// one account are serialized.
//
// Joint accounts may hold a single loan ever, of the joint loan type.
// Primary accounts may not hold two PENDING loans of the same type.
func (r *PostgresRepository) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var accountType models.AccountType
		err := tx.QueryRowContext(ctx,
			`SELECT account_type FROM accounts WHERE id = $1 FOR UPDATE`, loan.AccountID,
		).Scan(&accountType)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrAccountNotFound
		}
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		switch accountType {
		case models.AccountTypeJoint:
			var count int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM loans WHERE account_id = $1`, loan.AccountID,
			).Scan(&count); err != nil {
				return fmt.Errorf("count loans: %w", err)
			}
			if count > 0 {
				return models.ErrLoanLimitExceeded
			}
			if loan.Type != models.JointLoanType {
				return models.ErrInvalidLoanType
			}
		default:
			var pending bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM loans WHERE account_id = $1 AND loan_type = $2 AND status = $3)`,
				loan.AccountID, loan.Type, models.LoanStatusPending,
			).Scan(&pending); err != nil {
				return fmt.Errorf("check pending loans: %w", err)
			}
			if pending {
				return models.ErrDuplicatePendingLoan
			}
		}

		loan.ID = uuid.New()
		loan.Status = models.LoanStatusPending
		loan.RequestedAt = r.now()
		loan.DecidedAt = nil

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loans (id, account_id, loan_type, amount, status, requested_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			loan.ID, loan.AccountID, loan.Type, loan.Amount, loan.Status, loan.RequestedAt,
		); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		return nil
	})
}

// DecideLoan moves a PENDING loan to its terminal status. Approval disburses
// the amount to the loan's account in the same transaction. The emails of
// every account member are returned for notification after commit.
func (r *PostgresRepository) DecideLoan(ctx context.Context, loanID uuid.UUID, decision models.LoanDecision) (*models.DecidedLoan, error) {
	var decided *models.DecidedLoan

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		loan, err := scanLoan(tx.QueryRowContext(ctx,
			`SELECT `+loanColumns+` FROM loans l WHERE l.id = $1 FOR UPDATE`, loanID,
		))
		if err != nil {
			return err
		}
		if loan.Status != models.LoanStatusPending {
			return models.ErrInvalidLoanState
		}

		now := r.now()
		loan.Status = decision.Status()
		loan.DecidedAt = &now

		if _, err := tx.ExecContext(ctx,
			`UPDATE loans SET status = $1, decided_at = $2 WHERE id = $3`,
			loan.Status, now, loan.ID,
		); err != nil {
			return fmt.Errorf("update loan: %w", err)
		}

		decided = &models.DecidedLoan{Loan: *loan}

		if decision == models.LoanDecisionApprove {
			txn, err := disburseLoan(ctx, tx, loan, now)
			if err != nil {
				return err
			}
			decided.Disbursement = txn
		}

		members, err := listMembers(ctx, tx, loan.AccountID)
		if err != nil {
			return err
		}
		for _, m := range members {
			decided.MemberEmails = append(decided.MemberEmails, m.Email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decided, nil
}

// disburseLoan credits an approved loan to its account and appends the LOAN
// record. It must run inside the transaction that approves the loan.
func disburseLoan(ctx context.Context, tx *sql.Tx, loan *models.Loan, at time.Time) (*models.Transaction, error) {
	if _, err := lockAccounts(ctx, tx, loan.AccountID); err != nil {
		return nil, err
	}
	if err := adjustBalance(ctx, tx, loan.AccountID, loan.Amount); err != nil {
		return nil, err
	}
	txn := models.NewLoanDisbursement(loan.AccountID, loan.Amount, at)
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *PostgresRepository) ListLoansByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Loan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans l WHERE l.account_id = $1 ORDER BY l.requested_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	loans := []models.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *loan)
	}
	return loans, rows.Err()
}

// ListLoans returns loans across all accounts, newest first, optionally
// filtered by status.
func (r *PostgresRepository) ListLoans(ctx context.Context, status models.LoanStatus) ([]models.LoanView, error) {
	query := `
		SELECT ` + loanColumns + `, a.account_number
		FROM loans l
		JOIN accounts a ON a.id = l.account_id`

	args := []interface{}{}
	if status != "" {
		query += " WHERE l.status = $1"
		args = append(args, status)
	}
	query += " ORDER BY l.requested_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	loans := []models.LoanView{}
	for rows.Next() {
		var (
			v         models.LoanView
			decidedAt sql.NullTime
		)
		if err := rows.Scan(
			&v.ID, &v.AccountID, &v.Type, &v.Amount, &v.Status, &v.RequestedAt, &decidedAt, &v.AccountNumber,
		); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		if decidedAt.Valid {
			v.DecidedAt = &decidedAt.Time
		}
		loans = append(loans, v)
	}
	return loans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var (
		loan      models.Loan
		decidedAt sql.NullTime
	)
	err := row.Scan(
		&loan.ID, &loan.AccountID, &loan.Type, &loan.Amount, &loan.Status, &loan.RequestedAt, &decidedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan loan: %w", err)
	}
	if decidedAt.Valid {
		loan.DecidedAt = &decidedAt.Time
	}
	return &loan, nil
}
