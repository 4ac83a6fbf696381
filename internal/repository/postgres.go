package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/webbank/internal/models"
)

// NumberGenerator returns a candidate public account number. Candidates are
// checked against the store and regenerated until an unused one is found.
type NumberGenerator func() (string, error)

// Repository is the ledger store used by the banking service.
type Repository interface {
	// Money movement. Each call is one atomic database transaction.
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	Transfer(ctx context.Context, fromAccountID uuid.UUID, toAccountNumber string, amount decimal.Decimal) (*models.Transaction, error)

	// Users
	CreateUser(ctx context.Context, user *models.User, otp *models.OTP) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	VerifyUser(ctx context.Context, email, code string, next NumberGenerator) (*models.Account, error)

	// Accounts
	CreateJointAccount(ctx context.Context, creatorID uuid.UUID, emails []string, passwordHash string, next NumberGenerator) (*models.JointAccountCreated, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*models.Account, error)
	GetPrimaryAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	IsMember(ctx context.Context, accountID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, accountID uuid.UUID) ([]models.Member, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Transaction, error)

	// Loans
	CreateLoan(ctx context.Context, loan *models.Loan) error
	DecideLoan(ctx context.Context, loanID uuid.UUID, decision models.LoanDecision) (*models.DecidedLoan, error)
	ListLoansByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Loan, error)
	ListLoans(ctx context.Context, status models.LoanStatus) ([]models.LoanView, error)
}

// PostgresRepository implements Repository with PostgreSQL.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// withTx runs fn inside a database transaction. The transaction is rolled
// back on every exit path except a successful commit.
func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isNumericOverflow reports a value out of range for a NUMERIC column.
func isNumericOverflow(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22003"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
