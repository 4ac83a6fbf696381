package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/webbank/internal/models"
)

const accountColumns = `a.id, a.account_number, a.account_type, a.balance, COALESCE(a.password_hash, ''), a.created_at, a.updated_at`

// CreateJointAccount resolves the creator and every invited email to
// registered users, then opens a zero-balance joint account linking all of
// them. Any unresolved email fails the whole operation.
func (r *PostgresRepository) CreateJointAccount(ctx context.Context, creatorID uuid.UUID, emails []string, passwordHash string, next NumberGenerator) (*models.JointAccountCreated, error) {
	var created *models.JointAccountCreated

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var creatorEmail string
		err := tx.QueryRowContext(ctx,
			`SELECT email FROM users WHERE id = $1`, creatorID,
		).Scan(&creatorEmail)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("get creator: %w", err)
		}

		wanted := uniqueStrings(append([]string{creatorEmail}, emails...))
		if len(wanted) < 2 {
			return fmt.Errorf("%w: a joint account needs at least one other member", models.ErrInvalidInput)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id, first_name, last_name, email FROM users WHERE email = ANY($1) ORDER BY email`,
			pq.Array(wanted),
		)
		if err != nil {
			return fmt.Errorf("resolve members: %w", err)
		}
		members, err := scanMembers(rows)
		if err != nil {
			return err
		}
		if len(members) != len(wanted) {
			return models.ErrUnknownMember
		}

		account, err := r.createAccount(ctx, tx, models.AccountTypeJoint, passwordHash, next)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := addMember(ctx, tx, account.ID, m.UserID); err != nil {
				return err
			}
		}

		created = &models.JointAccountCreated{Account: *account, Members: members}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createAccount inserts a zero-balance account under a freshly generated
// account number, retrying generation until the number is unused.
func (r *PostgresRepository) createAccount(ctx context.Context, tx *sql.Tx, accountType models.AccountType, passwordHash string, next NumberGenerator) (*models.Account, error) {
	number, err := uniqueAccountNumber(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	now := r.now()
	account := &models.Account{
		ID:            uuid.New(),
		AccountNumber: number,
		AccountType:   accountType,
		Balance:       decimal.Zero,
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, account_number, account_type, balance, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.AccountNumber, account.AccountType, account.Balance,
		nullString(account.PasswordHash), account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func uniqueAccountNumber(ctx context.Context, tx *sql.Tx, next NumberGenerator) (string, error) {
	for {
		number, err := next()
		if err != nil {
			return "", fmt.Errorf("generate account number: %w", err)
		}

		var taken bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, number,
		).Scan(&taken); err != nil {
			return "", fmt.Errorf("check account number: %w", err)
		}
		if !taken {
			return number, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
	}
}

func addMember(ctx context.Context, tx *sql.Tx, accountID, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_members (account_id, user_id) VALUES ($1, $2)`,
		accountID, userID,
	); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.id = $1`, id,
	))
}

func (r *PostgresRepository) GetAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.account_number = $1`, number,
	))
}

func (r *PostgresRepository) GetPrimaryAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts a
		 JOIN account_members m ON m.account_id = a.id
		 WHERE m.user_id = $1 AND a.account_type = $2`,
		userID, models.AccountTypePrimary,
	))
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID, &account.AccountNumber, &account.AccountType, &account.Balance,
		&account.PasswordHash, &account.CreatedAt, &account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) IsMember(ctx context.Context, accountID, userID uuid.UUID) (bool, error) {
	var member bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM account_members WHERE account_id = $1 AND user_id = $2)`,
		accountID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, accountID uuid.UUID) ([]models.Member, error) {
	return listMembers(ctx, r.db, accountID)
}

func listMembers(ctx context.Context, q querier, accountID uuid.UUID) ([]models.Member, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.email
		 FROM users u
		 JOIN account_members m ON m.user_id = u.id
		 WHERE m.account_id = $1
		 ORDER BY u.email`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]models.Member, error) {
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.UserID, &m.FirstName, &m.LastName, &m.Email); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
