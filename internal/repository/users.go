package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kubesec-bank/webbank/internal/models"
)

const userColumns = `id, first_name, last_name, email, password_hash, date_of_birth, is_verified, is_admin, created_at`

// CreateUser inserts the user, their phone numbers and a pending OTP in one
// transaction.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *models.User, otp *models.OTP) error {
	user.ID = uuid.New()
	user.CreatedAt = r.now()
	otp.UserID = user.ID

	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, first_name, last_name, email, password_hash, date_of_birth, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash, user.DateOfBirth, user.CreatedAt,
		)
		if isUniqueViolation(err) {
			return models.ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		for _, phone := range user.Phones {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_phones (user_id, phone_number) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				user.ID, phone,
			); err != nil {
				return fmt.Errorf("insert phone: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO otps (user_id, code, expires_at) VALUES ($1, $2, $3)`,
			otp.UserID, otp.Code, otp.ExpiresAt,
		); err != nil {
			return fmt.Errorf("insert otp: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash,
		&user.DateOfBirth, &user.IsVerified, &user.IsAdmin, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// VerifyUser consumes a valid, unexpired OTP: it marks the user verified,
// opens their zero-balance primary account and deletes the user's codes.
func (r *PostgresRepository) VerifyUser(ctx context.Context, email, code string, next NumberGenerator) (*models.Account, error) {
	var account *models.Account

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var (
			userID   uuid.UUID
			verified bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, is_verified FROM users WHERE email = $1 FOR UPDATE`, email,
		).Scan(&userID, &verified)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrInvalidOTP
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if verified {
			return models.ErrAlreadyVerified
		}

		var valid bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM otps WHERE user_id = $1 AND code = $2 AND expires_at > $3)`,
			userID, code, r.now(),
		).Scan(&valid); err != nil {
			return fmt.Errorf("check otp: %w", err)
		}
		if !valid {
			return models.ErrInvalidOTP
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET is_verified = TRUE WHERE id = $1`, userID,
		); err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}

		account, err = r.createAccount(ctx, tx, models.AccountTypePrimary, "", next)
		if err != nil {
			return err
		}
		if err := addMember(ctx, tx, account.ID, userID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM otps WHERE user_id = $1`, userID,
		); err != nil {
			return fmt.Errorf("delete otp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
