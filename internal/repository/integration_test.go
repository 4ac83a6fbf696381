package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubesec-bank/webbank/internal/migrations"
	"github.com/kubesec-bank/webbank/internal/models"
)

// openTestDB connects to the database named by WEBBANK_TEST_DATABASE_URL and
// applies migrations. Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("WEBBANK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("WEBBANK_TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))
	_, err = migrations.Up(ctx, db)
	require.NoError(t, err)
	return db
}

var numberSeq atomic.Int64

func testNumbers() (string, error) {
	return fmt.Sprintf("%010d", time.Now().UnixNano()%1e9*10+numberSeq.Add(1)%10), nil
}

// openAccount registers and verifies a throwaway user and returns their
// primary account.
func openAccount(t *testing.T, repo *PostgresRepository) *models.Account {
	t.Helper()
	ctx := context.Background()

	user := &models.User{
		FirstName:    "Test",
		LastName:     "User",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		DateOfBirth:  time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	otp := &models.OTP{Code: "123456", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.CreateUser(ctx, user, otp))

	account, err := repo.VerifyUser(ctx, user.Email, "123456", testNumbers)
	require.NoError(t, err)
	return account
}

func balanceOf(t *testing.T, repo *PostgresRepository, id uuid.UUID) string {
	t.Helper()
	account, err := repo.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.Balance.StringFixed(2)
}

func TestIntegration_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	account := openAccount(t, repo)

	_, err := repo.Deposit(ctx, account.ID, dec("100"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		refused   atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Withdraw(ctx, account.ID, dec("60"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, models.ErrInsufficientFunds):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, 7, refused.Load())
	assert.Equal(t, "40.00", balanceOf(t, repo, account.ID))
}

func TestIntegration_OpposingTransfersDoNotDeadlock(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	a := openAccount(t, repo)
	b := openAccount(t, repo)

	_, err := repo.Deposit(ctx, a.ID, dec("100"))
	require.NoError(t, err)
	_, err = repo.Deposit(ctx, b.ID, dec("100"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := repo.Transfer(ctx, a.ID, b.AccountNumber, dec("1"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := repo.Transfer(ctx, b.ID, a.AccountNumber, dec("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, "100.00", balanceOf(t, repo, a.ID))
	assert.Equal(t, "100.00", balanceOf(t, repo, b.ID))
}

func TestIntegration_DepositWithdrawTransferScenario(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	a := openAccount(t, repo)
	b := openAccount(t, repo)

	_, err := repo.Deposit(ctx, a.ID, dec("100.00"))
	require.NoError(t, err)
	_, err = repo.Withdraw(ctx, a.ID, dec("20.00"))
	require.NoError(t, err)
	_, err = repo.Transfer(ctx, a.ID, b.AccountNumber, dec("30.00"))
	require.NoError(t, err)

	assert.Equal(t, "50.00", balanceOf(t, repo, a.ID))
	assert.Equal(t, "30.00", balanceOf(t, repo, b.ID))

	history, err := repo.ListTransactions(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	_, err = repo.Transfer(ctx, a.ID, a.AccountNumber, dec("1"))
	assert.ErrorIs(t, err, models.ErrSameAccount)
	_, err = repo.Withdraw(ctx, b.ID, dec("30.01"))
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Equal(t, "30.00", balanceOf(t, repo, b.ID))
}
