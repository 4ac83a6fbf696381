package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/webbank/internal/metrics"
	"github.com/kubesec-bank/webbank/internal/models"
)

// Deposit credits amount to accountID on behalf of p.
func (s *Service) Deposit(ctx context.Context, p models.Principal, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, s.rejected(models.TransactionTypeDeposit, err)
	}
	if err := s.authorize(ctx, p, accountID); err != nil {
		return nil, s.rejected(models.TransactionTypeDeposit, err)
	}
	txn, err := s.repo.Deposit(ctx, accountID, amount)
	return s.settle(ctx, models.TransactionTypeDeposit, txn, err)
}

// Withdraw debits amount from accountID on behalf of p.
func (s *Service) Withdraw(ctx context.Context, p models.Principal, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, s.rejected(models.TransactionTypeWithdrawal, err)
	}
	if err := s.authorize(ctx, p, accountID); err != nil {
		return nil, s.rejected(models.TransactionTypeWithdrawal, err)
	}
	txn, err := s.repo.Withdraw(ctx, accountID, amount)
	return s.settle(ctx, models.TransactionTypeWithdrawal, txn, err)
}

// Transfer moves amount from fromID to the account with public number
// toNumber on behalf of p.
func (s *Service) Transfer(ctx context.Context, p models.Principal, fromID uuid.UUID, toNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, s.rejected(models.TransactionTypeTransfer, err)
	}
	toNumber = strings.TrimSpace(toNumber)
	if toNumber == "" {
		return nil, s.rejected(models.TransactionTypeTransfer, models.ErrRecipientNotFound)
	}
	if err := s.authorize(ctx, p, fromID); err != nil {
		return nil, s.rejected(models.TransactionTypeTransfer, err)
	}
	txn, err := s.repo.Transfer(ctx, fromID, toNumber, amount)
	return s.settle(ctx, models.TransactionTypeTransfer, txn, err)
}

// validateAmount requires a strictly positive amount with at most two
// decimal places, no larger than models.MaxAmount.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(2)) || amount.GreaterThan(models.MaxAmount) {
		return models.ErrInvalidAmount
	}
	return nil
}

func (s *Service) rejected(txType models.TransactionType, err error) error {
	s.metrics.RecordMovement(string(txType), outcome(err), 0)
	return err
}

// settle records the result of a committed or failed store call and
// publishes the event for a committed one.
func (s *Service) settle(ctx context.Context, txType models.TransactionType, txn *models.Transaction, err error) (*models.Transaction, error) {
	if err != nil {
		err = storeErr(err)
		s.metrics.RecordMovement(string(txType), outcome(err), 0)
		return nil, err
	}

	amount, _ := txn.Amount.Float64()
	s.metrics.RecordMovement(string(txType), metrics.OutcomeOK, amount)
	s.publish(ctx, txn)
	return txn, nil
}

func (s *Service) publish(ctx context.Context, txn *models.Transaction) {
	if err := s.events.PublishTransaction(ctx, txn); err != nil {
		s.logger.WithError(err).WithField("transaction_id", txn.ID).Warn("publish transaction event")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, models.ErrStoreUnavailable):
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}
