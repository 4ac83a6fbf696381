package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/metrics"
	"github.com/kubesec-bank/webbank/internal/models"
	"github.com/kubesec-bank/webbank/internal/notify"
)

const adultAge = 18

// ApplyLoan files a PENDING loan application on accountID.
func (s *Service) ApplyLoan(ctx context.Context, p models.Principal, accountID uuid.UUID, req models.LoanApplicationRequest) (*models.Loan, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, accountID); err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}

	// Joint accounts get their limit and type checked together by the store,
	// limit first.
	if account.AccountType != models.AccountTypeJoint && !req.LoanType.Valid() {
		return nil, models.ErrInvalidLoanType
	}

	if account.AccountType == models.AccountTypePrimary && p.Kind == models.PrincipalUser {
		applicant, err := s.repo.GetUser(ctx, p.ID)
		if err != nil {
			return nil, storeErr(err)
		}
		// Year difference only; birthdays later in the year are not considered.
		if s.now().Year()-applicant.DateOfBirth.Year() < adultAge {
			return nil, models.ErrMinorApplicant
		}
	}

	loan := &models.Loan{
		AccountID: accountID,
		Type:      req.LoanType,
		Amount:    req.Amount,
	}
	if err := s.repo.CreateLoan(ctx, loan); err != nil {
		return nil, storeErr(err)
	}

	s.logger.WithFields(logrus.Fields{
		"loan_id":    loan.ID,
		"account_id": accountID,
		"loan_type":  loan.Type,
	}).Info("loan application received")
	return loan, nil
}

// DecideLoan approves or rejects a pending loan. Every member of the loan's
// account is notified after the decision commits.
func (s *Service) DecideLoan(ctx context.Context, loanID uuid.UUID, decision models.LoanDecision) (*models.DecidedLoan, error) {
	if decision != models.LoanDecisionApprove && decision != models.LoanDecisionReject {
		return nil, fmt.Errorf("%w: unknown decision %q", models.ErrInvalidInput, decision)
	}

	decided, err := s.repo.DecideLoan(ctx, loanID, decision)
	if err != nil {
		return nil, storeErr(err)
	}

	s.metrics.RecordLoanDecision(string(decided.Loan.Status))
	if decided.Disbursement != nil {
		amount, _ := decided.Disbursement.Amount.Float64()
		s.metrics.RecordMovement(string(models.TransactionTypeLoan), metrics.OutcomeOK, amount)
		s.publish(ctx, decided.Disbursement)
	}

	s.logger.WithFields(logrus.Fields{
		"loan_id": loanID,
		"status":  decided.Loan.Status,
	}).Info("loan decided")

	for _, email := range decided.MemberEmails {
		s.notify(ctx, notify.Message{
			To:   email,
			Kind: notify.KindLoanDecision,
			Data: map[string]string{
				"loan_id":   decided.Loan.ID.String(),
				"loan_type": string(decided.Loan.Type),
				"amount":    decided.Loan.Amount.StringFixed(2),
				"status":    string(decided.Loan.Status),
			},
		})
	}
	return decided, nil
}

// ListLoans returns loans across all accounts, optionally filtered by a
// status name in any case.
func (s *Service) ListLoans(ctx context.Context, status string) ([]models.LoanView, error) {
	filter := models.LoanStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch filter {
	case "", models.LoanStatusPending, models.LoanStatusApproved, models.LoanStatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown loan status %q", models.ErrInvalidInput, status)
	}

	loans, err := s.repo.ListLoans(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	return loans, nil
}

// IsAdmin reports whether p is a user with the admin flag set.
func (s *Service) IsAdmin(ctx context.Context, p models.Principal) (bool, error) {
	if p.Kind != models.PrincipalUser {
		return false, nil
	}
	user, err := s.repo.GetUser(ctx, p.ID)
	if errors.Is(err, models.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return user.IsAdmin, nil
}
