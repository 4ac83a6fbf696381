package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/models"
	"github.com/kubesec-bank/webbank/internal/notify"
)

// CreateJointAccount opens a joint account shared by the calling user and
// the invited registered users. The generated access password is returned
// on the result and emailed to every member.
func (s *Service) CreateJointAccount(ctx context.Context, p models.Principal, req models.CreateJointAccountRequest) (*models.JointAccountCreated, error) {
	if p.Kind != models.PrincipalUser {
		return nil, models.ErrForbidden
	}

	creator, err := s.repo.GetUser(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	invitees, err := inviteeEmails(req.Emails, creator.Email)
	if err != nil {
		return nil, err
	}

	password, err := s.newPassword()
	if err != nil {
		return nil, storeErr(err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, storeErr(err)
	}

	created, err := s.repo.CreateJointAccount(ctx, p.ID, invitees, hash, s.newNumber)
	if err != nil {
		return nil, storeErr(err)
	}
	created.Password = password

	s.logger.WithFields(logrus.Fields{
		"account_id": created.Account.ID,
		"members":    len(created.Members),
	}).Info("joint account created")

	for _, m := range created.Members {
		s.notify(ctx, notify.Message{
			To:   m.Email,
			Kind: notify.KindJointAccountCreated,
			Data: map[string]string{
				"account_number": created.Account.AccountNumber,
				"password":       password,
			},
		})
	}
	return created, nil
}

// inviteeEmails normalizes the invited addresses: blanks are dropped,
// case is folded, duplicates and the creator's own address collapse.
// Between one and MaxJointInvitees addresses must remain.
func inviteeEmails(raw []string, creatorEmail string) ([]string, error) {
	seen := map[string]struct{}{creatorEmail: {}}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		email, err := normalizeEmail(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: invite at least one other registered user", models.ErrInvalidInput)
	}
	if len(out) > models.MaxJointInvitees {
		return nil, fmt.Errorf("%w: at most %d members can be invited", models.ErrInvalidInput, models.MaxJointInvitees)
	}
	return out, nil
}

// Dashboard returns the calling user's primary account with recent activity.
func (s *Service) Dashboard(ctx context.Context, p models.Principal) (*models.Dashboard, error) {
	if p.Kind != models.PrincipalUser {
		return nil, models.ErrForbidden
	}

	user, err := s.repo.GetUser(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	account, err := s.repo.GetPrimaryAccount(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	txns, err := s.repo.ListTransactions(ctx, account.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	loans, err := s.repo.ListLoansByAccount(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	return &models.Dashboard{
		User:         user,
		Account:      *account,
		Transactions: txns,
		Loans:        loans,
	}, nil
}

// JointDashboard returns the joint account of a joint principal with its
// members and recent activity.
func (s *Service) JointDashboard(ctx context.Context, p models.Principal) (*models.Dashboard, error) {
	if p.Kind != models.PrincipalJoint {
		return nil, models.ErrForbidden
	}

	account, err := s.repo.GetAccount(ctx, p.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	members, err := s.repo.ListMembers(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	txns, err := s.repo.ListTransactions(ctx, account.ID, s.opts.HistoryLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	loans, err := s.repo.ListLoansByAccount(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}

	return &models.Dashboard{
		Account:      *account,
		Members:      members,
		Transactions: txns,
		Loans:        loans,
	}, nil
}

// AdminAccount looks up an account by its public number with its full
// history.
func (s *Service) AdminAccount(ctx context.Context, number string) (*models.AccountDetails, error) {
	account, err := s.repo.GetAccountByNumber(ctx, number)
	if err != nil {
		return nil, storeErr(err)
	}
	members, err := s.repo.ListMembers(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	loans, err := s.repo.ListLoansByAccount(ctx, account.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	txns, err := s.repo.ListTransactions(ctx, account.ID, 0)
	if err != nil {
		return nil, storeErr(err)
	}

	return &models.AccountDetails{
		Account:      *account,
		Members:      members,
		Loans:        loans,
		Transactions: txns,
	}, nil
}
