// Package service implements the banking operations on top of the ledger
// store: money movement, account and loan lifecycle, and authentication.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/metrics"
	"github.com/kubesec-bank/webbank/internal/models"
	"github.com/kubesec-bank/webbank/internal/notify"
	"github.com/kubesec-bank/webbank/internal/repository"
)

// Options tunes the lifecycle rules.
type Options struct {
	OTPTTL          time.Duration
	MaxFailedLogins int64
	LockoutWindow   time.Duration
	HistoryLimit    int
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		OTPTTL:          5 * time.Minute,
		MaxFailedLogins: 5,
		LockoutWindow:   15 * time.Minute,
		HistoryLimit:    10,
	}
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repo     repository.Repository
	Tokens   repository.TokenStore
	JWT      *auth.TokenManager
	Notifier notify.Notifier
	Events   notify.Publisher
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

type Service struct {
	repo     repository.Repository
	tokens   repository.TokenStore
	jwt      *auth.TokenManager
	notifier notify.Notifier
	events   notify.Publisher
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	opts     Options

	now         func() time.Time
	newNumber   repository.NumberGenerator
	newOTP      func() (string, error)
	newPassword func() (string, error)
}

func New(deps Deps, opts Options) *Service {
	return &Service{
		repo:     deps.Repo,
		tokens:   deps.Tokens,
		jwt:      deps.JWT,
		notifier: deps.Notifier,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		opts:     opts,

		now: func() time.Time { return time.Now().UTC() },
		newNumber: func() (string, error) {
			return auth.GenerateAccountNumber(models.AccountNumberLength)
		},
		newOTP: func() (string, error) {
			return auth.GenerateOTP(models.OTPLength)
		},
		newPassword: func() (string, error) {
			return auth.GeneratePassword(auth.JointPasswordLength)
		},
	}
}

// storeErr passes domain errors through and hides everything else behind
// ErrStoreUnavailable, keeping the cause for logs.
func storeErr(err error) error {
	if err == nil || models.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}

// authorize checks that p may operate on accountID. Users may act on any
// account they are a member of; a joint principal only on its own account.
func (s *Service) authorize(ctx context.Context, p models.Principal, accountID uuid.UUID) error {
	switch p.Kind {
	case models.PrincipalUser:
		ok, err := s.repo.IsMember(ctx, accountID, p.ID)
		if err != nil {
			return storeErr(err)
		}
		if ok {
			return nil
		}
	case models.PrincipalJoint:
		if p.ID == accountID {
			return nil
		}
	}
	return models.ErrForbidden
}

// notify delivers msg and logs failures. Delivery is best effort and never
// fails the calling operation.
func (s *Service) notify(ctx context.Context, msg notify.Message) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.metrics.RecordNotifyFailure(string(msg.Kind))
		s.logger.WithError(err).WithFields(logrus.Fields{
			"to":   msg.To,
			"kind": msg.Kind,
		}).Warn("notification failed")
	}
}
