package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/models"
	"github.com/kubesec-bank/webbank/internal/notify"
)

const (
	minPasswordLength = 8
	dateLayout        = "2006-01-02"
	jointLockoutKey   = "joint:"
)

// Register creates an unverified user and emails a one-time code.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	user, err := s.newUser(req)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, storeErr(err)
	}
	user.PasswordHash = hash

	code, err := s.newOTP()
	if err != nil {
		return nil, storeErr(err)
	}
	otp := &models.OTP{Code: code, ExpiresAt: s.now().Add(s.opts.OTPTTL)}

	if err := s.repo.CreateUser(ctx, user, otp); err != nil {
		return nil, storeErr(err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	s.notify(ctx, notify.Message{
		To:   user.Email,
		Kind: notify.KindOTP,
		Data: map[string]string{
			"code":       code,
			"expires_at": otp.ExpiresAt.Format(time.RFC3339),
		},
	})
	return user, nil
}

func (s *Service) newUser(req models.RegisterRequest) (*models.User, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if first == "" || last == "" {
		return nil, fmt.Errorf("%w: first and last name are required", models.ErrInvalidInput)
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLength)
	}

	dob, err := time.Parse(dateLayout, strings.TrimSpace(req.DateOfBirth))
	if err != nil {
		return nil, fmt.Errorf("%w: date of birth must be YYYY-MM-DD", models.ErrInvalidInput)
	}
	if dob.After(s.now()) {
		return nil, fmt.Errorf("%w: date of birth is in the future", models.ErrInvalidInput)
	}

	phone1 := strings.TrimSpace(req.Phone1)
	if phone1 == "" {
		return nil, fmt.Errorf("%w: a phone number is required", models.ErrInvalidInput)
	}
	phones := []string{phone1}
	if phone2 := strings.TrimSpace(req.Phone2); phone2 != "" && phone2 != phone1 {
		phones = append(phones, phone2)
	}

	return &models.User{
		FirstName:   first,
		LastName:    last,
		Email:       email,
		DateOfBirth: dob,
		Phones:      phones,
	}, nil
}

// VerifyOTP consumes the code sent at registration and opens the user's
// primary account.
func (s *Service) VerifyOTP(ctx context.Context, req models.VerifyRequest) (*models.Account, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.OTP)
	if code == "" {
		return nil, models.ErrInvalidOTP
	}

	account, err := s.repo.VerifyUser(ctx, email, code, s.newNumber)
	if err != nil {
		return nil, storeErr(err)
	}

	s.logger.WithFields(logrus.Fields{
		"email":      email,
		"account_id": account.ID,
	}).Info("primary account opened")
	return account, nil
}

// Login authenticates a verified user by email and password.
func (s *Service) Login(ctx context.Context, creds models.Credentials) (*models.Token, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil || creds.Password == "" {
		return nil, models.ErrInvalidCredentials
	}

	if err := s.checkLockout(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, s.failLogin(ctx, email)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if !auth.CheckPassword(user.PasswordHash, creds.Password) {
		return nil, s.failLogin(ctx, email)
	}
	if !user.IsVerified {
		return nil, models.ErrUserNotVerified
	}

	s.resetLockout(ctx, email)
	return s.issue(models.Principal{Kind: models.PrincipalUser, ID: user.ID})
}

// JointLogin authenticates a joint account by number and shared password.
func (s *Service) JointLogin(ctx context.Context, creds models.JointCredentials) (*models.Token, error) {
	number := strings.TrimSpace(creds.AccountNumber)
	if number == "" || creds.Password == "" {
		return nil, models.ErrInvalidCredentials
	}
	key := jointLockoutKey + number

	if err := s.checkLockout(ctx, key); err != nil {
		return nil, err
	}

	account, err := s.repo.GetAccountByNumber(ctx, number)
	if errors.Is(err, models.ErrAccountNotFound) {
		return nil, s.failLogin(ctx, key)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if account.AccountType != models.AccountTypeJoint || !auth.CheckPassword(account.PasswordHash, creds.Password) {
		return nil, s.failLogin(ctx, key)
	}

	s.resetLockout(ctx, key)
	return s.issue(models.Principal{Kind: models.PrincipalJoint, ID: account.ID})
}

// Logout revokes token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string, claims *auth.Claims) error {
	ttl := s.jwt.Remaining(claims)
	if err := s.tokens.BlacklistToken(ctx, token, ttl); err != nil {
		return storeErr(fmt.Errorf("blacklist token: %w", err))
	}
	return nil
}

// Authenticate validates a bearer token and rejects revoked ones.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.tokens.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, storeErr(fmt.Errorf("check blacklist: %w", err))
	}
	if revoked {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) issue(p models.Principal) (*models.Token, error) {
	token, err := s.jwt.Issue(p)
	if err != nil {
		return nil, storeErr(err)
	}
	return token, nil
}

func (s *Service) checkLockout(ctx context.Context, key string) error {
	failed, err := s.tokens.FailedLogins(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("error checking failed attempts")
		return nil
	}
	if failed >= s.opts.MaxFailedLogins {
		return models.ErrTooManyAttempts
	}
	return nil
}

func (s *Service) failLogin(ctx context.Context, key string) error {
	if _, err := s.tokens.RecordFailedLogin(ctx, key, s.opts.LockoutWindow); err != nil {
		s.logger.WithError(err).Warn("error recording failed login")
	}
	return models.ErrInvalidCredentials
}

func (s *Service) resetLockout(ctx context.Context, key string) {
	if err := s.tokens.ResetFailedLogins(ctx, key); err != nil {
		s.logger.WithError(err).Warn("error resetting failed logins")
	}
}

// normalizeEmail trims and lowercases an address and checks its syntax.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", models.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q is not a valid email address", models.ErrInvalidInput, raw)
	}
	return email, nil
}
