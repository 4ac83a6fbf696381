package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/logging"
	"github.com/kubesec-bank/webbank/internal/metrics"
	"github.com/kubesec-bank/webbank/internal/models"
	"github.com/kubesec-bank/webbank/internal/notify"
	"github.com/kubesec-bank/webbank/internal/repository"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// stubRepo is an in-memory Repository covering what the service calls.
// Unimplemented methods panic through the embedded nil interface.
type stubRepo struct {
	repository.Repository

	users    map[uuid.UUID]*models.User
	accounts map[uuid.UUID]*models.Account
	members  map[uuid.UUID][]uuid.UUID
	loans    map[uuid.UUID][]models.Loan

	moneyErr   error
	moneyCalls int

	createdUser *models.User
	createdOTP  *models.OTP
	createErr   error

	verifyEmail string
	verifyCode  string
	verifyNext  repository.NumberGenerator

	jointEmails []string
	jointHash   string

	createdLoan *models.Loan
	loanErr     error
	decided     *models.DecidedLoan
	decideErr   error
	listStatus  models.LoanStatus
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:    map[uuid.UUID]*models.User{},
		accounts: map[uuid.UUID]*models.Account{},
		members:  map[uuid.UUID][]uuid.UUID{},
		loans:    map[uuid.UUID][]models.Loan{},
	}
}

func (r *stubRepo) addUser(email string, dob time.Time) *models.User {
	u := &models.User{
		ID:          uuid.New(),
		FirstName:   "Test",
		LastName:    "User",
		Email:       email,
		DateOfBirth: dob,
		IsVerified:  true,
	}
	r.users[u.ID] = u
	return u
}

func (r *stubRepo) addAccount(typ models.AccountType, number string, memberIDs ...uuid.UUID) *models.Account {
	a := &models.Account{ID: uuid.New(), AccountNumber: number, AccountType: typ, Balance: decimal.Zero}
	r.accounts[a.ID] = a
	r.members[a.ID] = memberIDs
	return a
}

func (r *stubRepo) movement(txn *models.Transaction) (*models.Transaction, error) {
	r.moneyCalls++
	if r.moneyErr != nil {
		return nil, r.moneyErr
	}
	return txn, nil
}

func (r *stubRepo) Deposit(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	return r.movement(models.NewDeposit(id, amount, testNow))
}

func (r *stubRepo) Withdraw(_ context.Context, id uuid.UUID, amount decimal.Decimal) (*models.Transaction, error) {
	return r.movement(models.NewWithdrawal(id, amount, testNow))
}

func (r *stubRepo) Transfer(_ context.Context, from uuid.UUID, toNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	for _, a := range r.accounts {
		if a.AccountNumber == toNumber {
			return r.movement(models.NewTransfer(from, a.ID, amount, testNow))
		}
	}
	r.moneyCalls++
	return nil, models.ErrRecipientNotFound
}

func (r *stubRepo) IsMember(_ context.Context, accountID, userID uuid.UUID) (bool, error) {
	for _, id := range r.members[accountID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubRepo) CreateUser(_ context.Context, user *models.User, otp *models.OTP) error {
	if r.createErr != nil {
		return r.createErr
	}
	user.ID = uuid.New()
	otp.UserID = user.ID
	r.createdUser, r.createdOTP = user, otp
	r.users[user.ID] = user
	return nil
}

func (r *stubRepo) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, models.ErrUserNotFound
}

func (r *stubRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r *stubRepo) VerifyUser(_ context.Context, email, code string, next repository.NumberGenerator) (*models.Account, error) {
	r.verifyEmail, r.verifyCode, r.verifyNext = email, code, next
	number, err := next()
	if err != nil {
		return nil, err
	}
	return &models.Account{ID: uuid.New(), AccountNumber: number, AccountType: models.AccountTypePrimary}, nil
}

func (r *stubRepo) CreateJointAccount(_ context.Context, creatorID uuid.UUID, emails []string, hash string, next repository.NumberGenerator) (*models.JointAccountCreated, error) {
	r.jointEmails, r.jointHash = emails, hash

	creator := r.users[creatorID]
	members := []models.Member{{UserID: creator.ID, Email: creator.Email}}
	for _, e := range emails {
		u, err := r.GetUserByEmail(context.Background(), e)
		if err != nil {
			return nil, models.ErrUnknownMember
		}
		members = append(members, models.Member{UserID: u.ID, Email: u.Email})
	}

	number, err := next()
	if err != nil {
		return nil, err
	}
	account := r.addAccount(models.AccountTypeJoint, number)
	account.PasswordHash = hash
	return &models.JointAccountCreated{Account: *account, Members: members}, nil
}

func (r *stubRepo) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if a, ok := r.accounts[id]; ok {
		return a, nil
	}
	return nil, models.ErrAccountNotFound
}

func (r *stubRepo) GetAccountByNumber(_ context.Context, number string) (*models.Account, error) {
	for _, a := range r.accounts {
		if a.AccountNumber == number {
			return a, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

func (r *stubRepo) GetPrimaryAccount(_ context.Context, userID uuid.UUID) (*models.Account, error) {
	for id, a := range r.accounts {
		if a.AccountType != models.AccountTypePrimary {
			continue
		}
		for _, m := range r.members[id] {
			if m == userID {
				return a, nil
			}
		}
	}
	return nil, models.ErrAccountNotFound
}

func (r *stubRepo) ListMembers(_ context.Context, accountID uuid.UUID) ([]models.Member, error) {
	out := []models.Member{}
	for _, id := range r.members[accountID] {
		u := r.users[id]
		out = append(out, models.Member{UserID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email})
	}
	return out, nil
}

func (r *stubRepo) ListTransactions(context.Context, uuid.UUID, int) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func (r *stubRepo) ListLoansByAccount(_ context.Context, accountID uuid.UUID) ([]models.Loan, error) {
	return append([]models.Loan{}, r.loans[accountID]...), nil
}

func (r *stubRepo) CreateLoan(_ context.Context, loan *models.Loan) error {
	if r.loanErr != nil {
		return r.loanErr
	}
	loan.ID = uuid.New()
	loan.Status = models.LoanStatusPending
	loan.RequestedAt = testNow
	r.createdLoan = loan
	return nil
}

func (r *stubRepo) DecideLoan(context.Context, uuid.UUID, models.LoanDecision) (*models.DecidedLoan, error) {
	return r.decided, r.decideErr
}

func (r *stubRepo) ListLoans(_ context.Context, status models.LoanStatus) ([]models.LoanView, error) {
	r.listStatus = status
	return []models.LoanView{}, nil
}

// stubTokens is an in-memory TokenStore.
type stubTokens struct {
	mu        sync.Mutex
	revoked   map[string]time.Duration
	failures  map[string]int64
	storeErr  error
	lastReset string
}

func newStubTokens() *stubTokens {
	return &stubTokens{revoked: map[string]time.Duration{}, failures: map[string]int64{}}
}

func (s *stubTokens) BlacklistToken(_ context.Context, token string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.revoked[token] = expiry
	return nil
}

func (s *stubTokens) IsTokenBlacklisted(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return false, s.storeErr
	}
	_, ok := s.revoked[token]
	return ok, nil
}

func (s *stubTokens) RecordFailedLogin(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key]++
	return s.failures[key], nil
}

func (s *stubTokens) FailedLogins(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return 0, s.storeErr
	}
	return s.failures[key], nil
}

func (s *stubTokens) ResetFailedLogins(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
	s.lastReset = key
	return nil
}

// outbox records notifications and published events.
type outbox struct {
	messages []notify.Message
	events   []*models.Transaction
	err      error
}

func (o *outbox) Notify(_ context.Context, msg notify.Message) error {
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

func (o *outbox) PublishTransaction(_ context.Context, txn *models.Transaction) error {
	o.events = append(o.events, txn)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *stubRepo
	tokens *stubTokens
	out    *outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newStubRepo(), tokens: newStubTokens(), out: &outbox{}}
	f.svc = New(Deps{
		Repo:     f.repo,
		Tokens:   f.tokens,
		JWT:      auth.NewTokenManager("test-secret", time.Hour),
		Notifier: f.out,
		Events:   f.out,
		Metrics:  metrics.New(),
		Logger:   logging.Discard(),
	}, DefaultOptions())
	f.svc.now = func() time.Time { return testNow }
	f.svc.newOTP = func() (string, error) { return "424242", nil }
	f.svc.newNumber = func() (string, error) { return "7777777777", nil }
	f.svc.newPassword = func() (string, error) { return "Pa55word", nil }
	return f
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connection refused")
