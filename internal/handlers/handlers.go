// Package handlers exposes the banking operations as a JSON HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kubesec-bank/webbank/internal/auth"
	"github.com/kubesec-bank/webbank/internal/middleware"
	"github.com/kubesec-bank/webbank/internal/models"
)

// Banking is the set of operations the API serves.
type Banking interface {
	middleware.Authenticator
	middleware.AdminChecker

	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	VerifyOTP(ctx context.Context, req models.VerifyRequest) (*models.Account, error)
	Login(ctx context.Context, creds models.Credentials) (*models.Token, error)
	JointLogin(ctx context.Context, creds models.JointCredentials) (*models.Token, error)
	Logout(ctx context.Context, token string, claims *auth.Claims) error

	Dashboard(ctx context.Context, p models.Principal) (*models.Dashboard, error)
	JointDashboard(ctx context.Context, p models.Principal) (*models.Dashboard, error)
	CreateJointAccount(ctx context.Context, p models.Principal, req models.CreateJointAccountRequest) (*models.JointAccountCreated, error)

	Deposit(ctx context.Context, p models.Principal, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	Withdraw(ctx context.Context, p models.Principal, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)
	Transfer(ctx context.Context, p models.Principal, fromID uuid.UUID, toNumber string, amount decimal.Decimal) (*models.Transaction, error)

	ApplyLoan(ctx context.Context, p models.Principal, accountID uuid.UUID, req models.LoanApplicationRequest) (*models.Loan, error)
	DecideLoan(ctx context.Context, loanID uuid.UUID, decision models.LoanDecision) (*models.DecidedLoan, error)
	ListLoans(ctx context.Context, status string) ([]models.LoanView, error)
	AdminAccount(ctx context.Context, number string) (*models.AccountDetails, error)
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	svc    Banking
	logger *logrus.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc Banking, logger *logrus.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register creates an unverified user and emails a verification code.
// POST /api/v1/users/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Verify confirms the emailed code and opens the user's primary account.
// POST /api/v1/users/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if !decode(w, r, &req) {
		return
	}

	account, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// Login handles POST /api/v1/users/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decode(w, r, &creds) {
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.svc.Login(r.Context(), creds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, token)
}

// JointLogin handles POST /api/v1/joint/login
func (h *Handler) JointLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.JointCredentials
	if !decode(w, r, &creds) {
		return
	}
	if creds.AccountNumber == "" || creds.Password == "" {
		writeError(w, http.StatusBadRequest, "account_number and password are required")
		return
	}

	token, err := h.svc.JointLogin(r.Context(), creds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setTokenCookie(w, token)
	writeJSON(w, http.StatusOK, token)
}

// Logout revokes the caller's token.
// POST /api/v1/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Logout(r.Context(), middleware.GetToken(r.Context()), claims); err != nil {
		h.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Dashboard handles GET /api/v1/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.dashboard(w, r, h.svc.Dashboard)
}

// JointDashboard handles GET /api/v1/joint/dashboard
func (h *Handler) JointDashboard(w http.ResponseWriter, r *http.Request) {
	h.dashboard(w, r, h.svc.JointDashboard)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request, load func(context.Context, models.Principal) (*models.Dashboard, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	dash, err := load(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// CreateJointAccount handles POST /api/v1/joint/accounts
func (h *Handler) CreateJointAccount(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.CreateJointAccountRequest
	if !decode(w, r, &req) {
		return
	}

	created, err := h.svc.CreateJointAccount(r.Context(), p, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Deposit handles POST /api/v1/accounts/{id}/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Deposit)
}

// Withdraw handles POST /api/v1/accounts/{id}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.svc.Withdraw)
}

type movement func(ctx context.Context, p models.Principal, accountID uuid.UUID, amount decimal.Decimal) (*models.Transaction, error)

func (h *Handler) move(w http.ResponseWriter, r *http.Request, op movement) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "invalid account id")
	if !ok {
		return
	}
	var req models.AmountRequest
	if !decode(w, r, &req) {
		return
	}

	txn, err := op(r.Context(), p, accountID, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Transfer handles POST /api/v1/accounts/{id}/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "invalid account id")
	if !ok {
		return
	}
	var req models.TransferRequest
	if !decode(w, r, &req) {
		return
	}

	txn, err := h.svc.Transfer(r.Context(), p, accountID, req.ToAccountNumber, req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// ApplyLoan handles POST /api/v1/accounts/{id}/loans
func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "invalid account id")
	if !ok {
		return
	}
	var req models.LoanApplicationRequest
	if !decode(w, r, &req) {
		return
	}

	loan, err := h.svc.ApplyLoan(r.Context(), p, accountID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ListLoans handles GET /api/v1/admin/loans?status=
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.svc.ListLoans(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if loans == nil {
		loans = []models.LoanView{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loans": loans,
	})
}

// ApproveLoan handles POST /api/v1/admin/loans/{id}/approve
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.LoanDecisionApprove)
}

// RejectLoan handles POST /api/v1/admin/loans/{id}/reject
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.LoanDecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decision models.LoanDecision) {
	loanID, ok := pathID(w, r, "invalid loan id")
	if !ok {
		return
	}

	decided, err := h.svc.DecideLoan(r.Context(), loanID, decision)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

// AdminAccount handles GET /api/v1/admin/accounts/{number}
func (h *Handler) AdminAccount(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.AdminAccount(r.Context(), r.PathValue("number"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// fail maps err to a status code. Domain errors carry a message safe for the
// caller; anything else is logged and answered generically.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch {
	case errors.Is(err, models.ErrStoreUnavailable):
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("store unavailable")
		writeError(w, status, models.ErrStoreUnavailable.Error())
	case !models.IsDomainError(err):
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("unexpected error")
		writeError(w, status, "internal error")
	default:
		writeError(w, status, err.Error())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrSameAccount),
		errors.Is(err, models.ErrInvalidLoanType),
		errors.Is(err, models.ErrUnknownMember),
		errors.Is(err, models.ErrInvalidOTP),
		errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden),
		errors.Is(err, models.ErrUserNotVerified):
		return http.StatusForbidden
	case errors.Is(err, models.ErrRecipientNotFound),
		errors.Is(err, models.ErrAccountNotFound),
		errors.Is(err, models.ErrLoanNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmailTaken),
		errors.Is(err, models.ErrAlreadyVerified),
		errors.Is(err, models.ErrDuplicatePendingLoan),
		errors.Is(err, models.ErrLoanLimitExceeded),
		errors.Is(err, models.ErrInvalidLoanState):
		return http.StatusConflict
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrBalanceLimitExceeded),
		errors.Is(err, models.ErrMinorApplicant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return models.Principal{}, false
	}
	return claims.Principal, true
}

func pathID(w http.ResponseWriter, r *http.Request, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func setTokenCookie(w http.ResponseWriter, token *models.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token.AccessToken,
		Path:     "/",
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
